// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"bytes"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func snapshot(m *Map) []byte {
	var out []byte
	m.Observe(func(acc []byte) {
		out = append([]byte{}, acc...)
	})
	return out
}

func TestNewRejectsEmpty(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n); err == nil {
			t.Fatalf("New(%d) succeeded, want error", n)
		}
	}
}

func TestFreshMapHasNoCoverage(t *testing.T) {
	for _, n := range []int{1, 8, 1000, 64 << 10} {
		m, err := New(n)
		if err != nil {
			t.Fatalf("New(%d): %s", n, err)
		}
		if got := m.Percent(); got != 0 {
			t.Fatalf("New(%d).Percent() = %v, want 0", n, got)
		}
		if m.Len() != n {
			t.Fatalf("Len() = %d, want %d", m.Len(), n)
		}
	}
}

func TestUpdateMergesCounters(t *testing.T) {
	m, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	m.Update(func(v View) {
		if v.Len() != 8 {
			t.Fatalf("view length %d, want 8", v.Len())
		}
		v.CopyFrom([]byte{1, 0, 0, 0, 1, 0, 0, 0})
	})
	if got := m.Percent(); got != 25 {
		t.Fatalf("Percent() = %v, want 25", got)
	}
	var buf bytes.Buffer
	m.Report(&buf)
	if got, want := buf.String(), "Total Coverage:       25.000%\n"; got != want {
		t.Fatalf("Report() = %q, want %q", got, want)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	m.Update(func(v View) { v.CopyFrom([]byte{0, 7, 0, 255}) })
	before, pct := snapshot(m), m.Percent()
	m.Merge()
	if diff := cmp.Diff(before, snapshot(m)); diff != "" {
		t.Fatalf("accumulated changed on second merge (-before +after):\n%s", diff)
	}
	if m.Percent() != pct {
		t.Fatalf("Percent() changed on second merge: %v != %v", m.Percent(), pct)
	}
	if diff := cmp.Diff([]byte{0, 1, 0, 1}, before); diff != "" {
		t.Fatalf("unexpected accumulation (-want +got):\n%s", diff)
	}
}

func TestAccumulationIsMonotonic(t *testing.T) {
	m, err := New(6)
	if err != nil {
		t.Fatal(err)
	}
	runs := [][]byte{
		{1, 0, 0, 0, 0, 0},
		{0, 0, 3, 0, 0, 0},
		{0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 9},
	}
	prev := snapshot(m)
	for i, counters := range runs {
		m.Update(func(v View) { v.CopyFrom(counters) })
		cur := snapshot(m)
		for j := range cur {
			if prev[j] != 0 && cur[j] == 0 {
				t.Fatalf("run %d cleared position %d", i, j)
			}
			if cur[j] != 0 && prev[j] == 0 && counters[j] == 0 {
				t.Fatalf("run %d set position %d without a counter", i, j)
			}
		}
		prev = cur
	}
	if diff := cmp.Diff([]byte{1, 1, 1, 0, 0, 1}, prev); diff != "" {
		t.Fatalf("unexpected accumulation (-want +got):\n%s", diff)
	}
	if got := m.Covered(); got != 4 {
		t.Fatalf("Covered() = %d, want 4", got)
	}
}

func TestViewIsBounded(t *testing.T) {
	m, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	m.Update(func(v View) {
		if n := v.CopyFrom([]byte{1, 1, 1, 1}); n != 2 {
			t.Fatalf("CopyFrom copied %d bytes, want 2", n)
		}
		if v.Pointer() == nil {
			t.Fatal("Pointer() returned nil for a non-empty view")
		}
	})
	if got := m.Percent(); got != 100 {
		t.Fatalf("Percent() = %v, want 100", got)
	}
}

func TestZeroMapPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on uninitialized map")
		}
	}()
	var m Map
	m.Percent()
}

func TestConcurrentReadersSeeWholeUpdates(t *testing.T) {
	m, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	full := bytes.Repeat([]byte{1}, 1024)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Update(func(v View) { v.CopyFrom(full) })
	}()
	for i := 0; i < 100; i++ {
		if pct := m.Percent(); pct != 0 && pct != 100 {
			t.Fatalf("observed partial accumulation: %v", pct)
		}
	}
	wg.Wait()
}

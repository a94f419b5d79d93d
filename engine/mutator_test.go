// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestMutateRespectsMaxSize(t *testing.T) {
	m := newMutator(rand.New(rand.NewSource(1)))
	m.maxSize = 64
	corpus := []*Testcase{{Data: bytes.Repeat([]byte("x"), 64)}}
	data := bytes.Repeat([]byte("a"), 64)
	for i := 0; i < 1000; i++ {
		data = m.mutate(data, corpus)
		if len(data) > m.maxSize {
			t.Fatalf("mutation %d produced %d bytes, max %d", i, len(data), m.maxSize)
		}
	}
}

func TestMutateDoesNotModifyInput(t *testing.T) {
	m := newMutator(rand.New(rand.NewSource(2)))
	orig := []byte("hello, simulator")
	data := makeCopy(orig)
	for i := 0; i < 100; i++ {
		m.mutate(data, nil)
	}
	if !bytes.Equal(data, orig) {
		t.Errorf("input changed to %q", data)
	}
}

func TestMutateEmptyInput(t *testing.T) {
	m := newMutator(rand.New(rand.NewSource(3)))
	changed := false
	for i := 0; i < 100; i++ {
		if len(m.mutate(nil, nil)) > 0 {
			changed = true
		}
	}
	if !changed {
		t.Error("empty input never grew")
	}
}

func TestGenerate(t *testing.T) {
	m := newMutator(rand.New(rand.NewSource(4)))
	for i := 0; i < 100; i++ {
		if n := len(m.generate(16)); n < 1 || n > 16 {
			t.Fatalf("generated %d bytes, want 1..16", n)
		}
	}
}

func TestChooseLen(t *testing.T) {
	m := newMutator(rand.New(rand.NewSource(5)))
	for _, n := range []int{0, 1, 2, 7, 100} {
		for i := 0; i < 100; i++ {
			got := m.chooseLen(n)
			if got < 1 || (n >= 1 && got > n) {
				t.Fatalf("chooseLen(%d) = %d", n, got)
			}
		}
	}
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage owns the counter buffer shared with an instrumented simulator
// and the cumulative coverage derived from it.
package coverage

import (
	"fmt"
	"io"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Map holds code coverage for the lifetime of the process.
//
// raw is written only by the simulator, through a View lent inside Update.
// accumulated is the union of every raw snapshot merged so far: once a
// position is set it is never cleared.
type Map struct {
	mu          sync.RWMutex
	raw         []byte
	accumulated []byte
}

// New allocates both buffers with n zeroed counters.
// n is the number of instrumentation points reported by the simulator;
// zero is a configuration error.
func New(n int) (*Map, error) {
	if n <= 0 {
		return nil, errors.Errorf("bad cover table size (%v)", n)
	}
	return &Map{
		raw:         make([]byte, n),
		accumulated: make([]byte, n),
	}, nil
}

func (m *Map) mustInit() {
	if m.raw == nil {
		panic("coverage: map used before initialization")
	}
}

// Len returns the number of counters.
func (m *Map) Len() int {
	m.mustInit()
	return len(m.raw)
}

// View is a bounded, writable window over the raw counters.
// It is only valid inside the Update callback that produced it.
type View struct {
	buf []byte
}

// Len returns the number of writable bytes.
func (v View) Len() int { return len(v.buf) }

// Pointer returns the address of the first counter for foreign code.
// The callee must not write past Len bytes nor keep the pointer after the call.
func (v View) Pointer() unsafe.Pointer {
	if len(v.buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&v.buf[0])
}

// CopyFrom copies src into the counters and returns the number of bytes copied.
func (v View) CopyFrom(src []byte) int {
	return copy(v.buf, src)
}

// Update lends the raw counters to fn and merges them into the accumulated
// coverage afterwards. The map stays locked for the whole call so that
// readers never observe a half-updated accumulation.
func (m *Map) Update(fn func(View)) {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(View{buf: m.raw[:len(m.raw):len(m.raw)]})
	m.merge()
}

// Merge marks every position with a non-zero raw counter as covered.
func (m *Map) Merge() {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merge()
}

func (m *Map) merge() {
	for i, v := range m.raw {
		if v != 0 {
			m.accumulated[i] = 1
		}
	}
}

// Covered returns the number of positions covered so far.
func (m *Map) Covered() int {
	m.mustInit()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.covered()
}

func (m *Map) covered() int {
	cnt := 0
	for _, v := range m.accumulated {
		if v != 0 {
			cnt++
		}
	}
	return cnt
}

// Percent returns the accumulated coverage as a percentage of all counters.
func (m *Map) Percent() float64 {
	m.mustInit()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return 100 * float64(m.covered()) / float64(len(m.accumulated))
}

// Report prints the accumulated coverage percentage.
func (m *Map) Report(w io.Writer) {
	fmt.Fprintf(w, "Total Coverage:       %.3f%%\n", m.Percent())
}

// Observe gives fn read-only access to the accumulated buffer.
// fn must not modify or retain the slice.
func (m *Map) Observe(fn func(accumulated []byte)) {
	m.mustInit()
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.accumulated)
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/bradleyjkemp/simfuzz/coverage"
	"github.com/bradleyjkemp/simfuzz/sim"
)

// fakeSim runs workloads through a table instead of a simulator.
type fakeSim struct {
	points int
	// status maps a workload reference to its exit status.
	status map[string]int
	// crashPrefix makes staged inputs starting with it fail with status 1.
	crashPrefix []byte
	// counters are the raw counters produced by every run.
	counters []byte

	calls     [][]string
	staged    [][]byte
	uncovered int

	feedback string
	verbose  bool
	maxRuns  uint64
}

var _ sim.Simulator = (*fakeSim)(nil)

func (f *fakeSim) CoverNumber() int { return f.points }

func (f *fakeSim) Main(argv []string) int {
	f.calls = append(f.calls, append([]string{}, argv...))
	ref := argv[2]
	if len(f.staged) > 0 && ref == sim.SharedRef(len(f.staged[len(f.staged)-1])) {
		data := f.staged[len(f.staged)-1]
		if f.crashPrefix != nil && bytes.HasPrefix(data, f.crashPrefix) {
			return 1
		}
	}
	return f.status[ref]
}

func (f *fakeSim) UpdateStats(v coverage.View) { v.CopyFrom(f.counters) }

func (f *fakeSim) DisplayUncoveredPoints() { f.uncovered++ }

func (f *fakeSim) SetCoverFeedback(name string) { f.feedback = name }

func (f *fakeSim) SetVerbose(on bool) { f.verbose = on }

func (f *fakeSim) SetMaxRuns(n uint64) { f.maxRuns = n }

func (f *fakeSim) Stage(data []byte) (string, func(), error) {
	if len(data) > sim.MaxInputSize {
		return "", nil, fmt.Errorf("input is too large (%d)", len(data))
	}
	f.staged = append(f.staged, append([]byte{}, data...))
	return sim.SharedRef(len(data)), func() {}, nil
}

type fixture struct {
	sim    *fakeSim
	cover  *coverage.Map
	bridge *Bridge
	out    *bytes.Buffer
}

func newFixture(t *testing.T, f *fakeSim, extra ...string) *fixture {
	t.Helper()
	if f.points == 0 {
		f.points = 8
	}
	m, err := coverage.New(f.points)
	if err != nil {
		t.Fatalf("coverage.New: %v", err)
	}
	out := &bytes.Buffer{}
	b, err := NewBridge(f, m, extra, out)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	return &fixture{sim: f, cover: m, bridge: b, out: out}
}

func (fx *fixture) harness(t *testing.T, opts Options) *Harness {
	t.Helper()
	p := &Policy{}
	if err := p.Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return New(fx.bridge, p, fx.out)
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package harness turns byte inputs into simulator runs and decides, per run,
// whether fuzzing goes on.
package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/bradleyjkemp/simfuzz/coverage"
	"github.com/bradleyjkemp/simfuzz/sim"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ProgramName is argv[0] for every simulator run.
const ProgramName = "emu"

// SimConfig is applied to the simulator once, before the first run.
type SimConfig struct {
	CoverFeedback string
	Verbose       bool
	// MaxRuns is forwarded to the simulator when non-zero.
	MaxRuns uint64
}

// Configure applies cfg to s and sizes a coverage map from its counter count.
func Configure(s sim.Simulator, cfg SimConfig) (*coverage.Map, error) {
	if cfg.CoverFeedback != "" {
		s.SetCoverFeedback(cfg.CoverFeedback)
	}
	s.SetVerbose(cfg.Verbose)
	if cfg.MaxRuns != 0 {
		s.SetMaxRuns(cfg.MaxRuns)
	}
	m, err := coverage.New(s.CoverNumber())
	return m, errors.Wrap(err, "simulator reports no cover points")
}

// Bridge runs workloads on the simulator and merges their counters.
// A non-zero status is returned to the caller, never treated as an error.
type Bridge struct {
	sim   sim.Simulator
	cover *coverage.Map
	extra []string
	out   io.Writer

	failures int
}

// NewBridge checks that m matches the simulator's counter count.
func NewBridge(s sim.Simulator, m *coverage.Map, extra []string, out io.Writer) (*Bridge, error) {
	if n := s.CoverNumber(); n != m.Len() {
		return nil, errors.Errorf("simulator reports %d cover points, coverage map has %d", n, m.Len())
	}
	if out == nil {
		out = os.Stdout
	}
	return &Bridge{
		sim:   s,
		cover: m,
		extra: append([]string{}, extra...),
		out:   out,
	}, nil
}

// Coverage returns the map the bridge merges into.
func (b *Bridge) Coverage() *coverage.Map { return b.cover }

// Argv returns the argument vector for workload ref.
func (b *Bridge) Argv(ref string) []string {
	argv := make([]string, 0, 3+len(b.extra))
	argv = append(argv, ProgramName, "-i", ref)
	return append(argv, b.extra...)
}

// Run executes one workload and returns its status.
// Coverage is merged whatever the status.
func (b *Bridge) Run(ref string) int {
	argv := b.Argv(ref)
	var status int
	b.cover.Update(func(v coverage.View) {
		status = b.sim.Main(argv)
		b.sim.UpdateStats(v)
	})
	glog.V(1).Infof("%s returned %d", ref, status)
	return status
}

// RunMany runs refs in order and returns the status of the last run attempted.
// Failures are reported as they happen; with autoExit the first one stops the list.
func (b *Bridge) RunMany(refs []string, autoExit bool) int {
	ret := 0
	for _, ref := range refs {
		ret = b.Run(ref)
		if ret != 0 {
			b.noteFailure(ref, ret)
			if autoExit {
				break
			}
		}
	}
	return ret
}

// RunFromBytes runs data as an in-memory workload.
// data must not be modified until RunFromBytes returns.
func (b *Bridge) RunFromBytes(data []byte) (int, error) {
	ref, release, err := b.sim.Stage(data)
	if err != nil {
		return 0, errors.Wrap(err, "failed to stage in-memory workload")
	}
	defer release()
	status := b.Run(ref)
	if status != 0 {
		b.noteFailure(ref, status)
	}
	return status, nil
}

// DisplayUncoveredPoints asks the simulator for its uncovered-points report.
func (b *Bridge) DisplayUncoveredPoints() {
	b.sim.DisplayUncoveredPoints()
}

// Failures returns the number of non-zero statuses seen so far.
func (b *Bridge) Failures() int { return b.failures }

func (b *Bridge) noteFailure(ref string, status int) {
	b.failures++
	fmt.Fprintf(b.out, "%s exits abnormally with return code: %d\n", ref, status)
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sim is the foreign call boundary to an instrumented hardware simulator.
//
// Two backends exist. Native links the simulator library into the process
// through cgo and is only available in binaries built with the simlib tag.
// Process executes a simulator binary once per run and exchanges counters and
// in-memory workloads with it through a shared comm file.
package sim

import (
	"io"

	"github.com/bradleyjkemp/simfuzz/coverage"
)

// MaxInputSize is the largest in-memory workload the Process backend can stage.
const MaxInputSize = 1 << 20

// Simulator is the set of entry points exported by an instrumented simulator.
// Implementations are not safe for concurrent use.
type Simulator interface {
	// CoverNumber returns the number of instrumentation counters.
	CoverNumber() int
	// Main runs the simulator with argv and returns its exit status.
	Main(argv []string) int
	// UpdateStats copies the counters of the last run into v.
	UpdateStats(v coverage.View)
	// DisplayUncoveredPoints prints the instrumentation points never covered.
	DisplayUncoveredPoints()
	// SetCoverFeedback selects the named coverage-feedback mode.
	SetCoverFeedback(name string)
	// SetVerbose toggles verbose simulator logging.
	SetVerbose(on bool)
	// SetMaxRuns bounds the number of runs inside the simulator.
	SetMaxRuns(n uint64)
	// Stage makes data reachable by the simulator and returns the workload
	// reference naming it. data must not be modified or moved until release
	// is called.
	Stage(data []byte) (ref string, release func(), err error)
}

// Open returns the Process backend when command is non-empty and the Native
// backend otherwise.
func Open(command []string, out io.Writer) (Simulator, error) {
	if len(command) > 0 {
		return NewProcess(command, out)
	}
	return openNative()
}

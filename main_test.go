// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bradleyjkemp/simfuzz/coverage"
	"github.com/bradleyjkemp/simfuzz/harness"
	"github.com/bradleyjkemp/simfuzz/sim"
	"github.com/google/go-cmp/cmp"
)

// scriptedSim returns a fixed status per workload and records the order of runs.
type scriptedSim struct {
	status map[string]int
	calls  []string
}

var _ sim.Simulator = (*scriptedSim)(nil)

func (s *scriptedSim) CoverNumber() int { return 4 }

func (s *scriptedSim) Main(argv []string) int {
	s.calls = append(s.calls, argv[2])
	return s.status[argv[2]]
}

func (s *scriptedSim) UpdateStats(v coverage.View) { v.CopyFrom([]byte{1, 0, 0, 0}) }

func (s *scriptedSim) DisplayUncoveredPoints() {}

func (s *scriptedSim) SetCoverFeedback(string) {}

func (s *scriptedSim) SetVerbose(bool) {}

func (s *scriptedSim) SetMaxRuns(uint64) {}

func (s *scriptedSim) Stage(data []byte) (string, func(), error) {
	return sim.SharedRef(len(data)), func() {}, nil
}

func TestRunWorkloads(t *testing.T) {
	tests := []struct {
		name       string
		workloads  []string
		status     map[string]int
		repeat     int
		autoExit   bool
		want       int
		wantCalls  []string
		wantReport bool
	}{
		{
			name:       "all succeed",
			workloads:  []string{"a", "b"},
			repeat:     1,
			want:       0,
			wantCalls:  []string{"a", "b"},
			wantReport: true,
		},
		{
			name:       "failure then success",
			workloads:  []string{"bad", "good"},
			status:     map[string]int{"bad": 2},
			repeat:     1,
			want:       1,
			wantCalls:  []string{"bad", "good"},
			wantReport: true,
		},
		{
			name:      "auto exit returns the failing status",
			workloads: []string{"trap", "good"},
			status:    map[string]int{"trap": 3},
			repeat:    2,
			autoExit:  true,
			want:      3,
			wantCalls: []string{"trap"},
		},
		{
			name:       "auto exit without failures",
			workloads:  []string{"a"},
			repeat:     1,
			autoExit:   true,
			want:       0,
			wantCalls:  []string{"a"},
			wantReport: true,
		},
		{
			name:       "repeat",
			workloads:  []string{"a", "b"},
			repeat:     2,
			want:       0,
			wantCalls:  []string{"a", "b", "a", "b"},
			wantReport: true,
		},
		{
			name:       "failure in a later repetition",
			workloads:  []string{"a", "flaky"},
			status:     map[string]int{"flaky": 1},
			repeat:     2,
			want:       1,
			wantCalls:  []string{"a", "flaky", "a", "flaky"},
			wantReport: true,
		},
		{
			name:   "no workloads",
			repeat: 1,
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSim{status: tt.status}
			m, err := harness.Configure(s, harness.SimConfig{})
			if err != nil {
				t.Fatalf("Configure: %v", err)
			}
			out := &bytes.Buffer{}
			b, err := harness.NewBridge(s, m, nil, out)
			if err != nil {
				t.Fatalf("NewBridge: %v", err)
			}
			o := &options{Repeat: tt.repeat, AutoExit: tt.autoExit, workloads: tt.workloads}

			if got := runWorkloads(b, o, out); got != tt.want {
				t.Errorf("runWorkloads = %d, want %d", got, tt.want)
			}
			if diff := cmp.Diff(tt.wantCalls, s.calls); diff != "" {
				t.Errorf("unexpected runs (-want +got):\n%s", diff)
			}
			if got := strings.Contains(out.String(), "Total Coverage:       25.000%"); got != tt.wantReport {
				t.Errorf("coverage report printed = %v, want %v; output:\n%s", got, tt.wantReport, out.String())
			}
		})
	}
}

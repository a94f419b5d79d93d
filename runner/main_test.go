// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/bradleyjkemp/simfuzz/simstub"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		prog []byte
		want int
	}{
		{"empty", nil, 0},
		{"halt", []byte{opHalt, 0}, 0},
		{"divide by zero", []byte{opLoadImm, 1, opLoadImm | 1<<4, 0, opDiv | 1<<6, 0}, statusTrap},
		{"divide by itself", []byte{opLoadImm, 1, opDiv, 0, opAssert, 1}, 0},
		{"divide", []byte{opLoadImm | 1<<4, 2, opLoadImm, 4, opDiv | 1<<6, 0, opAssert, 2}, 0},
		{"failed assertion", []byte{opLoadImm, 7, opAssert, 8}, statusTrap},
		{"illegal", []byte{opNop, 0, opIllegal, 0}, statusTrap},
		{"infinite loop", []byte{opBeq, 0}, 0},
		{"odd trailing byte", []byte{opNop, 0, opIllegal}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &simstub.Input{Workload: tt.prog, Cover: make([]byte, numPoints)}
			if got := run(in); got != tt.want {
				t.Errorf("run = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunCoversOpcodes(t *testing.T) {
	in := &simstub.Input{
		Workload: []byte{opNop, 0, opNop, 0x80, opLoadImm, 1},
		Cover:    make([]byte, numPoints),
	}
	run(in)
	want := map[int]byte{opNop * 2: 1, opNop*2 + 1: 1, opLoadImm * 2: 1}
	for i, c := range in.Cover {
		if c != want[i] {
			t.Errorf("point %d covered %d times, want %d", i, c, want[i])
		}
	}
}

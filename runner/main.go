// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command runner is a toy instrumented simulator speaking the simstub
// protocol. It executes the workload as a program for a tiny 4-register
// machine and covers one point per (opcode, immediate sign) pair.
//
// Run it under simfuzz with:
//
//	simfuzz -f --sim-cmd runner --corpus-input random
package main

import (
	"fmt"
	"os"

	"github.com/bradleyjkemp/simfuzz/simstub"
)

const (
	numOps    = 16
	numPoints = 2 * numOps
	memSize   = 256
	maxSteps  = 1 << 14

	statusTrap = 1
)

const (
	opNop = iota
	opLoadImm
	opAdd
	opSub
	opXor
	opShl
	opDiv
	opLoad
	opStore
	opBeq
	opBne
	opHalt
	opMul
	opAssert
	opOut
	opIllegal
)

type machine struct {
	regs [4]byte
	mem  [memSize]byte
	pc   int
}

func main() {
	simstub.Main(numPoints, run)
}

func run(in *simstub.Input) int {
	var m machine
	prog := in.Workload
	for step := 0; step < maxSteps && m.pc+1 < len(prog); step++ {
		ins, imm := prog[m.pc], prog[m.pc+1]
		op := int(ins & 0xf)
		a, b := &m.regs[(ins>>4)&3], m.regs[(ins>>6)&3]
		point := op*2 + int(imm>>7)
		if in.Cover[point] < 255 {
			in.Cover[point]++
		}
		if in.Verbose {
			fmt.Fprintf(os.Stderr, "pc=%04x op=%x imm=%02x regs=%v\n", m.pc, op, imm, m.regs)
		}
		m.pc += 2
		switch op {
		case opNop:
		case opLoadImm:
			*a = imm
		case opAdd:
			*a += b
		case opSub:
			*a -= b
		case opXor:
			*a ^= b
		case opShl:
			*a <<= b & 7
		case opDiv:
			if b == 0 {
				fmt.Fprintf(os.Stderr, "trap: divide by zero at pc=%04x\n", m.pc-2)
				return statusTrap
			}
			*a /= b
		case opLoad:
			*a = m.mem[imm]
		case opStore:
			m.mem[imm] = *a
		case opBeq:
			if *a == b {
				m.pc = int(imm) * 2
			}
		case opBne:
			if *a != b {
				m.pc = int(imm) * 2
			}
		case opHalt:
			return 0
		case opMul:
			*a *= b
		case opAssert:
			if *a != imm {
				fmt.Fprintf(os.Stderr, "trap: assertion %02x != %02x at pc=%04x\n", *a, imm, m.pc-2)
				return statusTrap
			}
		case opOut:
			if in.Verbose {
				fmt.Printf("%c", *a)
			}
		case opIllegal:
			fmt.Fprintf(os.Stderr, "trap: illegal instruction at pc=%04x\n", m.pc-2)
			return statusTrap
		}
	}
	return 0
}

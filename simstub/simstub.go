// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package simstub implements the simulator side of the sim.Process protocol,
// so that a simulator written in Go can be driven by the harness.
package simstub

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bradleyjkemp/simfuzz/sim"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Exit statuses used when the protocol itself fails.
const (
	StatusUsage    = 2
	StatusProtocol = 3
)

// Input is one run as seen by the simulator.
type Input struct {
	// Workload holds the workload bytes.
	Workload []byte
	// Args are the pass-through simulator arguments.
	Args []string
	// Cover has one counter per instrumentation point.
	Cover []byte

	Feedback string
	Verbose  bool
	MaxRuns  uint64
}

// RunFunc simulates one workload and returns the exit status.
type RunFunc func(in *Input) int

// Main serves one request and exits with its status.
func Main(points int, run RunFunc) {
	os.Exit(Serve(points, os.Args[1:], run))
}

// Serve answers a cover-number query or runs the workload named by
// "-i <workload>" in args. It returns the process exit status.
func Serve(points int, args []string, run RunFunc) int {
	if os.Getenv(sim.EnvQuery) == sim.QueryCoverNumber {
		fmt.Println(points)
		return 0
	}
	ref, extra, err := splitArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simstub: %v\n", err)
		return StatusUsage
	}
	var maxRuns uint64
	if v := os.Getenv(sim.EnvMaxRuns); v != "" {
		if maxRuns, err = strconv.ParseUint(v, 10, 64); err != nil {
			fmt.Fprintf(os.Stderr, "simstub: bad %s: %v\n", sim.EnvMaxRuns, err)
			return StatusProtocol
		}
	}
	cover, input, err := openComm(points)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simstub: %v\n", err)
		return StatusProtocol
	}
	data, err := resolve(ref, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simstub: %v\n", err)
		return StatusProtocol
	}
	in := &Input{
		Workload: data,
		Args:     extra,
		Cover:    cover,
		Feedback: os.Getenv(sim.EnvCoverFeedback),
		Verbose:  os.Getenv(sim.EnvVerbose) != "",
		MaxRuns:  maxRuns,
	}
	return run(in)
}

func splitArgs(args []string) (ref string, extra []string, err error) {
	for i := 0; i < len(args); i++ {
		if args[i] == "-i" && ref == "" {
			if i+1 == len(args) {
				return "", nil, errors.New("-i needs a workload")
			}
			ref = args[i+1]
			i++
			continue
		}
		extra = append(extra, args[i])
	}
	if ref == "" {
		return "", nil, errors.New("no workload given (-i)")
	}
	return ref, extra, nil
}

// openComm maps the inherited comm file. Without one the counters go to a
// private buffer, which keeps the simulator usable on its own.
func openComm(points int) (cover, input []byte, err error) {
	v := os.Getenv(sim.EnvCommFD)
	if v == "" {
		return make([]byte, points), nil, nil
	}
	fd, err := strconv.Atoi(v)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bad %s", sim.EnvCommFD)
	}
	if n := os.Getenv(sim.EnvCoverNumber); n != strconv.Itoa(points) {
		return nil, nil, errors.Errorf("harness expects %s cover points, simulator has %d", n, points)
	}
	mem, err := unix.Mmap(fd, 0, points+sim.MaxInputSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to mmap comm file")
	}
	return mem[:points:points], mem[points:], nil
}

func resolve(ref string, input []byte) ([]byte, error) {
	w, err := sim.ParseWorkload(ref)
	if err != nil {
		return nil, err
	}
	switch {
	case !w.InMemory:
		data, err := os.ReadFile(w.Path)
		return data, errors.Wrap(err, "failed to read workload")
	case !w.Shared:
		return nil, errors.Errorf("workload %q lives in another address space", ref)
	case input == nil:
		return nil, errors.Errorf("workload %q needs a comm file", ref)
	case w.Len > len(input):
		return nil, errors.Errorf("workload %q exceeds the input region (%d bytes)", ref, len(input))
	}
	return input[:w.Len:w.Len], nil
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package sim

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bradleyjkemp/simfuzz/coverage"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Environment understood by simulators driven through the Process backend.
const (
	EnvCommFD        = "SIMFUZZ_COMM_FD"
	EnvQuery         = "SIMFUZZ_QUERY"
	EnvCoverNumber   = "SIMFUZZ_COVER_NUMBER"
	EnvCoverFeedback = "SIMFUZZ_COVER_FEEDBACK"
	EnvVerbose       = "SIMFUZZ_VERBOSE"
	EnvMaxRuns       = "SIMFUZZ_MAX_RUNS"

	// QueryCoverNumber asks the simulator to print its counter count and exit.
	QueryCoverNumber = "cover-number"

	// CommFD is the descriptor the comm file is inherited on.
	CommFD = 3

	// StartFailure is returned by Process.Main when the simulator never started.
	StartFailure = 127

	startAttempts = 3
)

// ExecCommand creates simulator processes. Tests replace it to mock them.
var ExecCommand = exec.Command

// Process runs a simulator binary per workload.
//
// The comm file is laid out as [counters][input region]. The child writes its
// counters into the first region before exiting; in-memory workloads are
// staged into the second one.
type Process struct {
	command []string
	out     io.Writer

	commFile    string
	comm        *mapping
	coverRegion []byte
	inputRegion []byte
	seen        []byte

	feedback string
	verbose  bool
	maxRuns  uint64
}

// NewProcess queries command for its counter count and prepares the comm file.
func NewProcess(command []string, out io.Writer) (*Process, error) {
	if len(command) == 0 {
		return nil, errors.New("empty simulator command")
	}
	if out == nil {
		out = os.Stdout
	}
	n, err := queryCoverNumber(command)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errors.Errorf("simulator %q reports %d cover points", command[0], n)
	}
	comm, err := os.CreateTemp("", "simfuzz-comm")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create comm file")
	}
	size := n + MaxInputSize
	if err := comm.Truncate(int64(size)); err != nil {
		comm.Close()
		os.Remove(comm.Name())
		return nil, errors.Wrap(err, "failed to size comm file")
	}
	comm.Close()
	m, err := createMapping(comm.Name(), size)
	if err != nil {
		os.Remove(comm.Name())
		return nil, err
	}
	return &Process{
		command:     append([]string{}, command...),
		out:         out,
		commFile:    comm.Name(),
		comm:        m,
		coverRegion: m.mem[:n:n],
		inputRegion: m.mem[n:],
		seen:        make([]byte, n),
	}, nil
}

func queryCoverNumber(command []string) (int, error) {
	cmd := ExecCommand(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), EnvQuery+"="+QueryCoverNumber)
	out, err := cmd.Output()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to query cover number from %q", command[0])
	}
	lines := strings.Fields(string(out))
	if len(lines) == 0 {
		return 0, errors.Errorf("simulator %q printed no cover number", command[0])
	}
	n, err := strconv.Atoi(lines[len(lines)-1])
	if err != nil {
		return 0, errors.Wrapf(err, "bad cover number from %q", command[0])
	}
	return n, nil
}

// Close unmaps and removes the comm file.
func (p *Process) Close() error {
	return multierr.Combine(p.comm.destroy(), os.Remove(p.commFile))
}

func (p *Process) CoverNumber() int { return len(p.coverRegion) }

func (p *Process) SetCoverFeedback(name string) { p.feedback = name }

func (p *Process) SetVerbose(on bool) { p.verbose = on }

func (p *Process) SetMaxRuns(n uint64) { p.maxRuns = n }

func (p *Process) Stage(data []byte) (string, func(), error) {
	if len(data) > len(p.inputRegion) {
		return "", nil, errors.Errorf("input is too large (%d > %d)", len(data), len(p.inputRegion))
	}
	copy(p.inputRegion, data)
	return SharedRef(len(data)), func() {}, nil
}

func (p *Process) environ() []string {
	env := append([]string{}, os.Environ()...)
	env = append(env,
		fmt.Sprintf("%s=%d", EnvCommFD, CommFD),
		fmt.Sprintf("%s=%d", EnvCoverNumber, len(p.coverRegion)),
	)
	if p.feedback != "" {
		env = append(env, EnvCoverFeedback+"="+p.feedback)
	}
	if p.verbose {
		env = append(env, EnvVerbose+"=1")
	}
	if p.maxRuns != 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvMaxRuns, p.maxRuns))
	}
	return env
}

// Main runs the simulator once. argv[0] is replaced by the configured command.
func (p *Process) Main(argv []string) int {
	for i := range p.coverRegion {
		p.coverRegion[i] = 0
	}
	args := append([]string{}, p.command[1:]...)
	if len(argv) > 1 {
		args = append(args, argv[1:]...)
	}
	for attempt := 1; ; attempt++ {
		status, err := p.run(args)
		if err == nil {
			return status
		}
		// This can be a transient failure like "cannot allocate memory" or "text file is busy".
		if attempt == startAttempts {
			glog.Errorf("failed to start simulator %q: %v", p.command[0], err)
			return StartFailure
		}
		glog.Warningf("failed to start simulator %q (attempt %d): %v", p.command[0], attempt, err)
		time.Sleep(time.Second)
	}
}

// run returns a non-nil error only when the child could not be started.
func (p *Process) run(args []string) (int, error) {
	cmd := ExecCommand(p.command[0], args...)
	cmd.Env = p.environ()
	setupCommMapping(cmd, p.comm)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	out := &lockedWriter{w: p.out}
	var g errgroup.Group
	g.Go(func() error { _, err := io.Copy(out, stdout); return err })
	g.Go(func() error { _, err := io.Copy(out, stderr); return err })
	if err := g.Wait(); err != nil {
		glog.Warningf("lost simulator output: %v", err)
	}
	return exitStatus(cmd.Wait()), nil
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		glog.Errorf("simulator wait failed: %v", err)
		return StartFailure
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

func (p *Process) UpdateStats(v coverage.View) {
	v.CopyFrom(p.coverRegion)
	for i, c := range p.coverRegion {
		if c != 0 {
			p.seen[i] = 1
		}
	}
}

func (p *Process) DisplayUncoveredPoints() {
	var uncovered []int
	for i, c := range p.seen {
		if c == 0 {
			uncovered = append(uncovered, i)
		}
	}
	fmt.Fprintf(p.out, "Uncovered points: %d/%d\n", len(uncovered), len(p.seen))
	if len(uncovered) > 0 {
		fmt.Fprintf(p.out, "  %s\n", formatRanges(uncovered))
	}
}

// formatRanges renders sorted indices as "0-3,7,9-12".
func formatRanges(idx []int) string {
	var buf bytes.Buffer
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && idx[j+1] == idx[j]+1 {
			j++
		}
		if buf.Len() > 0 {
			buf.WriteByte(',')
		}
		if i == j {
			fmt.Fprintf(&buf, "%d", idx[i])
		} else {
			fmt.Fprintf(&buf, "%d-%d", idx[i], idx[j])
		}
		i = j + 1
	}
	return buf.String()
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/bradleyjkemp/simfuzz/store"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// RandomInputSize is the size of inputs generated in random input mode.
const RandomInputSize = 1024

// BugTriggered marks a run that stopped fuzzing.
const BugTriggered = "<<<<<< Bug triggered >>>>>>"

// Verdict tells the engine what to do after an invocation.
type Verdict int

const (
	// Ok means fuzzing goes on.
	Ok Verdict = iota
	// Crash means the simulator failed and errors are not tolerated.
	Crash
	// BudgetExhausted means the run budget is used up.
	BudgetExhausted
)

func (v Verdict) String() string {
	switch v {
	case Ok:
		return "ok"
	case Crash:
		return "crash"
	case BudgetExhausted:
		return "budget exhausted"
	}
	return "unknown"
}

// Result describes one invocation.
type Result struct {
	Verdict Verdict
	// Status is the simulator exit status.
	Status int
	// Input is what the simulator actually ran. It differs from the
	// invocation's argument in random input mode.
	Input []byte
	// Saved is the path the input was persisted to, if any.
	Saved string
}

// Harness is the per-input entry point of the fuzzing engine.
// Invocations are serialized.
type Harness struct {
	mu     sync.Mutex
	bridge *Bridge
	policy *Policy
	out    io.Writer
	rnd    *rand.Rand
}

// New returns a harness running inputs through b under policy p.
// Coverage reports go to out.
func New(b *Bridge, p *Policy, out io.Writer) *Harness {
	if out == nil {
		out = os.Stdout
	}
	return &Harness{
		bridge: b,
		policy: p,
		out:    out,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Policy returns the policy the harness enforces.
func (h *Harness) Policy() *Policy { return h.policy }

// Bridge returns the bridge the harness runs inputs through.
func (h *Harness) Bridge() *Bridge { return h.bridge }

// Invoke runs one input and returns the verdict. Side effects of a
// terminating verdict (uncovered-points report, saved input) have happened
// by the time Invoke returns; stopping the process is left to the caller.
// A non-nil error means the input could not be run or a failing input
// could not be saved; both are fatal.
func (h *Harness) Invoke(data []byte) (Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	opts := h.policy.Options()

	if h.policy.Exhausted() {
		runs, _ := h.policy.Record()
		glog.V(1).Infof("run budget exhausted, refusing run %d", runs)
		return Result{Verdict: BudgetExhausted, Input: data}, nil
	}

	input := data
	if opts.RandomInput {
		input = make([]byte, RandomInputSize)
		h.rnd.Read(input)
	}
	status, err := h.bridge.RunFromBytes(input)
	if err != nil {
		return Result{}, err
	}
	h.bridge.Coverage().Report(h.out)
	flush(h.out)

	res := Result{Status: status, Input: input}
	if status != 0 && !opts.ContinueOnError {
		h.bridge.DisplayUncoveredPoints()
		if opts.SaveErrors {
			if res.Saved, err = store.Persist(input, opts.ErrorsDir, ""); err != nil {
				h.policy.Record()
				return res, errors.Wrap(err, "failed to save failing input")
			}
		}
		h.policy.Record()
		glog.Errorf("%s simulator returned %d", BugTriggered, status)
		res.Verdict = Crash
		return res, nil
	}
	if status != 0 && opts.SaveErrors {
		if res.Saved, err = store.Persist(input, opts.ErrorsDir, ""); err != nil {
			h.policy.Record()
			return res, errors.Wrap(err, "failed to save failing input")
		}
	}
	runs, exhausted := h.policy.Record()
	if exhausted {
		h.bridge.DisplayUncoveredPoints()
		glog.Warningf("run budget exhausted after %d runs", runs)
		res.Verdict = BudgetExhausted
		return res, nil
	}
	res.Verdict = Ok
	return res, nil
}

func flush(w io.Writer) {
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			glog.Warningf("failed to flush output: %v", err)
		}
	}
}

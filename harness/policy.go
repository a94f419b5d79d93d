// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyInitialized is returned by a second Policy.Init.
var ErrAlreadyInitialized = errors.New("harness policy already initialized")

// DefaultErrorsDir receives failing inputs when SaveErrors is set.
const DefaultErrorsDir = "./errors"

// Options configure how failing runs and the run budget are handled.
type Options struct {
	// ContinueOnError keeps fuzzing after a non-zero simulator status.
	ContinueOnError bool
	// SaveErrors persists failing inputs to ErrorsDir.
	SaveErrors bool
	ErrorsDir  string
	// MaxRuns bounds the number of invocations; zero means unbounded.
	MaxRuns uint64
	// RandomInput replaces every input with RandomInputSize random bytes.
	RandomInput bool
	// ExtraArgs are passed through to the simulator after the workload.
	ExtraArgs []string
}

// Policy is the process-wide run configuration plus the run counter.
// It must be initialized exactly once before the first invocation.
type Policy struct {
	mu          sync.Mutex
	initialized bool
	opts        Options
	runs        uint64
}

// Init sets the options. Any later call fails with ErrAlreadyInitialized.
func (p *Policy) Init(opts Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if opts.ErrorsDir == "" {
		opts.ErrorsDir = DefaultErrorsDir
	}
	opts.ExtraArgs = append([]string{}, opts.ExtraArgs...)
	p.opts = opts
	p.initialized = true
	return nil
}

func (p *Policy) mustInit() {
	if !p.initialized {
		panic("harness: policy used before Init")
	}
}

// Options returns a copy of the configured options.
func (p *Policy) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustInit()
	opts := p.opts
	opts.ExtraArgs = append([]string{}, p.opts.ExtraArgs...)
	return opts
}

// Runs returns the number of invocations recorded so far.
func (p *Policy) Runs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// Exhausted reports whether the run budget is used up.
func (p *Policy) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustInit()
	return p.exhausted()
}

func (p *Policy) exhausted() bool {
	return p.opts.MaxRuns != 0 && p.runs >= p.opts.MaxRuns
}

// Record counts one invocation and reports whether the budget is now used up.
func (p *Policy) Record() (runs uint64, exhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustInit()
	p.runs++
	return p.runs, p.exhausted()
}

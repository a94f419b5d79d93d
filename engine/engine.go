// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package engine is a small coverage-guided fuzzing loop driving a
// harness.Harness: a queue scheduler, a havoc mutational stage, max-map
// coverage feedback and a crash objective.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/bradleyjkemp/simfuzz/harness"
	"github.com/bradleyjkemp/simfuzz/store"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const (
	// RandomCorpus as Config.CorpusInput generates the initial corpus.
	RandomCorpus = "random"

	// DefaultCrashesDir receives crashing and hanging inputs.
	DefaultCrashesDir = "./crashes"

	// DefaultTimeout bounds a single harness invocation.
	DefaultTimeout = 10 * time.Second

	seedCount   = 32
	seedMaxSize = 16384

	maxStageIters = 128

	syncPeriod = 3 * time.Second
)

// Config configures an Engine.
type Config struct {
	// CorpusInput is a directory whose files are all loaded as seeds, or
	// RandomCorpus (or empty) for generated seeds.
	CorpusInput string
	CrashesDir  string
	// MaxIters bounds the number of scheduled stages; zero means unbounded.
	MaxIters uint64
	// Timeout is the wall-clock bound of one invocation.
	Timeout time.Duration
	// Seed for the mutator; zero picks one from the clock.
	Seed int64
	// Out receives stats lines and crash reports.
	Out io.Writer
	// Exit terminates the process when a run hangs.
	Exit func(code int)
}

// Engine feeds mutated inputs to a harness.
type Engine struct {
	cfg     Config
	h       *harness.Harness
	mutator *Mutator
	rnd     *rand.Rand

	corpus   queue
	maxCover []byte
	crashers int
	execs    uint64

	startTime     time.Time
	lastInput     time.Time
	lastSync      time.Time
	coverFullness int

	// Guarded by runMu, read by the watchdog.
	runMu    sync.Mutex
	current  []byte
	runStart time.Time
}

// New returns an engine driving h.
func New(h *harness.Harness, cfg Config) *Engine {
	if cfg.CrashesDir == "" {
		cfg.CrashesDir = DefaultCrashesDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	r := rand.New(rand.NewSource(cfg.Seed))
	now := time.Now()
	return &Engine{
		cfg:       cfg,
		h:         h,
		mutator:   newMutator(r),
		rnd:       r,
		maxCover:  make([]byte, h.Bridge().Coverage().Len()),
		startTime: now,
		lastInput: now,
	}
}

// LoadInitial fills the corpus, either with every file of the corpus
// directory or with generated seeds. A terminating verdict stops loading.
func (e *Engine) LoadInitial(ctx context.Context) (harness.Verdict, error) {
	if e.cfg.CorpusInput == "" || e.cfg.CorpusInput == RandomCorpus {
		return e.generateSeeds(ctx)
	}
	inputs, err := readCorpusDir(e.cfg.CorpusInput)
	if err != nil {
		return harness.Ok, err
	}
	if len(inputs) == 0 {
		return harness.Ok, errors.Errorf("initial corpus at %s is empty", e.cfg.CorpusInput)
	}
	for _, data := range inputs {
		if ctx.Err() != nil {
			return harness.Ok, nil
		}
		v, err := e.execute(data, nil, true)
		if err != nil || v != harness.Ok {
			return v, err
		}
	}
	fmt.Fprintf(e.cfg.Out, "We imported %d inputs from disk.\n", e.corpus.len())
	return harness.Ok, nil
}

func (e *Engine) generateSeeds(ctx context.Context) (harness.Verdict, error) {
	var first []byte
	for i := 0; i < seedCount; i++ {
		if ctx.Err() != nil {
			return harness.Ok, nil
		}
		data := e.mutator.generate(seedMaxSize)
		if first == nil {
			first = data
		}
		v, err := e.execute(data, nil, false)
		if err != nil || v != harness.Ok {
			return v, err
		}
	}
	if e.corpus.len() == 0 && first != nil {
		// Nothing raised coverage; keep one seed so there is something to mutate.
		e.corpus.add(first, e.execs, nil)
	}
	fmt.Fprintf(e.cfg.Out, "We imported %d inputs from disk.\n", e.corpus.len())
	return harness.Ok, nil
}

// Loop runs mutational stages until MaxIters is reached, ctx is done or a
// run returns a terminating verdict.
func (e *Engine) Loop(ctx context.Context) (harness.Verdict, error) {
	if e.corpus.len() == 0 {
		return harness.Ok, errors.New("fuzzing with an empty corpus")
	}
	if e.cfg.MaxIters != 0 {
		fmt.Fprintf(e.cfg.Out, "Running the Fuzzer for %d iterations.\n", e.cfg.MaxIters)
	} else {
		fmt.Fprintf(e.cfg.Out, "Running the Fuzzer for unlimited iterations.\n")
	}
	for iter := uint64(0); e.cfg.MaxIters == 0 || iter < e.cfg.MaxIters; iter++ {
		if ctx.Err() != nil {
			return harness.Ok, nil
		}
		e.broadcastStats()
		tc := e.corpus.schedule()
		if glog.V(2) {
			glog.Infof("fuzzing corpus entry %d [%d]", tc.ID, len(tc.Data))
		}
		for n := 1 + e.rnd.Intn(maxStageIters); n > 0; n-- {
			data := e.mutator.mutate(tc.Data, e.corpus.entries)
			v, err := e.execute(data, tc, false)
			if err != nil || v != harness.Ok {
				return v, err
			}
		}
	}
	return harness.Ok, nil
}

// execute runs one input and adds it to the corpus when it raised coverage
// or force is set.
func (e *Engine) execute(data []byte, parent *Testcase, force bool) (harness.Verdict, error) {
	e.beginRun(data)
	res, err := e.h.Invoke(data)
	e.endRun()
	if err != nil {
		return harness.Ok, err
	}
	e.execs++
	switch res.Verdict {
	case harness.Crash:
		e.noteCrasher(res.Input, fmt.Sprintf("simulator returned %d", res.Status))
		return res.Verdict, nil
	case harness.BudgetExhausted:
		return res.Verdict, nil
	}
	interesting := false
	e.h.Bridge().Coverage().Observe(func(cover []byte) {
		if !compareCover(e.maxCover, cover) {
			return
		}
		interesting = true
		if n := updateMaxCover(e.maxCover, cover); n > e.coverFullness {
			e.coverFullness = n
		}
	})
	if interesting || force {
		tc := e.corpus.add(res.Input, e.execs, parent)
		e.lastInput = time.Now()
		if glog.V(1) {
			glog.Infof("new corpus entry %d [%d], cover %d", tc.ID, len(tc.Data), e.coverFullness)
		}
	}
	return harness.Ok, nil
}

func (e *Engine) beginRun(data []byte) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.current = data
	e.runStart = time.Now()
}

func (e *Engine) endRun() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.current = nil
}

// noteCrasher saves a crashing input and prints it quoted, 20 bytes per
// line, to simplify creation of standalone reproducers.
func (e *Engine) noteCrasher(data []byte, reason string) {
	e.crashers++
	path, err := store.Persist(data, e.cfg.CrashesDir, "")
	if err != nil {
		glog.Errorf("failed to save crasher: %v", err)
	}
	fmt.Fprintf(e.cfg.Out, "%s\ncrasher [%d] saved to %s (%s):\n%s",
		harness.BugTriggered, len(data), path, reason, quote(data))
}

func quote(data []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(data); i += 20 {
		e := i + 20
		if e > len(data) {
			e = len(data)
		}
		fmt.Fprintf(&buf, "\t%q", data[i:e])
		if e != len(data) {
			fmt.Fprintf(&buf, " +")
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.Bytes()
}

// Execs returns the number of completed invocations.
func (e *Engine) Execs() uint64 { return e.execs }

// Corpus returns the corpus entries in insertion order.
func (e *Engine) Corpus() []*Testcase {
	return append([]*Testcase{}, e.corpus.entries...)
}

// Records returns the corpus in export form.
func (e *Engine) Records() []store.Record {
	var records []store.Record
	for _, tc := range e.corpus.entries {
		records = append(records, tc.Record())
	}
	return records
}

// Export writes every corpus entry to dir, named by its ID.
func (e *Engine) Export(w io.Writer, dir string) error {
	return store.ExportCorpus(w, e.Records(), dir)
}

type stats struct {
	Corpus, CorpusBytes, Crashers, Execs uint64
	Cover                                int
	LastNewInputTime, StartTime          time.Time
	Uptime                               time.Duration
}

func (s stats) String() string {
	return fmt.Sprintf("corpus: %v/%v (%v ago), crashers: %v,"+
		" execs: %v (%.0f/sec), cover: %v, uptime: %v",
		s.Corpus, humanize.Bytes(s.CorpusBytes), time.Since(s.LastNewInputTime).Truncate(time.Second),
		s.Crashers, humanize.Comma(int64(s.Execs)), s.ExecsPerSec(), s.Cover,
		s.Uptime,
	)
}

func (s stats) ExecsPerSec() float64 {
	return float64(s.Execs) * 1e9 / float64(time.Since(s.StartTime))
}

func (e *Engine) stats() stats {
	return stats{
		Corpus:           uint64(e.corpus.len()),
		CorpusBytes:      e.corpus.size(),
		Crashers:         uint64(e.crashers),
		Execs:            e.execs,
		Cover:            e.coverFullness,
		LastNewInputTime: e.lastInput,
		StartTime:        e.startTime,
		Uptime:           time.Since(e.startTime).Truncate(time.Second),
	}
}

func (e *Engine) broadcastStats() {
	if time.Since(e.lastSync) < syncPeriod {
		return
	}
	e.lastSync = time.Now()
	fmt.Fprintln(e.cfg.Out, e.stats().String())
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command simfuzz runs workloads on an instrumented hardware simulator and
// fuzzes it with coverage feedback.
//
// Usage:
//
//	simfuzz [flags] [workload...] [simulator args...]
//
// Workloads are run first, --repeat times, followed by one coverage report.
// With -f the fuzzer starts afterwards. Arguments from the first one starting
// with "-" on are passed to the simulator on every run.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/bradleyjkemp/simfuzz/engine"
	"github.com/bradleyjkemp/simfuzz/harness"
	"github.com/bradleyjkemp/simfuzz/sim"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	o, err := parseArgs(args)
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing args: %s\n", err)
		return 1
	}
	setupLogging(o.Verbose)
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := mainImpl(ctx, o)
	if err != nil {
		glog.Errorf("%v", err)
		return 1
	}
	return code
}

func setupLogging(verbose bool) {
	// glog reads its configuration from the standard flag set.
	goflag.CommandLine.Parse(nil)
	goflag.Lookup("logtostderr").Value.Set("true")
	if verbose {
		goflag.Lookup("v").Value.Set("1")
	}
}

func mainImpl(ctx context.Context, o *options) (int, error) {
	s, err := sim.Open(o.simCommand, os.Stdout)
	if err != nil {
		return 1, errors.Wrap(err, "failed to open simulator")
	}
	closeSim := func() {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				glog.Warningf("failed to close simulator: %v", err)
			}
		}
	}
	defer closeSim()

	cover, err := harness.Configure(s, harness.SimConfig{
		CoverFeedback: o.Coverage,
		Verbose:       o.Verbose,
		MaxRuns:       o.MaxRuns,
	})
	if err != nil {
		return 1, err
	}
	bridge, err := harness.NewBridge(s, cover, o.emuArgs, os.Stdout)
	if err != nil {
		return 1, err
	}

	code := runWorkloads(bridge, o, os.Stdout)
	if code != 0 && o.AutoExit {
		return code, nil
	}
	if !o.Fuzzing {
		return code, nil
	}
	exit := func(code int) {
		glog.Flush()
		closeSim()
		os.Exit(code)
	}
	if fuzzCode, err := fuzz(ctx, bridge, o, exit); err != nil || fuzzCode != 0 {
		return fuzzCode, err
	}
	return code, nil
}

// runWorkloads runs the workloads given on the command line o.Repeat times
// and reports coverage. The result is 0 when every run succeeded and 1
// otherwise. With --auto-exit the first failing status is returned at once.
func runWorkloads(bridge *harness.Bridge, o *options, out io.Writer) int {
	if len(o.workloads) == 0 {
		return 0
	}
	for i := 0; i < o.Repeat; i++ {
		if ret := bridge.RunMany(o.workloads, o.AutoExit); ret != 0 && o.AutoExit {
			return ret
		}
	}
	bridge.Coverage().Report(out)
	if bridge.Failures() > 0 {
		return 1
	}
	return 0
}

func fuzz(ctx context.Context, bridge *harness.Bridge, o *options, exit func(int)) (int, error) {
	policy := &harness.Policy{}
	if err := policy.Init(harness.Options{
		ContinueOnError: o.ContinueOnErrors,
		SaveErrors:      o.SaveErrors,
		ErrorsDir:       o.ErrorsDir,
		MaxRuns:         o.MaxRuns,
		RandomInput:     o.RandomInput,
		ExtraArgs:       o.emuArgs,
	}); err != nil {
		return 1, err
	}
	h := harness.New(bridge, policy, os.Stdout)
	eng := engine.New(h, engine.Config{
		CorpusInput: o.CorpusInput,
		CrashesDir:  o.CrashesDir,
		MaxIters:    o.MaxIters,
		Timeout:     time.Duration(o.MaxRunTimeout) * time.Second,
		Out:         os.Stdout,
		Exit:        exit,
	})

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.Watch(watchCtx)

	v, err := eng.LoadInitial(ctx)
	if err != nil {
		return 1, err
	}
	if v == harness.Ok {
		if o.RandomInput {
			fmt.Println("We are using random input bytes")
		}
		if v, err = eng.Loop(ctx); err != nil {
			return 1, err
		}
	}
	glog.Infof("fuzzing stopped (%v) after %d runs, %d completed", v, policy.Runs(), eng.Execs())
	if v != harness.Ok {
		return 1, nil
	}
	if o.CorpusOutput != "" {
		if err := eng.Export(os.Stdout, o.CorpusOutput); err != nil {
			return 1, errors.Wrap(err, "failed to export corpus")
		}
	}
	return 0, nil
}

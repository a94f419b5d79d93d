// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/bradleyjkemp/simfuzz/engine"
	"github.com/bradleyjkemp/simfuzz/harness"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// options are the command line options. A --config file supplies defaults
// using the same names with underscores.
type options struct {
	Fuzzing          bool   `yaml:"fuzzing"`
	Coverage         string `yaml:"coverage"`
	Verbose          bool   `yaml:"verbose"`
	MaxIters         uint64 `yaml:"max_iters"`
	MaxRuns          uint64 `yaml:"max_runs"`
	MaxRunTimeout    uint64 `yaml:"max_run_timeout"`
	RandomInput      bool   `yaml:"random_input"`
	CorpusInput      string `yaml:"corpus_input"`
	CorpusOutput     string `yaml:"corpus_output"`
	ContinueOnErrors bool   `yaml:"continue_on_errors"`
	SaveErrors       bool   `yaml:"save_errors"`
	ErrorsDir        string `yaml:"errors_dir"`
	CrashesDir       string `yaml:"crashes_dir"`
	Repeat           int    `yaml:"repeat"`
	AutoExit         bool   `yaml:"auto_exit"`
	SimCmd           string `yaml:"sim_cmd"`

	config     string
	simCommand []string
	workloads  []string
	emuArgs    []string
}

func defaultOptions() *options {
	return &options{
		Coverage:      "instr-imm",
		MaxRunTimeout: uint64(engine.DefaultTimeout.Seconds()),
		CorpusInput:   "./corpus",
		ErrorsDir:     harness.DefaultErrorsDir,
		CrashesDir:    engine.DefaultCrashesDir,
		Repeat:        1,
	}
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("simfuzz", flag.ContinueOnError)
	// Everything after the first workload belongs to the workload list or the simulator.
	fs.SetInterspersed(false)
	fs.BoolVarP(&o.Fuzzing, "fuzzing", "f", o.Fuzzing, "run the fuzzer")
	fs.StringVarP(&o.Coverage, "coverage", "c", o.Coverage, "coverage feedback mode of the simulator")
	fs.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "verbose simulator and fuzzer logging")
	fs.Uint64Var(&o.MaxIters, "max-iters", o.MaxIters, "number of fuzzing iterations (0: unlimited)")
	fs.Uint64Var(&o.MaxRuns, "max-runs", o.MaxRuns, "number of simulator runs (0: unlimited)")
	fs.Uint64Var(&o.MaxRunTimeout, "max-run-timeout", o.MaxRunTimeout, "seconds a single run may take")
	fs.BoolVar(&o.RandomInput, "random-input", o.RandomInput, "ignore the fuzzer's inputs and run random bytes")
	fs.StringVar(&o.CorpusInput, "corpus-input", o.CorpusInput, `initial corpus directory, or "random" for generated seeds`)
	fs.StringVar(&o.CorpusOutput, "corpus-output", o.CorpusOutput, "directory to export the corpus to when fuzzing ends")
	fs.BoolVar(&o.ContinueOnErrors, "continue-on-errors", o.ContinueOnErrors, "keep fuzzing when the simulator fails")
	fs.BoolVar(&o.SaveErrors, "save-errors", o.SaveErrors, "save inputs the simulator fails on")
	fs.StringVar(&o.ErrorsDir, "errors-dir", o.ErrorsDir, "directory for --save-errors")
	fs.StringVar(&o.CrashesDir, "crashes-dir", o.CrashesDir, "directory for crashing and hanging inputs")
	fs.IntVar(&o.Repeat, "repeat", o.Repeat, "number of passes over the workloads")
	fs.BoolVar(&o.AutoExit, "auto-exit", o.AutoExit, "stop at the first failing workload")
	fs.StringVar(&o.SimCmd, "sim-cmd", o.SimCmd, "run this simulator command per workload instead of the linked library")
	fs.StringVar(&o.config, "config", o.config, "YAML file with default options")
	return fs
}

// parseArgs parses args twice: once to find --config, then again over the
// defaults it provides so that explicit flags win.
func parseArgs(args []string) (*options, error) {
	probe := defaultOptions()
	if err := newFlagSet(probe).Parse(args); err != nil {
		return nil, err
	}
	o := defaultOptions()
	if probe.config != "" {
		if err := loadConfig(probe.config, o); err != nil {
			return nil, err
		}
	}
	fs := newFlagSet(o)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.Repeat < 0 {
		return nil, errors.Errorf("bad --repeat %d", o.Repeat)
	}
	if o.MaxRunTimeout == 0 {
		return nil, errors.New("--max-run-timeout must be positive")
	}
	if o.SimCmd != "" {
		cmd, err := shlex.Split(o.SimCmd)
		if err != nil {
			return nil, errors.Wrapf(err, "bad --sim-cmd %q", o.SimCmd)
		}
		o.simCommand = cmd
	}
	o.workloads, o.emuArgs = splitExtraArgs(fs.Args())
	return o, nil
}

func loadConfig(path string, o *options) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config")
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	if err := yaml.UnmarshalStrict(b, o); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}

// splitExtraArgs splits positional arguments into workloads and simulator
// arguments at the first token starting with "-".
func splitExtraArgs(args []string) (workloads, emuArgs []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

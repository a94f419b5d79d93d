// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/maruel/panicparse/v2/stack"
)

const invokeFunc = "(*Harness).Invoke"

// Watch terminates the process through Config.Exit when one invocation runs
// longer than Config.Timeout. The hanging input is saved as a crasher first.
// Watch returns when ctx is done or after a hang was reported.
func (e *Engine) Watch(ctx context.Context) {
	period := time.Second
	if e.cfg.Timeout/4 < period {
		period = e.cfg.Timeout / 4
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		data, elapsed, ok := e.inFlight()
		if !ok || elapsed <= e.cfg.Timeout {
			continue
		}
		fmt.Fprintf(e.cfg.Out, "Input causes hang: %s\n", strconv.Quote(string(data)))
		b := &bytes.Buffer{}
		pprof.Lookup("goroutine").WriteTo(b, 2)
		glog.Errorf("run exceeded %v in:%s", e.cfg.Timeout, hangSignature(b.Bytes()))
		e.noteCrasher(data, fmt.Sprintf("hang after %v", elapsed.Truncate(time.Millisecond)))
		e.cfg.Exit(1)
		return
	}
}

func (e *Engine) inFlight() (data []byte, elapsed time.Duration, ok bool) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.current == nil {
		return nil, 0, false
	}
	return makeCopy(e.current), time.Since(e.runStart), true
}

// hangSignature condenses the goroutine running the harness into its
// innermost source line followed by the functions down to the invocation.
func hangSignature(dump []byte) string {
	snap, _, err := stack.ScanSnapshot(bytes.NewReader(dump), ioutil.Discard, stack.DefaultOpts())
	if (err != nil && err != io.EOF) || snap == nil {
		return "\n" + string(dump)
	}
	for _, gr := range snap.Goroutines {
		calls := gr.Stack.Calls
		if !inInvoke(calls) {
			continue
		}
		var sig strings.Builder
		fmt.Fprintf(&sig, "\n%s:%d", calls[0].RemoteSrcPath, calls[0].Line)
		for _, c := range calls {
			sig.WriteString("\n" + c.Func.DirName + "." + c.Func.Name)
			if isInvoke(c) {
				break
			}
		}
		return sig.String()
	}
	return "\n" + string(dump)
}

func isInvoke(c stack.Call) bool {
	return strings.HasSuffix(c.Func.Complete, invokeFunc)
}

func inInvoke(calls []stack.Call) bool {
	for _, c := range calls {
		if isInvoke(c) {
			return true
		}
	}
	return false
}

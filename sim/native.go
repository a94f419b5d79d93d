// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build cgo && simlib

package sim

/*
#cgo LDFLAGS: -lemu

#include <stdlib.h>

int sim_main(int argc, char **argv);
unsigned int get_cover_number(void);
void update_stats(char *bitmap);
void display_uncovered_points(void);
void set_max_runs(unsigned long long n_runs);
void set_cover_feedback(const char *name);
void enable_sim_verbose(void);
void disable_sim_verbose(void);
*/
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/bradleyjkemp/simfuzz/coverage"
)

// Native calls into a simulator library linked into this binary.
// The library keeps global state, so there is at most one Native per process.
type Native struct{}

func openNative() (Simulator, error) {
	return Native{}, nil
}

func (Native) CoverNumber() int {
	return int(C.get_cover_number())
}

func (Native) Main(argv []string) int {
	cargv := make([]*C.char, len(argv)+1)
	for i, a := range argv {
		cargv[i] = C.CString(a)
	}
	defer func() {
		for _, p := range cargv[:len(argv)] {
			C.free(unsafe.Pointer(p))
		}
	}()
	// cargv holds only C pointers, so it may be passed to C directly.
	return int(C.sim_main(C.int(len(argv)), &cargv[0]))
}

func (Native) UpdateStats(v coverage.View) {
	C.update_stats((*C.char)(v.Pointer()))
}

func (Native) DisplayUncoveredPoints() {
	C.display_uncovered_points()
}

func (Native) SetCoverFeedback(name string) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.set_cover_feedback(cname)
}

func (Native) SetVerbose(on bool) {
	if on {
		C.enable_sim_verbose()
	} else {
		C.disable_sim_verbose()
	}
}

func (Native) SetMaxRuns(n uint64) {
	C.set_max_runs(C.ulonglong(n))
}

// Stage pins data and names it by address, so the simulator reads the
// caller's buffer in place.
func (Native) Stage(data []byte) (string, func(), error) {
	if len(data) == 0 {
		return MemoryRef(0, 0), func() {}, nil
	}
	var pinner runtime.Pinner
	pinner.Pin(&data[0])
	return MemoryRef(uintptr(unsafe.Pointer(&data[0])), len(data)), pinner.Unpin, nil
}

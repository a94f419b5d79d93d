// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	wimPrefix = "wim@"
	sharedTag = "shm"
)

// MemoryRef names n bytes at addr in the simulator's own address space.
func MemoryRef(addr uintptr, n int) string {
	return fmt.Sprintf("%s%#x+%#x", wimPrefix, addr, n)
}

// SharedRef names the first n bytes of the comm file input region.
func SharedRef(n int) string {
	return fmt.Sprintf("%s%s+%#x", wimPrefix, sharedTag, n)
}

// Workload is a parsed workload reference.
type Workload struct {
	// Path is set for workloads stored on disk.
	Path string
	// InMemory is set for wim@ references.
	InMemory bool
	// Shared is set when the bytes live in the comm file input region.
	Shared bool
	Addr   uintptr
	Len    int
}

// ParseWorkload parses a reference produced by MemoryRef or SharedRef.
// Any other string is a file path.
func ParseWorkload(ref string) (Workload, error) {
	if !strings.HasPrefix(ref, wimPrefix) {
		return Workload{Path: ref}, nil
	}
	body := ref[len(wimPrefix):]
	plus := strings.LastIndexByte(body, '+')
	if plus < 0 {
		return Workload{}, errors.Errorf("malformed workload reference %q: missing length", ref)
	}
	w := Workload{InMemory: true}
	n, err := strconv.ParseUint(body[plus+1:], 0, 63)
	if err != nil {
		return Workload{}, errors.Wrapf(err, "malformed workload reference %q", ref)
	}
	w.Len = int(n)
	addr := body[:plus]
	if addr == sharedTag {
		w.Shared = true
		return w, nil
	}
	a, err := strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return Workload{}, errors.Wrapf(err, "malformed workload reference %q", ref)
	}
	w.Addr = uintptr(a)
	return w, nil
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build darwin || linux || freebsd || dragonfly || openbsd || netbsd

package sim

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

type mapping struct {
	f   *os.File
	mem []byte
}

func createMapping(name string, size int) (*mapping, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open comm file")
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to mmap comm file")
	}
	return &mapping{f: f, mem: mem}, nil
}

func (m *mapping) destroy() error {
	return multierr.Combine(unix.Munmap(m.mem), m.f.Close())
}

// setupCommMapping hands the comm file to the child as fd 3.
func setupCommMapping(cmd *exec.Cmd, comm *mapping) {
	cmd.ExtraFiles = append(cmd.ExtraFiles, comm.f)
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package store writes testcases to disk as raw, extension-less files.
package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Record is a corpus entry as tracked by the fuzzing engine.
type Record struct {
	// ID names the file the content is exported to.
	ID         string
	Data       []byte
	Executions uint64
	Scheduled  uint64
	// ParentID is empty for seeds.
	ParentID string
}

// Digest returns the hex MD5 of data, used as the default testcase name.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Persist writes data to dir/name, creating dir as needed. An empty name
// selects Digest(data), so identical content always lands in the same file.
// It returns the path written.
func Persist(data []byte, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "unable to create the output directory %s", dir)
	}
	if name == "" {
		name = Digest(data)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s failed", name)
	}
	return path, nil
}

// ExportCorpus prints one metadata line per record and persists it under its ID.
// Every record is attempted; the failures are returned together.
func ExportCorpus(w io.Writer, records []Record, dir string) error {
	fmt.Fprintf(w, "Total corpus count: %d\n", len(records))
	var errs error
	for _, r := range records {
		parent := r.ParentID
		if parent == "" {
			parent = "-1"
		}
		fmt.Fprintf(w, "Corpus %s: executions %d, scheduled_count %d, parent_id %s\n",
			r.ID, r.Executions, r.Scheduled, parent)
		if _, err := Persist(r.Data, dir, r.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

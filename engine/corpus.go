// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/bradleyjkemp/simfuzz/store"
	"github.com/pkg/errors"
)

// Testcase is a corpus entry.
type Testcase struct {
	ID   int
	Data []byte
	// Executions is the engine's execution count when the entry was added.
	Executions uint64
	// Scheduled counts how often the entry was picked for mutation.
	Scheduled uint64
	// Parent is the entry this one was mutated from, nil for seeds.
	Parent *Testcase
}

// Record converts tc for export.
func (tc *Testcase) Record() store.Record {
	r := store.Record{
		ID:         strconv.Itoa(tc.ID),
		Data:       tc.Data,
		Executions: tc.Executions,
		Scheduled:  tc.Scheduled,
	}
	if tc.Parent != nil {
		r.ParentID = strconv.Itoa(tc.Parent.ID)
	}
	return r
}

// queue hands out corpus entries in insertion order, wrapping around.
type queue struct {
	entries []*Testcase
	next    int
}

func (q *queue) add(data []byte, execs uint64, parent *Testcase) *Testcase {
	tc := &Testcase{
		ID:         len(q.entries),
		Data:       makeCopy(data),
		Executions: execs,
		Parent:     parent,
	}
	q.entries = append(q.entries, tc)
	return tc
}

func (q *queue) len() int { return len(q.entries) }

func (q *queue) schedule() *Testcase {
	if q.next >= len(q.entries) {
		q.next = 0
	}
	tc := q.entries[q.next]
	q.next++
	tc.Scheduled++
	return tc
}

func (q *queue) size() uint64 {
	var n uint64
	for _, tc := range q.entries {
		n += uint64(len(tc.Data))
	}
	return n
}

// readCorpusDir returns the contents of every regular file in dir in name order.
func readCorpusDir(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read initial corpus at %s", dir)
	}
	var inputs [][]byte
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read initial input %s", e.Name())
		}
		inputs = append(inputs, data)
	}
	return inputs, nil
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"github.com/golang/glog"
)

func makeCopy(data []byte) []byte {
	return append([]byte{}, data...)
}

// compareCover reports whether cur has a higher value than base anywhere.
func compareCover(base, cur []byte) bool {
	if len(base) != len(cur) {
		glog.Fatalf("bad cover table size (%v, %v)", len(base), len(cur))
	}
	for i, v := range base {
		if cur[i] > v {
			return true
		}
	}
	return false
}

// updateMaxCover raises base to cur element-wise and returns the number of
// non-zero positions in the result.
func updateMaxCover(base, cur []byte) int {
	if len(base) != len(cur) {
		glog.Fatalf("bad cover table size (%v, %v)", len(base), len(cur))
	}
	cnt := 0
	for i, x := range cur {
		v := base[i]
		if v != 0 || x > 0 {
			cnt++
		}
		if v < x {
			base[i] = x
		}
	}
	return cnt
}

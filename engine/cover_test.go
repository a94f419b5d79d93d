// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompareCover(t *testing.T) {
	tests := []struct {
		base, cur []byte
		want      bool
	}{
		{[]byte{0, 0, 0}, []byte{0, 0, 0}, false},
		{[]byte{0, 0, 0}, []byte{0, 1, 0}, true},
		{[]byte{1, 1, 0}, []byte{1, 0, 0}, false},
		{[]byte{1, 1, 0}, []byte{1, 1, 1}, true},
	}
	for _, tt := range tests {
		if got := compareCover(tt.base, tt.cur); got != tt.want {
			t.Errorf("compareCover(%v, %v) = %v, want %v", tt.base, tt.cur, got, tt.want)
		}
	}
}

func TestUpdateMaxCover(t *testing.T) {
	base := []byte{0, 3, 0, 1}
	if got := updateMaxCover(base, []byte{2, 1, 0, 0}); got != 3 {
		t.Errorf("updateMaxCover returned %d, want 3", got)
	}
	if diff := cmp.Diff([]byte{2, 3, 0, 1}, base); diff != "" {
		t.Errorf("unexpected max cover (-want +got):\n%s", diff)
	}
}

func TestHangSignatureFallsBackToDump(t *testing.T) {
	dump := "not a goroutine dump"
	if got := hangSignature([]byte(dump)); !strings.Contains(got, dump) {
		t.Errorf("hangSignature = %q, want the raw dump", got)
	}
}

// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !cgo || !simlib

package sim

import "github.com/pkg/errors"

func openNative() (Simulator, error) {
	return nil, errors.New("built without the native simulator (rebuild with -tags simlib) and no simulator command given")
}

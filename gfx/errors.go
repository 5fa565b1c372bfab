// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by waits that exceed their deadline.
var ErrTimeout = errors.New("gfx: wait timed out")

// NativeError is a failed native call. Code preserves the native result code.
type NativeError struct {
	Op   string
	Code int32
	Msg  string
}

func (e *NativeError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: native error code %d", e.Op, e.Code)
}

// NewNativeError returns a NativeError for op failing with code.
func NewNativeError(op string, code int32, msg string) error {
	return &NativeError{Op: op, Code: code, Msg: msg}
}

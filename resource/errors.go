// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"fmt"

	"github.com/devblok/framegraph/gfx"
	"github.com/pkg/errors"
)

// Errors reported by the resource manager and its adapters.
var (
	ErrUnknownResource        = errors.New("unknown resource")
	ErrDependencyNotFound     = errors.New("dependency not found")
	ErrDependencyCycle        = errors.New("dependency cycle")
	ErrKindMismatch           = errors.New("resource kind mismatch")
	ErrDuplicateResource      = errors.New("duplicate resource")
	ErrBackendCreationFailure = errors.New("backend creation failure")
	ErrLifecycleViolation     = errors.New("resource used outside of its lifetime")
)

// DependencyError is returned when a dependency of a resource could not
// be resolved. It matches ErrDependencyNotFound and unwraps to the cause.
type DependencyError struct {
	ID         ID
	Dependency ID
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("resource %q: %s %q: %v", e.ID, ErrDependencyNotFound, e.Dependency, e.Err)
}

// Is implements errors.Is.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyNotFound
}

// Unwrap returns the cause.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// CreationError is returned when the driver failed to create a native
// object. It matches ErrBackendCreationFailure.
type CreationError struct {
	ID   ID
	Kind Kind
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("%s %q: %s: %v", e.Kind, e.ID, ErrBackendCreationFailure, e.Err)
}

// Is implements errors.Is.
func (e *CreationError) Is(target error) bool {
	return target == ErrBackendCreationFailure
}

// Unwrap returns the cause.
func (e *CreationError) Unwrap() error {
	return e.Err
}

// NativeCode returns the native result code of the failure, if any.
func (e *CreationError) NativeCode() (int32, bool) {
	var native *gfx.NativeError
	if errors.As(e.Err, &native) {
		return native.Code, true
	}
	return 0, false
}

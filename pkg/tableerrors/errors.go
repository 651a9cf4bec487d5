// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tableerrors implements the error taxonomy of the cleanup core
// (see spec §7 Error Handling Design): transient per-file failures are
// counted, never raised; a protection-gate denial ends a run cleanly with
// no error; and only two kinds of Go error ever leave the core —
// StorageUnavailable for fatal object-store failures and InternalError
// for programmer mistakes that should never happen at runtime.
package tableerrors

import (
	"errors"
	"fmt"
)

// Kind identifies which of the two surfaced error kinds an error is.
type Kind int

const (
	// KindStorageUnavailable covers fatal I/O: listing failure, auth
	// failure, an unreachable object store. Propagated to the caller.
	KindStorageUnavailable Kind = iota

	// KindInternalError covers programmer errors, such as calling
	// VersionOf on a path that was never classified as versioned.
	// Never expected at runtime.
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "StorageUnavailable"
	case KindInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// TableError wraps a failure with the taxonomy kind, the operation that
// failed, and the underlying cause.
//
// # Example
//
//	err := tableerrors.New(tableerrors.KindStorageUnavailable, "list log directory", cause)
//	if errors.Is(err, tableerrors.ErrStorageUnavailable) { ... }
type TableError struct {
	Kind    Kind
	Op      string
	Wrapped error
}

func (e *TableError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *TableError) Unwrap() error { return e.Wrapped }

// Is reports whether target is the sentinel matching this error's Kind,
// so callers can use errors.Is(err, tableerrors.ErrStorageUnavailable).
func (e *TableError) Is(target error) bool {
	switch e.Kind {
	case KindStorageUnavailable:
		return target == ErrStorageUnavailable
	case KindInternalError:
		return target == ErrInternalError
	}
	return false
}

var _ error = (*TableError)(nil)

// Sentinels for errors.Is matching.
var (
	ErrStorageUnavailable = errors.New("tableerrors: storage unavailable")
	ErrInternalError      = errors.New("tableerrors: internal error")
)

// New wraps cause as a TableError of the given kind and operation name.
func New(kind Kind, op string, cause error) *TableError {
	return &TableError{Kind: kind, Op: op, Wrapped: cause}
}

// StorageUnavailable is a convenience constructor for fatal I/O failures.
func StorageUnavailable(op string, cause error) *TableError {
	return New(KindStorageUnavailable, op, cause)
}

// Internal is a convenience constructor for programmer errors.
func Internal(op string, cause error) *TableError {
	return New(KindInternalError, op, cause)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the errors returned by the array constructors, generators and dispatchers.
type Kind int

const (
	// ShapeMismatch is a wrong number of elements or an incompatible axis.
	ShapeMismatch Kind = iota + 1

	// UnsupportedDtype is a target type lacking the capability required by an operation.
	UnsupportedDtype

	// BroadcastFailure is a scalar or element that could not be converted to the target kind.
	BroadcastFailure

	// InefficientImportRefused is an element-by-element import between two dynamically sized JIT arrays.
	InefficientImportRefused

	// ItemAccessFailure is a failed read or write of an element.
	ItemAccessFailure

	// TypeIncompatible is a structural mismatch between results of different branches of a call, or an
	// argument of the wrong kind.
	TypeIncompatible

	// HostCallError wraps an error (or panic) raised by a user callback.
	HostCallError
)

var kindNames = map[Kind]string{
	ShapeMismatch:            "ShapeMismatch",
	UnsupportedDtype:         "UnsupportedDtype",
	BroadcastFailure:         "BroadcastFailure",
	InefficientImportRefused: "InefficientImportRefused",
	ItemAccessFailure:        "ItemAccessFailure",
	TypeIncompatible:         "TypeIncompatible",
	HostCallError:            "HostCallError",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the error type returned for failures of a known Kind. It may wrap the error that caused it.
//
// Use errors.Is with the sentinel values (ErrShapeMismatch, ...) to test for a kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

// Sentinels for errors.Is.
var (
	ErrShapeMismatch            = &Error{Kind: ShapeMismatch}
	ErrUnsupportedDtype         = &Error{Kind: UnsupportedDtype}
	ErrBroadcastFailure         = &Error{Kind: BroadcastFailure}
	ErrInefficientImportRefused = &Error{Kind: InefficientImportRefused}
	ErrItemAccessFailure        = &Error{Kind: ItemAccessFailure}
	ErrTypeIncompatible         = &Error{Kind: TypeIncompatible}
	ErrHostCallError            = &Error{Kind: HostCallError}
)

// Error implements error.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause of the error, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors (without a message) of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Cause == nil && t.Kind == e.Kind
}

// Errorf creates an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrapf creates an Error of the given kind caused by err. It returns nil if err is nil.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: err}
}

// KindOf returns the kind of the outermost Error in err's chain, or 0 if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

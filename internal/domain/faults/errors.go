// Package faults defines the error taxonomy of the extension runtime.
//
// Every failure that crosses a component boundary is classified by Kind.
// A Kind is itself an error, so callers test classification with
// errors.Is(err, faults.Timeout) regardless of how deeply the cause is wrapped.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime failure
type Kind string

const (
	FetchFailure      Kind = "FetchFailure"
	PermissionDenied  Kind = "PermissionDenied"
	ActivationTimeout Kind = "ActivationTimeout"
	RuntimeFault      Kind = "RuntimeFault"
	ProtocolViolation Kind = "ProtocolViolation"
	InvalidArgument   Kind = "InvalidArgument"
	Disposed          Kind = "Disposed"
	Timeout           Kind = "Timeout"
)

// Error implements error so a Kind can be used as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Terminal reports whether the kind moves an extension into the error state.
func (k Kind) Terminal() bool {
	switch k {
	case FetchFailure, ActivationTimeout, RuntimeFault:
		return true
	default:
		return false
	}
}

// Error is a classified failure attached to an extension and operation.
type Error struct {
	Kind  Kind
	ExtID string
	Op    string
	Err   error
}

// New creates a classified error.
func New(kind Kind, extID, op string, err error) *Error {
	return &Error{Kind: kind, ExtID: extID, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, extID, op, format string, args ...interface{}) *Error {
	return New(kind, extID, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.ExtID != "" {
		msg += " (" + e.ExtID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a Kind target. InvalidArgument also matches ProtocolViolation.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		return false
	}
	if k == e.Kind {
		return true
	}
	return k == ProtocolViolation && e.Kind == InvalidArgument
}

// KindOf returns the classification of err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return "", false
}

// Detail is the wire projection of an error carried inside reply envelopes.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToDetail converts any error into a Detail. Unclassified errors are
// reported as RuntimeFault, the host's catch-all for collaborator failures.
func ToDetail(err error) *Detail {
	if err == nil {
		return nil
	}
	kind, ok := KindOf(err)
	if !ok {
		kind = RuntimeFault
	}
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	return &Detail{Code: string(kind), Message: msg}
}

// FromDetail rebuilds a classified error from its wire projection.
func FromDetail(extID, op string, d Detail) *Error {
	return New(Kind(d.Code), extID, op, errors.New(d.Message))
}

// Package errors defines the error-kind taxonomy surfaced to callers of the
// remoting runtime and wraps underlying failures with a stack trace captured
// at the point of origin.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies one of the error categories named in the remoting spec.
type Kind string

const (
	NoSuchServant        Kind = "NoSuchServant"
	NotConnected         Kind = "NotConnected"
	ConnectionLost       Kind = "ConnectionLost"
	HandshakeFailure     Kind = "HandshakeFailure"
	UnserializableError  Kind = "UnserializableException"
	RemoteException      Kind = "RemoteException"
	DuplicateID          Kind = "DuplicateId"
	ReadFailure          Kind = "ReadFailure"
	RpcInvalidResponse   Kind = "RpcInvalidResponse"
	RequestedByEndPoint  Kind = "RequestedByEndPoint"
	RequestedByRemoteEnd Kind = "RequestedByRemoteEndPoint"
	UnhandledException   Kind = "UnhandledException"
)

// AppError is the runtime's error type: a stable Kind plus a human message,
// optionally wrapping an underlying cause whose stack is preserved.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, New(kind, "")) match any AppError of the same Kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an AppError whose cause is a fresh pkg/errors error carrying
// message, so a stack trace is captured at this call.
func New(kind Kind, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     pkgerrors.New(message),
	}
}

// Wrap creates an AppError tagging err with kind, preserving err's stack (or
// capturing one now if err doesn't carry one already).
func Wrap(kind Kind, message string, err error) *AppError {
	if err == nil {
		return New(kind, message)
	}
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     pkgerrors.Wrap(err, message),
	}
}

// Cause returns the deepest wrapped error, following pkg/errors' Causer chain.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// OfKind reports whether err (or anything it wraps) is an AppError of kind.
func OfKind(err error, kind Kind) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			if ae.Kind == kind {
				return true
			}
			err = ae.Err
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Package errors provides error handling for qq-farm-runtime.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Sentinel errors for the gateway and runtime layers
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrDisconnected) {
//	    // reconnect
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf

	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors shared across the runtime. Use these with errors.Is()
// and wrap them with errors.Wrap() to add context while preserving type.
var (
	// ErrDisconnected indicates the gateway connection is gone. Pending
	// calls fail with this when the session stops or the socket drops.
	ErrDisconnected = New("websocket disconnected")

	// ErrTimeout indicates an RPC did not receive its reply in time.
	ErrTimeout = New("request timeout")

	// ErrNotRunning indicates the addressed account has no live runtime.
	ErrNotRunning = New("account not running")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = New("not found")

	// ErrInvalidArgument indicates caller-supplied input was rejected.
	ErrInvalidArgument = New("invalid argument")

	// ErrAlreadyBound indicates the game account is bound to another user.
	ErrAlreadyBound = New("account already bound")

	// ErrRateLimited indicates the rate limiter refused the operation.
	ErrRateLimited = New("rate limited")

	// ErrInternal marks unclassified failures, such as recovered panics.
	ErrInternal = New("internal error")
)

// RemoteError is a non-zero errorCode carried in a gateway reply frame.
type RemoteError struct {
	Service string
	Method  string
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s.%s error=%d %s", e.Service, e.Method, e.Code, e.Message)
}

// NewRemote builds a RemoteError for a failed gateway reply.
func NewRemote(service, method string, code int32, message string) error {
	return WithStack(&RemoteError{Service: service, Method: method, Code: code, Message: message})
}

// IsRemote reports whether err carries a gateway error code, and returns it.
func IsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if err != nil && As(err, &re) {
		return re, true
	}
	return nil, false
}

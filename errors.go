//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package reactor

import (
	"errors"
	"fmt"

	"github.com/nexoreactor/reactor/internal/registry"
)

// ErrKind classifies the failure a handle operation can report, so callers
// can branch on category without string-matching an error message.
type ErrKind int

// Recognised error kinds.
const (
	// ErrKindOther is any OS error not covered by a more specific kind.
	ErrKindOther ErrKind = iota
	// ErrKindTimeout means the operation's deadline fired before its event did.
	ErrKindTimeout
	// ErrKindClosed means the handle was closed while the operation was pending.
	ErrKindClosed
	// ErrKindEOF means a byte-stream read observed end-of-stream (zero bytes).
	ErrKindEOF
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindTimeout:
		return "timeout"
	case ErrKindClosed:
		return "closed"
	case ErrKindEOF:
		return "eof"
	default:
		return "other"
	}
}

// Error wraps an operation failure with the handle it occurred on, the
// name of the failing operation, the underlying OS/registry error, and its
// ErrKind classification. Grounded on tcplistener.go's netError in the
// teacher, generalized to cover every adapter instead of just accept.
type Error struct {
	Kind ErrKind
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("reactor: %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("reactor: %s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the error is a deadline expiration, satisfying
// the conventional net.Error interface.
func (e *Error) Timeout() bool { return e.Kind == ErrKindTimeout }

// Temporary reports whether a retry of the same operation might succeed.
// Only a timeout is considered temporary; satisfies net.Error.
func (e *Error) Temporary() bool { return e.Kind == ErrKindTimeout }

// newError classifies err (as produced by the registry or a raw syscall)
// into an *Error tagged with op.
func newError(op, addr string, err error) *Error {
	if err == nil {
		return nil
	}
	kind := ErrKindOther
	switch {
	case errors.Is(err, registry.ErrTimeout):
		kind = ErrKindTimeout
	case errors.Is(err, registry.ErrClosed):
		kind = ErrKindClosed
	case errors.Is(err, errEOF):
		kind = ErrKindEOF
	}
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}

// errEOF is the sentinel a byte-stream read uses internally to signal
// end-of-stream before it is classified into an *Error by newError.
var errEOF = errors.New("reactor: end of stream")

// asError calls newError and returns a bare nil error (not a nil *Error in
// an error interface) when err is nil, avoiding the classic typed-nil
// interface trap at every adapter call site.
func asError(op, addr string, err error) error {
	e := newError(op, addr, err)
	if e == nil {
		return nil
	}
	return e
}

// UnexpectedEOF wraps a zero-byte, error-free read result as an
// ErrKindEOF *Error, for callers that want "fewer bytes than expected" to
// be an error rather than a sentinel n==0 they check by hand. Whether to
// treat end-of-stream this way is the caller's discretion; the read
// operations themselves never return it unprompted.
func UnexpectedEOF(op, addr string) error {
	return newError(op, addr, errEOF)
}

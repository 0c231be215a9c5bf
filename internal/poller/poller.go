// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package poller wraps the host operating system's I/O multiplexer (epoll,
// kqueue or IOCP) behind one interface that reports readiness or completion
// events for a set of event keys. It knows nothing about continuations,
// pending/completed bookkeeping, or timeouts: that is the registry's job.
package poller

import (
	"fmt"
	"net"
	"time"
)

// Handle is an opaque OS descriptor: a file descriptor on Unix, a
// HANDLE/SOCKET value on Windows. The poller treats it as a bare key and
// does not own the underlying resource.
type Handle uintptr

// Op names the kind of operation an event key is interested in. Readiness
// backends only ever produce Read/Write; completion backends additionally
// produce Connect/Accept/RecvFrom/SendTo, matching the event-name set of
// the data model.
type Op int

// Recognised operation kinds.
const (
	OpRead Op = iota
	OpWrite
	OpConnect
	OpAccept
	OpRecvFrom
	OpSendTo

	// opHup is not a real interest a caller ever arms; readiness backends
	// synthesize it to report a hangup/error condition that affects every
	// pending operation on a handle at once.
	opHup
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpConnect:
		return "Connect"
	case OpAccept:
		return "Accept"
	case OpRecvFrom:
		return "RecvFrom"
	case OpSendTo:
		return "SendTo"
	case opHup:
		return "Hup"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// IsHup reports whether the event represents a hangup/error affecting the
// whole handle rather than one specific operation.
func (o Op) IsHup() bool { return o == opHup }

// HupKey builds the key a readiness backend uses to report a hangup/error
// on h. Exported so tests (and fake backends) can synthesize the same
// event a real epoll/kqueue backend produces.
func HupKey(h Handle) Key { return Key{Handle: h, Op: opHup} }

// Key identifies one outstanding interest: a (handle, operation) pair. At
// most one registration exists for a given key at any instant.
type Key struct {
	Handle Handle
	Op     Op
}

// Result carries the outcome of an event. On readiness backends a success
// carries no payload (the adapter re-issues its own syscall); on completion
// backends it carries the operation's output directly.
type Result struct {
	N        int
	Addr     net.Addr
	Accepted Handle
	Err      error
}

// Event pairs a key with its outcome, as delivered by one Wait call.
type Event struct {
	Key    Key
	Result Result
}

// hupEvent synthesizes a hangup notification for every interest on handle.
func hupEvent(h Handle, err error) Event {
	return Event{Key: Key{Handle: h, Op: opHup}, Result: Result{Err: err}}
}

// Poller is the per-backend OS multiplexer.
type Poller interface {
	// Open registers a handle with the poller at handle-construction time.
	// Readiness backends use this for long-lived registration (epoll) or a
	// no-op (kqueue, which arms per call); completion backends associate
	// the handle with the completion port.
	Open(h Handle) error

	// Close deregisters a handle, called once at handle close.
	Close(h Handle) error

	// Arm requests notification for key. On epoll this is a no-op (the
	// handle-wide registration already covers it); on kqueue it (re-)arms
	// a one-shot watch for the key's filter; on completion backends it is
	// a no-op because the adapter has already issued the overlapped
	// syscall that will complete independently.
	Arm(key Key) error

	// Wait blocks up to timeout for at least one event, appending ready
	// events to dst (which may be reused across calls) and returning the
	// extended slice. A negative timeout blocks until an event or a Wake; a
	// zero timeout returns at once with whatever is already ready.
	Wait(timeout time.Duration, dst []Event) ([]Event, error)

	// Wake unblocks a concurrent Wait call, used by Reactor.Wake (e.g. when
	// a new deadline needs an earlier wakeup than the poller is currently
	// blocked for).
	Wake() error

	// Shutdown releases the poller's own OS resources (the epoll fd, the
	// kqueue fd, or the IOCP handle). No further calls are valid after
	// Shutdown returns.
	Shutdown() error
}

// ErrUnsupportedPlatform reports a platform with none of the linux/bsd/windows
// backends. No function in this package returns it: New exists only on
// platforms that have a backend.
var ErrUnsupportedPlatform = fmt.Errorf("poller: unsupported platform")

// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build windows
// +build windows

package poller

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// Overlapped is the OVERLAPPED-carrying envelope an adapter embeds in the
// struct it passes to ConnectEx/AcceptEx/WSARecv/WSASend and friends. The
// completion port hands back a pointer to the embedded windows.Overlapped;
// unsafe.Pointer arithmetic recovers the enclosing Overlapped (and its Key)
// because the field is first in the struct.
type Overlapped struct {
	Raw windows.Overlapped
	Key Key
}

// NewOverlapped allocates an Overlapped pre-filled with key, ready to be
// passed (via Ptr) to a Win32 overlapped call.
func NewOverlapped(key Key) *Overlapped {
	return &Overlapped{Key: key}
}

// Ptr returns the pointer to hand to a Win32 overlapped I/O call.
func (o *Overlapped) Ptr() *windows.Overlapped { return &o.Raw }

func overlappedFromRaw(raw *windows.Overlapped) *Overlapped {
	return (*Overlapped)(unsafe.Pointer(raw))
}

// New creates the Windows IOCP-backed Poller.
func New() (Poller, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "CreateIoCompletionPort")
	}
	return &iocp{port: port}, nil
}

type iocp struct {
	port windows.Handle
}

// Open associates h with the completion port. Every overlapped operation
// later issued against h by the caller completes through this port.
func (p *iocp) Open(h Handle) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(h), p.port, 0, 0)
	if err != nil {
		return errors.Wrap(err, "CreateIoCompletionPort associate")
	}
	return nil
}

// Close cancels any outstanding overlapped operations on h. The handle
// itself is closed by the caller; removing it from the port happens
// implicitly at that point.
func (p *iocp) Close(h Handle) error {
	if err := windows.CancelIoEx(windows.Handle(h), nil); err != nil &&
		err != windows.ERROR_NOT_FOUND && err != syscall.ERROR_NOT_FOUND {
		return errors.Wrap(err, "CancelIoEx")
	}
	return nil
}

// Arm is a no-op: overlapped operations are issued directly by the adapter
// and complete on their own, independent of any per-key arming step.
func (p *iocp) Arm(key Key) error { return nil }

// Wake posts a zero-overlapped completion that Wait recognises and
// discards, unblocking a concurrent GetQueuedCompletionStatus call.
func (p *iocp) Wake() error {
	if err := windows.PostQueuedCompletionStatus(p.port, 0, 0, nil); err != nil {
		return errors.Wrap(err, "PostQueuedCompletionStatus")
	}
	return nil
}

func (p *iocp) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	var bytes uint32
	var key uintptr
	var raw *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(p.port, &bytes, &key, &raw, ms)
	if raw == nil {
		if err == nil {
			// A bare wake: nothing to report.
			return dst, nil
		}
		if errors.Is(err, windows.WAIT_TIMEOUT) || err == syscall.Errno(windows.WAIT_TIMEOUT) {
			return dst, nil
		}
		return dst, errors.Wrap(err, "fatal poller error")
	}
	ov := overlappedFromRaw(raw)
	result := Result{N: int(bytes), Err: err}
	return append(dst, Event{Key: ov.Key, Result: result}), nil
}

func (p *iocp) Shutdown() error {
	return errors.Wrap(windows.CloseHandle(p.port), "CloseHandle")
}

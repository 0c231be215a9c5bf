// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"os"
	"time"

	"github.com/nexoreactor/reactor/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultKevent = 128

// filterOf maps an event-key operation to the kqueue filter that watches for
// it. Readiness for Connect/Accept/RecvFrom/SendTo is expressed in terms of
// the same two filters a plain stream socket uses: read-readiness for
// incoming data or a pending connection, write-readiness for outbound data
// or a connect's completion.
func filterOf(op Op) int16 {
	switch op {
	case OpWrite, OpSendTo:
		return unix.EVFILT_WRITE
	default:
		return unix.EVFILT_READ
	}
}

// New creates the BSD/Darwin kqueue-backed Poller.
func New() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("kevent add|clear", err)
	}
	return &kqueuePoller{fd: fd, events: make([]unix.Kevent_t, defaultKevent)}, nil
}

type kqueuePoller struct {
	fd     int
	events []unix.Kevent_t
}

// Open is a no-op: kqueue has no handle-wide registration, every interest is
// armed individually by Arm.
func (k *kqueuePoller) Open(h Handle) error { return nil }

func (k *kqueuePoller) Close(h Handle) error {
	evts := []unix.Kevent_t{
		{Ident: uint64(h), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(h), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Deleting filters that were never added returns ENOENT; both entries
	// may legitimately be absent, so the error is not propagated.
	unix.Kevent(k.fd, evts, nil, nil)
	return nil
}

// Arm (re-)registers a one-shot watch for key. kqueue drops EV_ONESHOT
// entries once they fire, so every wait on the same key requires a fresh
// Arm call; this mirrors the single-outstanding-interest contract the
// registry already enforces.
func (k *kqueuePoller) Arm(key Key) error {
	evt := unix.Kevent_t{
		Ident:  uint64(key.Handle),
		Filter: filterOf(key.Op),
		Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
	}
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{evt}, nil, nil)
	if err != nil {
		return errors.Wrap(os.NewSyscallError("kevent", err), "arm")
	}
	return nil
}

func (k *kqueuePoller) Wake() error {
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	if err != nil {
		return os.NewSyscallError("kevent", err)
	}
	return nil
}

func (k *kqueuePoller) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	var ts unix.Timespec
	tsp := &ts
	if timeout < 0 {
		tsp = nil
	} else {
		ts = unix.NsecToTimespec(int64(timeout))
	}
	n, err := unix.Kevent(k.fd, nil, k.events, tsp)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, errors.Wrap(os.NewSyscallError("kevent", err), "fatal poller error")
	}
	metrics.Add(metrics.EpollWait, 1)
	if timeout == 0 {
		metrics.Add(metrics.EpollNoWait, 1)
	}
	metrics.Add(metrics.EpollEvents, uint64(n))
	for i := 0; i < n; i++ {
		evt := k.events[i]
		if evt.Ident == 0 && evt.Filter == unix.EVFILT_USER {
			continue
		}
		h := Handle(evt.Ident)
		// EV_ERROR is a hard failure on the descriptor itself and terminates
		// every pending operation. EV_EOF on its own just means the peer
		// closed its write side (a clean FIN) or hit end-of-file; it is
		// still ordinary readiness, and the adapter's own read/recv call
		// observes it as the usual zero-byte EOF.
		if evt.Flags&unix.EV_ERROR != 0 {
			dst = append(dst, hupEvent(h, kqueueError(evt)))
			continue
		}
		switch evt.Filter {
		case unix.EVFILT_READ:
			dst = append(dst, Event{Key: Key{Handle: h, Op: OpRead}})
		case unix.EVFILT_WRITE:
			dst = append(dst, Event{Key: Key{Handle: h, Op: OpWrite}})
		}
	}
	return dst, nil
}

func kqueueError(evt unix.Kevent_t) error {
	if evt.Flags&unix.EV_ERROR != 0 && evt.Data != 0 {
		return unix.Errno(evt.Data)
	}
	return unix.ECONNRESET
}

func (k *kqueuePoller) Shutdown() error {
	return os.NewSyscallError("close", unix.Close(k.fd))
}

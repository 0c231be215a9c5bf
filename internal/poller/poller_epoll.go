// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux
// +build linux

package poller

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/nexoreactor/reactor/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	rflags = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLPRI
	wflags = unix.EPOLLOUT | unix.EPOLLHUP | unix.EPOLLERR

	defaultEventCap = 128
)

// New creates the Linux epoll-backed Poller.
func New() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ep := &epoll{
		fd:      fd,
		wakeFD:  wakeFD,
		events:  make([]unix.EpollEvent, defaultEventCap),
		wakeBuf: make([]byte, 8),
	}
	if err := ep.rawAdd(wakeFD, unix.EPOLLIN); err != nil {
		unix.Close(fd)
		unix.Close(wakeFD)
		return nil, err
	}
	return ep, nil
}

type epoll struct {
	fd      int
	wakeFD  int
	events  []unix.EpollEvent
	wakeBuf []byte
}

func (ep *epoll) rawAdd(fd int, flags uint32) error {
	var evt unix.EpollEvent
	evt.Events = flags
	putHandle(&evt, Handle(fd))
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(ep.fd, unix.EPOLL_CTL_ADD, fd, &evt))
}

// putHandle/getHandle stash a Handle in the epoll_data union via the Fd
// field rather than the full 8-byte union, since every Handle this poller
// ever registers is a raw fd and always fits in 32 bits; this sidesteps the
// union's field layout, which differs across architectures (arm and arm64
// insert a PadFd word ahead of Fd).
func putHandle(evt *unix.EpollEvent, h Handle) {
	evt.Fd = int32(h)
}

func getHandle(evt *unix.EpollEvent) Handle {
	return Handle(evt.Fd)
}

// Open registers fd for both read and write readiness, level-triggered, for
// the lifetime of the handle: one registration covers every operation kind
// a caller later arms against it.
func (ep *epoll) Open(h Handle) error {
	var evt unix.EpollEvent
	evt.Events = rflags | wflags
	putHandle(&evt, h)
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(ep.fd, unix.EPOLL_CTL_ADD, int(h), &evt))
}

// Close deregisters fd. Errors are expected and ignored if the fd was
// already closed by the caller (EBADF) since close() implicitly drops
// epoll registrations.
func (ep *epoll) Close(h Handle) error {
	err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, int(h), nil)
	if err != nil && err != unix.EBADF && err != unix.ENOENT {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

// Arm is a no-op: epoll interest is armed once at Open and fires on every
// Wait while the condition holds; the registry ignores events that have no
// pending entry.
func (ep *epoll) Arm(key Key) error { return nil }

func (ep *epoll) Wake() error {
	var one uint64 = 1
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, one)
	for {
		_, err := unix.Write(ep.wakeFD, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return os.NewSyscallError("write", err)
		}
		return nil
	}
}

func (ep *epoll) drainWake() {
	for {
		_, err := unix.Read(ep.wakeFD, ep.wakeBuf)
		if err == nil {
			continue
		}
		return
	}
}

func (ep *epoll) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
		if msec == 0 {
			metrics.Add(metrics.EpollNoWait, 1)
		}
	}
	n, err := unix.EpollWait(ep.fd, ep.events, msec)
	metrics.Add(metrics.EpollWait, 1)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, errors.Wrap(os.NewSyscallError("epoll_wait", err), "fatal poller error")
	}
	metrics.Add(metrics.EpollEvents, uint64(n))
	for i := 0; i < n; i++ {
		evt := ep.events[i]
		h := getHandle(&evt)
		if int(h) == ep.wakeFD {
			ep.drainWake()
			continue
		}
		// EPOLLHUP/EPOLLERR are hard failures on the descriptor itself and
		// terminate every pending operation. EPOLLRDHUP on its own just
		// means the peer closed its write side (a clean FIN); it is still
		// ordinary readiness, and the adapter's own read() call observes
		// it as the usual zero-byte EOF.
		if evt.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			dst = append(dst, hupEvent(h, hupError(int(h))))
			continue
		}
		if evt.Events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
			dst = append(dst, Event{Key: Key{Handle: h, Op: OpRead}})
		}
		if evt.Events&unix.EPOLLOUT != 0 {
			dst = append(dst, Event{Key: Key{Handle: h, Op: OpWrite}})
		}
	}
	return dst, nil
}

func hupError(fd int) error {
	if errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); err == nil && errno != 0 {
		return unix.Errno(errno)
	}
	return unix.ECONNRESET
}

func (ep *epoll) Shutdown() error {
	if err := unix.Close(ep.wakeFD); err != nil {
		return os.NewSyscallError("close", err)
	}
	return os.NewSyscallError("close", unix.Close(ep.fd))
}

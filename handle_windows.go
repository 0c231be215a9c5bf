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

//go:build windows
// +build windows

package reactor

import (
	"net"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/atomic"
	"golang.org/x/sys/windows"

	"github.com/nexoreactor/reactor/internal/poller"
)

// rawHandle is the OS descriptor a handle adapter wraps: a SOCKET/HANDLE
// value on Windows.
type rawHandle = windows.Handle

// netFD is the Windows counterpart of the Unix netFD: same lifecycle and
// close-once contract, but the descriptor is a windows.Handle and I/O goes
// through the completion backend instead of readiness polling.
type netFD struct {
	reactor *Reactor
	fd      rawHandle
	laddr   net.Addr
	raddr   net.Addr
	// release closes fd itself: windows.Closesocket for sockets,
	// windows.CloseHandle for plain files. Set by the constructor, since
	// the two are not interchangeable on Windows.
	release func(rawHandle) error

	closed atomic.Bool
	mu     sync.Mutex
}

func newNetFD(r *Reactor, fd rawHandle, laddr, raddr net.Addr, release func(rawHandle) error) (*netFD, error) {
	nfd := &netFD{reactor: r, fd: fd, laddr: laddr, raddr: raddr, release: release}
	if err := r.onOpen(poller.Handle(fd)); err != nil {
		release(fd)
		return nil, err
	}
	return nfd, nil
}

func closeSocket(h rawHandle) error { return windows.Closesocket(h) }
func closeFile(h rawHandle) error   { return windows.CloseHandle(h) }

// FD returns the wrapped handle.
func (nfd *netFD) FD() windows.Handle { return nfd.fd }

// LocalAddr returns the local network address, if any.
func (nfd *netFD) LocalAddr() net.Addr { return nfd.laddr }

// RemoteAddr returns the remote network address, if any.
func (nfd *netFD) RemoteAddr() net.Addr { return nfd.raddr }

func (nfd *netFD) close() error {
	nfd.mu.Lock()
	defer nfd.mu.Unlock()
	if !nfd.closed.CAS(false, true) {
		return nil
	}
	nfd.reactor.cancelAll(poller.Handle(nfd.fd))
	_ = nfd.reactor.onClose(poller.Handle(nfd.fd))
	return nfd.release(nfd.fd)
}

func (nfd *netFD) isClosed() bool { return nfd.closed.Load() }

// overlappedOp is the shape every completion-backend suspendable operation
// issues: it allocates an Overlapped tagged with (key, kind), calls issue,
// and either finds the result already in hand (synchronous completion) or
// suspends until the poller delivers it.
//
// issue returns bytes transferred and an error; ERROR_IO_PENDING (wrapped
// in isPending) means the kernel now owns the Overlapped and will complete
// it asynchronously. pinned is whatever memory issue handed the kernel a
// raw pointer into (a receive buffer, an address-list scratch buffer); the
// kernel keeps writing into it after this call returns with no Go pointer
// of its own, so it must stay reachable for the garbage collector for as
// long as the operation is outstanding. overlappedOp keeps it alive by
// folding it into the registered continuation; pass nil when issue's
// buffers are owned by the caller for the duration of the call (as with a
// synchronous, already-complete result).
func overlappedOp(
	nfd *netFD, op poller.Op, cont Continuation, deadline time.Duration, pinned any,
	issue func(ov *poller.Overlapped) (n uint32, addr net.Addr, accepted rawHandle, err error),
) (poller.Result, bool) {
	key := poller.Key{Handle: poller.Handle(nfd.fd), Op: op}
	if res, ok := nfd.reactor.pollResult(key); ok {
		return res, true
	}
	if nfd.isClosed() {
		return poller.Result{Err: windows.ERROR_INVALID_HANDLE}, true
	}
	ov := poller.NewOverlapped(key)
	n, addr, accepted, err := issue(ov)
	if isPending(err) {
		return nfd.reactor.register(key, pin(cont, pinned), deadline)
	}
	return poller.Result{N: int(n), Addr: addr, Accepted: poller.Handle(accepted), Err: err}, true
}

// pinnedContinuation keeps keep reachable for as long as the wrapped
// Continuation sits in the registry's pending map.
type pinnedContinuation struct {
	cont Continuation
	keep any
}

func (p *pinnedContinuation) Resume() { p.cont.Resume() }

func pin(cont Continuation, keep any) Continuation {
	if keep == nil {
		return cont
	}
	return &pinnedContinuation{cont: cont, keep: keep}
}

// isPending reports whether err means the kernel accepted the overlapped
// operation and will complete it asynchronously. Winsock's WSA_IO_PENDING
// is defined in winsock2.h as literally ERROR_IO_PENDING, so one check
// covers both Win32 file I/O and Winsock calls.
func isPending(err error) bool {
	return err == windows.ERROR_IO_PENDING
}

// loadWinsockExtension resolves a Winsock extension function pointer
// (ConnectEx, AcceptEx, ...) via WSAIoctl's SIO_GET_EXTENSION_FUNCTION_POINTER,
// the documented way to obtain them since they are not ordinary exports.
func loadWinsockExtension(s windows.Handle, guid windows.GUID) (uintptr, error) {
	var fn uintptr
	var bytes uint32
	err := windows.WSAIoctl(
		s,
		windows.SIO_GET_EXTENSION_FUNCTION_POINTER,
		(*byte)(unsafe.Pointer(&guid)),
		uint32(unsafe.Sizeof(guid)),
		(*byte)(unsafe.Pointer(&fn)),
		uint32(unsafe.Sizeof(fn)),
		&bytes,
		nil,
		0,
	)
	return fn, err
}

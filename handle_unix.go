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

//go:build linux || freebsd || dragonfly || darwin
// +build linux freebsd dragonfly darwin

package reactor

import (
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/nexoreactor/reactor/internal/poller"
)

// rawHandle is the OS descriptor a handle adapter wraps: a bare fd on Unix.
type rawHandle = int

// netFD is the shared base every handle adapter (file, TCP conn, TCP
// listener, UDP conn) embeds. It owns the raw descriptor's lifetime,
// registers/deregisters with the reactor's poller, and guarantees close
// runs exactly once no matter how many times it is called.
type netFD struct {
	reactor *Reactor
	fd      rawHandle
	laddr   net.Addr
	raddr   net.Addr

	closed atomic.Bool
	mu     sync.Mutex
}

func newNetFD(r *Reactor, fd rawHandle, laddr, raddr net.Addr) (*netFD, error) {
	nfd := &netFD{reactor: r, fd: fd, laddr: laddr, raddr: raddr}
	if err := r.onOpen(poller.Handle(fd)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return nfd, nil
}

// FD returns the wrapped file descriptor.
func (nfd *netFD) FD() int { return nfd.fd }

// LocalAddr returns the local network address, if any.
func (nfd *netFD) LocalAddr() net.Addr { return nfd.laddr }

// RemoteAddr returns the remote network address, if any.
func (nfd *netFD) RemoteAddr() net.Addr { return nfd.raddr }

// close cancels every pending operation on the handle, deregisters it from
// the poller, and closes the descriptor. Safe to call more than once and
// from more than one goroutine; every call but the first is a no-op and
// returns nil. An error from deregistering the handle is discarded; the
// error from closing the descriptor itself is returned.
func (nfd *netFD) close() error {
	nfd.mu.Lock()
	defer nfd.mu.Unlock()
	if !nfd.closed.CAS(false, true) {
		return nil
	}
	nfd.reactor.cancelAll(poller.Handle(nfd.fd))
	_ = nfd.reactor.onClose(poller.Handle(nfd.fd))
	return unix.Close(nfd.fd)
}

func (nfd *netFD) isClosed() bool { return nfd.closed.Load() }

// attempt is the nonblocking syscall a suspendable operation wraps; it
// returns bytes transferred (or 0 for operations with out-params only),
// whether the kernel reported would-block/in-progress, and any other error.
type attempt func() (n int, addr net.Addr, accepted rawHandle, wouldBlock bool, err error)

// pollOp implements the readiness-backend read/write contract: check for a
// cached completion, else attempt the syscall, else suspend on the poller
// with a deadline. A readiness event carries no payload of its own — it
// only says the fd is worth retrying — so a cached entry short-circuits
// the syscall exclusively when it holds a terminal error (a timeout or a
// close raised while the operation was suspended). Any other cached entry
// is still consumed here, to honor pollResult's deliver-once contract, but
// falls through to try() so the syscall that actually produces a result
// always runs.
func pollOp(nfd *netFD, op poller.Op, cont Continuation, deadline time.Duration, try attempt) (poller.Result, bool) {
	key := poller.Key{Handle: poller.Handle(nfd.fd), Op: op}
	if res, ok := nfd.reactor.pollResult(key); ok && res.Err != nil {
		return res, true
	}
	if nfd.isClosed() {
		return poller.Result{Err: errClosedLocal}, true
	}
	n, addr, accepted, wouldBlock, err := try()
	if wouldBlock {
		return nfd.reactor.register(key, cont, deadline)
	}
	return poller.Result{N: n, Addr: addr, Accepted: poller.Handle(accepted), Err: err}, true
}

var errClosedLocal = unix.EBADF

// isWouldBlock reports whether err is the nonblocking-retry family of
// errnos the read/write contract treats as "suspend, don't fail": EAGAIN,
// EWOULDBLOCK, or (for connect) EINPROGRESS.
func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINPROGRESS
}

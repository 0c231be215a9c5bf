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
	"time"

	"github.com/kavu/go_reuseport"
	"golang.org/x/sys/unix"

	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

// TCPListener is a passive TCP socket producing a lazy sequence of
// (connection, remote-address) pairs through Accept.
type TCPListener struct {
	*netFD
	acceptReactor *Reactor
}

// ListenTCP creates a listening socket bound to bind. WithAcceptReactor
// registers every accepted connection with a different Reactor than the
// listener's own, letting a caller scatter accepted connections across
// independent event loops for scalability.
func ListenTCP(r *Reactor, bind net.Addr, opts ...ListenOption) (*TCPListener, error) {
	o := &listenOptions{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(o)
	}
	tcpBind, ok := bind.(*net.TCPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "listen", Err: errBadAddrType}
	}
	var fd int
	var err error
	if o.reuseport {
		fd, err = newReuseportListenerFD(tcpBind)
	} else {
		fd, err = newPlainListenerFD(tcpBind, o.backlog)
	}
	if err != nil {
		return nil, newError("listen", bind.String(), err)
	}
	resolved, err := netutil.BoundTCPAddr(fd)
	if err != nil {
		unix.Close(fd)
		return nil, newError("listen", bind.String(), err)
	}
	nfd, err := newNetFD(r, fd, resolved, nil)
	if err != nil {
		return nil, newError("listen", bind.String(), err)
	}
	acceptReactor := o.accept
	if acceptReactor == nil {
		acceptReactor = r
	}
	return &TCPListener{netFD: nfd, acceptReactor: acceptReactor}, nil
}

// newPlainListenerFD builds a raw listening socket directly, the way every
// other adapter constructor in this package builds its socket.
func newPlainListenerFD(bind *net.TCPAddr, backlog int) (int, error) {
	fd, err := netutil.NewNonblockingSocket(netutil.FamilyOf(bind), unix.SOCK_STREAM)
	if err != nil {
		return -1, err
	}
	if err := netutil.SetReuseAddr(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := netutil.Bind(fd, bind); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := netutil.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// newReuseportListenerFD builds the socket through go_reuseport, which sets
// SO_REUSEPORT (unavailable as a portable unix.SetsockoptInt constant
// across every build target this package supports) before binding, then
// hands us back a dup'd, non-blocking fd and closes its own net.Listener.
func newReuseportListenerFD(bind *net.TCPAddr) (int, error) {
	l, err := go_reuseport.ListenTCP(bind.Network(), bind.String())
	if err != nil {
		return -1, err
	}
	defer l.Close()
	fd, err := netutil.DupFD(l)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept yields the next incoming connection and its remote address, or
// suspends until one arrives or deadline fires. The acceptor itself is
// never consumed: a listener produces zero or more connections until it is
// closed.
func (l *TCPListener) Accept(cont Continuation, deadline time.Duration) (*TCPConn, net.Addr, bool, error) {
	res, ready := pollOp(l.netFD, poller.OpRead, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		connFD, sa, err := netutil.Accept(l.fd)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		addr := netutil.SockaddrToTCPOrUnixAddr(sa)
		return 0, addr, connFD, false, nil
	})
	if !ready {
		return nil, nil, false, nil
	}
	if res.Err != nil {
		return nil, nil, true, asError("accept", l.laddr.String(), res.Err)
	}
	nfd, err := newNetFD(l.acceptReactor, int(res.Accepted), l.laddr, res.Addr)
	if err != nil {
		return nil, nil, true, newError("accept", l.laddr.String(), err)
	}
	return &TCPConn{netFD: nfd, connectState: connectConnected}, res.Addr, true, nil
}

// Close stops the listener from producing further connections.
func (l *TCPListener) Close() error {
	return l.close()
}

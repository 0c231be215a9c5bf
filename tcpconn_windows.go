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
	"time"

	"golang.org/x/sys/windows"

	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

// TCPConn is a byte-stream handle over a TCP socket driven through the
// completion port instead of readiness polling.
type TCPConn struct {
	*netFD
	connectFn    uintptr
	connectState int32
}

// DialTCP begins an overlapped ConnectEx to remote. ConnectEx requires the
// socket to be bound first, so DialTCP always binds (to the supplied bind
// address, or the wildcard address of the right family if bind is nil).
func DialTCP(r *Reactor, remote net.Addr, bind net.Addr) (*TCPConn, error) {
	tcpRemote, ok := remote.(*net.TCPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "dial", Err: errBadAddrType}
	}
	family := netutil.WinsockFamilyOf(tcpRemote)
	s, err := netutil.NewOverlappedSocket(family, windows.SOCK_STREAM)
	if err != nil {
		return nil, newError("dial", remote.String(), err)
	}
	if bind == nil {
		bind = &net.TCPAddr{}
	}
	sa, err := netutil.WinsockSockaddr(bind)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("dial", remote.String(), err)
	}
	if err := windows.Bind(s, sa); err != nil {
		windows.Closesocket(s)
		return nil, newError("dial", remote.String(), err)
	}
	fn, err := loadConnectEx(s)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("dial", remote.String(), err)
	}
	resolved, err := netutil.BoundTCPAddr(s)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("dial", remote.String(), err)
	}
	nfd, err := newNetFD(r, s, resolved, remote, closeSocket)
	if err != nil {
		return nil, newError("dial", remote.String(), err)
	}
	return &TCPConn{netFD: nfd, connectFn: fn, connectState: connectNotInitiated}, nil
}

// Connect drives the connect state machine: issues ConnectEx on the first
// call, suspends via cont until the completion port reports the outcome.
func (c *TCPConn) Connect(cont Continuation, deadline time.Duration) (bool, error) {
	switch c.connectState {
	case connectConnected:
		return true, nil
	case connectFailed:
		return true, newError("connect", c.raddr.String(), errConnectFailed)
	}
	c.connectState = connectInFlight
	res, ready := overlappedOp(c.netFD, poller.OpConnect, cont, deadline, nil, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		err := connectEx(c.connectFn, c.fd, c.raddr, ov)
		return 0, nil, 0, err
	})
	if !ready {
		return false, nil
	}
	if res.Err != nil {
		c.connectState = connectFailed
		return true, asError("connect", c.raddr.String(), res.Err)
	}
	windows.Setsockopt(c.fd, windows.SOL_SOCKET, windows.SO_UPDATE_CONNECT_CONTEXT, nil, 0)
	c.connectState = connectConnected
	return true, nil
}

// Read reads into buf via an overlapped WSARecv.
func (c *TCPConn) Read(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := overlappedOp(c.netFD, poller.OpRead, cont, deadline, buf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		n, err := wsaRecv(c.fd, buf, ov)
		return n, nil, 0, err
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("read", c.raddr.String(), res.Err)
}

// Write writes buf via an overlapped WSASend.
func (c *TCPConn) Write(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := overlappedOp(c.netFD, poller.OpWrite, cont, deadline, buf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		n, err := wsaSend(c.fd, buf, ov)
		return n, nil, 0, err
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("write", c.raddr.String(), res.Err)
}

// Close releases the connection's socket and cancels every pending
// operation on it.
func (c *TCPConn) Close() error {
	return c.close()
}

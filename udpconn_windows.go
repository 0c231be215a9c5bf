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
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

// UDPConn is a datagram handle bound to a local address, driven through
// overlapped WSARecvFrom/WSASendTo.
type UDPConn struct {
	*netFD
	bufSize int

	// pendingBuf and pendingFrom hold the receive buffer and sockaddr an
	// in-flight WSARecvFrom call was issued against, for the same reason
	// TCPListener holds its accept socket across a suspended AcceptEx: the
	// call that observes the cached completion must read out of the
	// buffer the kernel actually wrote into, not one freshly allocated on
	// the retry call.
	pendingBuf  []byte
	pendingFrom *windows.RawSockaddrAny
}

// BindUDP binds a UDP socket to local.
func BindUDP(r *Reactor, local net.Addr, opts ...ListenOption) (*UDPConn, error) {
	o := listenOptions{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(&o)
	}
	udpLocal, ok := local.(*net.UDPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "bind", Err: errBadAddrType}
	}
	family := netutil.WinsockFamilyOf(udpLocal)
	s, err := netutil.NewOverlappedSocket(family, windows.SOCK_DGRAM)
	if err != nil {
		return nil, newError("bind", local.String(), err)
	}
	sa, err := netutil.WinsockSockaddr(udpLocal)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("bind", local.String(), err)
	}
	if err := windows.Bind(s, sa); err != nil {
		windows.Closesocket(s)
		return nil, newError("bind", local.String(), err)
	}
	resolved, err := netutil.BoundUDPAddr(s)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("bind", local.String(), err)
	}
	nfd, err := newNetFD(r, s, resolved, nil, closeSocket)
	if err != nil {
		return nil, newError("bind", local.String(), err)
	}
	return &UDPConn{netFD: nfd, bufSize: o.bufSize}, nil
}

// recvPin keeps both of WSARecvFrom's out-parameters reachable for as long
// as the overlapped receive they belong to is outstanding.
type recvPin struct {
	buf  []byte
	from *windows.RawSockaddrAny
}

// ReadFrom receives the next datagram, suspending via cont until one
// arrives or deadline expires.
func (c *UDPConn) ReadFrom(cont Continuation, deadline time.Duration) ([]byte, net.Addr, bool, error) {
	key := poller.Key{Handle: poller.Handle(c.fd), Op: poller.OpRecvFrom}
	if res, ok := c.reactor.pollResult(key); ok {
		return c.finishReadFrom(res)
	}
	if c.pendingBuf == nil {
		c.pendingBuf = make([]byte, c.bufSize)
		c.pendingFrom = &windows.RawSockaddrAny{}
	}
	buf, from := c.pendingBuf, c.pendingFrom
	fromLen := int32(unsafe.Sizeof(*from))
	res, ready := overlappedOp(c.netFD, poller.OpRecvFrom, cont, deadline, recvPin{buf: buf, from: from}, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		n, err := wsaRecvFrom(c.fd, buf, from, &fromLen, ov)
		return n, nil, 0, err
	})
	if !ready {
		return nil, nil, false, nil
	}
	return c.finishReadFrom(res)
}

// finishReadFrom completes a logical ReadFrom once its WSARecvFrom call has
// produced a result, clearing the connection's pending receive state so the
// next ReadFrom call starts a fresh operation.
func (c *UDPConn) finishReadFrom(res poller.Result) ([]byte, net.Addr, bool, error) {
	buf, from := c.pendingBuf, c.pendingFrom
	c.pendingBuf, c.pendingFrom = nil, nil
	if res.Err != nil {
		return nil, nil, true, asError("read", c.laddr.String(), res.Err)
	}
	sa, err := from.Sockaddr()
	var remote net.Addr
	if err == nil {
		remote = netutil.SockaddrToUDPAddr(sa)
	}
	return buf[:res.N], remote, true, nil
}

// WriteTo sends buf as a single datagram to remote.
func (c *UDPConn) WriteTo(buf []byte, remote net.Addr, cont Continuation, deadline time.Duration) (int, bool, error) {
	sa, err := netutil.WinsockSockaddr(remote)
	if err != nil {
		return 0, true, newError("write", remote.String(), err)
	}
	res, ready := overlappedOp(c.netFD, poller.OpSendTo, cont, deadline, buf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		n, err := wsaSendTo(c.fd, buf, sa, ov)
		return n, nil, 0, err
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("write", remote.String(), res.Err)
}

// Close releases the socket and cancels every pending operation on it.
func (c *UDPConn) Close() error {
	return c.close()
}

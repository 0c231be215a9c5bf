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

// UDPConn is a datagram handle: a lazy sequence of (buffer, remote)
// datagrams on the read side, and a sink accepting (buffer, remote) for
// the write side.
type UDPConn struct {
	*netFD
	bufSize int
}

// BindUDP creates a datagram socket bound to local.
func BindUDP(r *Reactor, local net.Addr, opts ...ListenOption) (*UDPConn, error) {
	o := &listenOptions{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(o)
	}
	udpLocal, ok := local.(*net.UDPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "bind", Err: errBadAddrType}
	}
	var fd int
	var err error
	if o.reuseport {
		fd, err = newReuseportPacketFD(udpLocal)
	} else {
		fd, err = newPlainPacketFD(udpLocal)
	}
	if err != nil {
		return nil, newError("bind", local.String(), err)
	}
	resolved, err := netutil.BoundUDPAddr(fd)
	if err != nil {
		unix.Close(fd)
		return nil, newError("bind", local.String(), err)
	}
	nfd, err := newNetFD(r, fd, resolved, nil)
	if err != nil {
		return nil, newError("bind", local.String(), err)
	}
	return &UDPConn{netFD: nfd, bufSize: o.bufSize}, nil
}

// newPlainPacketFD builds a raw datagram socket directly.
func newPlainPacketFD(local *net.UDPAddr) (int, error) {
	fd, err := netutil.NewNonblockingSocket(netutil.FamilyOf(local), unix.SOCK_DGRAM)
	if err != nil {
		return -1, err
	}
	if err := netutil.Bind(fd, local); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// newReuseportPacketFD builds the socket through go_reuseport's
// ListenPacket, for the same SO_REUSEPORT reason newReuseportListenerFD
// does on the TCP side.
func newReuseportPacketFD(local *net.UDPAddr) (int, error) {
	pc, err := go_reuseport.ListenPacket(local.Network(), local.String())
	if err != nil {
		return -1, err
	}
	defer pc.Close()
	fd, err := netutil.DupFD(pc)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// ReadFrom reads the next datagram into a freshly-allocated buffer sized
// per WithUDPBufferSize, returning the datagram and its sender.
func (c *UDPConn) ReadFrom(cont Continuation, deadline time.Duration) ([]byte, net.Addr, bool, error) {
	buf := make([]byte, c.bufSize)
	var n int
	res, ready := pollOp(c.netFD, poller.OpRead, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		nn, sa, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		n = nn
		return nn, netutil.SockaddrToUDPAddr(sa), 0, false, nil
	})
	if !ready {
		return nil, nil, false, nil
	}
	if res.Err != nil {
		return nil, nil, true, asError("recvfrom", c.laddr.String(), res.Err)
	}
	return buf[:n], res.Addr, true, nil
}

// WriteTo sends buf as one datagram to remote.
func (c *UDPConn) WriteTo(buf []byte, remote net.Addr, cont Continuation, deadline time.Duration) (int, bool, error) {
	sa, err := netutil.SockaddrOf(remote)
	if err != nil {
		return 0, true, newError("sendto", remote.String(), err)
	}
	res, ready := pollOp(c.netFD, poller.OpWrite, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		err := unix.Sendto(c.fd, buf, 0, sa)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		return len(buf), nil, 0, false, nil
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("sendto", remote.String(), res.Err)
}

// Close releases the datagram socket.
func (c *UDPConn) Close() error {
	return c.close()
}

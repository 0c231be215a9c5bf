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

	"golang.org/x/sys/unix"

	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

// TCPConn is a byte-stream handle over a TCP socket, readable and writable
// through the reactor's suspend/resume contract instead of blocking the
// calling goroutine.
type TCPConn struct {
	*netFD
	connectKey   poller.Key
	connectState int32 // 0 not-initiated, 1 in-flight, 2 connected, 3 failed
}

// DialTCP begins a non-blocking connect to remote, optionally from bind,
// and registers the resulting handle with r. The connect itself follows
// the not-initiated -> in-flight -> {connected, failed} state machine: the
// first call to Connect drives it forward, suspending on write-readiness
// via cont until the kernel resolves SO_ERROR.
func DialTCP(r *Reactor, remote net.Addr, bind net.Addr) (*TCPConn, error) {
	tcpRemote, ok := remote.(*net.TCPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "dial", Err: errBadAddrType}
	}
	family := netutil.FamilyOf(tcpRemote)
	fd, err := netutil.NewNonblockingSocket(family, unix.SOCK_STREAM)
	if err != nil {
		return nil, newError("dial", remote.String(), err)
	}
	if bind != nil {
		if err := netutil.SetReuseAddr(fd); err != nil {
			unix.Close(fd)
			return nil, newError("dial", remote.String(), err)
		}
		if err := netutil.Bind(fd, bind); err != nil {
			unix.Close(fd)
			return nil, newError("dial", remote.String(), err)
		}
		resolved, err := netutil.BoundTCPAddr(fd)
		if err != nil {
			unix.Close(fd)
			return nil, newError("dial", remote.String(), err)
		}
		bind = resolved
	}
	nfd, err := newNetFD(r, fd, bind, remote)
	if err != nil {
		return nil, newError("dial", remote.String(), err)
	}
	c := &TCPConn{
		netFD:      nfd,
		connectKey: poller.Key{Handle: poller.Handle(fd), Op: poller.OpWrite},
	}
	if err := unix.Connect(fd, must(netutil.SockaddrOf(tcpRemote))); err != nil {
		if err == unix.EINPROGRESS {
			c.connectState = connectInFlight
			return c, nil
		}
		c.connectState = connectFailed
		_ = c.close()
		return nil, newError("dial", remote.String(), err)
	}
	c.connectState = connectConnected
	return c, nil
}

func must(sa unix.Sockaddr, err error) unix.Sockaddr {
	if err != nil {
		panic(err)
	}
	return sa
}

// Connect drives the connect state machine one step: if the connect
// initiated by DialTCP already resolved, it returns immediately; otherwise
// it suspends on write-readiness via cont until SO_ERROR can be read.
func (c *TCPConn) Connect(cont Continuation, deadline time.Duration) (bool, error) {
	switch c.connectState {
	case connectConnected:
		return true, nil
	case connectFailed:
		return true, newError("connect", c.raddr.String(), errConnectFailed)
	}
	res, ready := c.reactor.register(c.connectKey, cont, deadline)
	if !ready {
		return false, nil
	}
	if res.Err != nil {
		c.connectState = connectFailed
		return true, asError("connect", c.raddr.String(), res.Err)
	}
	if err := netutil.SocketError(c.fd); err != nil && err != unix.EISCONN {
		c.connectState = connectFailed
		return true, newError("connect", c.raddr.String(), err)
	}
	c.connectState = connectConnected
	return true, nil
}

// Read reads up to len(buf) bytes into buf. A zero-byte, nil-error result
// means end-of-stream, the POSIX convention this adapter preserves.
func (c *TCPConn) Read(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := pollOp(c.netFD, poller.OpRead, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		n, err := unix.Read(c.fd, buf)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		return n, nil, 0, false, nil
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("read", c.raddr.String(), res.Err)
}

// Write writes up to len(buf) bytes from buf.
func (c *TCPConn) Write(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := pollOp(c.netFD, poller.OpWrite, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		return n, nil, 0, false, nil
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

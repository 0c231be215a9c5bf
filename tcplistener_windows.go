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

	"github.com/nexoreactor/reactor/internal/cache/mcache"
	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

// acceptAddrSize is the per-slot size AcceptEx wants for each of the two
// sockaddr records it writes. It is the size of RawSockaddrAny, which is
// larger than the biggest sockaddr plus the 16 bytes AcceptEx requires.
const acceptAddrSize = int(unsafe.Sizeof(windows.RawSockaddrAny{}))

// TCPListener accepts inbound TCP connections through overlapped AcceptEx
// calls instead of readiness-driven accept loops.
type TCPListener struct {
	*netFD
	acceptFn      uintptr
	acceptReactor *Reactor

	// pendingSock and pendingAddrBuf hold the accept socket and scratch
	// buffer an in-flight AcceptEx call was issued against. AcceptEx, unlike
	// a readiness-backend accept(), is issued exactly once per logical
	// Accept; the call that later observes the cached completion must
	// finish with the same socket and buffer the call that issued it
	// created, so they live here rather than as Accept locals. This also
	// means a listener drives at most one outstanding Accept at a time.
	pendingSock    rawHandle
	pendingAddrBuf []byte
}

// ListenTCP binds and listens on bind, returning a listener whose Accept
// issues AcceptEx against pre-created sockets.
func ListenTCP(r *Reactor, bind net.Addr, opts ...ListenOption) (*TCPListener, error) {
	o := listenOptions{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(&o)
	}
	tcpBind, ok := bind.(*net.TCPAddr)
	if !ok {
		return nil, &Error{Kind: ErrKindOther, Op: "listen", Err: errBadAddrType}
	}
	family := netutil.WinsockFamilyOf(tcpBind)
	s, err := netutil.NewOverlappedSocket(family, windows.SOCK_STREAM)
	if err != nil {
		return nil, newError("listen", bind.String(), err)
	}
	sa, err := netutil.WinsockSockaddr(tcpBind)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("listen", bind.String(), err)
	}
	if err := windows.Bind(s, sa); err != nil {
		windows.Closesocket(s)
		return nil, newError("listen", bind.String(), err)
	}
	if err := windows.Listen(s, o.backlog); err != nil {
		windows.Closesocket(s)
		return nil, newError("listen", bind.String(), err)
	}
	fn, err := loadAcceptEx(s)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("listen", bind.String(), err)
	}
	resolved, err := netutil.BoundTCPAddr(s)
	if err != nil {
		windows.Closesocket(s)
		return nil, newError("listen", bind.String(), err)
	}
	nfd, err := newNetFD(r, s, resolved, nil, closeSocket)
	if err != nil {
		return nil, newError("listen", bind.String(), err)
	}
	acceptReactor := o.accept
	if acceptReactor == nil {
		acceptReactor = r
	}
	return &TCPListener{netFD: nfd, acceptFn: fn, acceptReactor: acceptReactor}, nil
}

// Accept produces the next inbound connection. The first call for a given
// logical accept pre-creates the accept socket itself (AcceptEx's ABI
// requires it) and issues AcceptEx; if that suspends, the socket and its
// address scratch buffer are held on the listener so the call that later
// observes the cached completion finishes the same operation instead of
// starting a fresh one.
func (l *TCPListener) Accept(cont Continuation, deadline time.Duration) (*TCPConn, net.Addr, bool, error) {
	key := poller.Key{Handle: poller.Handle(l.fd), Op: poller.OpAccept}
	if res, ok := l.reactor.pollResult(key); ok {
		return l.finishAccept(res)
	}
	if l.pendingAddrBuf == nil {
		family := netutil.WinsockFamilyOf(l.laddr)
		acceptSock, err := netutil.NewOverlappedSocket(family, windows.SOCK_STREAM)
		if err != nil {
			return nil, nil, true, newError("accept", l.laddr.String(), err)
		}
		l.pendingSock = acceptSock
		// addrBuf is pure scratch: AcceptEx writes into it and
		// parseAcceptAddrs consumes it once the operation completes, so
		// it is safe to recycle through mcache afterward (unlike a
		// caller-owned read buffer, nothing outside this listener ever
		// sees it).
		l.pendingAddrBuf = mcache.Malloc(2 * acceptAddrSize)
	}
	acceptSock, addrBuf := l.pendingSock, l.pendingAddrBuf
	res, ready := overlappedOp(l.netFD, poller.OpAccept, cont, deadline, addrBuf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		err := acceptEx(l.acceptFn, l.fd, acceptSock, addrBuf, ov)
		return 0, nil, acceptSock, err
	})
	if !ready {
		return nil, nil, false, nil
	}
	return l.finishAccept(res)
}

// finishAccept completes a logical Accept once its AcceptEx call has
// produced a result, clearing the listener's pending accept state so the
// next Accept call starts a fresh operation.
func (l *TCPListener) finishAccept(res poller.Result) (*TCPConn, net.Addr, bool, error) {
	acceptSock, addrBuf := l.pendingSock, l.pendingAddrBuf
	l.pendingSock, l.pendingAddrBuf = 0, nil
	defer mcache.Free(addrBuf)
	if res.Err != nil {
		windows.Closesocket(acceptSock)
		return nil, nil, true, asError("accept", l.laddr.String(), res.Err)
	}
	windows.Setsockopt(acceptSock, windows.SOL_SOCKET, windows.SO_UPDATE_ACCEPT_CONTEXT,
		(*byte)(unsafe.Pointer(&l.fd)), int32(unsafe.Sizeof(l.fd)))
	_, remoteSA, err := parseAcceptAddrs(addrBuf)
	var remote net.Addr
	if err == nil {
		remote = netutil.SockaddrToTCPAddr(remoteSA)
	}
	nfd, err := newNetFD(l.acceptReactor, acceptSock, l.laddr, remote, closeSocket)
	if err != nil {
		return nil, nil, true, newError("accept", l.laddr.String(), err)
	}
	conn := &TCPConn{netFD: nfd, connectState: connectConnected}
	return conn, remote, true, nil
}

// parseAcceptAddrs decodes the two sockaddr records AcceptEx wrote into
// addrBuf via GetAcceptExSockaddrs-equivalent raw parsing: each slot is
// produced by Windows as a RawSockaddrAny and converted here directly,
// avoiding an extra dynamically-resolved extension call.
func parseAcceptAddrs(addrBuf []byte) (local, remote windows.Sockaddr, err error) {
	localRaw := (*windows.RawSockaddrAny)(unsafe.Pointer(&addrBuf[0]))
	remoteRaw := (*windows.RawSockaddrAny)(unsafe.Pointer(&addrBuf[acceptAddrSize]))
	local, err = localRaw.Sockaddr()
	if err != nil {
		return nil, nil, err
	}
	remote, err = remoteRaw.Sockaddr()
	if err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

// Close releases the listener's socket and cancels every pending Accept.
func (l *TCPListener) Close() error {
	return l.close()
}

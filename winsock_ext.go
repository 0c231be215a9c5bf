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
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/nexoreactor/reactor/internal/netutil"
	"github.com/nexoreactor/reactor/internal/poller"
)

var ws2 = windows.NewLazySystemDLL("ws2_32.dll")

var (
	procWSARecv     = ws2.NewProc("WSARecv")
	procWSASend     = ws2.NewProc("WSASend")
	procWSARecvFrom = ws2.NewProc("WSARecvFrom")
	procWSASendTo   = ws2.NewProc("WSASendTo")
)

// wsaBuf mirrors Winsock's WSABUF: a length-prefixed buffer descriptor,
// the unit WSARecv/WSASend/WSARecvFrom/WSASendTo operate on.
type wsaBuf struct {
	len uint32
	buf *byte
}

func newWSABuf(b []byte) wsaBuf {
	if len(b) == 0 {
		return wsaBuf{}
	}
	return wsaBuf{len: uint32(len(b)), buf: &b[0]}
}

// wsaResult normalises a raw WSA*.Call outcome: r==0 means success (n
// already populated via the out-param); otherwise e carries WSA_IO_PENDING
// or a real failure.
func wsaResult(r uintptr, e error) error {
	if r == 0 {
		return nil
	}
	return e
}

func wsaRecv(s windows.Handle, buf []byte, ov *poller.Overlapped) (uint32, error) {
	wbuf := newWSABuf(buf)
	var n, flags uint32
	r, _, e := procWSARecv.Call(
		uintptr(s), uintptr(unsafe.Pointer(&wbuf)), 1,
		uintptr(unsafe.Pointer(&n)), uintptr(unsafe.Pointer(&flags)),
		uintptr(unsafe.Pointer(ov.Ptr())), 0,
	)
	return n, wsaResult(r, e)
}

func wsaSend(s windows.Handle, buf []byte, ov *poller.Overlapped) (uint32, error) {
	wbuf := newWSABuf(buf)
	var n uint32
	r, _, e := procWSASend.Call(
		uintptr(s), uintptr(unsafe.Pointer(&wbuf)), 1,
		uintptr(unsafe.Pointer(&n)), 0,
		uintptr(unsafe.Pointer(ov.Ptr())), 0,
	)
	return n, wsaResult(r, e)
}

func wsaRecvFrom(s windows.Handle, buf []byte, from *windows.RawSockaddrAny, fromLen *int32, ov *poller.Overlapped) (uint32, error) {
	wbuf := newWSABuf(buf)
	var n, flags uint32
	r, _, e := procWSARecvFrom.Call(
		uintptr(s), uintptr(unsafe.Pointer(&wbuf)), 1,
		uintptr(unsafe.Pointer(&n)), uintptr(unsafe.Pointer(&flags)),
		uintptr(unsafe.Pointer(from)), uintptr(unsafe.Pointer(fromLen)),
		uintptr(unsafe.Pointer(ov.Ptr())), 0,
	)
	return n, wsaResult(r, e)
}

func wsaSendTo(s windows.Handle, buf []byte, to windows.Sockaddr, ov *poller.Overlapped) (uint32, error) {
	wbuf := newWSABuf(buf)
	var n uint32
	ptr, ptrLen, err := to.Sockaddr()
	if err != nil {
		return 0, err
	}
	r, _, e := procWSASendTo.Call(
		uintptr(s), uintptr(unsafe.Pointer(&wbuf)), 1,
		uintptr(unsafe.Pointer(&n)), 0,
		uintptr(unsafe.Pointer(ptr)), uintptr(ptrLen),
		uintptr(unsafe.Pointer(ov.Ptr())), 0,
	)
	return n, wsaResult(r, e)
}

// loadConnectEx and loadAcceptEx resolve the two Winsock extension
// functions that are not ordinary DLL exports: they must be fetched per
// socket via WSAIoctl(SIO_GET_EXTENSION_FUNCTION_POINTER).
func loadConnectEx(s windows.Handle) (uintptr, error) {
	return loadWinsockExtension(s, windows.WSAID_CONNECTEX)
}

func loadAcceptEx(s windows.Handle) (uintptr, error) {
	return loadWinsockExtension(s, windows.WSAID_ACCEPTEX)
}

// connectEx invokes the dynamically-resolved ConnectEx. The socket must
// already be bound before this call, a Winsock requirement.
func connectEx(fn uintptr, s windows.Handle, addr net.Addr, ov *poller.Overlapped) error {
	sa, err := netutil.WinsockSockaddr(addr)
	if err != nil {
		return err
	}
	ptr, n, err := sa.Sockaddr()
	if err != nil {
		return err
	}
	r, _, e := syscall.Syscall9(fn,
		7,
		uintptr(s), uintptr(unsafe.Pointer(ptr)), uintptr(n),
		0, 0, 0, uintptr(unsafe.Pointer(ov.Ptr())),
		0, 0,
	)
	if r == 0 {
		return e
	}
	return nil
}

// acceptEx invokes the dynamically-resolved AcceptEx. addrBuf must be large
// enough for two sockaddr-with-padding records back to back, the ABI
// AcceptEx requires for local+remote address output.
func acceptEx(fn uintptr, listenSock, acceptSock windows.Handle, addrBuf []byte, ov *poller.Overlapped) error {
	var bytes uint32
	addrLen := uintptr(len(addrBuf) / 2)
	r, _, e := syscall.Syscall9(fn,
		8,
		uintptr(listenSock), uintptr(acceptSock),
		uintptr(unsafe.Pointer(&addrBuf[0])), 0,
		addrLen, addrLen,
		uintptr(unsafe.Pointer(&bytes)),
		uintptr(unsafe.Pointer(ov.Ptr())),
		0,
	)
	if r == 0 {
		return e
	}
	return nil
}

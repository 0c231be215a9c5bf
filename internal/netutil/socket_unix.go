//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

//go:build linux || freebsd || dragonfly || darwin
// +build linux freebsd dragonfly darwin

package netutil

import (
	"net"

	"golang.org/x/sys/unix"
)

// NewNonblockingSocket creates a socket of the given family/sotype (e.g.
// unix.AF_INET/unix.SOCK_STREAM), already marked non-blocking and
// close-on-exec, ready to Bind/Connect/Listen. The reactor needs the fd
// non-blocking from the moment it exists so that Connect never blocks the
// calling goroutine, even before the fd is registered with a poller.
func NewNonblockingSocket(family, sotype int) (int, error) {
	fd, err := unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// FamilyOf returns the socket address family implied by addr's IP, or
// unix.AF_INET if addr carries no IP (the wildcard/any-address case).
func FamilyOf(addr net.Addr) int {
	ip := ipOf(addr)
	if ip == nil {
		return unix.AF_INET
	}
	return getFamily(ip)
}

func ipOf(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

// SockaddrOf converts addr into a unix.Sockaddr. addr is passed as both the
// local and remote half of AddrToSockAddr's family-comparison check, which
// trivially passes since it is the same address compared to itself; only
// its own IP/port/zone are used to build the result.
func SockaddrOf(addr net.Addr) (unix.Sockaddr, error) {
	return AddrToSockAddr(addr, addr)
}

// Bind binds fd to addr.
func Bind(fd int, addr net.Addr) error {
	sa, err := SockaddrOf(addr)
	if err != nil {
		return err
	}
	return unix.Bind(fd, sa)
}

// Connect starts a non-blocking connect of fd to addr. A nil error means
// the connection is already established (can happen for loopback); an
// EINPROGRESS error means the caller must wait for write-readiness and
// then check SO_ERROR, per the standard non-blocking connect protocol.
func Connect(fd int, addr net.Addr) error {
	sa, err := SockaddrOf(addr)
	if err != nil {
		return err
	}
	return unix.Connect(fd, sa)
}

// Listen marks fd as a passive socket with the given backlog.
func Listen(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// SocketError reads and clears SO_ERROR on fd, the standard way to learn
// the outcome of a non-blocking connect once it becomes write-ready.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// SetReuseAddr sets SO_REUSEADDR on fd.
func SetReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// BoundTCPAddr returns the address fd is actually bound to, resolving a
// wildcard port (":0") passed to Bind into the port the kernel assigned.
// Callers that bind an ephemeral port need this to learn what it became.
func BoundTCPAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	addr, ok := SockaddrToTCPOrUnixAddr(sa).(*net.TCPAddr)
	if !ok {
		return nil, unix.EAFNOSUPPORT
	}
	return addr, nil
}

// BoundUDPAddr is BoundTCPAddr's datagram-socket counterpart.
func BoundUDPAddr(fd int) (*net.UDPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	addr, ok := SockaddrToUDPAddr(sa).(*net.UDPAddr)
	if !ok {
		return nil, unix.EAFNOSUPPORT
	}
	return addr, nil
}

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

//go:build windows
// +build windows

package netutil

import (
	"net"

	"golang.org/x/sys/windows"
)

// WinsockFamilyOf returns AF_INET or AF_INET6 for addr's IP, defaulting to
// AF_INET for the wildcard/any-address case.
func WinsockFamilyOf(addr net.Addr) int {
	ip := winsockIPOf(addr)
	if ip == nil || ip.To4() != nil {
		return windows.AF_INET
	}
	return windows.AF_INET6
}

func winsockIPOf(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

// WinsockSockaddr converts addr to the windows.Sockaddr Winsock expects for
// Bind/Connect/WSARecvFrom/WSASendTo.
func WinsockSockaddr(addr net.Addr) (windows.Sockaddr, error) {
	ip := winsockIPOf(addr)
	port := portOf(addr)
	if ip == nil || ip.To4() != nil {
		var sa windows.SockaddrInet4
		sa.Port = port
		if ip != nil {
			copy(sa.Addr[:], ip.To4())
		}
		return &sa, nil
	}
	var sa windows.SockaddrInet6
	sa.Port = port
	copy(sa.Addr[:], ip.To16())
	return &sa, nil
}

func portOf(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case *net.UDPAddr:
		return a.Port
	default:
		return 0
	}
}

// SockaddrToTCPAddr converts a windows.Sockaddr back into a *net.TCPAddr,
// the Windows counterpart of SockaddrToTCPOrUnixAddr.
func SockaddrToTCPAddr(sa windows.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *windows.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	case *windows.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	default:
		return nil
	}
}

// SockaddrToUDPAddr converts a windows.Sockaddr back into a *net.UDPAddr.
func SockaddrToUDPAddr(sa windows.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *windows.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])
		return &net.UDPAddr{IP: ip, Port: sa.Port}
	case *windows.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.UDPAddr{IP: ip, Port: sa.Port}
	default:
		return nil
	}
}

// NewOverlappedSocket creates a Winsock socket flagged WSA_FLAG_OVERLAPPED,
// the prerequisite for driving it through a completion port.
func NewOverlappedSocket(family, sotype int) (windows.Handle, error) {
	return windows.WSASocket(int32(family), int32(sotype), 0, nil, 0, windows.WSA_FLAG_OVERLAPPED)
}

// BoundTCPAddr returns the address s is actually bound to, resolving a
// wildcard port (":0") passed to Bind into the port Winsock assigned.
func BoundTCPAddr(s windows.Handle) (*net.TCPAddr, error) {
	sa, err := windows.Getsockname(s)
	if err != nil {
		return nil, err
	}
	addr, ok := SockaddrToTCPAddr(sa).(*net.TCPAddr)
	if !ok {
		return nil, windows.WSAEAFNOSUPPORT
	}
	return addr, nil
}

// BoundUDPAddr is BoundTCPAddr's datagram-socket counterpart.
func BoundUDPAddr(s windows.Handle) (*net.UDPAddr, error) {
	sa, err := windows.Getsockname(s)
	if err != nil {
		return nil, err
	}
	addr, ok := SockaddrToUDPAddr(sa).(*net.UDPAddr)
	if !ok {
		return nil, windows.WSAEAFNOSUPPORT
	}
	return addr, nil
}

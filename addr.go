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

package reactor

import "net"

// ResolveTCPAddr resolves address into a *net.TCPAddr accepted by DialTCP
// and ListenTCP. Both IPv4 and IPv6 literal or hostname forms are accepted
// wherever the standard library itself accepts them.
//
// A connect or listen built from the resolved address auto-binds to the
// any-address of the correct family when no explicit bind is supplied: the
// kernel itself performs this during connect()/bind(), so no separate
// any-address construction is needed here.
func ResolveTCPAddr(address string) (net.Addr, error) {
	return net.ResolveTCPAddr("tcp", address)
}

// ResolveUDPAddr resolves address into a *net.UDPAddr accepted by BindUDP
// and UDPConn.WriteTo.
func ResolveUDPAddr(address string) (net.Addr, error) {
	return net.ResolveUDPAddr("udp", address)
}

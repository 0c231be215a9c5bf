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

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenTCPResolvesEphemeralPort(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	bind, err := ResolveTCPAddr("127.0.0.1:0")
	require.NoError(t, err)
	ln, err := ListenTCP(r, bind)
	require.NoError(t, err)
	defer ln.Close()

	tcpAddr, ok := ln.LocalAddr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, tcpAddr.Port, "listener should report the kernel-assigned port, not the wildcard 0")
}

func TestListenTCPBacklogOption(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	bind, err := ResolveTCPAddr("127.0.0.1:0")
	require.NoError(t, err)
	ln, err := ListenTCP(r, bind, WithBacklog(4))
	require.NoError(t, err)
	defer ln.Close()
}

func TestWithAcceptReactorScattersConnections(t *testing.T) {
	r, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer r.Close()
	stop := driveReactor(t, r)
	defer stop()

	acceptReactor, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer acceptReactor.Close()
	stopAccept := driveReactor(t, acceptReactor)
	defer stopAccept()

	bind, err := ResolveTCPAddr("127.0.0.1:0")
	require.NoError(t, err)
	ln, err := ListenTCP(r, bind, WithAcceptReactor(acceptReactor))
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *TCPConn, 1)
	go func() { accepted <- acceptTCP(t, ln) }()

	client, err := DialTCP(r, ln.LocalAddr(), nil)
	require.NoError(t, err)
	defer client.Close()
	connectTCP(t, client, time.Second)

	var server *TCPConn
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("accept never completed")
	}
	defer server.Close()

	// The accepted connection must be driven by acceptReactor, not r: a
	// read on it only completes if acceptReactor's own PollOnce loop (not
	// r's) is the one servicing it. Exercise that by round-tripping a byte.
	go writeAllTCP(t, client, []byte("x"))
	buf := make([]byte, 1)
	n, err := readAllTCP(t, server, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))
}

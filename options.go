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

import "time"

const (
	defaultTickDuration    = time.Second
	defaultWheelSlots      = 3600
	defaultWorkerPoolSize  = 0 // 0 means unbounded, ants' convention.
	defaultUDPBufferSize   = 65535
	defaultListenerBacklog = 1024
)

// ReactorOption configures a Reactor at construction.
type ReactorOption struct {
	f func(*reactorOptions)
}

type reactorOptions struct {
	tick           time.Duration
	wheelSlots     int
	workerPoolSize int
}

func (o *reactorOptions) setDefault() {
	o.tick = defaultTickDuration
	o.wheelSlots = defaultWheelSlots
	o.workerPoolSize = defaultWorkerPoolSize
}

// WithTickDuration sets the time wheel's tick duration. Deadlines are
// rounded up to a whole number of ticks, so this bounds timeout precision.
// Defaults to one second.
func WithTickDuration(d time.Duration) ReactorOption {
	return ReactorOption{func(o *reactorOptions) { o.tick = d }}
}

// WithWheelSlots sets the number of slots in the time wheel. Defaults to
// 3600 (one hour of headroom at the default one-second tick).
func WithWheelSlots(n int) ReactorOption {
	return ReactorOption{func(o *reactorOptions) { o.wheelSlots = n }}
}

// WithWorkerPoolSize bounds the goroutine pool used to resume
// continuations and run Submit-ted work. n <= 0 means unbounded.
func WithWorkerPoolSize(n int) ReactorOption {
	return ReactorOption{func(o *reactorOptions) { o.workerPoolSize = n }}
}

// ListenOption configures ListenTCP/BindUDP.
type ListenOption struct {
	f func(*listenOptions)
}

type listenOptions struct {
	reuseport bool
	backlog   int
	accept    *Reactor
	bufSize   int
}

func (o *listenOptions) setDefault() {
	o.backlog = defaultListenerBacklog
	o.bufSize = defaultUDPBufferSize
}

// WithReuseport enables SO_REUSEPORT (via github.com/kavu/go_reuseport) so
// multiple listeners can bind the same address, scattering accepted
// connections across processes/threads. The Windows ListenTCP and BindUDP
// ignore this option.
func WithReuseport(reuseport bool) ListenOption {
	return ListenOption{func(o *listenOptions) { o.reuseport = reuseport }}
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) ListenOption {
	return ListenOption{func(o *listenOptions) { o.backlog = n }}
}

// WithAcceptReactor sets the Reactor that accepted connections register
// with, instead of the listener's own Reactor. This is how a caller
// scatters accepted connections across multiple independent event loops
// for scalability, per the accept state machine's design.
func WithAcceptReactor(r *Reactor) ListenOption {
	return ListenOption{func(o *listenOptions) { o.accept = r }}
}

// WithUDPBufferSize sets the receive buffer size UDPConn.ReadFrom
// allocates per call. Defaults to 65535, the largest possible UDP payload.
func WithUDPBufferSize(n int) ListenOption {
	return ListenOption{func(o *listenOptions) { o.bufSize = n }}
}

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

// Package reactor provides a cross-platform asynchronous I/O reactor: an
// event demultiplexer over the host's native mechanism (epoll on Linux,
// kqueue on BSD/Darwin, IOCP on Windows), a time wheel for per-operation
// deadlines, and file/TCP/UDP handle adapters exposing suspendable I/O
// operations driven by an external cooperative scheduler.
package reactor

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/nexoreactor/reactor/internal/poller"
	"github.com/nexoreactor/reactor/internal/registry"
	"github.com/nexoreactor/reactor/internal/scheduler"
	"github.com/nexoreactor/reactor/log"
)

// Reactor owns one OS event multiplexer, one time wheel, and the pool that
// resumes continuations. A program typically creates a small, fixed number
// of Reactors (often one per CPU) and scatters handles across them.
type Reactor struct {
	reg    *registry.Registry
	pool   *scheduler.Pool
	closed int32
}

// New creates a Reactor backed by the platform's native poller.
func New(opts ...ReactorOption) (*Reactor, error) {
	o := &reactorOptions{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(o)
	}

	p, err := poller.New()
	if err != nil {
		return nil, errors.Wrap(err, "create poller")
	}
	pool, err := scheduler.NewPool(o.workerPoolSize)
	if err != nil {
		_ = p.Shutdown()
		return nil, errors.Wrap(err, "create worker pool")
	}
	reg := registry.New(p, pool, o.tick, o.wheelSlots)
	log.Infof("reactor started, tick=%v wheel-slots=%d worker-pool-size=%d", o.tick, o.wheelSlots, o.workerPoolSize)
	return &Reactor{reg: reg, pool: pool}, nil
}

// PollOnce drives one iteration of the reactor's event loop: it blocks up
// to maxWait for readiness/completion events (a negative maxWait blocks
// until an event or a Wake; zero returns at once), folds them and any expired
// deadlines into completions, resumes every affected continuation, and
// returns how many continuations it resumed.
//
// A caller typically runs PollOnce in a tight loop on one or more
// dedicated goroutines; the reactor itself creates no goroutines of its
// own for this purpose.
func (r *Reactor) PollOnce(maxWait time.Duration) (int, error) {
	n, err := r.reg.PollOnce(maxWait)
	if err != nil {
		log.Debugf("reactor poll error: %v", err)
	}
	return n, err
}

// Wake unblocks a concurrent PollOnce call immediately, used when new work
// (e.g. a deadline earlier than the current wait) needs prompt attention.
func (r *Reactor) Wake() error {
	return r.reg.Wake()
}

// Submit runs task on the reactor's worker pool instead of the caller's own
// goroutine, useful for offloading CPU-bound continuation work so it never
// blocks the event loop thread.
func (r *Reactor) Submit(task func()) error {
	return r.pool.Submit(task)
}

// Close shuts down the reactor's poller and worker pool. Close does not
// close any handle registered with the reactor; callers must close their
// own handles first. Close is idempotent.
func (r *Reactor) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	log.Infof("reactor shutting down")
	r.pool.Release()
	return r.reg.Shutdown()
}

func (r *Reactor) onOpen(h poller.Handle) error  { return r.reg.OnOpen(h) }
func (r *Reactor) onClose(h poller.Handle) error { return r.reg.OnClose(h) }

// register arms interest in key, returning the already-available result
// immediately (ready=true) or enqueuing cont to be resumed later.
func (r *Reactor) register(key poller.Key, cont Continuation, deadline time.Duration) (poller.Result, bool) {
	return r.reg.Register(key, cont, deadline)
}

// pollResult retrieves and clears a completed result for key, if any.
func (r *Reactor) pollResult(key poller.Key) (poller.Result, bool) {
	return r.reg.PollIOEvent(key)
}

// cancelAll completes every pending operation on h with a closed error,
// called once by a handle's Close.
func (r *Reactor) cancelAll(h poller.Handle) {
	r.reg.CancelAll(h)
}

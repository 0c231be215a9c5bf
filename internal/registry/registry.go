// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package registry is the reactor's single point of suspension and
// resumption. It holds the pending/completed bookkeeping and the time
// wheel behind one short-held guard, and drives the OS poller outside of
// it.
package registry

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nexoreactor/reactor/internal/locker"
	"github.com/nexoreactor/reactor/internal/poller"
	"github.com/nexoreactor/reactor/internal/scheduler"
	"github.com/nexoreactor/reactor/internal/wheel"
	"github.com/nexoreactor/reactor/metrics"
)

// Key and Result are re-exported so callers never need to import
// internal/poller directly just to talk to a Registry.
type Key = poller.Key
type Result = poller.Result

// ErrTimeout is the error written into completed[key] when a deadline
// fires before the operation's event does.
var ErrTimeout = errors.New("registry: operation timed out")

// ErrClosed is the error written into completed[key] for every pending
// entry flushed by CancelAll.
var ErrClosed = errors.New("registry: handle closed")

const defaultEventBatch = 128

// Registry implements register/poll-io-event/cancel-all/on-open/on-close
// and the poll-once event loop step on top of one OS poller.
type Registry struct {
	mu        locker.Locker
	pending   map[poller.Key]scheduler.Continuation
	completed map[poller.Key]poller.Result
	wheel     *wheel.Wheel
	tick      time.Duration
	lastPoll  time.Time

	p    poller.Poller
	pool *scheduler.Pool
}

// New creates a Registry driving p, with the given tick duration and
// number of time-wheel slots. tick <= 0 defaults to one second; slots <= 0
// defaults to 3600 (one hour of 1s ticks).
func New(p poller.Poller, pool *scheduler.Pool, tick time.Duration, slots int) *Registry {
	if tick <= 0 {
		tick = time.Second
	}
	if slots <= 0 {
		slots = 3600
	}
	return &Registry{
		pending:   make(map[poller.Key]scheduler.Continuation),
		completed: make(map[poller.Key]poller.Result),
		wheel:     wheel.New(slots),
		tick:      tick,
		p:         p,
		pool:      pool,
	}
}

// OnOpen forwards a handle's construction to the OS poller, establishing
// any long-lived registration (epoll) or port association (IOCP) it needs.
func (r *Registry) OnOpen(h poller.Handle) error {
	return r.p.Open(h)
}

// OnClose forwards a handle's close to the OS poller, tearing down its
// long-lived registration. Callers should invoke CancelAll first so no
// continuation is left dangling.
func (r *Registry) OnClose(h poller.Handle) error {
	return r.p.Close(h)
}

// Register places (key, cont) in pending and, if deadline is positive,
// schedules a timeout on the time wheel. If an event for key already
// completed before Register was called (only possible under the
// completion backend, where the syscall may finish between the adapter's
// pending-check and its registration), the cached result is consumed and
// returned immediately instead.
func (r *Registry) Register(key poller.Key, cont scheduler.Continuation, deadline time.Duration) (poller.Result, bool) {
	r.mu.Lock()
	if res, ok := r.completed[key]; ok {
		delete(r.completed, key)
		r.mu.Unlock()
		return res, true
	}
	r.pending[key] = cont
	if deadline > 0 {
		r.wheel.Add(r.ticksFor(deadline), key)
	}
	r.mu.Unlock()

	metrics.Add(metrics.RegistryRegisterCalls, 1)
	// Arming can fail (e.g. the handle was concurrently closed); the
	// pending entry still gets cleaned up by that close's CancelAll.
	_ = r.p.Arm(key)
	return poller.Result{}, false
}

// ticksFor converts a wall-clock deadline into a tick count, rounded up
// but never below one tick, per the timeout-precision contract.
func (r *Registry) ticksFor(deadline time.Duration) int {
	ticks := int((deadline + r.tick - 1) / r.tick)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// PollIOEvent atomically removes and returns completed[key] if present.
func (r *Registry) PollIOEvent(key poller.Key) (poller.Result, bool) {
	r.mu.Lock()
	res, ok := r.completed[key]
	if ok {
		delete(r.completed, key)
	}
	r.mu.Unlock()
	return res, ok
}

// CancelAll removes every pending entry for handle, writes ErrClosed as
// their completed result and schedules their continuations for
// resumption. It is called once, at handle close.
func (r *Registry) CancelAll(handle poller.Handle) {
	r.mu.Lock()
	var resume []scheduler.Continuation
	for key, cont := range r.pending {
		if key.Handle != handle {
			continue
		}
		delete(r.pending, key)
		r.wheel.Remove(key)
		r.completed[key] = poller.Result{Err: ErrClosed}
		resume = append(resume, cont)
	}
	r.mu.Unlock()

	metrics.Add(metrics.RegistryCancelAll, 1)
	r.resumeAll(resume)
}

// PollOnce is the event loop step: wait for OS events, fold them (and any
// expired deadlines) into completed, and resume the affected
// continuations. It returns the number of continuations resumed and any
// fatal poller error. Safe to call concurrently from multiple goroutines.
func (r *Registry) PollOnce(maxWait time.Duration) (int, error) {
	metrics.Add(metrics.RegistryPollCalls, 1)

	var local [defaultEventBatch]poller.Event
	events, err := r.p.Wait(maxWait, local[:0])
	if err != nil {
		return 0, errors.Wrap(err, "poll-once")
	}

	var resume []scheduler.Continuation

	r.mu.Lock()
	for _, ev := range events {
		if ev.Key.Op.IsHup() {
			resume = append(resume, r.hupLocked(ev)...)
			continue
		}
		cont, ok := r.pending[ev.Key]
		if !ok {
			// Spurious, or already resolved by a concurrent timeout.
			continue
		}
		delete(r.pending, ev.Key)
		r.wheel.Remove(ev.Key)
		r.completed[ev.Key] = ev.Result
		resume = append(resume, cont)
		metrics.Add(metrics.RegistryCompletions, 1)
	}

	if ticks := r.elapsedTicksLocked(); ticks > 0 {
		for _, k := range r.wheel.TickN(ticks) {
			key := k.(poller.Key)
			cont, ok := r.pending[key]
			if !ok {
				continue
			}
			delete(r.pending, key)
			r.completed[key] = poller.Result{Err: ErrTimeout}
			resume = append(resume, cont)
			metrics.Add(metrics.RegistryDeadlineFires, 1)
		}
	}
	r.mu.Unlock()

	r.resumeAll(resume)
	return len(resume), nil
}

// hupLocked folds a synthesized hangup event into every pending entry for
// its handle. Must be called with mu held.
func (r *Registry) hupLocked(ev poller.Event) []scheduler.Continuation {
	var resume []scheduler.Continuation
	for key, cont := range r.pending {
		if key.Handle != ev.Key.Handle {
			continue
		}
		delete(r.pending, key)
		r.wheel.Remove(key)
		r.completed[key] = ev.Result
		resume = append(resume, cont)
		metrics.Add(metrics.RegistryCompletions, 1)
	}
	return resume
}

// elapsedTicksLocked computes how many whole ticks have passed since the
// previous PollOnce call and advances lastPoll by exactly that many ticks,
// so fractional remainders accumulate towards the next call instead of
// being discarded. Must be called with mu held.
func (r *Registry) elapsedTicksLocked() int {
	now := time.Now()
	if r.lastPoll.IsZero() {
		r.lastPoll = now
		return 0
	}
	elapsed := now.Sub(r.lastPoll)
	ticks := int(elapsed / r.tick)
	if ticks <= 0 {
		return 0
	}
	r.lastPoll = r.lastPoll.Add(time.Duration(ticks) * r.tick)
	return ticks
}

func (r *Registry) resumeAll(continuations []scheduler.Continuation) {
	for _, c := range continuations {
		r.pool.Resume(c)
	}
}

// Wake unblocks a concurrent PollOnce call; Reactor.Wake calls it.
func (r *Registry) Wake() error {
	return r.p.Wake()
}

// Shutdown releases the underlying OS poller's resources. No further calls
// to any Registry method are valid afterwards.
func (r *Registry) Shutdown() error {
	return r.p.Shutdown()
}

// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package scheduler dispatches continuation resumption and user callbacks
// to bounded goroutine pools, off the thread that is driving the reactor's
// poll loop.
package scheduler

import (
	"github.com/panjf2000/ants/v2"

	"github.com/nexoreactor/reactor/metrics"
)

// Continuation is the resume primitive an external cooperative scheduler
// implements. The registry never inspects a Continuation's internals; it
// only ever calls Resume, exactly once, when the operation the
// continuation was registered for completes or times out.
type Continuation interface {
	Resume()
}

// Pool is a pair of bounded goroutine pools: one dedicated to resuming
// reactor continuations, one available to callers via Submit for their own
// work. Keeping them separate means a flood of user-submitted work cannot
// starve continuation resumption.
type Pool struct {
	sys *ants.PoolWithFunc
	usr *ants.Pool
}

// NewPool creates a Pool. size bounds each of the two pools independently;
// size <= 0 means unbounded (ants' convention).
func NewPool(size int) (*Pool, error) {
	sys, err := ants.NewPoolWithFunc(size, resumeHandler)
	if err != nil {
		return nil, err
	}
	usr, err := ants.NewPool(size)
	if err != nil {
		sys.Release()
		return nil, err
	}
	return &Pool{sys: sys, usr: usr}, nil
}

func resumeHandler(v interface{}) {
	c, ok := v.(Continuation)
	if !ok {
		return
	}
	c.Resume()
}

// Resume schedules c.Resume() on the system pool. When every worker is busy
// the call waits for a free one. If the pool refuses the task (for example
// after Release), it falls back to calling Resume synchronously so a
// completed operation is never silently dropped.
func (p *Pool) Resume(c Continuation) {
	metrics.Add(metrics.TaskAssigned, 1)
	if err := p.sys.Invoke(c); err != nil {
		c.Resume()
	}
}

// Submit submits task to the user pool. Callers use this to hand work to
// the reactor's shared goroutine pool instead of spawning their own
// goroutines per callback.
func (p *Pool) Submit(task func()) error {
	return p.usr.Submit(task)
}

// Release tears down both pools. No further Resume or Submit calls are
// valid afterwards.
func (p *Pool) Release() {
	p.sys.Release()
	p.usr.Release()
}

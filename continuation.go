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

import "github.com/nexoreactor/reactor/internal/scheduler"

// Continuation is the resume primitive an external cooperative scheduler
// implements and hands to a suspendable operation's Poll method. When the
// operation's event fires, or its deadline expires, the reactor calls
// Resume exactly once. A Continuation carries no payload: the resumed
// party is expected to call Poll again to retrieve the now-ready result.
//
// This is the Go expression of the poll/wake contract a language with
// native async/await gets for free; callers typically implement it with a
// buffered channel or a sync.Cond.
type Continuation = scheduler.Continuation

// ChanContinuation is a minimal Continuation backed by a buffered channel,
// convenient for callers driving operations from a single goroutine with a
// blocking Wait.
type ChanContinuation struct {
	ready chan struct{}
}

// NewChanContinuation creates a ready-to-use ChanContinuation.
func NewChanContinuation() *ChanContinuation {
	return &ChanContinuation{ready: make(chan struct{}, 1)}
}

// Resume implements Continuation.
func (c *ChanContinuation) Resume() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Wait blocks until Resume has been called at least once since the last
// Wait call (or since creation).
func (c *ChanContinuation) Wait() {
	<-c.ready
}

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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChanContinuationWaitBlocksUntilResume(t *testing.T) {
	c := NewChanContinuation()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Resume was called")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestChanContinuationResumeCoalesces(t *testing.T) {
	c := NewChanContinuation()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Resume()
		c.Resume()
		c.Resume()
	}()
	wg.Wait()

	// Three Resumes before any Wait must still only unblock one Wait; the
	// buffered channel coalesces them into a single pending wakeup.
	c.Wait()
	select {
	case <-c.ready:
		t.Fatal("a second wakeup should not be pending")
	default:
	}
}

func TestChanContinuationResumeBeforeWait(t *testing.T) {
	c := NewChanContinuation()
	c.Resume()

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe an earlier Resume")
	}
}

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

// Package metrics provides reactor runtime monitoring data, such as the
// number of Register calls and poller waits, which is a good tool
// for performance tuning.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// Poller metrics
	EpollWait = iota
	EpollNoWait
	EpollEvents

	// Registry metrics
	RegistryRegisterCalls
	RegistryPollCalls
	RegistryCompletions
	RegistryDeadlineFires
	RegistryCancelAll
	TaskAssigned
	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	new := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = new[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	fmt.Println("######### reactor metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showPollerMetrics(m)
	showRegistryMetrics(m)
	fmt.Printf("%-59s: %d\n", "# number of continuations handed to the resume pool", m[TaskAssigned])
	fmt.Printf("\n")
}

func showPollerMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# POLLER - number of Wait calls", m[EpollWait])
	fmt.Printf("%-59s: %d\n", "# POLLER - number of Wait calls with a zero timeout", m[EpollNoWait])
	fmt.Printf("%-59s: %d\n", "# POLLER - number of total events delivered", m[EpollEvents])
	if m[EpollWait] > 0 {
		fmt.Printf("%-59s: %.2f%%\n", "# POLLER - zero-timeout fraction", float32(m[EpollNoWait])*100/float32(m[EpollWait]))
		fmt.Printf("%-59s: %.2f\n", "# POLLER - average events per Wait",
			float32(m[EpollEvents])/float32(m[EpollWait]))
	}
}

func showRegistryMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# REGISTRY - number of Register calls", m[RegistryRegisterCalls])
	fmt.Printf("%-59s: %d\n", "# REGISTRY - number of PollOnce calls", m[RegistryPollCalls])
	fmt.Printf("%-59s: %d\n", "# REGISTRY - number of operations completed", m[RegistryCompletions])
	fmt.Printf("%-59s: %d\n", "# REGISTRY - number of deadline expirations", m[RegistryDeadlineFires])
	fmt.Printf("%-59s: %d\n", "# REGISTRY - number of CancelAll invocations", m[RegistryCancelAll])
}

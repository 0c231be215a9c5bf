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

// Connect states for TCPConn.connectState, shared by both the readiness
// and completion backend adapters.
const (
	connectNotInitiated int32 = iota
	connectInFlight
	connectConnected
	connectFailed
)

// stringError is a trivial comparable error, used for package sentinels
// that carry no dynamic state.
type stringError string

func (e stringError) Error() string { return string(e) }

var (
	errConnectFailed = stringError("connect failed")
	errBadAddrType   = stringError("address is not the expected net.Addr concrete type")
)

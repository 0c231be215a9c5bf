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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexoreactor/reactor/internal/registry"
)

func TestErrKindString(t *testing.T) {
	cases := map[ErrKind]string{
		ErrKindOther:   "other",
		ErrKindTimeout: "timeout",
		ErrKindClosed:  "closed",
		ErrKindEOF:     "eof",
		ErrKind(99):    "other",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestNewErrorNilIsNil(t *testing.T) {
	assert.Nil(t, newError("read", "127.0.0.1:0", nil))
}

func TestNewErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrKind
	}{
		{"timeout", registry.ErrTimeout, ErrKindTimeout},
		{"closed", registry.ErrClosed, ErrKindClosed},
		{"eof", errEOF, ErrKindEOF},
		{"other", errors.New("boom"), ErrKindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newError("read", "127.0.0.1:0", tc.err)
			if assert.NotNil(t, e) {
				assert.Equal(t, tc.kind, e.Kind)
				assert.ErrorIs(t, e, tc.err)
			}
		})
	}
}

func TestErrorMessageIncludesAddr(t *testing.T) {
	e := newError("dial", "10.0.0.1:80", errors.New("refused"))
	assert.Contains(t, e.Error(), "dial")
	assert.Contains(t, e.Error(), "10.0.0.1:80")
	assert.Contains(t, e.Error(), "refused")
}

func TestErrorMessageOmitsEmptyAddr(t *testing.T) {
	e := newError("poll", "", errors.New("boom"))
	assert.NotContains(t, e.Error(), "  ")
}

func TestErrorTimeoutAndTemporary(t *testing.T) {
	e := newError("read", "", registry.ErrTimeout)
	assert.True(t, e.Timeout())
	assert.True(t, e.Temporary())

	e = newError("read", "", registry.ErrClosed)
	assert.False(t, e.Timeout())
	assert.False(t, e.Temporary())
}

// asError must never surface a non-nil *Error wrapped in a nil-looking
// interface: the classic typed-nil trap this helper exists to avoid.
func TestAsErrorAvoidsTypedNil(t *testing.T) {
	err := asError("read", "", nil)
	assert.Nil(t, err)
	assert.True(t, err == nil)
}

func TestUnexpectedEOF(t *testing.T) {
	err := UnexpectedEOF("read", "127.0.0.1:0")
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, ErrKindEOF, e.Kind)
}

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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, f *File, buf []byte) int {
	t.Helper()
	cont := NewChanContinuation()
	for {
		n, ready, err := f.Read(buf, cont, 0)
		if ready {
			require.NoError(t, err)
			return n
		}
		cont.Wait()
	}
}

func writeFile(t *testing.T, f *File, buf []byte) {
	t.Helper()
	cont := NewChanContinuation()
	written := 0
	for written < len(buf) {
		n, ready, err := f.Write(buf[written:], cont, 0)
		if !ready {
			cont.Wait()
			continue
		}
		require.NoError(t, err)
		written += n
	}
}

func TestFileWriteSeekRead(t *testing.T) {
	r, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer r.Close()
	stop := driveReactor(t, r)
	defer stop()

	path := filepath.Join(t.TempDir(), "roundtrip.txt")
	f, err := OpenFile(r, path, FileCreateTruncate)
	require.NoError(t, err)
	defer f.Close()

	writeFile(t, f, []byte("abcdefgh"))

	pos, err := f.Seek(0, SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	buf := make([]byte, 8)
	n := readFile(t, f, buf)
	assert.Equal(t, "abcdefgh", string(buf[:n]))
}

func TestFileAppendSeeksToEnd(t *testing.T) {
	r, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer r.Close()
	stop := driveReactor(t, r)
	defer stop()

	path := filepath.Join(t.TempDir(), "append.txt")
	f, err := OpenFile(r, path, FileCreateTruncate)
	require.NoError(t, err)
	writeFile(t, f, []byte("first-"))
	require.NoError(t, f.Close())

	f2, err := OpenFile(r, path, FileAppend)
	require.NoError(t, err)
	defer f2.Close()
	writeFile(t, f2, []byte("second"))

	pos, err := f2.Seek(0, SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	buf := make([]byte, 32)
	n := readFile(t, f2, buf)
	assert.Equal(t, "first-second", string(buf[:n]))
}

func TestFileReadReportsEOF(t *testing.T) {
	r, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer r.Close()
	stop := driveReactor(t, r)
	defer stop()

	path := filepath.Join(t.TempDir(), "empty.txt")
	f, err := OpenFile(r, path, FileCreateTruncate)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 8)
	n := readFile(t, f, buf)
	assert.Zero(t, n)
}

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

//go:build linux || freebsd || dragonfly || darwin
// +build linux freebsd dragonfly darwin

package reactor

import (
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nexoreactor/reactor/internal/poller"
)

// FileMode selects the POSIX open mode a File is created with. There is no
// teacher file adapter to ground this on (tnet only opens sockets); the
// three-mode set mirrors the original Rust reactor's fs::OpenOptions.
type FileMode int

const (
	// FileReadOnly opens an existing file for reading only.
	FileReadOnly FileMode = iota
	// FileCreateTruncate creates the file if needed, truncates it if it
	// already exists, and opens it for reading and writing.
	FileCreateTruncate
	// FileAppend creates the file if needed and opens it for reading and
	// appending; every write lands at the current end of file.
	FileAppend
)

// File is a byte-stream handle over a plain file. Unlike sockets, reads and
// writes on a regular file never report would-block on the platforms this
// package targets, so File's Read/Write never actually suspend — they
// still go through the pollOp path so a caller can treat every adapter
// uniformly, and so a future non-regular-file (FIFO, device node) opened
// through File still suspends correctly.
type File struct {
	*netFD
}

// OpenFile opens path under mode and registers the resulting handle with r.
func OpenFile(r *Reactor, path string, mode FileMode) (*File, error) {
	flags := unix.O_NONBLOCK | unix.O_CLOEXEC
	switch mode {
	case FileReadOnly:
		flags |= unix.O_RDONLY
	case FileCreateTruncate:
		flags |= unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC
	case FileAppend:
		flags |= unix.O_RDWR | unix.O_CREAT | unix.O_APPEND
	}
	fd, err := unix.Open(path, flags, 0o644)
	if err != nil {
		return nil, newError("open", path, err)
	}
	nfd, err := newNetFD(r, fd, pathAddr(path), nil)
	if err != nil {
		return nil, newError("open", path, err)
	}
	return &File{netFD: nfd}, nil
}

// pathAddr lets a file's "local address" (for error messages) be its path
// without inventing a new net.Addr implementation per field.
type pathAddr string

func (p pathAddr) Network() string { return "file" }
func (p pathAddr) String() string  { return string(p) }

// Read reads up to len(buf) bytes at the file's current offset.
func (f *File) Read(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := pollOp(f.netFD, poller.OpRead, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		n, err := unix.Read(f.fd, buf)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		if n == 0 {
			return 0, nil, 0, false, io.EOF
		}
		return n, nil, 0, false, nil
	})
	if !ready {
		return 0, false, nil
	}
	if res.Err == io.EOF {
		return 0, true, nil
	}
	return res.N, true, asError("read", f.laddr.String(), res.Err)
}

// Write writes len(buf) bytes at the file's current offset (or at
// end-of-file, under FileAppend).
func (f *File) Write(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := pollOp(f.netFD, poller.OpWrite, cont, deadline, func() (int, net.Addr, rawHandle, bool, error) {
		n, err := unix.Write(f.fd, buf)
		if err != nil {
			return 0, nil, 0, isWouldBlock(err), err
		}
		return n, nil, 0, false, nil
	})
	if !ready {
		return 0, false, nil
	}
	return res.N, true, asError("write", f.laddr.String(), res.Err)
}

// SeekWhence selects Seek's reference point.
type SeekWhence int

// Recognised whence values, matching io.Seeker's convention.
const (
	SeekStart   SeekWhence = unix.SEEK_SET
	SeekCurrent SeekWhence = unix.SEEK_CUR
	SeekEnd     SeekWhence = unix.SEEK_END
)

// Seek repositions the file's offset and returns the new absolute offset.
// Unlike Read/Write/Connect/Accept, Seek never interacts with the reactor:
// it calls lseek directly and returns synchronously, because seek never
// blocks on the backends this package targets. Seek on a non-seekable
// handle (a socket) fails with ESPIPE.
func (f *File) Seek(offset int64, whence SeekWhence) (int64, error) {
	off, err := unix.Seek(f.fd, offset, int(whence))
	if err != nil {
		return 0, newError("seek", f.laddr.String(), err)
	}
	return off, nil
}

// Close releases the file descriptor.
func (f *File) Close() error {
	return f.close()
}

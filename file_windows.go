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

//go:build windows
// +build windows

package reactor

import (
	"io"
	"net"
	"time"

	"golang.org/x/sys/windows"

	"github.com/nexoreactor/reactor/internal/poller"
)

// FileMode selects the open mode a File is created with. There is no
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

// File is a byte-stream handle over a plain file, read and written through
// overlapped ReadFile/WriteFile calls completing on the same port every
// socket handle uses.
type File struct {
	*netFD
}

// OpenFile opens path under mode with FILE_FLAG_OVERLAPPED and registers
// the resulting handle with r.
func OpenFile(r *Reactor, path string, mode FileMode) (*File, error) {
	var access, disposition uint32
	switch mode {
	case FileReadOnly:
		access = windows.GENERIC_READ
		disposition = windows.OPEN_EXISTING
	case FileCreateTruncate:
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
		disposition = windows.CREATE_ALWAYS
	case FileAppend:
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
		disposition = windows.OPEN_ALWAYS
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, newError("open", path, err)
	}
	h, err := windows.CreateFile(p, access, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, disposition, windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return nil, newError("open", path, err)
	}
	if mode == FileAppend {
		if _, err := windows.Seek(h, 0, int(windows.FILE_END)); err != nil {
			windows.CloseHandle(h)
			return nil, newError("open", path, err)
		}
	}
	nfd, err := newNetFD(r, h, pathAddr(path), nil, closeFile)
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
	res, ready := overlappedOp(f.netFD, poller.OpRead, cont, deadline, buf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		var n uint32
		err := windows.ReadFile(windows.Handle(f.fd), buf, &n, ov.Ptr())
		if err == nil && n == 0 {
			err = io.EOF
		}
		return n, nil, 0, err
	})
	if !ready {
		return 0, false, nil
	}
	if res.Err == io.EOF || res.Err == windows.ERROR_HANDLE_EOF {
		return 0, true, nil
	}
	return res.N, true, asError("read", f.laddr.String(), res.Err)
}

// Write writes len(buf) bytes at the file's current offset (or at
// end-of-file, under FileAppend).
func (f *File) Write(buf []byte, cont Continuation, deadline time.Duration) (int, bool, error) {
	res, ready := overlappedOp(f.netFD, poller.OpWrite, cont, deadline, buf, func(ov *poller.Overlapped) (uint32, net.Addr, rawHandle, error) {
		var n uint32
		err := windows.WriteFile(windows.Handle(f.fd), buf, &n, ov.Ptr())
		return n, nil, 0, err
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
	SeekStart   SeekWhence = windows.FILE_BEGIN
	SeekCurrent SeekWhence = windows.FILE_CURRENT
	SeekEnd     SeekWhence = windows.FILE_END
)

// Seek repositions the file's offset and returns the new absolute offset.
// Unlike Read/Write, Seek never interacts with the reactor: it calls
// SetFilePointer directly and returns synchronously, since seek never
// blocks on the backends this package targets.
func (f *File) Seek(offset int64, whence SeekWhence) (int64, error) {
	newPos, err := windows.Seek(windows.Handle(f.fd), offset, int(whence))
	if err != nil {
		return 0, newError("seek", f.laddr.String(), err)
	}
	return newPos, nil
}

// Close releases the file handle.
func (f *File) Close() error {
	return f.close()
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ProcessMemory reads a live process's memory with process_vm_readv.
// Reads are not synchronized with the target; callers get whatever
// bytes the target happened to have at the time, which is exactly the
// racy view the frame walker is specified to tolerate. Writes are
// refused: patching a live frame requires the target to be stopped and
// is done through ptrace by whoever stopped it.
type ProcessMemory struct {
	Pid int
}

// ReadAt implements Memory.
func (p *ProcessMemory) ReadAt(b []byte, a Address) error {
	if len(b) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &b[0], Len: uint64(len(b))}}
	remote := []unix.RemoteIovec{{Base: uintptr(a), Len: len(b)}}
	n, err := unix.ProcessVMReadv(p.Pid, local, remote, 0)
	if err != nil {
		return fmt.Errorf("process_vm_readv pid %d at %v: %v", p.Pid, a, err)
	}
	if n != len(b) {
		return fmt.Errorf("short read of pid %d at %v: %d < %d", p.Pid, a, n, len(b))
	}
	return nil
}

// WriteAt implements Memory.
func (p *ProcessMemory) WriteAt(b []byte, a Address) error {
	return fmt.Errorf("refusing to write live process memory at %v", a)
}

// Readable implements Memory. There is no cheap way to test
// readability of another process without reading, so probe.
func (p *ProcessMemory) Readable(a Address, n int64) bool {
	if n <= 0 {
		return false
	}
	b := make([]byte, n)
	return p.ReadAt(b, a) == nil
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vmem models the address space of a target JVM process. The
// walker never touches target memory directly; every access goes
// through a Memory, which bound-checks the request and reports failure
// instead of faulting. A Space is an in-process Memory assembled from
// mappings (used for offline snapshots and tests); ProcessMemory reads
// a live process.
package vmem

import (
	"encoding/binary"
	"fmt"
)

// An Address is a location in the target process's address space.
type Address uint64

// Add adds x to address a.
func (a Address) Add(x int64) Address {
	return a + Address(x)
}

// Sub subtracts b from a. Requires a >= b.
func (a Address) Sub(b Address) int64 {
	return int64(a - b)
}

// Align rounds a up to a multiple of x. x must be a power of 2.
func (a Address) Align(x int64) Address {
	return (a + Address(x) - 1) & ^(Address(x) - 1)
}

func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// Hash32 is a hash function suitable for freelru keyed by Address.
func (a Address) Hash32() uint32 {
	x := uint64(a)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return uint32(x)
}

// A Perm represents the permissions of a region of target memory.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

func (p Perm) String() string {
	b := []byte("---")
	if p&Read != 0 {
		b[0] = 'r'
	}
	if p&Write != 0 {
		b[1] = 'w'
	}
	if p&Exec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Memory is read (and, for return-address patching, write) access to a
// target address space. Implementations must not fault on bad
// addresses; they return an error instead.
type Memory interface {
	// ReadAt fills b with the target's memory starting at address a.
	ReadAt(b []byte, a Address) error
	// WriteAt stores b into the target's memory starting at address a.
	WriteAt(b []byte, a Address) error
	// Readable reports whether the n bytes at a can be read.
	Readable(a Address, n int64) bool
}

// ReadPtr reads a pointer-sized word at address a.
func ReadPtr(m Memory, order binary.ByteOrder, a Address) (Address, error) {
	var b [8]byte
	if err := m.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return Address(order.Uint64(b[:])), nil
}

// WritePtr stores a pointer-sized word at address a.
func WritePtr(m Memory, order binary.ByteOrder, a, v Address) error {
	var b [8]byte
	order.PutUint64(b[:], uint64(v))
	return m.WriteAt(b[:], a)
}

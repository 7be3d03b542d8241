// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions for the
// frame walker: pointer size and byte order, the frame layout table
// mapping logical frame slots to word offsets, and the
// pointer-authentication treatment of return addresses.
package arch

import (
	"encoding/binary"
)

// A Slot names one logical location in a frame's layout. Offsets are
// in words relative to the frame pointer unless noted otherwise.
type Slot int

const (
	// Common to all frames with a frame-pointer link.
	SlotLink       Slot = iota // saved caller frame pointer
	SlotReturnAddr             // return address
	SlotSenderSP               // caller's raw stack pointer

	// Interpreter frame slots (negative offsets, below fp).
	SlotSenderSPUnextended // caller's sp before local/adapter extension
	SlotLastSP
	SlotMethod
	SlotMDP
	SlotExtendedSP
	SlotMirror
	SlotCPCache
	SlotLocals
	SlotBCP
	SlotInitialSP

	// Entry frame slots.
	SlotCallWrapper // the call wrapper holding the frame anchor

	numSlots
)

var slotNames = [numSlots]string{
	SlotLink:               "link",
	SlotReturnAddr:         "return_addr",
	SlotSenderSP:           "sender_sp",
	SlotSenderSPUnextended: "interpreter_frame_sender_sp",
	SlotLastSP:             "interpreter_frame_last_sp",
	SlotMethod:             "interpreter_frame_method",
	SlotMDP:                "interpreter_frame_mdp",
	SlotExtendedSP:         "interpreter_frame_extended_sp",
	SlotMirror:             "interpreter_frame_mirror",
	SlotCPCache:            "interpreter_frame_cache",
	SlotLocals:             "interpreter_frame_locals",
	SlotBCP:                "interpreter_frame_bcp",
	SlotInitialSP:          "interpreter_frame_initial_sp",
	SlotCallWrapper:        "entry_frame_call_wrapper",
}

func (s Slot) String() string {
	if s < 0 || s >= numSlots {
		return "unknown slot"
	}
	return slotNames[s]
}

// A Layout is the frame layout table for one architecture.
type Layout map[Slot]int64

// Offset returns the word offset of slot s relative to the frame
// pointer, and whether the architecture defines that slot at all.
func (l Layout) Offset(s Slot) (int64, bool) {
	off, ok := l[s]
	return off, ok
}

// InterpreterSlots lists the slots a diagnostic dump describes for an
// interpreted frame, in stack order.
var InterpreterSlots = []Slot{
	SlotSenderSP, SlotReturnAddr, SlotLink,
	SlotSenderSPUnextended, SlotLastSP, SlotMethod, SlotMDP,
	SlotExtendedSP, SlotMirror, SlotCPCache, SlotLocals, SlotBCP,
	SlotInitialSP,
}

// Arch defines the architecture-specific details of the target.
type Arch struct {
	// Name is the architecture name: arm64, amd64.
	Name string
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int64
	// ByteOrder is the byte order for words read from the target.
	ByteOrder binary.ByteOrder
	// Layout is the frame layout table.
	Layout Layout
	// PACMask is the set of return-address bits used by pointer
	// authentication. Zero means the architecture (or its
	// configuration) does not sign return addresses, and the
	// strip/sign operations are the identity.
	PACMask uint64
}

// WordSize returns PointerSize as an int64 byte count.
func (a *Arch) WordSize() int64 { return a.PointerSize }

// hotspot aarch64 frame layout, in words relative to fp.
var arm64Layout = Layout{
	SlotLink:               0,
	SlotReturnAddr:         1,
	SlotSenderSP:           2,
	SlotSenderSPUnextended: -1,
	SlotLastSP:             -2,
	SlotMethod:             -3,
	SlotMDP:                -4,
	SlotExtendedSP:         -5,
	SlotMirror:             -6,
	SlotCPCache:            -7,
	SlotLocals:             -8,
	SlotBCP:                -9,
	SlotInitialSP:          -10,
	SlotCallWrapper:        -8,
}

// ARM64 is aarch64 with return-address signing enabled. The PAC field
// occupies the bits between the top of the virtual address range and
// the tag byte.
var ARM64 = Arch{
	Name:        "arm64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
	Layout:      arm64Layout,
	PACMask:     0x007f_ff80_0000_0000,
}

// ARM64NoPauth is aarch64 without return-address signing.
var ARM64NoPauth = Arch{
	Name:        "arm64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
	Layout:      arm64Layout,
}

// AMD64 shares the frame-pointer-relative part of the layout; it has
// no sender-sp slot above the return address and never signs return
// addresses.
var AMD64 = Arch{
	Name:        "amd64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
	Layout: Layout{
		SlotLink:               0,
		SlotReturnAddr:         1,
		SlotSenderSP:           2,
		SlotSenderSPUnextended: -1,
		SlotLastSP:             -2,
		SlotMethod:             -3,
		SlotMDP:                -4,
		SlotMirror:             -5,
		SlotCPCache:            -6,
		SlotLocals:             -7,
		SlotBCP:                -8,
		SlotInitialSP:          -9,
		SlotCallWrapper:        -6,
	},
}

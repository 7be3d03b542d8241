// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"fmt"

	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/codecache"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// DeoptState records whether a frame's return slot has been redirected
// to a deoptimization handler.
type DeoptState int

const (
	DeoptUnknown DeoptState = iota
	NotDeoptimized
	Deoptimized
)

// A Frame is a snapshot of one activation record. It is a transient
// value: it describes the stack at the moment it was built and holds
// no resources. sp is the raw stack pointer, unextendedSP the stack
// pointer before any callee-inserted extension, fp the frame pointer,
// pc the execution point. cb is the code blob owning pc, nil for
// native frames and interpreter frames (the interpreter is recognized
// by pc range, not by blob).
type Frame struct {
	sp           vmem.Address
	unextendedSP vmem.Address
	fp           vmem.Address
	pc           vmem.Address
	cb           *codecache.Blob

	deopt DeoptState

	// heap marks a frame materialized from continuation storage
	// rather than a native stack.
	heap bool
	// spTrusted marks a frame rebuilt from a transition anchor,
	// whose sp is known good without re-validation.
	spTrusted bool
}

// NewFrame builds a frame for the given raw registers, resolving the
// owning code blob and the deoptimization state. If pc turns out to
// be a deoptimization entry, the frame's logical pc becomes the
// original pc saved in the frame.
func NewFrame(t *Thread, sp, unextendedSP, fp, pc vmem.Address) Frame {
	f := Frame{sp: sp, unextendedSP: unextendedSP, fp: fp, pc: pc}
	f.cb = t.Cache.FindBlob(pc)
	f.computeDeoptState(t)
	return f
}

// NewTopFrame builds a frame from an (sp, fp, pc) register triple,
// as captured by a profiler or a signal handler.
func NewTopFrame(t *Thread, sp, fp, pc vmem.Address) Frame {
	return NewFrame(t, sp, sp, fp, pc)
}

// NewHeapFrame builds a frame for an activation copied out of
// continuation storage. Such frames are synthetic and always safe to
// walk.
func NewHeapFrame(t *Thread, sp, unextendedSP, fp, pc vmem.Address) Frame {
	f := NewFrame(t, sp, unextendedSP, fp, pc)
	f.heap = true
	return f
}

func (f Frame) SP() vmem.Address           { return f.sp }
func (f Frame) UnextendedSP() vmem.Address { return f.unextendedSP }
func (f Frame) FP() vmem.Address           { return f.fp }
func (f Frame) PC() vmem.Address           { return f.pc }
func (f Frame) Blob() *codecache.Blob      { return f.cb }
func (f Frame) Deopt() DeoptState          { return f.deopt }
func (f Frame) IsHeapFrame() bool          { return f.heap }

// SetSPTrusted marks the frame's sp as coming from a transition
// anchor rather than a raw register sample.
func (f *Frame) SetSPTrusted() { f.spTrusted = true }

// IsInterpreted reports whether the frame is executing in the
// interpreter's generated code.
func (f Frame) IsInterpreted(t *Thread) bool {
	return t.Cache.InterpreterContains(f.pc)
}

// IsEntry reports whether the frame is the call stub through which
// native code entered Java.
func (f Frame) IsEntry() bool {
	if f.cb == nil {
		return false
	}
	_, ok := f.cb.Kind().(codecache.EntryStub)
	return ok
}

// IsUpcall reports whether the frame is a foreign-callback stub frame.
func (f Frame) IsUpcall() bool {
	if f.cb == nil {
		return false
	}
	_, ok := f.cb.Kind().(codecache.UpcallStub)
	return ok
}

// IsCompiled reports whether the frame belongs to a compiled method.
func (f Frame) IsCompiled() bool {
	if f.cb == nil {
		return false
	}
	_, ok := f.cb.Kind().(codecache.CompiledMethod)
	return ok
}

// IsNative reports whether the frame is plain native code unknown to
// the code cache.
func (f Frame) IsNative(t *Thread) bool {
	return f.cb == nil && !f.IsInterpreted(t)
}

// KindString names the frame's kind for diagnostics.
func (f Frame) KindString(t *Thread) string {
	switch {
	case f.IsInterpreted(t):
		return "interpreted"
	case f.cb != nil:
		return f.cb.Kind().String()
	default:
		return "native"
	}
}

func (f Frame) String() string {
	return fmt.Sprintf("frame{sp %v fp %v pc %v}", f.sp, f.fp, f.pc)
}

// slotAddr returns the address of the named layout slot of this
// frame, relative to its frame pointer. The second result is false if
// the architecture does not define the slot.
func (f Frame) slotAddr(t *Thread, s arch.Slot) (vmem.Address, bool) {
	off, ok := t.Arch.Layout.Offset(s)
	if !ok {
		return 0, false
	}
	return f.fp.Add(off * t.Arch.WordSize()), true
}

// readSlot reads the named slot, bound-checking the slot address
// against the thread's stack before the dereference.
func (f Frame) readSlot(t *Thread, s arch.Slot) (vmem.Address, bool) {
	a, ok := f.slotAddr(t, s)
	if !ok {
		return 0, false
	}
	return t.readWord(a)
}

// returnAddrSlot is the address of the frame's return-address slot.
func (f Frame) returnAddrSlot(t *Thread) (vmem.Address, bool) {
	return f.slotAddr(t, arch.SlotReturnAddr)
}

// senderSPAddr is the caller's raw sp for an interpreted or native
// frame: the address just past the saved fp and return address. This
// is address arithmetic, not a load.
func (f Frame) senderSPAddr(t *Thread) vmem.Address {
	off, _ := t.Arch.Layout.Offset(arch.SlotSenderSP)
	return f.fp.Add(off * t.Arch.WordSize())
}

// computeDeoptState resolves whether the frame has been deoptimized.
// Only compiled frames have a determinate state.
func (f *Frame) computeDeoptState(t *Thread) {
	if f.cb == nil {
		f.deopt = DeoptUnknown
		return
	}
	if _, ok := f.cb.IsCompiledMethod(); !ok {
		f.deopt = DeoptUnknown
		return
	}
	if orig, ok := f.deoptOriginalPC(t); ok {
		f.pc = orig
		f.deopt = Deoptimized
	} else {
		f.deopt = NotDeoptimized
	}
}

// deoptOriginalPC recovers the original pc of a deoptimized frame: if
// the frame's pc is one of its method's deoptimization entries, the
// pre-patch pc was saved in the frame at a fixed offset from the
// unextended sp.
func (f Frame) deoptOriginalPC(t *Thread) (vmem.Address, bool) {
	if f.cb == nil || !f.cb.IsDeoptEntry(f.pc) {
		return 0, false
	}
	cm, ok := f.cb.IsCompiledMethod()
	if !ok {
		return 0, false
	}
	raw, ok := t.readWordAt(f.unextendedSP.Add(cm.OrigPCOffsetWords * t.Arch.WordSize()))
	if !ok {
		return 0, false
	}
	orig := vmem.Address(t.Arch.StripPointer(uint64(raw)))
	// The original pc must still be in the method's instructions (or
	// just past them, for a call that was the last instruction).
	if !f.cb.CodeContainsInclusive(orig) {
		return 0, false
	}
	return orig, true
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stackwalk reconstructs and verifies JVM call stacks from the
// raw memory of a target process.
//
// The central operation is single-frame-to-sender: given one
// activation record (a Frame), decide whether its caller can be
// computed without misinterpreting memory (Frame.SafeForSender) and,
// if so, compute it (Frame.Sender). Callers such as profilers may
// capture frames from a thread that is still running, so the
// classifier range-checks every pointer against the thread's stack
// bounds before dereferencing it and treats anything implausible as
// unsafe rather than guessing. Unsafe is the common, non-fatal answer;
// the caller just truncates its trace.
//
// The interpreter, the compiled-code registry, continuation storage
// and method metadata are collaborators reached through the Thread's
// fields, never owned here.
package stackwalk

import (
	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/codecache"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// A Thread is the walker's view of one target JVM thread: its memory,
// architecture, code cache, native stack bounds, and last
// Java-to-native transition anchor.
//
// The stack occupies [StackLo, StackHi) and grows down. The guard
// pages at the low end, [StackLo, GuardTop), are part of the stack
// range but must never be dereferenced.
type Thread struct {
	Mem   vmem.Memory
	Arch  *arch.Arch
	Cache *codecache.Cache

	StackLo  vmem.Address
	GuardTop vmem.Address
	StackHi  vmem.Address

	Anchor Anchor

	// Cont resolves frames whose sender was suspended into
	// continuation storage. Nil means continuations are not in use.
	Cont ContinuationResolver

	// Oracle validates interpreter metadata pointers during deep
	// frame validation. Nil falls back to structural checks only.
	Oracle MetadataOracle
}

// InUsableStack reports whether a is in the dereferenceable part of
// the thread's stack.
func (t *Thread) InUsableStack(a vmem.Address) bool {
	return t.GuardTop <= a && a < t.StackHi
}

// InFullStack reports whether a is anywhere in the stack range, guard
// pages included. Safe only for comparisons, not dereference.
func (t *Thread) InFullStack(a vmem.Address) bool {
	return t.StackLo <= a && a < t.StackHi
}

// InStackRangeExcl reports whether a is in the stack strictly above
// limit.
func (t *Thread) InStackRangeExcl(a, limit vmem.Address) bool {
	return limit < a && a < t.StackHi
}

// InStackRangeIncl reports whether a is in the stack at or above
// limit.
func (t *Thread) InStackRangeIncl(a, limit vmem.Address) bool {
	return limit <= a && a < t.StackHi
}

// readWord reads one pointer-sized word of target memory, refusing
// addresses outside the full stack range. All of the walker's stack
// reads go through here.
func (t *Thread) readWord(a vmem.Address) (vmem.Address, bool) {
	if !t.InFullStack(a) {
		return 0, false
	}
	v, err := vmem.ReadPtr(t.Mem, t.Arch.ByteOrder, a)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readWordAt reads a word from an arbitrary target address (used for
// anchors and call wrappers, which live outside the walked stack).
func (t *Thread) readWordAt(a vmem.Address) (vmem.Address, bool) {
	v, err := vmem.ReadPtr(t.Mem, t.Arch.ByteOrder, a)
	if err != nil {
		return 0, false
	}
	return v, true
}

// An Anchor is the (sp, fp, pc) of a thread's last Java frame,
// recorded when the thread called out to native code.
//
// The running thread stores sp first and pc possibly never (the
// common fast path skips it). An anchor with a sp but no pc is "not
// walkable": the pc still has to be recovered from the stack.
type Anchor struct {
	SP vmem.Address
	FP vmem.Address
	PC vmem.Address
}

// Walkable reports whether the anchor can be used as is.
func (a *Anchor) Walkable() bool {
	return a.SP == 0 || a.PC != 0
}

// MakeWalkable completes a pending anchor by reading the return
// address the Java caller left at sp[-1]. It is idempotent: once the
// pc is set (by this call or a racing one) subsequent calls return
// without touching memory. Reports whether the anchor is walkable
// afterwards.
func (a *Anchor) MakeWalkable(t *Thread) bool {
	if a.SP == 0 {
		// No last Java frame at all.
		return true
	}
	if a.PC != 0 {
		return true
	}
	raw, ok := t.readWordAt(a.SP.Add(-t.Arch.WordSize()))
	if !ok {
		return false
	}
	pc, ok := stripVerifiable(t, raw)
	if !ok {
		return false
	}
	a.PC = pc
	return a.PC != 0
}

// Clear resets the anchor to "no Java frame".
func (a *Anchor) Clear() { *a = Anchor{} }

func stripVerifiable(t *Thread, raw vmem.Address) (vmem.Address, bool) {
	v, ok := t.Arch.StripVerifiable(uint64(raw))
	return vmem.Address(v), ok
}

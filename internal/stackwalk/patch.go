// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"fmt"

	"github.com/jvmtools/walkjvm/internal/vmem"
)

// debugChecks enables the invariant checks that guard against bugs
// elsewhere in the VM. They are advisory: a production walker carries
// on, a debug build surfaces them as errors.
var debugChecks = true

// SetDebugChecks toggles the debug-only invariant checks and reports
// the previous setting.
func SetDebugChecks(on bool) bool {
	old := debugChecks
	debugChecks = on
	return old
}

// PatchPC overwrites the frame's stored return address with pc,
// redirecting where the frame resumes. Deoptimization uses this to
// route a compiled frame into the deopt handler. The caller must hold
// the frame exclusively (a safepoint, or the thread itself).
//
// The frame's owning blob must still be the blob containing pc, and
// the previously stored address (signature stripped) must be either
// the frame's current pc or pc itself: double-patching with the same
// value is fine, patching over a foreign value is a bug upstream.
//
// After the store, the frame's deopt state is re-derived: if pc is a
// deoptimization entry, the frame's logical pc becomes the saved
// original pc while the return slot keeps pointing at the handler.
func (f *Frame) PatchPC(t *Thread, pc vmem.Address) error {
	if b := t.Cache.FindBlob(pc); b != f.cb {
		return fmt.Errorf("patch pc %v: target blob %v is not the frame's blob %v", pc, b, f.cb)
	}

	ws := t.Arch.WordSize()
	pcAddr := f.sp.Add(-ws)

	raw, ok := t.readWordAt(pcAddr)
	if !ok {
		return fmt.Errorf("patch pc %v: unreadable return slot at %v", pc, pcAddr)
	}
	old, okSig := stripVerifiable(t, raw)
	if debugChecks && !okSig {
		return fmt.Errorf("patch pc %v: stored return address %v fails authentication", pc, raw)
	}
	if t.Cache.IsReturnBarrier(old) {
		return fmt.Errorf("patch pc %v: return slot holds the return barrier", pc)
	}
	// Either the stored address is the one this frame was built from
	// or we are re-patching the same value.
	if debugChecks && !(old == f.pc || old == pc || old == 0) {
		return fmt.Errorf("patch pc %v: return slot holds unexpected %v (frame pc %v)", pc, old, f.pc)
	}

	signed := vmem.Address(t.Arch.SignReturnAddress(uint64(pc)))
	if err := vmem.WritePtr(t.Mem, t.Arch.ByteOrder, pcAddr, signed); err != nil {
		return fmt.Errorf("patch pc %v: %v", pc, err)
	}

	// Must be set before the original-pc lookup; the lookup keys off
	// the frame's pc being a deopt entry.
	f.pc = pc
	if orig, ok := f.deoptOriginalPC(t); ok {
		f.deopt = Deoptimized
		f.pc = orig
	} else {
		f.deopt = NotDeoptimized
	}
	return nil
}

// StoredReturnAddress reads the frame's return slot and strips any
// signature, for callers that need to inspect the physical value.
func (f Frame) StoredReturnAddress(t *Thread) (vmem.Address, bool) {
	raw, ok := t.readWordAt(f.sp.Add(-t.Arch.WordSize()))
	if !ok {
		return 0, false
	}
	return vmem.Address(t.Arch.StripPointer(uint64(raw))), true
}

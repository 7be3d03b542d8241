// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/codecache"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// SafeForSender reports whether the frame's sender can be computed
// without risking a wild dereference or a misread frame. It never
// faults, whatever the frame holds: every pointer is range-checked
// against the thread's stack before it is dereferenced, and every
// derived value is re-checked before the next dereference. A false
// answer is the normal way out for frames captured from a running
// thread mid-prologue, mid-patch, or simply corrupt; the caller is
// expected to drop the frame from its trace.
func (f Frame) SafeForSender(t *Thread) bool {
	if f.heap {
		// Frames copied out of continuation storage were laid out by
		// the VM itself.
		return true
	}

	// sp must be in the usable part of the stack, not in the guard
	// pages.
	if !t.InUsableStack(f.sp) {
		return false
	}

	// The unextended sp can legitimately sit below sp (interpreter
	// callees shrink the machine sp before calling out), so it only
	// has to be somewhere in the stack range. It is compared, not
	// dereferenced, at this point.
	if !t.InFullStack(f.unextendedSP) {
		return false
	}

	// fp is questionable until proven otherwise: it must sit strictly
	// above sp, and the return-address slot next to it must still be
	// inside the stack.
	fpSafe := t.InStackRangeExcl(f.fp, f.sp)
	if raSlot, ok := f.returnAddrSlot(t); ok {
		fpSafe = fpSafe && t.InFullStack(raSlot)
	} else {
		fpSafe = false
	}

	if f.cb == nil {
		// Native frame unknown to the code cache. The sender will
		// follow the fp link, so fp must be safe and the return
		// address slot must hold something.
		if !fpSafe {
			return false
		}
		ra, ok := f.readSlot(t, arch.SlotReturnAddr)
		if !ok || ra == 0 {
			return false
		}
		return true
	}

	// The frame is known to the code cache, so we can attempt to
	// construct the sender and validate it.

	// Frame completeness can only be judged for compiled methods,
	// adapters and runtime stubs; other buffer blobs are assumed
	// complete. Adapters never report a complete frame and are never
	// ok.
	if !f.cb.IsFrameCompleteAt(f.pc) {
		switch f.cb.Kind().(type) {
		case codecache.CompiledMethod, codecache.Adapter, codecache.RuntimeStub:
			return false
		}
	}

	// pc could be some random pointer within the blob's metadata.
	if !f.cb.CodeContains(f.pc) {
		return false
	}

	// Entry and upcall frames are validated by their own predicates,
	// not by generic sender construction.
	if f.IsEntry() {
		return fpSafe && f.isEntryFrameValid(t)
	}
	if f.IsUpcall() {
		return fpSafe
	}

	var senderSP, senderUnextendedSP, savedFP, senderPC vmem.Address

	if f.IsInterpreted(t) {
		if !fpSafe {
			return false
		}
		// The slot below fp is the sender's raw sp; the sender's
		// unextended sp differs from it by the callee's locals.
		senderSP = f.senderSPAddr(t)
		var ok bool
		senderUnextendedSP, ok = f.readSlot(t, arch.SlotSenderSPUnextended)
		if !ok {
			return false
		}
		savedFP, ok = f.readSlot(t, arch.SlotLink)
		if !ok {
			return false
		}
		raw, ok := f.readSlot(t, arch.SlotReturnAddr)
		if !ok {
			return false
		}
		senderPC, ok = stripVerifiable(t, raw)
		if !ok {
			return false
		}
	} else {
		// Some sort of compiled or runtime frame. fp does not have to
		// be safe; the sender is found through the blob's frame size.
		// A non-positive frame size is impossible for real code and
		// means the metadata cannot be trusted.
		if f.cb.FrameSizeWords <= 0 {
			return false
		}
		senderSP = f.unextendedSP.Add(f.cb.FrameSizeWords * t.Arch.WordSize())
		if !t.InFullStack(senderSP) {
			return false
		}
		senderUnextendedSP = senderSP
		var ok bool
		savedFP, ok = t.readWord(senderSP.Add(-2 * t.Arch.WordSize()))
		if !ok {
			return false
		}
		raw, ok := t.readWord(senderSP.Add(-t.Arch.WordSize()))
		if !ok {
			return false
		}
		// Authentication may legitimately fail here if a broken frame
		// was passed in; just strip.
		senderPC = vmem.Address(t.Arch.StripPointer(uint64(raw)))
	}

	if t.Cache.IsReturnBarrier(senderPC) {
		// senderPC might be garbage that happens to equal the
		// barrier; require the frame to actually belong to a
		// continuation before trusting it.
		if t.Cont == nil || !t.Cont.IsFrameInContinuation(t, f) {
			return false
		}
		s, ok := t.Cont.BottomSender(t, f, senderSP)
		if !ok {
			return false
		}
		senderSP = s.SP()
		senderPC = s.PC()
	}

	// If the potential sender is interpreted we can check it in
	// depth: the saved fp is certainly a real frame pointer there.
	if t.Cache.InterpreterContains(senderPC) {
		if !t.InStackRangeExcl(savedFP, senderSP) {
			return false
		}
		sender := NewFrame(t, senderSP, senderUnextendedSP, savedFP, senderPC)
		return sender.IsInterpretedFrameValid(t)
	}

	// Otherwise the sender pc must resolve to something the code
	// cache knows.
	senderBlob := t.Cache.FindBlob(senderPC)
	if senderPC == 0 || senderBlob == nil {
		return false
	}

	// Note the asymmetry with the current frame: only containment is
	// checked for the sender blob, not frame completeness.
	if !senderBlob.CodeContains(senderPC) {
		return false
	}

	// Code-cache code is never called through an adapter.
	if _, ok := senderBlob.Kind().(codecache.Adapter); ok {
		return false
	}

	// Could be the call stub.
	if t.Cache.ReturnsToCallStub(senderPC) {
		if !t.InStackRangeExcl(savedFP, senderSP) {
			return false
		}
		sender := NewFrame(t, senderSP, senderUnextendedSP, savedFP, senderPC)
		// An entry frame must have a call wrapper below its fp.
		jcw, ok := sender.entryFrameCallWrapper(t)
		if !ok {
			return false
		}
		return t.InStackRangeExcl(jcw, sender.FP())
	}
	if _, ok := senderBlob.Kind().(codecache.UpcallStub); ok {
		return false
	}

	// Deoptimization entries and method-handle intrinsics have
	// ambiguous frame shapes; don't trust them on a signature check.
	if cm, ok := senderBlob.IsCompiledMethod(); ok {
		if senderBlob.IsDeoptEntry(senderPC) || cm.MethodHandleIntrinsic {
			return false
		}
	}

	// Every real method's frame counts at least the return address.
	if senderBlob.FrameSizeWords <= 0 {
		return false
	}

	// Anything in the code cache calling into the code cache is the
	// call stub (covered), the interpreter (covered), or a compiled
	// method.
	if _, ok := senderBlob.Kind().(codecache.CompiledMethod); !ok {
		return false
	}

	return true
}

// interpreter expression-stack slot size, in bytes.
const stackElementSize = 8

// IsInterpretedFrameValid applies the deep checks for a frame claimed
// to be interpreted: plausible fp/sp, a valid method, a bytecode
// pointer inside that method, a valid constant-pool cache, and a
// locals pointer inside the stack. Like the classifier it never
// faults.
func (f Frame) IsInterpretedFrameValid(t *Thread) bool {
	ws := t.Arch.WordSize()
	if f.fp == 0 || int64(f.fp)%ws != 0 {
		return false
	}
	if f.sp == 0 || int64(f.sp)%ws != 0 {
		return false
	}
	if initialSP, ok := f.slotAddr(t, arch.SlotInitialSP); !ok || initialSP < f.sp {
		return false
	}
	// Deals with the unsigned comparisons above.
	if f.fp <= f.sp {
		return false
	}

	method, ok := f.readSlot(t, arch.SlotMethod)
	if !ok {
		return false
	}
	ora := f.oracle(t)
	if !ora.ValidMethod(method) {
		return false
	}

	// Frames shouldn't be much larger than the method's operand
	// stack. This needs the unextended sp: the raw sp may sit lower
	// because of the callee's locals.
	maxStack, ok := ora.MethodMaxStack(method)
	if !ok {
		return false
	}
	if f.fp.Sub(f.unextendedSP) > 1024+maxStack*stackElementSize {
		return false
	}

	bcp, ok := f.readSlot(t, arch.SlotBCP)
	if !ok || !ora.ValidBCP(method, bcp) {
		return false
	}

	cpc, ok := f.readSlot(t, arch.SlotCPCache)
	if !ok || !ora.ValidConstantPoolCache(cpc) {
		return false
	}

	locals, ok := f.readSlot(t, arch.SlotLocals)
	if !ok {
		return false
	}
	return t.InStackRangeIncl(locals, f.fp)
}

// Call-wrapper layout: the wrapper is a native object on the entry
// frame's caller stack; its transition anchor sits after four pointer
// fields (thread, handles, callee method, receiver). Within the
// anchor the order is sp, pc, fp.
const (
	wrapperAnchorOffWords = 4
	anchorSPOffWords      = 0
	anchorPCOffWords      = 1
	anchorFPOffWords      = 2
)

// entryFrameCallWrapper reads the entry frame's call-wrapper pointer.
func (f Frame) entryFrameCallWrapper(t *Thread) (vmem.Address, bool) {
	jcw, ok := f.readSlot(t, arch.SlotCallWrapper)
	if !ok || jcw == 0 {
		return 0, false
	}
	return jcw, true
}

// readAnchorAt reads a transition anchor stored in target memory.
func (t *Thread) readAnchorAt(a vmem.Address) (Anchor, bool) {
	ws := t.Arch.WordSize()
	sp, ok := t.readWordAt(a.Add(anchorSPOffWords * ws))
	if !ok {
		return Anchor{}, false
	}
	pc, ok := t.readWordAt(a.Add(anchorPCOffWords * ws))
	if !ok {
		return Anchor{}, false
	}
	fp, ok := t.readWordAt(a.Add(anchorFPOffWords * ws))
	if !ok {
		return Anchor{}, false
	}
	return Anchor{SP: sp, FP: fp, PC: pc}, true
}

// entryAnchor locates and reads the entry frame's saved anchor.
func (f Frame) entryAnchor(t *Thread) (vmem.Address, Anchor, bool) {
	jcw, ok := f.entryFrameCallWrapper(t)
	if !ok {
		return 0, Anchor{}, false
	}
	addr := jcw.Add(wrapperAnchorOffWords * t.Arch.WordSize())
	a, ok := t.readAnchorAt(addr)
	return addr, a, ok
}

// isEntryFrameValid checks the wrapper pointer and the anchor's saved
// sp, which must be above this frame.
func (f Frame) isEntryFrameValid(t *Thread) bool {
	jcw, ok := f.entryFrameCallWrapper(t)
	if !ok {
		return false
	}
	if !t.InStackRangeExcl(jcw, f.fp) {
		return false
	}
	_, a, ok := f.entryAnchor(t)
	if !ok {
		return false
	}
	return a.SP > f.sp
}

// EntryFrameIsFirst reports whether the entry frame is the outermost
// Java frame of the thread (its anchor records no earlier Java code).
func (f Frame) EntryFrameIsFirst(t *Thread) bool {
	_, a, ok := f.entryAnchor(t)
	if !ok {
		return true
	}
	return a.SP == 0
}

// upcallAnchor locates and reads the upcall stub's saved anchor.
func (f Frame) upcallAnchor(t *Thread) (Anchor, bool) {
	us, ok := f.cb.Kind().(codecache.UpcallStub)
	if !ok {
		return Anchor{}, false
	}
	return t.readAnchorAt(f.unextendedSP.Add(us.FrameDataOffset))
}

// UpcallFrameIsFirst reports whether the upcall frame has no earlier
// Java frame to return to.
func (f Frame) UpcallFrameIsFirst(t *Thread) bool {
	a, ok := f.upcallAnchor(t)
	if !ok {
		return true
	}
	return a.SP == 0
}

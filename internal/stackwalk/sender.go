// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"errors"
	"fmt"

	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// ErrFirstFrame is returned when a sender is requested for the
// outermost frame of the thread.
var ErrFirstFrame = errors.New("frame has no sender")

// Sender computes the caller's frame. The frame should already have
// been classified safe (SafeForSender) unless it is a frame the VM
// itself handed out. If m is non-nil and updating, the computation
// records where this frame preserved registers.
func (f Frame) Sender(t *Thread, m *RegisterMap) (Frame, error) {
	switch {
	case f.IsEntry():
		return f.senderForEntry(t, m)
	case f.IsUpcall():
		return f.senderForUpcall(t, m)
	case f.IsInterpreted(t):
		return f.senderForInterpreter(t, m)
	case f.cb != nil:
		return f.senderForCompiled(t, m)
	}
	return f.senderForNative(t)
}

// senderForEntry rebuilds the frame recorded in the entry frame's
// transition anchor: the Java frame that was on top when this chunk
// of native code was entered. All native frames in between are
// skipped.
func (f Frame) senderForEntry(t *Thread, m *RegisterMap) (Frame, error) {
	if f.EntryFrameIsFirst(t) {
		return Frame{}, ErrFirstFrame
	}
	_, a, ok := f.entryAnchor(t)
	if !ok {
		return Frame{}, fmt.Errorf("entry frame %v: unreadable anchor", f)
	}
	if a.SP <= f.sp {
		return Frame{}, fmt.Errorf("entry frame %v: anchor sp %v not above frame", f, a.SP)
	}
	// We are walking the stack right now, so this nested anchor is
	// walkable even if the thread never completed it.
	if !a.MakeWalkable(t) {
		return Frame{}, fmt.Errorf("entry frame %v: anchor not walkable", f)
	}
	if m != nil {
		m.Clear()
	}
	s := NewFrame(t, a.SP, a.SP, a.FP, a.PC)
	s.SetSPTrusted()
	return s, nil
}

// senderForUpcall is the entry-frame logic for foreign-callback
// frames, using the anchor the upcall stub saved in its frame data.
func (f Frame) senderForUpcall(t *Thread, m *RegisterMap) (Frame, error) {
	if f.UpcallFrameIsFirst(t) {
		return Frame{}, ErrFirstFrame
	}
	a, ok := f.upcallAnchor(t)
	if !ok {
		return Frame{}, fmt.Errorf("upcall frame %v: unreadable anchor", f)
	}
	if a.SP <= f.sp {
		return Frame{}, fmt.Errorf("upcall frame %v: anchor sp %v not above frame", f, a.SP)
	}
	if !a.MakeWalkable(t) {
		return Frame{}, fmt.Errorf("upcall frame %v: anchor not walkable", f)
	}
	if m != nil {
		m.Clear()
	}
	return NewFrame(t, a.SP, a.SP, a.FP, a.PC), nil
}

// senderForInterpreter reads the sender's registers from the fixed
// interpreter frame slots.
func (f Frame) senderForInterpreter(t *Thread, m *RegisterMap) (Frame, error) {
	// Raw sp of the sender, after any adapter or locals extension.
	senderSP := f.senderSPAddr(t)

	// The sp before extension, as the sender itself saw it.
	unextendedSP, ok := f.readSlot(t, arch.SlotSenderSPUnextended)
	if !ok {
		return Frame{}, fmt.Errorf("interpreted frame %v: unreadable sender sp slot", f)
	}
	senderFP, ok := f.readSlot(t, arch.SlotLink)
	if !ok {
		return Frame{}, fmt.Errorf("interpreted frame %v: unreadable link slot", f)
	}
	if linkAddr, ok := f.slotAddr(t, arch.SlotLink); ok {
		m.recordSavedLink(linkAddr)
	}

	// The interpreter signs the sender pc when signing is enabled;
	// there is no requirement to authenticate it here.
	raw, ok := f.readSlot(t, arch.SlotReturnAddr)
	if !ok {
		return Frame{}, fmt.Errorf("interpreted frame %v: unreadable return address", f)
	}
	senderPC, _ := stripVerifiable(t, raw)

	if t.Cache.IsReturnBarrier(senderPC) {
		return f.continuationSender(t, m, senderSP)
	}
	return NewFrame(t, senderSP, unextendedSP, senderFP, senderPC), nil
}

// senderForCompiled derives the sender from the blob's fixed frame
// size; compiled frames need not maintain an fp chain.
func (f Frame) senderForCompiled(t *Thread, m *RegisterMap) (Frame, error) {
	if f.cb.FrameSizeWords <= 0 {
		return Frame{}, fmt.Errorf("compiled frame %v: blob %v has no frame size", f, f.cb)
	}
	ws := t.Arch.WordSize()
	senderSP := f.unextendedSP.Add(f.cb.FrameSizeWords * ws)

	raw, ok := t.readWord(senderSP.Add(-ws))
	if !ok {
		return Frame{}, fmt.Errorf("compiled frame %v: unreadable return address at %v", f, senderSP.Add(-ws))
	}
	senderPC, _ := stripVerifiable(t, raw)

	savedFPAddr := senderSP.Add(-2 * ws)
	senderFP, ok := t.readWord(savedFPAddr)
	if !ok {
		return Frame{}, fmt.Errorf("compiled frame %v: unreadable saved fp at %v", f, savedFPAddr)
	}
	m.recordSavedLink(savedFPAddr)

	if t.Cache.IsReturnBarrier(senderPC) {
		return f.continuationSender(t, m, senderSP)
	}
	return NewFrame(t, senderSP, senderSP, senderFP, senderPC), nil
}

// senderForNative follows the plain fp chain of a frame unknown to
// the code cache.
func (f Frame) senderForNative(t *Thread) (Frame, error) {
	senderSP := f.senderSPAddr(t)
	senderFP, ok := f.readSlot(t, arch.SlotLink)
	if !ok {
		return Frame{}, fmt.Errorf("native frame %v: unreadable link slot", f)
	}
	raw, ok := f.readSlot(t, arch.SlotReturnAddr)
	if !ok {
		return Frame{}, fmt.Errorf("native frame %v: unreadable return address", f)
	}
	senderPC, _ := stripVerifiable(t, raw)
	if senderPC == 0 {
		return Frame{}, ErrFirstFrame
	}
	return NewFrame(t, senderSP, senderSP, senderFP, senderPC), nil
}

// continuationSender resolves a return-barrier sender through the
// continuation collaborator: into the suspended storage when the map
// allows it, otherwise to the continuation's enter frame.
func (f Frame) continuationSender(t *Thread, m *RegisterMap, senderSP vmem.Address) (Frame, error) {
	if t.Cont == nil {
		return Frame{}, fmt.Errorf("frame %v: return barrier without a continuation resolver", f)
	}
	if m != nil && m.WalkContinuations {
		s, ok := t.Cont.TopFrame(t, f, m)
		if !ok {
			return Frame{}, fmt.Errorf("frame %v: no continuation top frame", f)
		}
		return s, nil
	}
	s, ok := t.Cont.BottomSender(t, f, senderSP)
	if !ok {
		return Frame{}, fmt.Errorf("frame %v: no continuation bottom sender", f)
	}
	return s, nil
}

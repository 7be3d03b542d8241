// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"testing"

	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/codecache"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// Test target layout. One thread stack, an interpreter range, a call
// stub, two compiled methods, and the various stub blobs the
// classifier has to recognize.
const (
	stackLo vmem.Address = 0x100
	stackHi vmem.Address = 0x2000

	entryStart     vmem.Address = 0x6000
	entryEnd       vmem.Address = 0x6200
	callStubReturn vmem.Address = 0x6100

	interpStart vmem.Address = 0x7000
	interpEnd   vmem.Address = 0x8000

	nm1Start      vmem.Address = 0x10000
	nm1End        vmem.Address = 0x10800
	nm1CodeStart  vmem.Address = 0x10040
	nm1CodeEnd    vmem.Address = 0x10700
	nm1DeoptEntry vmem.Address = 0x10600

	nm2Start      vmem.Address = 0x11000
	nm2End        vmem.Address = 0x11800
	nm2CodeStart  vmem.Address = 0x11040
	nm2CodeEnd    vmem.Address = 0x11700
	nm2DeoptEntry vmem.Address = 0x11600

	adapterStart vmem.Address = 0x12000
	adapterEnd   vmem.Address = 0x12100

	rstubStart    vmem.Address = 0x13000
	rstubEnd      vmem.Address = 0x13100
	returnBarrier vmem.Address = 0x13080

	upcallStart vmem.Address = 0x14000
	upcallEnd   vmem.Address = 0x14200

	nm0Start vmem.Address = 0x15000 // compiled method with no frame size
	nm0End   vmem.Address = 0x15100

	nmMHStart vmem.Address = 0x16000 // method-handle intrinsic
	nmMHEnd   vmem.Address = 0x16100
)

// world is one synthetic target: an address space, a populated code
// cache, and a thread whose stack the tests lay frames out on.
type world struct {
	space *vmem.Space
	cache *codecache.Cache
	th    *Thread

	nm1, nm2, entry, upcall *codecache.Blob
}

func newWorld(tb testing.TB, a *arch.Arch) *world {
	tb.Helper()
	w := &world{space: new(vmem.Space), cache: codecache.New()}

	for _, m := range []struct {
		min, max vmem.Address
		perm     vmem.Perm
	}{
		{stackLo, stackHi, vmem.Read | vmem.Write},
		{entryStart, interpEnd, vmem.Read | vmem.Exec},
		{nm1Start, nmMHEnd, vmem.Read | vmem.Write | vmem.Exec},
	} {
		if _, err := w.space.Add(m.min, m.max, m.perm); err != nil {
			tb.Fatal(err)
		}
	}

	mustAdd := func(name string, start, end, codeStart, codeEnd vmem.Address, frameSize, frameComplete int64, kind codecache.BlobKind) *codecache.Blob {
		b, err := codecache.NewBlob(name, start, end, codeStart, codeEnd, frameSize, frameComplete, kind)
		if err != nil {
			tb.Fatal(err)
		}
		if err := w.cache.Add(b); err != nil {
			tb.Fatal(err)
		}
		return b
	}

	w.entry = mustAdd("call_stub", entryStart, entryEnd, entryStart, entryEnd, 0, 0, codecache.EntryStub{})
	w.nm1 = mustAdd("nm: Example.run", nm1Start, nm1End, nm1CodeStart, nm1CodeEnd, 6, 16,
		codecache.CompiledMethod{DeoptEntry: nm1DeoptEntry, OrigPCOffsetWords: 2})
	w.nm2 = mustAdd("nm: Example.leaf", nm2Start, nm2End, nm2CodeStart, nm2CodeEnd, 8, 16,
		codecache.CompiledMethod{DeoptEntry: nm2DeoptEntry, OrigPCOffsetWords: 2})
	mustAdd("i2c/c2i adapter", adapterStart, adapterEnd, adapterStart, adapterEnd, 0, -1, codecache.Adapter{})
	mustAdd("resolve stub", rstubStart, rstubEnd, rstubStart, rstubEnd, 4, 0, codecache.RuntimeStub{})
	w.upcall = mustAdd("upcall: Callback.apply", upcallStart, upcallEnd, upcallStart, upcallEnd, 6, 0,
		codecache.UpcallStub{FrameDataOffset: 0x40})
	mustAdd("nm: Example.broken", nm0Start, nm0End, nm0Start, nm0End, 0, 0, codecache.CompiledMethod{})
	mustAdd("nm: MH.invokeBasic", nmMHStart, nmMHEnd, nmMHStart, nmMHEnd, 6, 0,
		codecache.CompiledMethod{MethodHandleIntrinsic: true})

	if err := w.cache.AddInterpreter(interpStart, interpEnd); err != nil {
		tb.Fatal(err)
	}
	w.cache.SetReturnBarrier(returnBarrier)
	w.cache.SetCallStubReturn(callStubReturn)

	w.th = &Thread{
		Mem:      w.space,
		Arch:     a,
		Cache:    w.cache,
		StackLo:  stackLo,
		GuardTop: stackLo,
		StackHi:  stackHi,
		Cont:     NopResolver{},
	}
	return w
}

// put stores one word of target memory.
func (w *world) put(tb testing.TB, a, v vmem.Address) {
	tb.Helper()
	if err := vmem.WritePtr(w.space, w.th.Arch.ByteOrder, a, v); err != nil {
		tb.Fatal(err)
	}
}

// sign produces the signed form of a return address under the world's
// architecture.
func (w *world) sign(a vmem.Address) vmem.Address {
	return vmem.Address(w.th.Arch.SignReturnAddress(uint64(a)))
}

// javaStack is the frame chain buildJavaStack lays out.
type javaStack struct {
	top    Frame // compiled, top of stack
	inner  Frame // interpreted, called the compiled method
	middle Frame // interpreted, called through the call stub
	entry  Frame // outermost entry frame
}

// Frame addresses of the canonical chain. Each frame's fp slots carry
// its sender's registers; the entry frame's call wrapper holds a
// cleared anchor, marking it the thread's first Java frame.
const (
	topSP    vmem.Address = 0x1a50 // 6 word frame ends at innerSP
	topPC    vmem.Address = 0x10100
	innerSP  vmem.Address = 0x1a80
	innerFP  vmem.Address = 0x1b00
	innerPC  vmem.Address = 0x7040
	middleSP vmem.Address = 0x1b10 // innerFP + 2 words
	middleFP vmem.Address = 0x1d00
	middlePC vmem.Address = 0x7100
	entrySP  vmem.Address = 0x1d10 // middleFP + 2 words
	entryFP  vmem.Address = 0x1f00
	wrapper  vmem.Address = 0x1f80

	testMethod  vmem.Address = 0x40000
	testCPCache vmem.Address = 0x40100
	testBCP     vmem.Address = 0x40200
)

// buildJavaStack writes an entry frame, an interpreted frame called
// through the call stub, and an inner interpreted frame onto the
// world's stack, and returns the three frames innermost first.
func (w *world) buildJavaStack(tb testing.TB) javaStack {
	tb.Helper()
	ws := w.th.Arch.WordSize()
	slot := func(fp vmem.Address, s arch.Slot) vmem.Address {
		off, ok := w.th.Arch.Layout.Offset(s)
		if !ok {
			tb.Fatalf("no layout offset for %v", s)
		}
		return fp.Add(off * ws)
	}

	// Compiled top frame: its fixed-size frame ends at the inner
	// interpreted frame's sp, with the caller's fp and return address
	// in the top two slots.
	w.put(tb, innerSP.Add(-2*ws), innerFP)
	w.put(tb, innerSP.Add(-ws), w.sign(innerPC))

	// Inner interpreted frame.
	w.put(tb, slot(innerFP, arch.SlotLink), middleFP)
	w.put(tb, slot(innerFP, arch.SlotReturnAddr), w.sign(middlePC))
	w.put(tb, slot(innerFP, arch.SlotSenderSPUnextended), middleSP)
	w.put(tb, slot(innerFP, arch.SlotMethod), testMethod)
	w.put(tb, slot(innerFP, arch.SlotCPCache), testCPCache)
	w.put(tb, slot(innerFP, arch.SlotLocals), innerFP.Add(16*ws))
	w.put(tb, slot(innerFP, arch.SlotBCP), testBCP)

	// Middle interpreted frame, entered through the call stub.
	w.put(tb, slot(middleFP, arch.SlotLink), entryFP)
	w.put(tb, slot(middleFP, arch.SlotReturnAddr), w.sign(callStubReturn))
	w.put(tb, slot(middleFP, arch.SlotSenderSPUnextended), entrySP)
	w.put(tb, slot(middleFP, arch.SlotMethod), testMethod)
	w.put(tb, slot(middleFP, arch.SlotCPCache), testCPCache)
	w.put(tb, slot(middleFP, arch.SlotLocals), middleFP.Add(16*ws))
	w.put(tb, slot(middleFP, arch.SlotBCP), testBCP)

	// Entry frame: call wrapper below fp, anchor left cleared.
	w.put(tb, slot(entryFP, arch.SlotCallWrapper), wrapper)

	return javaStack{
		top:    NewTopFrame(w.th, topSP, 0x1a78, topPC),
		inner:  NewTopFrame(w.th, innerSP, innerFP, innerPC),
		middle: NewFrame(w.th, middleSP, middleSP, middleFP, middlePC),
		entry:  NewFrame(w.th, entrySP, entrySP, entryFP, callStubReturn),
	}
}

func TestThreadStackRanges(t *testing.T) {
	w := newWorld(t, &arch.ARM64)
	w.th.GuardTop = 0x300

	if w.th.InUsableStack(0x280) {
		t.Error("guard page address reported usable")
	}
	if !w.th.InFullStack(0x280) {
		t.Error("guard page address not in full stack")
	}
	if !w.th.InUsableStack(0x300) || w.th.InUsableStack(stackHi) {
		t.Error("usable stack boundary handling")
	}
	if w.th.InFullStack(stackLo-1) || w.th.InFullStack(stackHi) {
		t.Error("full stack boundary handling")
	}
	if !w.th.InStackRangeExcl(0x1001, 0x1000) || w.th.InStackRangeExcl(0x1000, 0x1000) {
		t.Error("exclusive range boundary handling")
	}
	if !w.th.InStackRangeIncl(0x1000, 0x1000) {
		t.Error("inclusive range boundary handling")
	}
}

func TestAnchorWalkable(t *testing.T) {
	var a Anchor
	if !a.Walkable() {
		t.Error("cleared anchor not walkable")
	}
	a = Anchor{SP: 0x1a80}
	if a.Walkable() {
		t.Error("anchor with sp but no pc walkable")
	}
	a.PC = 0x7040
	if !a.Walkable() {
		t.Error("completed anchor not walkable")
	}
	a.Clear()
	if a.SP != 0 || a.PC != 0 || a.FP != 0 {
		t.Error("Clear left state behind")
	}
}

func TestAnchorMakeWalkable(t *testing.T) {
	w := newWorld(t, &arch.ARM64)
	w.buildJavaStack(t)

	// The word at sp[-1] is the inner frame's stored sender pc.
	a := Anchor{SP: middleSP, FP: middleFP}
	if !a.MakeWalkable(w.th) {
		t.Fatal("MakeWalkable failed on a live stack")
	}
	if a.PC != middlePC {
		t.Fatalf("recovered pc %v, want %v", a.PC, middlePC)
	}

	// Idempotent: once the pc is set the stack is not consulted again.
	w.put(t, middleSP.Add(-8), 0xbad)
	if !a.MakeWalkable(w.th) || a.PC != middlePC {
		t.Errorf("second MakeWalkable changed pc to %v", a.PC)
	}
}

func TestAnchorMakeWalkableFailure(t *testing.T) {
	w := newWorld(t, &arch.ARM64)

	// sp[-1] unreadable.
	a := Anchor{SP: 0x90000}
	if a.MakeWalkable(w.th) {
		t.Error("MakeWalkable succeeded with unreadable stack")
	}

	// sp[-1] readable but zero.
	a = Anchor{SP: 0x1000}
	if a.MakeWalkable(w.th) {
		t.Error("MakeWalkable succeeded with a null return address")
	}

	// sp[-1] fails authentication.
	w.put(t, 0xff8, w.sign(0x7040)^(1<<40))
	a = Anchor{SP: 0x1000}
	if a.MakeWalkable(w.th) {
		t.Error("MakeWalkable accepted a corrupt return address")
	}
}

func TestDeoptOriginalPCRecovery(t *testing.T) {
	w := newWorld(t, &arch.ARM64)

	// A frame whose pc is the deopt handler entry reports the saved
	// original pc as its logical pc.
	const origPC vmem.Address = 0x10300
	w.put(t, 0x1810, origPC) // unextended sp + 2 words
	f := NewFrame(w.th, 0x1800, 0x1800, 0x1830, nm1DeoptEntry)
	if f.Deopt() != Deoptimized {
		t.Fatalf("deopt state = %v, want Deoptimized", f.Deopt())
	}
	if f.PC() != origPC {
		t.Errorf("logical pc = %v, want %v", f.PC(), origPC)
	}

	// A saved pc outside the method's code is not trusted.
	w.put(t, 0x1810, 0x999000)
	f = NewFrame(w.th, 0x1800, 0x1800, 0x1830, nm1DeoptEntry)
	if f.Deopt() != NotDeoptimized || f.PC() != nm1DeoptEntry {
		t.Errorf("garbage original pc accepted: state %v pc %v", f.Deopt(), f.PC())
	}

	// An ordinary pc has nothing to recover.
	f = NewFrame(w.th, 0x1800, 0x1800, 0x1830, 0x10100)
	if f.Deopt() != NotDeoptimized || f.PC() != 0x10100 {
		t.Errorf("non-deopt frame: state %v pc %v", f.Deopt(), f.PC())
	}
}

func TestFrameKinds(t *testing.T) {
	w := newWorld(t, &arch.ARM64)

	for _, tc := range []struct {
		pc   vmem.Address
		kind string
	}{
		{0x7040, "interpreted"},
		{0x10100, "compiled method"},
		{0x6100, "entry stub"},
		{0x14080, "upcall stub"},
		{0x500000, "native"},
	} {
		f := NewTopFrame(w.th, 0x1800, 0x1830, tc.pc)
		if got := f.KindString(w.th); got != tc.kind {
			t.Errorf("KindString(pc %v) = %q, want %q", tc.pc, got, tc.kind)
		}
	}

	f := NewTopFrame(w.th, 0x1800, 0x1830, 0x500000)
	if !f.IsNative(w.th) || f.Blob() != nil {
		t.Error("unknown pc not treated as native")
	}
	f = NewTopFrame(w.th, 0x1800, 0x1830, 0x7040)
	if !f.IsInterpreted(w.th) {
		t.Error("interpreter pc not treated as interpreted")
	}
}

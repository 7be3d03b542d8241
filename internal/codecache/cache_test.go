// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codecache

import (
	"testing"

	"github.com/jvmtools/walkjvm/internal/vmem"
)

func mustBlob(t *testing.T, name string, start, end, codeStart, codeEnd vmem.Address, frameSize, frameComplete int64, kind BlobKind) *Blob {
	t.Helper()
	b, err := NewBlob(name, start, end, codeStart, codeEnd, frameSize, frameComplete, kind)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNewBlob(t *testing.T) {
	if _, err := NewBlob("bad", 0x1000, 0x2000, 0x900, 0x2000, 0, 0, RuntimeStub{}); err == nil {
		t.Error("code range outside blob range accepted")
	}
	if _, err := NewBlob("bad", 0x1000, 0x2000, 0x1000, 0x2100, 0, 0, RuntimeStub{}); err == nil {
		t.Error("code end past blob end accepted")
	}
}

type bogusKind struct{}

func (bogusKind) blobKind()      {}
func (bogusKind) String() string { return "bogus" }

func TestNewBlobUnknownKind(t *testing.T) {
	if _, err := NewBlob("bad", 0x1000, 0x2000, 0x1000, 0x2000, 0, 0, bogusKind{}); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestFindBlob(t *testing.T) {
	c := New()
	nm := mustBlob(t, "nm", 0x10000, 0x10800, 0x10040, 0x10700, 6, 16,
		CompiledMethod{DeoptEntry: 0x10600, OrigPCOffsetWords: 2})
	stub := mustBlob(t, "stub", 0x13000, 0x13100, 0x13000, 0x13100, 4, 0, RuntimeStub{})
	for _, b := range []*Blob{stub, nm} {
		if err := c.Add(b); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct {
		a    vmem.Address
		want *Blob
	}{
		{0, nil},
		{0x10000, nm},  // start is inclusive, metadata included
		{0x10010, nm},  // header, still the blob
		{0x107ff, nm},  // last byte
		{0x10800, nil}, // end is exclusive
		{0x13080, stub},
		{0x20000, nil},
	} {
		if got := c.FindBlob(tc.a); got != tc.want {
			t.Errorf("FindBlob(%v) = %v, want %v", tc.a, got, tc.want)
		}
	}
	// Same query again, now served from the lookup cache.
	if got := c.FindBlob(0x10010); got != nm {
		t.Errorf("cached FindBlob = %v, want %v", got, nm)
	}

	if err := c.Add(mustBlob(t, "overlap", 0x10700, 0x11000, 0x10700, 0x11000, 0, 0, OtherBlob{})); err == nil {
		t.Error("overlapping Add succeeded")
	}

	c.Remove(nm)
	if got := c.FindBlob(0x10010); got != nil {
		t.Errorf("FindBlob after Remove = %v, want nil", got)
	}
	if got := c.FindBlob(0x13080); got != stub {
		t.Errorf("FindBlob(stub) after Remove = %v, want %v", got, stub)
	}
}

func TestCodeContains(t *testing.T) {
	nm := mustBlob(t, "nm", 0x10000, 0x10800, 0x10040, 0x10700, 6, 16, CompiledMethod{})
	if nm.CodeContains(0x10010) {
		t.Error("CodeContains is true in the metadata header")
	}
	if !nm.CodeContains(0x10040) || nm.CodeContains(0x10700) {
		t.Error("CodeContains boundary handling")
	}
	if !nm.CodeContainsInclusive(0x10700) || nm.CodeContainsInclusive(0x10708) {
		t.Error("CodeContainsInclusive boundary handling")
	}
}

func TestIsFrameCompleteAt(t *testing.T) {
	nm := mustBlob(t, "nm", 0x10000, 0x10800, 0x10040, 0x10700, 6, 16, CompiledMethod{})
	if nm.IsFrameCompleteAt(0x10044) {
		t.Error("frame complete mid-prologue")
	}
	if !nm.IsFrameCompleteAt(0x10050) {
		t.Error("frame not complete past the complete offset")
	}
	if nm.IsFrameCompleteAt(0x10010) {
		t.Error("frame complete outside the instructions")
	}

	ad := mustBlob(t, "adapter", 0x12000, 0x12100, 0x12000, 0x12100, 0, -1, Adapter{})
	if ad.IsFrameCompleteAt(0x12080) {
		t.Error("adapter frame reported complete")
	}
}

func TestIsDeoptEntry(t *testing.T) {
	nm := mustBlob(t, "nm", 0x10000, 0x10800, 0x10040, 0x10700, 6, 16,
		CompiledMethod{DeoptEntry: 0x10600, DeoptMHEntry: 0x10640})
	if !nm.IsDeoptEntry(0x10600) || !nm.IsDeoptEntry(0x10640) {
		t.Error("deopt entries not recognized")
	}
	if nm.IsDeoptEntry(0x10604) {
		t.Error("non-entry pc recognized as deopt entry")
	}
	if nm.IsDeoptEntry(0) {
		t.Error("null pc recognized as deopt entry")
	}
	stub := mustBlob(t, "stub", 0x13000, 0x13100, 0x13000, 0x13100, 4, 0, RuntimeStub{})
	if stub.IsDeoptEntry(0x13000) {
		t.Error("runtime stub has a deopt entry")
	}
}

func TestInterpreter(t *testing.T) {
	c := New()
	if err := c.AddInterpreter(0x7000, 0x8000); err != nil {
		t.Fatal(err)
	}
	if !c.InterpreterContains(0x7040) {
		t.Error("InterpreterContains misses the interpreter range")
	}
	if c.InterpreterContains(0x8000) || c.InterpreterContains(0x6fff) {
		t.Error("InterpreterContains boundary handling")
	}
	// The interpreter range is also findable as a blob.
	b := c.FindBlob(0x7040)
	if b == nil || b.Name != "interpreter" {
		t.Errorf("FindBlob(interpreter pc) = %v", b)
	}
}

func TestDistinguishedStubs(t *testing.T) {
	c := New()
	c.SetReturnBarrier(0x13080)
	c.SetCallStubReturn(0x6100)
	if !c.IsReturnBarrier(0x13080) || c.IsReturnBarrier(0x13088) || c.IsReturnBarrier(0) {
		t.Error("IsReturnBarrier")
	}
	if !c.ReturnsToCallStub(0x6100) || c.ReturnsToCallStub(0x6108) || c.ReturnsToCallStub(0) {
		t.Error("ReturnsToCallStub")
	}

	// Unset stubs match nothing, in particular not address zero.
	c2 := New()
	if c2.IsReturnBarrier(0) || c2.ReturnsToCallStub(0) {
		t.Error("unset stub addresses match pc 0")
	}
}

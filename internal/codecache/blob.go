// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codecache describes the target VM's generated-code regions:
// compiled methods, runtime stubs, adapters, entry and upcall stubs.
// The frame walker asks it two kinds of questions: which blob (if any)
// owns a pc, and what that blob's frame looks like (size, completeness,
// deoptimization entry points). The package holds metadata only; it
// never reads target memory.
package codecache

import (
	"fmt"

	"github.com/jvmtools/walkjvm/internal/vmem"
)

// A Blob describes one contiguous region of generated code. The
// region [Start,End) covers the whole blob including its metadata
// header; [CodeStart,CodeEnd) covers just the instructions. A pc
// inside the blob but outside the instructions is not a valid
// execution point.
type Blob struct {
	Name      string
	Start     vmem.Address
	End       vmem.Address
	CodeStart vmem.Address
	CodeEnd   vmem.Address

	// FrameSizeWords is the fixed frame size in words, meaningful for
	// compiled methods and runtime stubs. Zero or negative means the
	// blob has no usable frame size.
	FrameSizeWords int64

	// FrameCompleteOffset is the code offset at which the frame is
	// fully set up. Negative means the frame is never complete
	// (adapters).
	FrameCompleteOffset int64

	kind BlobKind
}

// BlobKind is the discriminant over blob kinds. Exactly one of the
// concrete kind types below is carried by each Blob; call sites switch
// over the type and treat an unknown kind as a hard failure.
type BlobKind interface {
	blobKind()
	String() string
}

// CompiledMethod is a JIT-compiled method (an nmethod).
type CompiledMethod struct {
	// DeoptEntry and DeoptMHEntry are the deoptimization handler
	// entry points, zero when absent.
	DeoptEntry   vmem.Address
	DeoptMHEntry vmem.Address
	// MethodHandleIntrinsic marks intrinsic frames whose shape cannot
	// be judged from the blob metadata alone.
	MethodHandleIntrinsic bool
	// OrigPCOffsetWords is the word offset, relative to a frame's
	// unextended stack pointer, of the slot holding the original pc
	// of a deoptimized frame.
	OrigPCOffsetWords int64
}

// RuntimeStub is VM runtime glue called from compiled code.
type RuntimeStub struct{}

// Adapter is interpreter/compiled calling-convention glue. Adapters
// never have a complete frame and are never valid return targets for
// code-cache code.
type Adapter struct{}

// EntryStub is the call stub through which native code enters Java.
type EntryStub struct{}

// UpcallStub is a foreign-function-interface callback entry.
type UpcallStub struct {
	// FrameDataOffset is the byte offset, relative to a frame's
	// unextended stack pointer, of the stub's saved frame anchor.
	FrameDataOffset int64
}

// OtherBlob is any other generated buffer (safepoint blob, exception
// blob, ...). Frame completeness cannot be checked for these, so they
// are assumed complete.
type OtherBlob struct{}

func (CompiledMethod) blobKind() {}
func (RuntimeStub) blobKind()    {}
func (Adapter) blobKind()        {}
func (EntryStub) blobKind()      {}
func (UpcallStub) blobKind()     {}
func (OtherBlob) blobKind()      {}

func (CompiledMethod) String() string { return "compiled method" }
func (RuntimeStub) String() string    { return "runtime stub" }
func (Adapter) String() string        { return "adapter" }
func (EntryStub) String() string      { return "entry stub" }
func (UpcallStub) String() string     { return "upcall stub" }
func (OtherBlob) String() string      { return "blob" }

// NewBlob returns a blob of the given kind. kind must be one of the
// concrete kind types of this package.
func NewBlob(name string, start, end, codeStart, codeEnd vmem.Address, frameSizeWords, frameCompleteOffset int64, kind BlobKind) (*Blob, error) {
	if !(start <= codeStart && codeStart <= codeEnd && codeEnd <= end) {
		return nil, fmt.Errorf("blob %s: code range [%v %v] outside blob range [%v %v]",
			name, codeStart, codeEnd, start, end)
	}
	switch kind.(type) {
	case CompiledMethod, RuntimeStub, Adapter, EntryStub, UpcallStub, OtherBlob:
	default:
		return nil, fmt.Errorf("blob %s: unknown kind %T", name, kind)
	}
	return &Blob{
		Name:                name,
		Start:               start,
		End:                 end,
		CodeStart:           codeStart,
		CodeEnd:             codeEnd,
		FrameSizeWords:      frameSizeWords,
		FrameCompleteOffset: frameCompleteOffset,
		kind:                kind,
	}, nil
}

// Kind returns the blob's discriminant.
func (b *Blob) Kind() BlobKind { return b.kind }

// Contains reports whether a falls anywhere in the blob, metadata
// included.
func (b *Blob) Contains(a vmem.Address) bool {
	return b.Start <= a && a < b.End
}

// CodeContains reports whether pc falls in the blob's instructions.
func (b *Blob) CodeContains(pc vmem.Address) bool {
	return b.CodeStart <= pc && pc < b.CodeEnd
}

// CodeContainsInclusive is CodeContains but also accepts the address
// immediately following the instructions, where a call from the
// blob's last instruction would return.
func (b *Blob) CodeContainsInclusive(pc vmem.Address) bool {
	return b.CodeStart <= pc && pc <= b.CodeEnd
}

// IsFrameCompleteAt reports whether the blob's frame is fully built at
// pc. A pc outside the instructions is never complete.
func (b *Blob) IsFrameCompleteAt(pc vmem.Address) bool {
	if b.FrameCompleteOffset < 0 {
		return false
	}
	return b.CodeContains(pc) && pc.Sub(b.CodeStart) >= b.FrameCompleteOffset
}

// IsCompiledMethod reports whether the blob is a compiled method, and
// returns its payload if so.
func (b *Blob) IsCompiledMethod() (CompiledMethod, bool) {
	cm, ok := b.kind.(CompiledMethod)
	return cm, ok
}

// IsDeoptEntry reports whether pc is one of the blob's deoptimization
// handler entry points.
func (b *Blob) IsDeoptEntry(pc vmem.Address) bool {
	cm, ok := b.kind.(CompiledMethod)
	if !ok || pc == 0 {
		return false
	}
	return pc == cm.DeoptEntry || pc == cm.DeoptMHEntry
}

func (b *Blob) String() string {
	return fmt.Sprintf("%s %q [%v %v)", b.kind, b.Name, b.Start, b.End)
}

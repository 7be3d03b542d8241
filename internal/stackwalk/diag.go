// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// Diagnostic stack dumping for crash analysis. Output is best effort
// and for human eyes only: nothing here is validated the way the
// classifier validates, and nothing downstream may trust it.

// A Cursor is the walk position of the diagnostic dumper: the raw
// registers of the frame to print next. It is threaded explicitly
// through the walk; the dumper keeps no state between calls.
type Cursor struct {
	SP vmem.Address
	FP vmem.Address
	PC vmem.Address
}

// NextCursor advances the cursor one frame using whatever unwinding
// information is available: walker senders for frames the code cache
// knows, the raw fp chain otherwise.
func NextCursor(t *Thread, cur Cursor) (Cursor, bool) {
	f := NewTopFrame(t, cur.SP, cur.FP, cur.PC)
	if f.IsInterpreted(t) || f.cb != nil {
		s, err := f.Sender(t, nil)
		if err != nil {
			return Cursor{}, false
		}
		return Cursor{SP: s.UnextendedSP(), FP: s.FP(), PC: s.PC()}, true
	}
	fp, ok := f.readSlot(t, arch.SlotLink)
	if !ok {
		return Cursor{}, false
	}
	pc, ok := f.readSlot(t, arch.SlotReturnAddr)
	if !ok || pc == 0 {
		return Cursor{}, false
	}
	return Cursor{SP: f.senderSPAddr(t), FP: fp, PC: pc}, true
}

// FixupCursor rebuilds a cursor's fp from the code blob's frame size.
// Compiled code does not always chain frame pointers; when the pc's
// blob has a known frame size the true fp is at a fixed offset from
// sp and the sampled fp register may be anything.
func FixupCursor(t *Thread, cur Cursor) Cursor {
	if b := t.Cache.FindBlob(cur.PC); b != nil && b.FrameSizeWords > 0 {
		cur.FP = cur.SP.Add(t.Arch.WordSize() * (b.FrameSizeWords - 2))
	}
	return cur
}

// DumpStack prints up to maxFrames frames starting at cur. Frames
// that cannot be decoded end the dump with a note rather than an
// error; a truncated dump is the expected outcome on a damaged stack.
func DumpStack(w io.Writer, t *Thread, cur Cursor, maxFrames int) {
	for i := 0; i < maxFrames; i++ {
		if cur.FP == 0 || cur.PC == 0 {
			fmt.Fprintf(w, "#%d  walk ended (fp %v pc %v)\n", i, cur.FP, cur.PC)
			return
		}
		f := NewTopFrame(t, cur.SP, cur.FP, cur.PC)
		fmt.Fprintf(w, "#%d  %s sp=%v fp=%v pc=%v", i, f.KindString(t), f.sp, f.fp, f.pc)
		if f.cb != nil {
			fmt.Fprintf(w, "  %s %q", f.cb.Kind(), f.cb.Name)
		}
		if ins, ok := decodeInstr(t, f.pc); ok {
			fmt.Fprintf(w, "  [%s]", ins)
		}
		fmt.Fprintln(w)

		next, ok := NextCursor(t, cur)
		if !ok {
			fmt.Fprintf(w, "#%d  no sender\n", i+1)
			return
		}
		cur = next
	}
}

// DescribeFrame prints the frame's layout slots with their addresses
// and stored values, one per line.
func DescribeFrame(w io.Writer, t *Thread, f Frame) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "frame\t%s\tsp=%v\tfp=%v\tpc=%v\n", f.KindString(t), f.sp, f.fp, f.pc)

	slots := []arch.Slot{arch.SlotSenderSP, arch.SlotReturnAddr, arch.SlotLink}
	if f.IsInterpreted(t) {
		slots = arch.InterpreterSlots
	}
	for _, s := range slots {
		a, ok := f.slotAddr(t, s)
		if !ok {
			continue
		}
		v, ok := t.readWord(a)
		if !ok {
			fmt.Fprintf(tw, "%v\t????????????\t%s\n", a, s)
			continue
		}
		name := s.String()
		if s == arch.SlotReturnAddr && t.Cache.IsReturnBarrier(v) {
			name = "return_addr (return barrier)"
		}
		fmt.Fprintf(tw, "%v\t%v\t%s\n", a, v, name)
	}
}

// decodeInstr decodes the instruction at pc, for dumps on
// architectures we can disassemble.
func decodeInstr(t *Thread, pc vmem.Address) (string, bool) {
	if t.Arch.Name != "arm64" {
		return "", false
	}
	var b [4]byte
	if err := t.Mem.ReadAt(b[:], pc); err != nil {
		return "", false
	}
	ins, err := arm64asm.Decode(b[:])
	if err != nil {
		return "", false
	}
	return ins.String(), true
}

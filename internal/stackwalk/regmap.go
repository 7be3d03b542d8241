// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-delve/delve/pkg/dwarf/regnum"

	"github.com/jvmtools/walkjvm/internal/vmem"
)

// A RegisterMap accumulates, during a walk, the stack locations where
// each frame preserved callee-saved registers. Root scanning and
// deoptimization need these to recover register values for frames
// below the top. Sender computation only ever writes into the map; it
// never reads decisions back out of it.
type RegisterMap struct {
	thread *Thread

	// UpdateMap enables recording of preservation locations.
	UpdateMap bool
	// IncludeArguments marks that argument slots should be treated
	// as live by whoever consumes the map.
	IncludeArguments bool
	// WalkContinuations lets the walk descend into suspended
	// continuation storage instead of skipping to the enter frame.
	WalkContinuations bool

	// locations maps DWARF register numbers to the stack address
	// holding that register's saved value.
	locations map[uint64]vmem.Address
}

// NewRegisterMap returns a map for walking t's stack.
func NewRegisterMap(t *Thread, update, walkCont bool) *RegisterMap {
	m := &RegisterMap{thread: t, UpdateMap: update, WalkContinuations: walkCont}
	m.Clear()
	return m
}

// Thread returns the thread this map was created for.
func (m *RegisterMap) Thread() *Thread { return m.thread }

// Clear forgets all recorded locations. Crossing a transition anchor
// invalidates everything recorded below it.
func (m *RegisterMap) Clear() {
	m.IncludeArguments = true
	m.locations = make(map[uint64]vmem.Address)
}

// SetLocation records that the saved value of reg lives at addr.
func (m *RegisterMap) SetLocation(reg uint64, addr vmem.Address) {
	m.locations[reg] = addr
}

// Location returns the recorded address of reg's saved value.
func (m *RegisterMap) Location(reg uint64) (vmem.Address, bool) {
	a, ok := m.locations[reg]
	return a, ok
}

func (m *RegisterMap) String() string {
	if len(m.locations) == 0 {
		return "regmap{}"
	}
	regs := make([]uint64, 0, len(m.locations))
	for r := range m.locations {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	var b strings.Builder
	b.WriteString("regmap{")
	for i, r := range regs {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%v", regnum.ARM64ToName(r), m.locations[r])
	}
	b.WriteString("}")
	return b.String()
}

// recordSavedLink records where this frame saved the caller's frame
// pointer.
func (m *RegisterMap) recordSavedLink(linkAddr vmem.Address) {
	if m != nil && m.UpdateMap {
		m.SetLocation(regnum.ARM64_BP, linkAddr)
	}
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// A MetadataOracle answers validity questions about interpreter
// metadata pointers found in candidate frames. The real oracle is the
// VM's metaspace; tests and offline tools plug in their own. Every
// method must be safe to call with arbitrary garbage.
type MetadataOracle interface {
	// ValidMethod reports whether m plausibly points at a method.
	ValidMethod(m vmem.Address) bool
	// MethodMaxStack returns the method's maximum operand stack
	// size, in slots.
	MethodMaxStack(m vmem.Address) (int64, bool)
	// ValidBCP reports whether bcp is a valid bytecode pointer for
	// the method.
	ValidBCP(m, bcp vmem.Address) bool
	// ValidConstantPoolCache reports whether cpc plausibly points at
	// a constant-pool cache.
	ValidConstantPoolCache(cpc vmem.Address) bool
}

// PermissiveOracle accepts any non-null, word-aligned metadata
// pointer. It keeps the structural frame checks while leaving the
// metadata judgment to whoever configured the thread without a real
// oracle.
type PermissiveOracle struct{}

// permissiveMaxStack bounds the frame-extent check when no real
// method metadata is available.
const permissiveMaxStack = 1 << 16

func (PermissiveOracle) ValidMethod(m vmem.Address) bool {
	return m != 0 && m%8 == 0
}

func (PermissiveOracle) MethodMaxStack(m vmem.Address) (int64, bool) {
	return permissiveMaxStack, true
}

func (PermissiveOracle) ValidBCP(m, bcp vmem.Address) bool {
	return bcp != 0
}

func (PermissiveOracle) ValidConstantPoolCache(cpc vmem.Address) bool {
	return cpc != 0 && cpc%8 == 0
}

func (f Frame) oracle(t *Thread) MetadataOracle {
	if t.Oracle != nil {
		return t.Oracle
	}
	return PermissiveOracle{}
}

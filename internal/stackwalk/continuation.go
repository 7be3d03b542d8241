// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stackwalk

import (
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// A ContinuationResolver resolves the true sender of a frame whose
// computed sender pc is the return barrier: the marker meaning "the
// caller chain was transparently suspended into continuation
// storage". The walker defers to the resolver instead of trusting the
// raw stack values.
type ContinuationResolver interface {
	// IsFrameInContinuation reports whether f actually belongs to a
	// mounted continuation. The barrier pc alone is not proof; it
	// may be garbage that happens to collide.
	IsFrameInContinuation(t *Thread, f Frame) bool

	// BottomSender returns the continuation's enter frame: the real
	// sender on the thread stack when the walk does not descend into
	// suspended storage.
	BottomSender(t *Thread, f Frame, senderSP vmem.Address) (Frame, bool)

	// TopFrame returns the topmost frame of the suspended storage
	// when the walk is configured to continue into it.
	TopFrame(t *Thread, f Frame, m *RegisterMap) (Frame, bool)
}

// NopResolver is the resolver for targets that never mount
// continuations: the barrier pc can only be corruption.
type NopResolver struct{}

func (NopResolver) IsFrameInContinuation(t *Thread, f Frame) bool { return false }

func (NopResolver) BottomSender(t *Thread, f Frame, senderSP vmem.Address) (Frame, bool) {
	return Frame{}, false
}

func (NopResolver) TopFrame(t *Thread, f Frame, m *RegisterMap) (Frame, bool) {
	return Frame{}, false
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

// Return-address signing. A return address stored in target memory
// may carry a pointer-authentication code in the PACMask bits; it must
// be stripped before it can be compared with or used as a plain
// address. On architectures with PACMask == 0 all three operations are
// the identity.
//
// The PAC itself is modeled, not computed by hardware: SignReturnAddress
// derives the code from the plain address, so a stripped-then-signed
// round trip is stable and StripVerifiable can tell a well-formed
// signed address from a corrupt one.

// pac computes the modeled authentication code for a plain address.
func (a *Arch) pac(addr uint64) uint64 {
	x := addr &^ a.PACMask
	x *= 0x9e3779b97f4a7c15
	x ^= x >> 29
	return x & a.PACMask
}

// StripPointer removes any authentication code without verifying it.
// Used where the input may be a broken frame's garbage value.
func (a *Arch) StripPointer(addr uint64) uint64 {
	return addr &^ a.PACMask
}

// StripVerifiable removes the authentication code and reports whether
// it was the one SignReturnAddress would have produced. An unsigned
// (plain) address also verifies: frames written before signing was
// enabled, and architectures without signing, store plain addresses.
func (a *Arch) StripVerifiable(addr uint64) (uint64, bool) {
	if a.PACMask == 0 {
		return addr, true
	}
	plain := addr &^ a.PACMask
	tag := addr & a.PACMask
	return plain, tag == 0 || tag == a.pac(plain)
}

// SignReturnAddress produces the signed form to store in a
// return-address slot.
func (a *Arch) SignReturnAddress(addr uint64) uint64 {
	if a.PACMask == 0 {
		return addr
	}
	return (addr &^ a.PACMask) | a.pac(addr)
}

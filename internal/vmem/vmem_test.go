// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmem

import (
	"encoding/binary"
	"testing"
)

func TestAddressArith(t *testing.T) {
	a := Address(0x1000)
	if got := a.Add(0x10); got != 0x1010 {
		t.Errorf("Add: got %v", got)
	}
	if got := a.Add(-0x10); got != 0xff0 {
		t.Errorf("Add negative: got %v", got)
	}
	if got := Address(0x1010).Sub(a); got != 0x10 {
		t.Errorf("Sub: got %d", got)
	}
	if got := Address(0x1001).Align(16); got != 0x1010 {
		t.Errorf("Align: got %v", got)
	}
	if got := a.Align(16); got != a {
		t.Errorf("Align of aligned: got %v", got)
	}
	if got := a.String(); got != "0x1000" {
		t.Errorf("String: got %q", got)
	}
}

func TestSpaceAdd(t *testing.T) {
	s := new(Space)
	if _, err := s.Add(0x2000, 0x3000, Read); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(0x1000, 0x2000, Read|Write); err != nil {
		t.Fatal(err)
	}
	// Out of order adds come back sorted.
	ms := s.Mappings()
	if len(ms) != 2 || ms[0].Min() != 0x1000 || ms[1].Min() != 0x2000 {
		t.Fatalf("mappings not sorted: %v", ms)
	}
	if _, err := s.Add(0x2800, 0x3800, Read); err == nil {
		t.Error("overlapping Add succeeded")
	}
	if _, err := s.Add(0x5000, 0x5000, Read); err == nil {
		t.Error("empty Add succeeded")
	}
}

func TestSpaceReadWrite(t *testing.T) {
	s := new(Space)
	if _, err := s.Add(0x1000, 0x2000, Read|Write); err != nil {
		t.Fatal(err)
	}
	// Adjacent mapping, so reads can cross the boundary.
	if _, err := s.Add(0x2000, 0x3000, Read|Write); err != nil {
		t.Fatal(err)
	}

	if err := WritePtr(s, binary.LittleEndian, 0x1ffc, 0x1122334455667788); err != nil {
		t.Fatal(err)
	}
	v, err := ReadPtr(s, binary.LittleEndian, 0x1ffc)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x1122334455667788 {
		t.Errorf("cross-mapping read: got %v", v)
	}

	if !s.Readable(0x1ff8, 16) {
		t.Error("Readable is false across adjacent mappings")
	}
	if s.Readable(0x2ff8, 16) {
		t.Error("Readable is true past the last mapping")
	}
	if s.Readable(0x8000, 8) {
		t.Error("Readable is true for an unmapped address")
	}

	var b [8]byte
	if err := s.ReadAt(b[:], 0x8000); err == nil {
		t.Error("read of unmapped address succeeded")
	}
	if err := s.ReadAt(b[:], 0x2ffc); err == nil {
		t.Error("read past mapping end succeeded")
	}
}

func TestSpacePerms(t *testing.T) {
	s := new(Space)
	if _, err := s.Add(0x1000, 0x2000, Read); err != nil {
		t.Fatal(err)
	}
	if err := WritePtr(s, binary.LittleEndian, 0x1000, 1); err == nil {
		t.Error("write to read-only mapping succeeded")
	}
	if got := (Read | Exec).String(); got != "r-x" {
		t.Errorf("Perm.String: got %q", got)
	}
	if got := Perm(0).String(); got != "---" {
		t.Errorf("Perm(0).String: got %q", got)
	}
}

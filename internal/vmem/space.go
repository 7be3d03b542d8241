// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmem

import (
	"fmt"
	"sort"
)

// A Mapping is a contiguous region of the target's address space.
type Mapping struct {
	min  Address
	max  Address
	perm Perm

	contents []byte // length max-min
}

// Min returns the lowest address of the mapping.
func (m *Mapping) Min() Address { return m.min }

// Max returns the address just beyond the mapping.
func (m *Mapping) Max() Address { return m.max }

// Size returns int64(Max-Min).
func (m *Mapping) Size() int64 { return m.max.Sub(m.min) }

// Perm returns the permissions of the mapping.
func (m *Mapping) Perm() Perm { return m.perm }

// A Space is a Memory backed by in-process buffers, one per mapping.
// It is how snapshots and tests describe a target address space.
type Space struct {
	mappings []*Mapping // sorted by min, non-overlapping
}

// Add registers the region [min,max) with the given permissions.
// Overlapping an existing mapping is an error.
func (s *Space) Add(min, max Address, perm Perm) (*Mapping, error) {
	if min >= max {
		return nil, fmt.Errorf("bad mapping bounds [%v %v]", min, max)
	}
	i := sort.Search(len(s.mappings), func(i int) bool {
		return s.mappings[i].max > min
	})
	if i < len(s.mappings) && s.mappings[i].min < max {
		return nil, fmt.Errorf("mapping [%v %v] overlaps [%v %v]",
			min, max, s.mappings[i].min, s.mappings[i].max)
	}
	m := &Mapping{min: min, max: max, perm: perm, contents: make([]byte, max.Sub(min))}
	s.mappings = append(s.mappings, nil)
	copy(s.mappings[i+1:], s.mappings[i:])
	s.mappings[i] = m
	return m, nil
}

// Mappings returns the registered mappings, lowest address first.
func (s *Space) Mappings() []*Mapping {
	return s.mappings
}

func (s *Space) findMapping(a Address) *Mapping {
	i := sort.Search(len(s.mappings), func(i int) bool {
		return s.mappings[i].max > a
	})
	if i == len(s.mappings) || a < s.mappings[i].min {
		return nil
	}
	return s.mappings[i]
}

// Readable reports whether the n bytes at a are mapped readable.
// The range may cross mapping boundaries.
func (s *Space) Readable(a Address, n int64) bool {
	for n > 0 {
		m := s.findMapping(a)
		if m == nil || m.perm&Read == 0 {
			return false
		}
		c := m.max.Sub(a)
		if n <= c {
			return true
		}
		n -= c
		a = a.Add(c)
	}
	return true
}

// ReadAt implements Memory.
func (s *Space) ReadAt(b []byte, a Address) error {
	for len(b) > 0 {
		m := s.findMapping(a)
		if m == nil || m.perm&Read == 0 {
			return fmt.Errorf("address %v is not readable", a)
		}
		n := copy(b, m.contents[a.Sub(m.min):])
		b = b[n:]
		a = a.Add(int64(n))
	}
	return nil
}

// WriteAt implements Memory.
func (s *Space) WriteAt(b []byte, a Address) error {
	for len(b) > 0 {
		m := s.findMapping(a)
		if m == nil || m.perm&Write == 0 {
			return fmt.Errorf("address %v is not writeable", a)
		}
		n := copy(m.contents[a.Sub(m.min):], b)
		b = b[n:]
		a = a.Add(int64(n))
	}
	return nil
}

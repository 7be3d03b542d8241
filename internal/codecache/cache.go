// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codecache

import (
	"fmt"
	"sort"

	"github.com/elastic/go-freelru"

	"github.com/jvmtools/walkjvm/internal/vmem"
)

// lookupCacheSize bounds the pc->blob lookup cache. Stack walks hit
// the same handful of blobs over and over.
const lookupCacheSize = 512

// A Cache is the registry of code blobs plus the few distinguished
// code addresses the walker must recognize: the interpreter's code
// range, the continuation return barrier, and the call stub's return
// point.
type Cache struct {
	blobs  []*Blob // sorted by Start, non-overlapping
	lookup *freelru.LRU[vmem.Address, *Blob]

	interpStart vmem.Address
	interpEnd   vmem.Address

	returnBarrier  vmem.Address
	callStubReturn vmem.Address
}

func New() *Cache {
	lookup, err := freelru.New[vmem.Address, *Blob](lookupCacheSize, vmem.Address.Hash32)
	if err != nil {
		// Only reachable with a bad constant size.
		panic(fmt.Sprintf("codecache: %v", err))
	}
	return &Cache{lookup: lookup}
}

// Add registers a blob. Blobs must not overlap.
func (c *Cache) Add(b *Blob) error {
	i := sort.Search(len(c.blobs), func(i int) bool {
		return c.blobs[i].End > b.Start
	})
	if i < len(c.blobs) && c.blobs[i].Start < b.End {
		return fmt.Errorf("codecache: %v overlaps %v", b, c.blobs[i])
	}
	c.blobs = append(c.blobs, nil)
	copy(c.blobs[i+1:], c.blobs[i:])
	c.blobs[i] = b
	c.lookup.Purge()
	return nil
}

// Remove drops a blob from the registry (method flushing).
func (c *Cache) Remove(b *Blob) {
	for i, x := range c.blobs {
		if x == b {
			c.blobs = append(c.blobs[:i], c.blobs[i+1:]...)
			c.lookup.Purge()
			return
		}
	}
}

// Blobs returns the registered blobs, lowest address first.
func (c *Cache) Blobs() []*Blob { return c.blobs }

// FindBlob returns the blob whose range contains a, or nil. Any
// address inside the blob finds it, not just instruction addresses.
func (c *Cache) FindBlob(a vmem.Address) *Blob {
	if a == 0 {
		return nil
	}
	if b, ok := c.lookup.Get(a); ok {
		return b
	}
	i := sort.Search(len(c.blobs), func(i int) bool {
		return c.blobs[i].End > a
	})
	if i == len(c.blobs) || a < c.blobs[i].Start {
		return nil
	}
	b := c.blobs[i]
	c.lookup.Add(a, b)
	return b
}

// SetInterpreterRange registers the interpreter's generated code range.
func (c *Cache) SetInterpreterRange(start, end vmem.Address) {
	c.interpStart, c.interpEnd = start, end
}

// AddInterpreter registers the interpreter's code range together with
// the buffer blob backing it, so pc lookups inside the interpreter
// resolve like any other blob.
func (c *Cache) AddInterpreter(start, end vmem.Address) error {
	b, err := NewBlob("interpreter", start, end, start, end, 0, 0, OtherBlob{})
	if err != nil {
		return err
	}
	if err := c.Add(b); err != nil {
		return err
	}
	c.SetInterpreterRange(start, end)
	return nil
}

// InterpreterContains reports whether pc lies in the interpreter's
// generated code.
func (c *Cache) InterpreterContains(pc vmem.Address) bool {
	return c.interpStart <= pc && pc < c.interpEnd
}

// SetReturnBarrier registers the continuation return-barrier address.
func (c *Cache) SetReturnBarrier(a vmem.Address) { c.returnBarrier = a }

// IsReturnBarrier reports whether pc is the continuation return
// barrier, the marker return address of a frame whose caller chain was
// suspended into continuation storage.
func (c *Cache) IsReturnBarrier(pc vmem.Address) bool {
	return pc != 0 && pc == c.returnBarrier
}

// SetCallStubReturn registers the entry stub's return address.
func (c *Cache) SetCallStubReturn(a vmem.Address) { c.callStubReturn = a }

// ReturnsToCallStub reports whether returnPC re-enters the call stub,
// i.e. the sender is an entry frame.
func (c *Cache) ReturnsToCallStub(returnPC vmem.Address) bool {
	return returnPC != 0 && returnPC == c.callStubReturn
}

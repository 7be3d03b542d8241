// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot loads a TOML description of a target's state — its
// memory, code cache and threads — into walkable form. Snapshots are
// how stacks captured from a crashed or misbehaving VM are examined
// offline, and how tests and the walkjvm tool build reproducible
// scenarios.
package snapshot

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/jvmtools/walkjvm/internal/arch"
	"github.com/jvmtools/walkjvm/internal/codecache"
	"github.com/jvmtools/walkjvm/internal/stackwalk"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

// File layout of a snapshot. Addresses are TOML integers, usually in
// hex.
type file struct {
	Arch        string        `toml:"arch"`
	Interpreter interpRange   `toml:"interpreter"`
	Stubs       stubAddrs     `toml:"stubs"`
	Mappings    []mappingDecl `toml:"mapping"`
	Words       []wordDecl    `toml:"word"`
	Blobs       []blobDecl    `toml:"blob"`
	Threads     []threadDecl  `toml:"thread"`
}

type interpRange struct {
	Start int64 `toml:"start"`
	End   int64 `toml:"end"`
}

type stubAddrs struct {
	ReturnBarrier  int64 `toml:"return-barrier"`
	CallStubReturn int64 `toml:"call-stub-return"`
}

type mappingDecl struct {
	Min  int64  `toml:"min"`
	Max  int64  `toml:"max"`
	Perm string `toml:"perm"`
}

type wordDecl struct {
	Addr  int64 `toml:"addr"`
	Value int64 `toml:"value"`
}

type blobDecl struct {
	Name                  string `toml:"name"`
	Kind                  string `toml:"kind"`
	Start                 int64  `toml:"start"`
	End                   int64  `toml:"end"`
	CodeStart             int64  `toml:"code-start"`
	CodeEnd               int64  `toml:"code-end"`
	FrameSize             int64  `toml:"frame-size"`
	FrameComplete         int64  `toml:"frame-complete"`
	DeoptEntry            int64  `toml:"deopt-entry"`
	DeoptMHEntry          int64  `toml:"deopt-mh-entry"`
	OrigPCOffset          int64  `toml:"orig-pc-offset"`
	FrameDataOffset       int64  `toml:"frame-data-offset"`
	MethodHandleIntrinsic bool   `toml:"method-handle-intrinsic"`
}

type threadDecl struct {
	Name     string `toml:"name"`
	StackLo  int64  `toml:"stack-lo"`
	GuardTop int64  `toml:"guard-top"`
	StackHi  int64  `toml:"stack-hi"`
	SP       int64  `toml:"sp"`
	FP       int64  `toml:"fp"`
	PC       int64  `toml:"pc"`
	AnchorSP int64  `toml:"anchor-sp"`
	AnchorFP int64  `toml:"anchor-fp"`
	AnchorPC int64  `toml:"anchor-pc"`
}

// A Thread pairs a walkable thread with the register values sampled
// when the snapshot was taken.
type Thread struct {
	Name string
	T    *stackwalk.Thread
	SP   vmem.Address
	FP   vmem.Address
	PC   vmem.Address
}

// A Snapshot is a loaded target state.
type Snapshot struct {
	Arch    *arch.Arch
	Space   *vmem.Space
	Cache   *codecache.Cache
	Threads []*Thread
}

// Load reads and assembles the snapshot at path. Per-section problems
// are collected: the returned error aggregates everything wrong with
// the file rather than stopping at the first bad entry.
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse assembles a snapshot from TOML text.
func Parse(b []byte) (*Snapshot, error) {
	var fl file
	if err := toml.Unmarshal(b, &fl); err != nil {
		return nil, fmt.Errorf("snapshot: %v", err)
	}

	s := &Snapshot{Space: new(vmem.Space), Cache: codecache.New()}
	var errs error

	switch fl.Arch {
	case "arm64", "":
		s.Arch = &arch.ARM64
	case "arm64-nopauth":
		s.Arch = &arch.ARM64NoPauth
	case "amd64":
		s.Arch = &arch.AMD64
	default:
		return nil, fmt.Errorf("snapshot: unknown arch %q", fl.Arch)
	}

	for _, m := range fl.Mappings {
		perm, err := parsePerm(m.Perm)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := s.Space.Add(vmem.Address(m.Min), vmem.Address(m.Max), perm); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	logrus.Debugf("snapshot: %d mappings", len(fl.Mappings))

	for _, w := range fl.Words {
		if err := vmem.WritePtr(s.Space, s.Arch.ByteOrder, vmem.Address(w.Addr), vmem.Address(w.Value)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("word at %#x: %v", w.Addr, err))
		}
	}

	if fl.Interpreter.End > fl.Interpreter.Start {
		if err := s.Cache.AddInterpreter(vmem.Address(fl.Interpreter.Start), vmem.Address(fl.Interpreter.End)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	s.Cache.SetReturnBarrier(vmem.Address(fl.Stubs.ReturnBarrier))
	s.Cache.SetCallStubReturn(vmem.Address(fl.Stubs.CallStubReturn))

	for _, d := range fl.Blobs {
		b, err := makeBlob(d)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := s.Cache.Add(b); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	logrus.Debugf("snapshot: %d blobs", len(fl.Blobs))

	for _, d := range fl.Threads {
		t := &stackwalk.Thread{
			Mem:      s.Space,
			Arch:     s.Arch,
			Cache:    s.Cache,
			StackLo:  vmem.Address(d.StackLo),
			GuardTop: vmem.Address(d.GuardTop),
			StackHi:  vmem.Address(d.StackHi),
			Anchor: stackwalk.Anchor{
				SP: vmem.Address(d.AnchorSP),
				FP: vmem.Address(d.AnchorFP),
				PC: vmem.Address(d.AnchorPC),
			},
			Cont: stackwalk.NopResolver{},
		}
		if t.GuardTop == 0 {
			t.GuardTop = t.StackLo
		}
		s.Threads = append(s.Threads, &Thread{
			Name: d.Name,
			T:    t,
			SP:   vmem.Address(d.SP),
			FP:   vmem.Address(d.FP),
			PC:   vmem.Address(d.PC),
		})
	}

	if errs != nil {
		return nil, fmt.Errorf("snapshot: %w", errs)
	}
	return s, nil
}

func parsePerm(s string) (vmem.Perm, error) {
	var p vmem.Perm
	for _, c := range s {
		switch c {
		case 'r':
			p |= vmem.Read
		case 'w':
			p |= vmem.Write
		case 'x':
			p |= vmem.Exec
		case '-':
		default:
			return 0, fmt.Errorf("bad perm %q", s)
		}
	}
	return p, nil
}

func makeBlob(d blobDecl) (*codecache.Blob, error) {
	var kind codecache.BlobKind
	switch d.Kind {
	case "compiled-method":
		kind = codecache.CompiledMethod{
			DeoptEntry:            vmem.Address(d.DeoptEntry),
			DeoptMHEntry:          vmem.Address(d.DeoptMHEntry),
			MethodHandleIntrinsic: d.MethodHandleIntrinsic,
			OrigPCOffsetWords:     d.OrigPCOffset,
		}
	case "runtime-stub":
		kind = codecache.RuntimeStub{}
	case "adapter":
		kind = codecache.Adapter{}
	case "entry-stub":
		kind = codecache.EntryStub{}
	case "upcall-stub":
		kind = codecache.UpcallStub{FrameDataOffset: d.FrameDataOffset}
	case "blob", "":
		kind = codecache.OtherBlob{}
	default:
		return nil, fmt.Errorf("blob %q: unknown kind %q", d.Name, d.Kind)
	}
	codeStart, codeEnd := d.CodeStart, d.CodeEnd
	if codeStart == 0 && codeEnd == 0 {
		codeStart, codeEnd = d.Start, d.End
	}
	return codecache.NewBlob(d.Name,
		vmem.Address(d.Start), vmem.Address(d.End),
		vmem.Address(codeStart), vmem.Address(codeEnd),
		d.FrameSize, d.FrameComplete, kind)
}

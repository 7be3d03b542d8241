// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jvmtools/walkjvm/internal/snapshot"
	"github.com/jvmtools/walkjvm/internal/stackwalk"
	"github.com/jvmtools/walkjvm/internal/vmem"
)

const inspectHelp = `commands:
  thread <name>    select a thread
  frame            show the current frame's slots
  up               move to the sender frame
  top              return to the thread's sampled registers
  safe             run the safety classifier on the current frame
  blob <addr>      look up the code blob owning an address
  mem <addr> [n]   read n words of target memory (default 4)
  help             print this message
  quit             leave
`

// inspect is a small REPL for poking at a snapshot: select a thread,
// move up its stack one sender at a time, read memory, look up blobs.
func runInspect(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	if len(s.Threads) == 0 {
		return fmt.Errorf("snapshot has no threads")
	}

	rl, err := readline.New("walkjvm> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	cur := s.Threads[0]
	f := stackwalk.NewTopFrame(cur.T, cur.SP, cur.FP, cur.PC)
	depth := 0

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "q", "exit":
			return nil
		case "help":
			fmt.Print(inspectHelp)
		case "thread":
			if len(fields) != 2 {
				fmt.Println("usage: thread <name>")
				continue
			}
			th := findThread(s, fields[1])
			if th == nil {
				fmt.Printf("no thread named %q\n", fields[1])
				continue
			}
			cur = th
			f = stackwalk.NewTopFrame(cur.T, cur.SP, cur.FP, cur.PC)
			depth = 0
			fmt.Printf("thread %s, frame #0 %v\n", cur.Name, f)
		case "frame":
			stackwalk.DescribeFrame(os.Stdout, cur.T, f)
		case "up":
			sender, err := f.Sender(cur.T, nil)
			if err != nil {
				fmt.Printf("%v\n", err)
				continue
			}
			f = sender
			depth++
			fmt.Printf("frame #%d %s %v\n", depth, f.KindString(cur.T), f)
		case "top":
			f = stackwalk.NewTopFrame(cur.T, cur.SP, cur.FP, cur.PC)
			depth = 0
			fmt.Printf("frame #0 %v\n", f)
		case "safe":
			fmt.Printf("safe for sender: %v\n", f.SafeForSender(cur.T))
		case "blob":
			if len(fields) != 2 {
				fmt.Println("usage: blob <addr>")
				continue
			}
			a, err := parseAddr(fields[1])
			if err != nil {
				fmt.Printf("%v\n", err)
				continue
			}
			b := s.Cache.FindBlob(a)
			if b == nil {
				fmt.Println("no blob")
				continue
			}
			fmt.Printf("%v frame words %d code [%v %v)\n", b, b.FrameSizeWords, b.CodeStart, b.CodeEnd)
		case "mem":
			if len(fields) < 2 || len(fields) > 3 {
				fmt.Println("usage: mem <addr> [n]")
				continue
			}
			a, err := parseAddr(fields[1])
			if err != nil {
				fmt.Printf("%v\n", err)
				continue
			}
			n := 4
			if len(fields) == 3 {
				if n, err = strconv.Atoi(fields[2]); err != nil {
					fmt.Printf("%v\n", err)
					continue
				}
			}
			for i := 0; i < n; i++ {
				addr := a.Add(int64(i) * s.Arch.WordSize())
				v, err := vmem.ReadPtr(s.Space, s.Arch.ByteOrder, addr)
				if err != nil {
					fmt.Printf("%v  ????????????\n", addr)
					break
				}
				fmt.Printf("%v  %v\n", addr, v)
			}
		default:
			fmt.Printf("unknown command %q; try help\n", fields[0])
		}
	}
}

func findThread(s *snapshot.Snapshot, name string) *snapshot.Thread {
	for _, th := range s.Threads {
		if th.Name == name {
			return th
		}
	}
	return nil
}

func parseAddr(s string) (vmem.Address, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return vmem.Address(v), nil
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The walkjvm tool examines JVM stack snapshots: it classifies and
// walks the recorded threads' frames the way an in-process profiler
// would, and prints what it finds. Run "walkjvm help" for a list of
// commands.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jvmtools/walkjvm/internal/snapshot"
	"github.com/jvmtools/walkjvm/internal/stackwalk"
)

var (
	verbose    bool
	threadName string
	maxFrames  int
)

func main() {
	root := &cobra.Command{
		Use:           "walkjvm",
		Short:         "walkjvm examines JVM stack snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	overview := &cobra.Command{
		Use:   "overview <snapshot>",
		Short: "print a few overall statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverview,
	}
	mappings := &cobra.Command{
		Use:   "mappings <snapshot>",
		Short: "print the target's memory mappings",
		Args:  cobra.ExactArgs(1),
		RunE:  runMappings,
	}
	blobs := &cobra.Command{
		Use:   "blobs <snapshot>",
		Short: "list code cache blobs",
		Args:  cobra.ExactArgs(1),
		RunE:  runBlobs,
	}
	threads := &cobra.Command{
		Use:   "threads <snapshot>",
		Short: "list threads with their stack bounds and anchors",
		Args:  cobra.ExactArgs(1),
		RunE:  runThreads,
	}
	walk := &cobra.Command{
		Use:   "walk <snapshot>",
		Short: "dump each thread's stack (diagnostic, best effort)",
		Args:  cobra.ExactArgs(1),
		RunE:  runWalk,
	}
	walk.Flags().StringVar(&threadName, "thread", "", "walk only the named thread")
	walk.Flags().IntVar(&maxFrames, "max", 64, "maximum frames per thread")

	check := &cobra.Command{
		Use:   "check <snapshot>",
		Short: "classify each thread's frames as a profiler would",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	check.Flags().StringVar(&threadName, "thread", "", "check only the named thread")
	check.Flags().IntVar(&maxFrames, "max", 64, "maximum frames per thread")

	inspect := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "interactively explore a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	root.AddCommand(overview, mappings, blobs, threads, walk, check, inspect)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walkjvm: %v\n", err)
		os.Exit(1)
	}
}

func load(path string) (*snapshot.Snapshot, error) {
	s, err := snapshot.Load(path)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("loaded %s: %d threads, %d blobs", path, len(s.Threads), len(s.Cache.Blobs()))
	return s, nil
}

// selected returns the snapshot threads the --thread flag picks.
func selected(s *snapshot.Snapshot) []*snapshot.Thread {
	if threadName == "" {
		return s.Threads
	}
	for _, t := range s.Threads {
		if t.Name == threadName {
			return []*snapshot.Thread{t}
		}
	}
	return nil
}

func runOverview(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	var mapped int64
	for _, m := range s.Space.Mappings() {
		mapped += m.Size()
	}
	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "arch\t%s\n", s.Arch.Name)
	fmt.Fprintf(t, "mappings\t%d (%d bytes)\n", len(s.Space.Mappings()), mapped)
	fmt.Fprintf(t, "code blobs\t%d\n", len(s.Cache.Blobs()))
	fmt.Fprintf(t, "threads\t%d\n", len(s.Threads))
	return t.Flush()
}

func runMappings(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "min\tmax\tperm\t\n")
	for _, m := range s.Space.Mappings() {
		fmt.Fprintf(t, "%v\t%v\t%v\t\n", m.Min(), m.Max(), m.Perm())
	}
	return t.Flush()
}

func runBlobs(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "start\tend\tkind\tframe words\tname\t\n")
	for _, b := range s.Cache.Blobs() {
		fmt.Fprintf(t, "%v\t%v\t%s\t%d\t%s\t\n", b.Start, b.End, b.Kind(), b.FrameSizeWords, b.Name)
	}
	return t.Flush()
}

func runThreads(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "name\tstack\tguard top\tsp\tfp\tpc\tanchor\t\n")
	for _, th := range s.Threads {
		anchor := "-"
		if th.T.Anchor.SP != 0 {
			anchor = fmt.Sprintf("sp=%v pc=%v", th.T.Anchor.SP, th.T.Anchor.PC)
			if !th.T.Anchor.Walkable() {
				anchor += " (pending)"
			}
		}
		fmt.Fprintf(t, "%s\t[%v %v)\t%v\t%v\t%v\t%v\t%s\t\n",
			th.Name, th.T.StackLo, th.T.StackHi, th.T.GuardTop, th.SP, th.FP, th.PC, anchor)
	}
	return t.Flush()
}

func runWalk(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	ths := selected(s)
	if ths == nil {
		return fmt.Errorf("no thread named %q", threadName)
	}
	for _, th := range ths {
		fmt.Printf("thread %s:\n", th.Name)
		cur := stackwalk.FixupCursor(th.T, stackwalk.Cursor{SP: th.SP, FP: th.FP, PC: th.PC})
		stackwalk.DumpStack(os.Stdout, th.T, cur, maxFrames)
	}
	return nil
}

// runCheck walks each thread the trusted way: every frame must pass
// the safety classifier before its sender is computed, exactly as an
// async profiler would do it.
func runCheck(cmd *cobra.Command, args []string) error {
	s, err := load(args[0])
	if err != nil {
		return err
	}
	ths := selected(s)
	if ths == nil {
		return fmt.Errorf("no thread named %q", threadName)
	}
	for _, th := range ths {
		fmt.Printf("thread %s:\n", th.Name)
		f := stackwalk.NewTopFrame(th.T, th.SP, th.FP, th.PC)
		m := stackwalk.NewRegisterMap(th.T, false, false)
		for i := 0; i < maxFrames; i++ {
			if f.IsEntry() && f.EntryFrameIsFirst(th.T) {
				fmt.Printf("#%d  outermost entry frame %v\n", i, f.PC())
				break
			}
			if !f.SafeForSender(th.T) {
				fmt.Printf("#%d  %s %v UNSAFE, trace truncated\n", i, f.KindString(th.T), f.PC())
				break
			}
			fmt.Printf("#%d  %s %v safe\n", i, f.KindString(th.T), f.PC())
			sender, err := f.Sender(th.T, m)
			if err != nil {
				fmt.Printf("    %v\n", err)
				break
			}
			f = sender
		}
	}
	return nil
}

//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"memkit/coloransi"
	"memkit/hexdump"
	"memkit/process"
	"memkit/process_linux"
	"memkit/scantask"
	"memkit/sigscan"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	nameFlag := flag.String("name", "", "Executable name to attach to (lowest pid wins)")
	patternFlag := flag.String("pattern", "", "Signature to scan for, e.g. '48 8B ?5 ?? 90'")
	moduleFlag := flag.String("module", "", "Scan only this module image instead of private pages")
	alignFlag := flag.Int("align", 1, "Only report matches at multiples of this alignment")
	offsetFlag := flag.Int64("offset", 0, "Signed offset added to each reported address")
	parallelFlag := flag.Int("parallel", scantask.DefaultMaxParallel, "Pages scanned concurrently")
	allFlag := flag.Bool("all", false, "Scan every readable mapping, not only private pages")
	followFlag := flag.Bool("follow", false, "Report the address the matched instruction refers to")
	contextFlag := flag.Int("context", 32, "Bytes of context dumped around each match")
	colorFlag := flag.Bool("color", true, "Colorize the hexdump")
	flag.Parse()

	if *patternFlag == "" {
		fmt.Println("Error: --pattern is required")
		flag.Usage()
		os.Exit(1)
	}

	sig, err := sigscan.ParseSignature(*offsetFlag, *patternFlag)
	if err != nil {
		fmt.Printf("Error parsing pattern: %v\n", err)
		os.Exit(1)
	}

	proc, err := open(*pidFlag, *nameFlag)
	if err != nil {
		fmt.Printf("Error attaching to process: %v\n", err)
		os.Exit(1)
	}
	defer proc.Close()

	fmt.Printf("Attached to process %d\n", proc.GetPID())
	fmt.Printf("Scanning for pattern: %s\n", sig)

	target := sigscan.NewScanTarget(sig)
	if *followFlag {
		target.WithOnFound(sigscan.FollowInstruction(proc))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var matches []process.ProcessMemoryAddress
	if *moduleFlag != "" {
		matches, err = scanModule(proc, *moduleFlag, target, *alignFlag)
	} else {
		matches, err = scantask.FindAll(ctx, proc, target,
			scantask.WithAlignment(*alignFlag),
			scantask.WithMaxParallel(*parallelFlag),
			scantask.WithAllPages(*allFlag),
		)
	}
	if err != nil {
		fmt.Printf("Error scanning memory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d matches:\n", len(matches))

	opts := hexdump.DefaultOptions()
	if !*colorFlag {
		opts.Palette = coloransi.Plain
	}

	for _, match := range matches {
		fmt.Println(describe(proc, match))
		if *followFlag {
			continue
		}

		dump, err := hexdump.Context(proc, match.Add(-*offsetFlag), sig.Len(), *contextFlag, opts)
		if err != nil {
			fmt.Printf("  (unreadable: %v)\n", err)
			continue
		}
		fmt.Print(dump)
	}
}

func open(pid int, name string) (*process_linux.LinuxProcess, error) {
	switch {
	case pid != 0:
		return process_linux.NewWithPID(process.ProcessID(pid))
	case name != "":
		return process_linux.OpenByName(name)
	}
	return nil, fmt.Errorf("one of --pid or --name is required")
}

func scanModule(proc process.Process, name string, target *sigscan.ScanTarget, alignment int) ([]process.ProcessMemoryAddress, error) {
	module, err := process.FindModule(proc, name)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}

	seq, err := sigscan.NewProcessScanner(proc, module).ScanAll(target, alignment)
	if err != nil {
		return nil, err
	}

	var out []process.ProcessMemoryAddress
	for addr := range seq {
		out = append(out, addr)
	}
	return out, nil
}

func describe(proc process.Process, addr process.ProcessMemoryAddress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Match at %s", addr.ToString())
	if m, ok := process.ModuleAt(proc, addr); ok {
		fmt.Fprintf(&sb, " (%s+0x%x)", m.Name, uint64(addr-m.Base))
	}
	return sb.String()
}

// main.go - Main entry point for the Win32 userland emulator

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
)

func boilerPlate() {
	fmt.Println("win32emu - 32-bit x86 userland emulator")
	fmt.Println("https://github.com/win32emu/win32emu")
}

func main() {
	var (
		memSize  string
		loadAddr string
		entry    string
		steps    uint64
		trace    bool
		monitor  bool
		perf     bool
		sandbox  string
		interact bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&memSize, "mem", "0x1000000", "memory size in bytes (hex or decimal)")
	flagSet.StringVar(&loadAddr, "load-addr", "0x400000", "image load address (hex or decimal)")
	flagSet.StringVar(&entry, "entry", "", "entry point (defaults to the load address)")
	flagSet.Uint64Var(&steps, "steps", 0, "stop after this many instructions (0 = unlimited)")
	flagSet.BoolVar(&trace, "trace", false, "print each instruction as it executes")
	flagSet.BoolVar(&monitor, "monitor", false, "start in the machine monitor")
	flagSet.BoolVar(&perf, "perf", false, "report MIPS while running")
	flagSet.StringVar(&sandbox, "dir", ".", "host directory for guest file access")
	flagSet.BoolVar(&interact, "interactive", false, "attach raw stdin to the guest console")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./win32emu [options] program.bin")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			flagSet.Usage()
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	filename := flagSet.Arg(0)
	if filename == "" {
		flagSet.Usage()
		os.Exit(1)
	}

	parsedMem, err := parseUint32Flag(memSize)
	if err != nil {
		fmt.Printf("Invalid -mem: %v\n", err)
		os.Exit(1)
	}
	if parsedMem < 0x100000 {
		fmt.Println("Error: -mem must be at least 0x100000 (1MB)")
		os.Exit(1)
	}
	parsedLoad, err := parseUint32Flag(loadAddr)
	if err != nil {
		fmt.Printf("Invalid -load-addr: %v\n", err)
		os.Exit(1)
	}
	parsedEntry := parsedLoad
	if entry != "" {
		parsedEntry, err = parseUint32Flag(entry)
		if err != nil {
			fmt.Printf("Invalid -entry: %v\n", err)
			os.Exit(1)
		}
	}

	boilerPlate()

	// Memory layout: image at the load address, import stubs in the top
	// 64K, thread block below them, stack growing down from under that.
	runner := NewRunner(&RunnerConfig{
		MemSize:  parsedMem,
		Entry:    parsedEntry,
		StackTop: parsedMem - 0x20000,
		Trace:    trace,
	})
	runner.PerfEnabled = perf

	img, err := LoadImageFile(filename, parsedLoad, parsedEntry)
	if err != nil {
		fmt.Printf("Error loading program: %v\n", err)
		os.Exit(1)
	}
	if err := runner.LoadImage(img); err != nil {
		fmt.Printf("Error mapping program: %v\n", err)
		os.Exit(1)
	}

	console := NewConsole()
	files := NewFileHost(sandbox)
	defer files.CloseAll()

	env := NewWin32Env(console, files)
	imports := NewImportTable(parsedMem - 0x10000)
	env.RegisterDefaults(imports)
	if err := imports.Install(runner.CPU(), nil); err != nil {
		fmt.Printf("Error installing imports: %v\n", err)
		os.Exit(1)
	}

	// A small thread block so FS-relative reads resolve. The image is
	// zeroed memory, enough for programs that walk the SEH chain.
	teb := &ThreadBlock{Base: parsedMem - 0x20000, Size: 0x1000}
	runner.CPU().SetSegmentResolver(teb)

	if monitor {
		mon := NewMonitor(runner)
		if err := mon.Run(); err != nil {
			fmt.Printf("Monitor error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(console.DrainOutput())
		return
	}

	var host *TerminalHost
	if interact {
		host = NewTerminalHost(console)
		host.Start()
		defer host.Stop()
	}

	n, err := runner.Run(steps)
	if host != nil {
		host.PrintOutput()
	} else {
		fmt.Print(console.DrainOutput())
	}
	if err != nil {
		fmt.Printf("\nFault after %d instructions: %v\n", n, err)
		fmt.Print(runner.DumpState())
		os.Exit(1)
	}
	if env.Exited {
		fmt.Printf("\nProgram exited with code %d after %d instructions\n", env.ExitCode, n)
		os.Exit(int(env.ExitCode & 0xFF))
	}
}

func parseUint32Flag(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, err
	}
	if parsed > 0xFFFFFFFF {
		return 0, fmt.Errorf("value out of range: 0x%X", parsed)
	}
	return uint32(parsed), nil
}

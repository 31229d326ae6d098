// cpu_x86_runner.go - x86 Process Runner
//
// Owns the emulated memory and CPU for one Win32-style process image and
// drives execution: section loading, entry/stack setup, budgeted run loop,
// optional instruction trace and MIPS reporting.

package main

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMemorySize = 16 * 1024 * 1024
	stackReserve      = 16 // bytes kept free above the initial ESP
)

// RunnerConfig holds configuration for the process runner
type RunnerConfig struct {
	MemSize  uint32 // Emulated memory size, 0 = defaultMemorySize
	Entry    uint32 // Initial EIP
	StackTop uint32 // Initial ESP, 0 = top of memory
	Trace    bool   // Disassemble each instruction before executing it
}

// Runner manages the x86 CPU and its process memory
type Runner struct {
	cpu   *CPU_X86
	mem   *Memory
	entry uint32
	trace bool

	// Performance monitoring
	PerfEnabled      bool
	InstructionCount uint64
	perfStartTime    time.Time
	lastPerfReport   time.Time

	stopReq    atomic.Bool
	execMu     sync.Mutex
	execDone   chan struct{}
	execActive bool
}

// NewRunner creates a runner with a fresh memory image and CPU
func NewRunner(config *RunnerConfig) *Runner {
	memSize := uint32(defaultMemorySize)
	entry := uint32(0)
	trace := false
	stackTop := uint32(0)

	if config != nil {
		if config.MemSize != 0 {
			memSize = config.MemSize
		}
		entry = config.Entry
		stackTop = config.StackTop
		trace = config.Trace
	}
	if stackTop == 0 {
		stackTop = memSize - stackReserve
	}

	mem := NewMemory(memSize)
	cpu := NewCPU_X86(mem)
	cpu.EIP = entry
	cpu.ESP = stackTop

	return &Runner{
		cpu:   cpu,
		mem:   mem,
		entry: entry,
		trace: trace,
	}
}

// CPU returns the CPU instance
func (r *Runner) CPU() *CPU_X86 {
	return r.cpu
}

// Memory returns the process memory
func (r *Runner) Memory() *Memory {
	return r.mem
}

// LoadImage copies the image sections into memory and seeds EIP
func (r *Runner) LoadImage(img *Image) error {
	if err := img.LoadInto(r.mem); err != nil {
		return err
	}
	r.entry = img.Entry
	r.cpu.EIP = img.Entry
	return nil
}

// Reset resets the CPU and restores the entry point. Memory contents are
// left alone.
func (r *Runner) Reset() {
	stackTop := r.cpu.ESP
	r.cpu.Reset()
	r.cpu.EIP = r.entry
	r.cpu.ESP = stackTop
	r.stopReq.Store(false)
}

// Step executes a single instruction
func (r *Runner) Step() error {
	return r.cpu.Step()
}

// Run executes until the CPU halts, a fault escapes with no exception
// handler installed, or the step budget runs out. maxSteps of 0 means
// no budget. Returns the number of instructions executed.
func (r *Runner) Run(maxSteps uint64) (uint64, error) {
	if r.PerfEnabled {
		r.perfStartTime = time.Now()
		r.lastPerfReport = r.perfStartTime
		r.InstructionCount = 0
	}

	var n uint64
	for !r.cpu.Halted && !r.stopReq.Load() {
		if maxSteps > 0 && n >= maxSteps {
			log.Printf("x86: step budget of %d exhausted at EIP=%08X", maxSteps, r.cpu.EIP)
			return n, nil
		}

		if r.trace {
			lines := disassembleAt(r.mem, r.cpu.EIP, 1)
			if len(lines) > 0 {
				fmt.Printf("%08X  %s\n", r.cpu.EIP, lines[0].Mnemonic)
			}
		}

		if err := r.cpu.Step(); err != nil {
			return n, err
		}
		n++

		if r.PerfEnabled {
			r.InstructionCount++
			if r.InstructionCount&0xFFFFFF == 0 { // Every ~16M instructions
				now := time.Now()
				if now.Sub(r.lastPerfReport) >= time.Second {
					elapsed := now.Sub(r.perfStartTime).Seconds()
					ips := float64(r.InstructionCount) / elapsed
					mips := ips / 1_000_000
					fmt.Printf("x86: %.2f MIPS (%.0f instructions in %.1fs)\n", mips, float64(r.InstructionCount), elapsed)
					r.lastPerfReport = now
				}
			}
		}
	}
	return n, nil
}

// IsRunning returns whether the CPU can still make progress
func (r *Runner) IsRunning() bool {
	return !r.cpu.Halted && !r.stopReq.Load()
}

// StartExecution runs the CPU on a background goroutine until it halts
// or Stop is called
func (r *Runner) StartExecution() {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	if r.execActive {
		return
	}
	r.execActive = true
	r.stopReq.Store(false)
	r.cpu.Halted = false
	r.execDone = make(chan struct{})
	go func() {
		defer func() {
			r.execMu.Lock()
			r.execActive = false
			close(r.execDone)
			r.execMu.Unlock()
		}()
		if _, err := r.Run(0); err != nil {
			log.Printf("x86: %v", err)
		}
	}()
}

// Stop halts background execution and waits for the run loop to exit
func (r *Runner) Stop() {
	r.execMu.Lock()
	if !r.execActive {
		r.stopReq.Store(true)
		r.execMu.Unlock()
		return
	}
	r.stopReq.Store(true)
	done := r.execDone
	r.execMu.Unlock()
	<-done
}

// DumpState formats the CPU state for diagnostics
func (r *Runner) DumpState() string {
	return r.cpu.DumpState()
}

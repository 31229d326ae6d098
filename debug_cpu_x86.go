// debug_cpu_x86.go - x86 debug adapter for the machine monitor

package main

import (
	"strings"
	"sync"
)

// RegisterInfo describes one register for monitor display
type RegisterInfo struct {
	Name     string
	BitWidth int
	Value    uint64
	Group    string
}

// Breakpoint is an execution breakpoint keyed on EIP
type Breakpoint struct {
	Address  uint32
	HitCount uint64
}

// Watchpoint fires when the watched byte changes value
type Watchpoint struct {
	Address   uint32
	LastValue byte
}

// BreakReason says why RunUntilBreak stopped
type BreakReason int

const (
	BreakNone BreakReason = iota
	BreakHalted
	BreakFault
	BreakBreakpoint
	BreakWatchpoint
	BreakBudget
)

// BreakEvent carries the stop details back to the monitor
type BreakEvent struct {
	Reason   BreakReason
	Address  uint32 // EIP at the stop
	Watch    uint32 // watched address, for BreakWatchpoint
	OldValue byte
	NewValue byte
	Fault    *Fault
}

// DebugX86 wraps a CPU for interactive inspection and control
type DebugX86 struct {
	cpu *CPU_X86
	mem *Memory

	bpMu        sync.RWMutex
	breakpoints map[uint32]*Breakpoint
	watchpoints map[uint32]*Watchpoint
}

func NewDebugX86(cpu *CPU_X86) *DebugX86 {
	return &DebugX86{
		cpu:         cpu,
		mem:         cpu.Memory(),
		breakpoints: make(map[uint32]*Breakpoint),
		watchpoints: make(map[uint32]*Watchpoint),
	}
}

func (d *DebugX86) CPUName() string   { return "X86" }
func (d *DebugX86) AddressWidth() int { return 32 }

func (d *DebugX86) GetRegisters() []RegisterInfo {
	c := d.cpu
	regs := []RegisterInfo{
		{Name: "EAX", BitWidth: 32, Value: uint64(c.EAX), Group: "general"},
		{Name: "EBX", BitWidth: 32, Value: uint64(c.EBX), Group: "general"},
		{Name: "ECX", BitWidth: 32, Value: uint64(c.ECX), Group: "general"},
		{Name: "EDX", BitWidth: 32, Value: uint64(c.EDX), Group: "general"},
		{Name: "ESI", BitWidth: 32, Value: uint64(c.ESI), Group: "general"},
		{Name: "EDI", BitWidth: 32, Value: uint64(c.EDI), Group: "general"},
		{Name: "EBP", BitWidth: 32, Value: uint64(c.EBP), Group: "general"},
		{Name: "ESP", BitWidth: 32, Value: uint64(c.ESP), Group: "general"},
		{Name: "EIP", BitWidth: 32, Value: uint64(c.EIP), Group: "general"},
		{Name: "EFLAGS", BitWidth: 32, Value: uint64(c.Flags), Group: "flags"},
		{Name: "FSW", BitWidth: 16, Value: uint64(c.FPU.FSW), Group: "fpu"},
		{Name: "FCW", BitWidth: 16, Value: uint64(c.FPU.FCW), Group: "fpu"},
		{Name: "FTW", BitWidth: 16, Value: uint64(c.FPU.FTW), Group: "fpu"},
	}
	return regs
}

func (d *DebugX86) GetRegister(name string) (uint64, bool) {
	c := d.cpu
	switch strings.ToUpper(name) {
	case "EAX":
		return uint64(c.EAX), true
	case "EBX":
		return uint64(c.EBX), true
	case "ECX":
		return uint64(c.ECX), true
	case "EDX":
		return uint64(c.EDX), true
	case "ESI":
		return uint64(c.ESI), true
	case "EDI":
		return uint64(c.EDI), true
	case "EBP":
		return uint64(c.EBP), true
	case "ESP":
		return uint64(c.ESP), true
	case "EIP":
		return uint64(c.EIP), true
	case "FLAGS", "EFLAGS":
		return uint64(c.Flags), true
	case "FSW":
		return uint64(c.FPU.FSW), true
	case "FCW":
		return uint64(c.FPU.FCW), true
	}
	return 0, false
}

func (d *DebugX86) SetRegister(name string, value uint64) bool {
	c := d.cpu
	switch strings.ToUpper(name) {
	case "EAX":
		c.EAX = uint32(value)
	case "EBX":
		c.EBX = uint32(value)
	case "ECX":
		c.ECX = uint32(value)
	case "EDX":
		c.EDX = uint32(value)
	case "ESI":
		c.ESI = uint32(value)
	case "EDI":
		c.EDI = uint32(value)
	case "EBP":
		c.EBP = uint32(value)
	case "ESP":
		c.ESP = uint32(value)
	case "EIP":
		c.EIP = uint32(value)
	case "FLAGS", "EFLAGS":
		c.Flags = uint32(value)
	case "FCW":
		c.FPU.FCW = uint16(value)
	default:
		return false
	}
	return true
}

func (d *DebugX86) GetPC() uint64     { return uint64(d.cpu.EIP) }
func (d *DebugX86) SetPC(addr uint64) { d.cpu.EIP = uint32(addr) }

// Step executes one instruction
func (d *DebugX86) Step() error {
	return d.cpu.Step()
}

// RunUntilBreak executes until a breakpoint or watchpoint fires, the CPU
// halts or faults, or maxSteps instructions run (0 = no budget). The
// breakpoint at the current EIP is skipped so continue can make progress.
func (d *DebugX86) RunUntilBreak(maxSteps uint64) BreakEvent {
	first := true
	var n uint64
	for {
		if d.cpu.Halted {
			return BreakEvent{Reason: BreakHalted, Address: d.cpu.EIP}
		}
		if maxSteps > 0 && n >= maxSteps {
			return BreakEvent{Reason: BreakBudget, Address: d.cpu.EIP}
		}

		if !first {
			d.bpMu.RLock()
			bp := d.breakpoints[d.cpu.EIP]
			d.bpMu.RUnlock()
			if bp != nil {
				bp.HitCount++
				return BreakEvent{Reason: BreakBreakpoint, Address: d.cpu.EIP}
			}
		}
		first = false

		if err := d.cpu.Step(); err != nil {
			f, _ := err.(*Fault)
			return BreakEvent{Reason: BreakFault, Address: d.cpu.EIP, Fault: f}
		}
		n++

		if ev, hit := d.checkWatchpoints(); hit {
			return ev
		}
	}
}

func (d *DebugX86) checkWatchpoints() (BreakEvent, bool) {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	for _, wp := range d.watchpoints {
		if wp.Address >= d.mem.Size() {
			continue
		}
		cur := d.mem.Read8(wp.Address)
		if cur != wp.LastValue {
			old := wp.LastValue
			wp.LastValue = cur
			return BreakEvent{
				Reason: BreakWatchpoint, Address: d.cpu.EIP,
				Watch: wp.Address, OldValue: old, NewValue: cur,
			}, true
		}
	}
	return BreakEvent{}, false
}

// Disassemble decodes count instructions starting at addr
func (d *DebugX86) Disassemble(addr uint32, count int) []DisassembledLine {
	return disassembleAt(d.mem, addr, count)
}

func (d *DebugX86) SetBreakpoint(addr uint32) {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints[addr] = &Breakpoint{Address: addr}
}

func (d *DebugX86) ClearBreakpoint(addr uint32) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	if _, ok := d.breakpoints[addr]; ok {
		delete(d.breakpoints, addr)
		return true
	}
	return false
}

func (d *DebugX86) ListBreakpoints() []uint32 {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	result := make([]uint32, 0, len(d.breakpoints))
	for addr := range d.breakpoints {
		result = append(result, addr)
	}
	return result
}

func (d *DebugX86) HasBreakpoint(addr uint32) bool {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	_, ok := d.breakpoints[addr]
	return ok
}

func (d *DebugX86) SetWatchpoint(addr uint32) bool {
	if addr >= d.mem.Size() {
		return false
	}
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.watchpoints[addr] = &Watchpoint{Address: addr, LastValue: d.mem.Read8(addr)}
	return true
}

func (d *DebugX86) ClearWatchpoint(addr uint32) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	if _, ok := d.watchpoints[addr]; ok {
		delete(d.watchpoints, addr)
		return true
	}
	return false
}

func (d *DebugX86) ListWatchpoints() []uint32 {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	result := make([]uint32, 0, len(d.watchpoints))
	for addr := range d.watchpoints {
		result = append(result, addr)
	}
	return result
}

// ReadMemory copies size bytes from addr, zero-filling past end of memory
func (d *DebugX86) ReadMemory(addr uint32, size int) []byte {
	result := make([]byte, size)
	for i := 0; i < size; i++ {
		a := addr + uint32(i)
		if a >= d.mem.Size() {
			break
		}
		result[i] = d.mem.Read8(a)
	}
	return result
}

// WriteMemory copies data into memory at addr, ignoring out of range bytes
func (d *DebugX86) WriteMemory(addr uint32, data []byte) {
	for i, b := range data {
		a := addr + uint32(i)
		if a >= d.mem.Size() {
			break
		}
		d.mem.Write8(a, b)
	}
}

// cpu_x86.go - 32-bit x86 interpreter core (386+ subset, flat memory model)
//
// Executes unmodified 32-bit protected-mode user code the way a Win32
// process sees the machine: flat 4GB-style addressing from offset zero,
// no paging, no privilege checks, no port I/O. FS/GS overrides are routed
// through an external SegmentResolver so the embedder can supply a TEB.

// Portions derived from the IntuitionEngine x86 core
// (https://github.com/IntuitionAmiga/IntuitionEngine)
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"log"
	"strings"
)

// SegmentResolver maps FS- and GS-relative offsets onto linear addresses.
// Win32 code addresses its thread environment block through FS; the
// embedder decides where that block lives in emulated memory.
type SegmentResolver interface {
	ResolveFS(offset uint32) (uint32, error)
	ResolveGS(offset uint32) (uint32, error)
}

// InterruptHandler services INT imm8, INT3 and INTO synchronously, before
// the CPU executes another instruction. A non-nil error aborts the
// instruction with an interrupt fault.
type InterruptHandler func(c *CPU_X86, vector byte) error

// ExceptionHandler observes faults raised during Step. The CPU state is
// fully inspectable when it runs; EIP has been rewound to the faulting
// instruction.
type ExceptionHandler func(c *CPU_X86, fault *Fault)

// CPU_X86 represents the x86 CPU state
type CPU_X86 struct {
	// General purpose registers (32-bit)
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	ESP uint32

	// Instruction pointer
	EIP uint32

	// Flags register
	Flags uint32

	// Execution state
	Halted bool
	Cycles uint64
	Steps  uint64

	// Current instruction state
	prefixSeg    int  // Segment override (-1 = none, x86SegFS, x86SegGS)
	prefixRep    int  // REP prefix (0 = none, 1 = REP/REPE, 2 = REPNE)
	prefixOpSize bool // Operand size prefix (0x66)
	opcode       byte // Current opcode
	modrm        byte // ModR/M byte
	modrmLoaded  bool // ModR/M already fetched
	sib          byte   // SIB byte
	sibLoaded    bool   // SIB already fetched
	ea           uint32 // Effective address for the current memory operand
	eaLoaded     bool   // Effective address already resolved

	mem      *Memory
	FPU      *FPU_X87
	resolver SegmentResolver

	interruptFn InterruptHandler
	exceptionFn ExceptionHandler

	// Instruction dispatch tables
	baseOps     [256]func(*CPU_X86)
	extendedOps [256]func(*CPU_X86) // 0x0F prefix opcodes

	// Register pointer array for O(1) lookup (avoids switch overhead)
	// Order: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI
	regs32 [8]*uint32
}

// Flag bit positions
const (
	x86FlagCF = 1 << 0  // Carry Flag
	x86FlagPF = 1 << 2  // Parity Flag
	x86FlagAF = 1 << 4  // Auxiliary Carry Flag
	x86FlagZF = 1 << 6  // Zero Flag
	x86FlagSF = 1 << 7  // Sign Flag
	x86FlagDF = 1 << 10 // Direction Flag
	x86FlagOF = 1 << 11 // Overflow Flag
)

// Segment override indices. ES/CS/SS/DS prefixes are legal encodings but
// meaningless in the flat model; only FS and GS are acted upon.
const (
	segNone  = -1
	x86SegFS = 4
	x86SegGS = 5
)

// NewCPU_X86 creates a new x86 CPU instance bound to the given memory.
func NewCPU_X86(mem *Memory) *CPU_X86 {
	cpu := &CPU_X86{
		mem: mem,
		FPU: NewFPU_X87(),
	}
	// Initialize register pointer array for O(1) lookup
	cpu.regs32 = [8]*uint32{
		&cpu.EAX, &cpu.ECX, &cpu.EDX, &cpu.EBX,
		&cpu.ESP, &cpu.EBP, &cpu.ESI, &cpu.EDI,
	}
	cpu.initBaseOps()
	cpu.initExtendedOps()
	cpu.Reset()
	return cpu
}

// Reset initializes the CPU to its power-on state
func (c *CPU_X86) Reset() {
	c.EAX = 0
	c.EBX = 0
	c.ECX = 0
	c.EDX = 0
	c.ESI = 0
	c.EDI = 0
	c.EBP = 0
	c.ESP = 0
	c.EIP = 0

	c.Flags = 0

	c.resetPrefixes()

	c.Halted = false
	c.Cycles = 0
	c.Steps = 0

	if c.FPU != nil {
		c.FPU.Reset()
	}
}

func (c *CPU_X86) resetPrefixes() {
	c.prefixSeg = segNone
	c.prefixRep = 0
	c.prefixOpSize = false
	c.modrmLoaded = false
	c.sibLoaded = false
	c.eaLoaded = false
}

// Memory returns the address space the CPU executes from.
func (c *CPU_X86) Memory() *Memory {
	return c.mem
}

// SetSegmentResolver installs the FS/GS resolver. Without one, any
// FS- or GS-relative access raises a segment fault.
func (c *CPU_X86) SetSegmentResolver(r SegmentResolver) {
	c.resolver = r
}

// SetInterruptHandler installs the INT/INT3/INTO callback.
func (c *CPU_X86) SetInterruptHandler(fn InterruptHandler) {
	c.interruptFn = fn
}

// SetExceptionHandler installs the fault observer.
func (c *CPU_X86) SetExceptionHandler(fn ExceptionHandler) {
	c.exceptionFn = fn
}

// Register replaces a one-byte opcode handler. Used by embedders to hook
// import-stub dispatch or nonstandard opcodes before execution starts.
func (c *CPU_X86) Register(opcode byte, fn func(*CPU_X86)) {
	c.baseOps[opcode] = fn
}

// RegisterExt replaces a 0x0F-prefixed opcode handler.
func (c *CPU_X86) RegisterExt(opcode byte, fn func(*CPU_X86)) {
	c.extendedOps[opcode] = fn
}

// -----------------------------------------------------------------------------
// Register Access Helpers
// -----------------------------------------------------------------------------

// AX returns the lower 16 bits of EAX
func (c *CPU_X86) AX() uint16 {
	return uint16(c.EAX & 0xFFFF)
}

// SetAX sets the lower 16 bits of EAX
func (c *CPU_X86) SetAX(v uint16) {
	c.EAX = (c.EAX & 0xFFFF0000) | uint32(v)
}

// AL returns the lower 8 bits of EAX
func (c *CPU_X86) AL() byte {
	return byte(c.EAX & 0xFF)
}

// SetAL sets the lower 8 bits of EAX
func (c *CPU_X86) SetAL(v byte) {
	c.EAX = (c.EAX & 0xFFFFFF00) | uint32(v)
}

// AH returns bits 8-15 of EAX
func (c *CPU_X86) AH() byte {
	return byte((c.EAX >> 8) & 0xFF)
}

// SetAH sets bits 8-15 of EAX
func (c *CPU_X86) SetAH(v byte) {
	c.EAX = (c.EAX & 0xFFFF00FF) | (uint32(v) << 8)
}

// BX returns the lower 16 bits of EBX
func (c *CPU_X86) BX() uint16 {
	return uint16(c.EBX & 0xFFFF)
}

// SetBX sets the lower 16 bits of EBX
func (c *CPU_X86) SetBX(v uint16) {
	c.EBX = (c.EBX & 0xFFFF0000) | uint32(v)
}

// BL returns the lower 8 bits of EBX
func (c *CPU_X86) BL() byte {
	return byte(c.EBX & 0xFF)
}

// SetBL sets the lower 8 bits of EBX
func (c *CPU_X86) SetBL(v byte) {
	c.EBX = (c.EBX & 0xFFFFFF00) | uint32(v)
}

// BH returns bits 8-15 of EBX
func (c *CPU_X86) BH() byte {
	return byte((c.EBX >> 8) & 0xFF)
}

// SetBH sets bits 8-15 of EBX
func (c *CPU_X86) SetBH(v byte) {
	c.EBX = (c.EBX & 0xFFFF00FF) | (uint32(v) << 8)
}

// CX returns the lower 16 bits of ECX
func (c *CPU_X86) CX() uint16 {
	return uint16(c.ECX & 0xFFFF)
}

// SetCX sets the lower 16 bits of ECX
func (c *CPU_X86) SetCX(v uint16) {
	c.ECX = (c.ECX & 0xFFFF0000) | uint32(v)
}

// CL returns the lower 8 bits of ECX
func (c *CPU_X86) CL() byte {
	return byte(c.ECX & 0xFF)
}

// SetCL sets the lower 8 bits of ECX
func (c *CPU_X86) SetCL(v byte) {
	c.ECX = (c.ECX & 0xFFFFFF00) | uint32(v)
}

// CH returns bits 8-15 of ECX
func (c *CPU_X86) CH() byte {
	return byte((c.ECX >> 8) & 0xFF)
}

// SetCH sets bits 8-15 of ECX
func (c *CPU_X86) SetCH(v byte) {
	c.ECX = (c.ECX & 0xFFFF00FF) | (uint32(v) << 8)
}

// DX returns the lower 16 bits of EDX
func (c *CPU_X86) DX() uint16 {
	return uint16(c.EDX & 0xFFFF)
}

// SetDX sets the lower 16 bits of EDX
func (c *CPU_X86) SetDX(v uint16) {
	c.EDX = (c.EDX & 0xFFFF0000) | uint32(v)
}

// DL returns the lower 8 bits of EDX
func (c *CPU_X86) DL() byte {
	return byte(c.EDX & 0xFF)
}

// SetDL sets the lower 8 bits of EDX
func (c *CPU_X86) SetDL(v byte) {
	c.EDX = (c.EDX & 0xFFFFFF00) | uint32(v)
}

// DH returns bits 8-15 of EDX
func (c *CPU_X86) DH() byte {
	return byte((c.EDX >> 8) & 0xFF)
}

// SetDH sets bits 8-15 of EDX
func (c *CPU_X86) SetDH(v byte) {
	c.EDX = (c.EDX & 0xFFFF00FF) | (uint32(v) << 8)
}

// SI returns the lower 16 bits of ESI
func (c *CPU_X86) SI() uint16 {
	return uint16(c.ESI & 0xFFFF)
}

// SetSI sets the lower 16 bits of ESI
func (c *CPU_X86) SetSI(v uint16) {
	c.ESI = (c.ESI & 0xFFFF0000) | uint32(v)
}

// DI returns the lower 16 bits of EDI
func (c *CPU_X86) DI() uint16 {
	return uint16(c.EDI & 0xFFFF)
}

// SetDI sets the lower 16 bits of EDI
func (c *CPU_X86) SetDI(v uint16) {
	c.EDI = (c.EDI & 0xFFFF0000) | uint32(v)
}

// BP returns the lower 16 bits of EBP
func (c *CPU_X86) BP() uint16 {
	return uint16(c.EBP & 0xFFFF)
}

// SetBP sets the lower 16 bits of EBP
func (c *CPU_X86) SetBP(v uint16) {
	c.EBP = (c.EBP & 0xFFFF0000) | uint32(v)
}

// SP returns the lower 16 bits of ESP
func (c *CPU_X86) SP() uint16 {
	return uint16(c.ESP & 0xFFFF)
}

// SetSP sets the lower 16 bits of ESP
func (c *CPU_X86) SetSP(v uint16) {
	c.ESP = (c.ESP & 0xFFFF0000) | uint32(v)
}

// -----------------------------------------------------------------------------
// Register access by index
// -----------------------------------------------------------------------------

// getReg8 returns an 8-bit register value by index (0-7: AL, CL, DL, BL, AH, CH, DH, BH)
func (c *CPU_X86) getReg8(idx byte) byte {
	switch idx & 7 {
	case 0:
		return c.AL()
	case 1:
		return c.CL()
	case 2:
		return c.DL()
	case 3:
		return c.BL()
	case 4:
		return c.AH()
	case 5:
		return c.CH()
	case 6:
		return c.DH()
	case 7:
		return c.BH()
	}
	return 0
}

// setReg8 sets an 8-bit register value by index
func (c *CPU_X86) setReg8(idx byte, v byte) {
	switch idx & 7 {
	case 0:
		c.SetAL(v)
	case 1:
		c.SetCL(v)
	case 2:
		c.SetDL(v)
	case 3:
		c.SetBL(v)
	case 4:
		c.SetAH(v)
	case 5:
		c.SetCH(v)
	case 6:
		c.SetDH(v)
	case 7:
		c.SetBH(v)
	}
}

// getReg16 returns a 16-bit register value by index (0-7: AX, CX, DX, BX, SP, BP, SI, DI)
func (c *CPU_X86) getReg16(idx byte) uint16 {
	return uint16(*c.regs32[idx&7] & 0xFFFF)
}

// setReg16 sets a 16-bit register value by index
func (c *CPU_X86) setReg16(idx byte, v uint16) {
	p := c.regs32[idx&7]
	*p = (*p & 0xFFFF0000) | uint32(v)
}

// getReg32 returns a 32-bit register value by index (0-7: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI)
// Uses pointer array for O(1) lookup instead of switch statement
func (c *CPU_X86) getReg32(idx byte) uint32 {
	return *c.regs32[idx&7]
}

// setReg32 sets a 32-bit register value by index
// Uses pointer array for O(1) lookup instead of switch statement
func (c *CPU_X86) setReg32(idx byte, v uint32) {
	*c.regs32[idx&7] = v
}

// -----------------------------------------------------------------------------
// Flag Helpers
// -----------------------------------------------------------------------------

// getFlag returns true if the specified flag is set
func (c *CPU_X86) getFlag(flag uint32) bool {
	return (c.Flags & flag) != 0
}

// setFlag sets or clears a flag
func (c *CPU_X86) setFlag(flag uint32, set bool) {
	if set {
		c.Flags |= flag
	} else {
		c.Flags &^= flag
	}
}

// CF returns the Carry Flag
func (c *CPU_X86) CF() bool {
	return c.getFlag(x86FlagCF)
}

// ZF returns the Zero Flag
func (c *CPU_X86) ZF() bool {
	return c.getFlag(x86FlagZF)
}

// SF returns the Sign Flag
func (c *CPU_X86) SF() bool {
	return c.getFlag(x86FlagSF)
}

// OF returns the Overflow Flag
func (c *CPU_X86) OF() bool {
	return c.getFlag(x86FlagOF)
}

// PF returns the Parity Flag
func (c *CPU_X86) PF() bool {
	return c.getFlag(x86FlagPF)
}

// DF returns the Direction Flag
func (c *CPU_X86) DF() bool {
	return c.getFlag(x86FlagDF)
}

// parity returns the parity of the low byte (true = even, false = odd)
func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return (v & 1) == 0
}

// setFlagsArith8 sets flags after an 8-bit arithmetic operation
func (c *CPU_X86) setFlagsArith8(result uint16, a, b byte, sub bool) {
	r := byte(result)
	c.setFlag(x86FlagCF, result > 0xFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x80) != 0)
	c.setFlag(x86FlagPF, parity(r))

	// Overflow: sign of result differs from expected
	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x80) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x80) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

// setFlagsArith16 sets flags after a 16-bit arithmetic operation
func (c *CPU_X86) setFlagsArith16(result uint32, a, b uint16, sub bool) {
	r := uint16(result)
	c.setFlag(x86FlagCF, result > 0xFFFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x8000) != 0)
	c.setFlag(x86FlagPF, parity(byte(r)))

	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x8000) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x8000) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

// setFlagsArith32 sets flags after a 32-bit arithmetic operation
func (c *CPU_X86) setFlagsArith32(result uint64, a, b uint32, sub bool) {
	r := uint32(result)
	c.setFlag(x86FlagCF, result > 0xFFFFFFFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x80000000) != 0)
	c.setFlag(x86FlagPF, parity(byte(r)))

	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x80000000) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x80000000) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

// setFlagsLogic8 sets flags after an 8-bit logical operation
func (c *CPU_X86) setFlagsLogic8(result byte) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x80) != 0)
	c.setFlag(x86FlagPF, parity(result))
	// AF is undefined for logical ops
}

// setFlagsLogic16 sets flags after a 16-bit logical operation
func (c *CPU_X86) setFlagsLogic16(result uint16) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x8000) != 0)
	c.setFlag(x86FlagPF, parity(byte(result)))
}

// setFlagsLogic32 sets flags after a 32-bit logical operation
func (c *CPU_X86) setFlagsLogic32(result uint32) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x80000000) != 0)
	c.setFlag(x86FlagPF, parity(byte(result)))
}

// -----------------------------------------------------------------------------
// Condition codes
// -----------------------------------------------------------------------------

// testCond evaluates a 4-bit x86 condition code against the flags. The
// same table drives Jcc, SETcc, CMOVcc and FCMOVcc.
func (c *CPU_X86) testCond(cc byte) bool {
	switch cc & 0xF {
	case 0x0: // O
		return c.OF()
	case 0x1: // NO
		return !c.OF()
	case 0x2: // B/C
		return c.CF()
	case 0x3: // NB/NC/AE
		return !c.CF()
	case 0x4: // Z/E
		return c.ZF()
	case 0x5: // NZ/NE
		return !c.ZF()
	case 0x6: // BE/NA
		return c.CF() || c.ZF()
	case 0x7: // NBE/A
		return !c.CF() && !c.ZF()
	case 0x8: // S
		return c.SF()
	case 0x9: // NS
		return !c.SF()
	case 0xA: // P/PE
		return c.PF()
	case 0xB: // NP/PO
		return !c.PF()
	case 0xC: // L/NGE
		return c.SF() != c.OF()
	case 0xD: // NL/GE
		return c.SF() == c.OF()
	case 0xE: // LE/NG
		return c.ZF() || (c.SF() != c.OF())
	}
	// 0xF: NLE/G
	return !c.ZF() && (c.SF() == c.OF())
}

// -----------------------------------------------------------------------------
// Memory Access
// -----------------------------------------------------------------------------

// fetch8 fetches a byte at EIP and increments EIP
func (c *CPU_X86) fetch8() byte {
	v := c.mem.Read8(c.EIP)
	c.EIP++
	return v
}

// fetch16 fetches a 16-bit word at EIP (little-endian) and increments EIP
func (c *CPU_X86) fetch16() uint16 {
	v := c.mem.Read16(c.EIP)
	c.EIP += 2
	return v
}

// fetch32 fetches a 32-bit dword at EIP (little-endian) and increments EIP
func (c *CPU_X86) fetch32() uint32 {
	v := c.mem.Read32(c.EIP)
	c.EIP += 4
	return v
}

// read8 reads a byte from memory
func (c *CPU_X86) read8(addr uint32) byte {
	return c.mem.Read8(addr)
}

// read16 reads a 16-bit word from memory (little-endian)
func (c *CPU_X86) read16(addr uint32) uint16 {
	return c.mem.Read16(addr)
}

// read32 reads a 32-bit dword from memory (little-endian)
func (c *CPU_X86) read32(addr uint32) uint32 {
	return c.mem.Read32(addr)
}

// write8 writes a byte to memory
func (c *CPU_X86) write8(addr uint32, v byte) {
	c.mem.Write8(addr, v)
}

// write16 writes a 16-bit word to memory (little-endian)
func (c *CPU_X86) write16(addr uint32, v uint16) {
	c.mem.Write16(addr, v)
}

// write32 writes a 32-bit dword to memory (little-endian)
func (c *CPU_X86) write32(addr uint32, v uint32) {
	c.mem.Write32(addr, v)
}

// -----------------------------------------------------------------------------
// Stack Operations
// -----------------------------------------------------------------------------

// push16 pushes a 16-bit value onto the stack
func (c *CPU_X86) push16(v uint16) {
	c.ESP -= 2
	c.write16(c.ESP, v)
}

// pop16 pops a 16-bit value from the stack
func (c *CPU_X86) pop16() uint16 {
	v := c.read16(c.ESP)
	c.ESP += 2
	return v
}

// push32 pushes a 32-bit value onto the stack
func (c *CPU_X86) push32(v uint32) {
	c.ESP -= 4
	c.write32(c.ESP, v)
}

// pop32 pops a 32-bit value from the stack
func (c *CPU_X86) pop32() uint32 {
	v := c.read32(c.ESP)
	c.ESP += 4
	return v
}

// -----------------------------------------------------------------------------
// ModR/M and SIB Decoding
// -----------------------------------------------------------------------------

// fetchModRM fetches and caches the ModR/M byte
func (c *CPU_X86) fetchModRM() byte {
	if !c.modrmLoaded {
		c.modrm = c.fetch8()
		c.modrmLoaded = true
	}
	return c.modrm
}

// getModRMReg returns the reg field of ModR/M (bits 5-3)
func (c *CPU_X86) getModRMReg() byte {
	return (c.fetchModRM() >> 3) & 7
}

// getModRMRM returns the r/m field of ModR/M (bits 2-0)
func (c *CPU_X86) getModRMRM() byte {
	return c.fetchModRM() & 7
}

// getModRMMod returns the mod field of ModR/M (bits 7-6)
func (c *CPU_X86) getModRMMod() byte {
	return (c.fetchModRM() >> 6) & 3
}

// fetchSIB fetches and caches the SIB byte
func (c *CPU_X86) fetchSIB() byte {
	if !c.sibLoaded {
		c.sib = c.fetch8()
		c.sibLoaded = true
	}
	return c.sib
}

// getSIBScale returns the scale field (bits 7-6)
func (c *CPU_X86) getSIBScale() byte {
	return (c.fetchSIB() >> 6) & 3
}

// getSIBIndex returns the index field (bits 5-3)
func (c *CPU_X86) getSIBIndex() byte {
	return (c.fetchSIB() >> 3) & 7
}

// getSIBBase returns the base field (bits 2-0)
func (c *CPU_X86) getSIBBase() byte {
	return c.fetchSIB() & 7
}

// applySegment routes an effective address through the FS/GS resolver
// when an override prefix is active. ES/CS/SS/DS overrides collapse to
// the flat address.
func (c *CPU_X86) applySegment(addr uint32) uint32 {
	switch c.prefixSeg {
	case x86SegFS:
		if c.resolver == nil {
			raise(FaultSegment, addr, "FS-relative access with no segment resolver")
		}
		lin, err := c.resolver.ResolveFS(addr)
		if err != nil {
			raise(FaultSegment, addr, "FS resolve failed: %v", err)
		}
		return lin
	case x86SegGS:
		if c.resolver == nil {
			raise(FaultSegment, addr, "GS-relative access with no segment resolver")
		}
		lin, err := c.resolver.ResolveGS(addr)
		if err != nil {
			raise(FaultSegment, addr, "GS resolve failed: %v", err)
		}
		return lin
	}
	return addr
}

// calcEffectiveAddress32 calculates the effective address for 32-bit
// addressing mode. The result is cached for the rest of the instruction so
// read-modify-write forms resolve the operand (and consume its displacement)
// exactly once.
func (c *CPU_X86) calcEffectiveAddress32() uint32 {
	if c.eaLoaded {
		return c.ea
	}

	mod := c.getModRMMod()
	rm := c.getModRMRM()

	var addr uint32

	if rm == 4 {
		// SIB byte follows
		scale := c.getSIBScale()
		index := c.getSIBIndex()
		base := c.getSIBBase()

		if base == 5 && mod == 0 {
			addr = c.fetch32()
		} else {
			addr = c.getReg32(base)
		}

		// Add scaled index (index 4 = no index)
		if index != 4 {
			addr += c.getReg32(index) << scale
		}
	} else if rm == 5 && mod == 0 {
		// Direct 32-bit address
		addr = c.fetch32()
	} else {
		addr = c.getReg32(rm)
	}

	// Add displacement
	switch mod {
	case 1: // 8-bit displacement (sign-extended)
		disp := int8(c.fetch8())
		addr = uint32(int32(addr) + int32(disp))
	case 2: // 32-bit displacement
		addr += c.fetch32()
	}

	c.ea = addr
	c.eaLoaded = true
	return addr
}

// getEffectiveAddress returns the linear address for the current ModR/M,
// with any FS/GS override applied. LEA wants the raw offset and calls
// calcEffectiveAddress32 directly.
func (c *CPU_X86) getEffectiveAddress() uint32 {
	return c.applySegment(c.calcEffectiveAddress32())
}

// readRM8 reads an 8-bit value from register or memory based on ModR/M
func (c *CPU_X86) readRM8() byte {
	if c.getModRMMod() == 3 {
		return c.getReg8(c.getModRMRM())
	}
	return c.read8(c.getEffectiveAddress())
}

// writeRM8 writes an 8-bit value to register or memory based on ModR/M
func (c *CPU_X86) writeRM8(v byte) {
	if c.getModRMMod() == 3 {
		c.setReg8(c.getModRMRM(), v)
	} else {
		c.write8(c.getEffectiveAddress(), v)
	}
}

// readRM16 reads a 16-bit value from register or memory based on ModR/M
func (c *CPU_X86) readRM16() uint16 {
	if c.getModRMMod() == 3 {
		return c.getReg16(c.getModRMRM())
	}
	return c.read16(c.getEffectiveAddress())
}

// writeRM16 writes a 16-bit value to register or memory based on ModR/M
func (c *CPU_X86) writeRM16(v uint16) {
	if c.getModRMMod() == 3 {
		c.setReg16(c.getModRMRM(), v)
	} else {
		c.write16(c.getEffectiveAddress(), v)
	}
}

// readRM32 reads a 32-bit value from register or memory based on ModR/M
func (c *CPU_X86) readRM32() uint32 {
	if c.getModRMMod() == 3 {
		return c.getReg32(c.getModRMRM())
	}
	return c.read32(c.getEffectiveAddress())
}

// writeRM32 writes a 32-bit value to register or memory based on ModR/M
func (c *CPU_X86) writeRM32(v uint32) {
	if c.getModRMMod() == 3 {
		c.setReg32(c.getModRMRM(), v)
	} else {
		c.write32(c.getEffectiveAddress(), v)
	}
}

// -----------------------------------------------------------------------------
// Instruction Execution
// -----------------------------------------------------------------------------

// Step executes a single instruction.
//
// Faults raised anywhere inside the instruction unwind to this boundary:
// EIP is rewound to the faulting instruction, the exception handler (if
// installed) observes the fault, and the fault is returned. With no
// handler installed a fault also halts the CPU.
func (c *CPU_X86) Step() (err error) {
	if c.Halted {
		return nil
	}

	instrStart := c.EIP

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			f.EIP = instrStart
			c.EIP = instrStart
			c.resetPrefixes()
			if c.exceptionFn != nil {
				c.exceptionFn(c, f)
			} else {
				c.Halted = true
			}
			err = f
		}
	}()

	// Reset prefix state
	c.resetPrefixes()

	// Fetch and handle prefixes
	for {
		c.opcode = c.fetch8()

		switch c.opcode {
		case 0x26, 0x2E, 0x36, 0x3E: // ES:/CS:/SS:/DS: (flat, no effect)
			c.prefixSeg = segNone
		case 0x64: // FS:
			c.prefixSeg = x86SegFS
		case 0x65: // GS:
			c.prefixSeg = x86SegGS
		case 0x66: // Operand size
			c.prefixOpSize = true
		case 0x67: // Address size (no 16-bit addressing in this model)
			continue
		case 0xF0: // LOCK (single-threaded, no effect)
			continue
		case 0xF2: // REPNE
			c.prefixRep = 2
		case 0xF3: // REP/REPE
			c.prefixRep = 1
		default:
			handler := c.baseOps[c.opcode]
			if handler == nil {
				raiseDecode("unimplemented opcode 0x%02X", c.opcode)
			}
			handler(c)
			c.Steps++
			return nil
		}
	}
}

// Run executes instructions until the CPU halts or a fault is returned.
// A maxSteps of 0 runs without a budget; otherwise execution stops after
// maxSteps instructions and the number executed is returned without error.
func (c *CPU_X86) Run(maxSteps uint64) (uint64, error) {
	var n uint64
	for !c.Halted {
		if maxSteps > 0 && n >= maxSteps {
			log.Printf("x86: step budget of %d exhausted at EIP=%08X", maxSteps, c.EIP)
			return n, nil
		}
		if err := c.Step(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DumpState formats the full register file, flags, and x87 stack for
// diagnostics.
func (c *CPU_X86) DumpState() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EAX=%08X EBX=%08X ECX=%08X EDX=%08X\n", c.EAX, c.EBX, c.ECX, c.EDX)
	fmt.Fprintf(&b, "ESI=%08X EDI=%08X EBP=%08X ESP=%08X\n", c.ESI, c.EDI, c.EBP, c.ESP)
	fmt.Fprintf(&b, "EIP=%08X EFL=%08X [", c.EIP, c.Flags)
	for _, fl := range []struct {
		bit  uint32
		name byte
	}{
		{x86FlagOF, 'O'}, {x86FlagDF, 'D'}, {x86FlagSF, 'S'},
		{x86FlagZF, 'Z'}, {x86FlagAF, 'A'}, {x86FlagPF, 'P'}, {x86FlagCF, 'C'},
	} {
		if c.Flags&fl.bit != 0 {
			b.WriteByte(fl.name)
		} else {
			b.WriteByte('-')
		}
	}
	fmt.Fprintf(&b, "] steps=%d\n", c.Steps)
	fmt.Fprintf(&b, "FPU top=%d FSW=%04X FCW=%04X FTW=%04X\n", c.FPU.top(), c.FPU.FSW, c.FPU.FCW, c.FPU.FTW)
	for i := 0; i < 8; i++ {
		phys := c.FPU.physReg(i)
		if c.FPU.getTag(phys) == x87TagEmpty {
			continue
		}
		fmt.Fprintf(&b, "ST(%d)=%g\n", i, c.FPU.ST(i))
	}
	return b.String()
}

// doInterrupt delivers a software interrupt to the embedder.
func (c *CPU_X86) doInterrupt(vector byte) {
	if c.interruptFn == nil {
		raise(FaultInterrupt, 0, "INT 0x%02X with no interrupt handler", vector)
	}
	if err := c.interruptFn(c, vector); err != nil {
		raise(FaultInterrupt, 0, "INT 0x%02X handler: %v", vector, err)
	}
}

// -----------------------------------------------------------------------------
// Instruction Table Initialization
// -----------------------------------------------------------------------------

// initBaseOps initializes the base opcode dispatch table. Unassigned
// entries raise a decode fault when executed.
func (c *CPU_X86) initBaseOps() {
	for i := range c.baseOps {
		c.baseOps[i] = nil
	}

	// 0x00-0x05: ADD
	c.baseOps[0x00] = (*CPU_X86).opADD_Eb_Gb
	c.baseOps[0x01] = (*CPU_X86).opADD_Ev_Gv
	c.baseOps[0x02] = (*CPU_X86).opADD_Gb_Eb
	c.baseOps[0x03] = (*CPU_X86).opADD_Gv_Ev
	c.baseOps[0x04] = (*CPU_X86).opADD_AL_Ib
	c.baseOps[0x05] = (*CPU_X86).opADD_AX_Iv

	// 0x08-0x0D: OR
	c.baseOps[0x08] = (*CPU_X86).opOR_Eb_Gb
	c.baseOps[0x09] = (*CPU_X86).opOR_Ev_Gv
	c.baseOps[0x0A] = (*CPU_X86).opOR_Gb_Eb
	c.baseOps[0x0B] = (*CPU_X86).opOR_Gv_Ev
	c.baseOps[0x0C] = (*CPU_X86).opOR_AL_Ib
	c.baseOps[0x0D] = (*CPU_X86).opOR_AX_Iv

	// 0x0F: Two-byte opcode prefix
	c.baseOps[0x0F] = (*CPU_X86).opTwoBytePrefix

	// 0x10-0x15: ADC
	c.baseOps[0x10] = (*CPU_X86).opADC_Eb_Gb
	c.baseOps[0x11] = (*CPU_X86).opADC_Ev_Gv
	c.baseOps[0x12] = (*CPU_X86).opADC_Gb_Eb
	c.baseOps[0x13] = (*CPU_X86).opADC_Gv_Ev
	c.baseOps[0x14] = (*CPU_X86).opADC_AL_Ib
	c.baseOps[0x15] = (*CPU_X86).opADC_AX_Iv

	// 0x18-0x1D: SBB
	c.baseOps[0x18] = (*CPU_X86).opSBB_Eb_Gb
	c.baseOps[0x19] = (*CPU_X86).opSBB_Ev_Gv
	c.baseOps[0x1A] = (*CPU_X86).opSBB_Gb_Eb
	c.baseOps[0x1B] = (*CPU_X86).opSBB_Gv_Ev
	c.baseOps[0x1C] = (*CPU_X86).opSBB_AL_Ib
	c.baseOps[0x1D] = (*CPU_X86).opSBB_AX_Iv

	// 0x20-0x25: AND
	c.baseOps[0x20] = (*CPU_X86).opAND_Eb_Gb
	c.baseOps[0x21] = (*CPU_X86).opAND_Ev_Gv
	c.baseOps[0x22] = (*CPU_X86).opAND_Gb_Eb
	c.baseOps[0x23] = (*CPU_X86).opAND_Gv_Ev
	c.baseOps[0x24] = (*CPU_X86).opAND_AL_Ib
	c.baseOps[0x25] = (*CPU_X86).opAND_AX_Iv

	// 0x27: DAA
	c.baseOps[0x27] = (*CPU_X86).opDAA

	// 0x28-0x2D: SUB
	c.baseOps[0x28] = (*CPU_X86).opSUB_Eb_Gb
	c.baseOps[0x29] = (*CPU_X86).opSUB_Ev_Gv
	c.baseOps[0x2A] = (*CPU_X86).opSUB_Gb_Eb
	c.baseOps[0x2B] = (*CPU_X86).opSUB_Gv_Ev
	c.baseOps[0x2C] = (*CPU_X86).opSUB_AL_Ib
	c.baseOps[0x2D] = (*CPU_X86).opSUB_AX_Iv

	// 0x2F: DAS
	c.baseOps[0x2F] = (*CPU_X86).opDAS

	// 0x30-0x35: XOR
	c.baseOps[0x30] = (*CPU_X86).opXOR_Eb_Gb
	c.baseOps[0x31] = (*CPU_X86).opXOR_Ev_Gv
	c.baseOps[0x32] = (*CPU_X86).opXOR_Gb_Eb
	c.baseOps[0x33] = (*CPU_X86).opXOR_Gv_Ev
	c.baseOps[0x34] = (*CPU_X86).opXOR_AL_Ib
	c.baseOps[0x35] = (*CPU_X86).opXOR_AX_Iv

	// 0x37: AAA
	c.baseOps[0x37] = (*CPU_X86).opAAA

	// 0x38-0x3D: CMP
	c.baseOps[0x38] = (*CPU_X86).opCMP_Eb_Gb
	c.baseOps[0x39] = (*CPU_X86).opCMP_Ev_Gv
	c.baseOps[0x3A] = (*CPU_X86).opCMP_Gb_Eb
	c.baseOps[0x3B] = (*CPU_X86).opCMP_Gv_Ev
	c.baseOps[0x3C] = (*CPU_X86).opCMP_AL_Ib
	c.baseOps[0x3D] = (*CPU_X86).opCMP_AX_Iv

	// 0x3F: AAS
	c.baseOps[0x3F] = (*CPU_X86).opAAS

	// 0x40-0x47: INC r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x40+i] = func(cpu *CPU_X86) { cpu.opINC_reg(byte(idx)) }
	}

	// 0x48-0x4F: DEC r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x48+i] = func(cpu *CPU_X86) { cpu.opDEC_reg(byte(idx)) }
	}

	// 0x50-0x57: PUSH r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x50+i] = func(cpu *CPU_X86) { cpu.opPUSH_reg(byte(idx)) }
	}

	// 0x58-0x5F: POP r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x58+i] = func(cpu *CPU_X86) { cpu.opPOP_reg(byte(idx)) }
	}

	// 0x60-0x61: PUSHAD/POPAD
	c.baseOps[0x60] = (*CPU_X86).opPUSHA
	c.baseOps[0x61] = (*CPU_X86).opPOPA

	// 0x68: PUSH Iv
	c.baseOps[0x68] = (*CPU_X86).opPUSH_Iv

	// 0x69: IMUL Gv,Ev,Iv
	c.baseOps[0x69] = (*CPU_X86).opIMUL_Gv_Ev_Iv

	// 0x6A: PUSH Ib
	c.baseOps[0x6A] = (*CPU_X86).opPUSH_Ib

	// 0x6B: IMUL Gv,Ev,Ib
	c.baseOps[0x6B] = (*CPU_X86).opIMUL_Gv_Ev_Ib

	// 0x70-0x7F: Jcc rel8
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.baseOps[0x70+i] = func(cpu *CPU_X86) { cpu.jccRel8(cpu.testCond(cc)) }
	}

	// 0x80-0x83: Grp1 (0x82 is an alias of 0x80)
	c.baseOps[0x80] = (*CPU_X86).opGrp1_Eb_Ib
	c.baseOps[0x81] = (*CPU_X86).opGrp1_Ev_Iv
	c.baseOps[0x82] = (*CPU_X86).opGrp1_Eb_Ib
	c.baseOps[0x83] = (*CPU_X86).opGrp1_Ev_Ib

	// 0x84-0x85: TEST
	c.baseOps[0x84] = (*CPU_X86).opTEST_Eb_Gb
	c.baseOps[0x85] = (*CPU_X86).opTEST_Ev_Gv

	// 0x86-0x87: XCHG
	c.baseOps[0x86] = (*CPU_X86).opXCHG_Eb_Gb
	c.baseOps[0x87] = (*CPU_X86).opXCHG_Ev_Gv

	// 0x88-0x8B: MOV
	c.baseOps[0x88] = (*CPU_X86).opMOV_Eb_Gb
	c.baseOps[0x89] = (*CPU_X86).opMOV_Ev_Gv
	c.baseOps[0x8A] = (*CPU_X86).opMOV_Gb_Eb
	c.baseOps[0x8B] = (*CPU_X86).opMOV_Gv_Ev

	// 0x8D: LEA
	c.baseOps[0x8D] = (*CPU_X86).opLEA

	// 0x8F: POP Ev
	c.baseOps[0x8F] = (*CPU_X86).opPOP_Ev

	// 0x90: NOP (XCHG EAX,EAX)
	c.baseOps[0x90] = (*CPU_X86).opNOP

	// 0x91-0x97: XCHG EAX,r32
	for i := 1; i < 8; i++ {
		idx := i
		c.baseOps[0x90+i] = func(cpu *CPU_X86) { cpu.opXCHG_AX_reg(byte(idx)) }
	}

	// 0x98: CBW/CWDE
	c.baseOps[0x98] = (*CPU_X86).opCBW

	// 0x99: CWD/CDQ
	c.baseOps[0x99] = (*CPU_X86).opCWD

	// 0x9C: PUSHFD
	c.baseOps[0x9C] = (*CPU_X86).opPUSHF

	// 0x9D: POPFD
	c.baseOps[0x9D] = (*CPU_X86).opPOPF

	// 0x9E: SAHF
	c.baseOps[0x9E] = (*CPU_X86).opSAHF

	// 0x9F: LAHF
	c.baseOps[0x9F] = (*CPU_X86).opLAHF

	// 0xA0-0xA3: MOV AL/EAX,moffs
	c.baseOps[0xA0] = (*CPU_X86).opMOV_AL_moffs
	c.baseOps[0xA1] = (*CPU_X86).opMOV_AX_moffs
	c.baseOps[0xA2] = (*CPU_X86).opMOV_moffs_AL
	c.baseOps[0xA3] = (*CPU_X86).opMOV_moffs_AX

	// 0xA4-0xA7: MOVS/CMPS
	c.baseOps[0xA4] = (*CPU_X86).opMOVSB
	c.baseOps[0xA5] = (*CPU_X86).opMOVSW
	c.baseOps[0xA6] = (*CPU_X86).opCMPSB
	c.baseOps[0xA7] = (*CPU_X86).opCMPSW

	// 0xA8-0xA9: TEST AL/EAX,imm
	c.baseOps[0xA8] = (*CPU_X86).opTEST_AL_Ib
	c.baseOps[0xA9] = (*CPU_X86).opTEST_AX_Iv

	// 0xAA-0xAF: STOS/LODS/SCAS
	c.baseOps[0xAA] = (*CPU_X86).opSTOSB
	c.baseOps[0xAB] = (*CPU_X86).opSTOSW
	c.baseOps[0xAC] = (*CPU_X86).opLODSB
	c.baseOps[0xAD] = (*CPU_X86).opLODSW
	c.baseOps[0xAE] = (*CPU_X86).opSCASB
	c.baseOps[0xAF] = (*CPU_X86).opSCASW

	// 0xB0-0xB7: MOV r8,imm8
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0xB0+i] = func(cpu *CPU_X86) { cpu.opMOV_r8_imm8(byte(idx)) }
	}

	// 0xB8-0xBF: MOV r16/r32,imm16/imm32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0xB8+i] = func(cpu *CPU_X86) { cpu.opMOV_r_imm(byte(idx)) }
	}

	// 0xC0-0xC1: Grp2 shift/rotate by immediate
	c.baseOps[0xC0] = (*CPU_X86).opGrp2_Eb_Ib
	c.baseOps[0xC1] = (*CPU_X86).opGrp2_Ev_Ib

	// 0xC2-0xC3: RET
	c.baseOps[0xC2] = (*CPU_X86).opRET_imm16
	c.baseOps[0xC3] = (*CPU_X86).opRET

	// 0xC6-0xC7: MOV imm to r/m
	c.baseOps[0xC6] = (*CPU_X86).opMOV_Eb_Ib
	c.baseOps[0xC7] = (*CPU_X86).opMOV_Ev_Iv

	// 0xC8-0xC9: ENTER/LEAVE
	c.baseOps[0xC8] = (*CPU_X86).opENTER
	c.baseOps[0xC9] = (*CPU_X86).opLEAVE

	// 0xCC-0xCE: INT3/INT imm8/INTO
	c.baseOps[0xCC] = (*CPU_X86).opINT3
	c.baseOps[0xCD] = (*CPU_X86).opINT
	c.baseOps[0xCE] = (*CPU_X86).opINTO

	// 0xD0-0xD3: Grp2 shift/rotate
	c.baseOps[0xD0] = (*CPU_X86).opGrp2_Eb_1
	c.baseOps[0xD1] = (*CPU_X86).opGrp2_Ev_1
	c.baseOps[0xD2] = (*CPU_X86).opGrp2_Eb_CL
	c.baseOps[0xD3] = (*CPU_X86).opGrp2_Ev_CL

	// 0xD4-0xD5: AAM/AAD
	c.baseOps[0xD4] = (*CPU_X86).opAAM
	c.baseOps[0xD5] = (*CPU_X86).opAAD

	// 0xD6: SALC (undocumented)
	c.baseOps[0xD6] = (*CPU_X86).opSALC

	// 0xD7: XLAT
	c.baseOps[0xD7] = (*CPU_X86).opXLAT

	// 0xD8-0xDF: x87 escapes
	c.baseOps[0xD8] = (*CPU_X86).opFPU_D8
	c.baseOps[0xD9] = (*CPU_X86).opFPU_D9
	c.baseOps[0xDA] = (*CPU_X86).opFPU_DA
	c.baseOps[0xDB] = (*CPU_X86).opFPU_DB
	c.baseOps[0xDC] = (*CPU_X86).opFPU_DC
	c.baseOps[0xDD] = (*CPU_X86).opFPU_DD
	c.baseOps[0xDE] = (*CPU_X86).opFPU_DE
	c.baseOps[0xDF] = (*CPU_X86).opFPU_DF

	// 0xE0-0xE3: LOOP/JECXZ
	c.baseOps[0xE0] = (*CPU_X86).opLOOPNE
	c.baseOps[0xE1] = (*CPU_X86).opLOOPE
	c.baseOps[0xE2] = (*CPU_X86).opLOOP
	c.baseOps[0xE3] = (*CPU_X86).opJCXZ

	// 0xE8-0xE9: CALL/JMP rel32
	c.baseOps[0xE8] = (*CPU_X86).opCALL_rel
	c.baseOps[0xE9] = (*CPU_X86).opJMP_rel

	// 0xEB: JMP rel8
	c.baseOps[0xEB] = (*CPU_X86).opJMP_rel8

	// 0xF4: HLT
	c.baseOps[0xF4] = (*CPU_X86).opHLT

	// 0xF5: CMC
	c.baseOps[0xF5] = (*CPU_X86).opCMC

	// 0xF6-0xF7: Grp3
	c.baseOps[0xF6] = (*CPU_X86).opGrp3_Eb
	c.baseOps[0xF7] = (*CPU_X86).opGrp3_Ev

	// 0xF8-0xF9: CLC/STC
	c.baseOps[0xF8] = (*CPU_X86).opCLC
	c.baseOps[0xF9] = (*CPU_X86).opSTC

	// 0xFC-0xFD: CLD/STD
	c.baseOps[0xFC] = (*CPU_X86).opCLD
	c.baseOps[0xFD] = (*CPU_X86).opSTD

	// 0xFE-0xFF: Grp4/Grp5
	c.baseOps[0xFE] = (*CPU_X86).opGrp4_Eb
	c.baseOps[0xFF] = (*CPU_X86).opGrp5_Ev
}

// initExtendedOps initializes the 0x0F prefixed opcode dispatch table
func (c *CPU_X86) initExtendedOps() {
	for i := range c.extendedOps {
		c.extendedOps[i] = nil
	}

	// 0x1F: multi-byte NOP (NOP r/m32)
	c.extendedOps[0x1F] = (*CPU_X86).opNOP_Ev

	// 0x40-0x4F: CMOVcc
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.extendedOps[0x40+i] = func(cpu *CPU_X86) { cpu.cmovcc(cpu.testCond(cc)) }
	}

	// 0x80-0x8F: Jcc rel32
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.extendedOps[0x80+i] = func(cpu *CPU_X86) { cpu.jccRel32(cpu.testCond(cc)) }
	}

	// 0x90-0x9F: SETcc
	for i := 0; i < 16; i++ {
		cc := byte(i)
		c.extendedOps[0x90+i] = func(cpu *CPU_X86) { cpu.setcc(cpu.testCond(cc)) }
	}

	// 0xA3: BT
	c.extendedOps[0xA3] = (*CPU_X86).opBT_Ev_Gv

	// 0xA4-0xA5: SHLD
	c.extendedOps[0xA4] = (*CPU_X86).opSHLD_Ev_Gv_Ib
	c.extendedOps[0xA5] = (*CPU_X86).opSHLD_Ev_Gv_CL

	// 0xAB: BTS
	c.extendedOps[0xAB] = (*CPU_X86).opBTS_Ev_Gv

	// 0xAC-0xAD: SHRD
	c.extendedOps[0xAC] = (*CPU_X86).opSHRD_Ev_Gv_Ib
	c.extendedOps[0xAD] = (*CPU_X86).opSHRD_Ev_Gv_CL

	// 0xAF: IMUL Gv,Ev
	c.extendedOps[0xAF] = (*CPU_X86).opIMUL_Gv_Ev

	// 0xB3: BTR
	c.extendedOps[0xB3] = (*CPU_X86).opBTR_Ev_Gv

	// 0xB6-0xB7: MOVZX
	c.extendedOps[0xB6] = (*CPU_X86).opMOVZX_Gv_Eb
	c.extendedOps[0xB7] = (*CPU_X86).opMOVZX_Gv_Ew

	// 0xBA: Grp8 (BT/BTS/BTR/BTC with immediate)
	c.extendedOps[0xBA] = (*CPU_X86).opGrp8_Ev_Ib

	// 0xBB: BTC
	c.extendedOps[0xBB] = (*CPU_X86).opBTC_Ev_Gv

	// 0xBC-0xBD: BSF/BSR
	c.extendedOps[0xBC] = (*CPU_X86).opBSF_Gv_Ev
	c.extendedOps[0xBD] = (*CPU_X86).opBSR_Gv_Ev

	// 0xBE-0xBF: MOVSX
	c.extendedOps[0xBE] = (*CPU_X86).opMOVSX_Gv_Eb
	c.extendedOps[0xBF] = (*CPU_X86).opMOVSX_Gv_Ew
}

// opTwoBytePrefix handles the 0x0F two-byte opcode prefix
func (c *CPU_X86) opTwoBytePrefix() {
	opcode := c.fetch8()
	if handler := c.extendedOps[opcode]; handler == nil {
		raiseDecode("unimplemented opcode 0x0F 0x%02X", opcode)
	} else {
		handler(c)
	}
}

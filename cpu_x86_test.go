// cpu_x86_test.go - x86 CPU Unit Tests

package main

import (
	"testing"
)

const (
	testMemSize  = 1 << 20
	testCodeBase = 0x1000
	testStackTop = 0x80000
)

// newTestCPU loads code at testCodeBase and points EIP at it.
func newTestCPU(code ...byte) *CPU_X86 {
	mem := NewMemory(testMemSize)
	mem.Load(testCodeBase, code)
	cpu := NewCPU_X86(mem)
	cpu.EIP = testCodeBase
	cpu.ESP = testStackTop
	return cpu
}

func mustStep(t *testing.T, cpu *CPU_X86, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := cpu.Step(); err != nil {
			t.Fatalf("step %d: unexpected fault: %v", i, err)
		}
	}
}

// =============================================================================
// Register Access Tests
// =============================================================================

func TestX86_RegisterAccess(t *testing.T) {
	cpu := newTestCPU()

	cpu.EAX = 0x12345678
	if cpu.AX() != 0x5678 {
		t.Errorf("AX: got 0x%04X, want 0x5678", cpu.AX())
	}
	if cpu.AL() != 0x78 {
		t.Errorf("AL: got 0x%02X, want 0x78", cpu.AL())
	}
	if cpu.AH() != 0x56 {
		t.Errorf("AH: got 0x%02X, want 0x56", cpu.AH())
	}

	cpu.SetAL(0xAB)
	if cpu.EAX != 0x123456AB {
		t.Errorf("SetAL: EAX got 0x%08X, want 0x123456AB", cpu.EAX)
	}

	cpu.SetAH(0xCD)
	if cpu.EAX != 0x1234CDAB {
		t.Errorf("SetAH: EAX got 0x%08X, want 0x1234CDAB", cpu.EAX)
	}

	cpu.SetAX(0x9999)
	if cpu.EAX != 0x12349999 {
		t.Errorf("SetAX: EAX got 0x%08X, want 0x12349999", cpu.EAX)
	}

	cpu.EBX = 0xAABBCCDD
	if cpu.getReg32(3) != 0xAABBCCDD {
		t.Errorf("getReg32(3): got 0x%08X, want 0xAABBCCDD", cpu.getReg32(3))
	}
	if cpu.getReg16(3) != 0xCCDD {
		t.Errorf("getReg16(3): got 0x%04X, want 0xCCDD", cpu.getReg16(3))
	}
	if cpu.getReg8(3) != 0xDD { // BL
		t.Errorf("getReg8(3): got 0x%02X, want 0xDD", cpu.getReg8(3))
	}
	if cpu.getReg8(7) != 0xCC { // BH
		t.Errorf("getReg8(7): got 0x%02X, want 0xCC", cpu.getReg8(7))
	}
}

// =============================================================================
// Flag Tests
// =============================================================================

func TestX86_Flags(t *testing.T) {
	cpu := newTestCPU()

	cpu.setFlag(x86FlagCF, true)
	if !cpu.CF() {
		t.Error("CF should be set")
	}

	cpu.setFlag(x86FlagZF, true)
	if !cpu.ZF() {
		t.Error("ZF should be set")
	}

	cpu.setFlag(x86FlagCF, false)
	if cpu.CF() {
		t.Error("CF should be clear")
	}

	if !parity(0x00) {
		t.Error("parity(0x00) should be even")
	}
	if parity(0x01) {
		t.Error("parity(0x01) should be odd")
	}
	if !parity(0x03) {
		t.Error("parity(0x03) should be even")
	}
}

// Every condition code against a representative flag state.
func TestX86_ConditionTable(t *testing.T) {
	tests := []struct {
		name  string
		cc    byte
		flags uint32
		want  bool
	}{
		{"O set", 0x0, x86FlagOF, true},
		{"O clear", 0x0, 0, false},
		{"NO", 0x1, 0, true},
		{"B on CF", 0x2, x86FlagCF, true},
		{"B clear", 0x2, 0, false},
		{"NB", 0x3, 0, true},
		{"Z on ZF", 0x4, x86FlagZF, true},
		{"NZ", 0x5, 0, true},
		{"BE on CF", 0x6, x86FlagCF, true},
		{"BE on ZF", 0x6, x86FlagZF, true},
		{"BE clear", 0x6, 0, false},
		{"NBE", 0x7, 0, true},
		{"NBE with CF", 0x7, x86FlagCF, false},
		{"S on SF", 0x8, x86FlagSF, true},
		{"NS", 0x9, 0, true},
		{"P on PF", 0xA, x86FlagPF, true},
		{"NP", 0xB, 0, true},
		{"L SF!=OF", 0xC, x86FlagSF, true},
		{"L SF==OF", 0xC, x86FlagSF | x86FlagOF, false},
		{"NL SF==OF", 0xD, x86FlagSF | x86FlagOF, true},
		{"LE on ZF", 0xE, x86FlagZF, true},
		{"LE SF!=OF", 0xE, x86FlagOF, true},
		{"LE neither", 0xE, 0, false},
		{"NLE", 0xF, 0, true},
		{"NLE with ZF", 0xF, x86FlagZF, false},
	}

	cpu := newTestCPU()
	for _, tt := range tests {
		cpu.Flags = tt.flags
		if got := cpu.testCond(tt.cc); got != tt.want {
			t.Errorf("%s: cc=%X flags=%08X got %v, want %v", tt.name, tt.cc, tt.flags, got, tt.want)
		}
	}
}

// =============================================================================
// Basic Instruction Tests
// =============================================================================

func TestX86_NOP(t *testing.T) {
	cpu := newTestCPU(0x90, 0xF4) // NOP; HLT
	mustStep(t, cpu, 1)
	if cpu.EIP != testCodeBase+1 {
		t.Errorf("EIP after NOP: got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+1)
	}
	mustStep(t, cpu, 1)
	if !cpu.Halted {
		t.Error("CPU should halt after HLT")
	}
}

func TestX86_MOV_reg_imm(t *testing.T) {
	cpu := newTestCPU(0xB8, 0x78, 0x56, 0x34, 0x12) // MOV EAX, 0x12345678
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x12345678 {
		t.Errorf("EAX: got 0x%08X, want 0x12345678", cpu.EAX)
	}
}

func TestX86_MOV_r8_imm8(t *testing.T) {
	cpu := newTestCPU(0xB4, 0x42) // MOV AH, 0x42
	cpu.EAX = 0x11223344
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x11224244 {
		t.Errorf("EAX: got 0x%08X, want 0x11224244", cpu.EAX)
	}
}

func TestX86_ADD(t *testing.T) {
	cpu := newTestCPU(0x01, 0xD8) // ADD EAX, EBX
	cpu.EAX = 5
	cpu.EBX = 7
	mustStep(t, cpu, 1)
	if cpu.EAX != 12 {
		t.Errorf("EAX: got %d, want 12", cpu.EAX)
	}
	if cpu.CF() || cpu.ZF() || cpu.SF() || cpu.OF() {
		t.Error("no flags should be set for 5+7")
	}
}

func TestX86_ADD_overflow(t *testing.T) {
	cpu := newTestCPU(0x01, 0xD8) // ADD EAX, EBX
	cpu.EAX = 0x7FFFFFFF
	cpu.EBX = 1
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x80000000 {
		t.Errorf("EAX: got 0x%08X, want 0x80000000", cpu.EAX)
	}
	if !cpu.OF() {
		t.Error("OF should be set")
	}
	if !cpu.SF() {
		t.Error("SF should be set")
	}
	if cpu.CF() {
		t.Error("CF should be clear")
	}
}

func TestX86_ADD_carry(t *testing.T) {
	cpu := newTestCPU(0x01, 0xD8) // ADD EAX, EBX
	cpu.EAX = 0xFFFFFFFF
	cpu.EBX = 1
	mustStep(t, cpu, 1)
	if cpu.EAX != 0 {
		t.Errorf("EAX: got 0x%08X, want 0", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("CF should be set")
	}
	if !cpu.ZF() {
		t.Error("ZF should be set")
	}
	if cpu.OF() {
		t.Error("OF should be clear")
	}
}

func TestX86_SUB(t *testing.T) {
	cpu := newTestCPU(0x29, 0xD8) // SUB EAX, EBX
	cpu.EAX = 10
	cpu.EBX = 3
	mustStep(t, cpu, 1)
	if cpu.EAX != 7 {
		t.Errorf("EAX: got %d, want 7", cpu.EAX)
	}
	if cpu.CF() {
		t.Error("CF should be clear, no borrow")
	}
}

func TestX86_SUB_borrow(t *testing.T) {
	cpu := newTestCPU(0x29, 0xD8) // SUB EAX, EBX
	cpu.EAX = 3
	cpu.EBX = 10
	mustStep(t, cpu, 1)
	if cpu.EAX != 0xFFFFFFF9 {
		t.Errorf("EAX: got 0x%08X, want 0xFFFFFFF9", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("CF should be set on borrow")
	}
	if !cpu.SF() {
		t.Error("SF should be set")
	}
}

func TestX86_CMP_zero(t *testing.T) {
	cpu := newTestCPU(0x39, 0xD8) // CMP EAX, EBX
	cpu.EAX = 42
	cpu.EBX = 42
	mustStep(t, cpu, 1)
	if cpu.EAX != 42 {
		t.Error("CMP must not modify the destination")
	}
	if !cpu.ZF() {
		t.Error("ZF should be set for equal operands")
	}
}

func TestX86_LogicClearsCFOF(t *testing.T) {
	ops := []struct {
		name   string
		opcode byte
	}{
		{"AND", 0x21},
		{"OR", 0x09},
		{"XOR", 0x31},
	}
	for _, op := range ops {
		cpu := newTestCPU(op.opcode, 0xD8)
		cpu.EAX = 0xF0F0F0F0
		cpu.EBX = 0x0F0F0F0F
		cpu.setFlag(x86FlagCF, true)
		cpu.setFlag(x86FlagOF, true)
		mustStep(t, cpu, 1)
		if cpu.CF() {
			t.Errorf("%s should clear CF", op.name)
		}
		if cpu.OF() {
			t.Errorf("%s should clear OF", op.name)
		}
	}
}

func TestX86_XOR_self(t *testing.T) {
	cpu := newTestCPU(0x31, 0xC0) // XOR EAX, EAX
	cpu.EAX = 0xDEADBEEF
	mustStep(t, cpu, 1)
	if cpu.EAX != 0 {
		t.Errorf("EAX: got 0x%08X, want 0", cpu.EAX)
	}
	if !cpu.ZF() {
		t.Error("ZF should be set")
	}
}

func TestX86_INC_DEC_preserveCF(t *testing.T) {
	cpu := newTestCPU(0x40, 0x48) // INC EAX; DEC EAX
	cpu.EAX = 0x7FFFFFFF
	cpu.setFlag(x86FlagCF, true)
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x80000000 {
		t.Errorf("INC: EAX got 0x%08X, want 0x80000000", cpu.EAX)
	}
	if !cpu.OF() {
		t.Error("INC 0x7FFFFFFF should set OF")
	}
	if !cpu.CF() {
		t.Error("INC must preserve CF")
	}
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x7FFFFFFF {
		t.Errorf("DEC: EAX got 0x%08X, want 0x7FFFFFFF", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("DEC must preserve CF")
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestX86_PUSH_POP(t *testing.T) {
	cpu := newTestCPU(0x50, 0x5B) // PUSH EAX; POP EBX
	cpu.EAX = 0xCAFEBABE
	mustStep(t, cpu, 1)
	if cpu.ESP != testStackTop-4 {
		t.Errorf("ESP after push: got 0x%08X, want 0x%08X", cpu.ESP, testStackTop-4)
	}
	if cpu.Memory().Read32(cpu.ESP) != 0xCAFEBABE {
		t.Error("pushed value not on stack")
	}
	mustStep(t, cpu, 1)
	if cpu.EBX != 0xCAFEBABE {
		t.Errorf("EBX: got 0x%08X, want 0xCAFEBABE", cpu.EBX)
	}
	if cpu.ESP != testStackTop {
		t.Errorf("ESP after pop: got 0x%08X, want 0x%08X", cpu.ESP, testStackTop)
	}
}

// =============================================================================
// Control Flow Tests
// =============================================================================

func TestX86_JMP_rel8(t *testing.T) {
	cpu := newTestCPU(0xEB, 0x02, 0x90, 0x90, 0xF4) // JMP +2; skip 2 NOPs; HLT
	mustStep(t, cpu, 1)
	if cpu.EIP != testCodeBase+4 {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+4)
	}
}

func TestX86_JMP_rel8_backward(t *testing.T) {
	// 0: NOP  1: NOP  2: JMP -4 (back to 0)
	cpu := newTestCPU(0x90, 0x90, 0xEB, 0xFC)
	mustStep(t, cpu, 3)
	if cpu.EIP != testCodeBase {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase)
	}
}

func TestX86_JZ(t *testing.T) {
	cpu := newTestCPU(0x74, 0x02, 0x90, 0x90, 0xF4) // JZ +2
	cpu.setFlag(x86FlagZF, true)
	mustStep(t, cpu, 1)
	if cpu.EIP != testCodeBase+4 {
		t.Errorf("taken JZ: EIP got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+4)
	}

	cpu = newTestCPU(0x74, 0x02, 0x90, 0x90, 0xF4)
	mustStep(t, cpu, 1)
	if cpu.EIP != testCodeBase+2 {
		t.Errorf("not-taken JZ: EIP got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+2)
	}
}

func TestX86_CALL_RET(t *testing.T) {
	// 0: CALL +3   5: HLT   6: MOV EAX,1   B: RET
	cpu := newTestCPU(
		0xE8, 0x01, 0x00, 0x00, 0x00, // CALL rel32 +1
		0xF4,                         // HLT
		0xB8, 0x01, 0x00, 0x00, 0x00, // MOV EAX, 1
		0xC3, // RET
	)
	mustStep(t, cpu, 1)
	if cpu.EIP != testCodeBase+6 {
		t.Errorf("CALL: EIP got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+6)
	}
	if cpu.Memory().Read32(cpu.ESP) != testCodeBase+5 {
		t.Error("return address not pushed")
	}
	mustStep(t, cpu, 2) // MOV; RET
	if cpu.EIP != testCodeBase+5 {
		t.Errorf("RET: EIP got 0x%08X, want 0x%08X", cpu.EIP, testCodeBase+5)
	}
	if cpu.EAX != 1 {
		t.Error("subroutine body did not run")
	}
	if cpu.ESP != testStackTop {
		t.Error("RET did not pop the return address")
	}
}

func TestX86_CALL_indirect(t *testing.T) {
	cpu := newTestCPU(0xFF, 0xD1) // CALL ECX
	cpu.ECX = 0x2000
	mustStep(t, cpu, 1)
	if cpu.EIP != 0x2000 {
		t.Errorf("EIP: got 0x%08X, want 0x2000", cpu.EIP)
	}
	if cpu.Memory().Read32(cpu.ESP) != testCodeBase+2 {
		t.Error("return address not pushed")
	}
}

func TestX86_LOOP(t *testing.T) {
	// 0: INC EAX   1: LOOP -3 (back to 0)
	cpu := newTestCPU(0x40, 0xE2, 0xFD, 0xF4)
	cpu.ECX = 3
	for cpu.ECX != 0 {
		mustStep(t, cpu, 2)
	}
	if cpu.EAX != 3 {
		t.Errorf("EAX: got %d, want 3", cpu.EAX)
	}
}

func TestX86_SETcc_CMOVcc(t *testing.T) {
	cpu := newTestCPU(
		0x0F, 0x94, 0xC0, // SETZ AL
		0x0F, 0x44, 0xD9, // CMOVZ EBX, ECX
	)
	cpu.setFlag(x86FlagZF, true)
	cpu.ECX = 0x1234
	mustStep(t, cpu, 2)
	if cpu.AL() != 1 {
		t.Errorf("SETZ: AL got %d, want 1", cpu.AL())
	}
	if cpu.EBX != 0x1234 {
		t.Errorf("CMOVZ taken: EBX got 0x%08X, want 0x1234", cpu.EBX)
	}

	cpu = newTestCPU(0x0F, 0x45, 0xD9) // CMOVNZ EBX, ECX
	cpu.setFlag(x86FlagZF, true)
	cpu.EBX = 0xAAAA
	cpu.ECX = 0x1234
	mustStep(t, cpu, 1)
	if cpu.EBX != 0xAAAA {
		t.Error("CMOVNZ not taken must leave the destination alone")
	}
}

// =============================================================================
// Addressing Tests
// =============================================================================

func TestX86_LEA_SIB(t *testing.T) {
	cpu := newTestCPU(0x8D, 0x44, 0x88, 0x10) // LEA EAX, [EAX+ECX*4+0x10]
	cpu.EAX = 0x1000
	cpu.ECX = 4
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x1020 {
		t.Errorf("EAX: got 0x%08X, want 0x1020", cpu.EAX)
	}
}

func TestX86_MOV_mem(t *testing.T) {
	cpu := newTestCPU(
		0x89, 0x18, // MOV [EAX], EBX
		0x8B, 0x08, // MOV ECX, [EAX]
	)
	cpu.EAX = 0x3000
	cpu.EBX = 0x11223344
	mustStep(t, cpu, 2)
	if cpu.Memory().Read32(0x3000) != 0x11223344 {
		t.Error("store did not reach memory")
	}
	if cpu.ECX != 0x11223344 {
		t.Errorf("ECX: got 0x%08X, want 0x11223344", cpu.ECX)
	}
}

func TestX86_ADD_memDisp8(t *testing.T) {
	cpu := newTestCPU(
		0x01, 0x43, 0x04, // ADD [EBX+4], EAX
		0xF4, // HLT
	)
	cpu.EBX = 0x3000
	cpu.EAX = 7
	cpu.Memory().Write32(0x3004, 10)
	mustStep(t, cpu, 1)
	if got := cpu.Memory().Read32(0x3004); got != 17 {
		t.Errorf("[EBX+4]: got %d, want 17", got)
	}
	// The disp8 must be consumed exactly once, leaving EIP on the HLT.
	if cpu.EIP != testCodeBase+3 {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+3))
	}
	if cpu.Memory().Read32(0x3000) == 17 {
		t.Error("result written to base address instead of base+disp")
	}
}

func TestX86_SUB_memDisp32(t *testing.T) {
	cpu := newTestCPU(
		0x29, 0x8B, 0x00, 0x01, 0x00, 0x00, // SUB [EBX+0x100], ECX
	)
	cpu.EBX = 0x3000
	cpu.ECX = 3
	cpu.Memory().Write32(0x3100, 10)
	mustStep(t, cpu, 1)
	if got := cpu.Memory().Read32(0x3100); got != 7 {
		t.Errorf("[EBX+0x100]: got %d, want 7", got)
	}
	if cpu.EIP != testCodeBase+6 {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+6))
	}
}

func TestX86_XOR_memSIBDisp8(t *testing.T) {
	cpu := newTestCPU(
		0x31, 0x44, 0x8B, 0x04, // XOR [EBX+ECX*4+4], EAX
	)
	cpu.EBX = 0x3000
	cpu.ECX = 2
	cpu.EAX = 0x0F0F0F0F
	cpu.Memory().Write32(0x300C, 0xFFFFFFFF)
	mustStep(t, cpu, 1)
	if got := cpu.Memory().Read32(0x300C); got != 0xF0F0F0F0 {
		t.Errorf("[EBX+ECX*4+4]: got 0x%08X, want 0xF0F0F0F0", got)
	}
	if cpu.EIP != testCodeBase+4 {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+4))
	}
}

func TestX86_Grp1_memDispBeforeImm(t *testing.T) {
	// The disp8 (0x04) precedes the immediate (0x05); a decoder that
	// resolves the destination twice would read the immediate as a second
	// displacement.
	cpu := newTestCPU(
		0x83, 0x43, 0x04, 0x05, // ADD dword [EBX+4], 5
		0x81, 0x43, 0x04, 0x00, 0x01, 0x00, 0x00, // ADD dword [EBX+4], 0x100
	)
	cpu.EBX = 0x3000
	cpu.Memory().Write32(0x3004, 10)
	mustStep(t, cpu, 1)
	if got := cpu.Memory().Read32(0x3004); got != 15 {
		t.Errorf("after ADD imm8: got %d, want 15", got)
	}
	if cpu.EIP != testCodeBase+4 {
		t.Errorf("EIP after imm8 form: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+4))
	}
	mustStep(t, cpu, 1)
	if got := cpu.Memory().Read32(0x3004); got != 0x10F {
		t.Errorf("after ADD imm32: got 0x%X, want 0x10F", got)
	}
	if cpu.EIP != testCodeBase+11 {
		t.Errorf("EIP after imm32 form: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+11))
	}
}

func TestX86_Grp_memDispUnary(t *testing.T) {
	cpu := newTestCPU(
		0xF7, 0x5B, 0x04, // NEG dword [EBX+4]
		0xFF, 0x43, 0x04, // INC dword [EBX+4]
	)
	cpu.EBX = 0x3000
	cpu.Memory().Write32(0x3004, 5)
	mustStep(t, cpu, 2)
	if got := cpu.Memory().Read32(0x3004); got != 0xFFFFFFFC {
		t.Errorf("[EBX+4]: got 0x%08X, want 0xFFFFFFFC", got)
	}
	if cpu.EIP != testCodeBase+6 {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", cpu.EIP, uint32(testCodeBase+6))
	}
}

func TestX86_MOVZX_MOVSX(t *testing.T) {
	cpu := newTestCPU(
		0x0F, 0xB6, 0xC3, // MOVZX EAX, BL
		0x0F, 0xBE, 0xD3, // MOVSX EDX, BL
	)
	cpu.EBX = 0x80
	mustStep(t, cpu, 2)
	if cpu.EAX != 0x80 {
		t.Errorf("MOVZX: EAX got 0x%08X, want 0x80", cpu.EAX)
	}
	if cpu.EDX != 0xFFFFFF80 {
		t.Errorf("MOVSX: EDX got 0x%08X, want 0xFFFFFF80", cpu.EDX)
	}
}

// =============================================================================
// String Operation Tests
// =============================================================================

func TestX86_MOVS(t *testing.T) {
	cpu := newTestCPU(0xA4) // MOVSB
	cpu.Memory().Write8(0x2000, 0x5A)
	cpu.ESI = 0x2000
	cpu.EDI = 0x3000
	mustStep(t, cpu, 1)
	if cpu.Memory().Read8(0x3000) != 0x5A {
		t.Error("byte not copied")
	}
	if cpu.ESI != 0x2001 || cpu.EDI != 0x3001 {
		t.Error("ESI/EDI should increment with DF clear")
	}
}

func TestX86_MOVS_backward(t *testing.T) {
	cpu := newTestCPU(0xA4) // MOVSB
	cpu.Memory().Write8(0x2000, 0x5A)
	cpu.ESI = 0x2000
	cpu.EDI = 0x3000
	cpu.setFlag(x86FlagDF, true)
	mustStep(t, cpu, 1)
	if cpu.ESI != 0x1FFF || cpu.EDI != 0x2FFF {
		t.Error("ESI/EDI should decrement with DF set")
	}
}

func TestX86_REP_STOSB(t *testing.T) {
	cpu := newTestCPU(0xF3, 0xAA) // REP STOSB
	cpu.SetAL(0xEE)
	cpu.EDI = 0x4000
	cpu.ECX = 16
	mustStep(t, cpu, 1)
	for i := uint32(0); i < 16; i++ {
		if cpu.Memory().Read8(0x4000+i) != 0xEE {
			t.Fatalf("byte %d not filled", i)
		}
	}
	if cpu.ECX != 0 {
		t.Errorf("ECX: got %d, want 0", cpu.ECX)
	}
	if cpu.EDI != 0x4010 {
		t.Errorf("EDI: got 0x%08X, want 0x4010", cpu.EDI)
	}
}

func TestX86_REP_ECX_zero(t *testing.T) {
	cpu := newTestCPU(0xF3, 0xAA, 0xF4) // REP STOSB; HLT
	cpu.SetAL(0xEE)
	cpu.EDI = 0x4000
	cpu.ECX = 0
	mustStep(t, cpu, 1)
	if cpu.Memory().Read8(0x4000) != 0 {
		t.Error("REP with ECX=0 must not store")
	}
	if cpu.EDI != 0x4000 {
		t.Error("REP with ECX=0 must not move EDI")
	}
	if cpu.EIP != testCodeBase+2 {
		t.Error("REP with ECX=0 must still advance past the instruction")
	}
}

func TestX86_REPE_CMPSB_ZF_unchanged_when_skipped(t *testing.T) {
	cpu := newTestCPU(0xF3, 0xA6) // REPE CMPSB
	cpu.ECX = 0
	cpu.setFlag(x86FlagZF, true)
	mustStep(t, cpu, 1)
	if !cpu.ZF() {
		t.Error("skipped REPE CMPSB must not touch ZF")
	}
}

func TestX86_REPE_CMPSB(t *testing.T) {
	cpu := newTestCPU(0xF3, 0xA6) // REPE CMPSB
	cpu.Memory().Load(0x2000, []byte("abcX"))
	cpu.Memory().Load(0x3000, []byte("abcY"))
	cpu.ESI = 0x2000
	cpu.EDI = 0x3000
	cpu.ECX = 4
	mustStep(t, cpu, 1)
	if cpu.ZF() {
		t.Error("ZF should be clear after mismatch")
	}
	if cpu.ECX != 0 {
		t.Errorf("ECX: got %d, want 0", cpu.ECX)
	}
}

func TestX86_REPNE_SCASB(t *testing.T) {
	cpu := newTestCPU(0xF2, 0xAE) // REPNE SCASB
	cpu.Memory().Load(0x2000, []byte("hello\x00"))
	cpu.SetAL(0)
	cpu.EDI = 0x2000
	cpu.ECX = 0xFFFFFFFF
	mustStep(t, cpu, 1)
	if cpu.EDI != 0x2006 {
		t.Errorf("EDI: got 0x%08X, want 0x2006", cpu.EDI)
	}
	if !cpu.ZF() {
		t.Error("ZF should be set when the scan finds the byte")
	}
}

// =============================================================================
// Multiply / Divide Tests
// =============================================================================

func TestX86_MUL(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xE1) // MUL ECX
	cpu.EAX = 0x10000
	cpu.ECX = 0x10000
	mustStep(t, cpu, 1)
	if cpu.EAX != 0 || cpu.EDX != 1 {
		t.Errorf("EDX:EAX got %08X:%08X, want 00000001:00000000", cpu.EDX, cpu.EAX)
	}
	if !cpu.CF() || !cpu.OF() {
		t.Error("CF and OF should be set when the high half is nonzero")
	}
}

func TestX86_IMUL_r32(t *testing.T) {
	cpu := newTestCPU(0x0F, 0xAF, 0xC1) // IMUL EAX, ECX
	cpu.EAX = 0xFFFFFFFF // -1
	cpu.ECX = 5
	mustStep(t, cpu, 1)
	if cpu.EAX != 0xFFFFFFFB { // -5
		t.Errorf("EAX: got 0x%08X, want 0xFFFFFFFB", cpu.EAX)
	}
	if cpu.CF() || cpu.OF() {
		t.Error("CF/OF should be clear when the result fits")
	}
}

func TestX86_DIV(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xF1) // DIV ECX
	cpu.EDX = 0
	cpu.EAX = 100
	cpu.ECX = 7
	mustStep(t, cpu, 1)
	if cpu.EAX != 14 {
		t.Errorf("quotient: got %d, want 14", cpu.EAX)
	}
	if cpu.EDX != 2 {
		t.Errorf("remainder: got %d, want 2", cpu.EDX)
	}
}

func TestX86_DIV_byZero(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xF1) // DIV ECX
	cpu.EAX = 100
	cpu.ECX = 0
	err := cpu.Step()
	if err == nil {
		t.Fatal("divide by zero must fault")
	}
	f, ok := err.(*Fault)
	if !ok {
		t.Fatalf("expected *Fault, got %T", err)
	}
	if f.Kind != FaultDivide {
		t.Errorf("kind: got %v, want FaultDivide", f.Kind)
	}
	if f.EIP != testCodeBase {
		t.Errorf("fault EIP: got 0x%08X, want 0x%08X", f.EIP, testCodeBase)
	}
	if cpu.EIP != testCodeBase {
		t.Error("EIP must rewind to the faulting instruction")
	}
}

func TestX86_DIV_quotientOverflow(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xF1) // DIV ECX
	cpu.EDX = 2
	cpu.EAX = 0
	cpu.ECX = 1
	err := cpu.Step()
	if err == nil {
		t.Fatal("oversized quotient must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultDivide {
		t.Errorf("expected FaultDivide, got %v", err)
	}
}

func TestX86_IDIV_minIntOverflow(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xF9) // IDIV ECX
	cpu.EDX = 0xFFFFFFFF
	cpu.EAX = 0x80000000 // EDX:EAX = -2147483648
	cpu.ECX = 0xFFFFFFFF // -1
	err := cpu.Step()
	if err == nil {
		t.Fatal("INT_MIN / -1 must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultDivide {
		t.Errorf("expected FaultDivide, got %v", err)
	}
}

// =============================================================================
// Shift / Rotate Tests
// =============================================================================

func TestX86_SHL(t *testing.T) {
	cpu := newTestCPU(0xC1, 0xE0, 0x04) // SHL EAX, 4
	cpu.EAX = 0x0F000001
	mustStep(t, cpu, 1)
	if cpu.EAX != 0xF0000010 {
		t.Errorf("EAX: got 0x%08X, want 0xF0000010", cpu.EAX)
	}
	if cpu.CF() {
		t.Error("CF should hold the last bit shifted out (0)")
	}
}

func TestX86_SHR_carry(t *testing.T) {
	cpu := newTestCPU(0xD1, 0xE8) // SHR EAX, 1
	cpu.EAX = 0x3
	mustStep(t, cpu, 1)
	if cpu.EAX != 1 {
		t.Errorf("EAX: got %d, want 1", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("CF should hold the shifted-out bit")
	}
}

func TestX86_SAR(t *testing.T) {
	cpu := newTestCPU(0xC1, 0xF8, 0x04) // SAR EAX, 4
	cpu.EAX = 0x80000000
	mustStep(t, cpu, 1)
	if cpu.EAX != 0xF8000000 {
		t.Errorf("EAX: got 0x%08X, want 0xF8000000", cpu.EAX)
	}
}

func TestX86_RCL_throughCF(t *testing.T) {
	cpu := newTestCPU(0xD1, 0xD0) // RCL EAX, 1
	cpu.EAX = 0x80000000
	cpu.setFlag(x86FlagCF, true)
	mustStep(t, cpu, 1)
	if cpu.EAX != 1 {
		t.Errorf("EAX: got 0x%08X, want 1 (old CF rotated in)", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("CF should hold the rotated-out MSB")
	}
}

func TestX86_RCR_throughCF(t *testing.T) {
	cpu := newTestCPU(0xD1, 0xD8) // RCR EAX, 1
	cpu.EAX = 1
	cpu.setFlag(x86FlagCF, true)
	mustStep(t, cpu, 1)
	if cpu.EAX != 0x80000000 {
		t.Errorf("EAX: got 0x%08X, want 0x80000000", cpu.EAX)
	}
	if !cpu.CF() {
		t.Error("CF should hold the rotated-out LSB")
	}
}

// =============================================================================
// Flag Instruction Tests
// =============================================================================

func TestX86_CLC_STC_CMC(t *testing.T) {
	cpu := newTestCPU(0xF9, 0xF8, 0xF5) // STC; CLC; CMC
	mustStep(t, cpu, 1)
	if !cpu.CF() {
		t.Error("STC should set CF")
	}
	mustStep(t, cpu, 1)
	if cpu.CF() {
		t.Error("CLC should clear CF")
	}
	mustStep(t, cpu, 1)
	if !cpu.CF() {
		t.Error("CMC should toggle CF")
	}
}

func TestX86_CLD_STD(t *testing.T) {
	cpu := newTestCPU(0xFD, 0xFC) // STD; CLD
	mustStep(t, cpu, 1)
	if !cpu.DF() {
		t.Error("STD should set DF")
	}
	mustStep(t, cpu, 1)
	if cpu.DF() {
		t.Error("CLD should clear DF")
	}
}

// =============================================================================
// Fault Tests
// =============================================================================

func TestX86_MemoryFault(t *testing.T) {
	cpu := newTestCPU(0x8B, 0x00) // MOV EAX, [EAX]
	cpu.EAX = testMemSize + 0x100
	err := cpu.Step()
	if err == nil {
		t.Fatal("out of range load must fault")
	}
	f, ok := err.(*Fault)
	if !ok {
		t.Fatalf("expected *Fault, got %T", err)
	}
	if f.Kind != FaultMemory {
		t.Errorf("kind: got %v, want FaultMemory", f.Kind)
	}
	if f.Addr != testMemSize+0x100 {
		t.Errorf("fault addr: got 0x%08X, want 0x%08X", f.Addr, testMemSize+0x100)
	}
	if !cpu.Halted {
		t.Error("unhandled fault should halt the CPU")
	}
}

func TestX86_MemoryFault_straddle(t *testing.T) {
	cpu := newTestCPU(0x8B, 0x00) // MOV EAX, [EAX]
	cpu.EAX = testMemSize - 2
	err := cpu.Step()
	if err == nil {
		t.Fatal("dword read straddling the end must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultMemory {
		t.Errorf("expected FaultMemory, got %v", err)
	}
}

func TestX86_DecodeFault(t *testing.T) {
	cpu := newTestCPU(0x0F, 0xFF) // unassigned 0F opcode
	err := cpu.Step()
	if err == nil {
		t.Fatal("unknown opcode must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultDecode {
		t.Errorf("expected FaultDecode, got %v", err)
	}
}

func TestX86_ExceptionHandlerObservesFault(t *testing.T) {
	cpu := newTestCPU(0xF7, 0xF1) // DIV ECX with ECX=0
	var seen *Fault
	cpu.SetExceptionHandler(func(c *CPU_X86, f *Fault) {
		seen = f
	})
	if err := cpu.Step(); err == nil {
		t.Fatal("expected fault")
	}
	if seen == nil {
		t.Fatal("exception handler not invoked")
	}
	if seen.Kind != FaultDivide {
		t.Errorf("handler saw %v, want FaultDivide", seen.Kind)
	}
	if cpu.Halted {
		t.Error("CPU must not halt when a handler is installed")
	}
}

// =============================================================================
// Run Loop Tests
// =============================================================================

func TestX86_Run_budget(t *testing.T) {
	// Endless INC EAX; JMP -3
	cpu := newTestCPU(0x40, 0xEB, 0xFD)
	n, err := cpu.Run(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 100 {
		t.Errorf("steps: got %d, want 100", n)
	}
	if cpu.Halted {
		t.Error("budget exhaustion must not halt the CPU")
	}
}

func TestX86_Run_untilHalt(t *testing.T) {
	cpu := newTestCPU(0x40, 0x40, 0x40, 0xF4) // INC x3; HLT
	n, err := cpu.Run(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("steps: got %d, want 4", n)
	}
	if cpu.EAX != 3 {
		t.Errorf("EAX: got %d, want 3", cpu.EAX)
	}
	if !cpu.Halted {
		t.Error("CPU should be halted")
	}
}

// =============================================================================
// Segment Override Tests
// =============================================================================

func TestX86_FSOverride(t *testing.T) {
	cpu := newTestCPU(0x64, 0x8B, 0x05, 0x18, 0x00, 0x00, 0x00) // MOV EAX, FS:[0x18]
	cpu.SetSegmentResolver(&ThreadBlock{Base: 0x5000, Size: 0x1000})
	cpu.Memory().Write32(0x5018, 0xFEEDFACE)
	mustStep(t, cpu, 1)
	if cpu.EAX != 0xFEEDFACE {
		t.Errorf("EAX: got 0x%08X, want 0xFEEDFACE", cpu.EAX)
	}
}

func TestX86_FSOverride_outOfBlock(t *testing.T) {
	cpu := newTestCPU(0x64, 0x8B, 0x05, 0x00, 0x20, 0x00, 0x00) // MOV EAX, FS:[0x2000]
	cpu.SetSegmentResolver(&ThreadBlock{Base: 0x5000, Size: 0x1000})
	err := cpu.Step()
	if err == nil {
		t.Fatal("access past the thread block must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultSegment {
		t.Errorf("expected FaultSegment, got %v", err)
	}
}

func TestX86_GSOverride_unmapped(t *testing.T) {
	cpu := newTestCPU(0x65, 0x8B, 0x05, 0x00, 0x00, 0x00, 0x00) // MOV EAX, GS:[0]
	cpu.SetSegmentResolver(&ThreadBlock{Base: 0x5000, Size: 0x1000})
	err := cpu.Step()
	if err == nil {
		t.Fatal("GS access must fault")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultSegment {
		t.Errorf("expected FaultSegment, got %v", err)
	}
}

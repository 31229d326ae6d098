// fpu_x87_integration_test.go - x87 Instruction Dispatch Tests

package main

import (
	"math"
	"testing"
)

func newFPUTestCPU(code ...byte) *CPU_X86 {
	mem := NewMemory(0x10000)
	mem.Load(0x1000, code)
	cpu := NewCPU_X86(mem)
	cpu.EIP = 0x1000
	cpu.ESP = 0x8000
	return cpu
}

func TestX87_CPU_HasFPU(t *testing.T) {
	cpu := NewCPU_X86(NewMemory(0x1000))
	if cpu.FPU == nil {
		t.Fatal("cpu.FPU should be initialized")
	}
}

func TestX87_CPU_ResetFPU(t *testing.T) {
	cpu := NewCPU_X86(NewMemory(0x1000))
	cpu.FPU.push(3.14)
	cpu.FPU.FCW = 0
	cpu.Reset()
	if cpu.FPU.FCW != 0x037F || cpu.FPU.FTW != 0xFFFF || cpu.FPU.FSW != 0 {
		t.Fatalf("reset did not restore FPU defaults: FCW=%04X FTW=%04X FSW=%04X", cpu.FPU.FCW, cpu.FPU.FTW, cpu.FPU.FSW)
	}
}

func TestX87_Dispatch_D8_MemAndRegAndFNSTSWAX(t *testing.T) {
	dataAddr := uint32(0x200)
	cpu := newFPUTestCPU(
		0xD8, 0x05, byte(dataAddr), byte(dataAddr>>8), byte(dataAddr>>16), byte(dataAddr>>24), // FADD m32
		0xD8, 0xC1, // FADD ST(0),ST(1)
		0xDF, 0xE0, // FNSTSW AX
	)
	cpu.FPU.push(1.0)
	cpu.FPU.storeFloat32(cpu.Memory(), dataAddr, 2.0)

	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 3.0) {
		t.Fatalf("after D8 mem ST0=%v want=3", cpu.FPU.ST(0))
	}
	if cpu.EIP != 0x1006 {
		t.Fatalf("EIP after D8 mem = 0x%X, want 0x1006", cpu.EIP)
	}

	cpu.FPU.push(2.0) // ST0=2 ST1=3 for reg-form FADD ST0,ST1
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 5.0) {
		t.Fatalf("after D8 reg ST0=%v want=5", cpu.FPU.ST(0))
	}

	cpu.FPU.FSW = 0x5A5A
	mustStep(t, cpu, 1)
	if cpu.AX() != 0x5A5A {
		t.Fatalf("AX = 0x%04X want 0x5A5A", cpu.AX())
	}
}

func TestX87_FLD_FSTP_Integration(t *testing.T) {
	src := uint32(0x300)
	dst := uint32(0x320)
	cpu := newFPUTestCPU(
		0xDD, 0x05, byte(src), byte(src>>8), byte(src>>16), byte(src>>24), // FLD m64
		0xDD, 0x1D, byte(dst), byte(dst>>8), byte(dst>>16), byte(dst>>24), // FSTP m64
	)
	cpu.FPU.storeFloat64(cpu.Memory(), src, math.Pi)

	mustStep(t, cpu, 2)
	got := cpu.FPU.loadFloat64(cpu.Memory(), dst)
	if !almostEq(got, math.Pi) {
		t.Fatalf("stored m64 got=%v want=%v", got, math.Pi)
	}
}

func TestX87_FNSTENV_CapturesFIPandFDP(t *testing.T) {
	memAddr := uint32(0x600)
	envAddr := uint32(0x700)
	cpu := newFPUTestCPU(
		0xD8, 0x05, byte(memAddr), byte(memAddr>>8), byte(memAddr>>16), byte(memAddr>>24), // FADD m32
		0xD9, 0x35, byte(envAddr), byte(envAddr>>8), byte(envAddr>>16), byte(envAddr>>24), // FNSTENV
	)
	cpu.FPU.push(1)
	cpu.FPU.storeFloat32(cpu.Memory(), memAddr, 2)

	mustStep(t, cpu, 2)
	mem := cpu.Memory()
	if got := mem.Read32(envAddr + 12); got != 0x1000 {
		t.Fatalf("FIP in env = 0x%08X want 0x1000", got)
	}
	if got := mem.Read32(envAddr + 20); got != memAddr {
		t.Fatalf("FDP in env = 0x%08X want 0x%08X", got, memAddr)
	}
	if got := mem.Read16(envAddr); got != cpu.FPU.FCW {
		t.Fatalf("FCW in env = 0x%04X want 0x%04X", got, cpu.FPU.FCW)
	}
}

func TestX87_FNSTENV_OperandSizePrefixStill32bit(t *testing.T) {
	envAddr := uint32(0x900)
	cpu := newFPUTestCPU(
		0x66, 0xD9, 0x35, byte(envAddr), byte(envAddr>>8), byte(envAddr>>16), byte(envAddr>>24),
	)
	for i := 0; i < 32; i++ {
		cpu.Memory().Write8(envAddr+uint32(i), 0xAA)
	}

	mustStep(t, cpu, 1)
	// If the 32-bit env was written, bytes beyond 14 change
	unchanged := true
	for i := uint32(14); i < 28; i++ {
		if cpu.Memory().Read8(envAddr+i) != 0xAA {
			unchanged = false
			break
		}
	}
	if unchanged {
		t.Fatalf("expected 32-bit (28-byte) env write even with 0x66 prefix")
	}
}

func TestX87_FNSAVE_FRSTOR_Roundtrip(t *testing.T) {
	buf := uint32(0xA00)
	cpu := newFPUTestCPU(
		0xDD, 0x35, byte(buf), byte(buf>>8), byte(buf>>16), byte(buf>>24), // FNSAVE
		0xDD, 0x25, byte(buf), byte(buf>>8), byte(buf>>16), byte(buf>>24), // FRSTOR
	)
	cpu.FPU.push(1.5)
	cpu.FPU.push(2.5)
	cpu.FPU.push(3.5)

	mustStep(t, cpu, 1)
	if cpu.FPU.FTW != 0xFFFF {
		t.Fatalf("FNSAVE should reset FPU")
	}
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 3.5) || !almostEq(cpu.FPU.ST(1), 2.5) || !almostEq(cpu.FPU.ST(2), 1.5) {
		t.Fatalf("FRSTOR roundtrip mismatch ST0=%v ST1=%v ST2=%v", cpu.FPU.ST(0), cpu.FPU.ST(1), cpu.FPU.ST(2))
	}
}

func TestX87_FCMOV(t *testing.T) {
	// FCMOVB ST(0),ST(1) moves when CF is set.
	cpu := newFPUTestCPU(0xDA, 0xC1)
	cpu.FPU.push(1.0)
	cpu.FPU.push(2.0)
	cpu.setFlag(x86FlagCF, true)
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 1.0) {
		t.Fatalf("FCMOVB taken: ST0=%v want 1", cpu.FPU.ST(0))
	}

	cpu = newFPUTestCPU(0xDA, 0xC1)
	cpu.FPU.push(1.0)
	cpu.FPU.push(2.0)
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 2.0) {
		t.Fatalf("FCMOVB not taken: ST0=%v want 2", cpu.FPU.ST(0))
	}

	// FCMOVNE ST(0),ST(1) moves when ZF is clear.
	cpu = newFPUTestCPU(0xDB, 0xC9)
	cpu.FPU.push(4.0)
	cpu.FPU.push(8.0)
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 4.0) {
		t.Fatalf("FCMOVNE taken: ST0=%v want 4", cpu.FPU.ST(0))
	}
}

func TestX87_FCOMI(t *testing.T) {
	run := func(a, b float64) *CPU_X86 {
		cpu := newFPUTestCPU(0xDB, 0xF1) // FCOMI ST(0),ST(1)
		cpu.FPU.push(b)
		cpu.FPU.push(a)
		cpu.setFlag(x86FlagOF, true)
		cpu.setFlag(x86FlagSF, true)
		mustStep(t, cpu, 1)
		return cpu
	}

	cpu := run(2.0, 1.0) // ST0 > ST1
	if cpu.ZF() || cpu.PF() || cpu.CF() {
		t.Error("greater: ZF/PF/CF should all be clear")
	}
	if cpu.OF() || cpu.SF() {
		t.Error("FCOMI must clear OF and SF")
	}

	cpu = run(1.0, 2.0) // ST0 < ST1
	if !cpu.CF() || cpu.ZF() || cpu.PF() {
		t.Error("less: only CF should be set")
	}

	cpu = run(3.0, 3.0)
	if !cpu.ZF() || cpu.CF() || cpu.PF() {
		t.Error("equal: only ZF should be set")
	}

	cpu = run(math.NaN(), 1.0)
	if !cpu.ZF() || !cpu.PF() || !cpu.CF() {
		t.Error("unordered: ZF, PF and CF should all be set")
	}
}

func TestX87_FCOMIP_pops(t *testing.T) {
	cpu := newFPUTestCPU(0xDF, 0xF1) // FCOMIP ST(0),ST(1)
	cpu.FPU.push(1.0)
	cpu.FPU.push(2.0)
	mustStep(t, cpu, 1)
	if cpu.FPU.top() != 7 {
		t.Fatalf("FCOMIP should pop once, TOP=%d", cpu.FPU.top())
	}
	if !almostEq(cpu.FPU.ST(0), 1.0) {
		t.Fatalf("ST0 after pop = %v want 1", cpu.FPU.ST(0))
	}
}

func TestX87_FUCOMPP(t *testing.T) {
	cpu := newFPUTestCPU(0xDA, 0xE9) // FUCOMPP
	cpu.FPU.push(5.0)
	cpu.FPU.push(5.0)
	mustStep(t, cpu, 1)
	if cpu.FPU.FSW&x87FSW_C3 == 0 {
		t.Error("equal compare should set C3")
	}
	if cpu.FPU.top() != 0 {
		t.Errorf("FUCOMPP should pop twice, TOP=%d", cpu.FPU.top())
	}
}

func TestX87_FCHS_FABS_FSQRT(t *testing.T) {
	cpu := newFPUTestCPU(
		0xD9, 0xE0, // FCHS
		0xD9, 0xE1, // FABS
		0xD9, 0xFA, // FSQRT
	)
	cpu.FPU.push(9.0)
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), -9.0) {
		t.Fatalf("FCHS: ST0=%v want -9", cpu.FPU.ST(0))
	}
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 9.0) {
		t.Fatalf("FABS: ST0=%v want 9", cpu.FPU.ST(0))
	}
	mustStep(t, cpu, 1)
	if !almostEq(cpu.FPU.ST(0), 3.0) {
		t.Fatalf("FSQRT: ST0=%v want 3", cpu.FPU.ST(0))
	}
}

func TestX87_FILD_FISTP(t *testing.T) {
	src := uint32(0x400)
	dst := uint32(0x410)
	cpu := newFPUTestCPU(
		0xDB, 0x05, byte(src), byte(src>>8), byte(src>>16), byte(src>>24), // FILD m32
		0xDB, 0x1D, byte(dst), byte(dst>>8), byte(dst>>16), byte(dst>>24), // FISTP m32
	)
	cpu.Memory().Write32(src, 0xFFFFFF85) // -123
	mustStep(t, cpu, 2)
	if got := int32(cpu.Memory().Read32(dst)); got != -123 {
		t.Fatalf("FISTP: got %d want -123", got)
	}
	if cpu.FPU.top() != 0 {
		t.Error("FISTP should leave the stack empty")
	}
}

func TestX87_ExtendedLoadStore(t *testing.T) {
	src := uint32(0x500)
	dst := uint32(0x510)
	cpu := newFPUTestCPU(
		0xDB, 0x2D, byte(src), byte(src>>8), byte(src>>16), byte(src>>24), // FLD m80
		0xDB, 0x3D, byte(dst), byte(dst>>8), byte(dst>>16), byte(dst>>24), // FSTP m80
	)
	cpu.FPU.storeExtended80(cpu.Memory(), src, math.E)
	mustStep(t, cpu, 2)
	got := cpu.FPU.loadExtended80(cpu.Memory(), dst)
	if !almostEq(got, math.E) {
		t.Fatalf("m80 roundtrip got=%v want=%v", got, math.E)
	}
}

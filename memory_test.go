// memory_test.go - Memory Unit Tests

package main

import (
	"math"
	"testing"
)

// expectMemFault runs fn and checks it raises a memory fault at addr.
func expectMemFault(t *testing.T, addr uint32, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a memory fault")
		}
		f, ok := r.(*Fault)
		if !ok {
			t.Fatalf("expected *Fault, got %T", r)
		}
		if f.Kind != FaultMemory {
			t.Errorf("kind: got %v, want FaultMemory", f.Kind)
		}
		if f.Addr != addr {
			t.Errorf("addr: got 0x%08X, want 0x%08X", f.Addr, addr)
		}
	}()
	fn()
}

func TestMemory_LittleEndian(t *testing.T) {
	mem := NewMemory(0x1000)
	mem.Write32(0x100, 0x12345678)
	if mem.Read8(0x100) != 0x78 {
		t.Error("low byte should come first")
	}
	if mem.Read8(0x103) != 0x12 {
		t.Error("high byte should come last")
	}
	if mem.Read16(0x100) != 0x5678 {
		t.Errorf("Read16: got 0x%04X, want 0x5678", mem.Read16(0x100))
	}
	if mem.Read16(0x102) != 0x1234 {
		t.Errorf("Read16 high: got 0x%04X, want 0x1234", mem.Read16(0x102))
	}

	mem.Write64(0x200, 0x0102030405060708)
	if mem.Read32(0x200) != 0x05060708 {
		t.Error("Write64 low dword wrong")
	}
	if mem.Read32(0x204) != 0x01020304 {
		t.Error("Write64 high dword wrong")
	}
}

func TestMemory_SignExtendingReads(t *testing.T) {
	mem := NewMemory(0x1000)
	mem.Write8(0x10, 0x80)
	if mem.ReadS8(0x10) != 0xFFFFFF80 {
		t.Errorf("ReadS8: got 0x%08X, want 0xFFFFFF80", mem.ReadS8(0x10))
	}
	mem.Write8(0x11, 0x7F)
	if mem.ReadS8(0x11) != 0x7F {
		t.Errorf("ReadS8 positive: got 0x%08X, want 0x7F", mem.ReadS8(0x11))
	}
	mem.Write16(0x20, 0x8000)
	if mem.ReadS16(0x20) != 0xFFFF8000 {
		t.Errorf("ReadS16: got 0x%08X, want 0xFFFF8000", mem.ReadS16(0x20))
	}
}

func TestMemory_Floats(t *testing.T) {
	mem := NewMemory(0x1000)

	mem.WriteFloat32(0x100, 1.5)
	if mem.ReadFloat32(0x100) != 1.5 {
		t.Error("float32 round trip failed")
	}
	if mem.Read32(0x100) != math.Float32bits(1.5) {
		t.Error("float32 must share bits with Read32")
	}

	mem.WriteFloat64(0x200, -2.25)
	if mem.ReadFloat64(0x200) != -2.25 {
		t.Error("float64 round trip failed")
	}
	if mem.Read64(0x200) != math.Float64bits(-2.25) {
		t.Error("float64 must share bits with Read64")
	}
}

func TestMemory_Bounds(t *testing.T) {
	mem := NewMemory(0x1000)

	// Last valid positions succeed.
	mem.Write8(0xFFF, 1)
	mem.Write16(0xFFE, 1)
	mem.Write32(0xFFC, 1)
	mem.Write64(0xFF8, 1)

	expectMemFault(t, 0x1000, func() { mem.Read8(0x1000) })
	expectMemFault(t, 0xFFF, func() { mem.Read16(0xFFF) })
	expectMemFault(t, 0xFFD, func() { mem.Read32(0xFFD) })
	expectMemFault(t, 0xFF9, func() { mem.Read64(0xFF9) })
	expectMemFault(t, 0x1000, func() { mem.Write8(0x1000, 0) })
	expectMemFault(t, 0xFFE, func() { mem.Write32(0xFFE, 0) })

	// Wrapping addresses must not slip through.
	expectMemFault(t, 0xFFFFFFFF, func() { mem.Read32(0xFFFFFFFF) })
}

func TestMemory_Load(t *testing.T) {
	mem := NewMemory(0x1000)
	mem.Load(0x100, []byte{1, 2, 3, 4})
	if mem.Read32(0x100) != 0x04030201 {
		t.Errorf("Load: got 0x%08X, want 0x04030201", mem.Read32(0x100))
	}

	expectMemFault(t, 0xFFE, func() { mem.Load(0xFFE, []byte{1, 2, 3, 4}) })
}

func TestMemory_Bytes(t *testing.T) {
	mem := NewMemory(0x1000)
	mem.Load(0x10, []byte{0xAA, 0xBB, 0xCC})
	b := mem.Bytes(0x10, 3)
	if len(b) != 3 || b[0] != 0xAA || b[2] != 0xCC {
		t.Errorf("Bytes: got % X", b)
	}

	// The view aliases memory, later writes show through.
	mem.Write8(0x10, 0x11)
	if b[0] != 0x11 {
		t.Error("Bytes should alias the underlying storage")
	}
}

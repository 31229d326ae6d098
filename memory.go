// memory.go - Flat bounds-checked guest memory

package main

import (
	"encoding/binary"
	"math"
)

// Memory is the guest address space: a single flat little-endian byte array
// starting at address zero. Every access is bounds checked against the full
// width of the value; an out-of-range access raises a memory fault naming
// the first offending address and never performs a partial read or write.
type Memory struct {
	data []byte
}

// NewMemory allocates a zero-filled address space of the given size in bytes.
func NewMemory(size uint32) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the address space size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// check faults unless [addr, addr+width) lies inside the address space.
func (m *Memory) check(addr uint32, width uint32) {
	if uint64(addr)+uint64(width) > uint64(len(m.data)) {
		raise(FaultMemory, addr, "%d-byte access outside memory of size %08X", width, len(m.data))
	}
}

func (m *Memory) Read8(addr uint32) uint8 {
	m.check(addr, 1)
	return m.data[addr]
}

func (m *Memory) Read16(addr uint32) uint16 {
	m.check(addr, 2)
	return binary.LittleEndian.Uint16(m.data[addr:])
}

func (m *Memory) Read32(addr uint32) uint32 {
	m.check(addr, 4)
	return binary.LittleEndian.Uint32(m.data[addr:])
}

func (m *Memory) Read64(addr uint32) uint64 {
	m.check(addr, 8)
	return binary.LittleEndian.Uint64(m.data[addr:])
}

// ReadS8 reads a byte and sign-extends it to 32 bits.
func (m *Memory) ReadS8(addr uint32) uint32 {
	return uint32(int32(int8(m.Read8(addr))))
}

// ReadS16 reads a word and sign-extends it to 32 bits.
func (m *Memory) ReadS16(addr uint32) uint32 {
	return uint32(int32(int16(m.Read16(addr))))
}

func (m *Memory) Write8(addr uint32, v uint8) {
	m.check(addr, 1)
	m.data[addr] = v
}

func (m *Memory) Write16(addr uint32, v uint16) {
	m.check(addr, 2)
	binary.LittleEndian.PutUint16(m.data[addr:], v)
}

func (m *Memory) Write32(addr uint32, v uint32) {
	m.check(addr, 4)
	binary.LittleEndian.PutUint32(m.data[addr:], v)
}

func (m *Memory) Write64(addr uint32, v uint64) {
	m.check(addr, 8)
	binary.LittleEndian.PutUint64(m.data[addr:], v)
}

func (m *Memory) ReadFloat32(addr uint32) float32 {
	return math.Float32frombits(m.Read32(addr))
}

func (m *Memory) ReadFloat64(addr uint32) float64 {
	return math.Float64frombits(m.Read64(addr))
}

func (m *Memory) WriteFloat32(addr uint32, v float32) {
	m.Write32(addr, math.Float32bits(v))
}

func (m *Memory) WriteFloat64(addr uint32, v float64) {
	m.Write64(addr, math.Float64bits(v))
}

// Load copies a block of bytes into memory at addr. Used by the section
// loader; faults like any other access if the block does not fit.
func (m *Memory) Load(addr uint32, data []byte) {
	m.check(addr, uint32(len(data)))
	copy(m.data[addr:], data)
}

// Bytes returns a read-only view of a memory range for inspection tools.
func (m *Memory) Bytes(addr, length uint32) []byte {
	m.check(addr, length)
	return m.data[addr : addr+length]
}

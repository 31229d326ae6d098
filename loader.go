// loader.go - Program Image Loading, Import Stubs, Thread Block
//
// The embedder hands the emulator pre-extracted program bytes: a list of
// sections with load addresses plus an entry point. Imported functions are
// bound to synthetic stub addresses that trap back into Go, and FS-relative
// accesses resolve against a caller-provided thread block image.

package main

import (
	"os"

	"github.com/pkg/errors"
)

// Section is one contiguous chunk of program bytes at a fixed load address
type Section struct {
	Addr uint32
	Data []byte
}

// Image is a loadable program: sections plus the initial EIP
type Image struct {
	Entry    uint32
	Sections []Section
}

// LoadInto bulk-copies every section into memory. Sections are validated
// against the memory size before anything is written.
func (img *Image) LoadInto(mem *Memory) error {
	for i, s := range img.Sections {
		end := uint64(s.Addr) + uint64(len(s.Data))
		if end > uint64(mem.Size()) {
			return errors.Errorf("section %d at %08X (%d bytes) exceeds memory size %d",
				i, s.Addr, len(s.Data), mem.Size())
		}
	}
	if uint64(img.Entry) >= uint64(mem.Size()) {
		return errors.Errorf("entry point %08X outside memory", img.Entry)
	}
	for _, s := range img.Sections {
		mem.Load(s.Addr, s.Data)
	}
	return nil
}

// LoadImageFile reads a flat binary file as a single-section image
func LoadImageFile(path string, loadAddr, entry uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read program")
	}
	return &Image{
		Entry:    entry,
		Sections: []Section{{Addr: loadAddr, Data: data}},
	}, nil
}

// -----------------------------------------------------------------------------
// Import stubs
// -----------------------------------------------------------------------------

const (
	importVector   = 0x2D // service vector the import stubs trap through
	importStubSize = 8
)

// ImportFunc services one imported function call. Execution sits inside
// the stub: [ESP] is the caller's return address and arguments follow it.
type ImportFunc func(c *CPU_X86) error

type importBinding struct {
	name     string
	argBytes uint16 // stack bytes the stub's RET pops (stdcall), 0 for cdecl
	fn       ImportFunc
}

// ImportTable hands out synthetic addresses for imported functions. Each
// stub is INT importVector followed by a near RET; the dispatcher keys on
// the stub address to find the Go binding, and the RET returns to the
// caller (popping the arguments too for stdcall bindings).
type ImportTable struct {
	base     uint32
	next     uint32
	byAddr   map[uint32]*importBinding
	byName   map[string]uint32
	fallback InterruptHandler
}

// NewImportTable creates an import table allocating stubs upward from base
func NewImportTable(base uint32) *ImportTable {
	return &ImportTable{
		base:   base,
		next:   base,
		byAddr: make(map[uint32]*importBinding),
		byName: make(map[string]uint32),
	}
}

// Register binds name to fn with cdecl convention (caller cleans the
// stack) and returns the stub address the program should call.
func (t *ImportTable) Register(name string, fn ImportFunc) uint32 {
	return t.register(name, 0, fn)
}

// RegisterStdcall binds name to fn with stdcall convention: the stub's
// RET pops argWords dword arguments on behalf of the callee.
func (t *ImportTable) RegisterStdcall(name string, argWords int, fn ImportFunc) uint32 {
	return t.register(name, uint16(argWords*4), fn)
}

func (t *ImportTable) register(name string, argBytes uint16, fn ImportFunc) uint32 {
	if addr, ok := t.byName[name]; ok {
		b := t.byAddr[addr]
		b.argBytes = argBytes
		b.fn = fn
		return addr
	}
	addr := t.next
	t.next += importStubSize
	t.byName[name] = addr
	t.byAddr[addr] = &importBinding{name: name, argBytes: argBytes, fn: fn}
	return addr
}

// Address returns the stub address previously registered for name
func (t *ImportTable) Address(name string) (uint32, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// Install writes the stub code into memory and hooks the CPU's interrupt
// path. Vectors other than the import vector fall through to next.
func (t *ImportTable) Install(c *CPU_X86, next InterruptHandler) error {
	mem := c.Memory()
	for name, addr := range t.byName {
		if uint64(addr)+importStubSize > uint64(mem.Size()) {
			return errors.Errorf("import stub for %s at %08X outside memory", name, addr)
		}
		b := t.byAddr[addr]
		mem.Write8(addr, 0xCD) // INT importVector
		mem.Write8(addr+1, importVector)
		if b.argBytes != 0 {
			mem.Write8(addr+2, 0xC2) // RET imm16
			mem.Write16(addr+3, b.argBytes)
		} else {
			mem.Write8(addr+2, 0xC3) // RET
		}
	}
	t.fallback = next
	c.SetInterruptHandler(t.dispatch)
	return nil
}

func (t *ImportTable) dispatch(c *CPU_X86, vector byte) error {
	if vector != importVector {
		if t.fallback != nil {
			return t.fallback(c, vector)
		}
		return errors.Errorf("unhandled interrupt 0x%02X", vector)
	}
	// The INT sits at the top of the stub, so EIP is stub+2 here
	stub := c.EIP - 2
	b, ok := t.byAddr[stub]
	if !ok {
		return errors.Errorf("service interrupt outside any import stub (EIP=%08X)", c.EIP)
	}
	if b.fn == nil {
		return errors.Errorf("import %s has no binding", b.name)
	}
	return errors.Wrap(b.fn(c), b.name)
}

// StackArg reads the i-th dword argument (counting from 0) of the call
// being serviced by an import stub.
func StackArg(c *CPU_X86, i int) uint32 {
	return c.Memory().Read32(c.ESP + 4 + uint32(i)*4)
}

// -----------------------------------------------------------------------------
// Thread block
// -----------------------------------------------------------------------------

// ThreadBlock maps FS-relative accesses onto a TEB-style image the
// embedder placed in memory. GS is not mapped in 32-bit Windows processes.
type ThreadBlock struct {
	Base uint32 // linear address of the thread block image
	Size uint32 // extent of the image, 0 = unbounded
}

func (t *ThreadBlock) ResolveFS(offset uint32) (uint32, error) {
	if t.Size != 0 && offset >= t.Size {
		return 0, errors.Errorf("fs:0x%X outside thread block (size 0x%X)", offset, t.Size)
	}
	return t.Base + offset, nil
}

func (t *ThreadBlock) ResolveGS(offset uint32) (uint32, error) {
	return 0, errors.New("gs segment not mapped")
}

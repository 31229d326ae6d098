// loader_test.go - Image Loading and Import Stub Tests

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_LoadInto(t *testing.T) {
	mem := NewMemory(0x10000)
	img := &Image{
		Entry: 0x1000,
		Sections: []Section{
			{Addr: 0x1000, Data: []byte{0x90, 0xF4}},
			{Addr: 0x2000, Data: []byte{0xAA, 0xBB}},
		},
	}
	require.NoError(t, img.LoadInto(mem))
	assert.Equal(t, uint8(0x90), mem.Read8(0x1000))
	assert.Equal(t, uint8(0xBB), mem.Read8(0x2001))
}

func TestImage_LoadInto_validatesBeforeWriting(t *testing.T) {
	mem := NewMemory(0x10000)
	img := &Image{
		Entry: 0x1000,
		Sections: []Section{
			{Addr: 0x1000, Data: []byte{0x90}},
			{Addr: 0xFFFF, Data: []byte{1, 2, 3, 4}}, // does not fit
		},
	}
	require.Error(t, img.LoadInto(mem))
	// The valid first section must not have been written either.
	assert.Equal(t, uint8(0), mem.Read8(0x1000))
}

func TestImage_LoadInto_rejectsBadEntry(t *testing.T) {
	mem := NewMemory(0x10000)
	img := &Image{Entry: 0x20000}
	require.Error(t, img.LoadInto(mem))
}

func TestImportTable_StdcallRoundTrip(t *testing.T) {
	mem := NewMemory(0x10000)
	cpu := NewCPU_X86(mem)
	cpu.ESP = 0x8000

	table := NewImportTable(0xF000)
	var gotA, gotB uint32
	addr := table.RegisterStdcall("AddTwo", 2, func(c *CPU_X86) error {
		gotA = StackArg(c, 0)
		gotB = StackArg(c, 1)
		c.EAX = gotA + gotB
		return nil
	})
	require.NoError(t, table.Install(cpu, nil))

	// PUSH 7; PUSH 5; MOV EAX, addr; CALL EAX; HLT
	code := []byte{0x6A, 0x07, 0x6A, 0x05, 0xB8}
	code = append(code, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
	code = append(code, 0xFF, 0xD0, 0xF4)
	mem.Load(0x1000, code)
	cpu.EIP = 0x1000

	_, err := cpu.Run(0)
	require.NoError(t, err)
	assert.True(t, cpu.Halted)
	// Arguments are read left to right, last push is the first argument.
	assert.Equal(t, uint32(5), gotA)
	assert.Equal(t, uint32(7), gotB)
	assert.Equal(t, uint32(12), cpu.EAX)
	// Stdcall: the stub's RET popped both arguments.
	assert.Equal(t, uint32(0x8000), cpu.ESP)
}

func TestImportTable_CdeclLeavesArgs(t *testing.T) {
	mem := NewMemory(0x10000)
	cpu := NewCPU_X86(mem)
	cpu.ESP = 0x8000

	table := NewImportTable(0xF000)
	addr := table.Register("Identity", func(c *CPU_X86) error {
		c.EAX = StackArg(c, 0)
		return nil
	})
	require.NoError(t, table.Install(cpu, nil))

	// PUSH 9; MOV EAX, addr; CALL EAX; HLT
	code := []byte{0x6A, 0x09, 0xB8}
	code = append(code, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
	code = append(code, 0xFF, 0xD0, 0xF4)
	mem.Load(0x1000, code)
	cpu.EIP = 0x1000

	_, err := cpu.Run(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), cpu.EAX)
	// Cdecl: the caller owns the argument, still on the stack.
	assert.Equal(t, uint32(0x8000-4), cpu.ESP)
}

func TestImportTable_Address(t *testing.T) {
	table := NewImportTable(0xF000)
	a1 := table.Register("First", nil)
	a2 := table.Register("Second", nil)
	assert.Equal(t, uint32(0xF000), a1)
	assert.Equal(t, uint32(0xF008), a2)

	got, ok := table.Address("Second")
	assert.True(t, ok)
	assert.Equal(t, a2, got)

	_, ok = table.Address("Missing")
	assert.False(t, ok)

	// Re-registering keeps the address stable.
	again := table.Register("First", func(c *CPU_X86) error { return nil })
	assert.Equal(t, a1, again)
}

func TestImportTable_FallbackInterrupt(t *testing.T) {
	mem := NewMemory(0x10000)
	cpu := NewCPU_X86(mem)
	cpu.ESP = 0x8000

	table := NewImportTable(0xF000)
	var sawVector byte
	require.NoError(t, table.Install(cpu, func(c *CPU_X86, vector byte) error {
		sawVector = vector
		return nil
	}))

	mem.Load(0x1000, []byte{0xCD, 0x21, 0xF4}) // INT 0x21; HLT
	cpu.EIP = 0x1000
	_, err := cpu.Run(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x21), sawVector)
}

func TestImportTable_StrayServiceInterrupt(t *testing.T) {
	mem := NewMemory(0x10000)
	cpu := NewCPU_X86(mem)
	cpu.ESP = 0x8000

	table := NewImportTable(0xF000)
	table.Register("Something", func(c *CPU_X86) error { return nil })
	require.NoError(t, table.Install(cpu, nil))

	// INT 0x2D from code that is not an import stub.
	mem.Load(0x1000, []byte{0xCD, 0x2D})
	cpu.EIP = 0x1000
	err := cpu.Step()
	require.Error(t, err)
	f, ok := err.(*Fault)
	require.True(t, ok)
	assert.Equal(t, FaultInterrupt, f.Kind)
}

func TestThreadBlock_Resolve(t *testing.T) {
	tb := &ThreadBlock{Base: 0x7000, Size: 0x1000}

	lin, err := tb.ResolveFS(0x18)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7018), lin)

	_, err = tb.ResolveFS(0x1000)
	assert.Error(t, err)

	_, err = tb.ResolveGS(0)
	assert.Error(t, err)

	// Size 0 means unbounded.
	unbounded := &ThreadBlock{Base: 0x7000}
	lin, err = unbounded.ResolveFS(0x123456)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7000+0x123456), lin)
}

func TestWin32Env_ConsoleWriteAndExit(t *testing.T) {
	mem := NewMemory(0x20000)
	cpu := NewCPU_X86(mem)
	cpu.ESP = 0x8000

	console := NewConsole()
	env := NewWin32Env(console, NewFileHost(t.TempDir()))
	table := NewImportTable(0x1F000)
	env.RegisterDefaults(table)
	require.NoError(t, table.Install(cpu, nil))

	writeFile, ok := table.Address("WriteFile")
	require.True(t, ok)
	exitProcess, ok := table.Address("ExitProcess")
	require.True(t, ok)

	mem.Load(0x3000, []byte("hi"))

	// WriteFile(stdout, 0x3000, 2, 0x4000, 0) then ExitProcess(0)
	var code []byte
	push := func(v uint32) {
		code = append(code, 0x68, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	push(0)                 // lpOverlapped
	push(0x4000)            // lpNumberOfBytesWritten
	push(2)                 // nNumberOfBytesToWrite
	push(0x3000)            // lpBuffer
	push(consoleOutHandle)  // hFile
	code = append(code, 0xB8, byte(writeFile), byte(writeFile>>8), byte(writeFile>>16), byte(writeFile>>24))
	code = append(code, 0xFF, 0xD0) // CALL EAX
	push(0)                         // exit code
	code = append(code, 0xB8, byte(exitProcess), byte(exitProcess>>8), byte(exitProcess>>16), byte(exitProcess>>24))
	code = append(code, 0xFF, 0xD0) // CALL EAX
	mem.Load(0x1000, code)
	cpu.EIP = 0x1000

	_, err := cpu.Run(0)
	require.NoError(t, err)
	assert.True(t, env.Exited)
	assert.Equal(t, uint32(0), env.ExitCode)
	assert.Equal(t, "hi", console.DrainOutput())
	assert.Equal(t, uint32(2), mem.Read32(0x4000))
}

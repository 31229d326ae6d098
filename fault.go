// fault.go - CPU fault values raised during instruction execution

package main

import "fmt"

// FaultKind classifies why execution of an instruction could not complete.
type FaultKind int

const (
	// FaultMemory is an access outside the bounds of emulated memory.
	FaultMemory FaultKind = iota
	// FaultDecode is an opcode or ModRM extension the CPU does not implement.
	FaultDecode
	// FaultDivide is a DIV/IDIV divide-by-zero or quotient overflow.
	FaultDivide
	// FaultInterrupt is an INT/INT3/INTO with no interrupt handler installed.
	FaultInterrupt
	// FaultSegment is an FS/GS-relative access with no segment resolver.
	FaultSegment
)

func (k FaultKind) String() string {
	switch k {
	case FaultMemory:
		return "memory"
	case FaultDecode:
		return "decode"
	case FaultDivide:
		return "divide"
	case FaultInterrupt:
		return "interrupt"
	case FaultSegment:
		return "segment"
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Fault describes an execution fault. For memory faults Addr holds the
// offending address. EIP is filled in by the CPU with the address of the
// instruction that faulted, not the fetch position at fault time.
type Fault struct {
	Kind FaultKind
	Addr uint32
	EIP  uint32
	Msg  string
}

func (f *Fault) Error() string {
	if f.Kind == FaultMemory {
		return fmt.Sprintf("%s fault at EIP=%08X: %s (address %08X)", f.Kind, f.EIP, f.Msg, f.Addr)
	}
	return fmt.Sprintf("%s fault at EIP=%08X: %s", f.Kind, f.EIP, f.Msg)
}

// raise aborts the current instruction. The panic is recovered at the
// Step boundary and converted into the returned error, so handlers never
// observe partially applied writes past the faulting access.
func raise(kind FaultKind, addr uint32, format string, args ...interface{}) {
	panic(&Fault{Kind: kind, Addr: addr, Msg: fmt.Sprintf(format, args...)})
}

func raiseDecode(format string, args ...interface{}) {
	raise(FaultDecode, 0, format, args...)
}

// cpu_x86_string.go - x86 string instructions (MOVS/STOS/LODS/SCAS/CMPS)
//
// REP-prefixed forms use ECX as the iteration count; ECX=0 executes zero
// iterations, including for REPE/REPNE CMPS and SCAS. Pointers advance by
// the operand width, down when the Direction flag is set.

// Portions derived from the IntuitionEngine x86 core
// (https://github.com/IntuitionAmiga/IntuitionEngine)
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func (c *CPU_X86) stringDirection() int32 {
	if c.DF() {
		return -1
	}
	return 1
}

// repCount returns the number of iterations for the active REP prefix,
// or 1 when unprefixed.
func (c *CPU_X86) repCount() uint32 {
	if c.prefixRep > 0 {
		return c.ECX
	}
	return 1
}

// repeDone reports whether a REPE/REPNE loop should stop after a compare.
func (c *CPU_X86) repeDone() bool {
	return (c.prefixRep == 1 && !c.ZF()) || (c.prefixRep == 2 && c.ZF())
}

func (c *CPU_X86) opMOVSB() {
	src := c.ESI
	dst := c.EDI
	delta := c.stringDirection()

	for count := c.repCount(); count > 0; count-- {
		c.write8(dst, c.read8(src))
		src = uint32(int32(src) + delta)
		dst = uint32(int32(dst) + delta)
		c.Cycles++
	}

	c.ESI = src
	c.EDI = dst
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opMOVSW() {
	src := c.ESI
	dst := c.EDI
	var delta int32
	if c.prefixOpSize {
		delta = c.stringDirection() * 2
	} else {
		delta = c.stringDirection() * 4
	}

	for count := c.repCount(); count > 0; count-- {
		if c.prefixOpSize {
			c.write16(dst, c.read16(src))
		} else {
			c.write32(dst, c.read32(src))
		}
		src = uint32(int32(src) + delta)
		dst = uint32(int32(dst) + delta)
		c.Cycles++
	}

	c.ESI = src
	c.EDI = dst
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opSTOSB() {
	dst := c.EDI
	delta := c.stringDirection()

	for count := c.repCount(); count > 0; count-- {
		c.write8(dst, c.AL())
		dst = uint32(int32(dst) + delta)
		c.Cycles++
	}

	c.EDI = dst
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opSTOSW() {
	dst := c.EDI
	var delta int32
	if c.prefixOpSize {
		delta = c.stringDirection() * 2
	} else {
		delta = c.stringDirection() * 4
	}

	for count := c.repCount(); count > 0; count-- {
		if c.prefixOpSize {
			c.write16(dst, c.AX())
		} else {
			c.write32(dst, c.EAX)
		}
		dst = uint32(int32(dst) + delta)
		c.Cycles++
	}

	c.EDI = dst
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opLODSB() {
	src := c.ESI
	delta := c.stringDirection()

	for count := c.repCount(); count > 0; count-- {
		c.SetAL(c.read8(src))
		src = uint32(int32(src) + delta)
		c.Cycles++
	}

	c.ESI = src
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opLODSW() {
	src := c.ESI
	var delta int32
	if c.prefixOpSize {
		delta = c.stringDirection() * 2
	} else {
		delta = c.stringDirection() * 4
	}

	for count := c.repCount(); count > 0; count-- {
		if c.prefixOpSize {
			c.SetAX(c.read16(src))
		} else {
			c.EAX = c.read32(src)
		}
		src = uint32(int32(src) + delta)
		c.Cycles++
	}

	c.ESI = src
	if c.prefixRep > 0 {
		c.ECX = 0
	}
}

func (c *CPU_X86) opCMPSB() {
	src := c.ESI
	dst := c.EDI
	delta := c.stringDirection()

	for c.prefixRep == 0 || c.ECX != 0 {
		a := c.read8(src)
		b := c.read8(dst)
		result := uint16(a) - uint16(b)
		c.setFlagsArith8(result, a, b, true)

		src = uint32(int32(src) + delta)
		dst = uint32(int32(dst) + delta)
		c.Cycles++

		if c.prefixRep == 0 {
			break
		}
		c.ECX--
		if c.repeDone() {
			break
		}
	}

	c.ESI = src
	c.EDI = dst
}

func (c *CPU_X86) opCMPSW() {
	src := c.ESI
	dst := c.EDI
	var delta int32
	if c.prefixOpSize {
		delta = c.stringDirection() * 2
	} else {
		delta = c.stringDirection() * 4
	}

	for c.prefixRep == 0 || c.ECX != 0 {
		if c.prefixOpSize {
			a := c.read16(src)
			b := c.read16(dst)
			result := uint32(a) - uint32(b)
			c.setFlagsArith16(result, a, b, true)
		} else {
			a := c.read32(src)
			b := c.read32(dst)
			result := uint64(a) - uint64(b)
			c.setFlagsArith32(result, a, b, true)
		}

		src = uint32(int32(src) + delta)
		dst = uint32(int32(dst) + delta)
		c.Cycles++

		if c.prefixRep == 0 {
			break
		}
		c.ECX--
		if c.repeDone() {
			break
		}
	}

	c.ESI = src
	c.EDI = dst
}

func (c *CPU_X86) opSCASB() {
	dst := c.EDI
	delta := c.stringDirection()

	for c.prefixRep == 0 || c.ECX != 0 {
		a := c.AL()
		b := c.read8(dst)
		result := uint16(a) - uint16(b)
		c.setFlagsArith8(result, a, b, true)

		dst = uint32(int32(dst) + delta)
		c.Cycles++

		if c.prefixRep == 0 {
			break
		}
		c.ECX--
		if c.repeDone() {
			break
		}
	}

	c.EDI = dst
}

func (c *CPU_X86) opSCASW() {
	dst := c.EDI
	var delta int32
	if c.prefixOpSize {
		delta = c.stringDirection() * 2
	} else {
		delta = c.stringDirection() * 4
	}

	for c.prefixRep == 0 || c.ECX != 0 {
		if c.prefixOpSize {
			a := c.AX()
			b := c.read16(dst)
			result := uint32(a) - uint32(b)
			c.setFlagsArith16(result, a, b, true)
		} else {
			a := c.EAX
			b := c.read32(dst)
			result := uint64(a) - uint64(b)
			c.setFlagsArith32(result, a, b, true)
		}

		dst = uint32(int32(dst) + delta)
		c.Cycles++

		if c.prefixRep == 0 {
			break
		}
		c.ECX--
		if c.repeDone() {
			break
		}
	}

	c.EDI = dst
}

// Package cpu implements the Sharp LR35902 interpreter.
package cpu

import (
	"fmt"

	"github.com/hexaflex/dmgtest/arch"
	"github.com/hexaflex/dmgtest/bus"
)

// StepResult describes what a single execution step observed.
type StepResult int

// Known step results.
const (
	Ok            StepResult = iota // Nothing noteworthy happened.
	BreakpointB                     // A ld b,b instruction was executed.
	BreakpointD                     // A ld d,d instruction was executed.
	UnknownOpcode                   // A hardware-undefined opcode was fetched; PC was not advanced.
)

// CPU holds the register file and drives fetch-decode-execute against a
// memory bus. Cycles counts elapsed T-cycles (four per machine cycle).
type CPU struct {
	A, F   byte
	B, C   byte
	D, E   byte
	H, L   byte
	SP, PC uint16
	IME    bool
	Halted bool
	Cycles uint64
	bus    *bus.Bus
}

// New creates a CPU with a zeroed register file attached to the given bus.
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b}
}

// Bus returns the memory bus the CPU executes against.
func (c *CPU) Bus() *bus.Bus {
	return c.bus
}

// Paired register views. The pairs are composites of the byte
// registers; they are not stored separately.

func (c *CPU) AF() uint16 { return uint16(c.A)<<8 | uint16(c.F) }
func (c *CPU) BC() uint16 { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) DE() uint16 { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) HL() uint16 { return uint16(c.H)<<8 | uint16(c.L) }

// SetAF sets A and F. The low nibble of F does not exist in hardware
// and is discarded.
func (c *CPU) SetAF(v uint16) {
	c.A = byte(v >> 8)
	c.F = byte(v) & arch.FlagMask
}

func (c *CPU) SetBC(v uint16) { c.B, c.C = byte(v>>8), byte(v) }
func (c *CPU) SetDE(v uint16) { c.D, c.E = byte(v>>8), byte(v) }
func (c *CPU) SetHL(v uint16) { c.H, c.L = byte(v>>8), byte(v) }

func (c *CPU) flagZ() bool { return c.F&arch.FlagZ != 0 }
func (c *CPU) flagN() bool { return c.F&arch.FlagN != 0 }
func (c *CPU) flagH() bool { return c.F&arch.FlagH != 0 }
func (c *CPU) flagC() bool { return c.F&arch.FlagC != 0 }

func (c *CPU) setFlag(bit byte, v bool) {
	if v {
		c.F |= bit
	} else {
		c.F &^= bit
	}
}

func (c *CPU) setFlagZ(v bool) { c.setFlag(arch.FlagZ, v) }
func (c *CPU) setFlagN(v bool) { c.setFlag(arch.FlagN, v) }
func (c *CPU) setFlagH(v bool) { c.setFlag(arch.FlagH, v) }
func (c *CPU) setFlagC(v bool) { c.setFlag(arch.FlagC, v) }

// SetFlags sets all four flags at once. The low nibble stays zero.
func (c *CPU) SetFlags(z, n, h, carry bool) {
	c.F = 0
	c.setFlagZ(z)
	c.setFlagN(n)
	c.setFlagH(h)
	c.setFlagC(carry)
}

// tick accounts for one machine cycle.
func (c *CPU) tick() {
	c.Cycles += 4
}

// read performs a timed bus read.
func (c *CPU) read(addr uint16) byte {
	c.tick()
	return c.bus.Read(addr)
}

// write performs a timed bus write.
func (c *CPU) write(addr uint16, value byte) {
	c.tick()
	c.bus.Write(addr, value)
}

// readPC fetches the byte at PC and advances it. PC wraps modulo 2^16.
func (c *CPU) readPC() byte {
	v := c.read(c.PC)
	c.PC++
	return v
}

// getR8 reads the 8-bit operand with the given encoding id.
// Id 6 dereferences [hl] and costs an extra machine cycle.
func (c *CPU) getR8(id byte) byte {
	switch id {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read(c.HL())
	default:
		return c.A
	}
}

// setR8 writes the 8-bit operand with the given encoding id.
func (c *CPU) setR8(id, value byte) {
	switch id {
	case 0:
		c.B = value
	case 1:
		c.C = value
	case 2:
		c.D = value
	case 3:
		c.E = value
	case 4:
		c.H = value
	case 5:
		c.L = value
	case 6:
		c.write(c.HL(), value)
	default:
		c.A = value
	}
}

// getR16 reads the 16-bit register with the given encoding id, where
// id 3 selects SP.
func (c *CPU) getR16(id byte) uint16 {
	switch id {
	case 0:
		return c.BC()
	case 1:
		return c.DE()
	case 2:
		return c.HL()
	default:
		return c.SP
	}
}

func (c *CPU) setR16(id byte, value uint16) {
	switch id {
	case 0:
		c.SetBC(value)
	case 1:
		c.SetDE(value)
	case 2:
		c.SetHL(value)
	default:
		c.SP = value
	}
}

// cond evaluates the branch condition with the given encoding id:
// nz, z, nc, c.
func (c *CPU) cond(id byte) bool {
	switch id & 3 {
	case 0:
		return !c.flagZ()
	case 1:
		return c.flagZ()
	case 2:
		return !c.flagC()
	default:
		return c.flagC()
	}
}

// Push16 stores a 16-bit value on the stack for test setup, high byte
// first. It does not consume cycles.
func (c *CPU) Push16(value uint16) {
	c.SP--
	c.bus.Write(c.SP, byte(value>>8))
	c.SP--
	c.bus.Write(c.SP, byte(value))
}

// Pop16 removes a 16-bit value from the stack without consuming cycles.
func (c *CPU) Pop16() uint16 {
	lo := c.bus.Read(c.SP)
	c.SP++
	hi := c.bus.Read(c.SP)
	c.SP++
	return uint16(hi)<<8 | uint16(lo)
}

// pushWord is the timed push used by call, rst and push rr.
func (c *CPU) pushWord(value uint16) {
	c.tick()
	c.SP--
	c.write(c.SP, byte(value>>8))
	c.SP--
	c.write(c.SP, byte(value))
}

// popWord is the timed pop used by ret and pop rr.
func (c *CPU) popWord() uint16 {
	lo := c.read(c.SP)
	c.SP++
	hi := c.read(c.SP)
	c.SP++
	return uint16(hi)<<8 | uint16(lo)
}

// Step fetches and executes one instruction. A halted CPU stays put but
// keeps accruing cycles; without interrupt dispatch only the driver's
// timeout gets it unstuck.
func (c *CPU) Step() StepResult {
	if c.Halted {
		c.tick()
		return Ok
	}

	opcode := c.readPC()
	if arch.IsIllegal(opcode) {
		c.PC--
		return UnknownOpcode
	}

	switch opcode {
	case 0x00: // nop

	case 0x01, 0x11, 0x21, 0x31: // ld rr, d16
		lo := c.readPC()
		hi := c.readPC()
		c.setR16(opcode>>4, uint16(hi)<<8|uint16(lo))

	case 0x02: // ld [bc], a
		c.write(c.BC(), c.A)
	case 0x12: // ld [de], a
		c.write(c.DE(), c.A)
	case 0x0a: // ld a, [bc]
		c.A = c.read(c.BC())
	case 0x1a: // ld a, [de]
		c.A = c.read(c.DE())

	case 0x22: // ld [hl+], a
		c.write(c.HL(), c.A)
		c.SetHL(c.HL() + 1)
	case 0x32: // ld [hl-], a
		c.write(c.HL(), c.A)
		c.SetHL(c.HL() - 1)
	case 0x2a: // ld a, [hl+]
		c.A = c.read(c.HL())
		c.SetHL(c.HL() + 1)
	case 0x3a: // ld a, [hl-]
		c.A = c.read(c.HL())
		c.SetHL(c.HL() - 1)

	case 0x03, 0x13, 0x23, 0x33: // inc rr
		c.tick()
		c.setR16(opcode>>4, c.getR16(opcode>>4)+1)
	case 0x0b, 0x1b, 0x2b, 0x3b: // dec rr
		c.tick()
		c.setR16(opcode>>4, c.getR16(opcode>>4)-1)

	case 0x04, 0x0c, 0x14, 0x1c, 0x24, 0x2c, 0x34, 0x3c: // inc r8
		id := opcode >> 3
		v := c.getR8(id) + 1
		c.setR8(id, v)
		c.setFlagZ(v == 0)
		c.setFlagN(false)
		c.setFlagH(v&0xf == 0)
	case 0x05, 0x0d, 0x15, 0x1d, 0x25, 0x2d, 0x35, 0x3d: // dec r8
		id := opcode >> 3
		v := c.getR8(id) - 1
		c.setR8(id, v)
		c.setFlagZ(v == 0)
		c.setFlagN(true)
		c.setFlagH(v&0xf == 0xf)

	case 0x06, 0x0e, 0x16, 0x1e, 0x26, 0x2e, 0x36, 0x3e: // ld r8, d8
		c.setR8(opcode>>3, c.readPC())

	case 0x07: // rlca
		c.rlc(7)
		c.setFlagZ(false)
	case 0x0f: // rrca
		c.rrc(7)
		c.setFlagZ(false)
	case 0x17: // rla
		c.rl(7)
		c.setFlagZ(false)
	case 0x1f: // rra
		c.rr(7)
		c.setFlagZ(false)

	case 0x08: // ld [a16], sp
		lo := c.readPC()
		hi := c.readPC()
		addr := uint16(hi)<<8 | uint16(lo)
		c.write(addr, byte(c.SP))
		c.write(addr+1, byte(c.SP>>8))

	case 0x09, 0x19, 0x29, 0x39: // add hl, rr
		c.addHL(c.getR16(opcode >> 4))

	case 0x10: // stop: second byte is skipped without a fetch cycle
		c.PC++

	case 0x18: // jr e8
		c.jr(true)
	case 0x20, 0x28, 0x30, 0x38: // jr cc, e8
		c.jr(c.cond(opcode >> 3 & 3))

	case 0x27: // daa
		c.daa()
	case 0x2f: // cpl
		c.A = ^c.A
		c.setFlagN(true)
		c.setFlagH(true)
	case 0x37: // scf
		c.setFlagN(false)
		c.setFlagH(false)
		c.setFlagC(true)
	case 0x3f: // ccf
		c.setFlagN(false)
		c.setFlagH(false)
		c.setFlagC(!c.flagC())

	case 0x76: // halt
		c.Halted = true

	case 0xc6: // add a, d8
		c.add(c.readPC(), false)
	case 0xce: // adc a, d8
		c.add(c.readPC(), c.flagC())
	case 0xd6: // sub a, d8
		c.sub(c.readPC(), false)
	case 0xde: // sbc a, d8
		c.sub(c.readPC(), c.flagC())
	case 0xe6: // and a, d8
		c.and(c.readPC())
	case 0xee: // xor a, d8
		c.xor(c.readPC())
	case 0xf6: // or a, d8
		c.or(c.readPC())
	case 0xfe: // cp a, d8
		c.cp(c.readPC())

	case 0xc0, 0xc8, 0xd0, 0xd8: // ret cc
		c.tick()
		if c.cond(opcode >> 3 & 3) {
			c.PC = c.popWord()
			c.tick()
		}
	case 0xc9: // ret
		c.PC = c.popWord()
		c.tick()
	case 0xd9: // reti
		c.PC = c.popWord()
		c.tick()
		c.IME = true

	case 0xc1, 0xd1, 0xe1: // pop rr
		c.setR16(opcode>>4&3, c.popWord())
	case 0xf1: // pop af
		c.SetAF(c.popWord())

	case 0xc5, 0xd5, 0xe5: // push rr
		c.pushWord(c.getR16(opcode >> 4 & 3))
	case 0xf5: // push af
		c.pushWord(c.AF())

	case 0xc3: // jp a16
		c.jp(true)
	case 0xc2, 0xca, 0xd2, 0xda: // jp cc, a16
		c.jp(c.cond(opcode >> 3 & 3))
	case 0xe9: // jp hl
		c.PC = c.HL()

	case 0xcd: // call a16
		c.call(true)
	case 0xc4, 0xcc, 0xd4, 0xdc: // call cc, a16
		c.call(c.cond(opcode >> 3 & 3))

	case 0xc7, 0xcf, 0xd7, 0xdf, 0xe7, 0xef, 0xf7, 0xff: // rst
		c.pushWord(c.PC)
		c.PC = uint16(opcode & 0x38)

	case 0xcb:
		c.stepCB()

	case 0xe0: // ldh [a8], a
		c.write(0xff00+uint16(c.readPC()), c.A)
	case 0xf0: // ldh a, [a8]
		c.A = c.read(0xff00 + uint16(c.readPC()))
	case 0xe2: // ldh [c], a
		c.write(0xff00+uint16(c.C), c.A)
	case 0xf2: // ldh a, [c]
		c.A = c.read(0xff00 + uint16(c.C))

	case 0xea: // ld [a16], a
		lo := c.readPC()
		hi := c.readPC()
		c.write(uint16(hi)<<8|uint16(lo), c.A)
	case 0xfa: // ld a, [a16]
		lo := c.readPC()
		hi := c.readPC()
		c.A = c.read(uint16(hi)<<8 | uint16(lo))

	case 0xe8: // add sp, e8
		c.SP = c.addSP(int8(c.readPC()))
		c.tick()
		c.tick()
	case 0xf8: // ld hl, sp+e8
		c.SetHL(c.addSP(int8(c.readPC())))
		c.tick()
	case 0xf9: // ld sp, hl
		c.tick()
		c.SP = c.HL()

	case 0xf3: // di
		c.IME = false
	case 0xfb: // ei
		c.IME = true

	default:
		switch {
		case opcode >= 0x40 && opcode < 0x80: // ld r8, r8
			c.setR8(opcode>>3&7, c.getR8(opcode&7))
			switch opcode {
			case arch.BreakOpcodeB:
				return BreakpointB
			case arch.BreakOpcodeD:
				return BreakpointD
			}
		default: // 0x80-0xbf: alu a, r8
			c.alu(opcode>>3&7, c.getR8(opcode&7))
		}
	}

	return Ok
}

// alu dispatches the arithmetic block by its encoding id.
func (c *CPU) alu(op, operand byte) {
	switch op {
	case 0:
		c.add(operand, false)
	case 1:
		c.add(operand, c.flagC())
	case 2:
		c.sub(operand, false)
	case 3:
		c.sub(operand, c.flagC())
	case 4:
		c.and(operand)
	case 5:
		c.xor(operand)
	case 6:
		c.or(operand)
	default:
		c.cp(operand)
	}
}

func (c *CPU) add(operand byte, carry bool) {
	var ci byte
	if carry {
		ci = 1
	}
	r := uint16(c.A) + uint16(operand) + uint16(ci)
	c.setFlagH(c.A&0xf+operand&0xf+ci > 0xf)
	c.setFlagC(r > 0xff)
	c.A = byte(r)
	c.setFlagZ(c.A == 0)
	c.setFlagN(false)
}

func (c *CPU) sub(operand byte, carry bool) {
	var ci byte
	if carry {
		ci = 1
	}
	r := int16(c.A) - int16(operand) - int16(ci)
	c.setFlagH(uint16(c.A&0xf) < uint16(operand&0xf)+uint16(ci))
	c.setFlagC(r < 0)
	c.A = byte(r)
	c.setFlagZ(c.A == 0)
	c.setFlagN(true)
}

func (c *CPU) and(operand byte) {
	c.A &= operand
	c.SetFlags(c.A == 0, false, true, false)
}

func (c *CPU) xor(operand byte) {
	c.A ^= operand
	c.SetFlags(c.A == 0, false, false, false)
}

func (c *CPU) or(operand byte) {
	c.A |= operand
	c.SetFlags(c.A == 0, false, false, false)
}

func (c *CPU) cp(operand byte) {
	r := c.A - operand
	c.setFlagH(c.A&0xf < operand&0xf)
	c.setFlagC(c.A < operand)
	c.setFlagZ(r == 0)
	c.setFlagN(true)
}

func (c *CPU) addHL(operand uint16) {
	c.tick()
	r := uint32(c.HL()) + uint32(operand)
	c.setFlagN(false)
	c.setFlagH(c.HL()&0xfff+operand&0xfff > 0xfff)
	c.setFlagC(r > 0xffff)
	c.SetHL(uint16(r))
}

// addSP computes SP plus a signed offset. Both flavors (add sp and
// ld hl, sp+e8) carry out of bits 3 and 7 of the unsigned low byte.
func (c *CPU) addSP(offset int8) uint16 {
	off := uint16(offset)
	c.setFlagZ(false)
	c.setFlagN(false)
	c.setFlagH(c.SP&0xf+off&0xf > 0xf)
	c.setFlagC(c.SP&0xff+off&0xff > 0xff)
	return c.SP + off
}

func (c *CPU) daa() {
	a := c.A
	if c.flagN() {
		if c.flagC() {
			a -= 0x60
		}
		if c.flagH() {
			a -= 0x06
		}
	} else {
		if c.flagC() || c.A > 0x99 {
			a += 0x60
			c.setFlagC(true)
		}
		if c.flagH() || c.A&0xf > 0x09 {
			a += 0x06
		}
	}
	c.A = a
	c.setFlagZ(a == 0)
	c.setFlagH(false)
}

func (c *CPU) jr(taken bool) {
	offset := int8(c.readPC())
	if taken {
		c.PC = uint16(int32(c.PC) + int32(offset))
		c.tick()
	}
}

func (c *CPU) jp(taken bool) {
	lo := c.readPC()
	hi := c.readPC()
	if taken {
		c.PC = uint16(hi)<<8 | uint16(lo)
		c.tick()
	}
}

func (c *CPU) call(taken bool) {
	lo := c.readPC()
	hi := c.readPC()
	if taken {
		c.pushWord(c.PC)
		c.PC = uint16(hi)<<8 | uint16(lo)
	}
}

// String renders the register file on one line, in the shape the
// breakpoint trace and failure diagnostics use.
func (c *CPU) String() string {
	return fmt.Sprintf("af=%04x bc=%04x de=%04x hl=%04x sp=%04x pc=%04x [%s] cycles=%d",
		c.AF(), c.BC(), c.DE(), c.HL(), c.SP, c.PC, c.flagString(), c.Cycles)
}

func (c *CPU) flagString() string {
	buf := []byte{'-', '-', '-', '-'}
	if c.flagZ() {
		buf[0] = 'z'
	}
	if c.flagN() {
		buf[1] = 'n'
	}
	if c.flagH() {
		buf[2] = 'h'
	}
	if c.flagC() {
		buf[3] = 'c'
	}
	return string(buf)
}

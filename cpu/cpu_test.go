package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexaflex/dmgtest/arch"
	"github.com/hexaflex/dmgtest/bus"
)

// testCPU assembles the given bytes at 0x0000 and returns a CPU ready
// to execute them, with SP parked at the customary 0xFFFE.
func testCPU(code ...byte) *CPU {
	b := bus.New()
	b.LoadROM(code)
	c := New(b)
	c.SP = 0xfffe
	return c
}

func step(t *testing.T, c *CPU, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		assert.Equal(t, Ok, c.Step())
	}
}

func TestNOP(t *testing.T) {
	c := testCPU(0x00)
	step(t, c, 1)

	assert.Equal(t, uint16(1), c.PC)
	assert.Equal(t, uint64(4), c.Cycles)
}

func TestLoadImmediate8(t *testing.T) {
	c := testCPU(0x3e, 0x12, 0x06, 0x34) // ld a, $12 / ld b, $34
	step(t, c, 2)

	assert.Equal(t, byte(0x12), c.A)
	assert.Equal(t, byte(0x34), c.B)
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestLoadImmediate16(t *testing.T) {
	c := testCPU(0x01, 0xcd, 0xab, 0x31, 0x00, 0xd0) // ld bc, $abcd / ld sp, $d000
	step(t, c, 2)

	assert.Equal(t, uint16(0xabcd), c.BC())
	assert.Equal(t, byte(0xab), c.B)
	assert.Equal(t, byte(0xcd), c.C)
	assert.Equal(t, uint16(0xd000), c.SP)
	assert.Equal(t, uint64(24), c.Cycles)
}

func TestLoadRegister(t *testing.T) {
	c := testCPU(0x41) // ld b, c
	c.C = 0x7f
	step(t, c, 1)

	assert.Equal(t, byte(0x7f), c.B)
	assert.Equal(t, uint64(4), c.Cycles)
}

func TestLoadHLIndirect(t *testing.T) {
	c := testCPU(0x77, 0x7e) // ld [hl], a / ld a, [hl]
	c.SetHL(0xc123)
	c.A = 0x99
	step(t, c, 1)

	assert.Equal(t, byte(0x99), c.Bus().Read(0xc123))
	assert.Equal(t, uint64(8), c.Cycles)

	c.A = 0
	step(t, c, 1)
	assert.Equal(t, byte(0x99), c.A)
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestLoadHLIncDec(t *testing.T) {
	c := testCPU(0x22, 0x3a) // ld [hl+], a / ld a, [hl-]
	c.SetHL(0xc000)
	c.A = 0x42
	step(t, c, 1)

	assert.Equal(t, byte(0x42), c.Bus().Read(0xc000))
	assert.Equal(t, uint16(0xc001), c.HL())

	c.Bus().Write(0xc001, 0x17)
	step(t, c, 1)
	assert.Equal(t, byte(0x17), c.A)
	assert.Equal(t, uint16(0xc000), c.HL())
}

func TestLoadPairIndirect(t *testing.T) {
	c := testCPU(0x02, 0x1a) // ld [bc], a / ld a, [de]
	c.SetBC(0xc010)
	c.SetDE(0xc010)
	c.A = 0x5a
	step(t, c, 1)

	c.A = 0
	step(t, c, 1)
	assert.Equal(t, byte(0x5a), c.A)
}

func TestAddFlags(t *testing.T) {
	c := testCPU(0x80) // add a, b
	c.A, c.B = 5, 7
	step(t, c, 1)

	assert.Equal(t, byte(12), c.A)
	assert.Equal(t, byte(0), c.F)
}

func TestAddHalfCarry(t *testing.T) {
	c := testCPU(0xc6, 0x01) // add a, $01
	c.A = 0x0f
	step(t, c, 1)

	assert.Equal(t, byte(0x10), c.A)
	assert.Equal(t, byte(arch.FlagH), c.F)
}

func TestAddCarryOut(t *testing.T) {
	c := testCPU(0xc6, 0x01) // add a, $01
	c.A = 0xff
	step(t, c, 1)

	assert.Equal(t, byte(0), c.A)
	assert.Equal(t, byte(arch.FlagZ|arch.FlagH|arch.FlagC), c.F)
}

func TestAdcUsesCarry(t *testing.T) {
	c := testCPU(0xce, 0x00) // adc a, $00
	c.A = 0x10
	c.SetFlags(false, false, false, true)
	step(t, c, 1)

	assert.Equal(t, byte(0x11), c.A)
	assert.Equal(t, byte(0), c.F)
}

func TestSubFlags(t *testing.T) {
	c := testCPU(0x90) // sub a, b
	c.A, c.B = 5, 7
	step(t, c, 1)

	assert.Equal(t, byte(0xfe), c.A)
	assert.Equal(t, byte(arch.FlagN|arch.FlagH|arch.FlagC), c.F)
}

func TestSbcUsesCarry(t *testing.T) {
	c := testCPU(0xde, 0x00) // sbc a, $00
	c.A = 0x10
	c.SetFlags(false, false, false, true)
	step(t, c, 1)

	assert.Equal(t, byte(0x0f), c.A)
	assert.Equal(t, byte(arch.FlagN|arch.FlagH), c.F)
}

func TestCompare(t *testing.T) {
	c := testCPU(0xfe, 0x42) // cp a, $42
	c.A = 0x42
	step(t, c, 1)

	assert.Equal(t, byte(0x42), c.A)
	assert.Equal(t, byte(arch.FlagZ|arch.FlagN), c.F)
}

func TestAndOrXor(t *testing.T) {
	c := testCPU(0xe6, 0xf0, 0xf6, 0x0f, 0xaf) // and a, $f0 / or a, $0f / xor a, a
	c.A = 0x3c
	step(t, c, 1)
	assert.Equal(t, byte(0x30), c.A)
	assert.Equal(t, byte(arch.FlagH), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(0x3f), c.A)
	assert.Equal(t, byte(0), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(0), c.A)
	assert.Equal(t, byte(arch.FlagZ), c.F)
}

func TestIncDecPreserveCarry(t *testing.T) {
	c := testCPU(0x3c, 0x3d) // inc a / dec a
	c.SetFlags(false, false, false, true)
	c.A = 0xff
	step(t, c, 1)

	assert.Equal(t, byte(0), c.A)
	assert.Equal(t, byte(arch.FlagZ|arch.FlagH|arch.FlagC), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(0xff), c.A)
	assert.Equal(t, byte(arch.FlagN|arch.FlagH|arch.FlagC), c.F)
}

func TestIncDecHLIndirect(t *testing.T) {
	c := testCPU(0x34, 0x35) // inc [hl] / dec [hl]
	c.SetHL(0xc050)
	step(t, c, 1)

	assert.Equal(t, byte(1), c.Bus().Read(0xc050))
	assert.Equal(t, uint64(12), c.Cycles)

	step(t, c, 1)
	assert.Equal(t, byte(0), c.Bus().Read(0xc050))
}

func TestIncDec16(t *testing.T) {
	c := testCPU(0x03, 0x0b, 0x0b) // inc bc / dec bc / dec bc
	step(t, c, 1)
	assert.Equal(t, uint16(1), c.BC())
	assert.Equal(t, uint64(8), c.Cycles)
	assert.Equal(t, byte(0), c.F)

	step(t, c, 2)
	assert.Equal(t, uint16(0xffff), c.BC())
}

func TestAddHLFlags(t *testing.T) {
	c := testCPU(0x09) // add hl, bc
	c.SetHL(0x0fff)
	c.SetBC(0x0001)
	c.SetFlags(true, true, false, false)
	step(t, c, 1)

	assert.Equal(t, uint16(0x1000), c.HL())
	// Z survives, N clears, H carries out of bit 11.
	assert.Equal(t, byte(arch.FlagZ|arch.FlagH), c.F)
	assert.Equal(t, uint64(8), c.Cycles)
}

func TestJumpRelative(t *testing.T) {
	c := testCPU(0x18, 0x02, 0x00, 0x00, 0x18, 0xfa) // jr +2 ... jr -6
	step(t, c, 1)
	assert.Equal(t, uint16(4), c.PC)
	assert.Equal(t, uint64(12), c.Cycles)

	step(t, c, 1)
	assert.Equal(t, uint16(0), c.PC)
}

func TestJumpRelativeConditional(t *testing.T) {
	c := testCPU(0x20, 0x10) // jr nz, +16
	c.SetFlags(true, false, false, false)
	step(t, c, 1)

	// Not taken: fall through with the shorter timing.
	assert.Equal(t, uint16(2), c.PC)
	assert.Equal(t, uint64(8), c.Cycles)
}

func TestJumpAbsolute(t *testing.T) {
	c := testCPU(0xc3, 0x50, 0x01) // jp $0150
	step(t, c, 1)

	assert.Equal(t, uint16(0x0150), c.PC)
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestJumpAbsoluteNotTaken(t *testing.T) {
	c := testCPU(0xca, 0x50, 0x01) // jp z, $0150
	step(t, c, 1)

	assert.Equal(t, uint16(3), c.PC)
	assert.Equal(t, uint64(12), c.Cycles)
}

func TestJumpHL(t *testing.T) {
	c := testCPU(0xe9) // jp hl
	c.SetHL(0x0200)
	step(t, c, 1)

	assert.Equal(t, uint16(0x0200), c.PC)
	assert.Equal(t, uint64(4), c.Cycles)
}

func TestCallAndReturn(t *testing.T) {
	code := make([]byte, 0x40)
	code[0x00] = 0xcd // call $0020
	code[0x01] = 0x20
	code[0x03] = 0x00 // resume here after ret
	code[0x20] = 0xc9 // ret
	c := testCPU(code...)
	c.SP = 0xd000

	step(t, c, 1)
	assert.Equal(t, uint16(0x0020), c.PC)
	assert.Equal(t, uint16(0xcffe), c.SP)
	assert.Equal(t, uint16(0x0003), c.Bus().Read16(c.SP))
	assert.Equal(t, uint64(24), c.Cycles)

	step(t, c, 1)
	assert.Equal(t, uint16(0x0003), c.PC)
	assert.Equal(t, uint16(0xd000), c.SP)
	assert.Equal(t, uint64(24+16), c.Cycles)
}

func TestReturnConditional(t *testing.T) {
	c := testCPU(0xc0, 0xc0) // ret nz / ret nz
	c.SP = 0xd000
	c.Push16(0x0150)
	c.SetFlags(true, false, false, false)

	step(t, c, 1)
	assert.Equal(t, uint16(1), c.PC)
	assert.Equal(t, uint64(8), c.Cycles)

	c.SetFlags(false, false, false, false)
	step(t, c, 1)
	assert.Equal(t, uint16(0x0150), c.PC)
	assert.Equal(t, uint64(8+20), c.Cycles)
}

func TestPushPopRoundTrip(t *testing.T) {
	c := testCPU(0xc5, 0xd1) // push bc / pop de
	c.SP = 0xd000
	c.SetBC(0xbeef)
	step(t, c, 2)

	assert.Equal(t, uint16(0xbeef), c.DE())
	assert.Equal(t, uint16(0xd000), c.SP)
	assert.Equal(t, uint64(16+12), c.Cycles)
}

func TestPushStackLayout(t *testing.T) {
	c := testCPU(0xc5) // push bc
	c.SP = 0xd000
	c.SetBC(0xabcd)
	step(t, c, 1)

	assert.Equal(t, byte(0xab), c.Bus().Read(0xcfff))
	assert.Equal(t, byte(0xcd), c.Bus().Read(0xcffe))
}

func TestPopAFMasksLowNibble(t *testing.T) {
	c := testCPU(0xf1) // pop af
	c.SP = 0xd000
	c.Push16(0x12ff)
	step(t, c, 1)

	assert.Equal(t, byte(0x12), c.A)
	assert.Equal(t, byte(0xf0), c.F)
}

func TestRST(t *testing.T) {
	c := testCPU(0xef) // rst $28
	c.SP = 0xd000
	step(t, c, 1)

	assert.Equal(t, uint16(0x0028), c.PC)
	assert.Equal(t, uint16(0x0001), c.Bus().Read16(c.SP))
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestRotateAClearsZ(t *testing.T) {
	c := testCPU(0x07, 0x17, 0x0f, 0x1f) // rlca / rla / rrca / rra
	step(t, c, 4)

	// A stayed zero throughout, yet Z is forced clear.
	assert.Equal(t, byte(0), c.A)
	assert.Equal(t, byte(0), c.F)
}

func TestRotateACarry(t *testing.T) {
	c := testCPU(0x07) // rlca
	c.A = 0x80
	step(t, c, 1)

	assert.Equal(t, byte(0x01), c.A)
	assert.Equal(t, byte(arch.FlagC), c.F)
}

func TestRotateThroughCarry(t *testing.T) {
	c := testCPU(0x1f) // rra
	c.A = 0x01
	c.SetFlags(false, false, false, true)
	step(t, c, 1)

	assert.Equal(t, byte(0x80), c.A)
	assert.Equal(t, byte(arch.FlagC), c.F)
}

func TestCBRotates(t *testing.T) {
	c := testCPU(0xcb, 0x00, 0xcb, 0x38) // rlc b / srl b
	c.B = 0x81
	step(t, c, 1)

	assert.Equal(t, byte(0x03), c.B)
	assert.Equal(t, byte(arch.FlagC), c.F)
	assert.Equal(t, uint64(8), c.Cycles)

	step(t, c, 1)
	assert.Equal(t, byte(0x01), c.B)
	assert.Equal(t, byte(arch.FlagC), c.F)
}

func TestCBSwap(t *testing.T) {
	c := testCPU(0xcb, 0x37, 0xcb, 0x37) // swap a / swap a
	c.A = 0xf1
	step(t, c, 1)

	assert.Equal(t, byte(0x1f), c.A)
	assert.Equal(t, byte(0), c.F)

	c.A = 0
	step(t, c, 1)
	assert.Equal(t, byte(arch.FlagZ), c.F)
}

func TestCBShifts(t *testing.T) {
	c := testCPU(0xcb, 0x21, 0xcb, 0x2a) // sla c / sra d
	c.C = 0xc0
	c.D = 0x81
	step(t, c, 1)

	assert.Equal(t, byte(0x80), c.C)
	assert.True(t, c.flagC())

	step(t, c, 1)
	assert.Equal(t, byte(0xc0), c.D)
	assert.True(t, c.flagC())
}

func TestCBBit(t *testing.T) {
	c := testCPU(0xcb, 0x7f, 0xcb, 0x47) // bit 7, a / bit 0, a
	c.A = 0x80
	c.SetFlags(false, true, false, true)
	step(t, c, 1)

	// bit: Z from the tested bit, H set, N cleared, C untouched.
	assert.Equal(t, byte(arch.FlagH|arch.FlagC), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(arch.FlagZ|arch.FlagH|arch.FlagC), c.F)
}

func TestCBBitHLTiming(t *testing.T) {
	c := testCPU(0xcb, 0x46) // bit 0, [hl]
	c.SetHL(0xc000)
	step(t, c, 1)

	assert.Equal(t, uint64(12), c.Cycles)
}

func TestCBResSetHL(t *testing.T) {
	c := testCPU(0xcb, 0xfe, 0xcb, 0xbe) // set 7, [hl] / res 7, [hl]
	c.SetHL(0xc000)
	step(t, c, 1)

	assert.Equal(t, byte(0x80), c.Bus().Read(0xc000))
	assert.Equal(t, uint64(16), c.Cycles)

	step(t, c, 1)
	assert.Equal(t, byte(0x00), c.Bus().Read(0xc000))
}

func TestDAAAfterAdd(t *testing.T) {
	c := testCPU(0xc6, 0x27, 0x27) // add a, $27 / daa
	c.A = 0x15
	step(t, c, 2)

	assert.Equal(t, byte(0x42), c.A)
	assert.False(t, c.flagC())
	assert.False(t, c.flagH())
}

func TestDAAAfterSub(t *testing.T) {
	c := testCPU(0xd6, 0x06, 0x27) // sub a, $06 / daa
	c.A = 0x42
	step(t, c, 2)

	assert.Equal(t, byte(0x36), c.A)
}

func TestComplementAndCarryOps(t *testing.T) {
	c := testCPU(0x2f, 0x37, 0x3f) // cpl / scf / ccf
	c.A = 0x0f
	step(t, c, 1)
	assert.Equal(t, byte(0xf0), c.A)
	assert.Equal(t, byte(arch.FlagN|arch.FlagH), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(arch.FlagC), c.F)

	step(t, c, 1)
	assert.Equal(t, byte(0), c.F)
}

func TestLDHUsesHighPage(t *testing.T) {
	c := testCPU(0xe0, 0x80, 0xf0, 0x80) // ldh [$80], a / ldh a, [$80]
	c.A = 0x66
	step(t, c, 1)

	assert.Equal(t, byte(0x66), c.Bus().Read(0xff80))
	assert.Equal(t, uint64(12), c.Cycles)

	c.A = 0
	step(t, c, 1)
	assert.Equal(t, byte(0x66), c.A)
}

func TestLDHCRegister(t *testing.T) {
	c := testCPU(0xe2, 0xf2) // ldh [c], a / ldh a, [c]
	c.C = 0x81
	c.A = 0x12
	step(t, c, 1)

	assert.Equal(t, byte(0x12), c.Bus().Read(0xff81))
	assert.Equal(t, uint64(8), c.Cycles)
}

func TestLoadDirectA(t *testing.T) {
	c := testCPU(0xea, 0x00, 0xc0, 0xfa, 0x00, 0xc0) // ld [$c000], a / ld a, [$c000]
	c.A = 0x77
	step(t, c, 1)

	assert.Equal(t, byte(0x77), c.Bus().Read(0xc000))
	assert.Equal(t, uint64(16), c.Cycles)

	c.A = 0
	step(t, c, 1)
	assert.Equal(t, byte(0x77), c.A)
}

func TestStoreSPDirect(t *testing.T) {
	c := testCPU(0x08, 0x00, 0xc0) // ld [$c000], sp
	c.SP = 0xbeef
	step(t, c, 1)

	assert.Equal(t, uint16(0xbeef), c.Bus().Read16(0xc000))
	assert.Equal(t, uint64(20), c.Cycles)
}

func TestAddSPSigned(t *testing.T) {
	c := testCPU(0xe8, 0xfe) // add sp, -2
	c.SP = 0xd000
	step(t, c, 1)

	assert.Equal(t, uint16(0xcffe), c.SP)
	assert.Equal(t, uint64(16), c.Cycles)
	assert.False(t, c.flagZ())
}

func TestAddSPFlagsFromLowByte(t *testing.T) {
	c := testCPU(0xe8, 0x01) // add sp, +1
	c.SP = 0x00ff
	step(t, c, 1)

	assert.Equal(t, uint16(0x0100), c.SP)
	assert.True(t, c.flagH())
	assert.True(t, c.flagC())
}

func TestLoadHLSPOffset(t *testing.T) {
	c := testCPU(0xf8, 0x10) // ld hl, sp+$10
	c.SP = 0xcff0
	step(t, c, 1)

	assert.Equal(t, uint16(0xd000), c.HL())
	assert.Equal(t, uint16(0xcff0), c.SP)
	assert.Equal(t, uint64(12), c.Cycles)
}

func TestLoadSPHL(t *testing.T) {
	c := testCPU(0xf9) // ld sp, hl
	c.SetHL(0xd000)
	step(t, c, 1)

	assert.Equal(t, uint16(0xd000), c.SP)
	assert.Equal(t, uint64(8), c.Cycles)
}

func TestStopSkipsPaddingByte(t *testing.T) {
	c := testCPU(0x10, 0x00, 0x00) // stop
	step(t, c, 1)

	assert.Equal(t, uint16(2), c.PC)
	assert.Equal(t, uint64(4), c.Cycles)
	assert.False(t, c.Halted)
}

func TestHaltParksCPU(t *testing.T) {
	c := testCPU(0x76) // halt
	step(t, c, 1)

	assert.True(t, c.Halted)
	assert.Equal(t, uint16(1), c.PC)

	// Further steps only burn cycles.
	step(t, c, 3)
	assert.Equal(t, uint16(1), c.PC)
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestInterruptFlagOps(t *testing.T) {
	c := testCPU(0xfb, 0xf3) // ei / di
	step(t, c, 1)
	assert.True(t, c.IME)

	step(t, c, 1)
	assert.False(t, c.IME)
}

func TestRETI(t *testing.T) {
	c := testCPU(0xd9) // reti
	c.SP = 0xd000
	c.Push16(0x0150)
	step(t, c, 1)

	assert.Equal(t, uint16(0x0150), c.PC)
	assert.True(t, c.IME)
	assert.Equal(t, uint64(16), c.Cycles)
}

func TestBreakpointOpcodes(t *testing.T) {
	c := testCPU(arch.BreakOpcodeB, arch.BreakOpcodeD) // ld b, b / ld d, d
	c.B = 0x11
	c.D = 0x22

	assert.Equal(t, BreakpointB, c.Step())
	assert.Equal(t, BreakpointD, c.Step())

	// Both execute as loads that change nothing.
	assert.Equal(t, byte(0x11), c.B)
	assert.Equal(t, byte(0x22), c.D)
	assert.Equal(t, uint16(2), c.PC)
}

func TestUnknownOpcodes(t *testing.T) {
	for _, opcode := range []byte{0xd3, 0xdb, 0xdd, 0xe3, 0xe4, 0xeb, 0xec, 0xed, 0xf4, 0xfc, 0xfd} {
		c := testCPU(opcode)

		assert.Equal(t, UnknownOpcode, c.Step())
		assert.Equal(t, uint16(0), c.PC, "opcode %02x must not advance pc", opcode)
	}
}

func TestEveryOpcodeAddsCycles(t *testing.T) {
	for opcode := 0; opcode < 256; opcode++ {
		if arch.IsIllegal(byte(opcode)) {
			continue
		}

		c := testCPU(byte(opcode), 0x00, 0x00)
		c.SP = 0xd000
		c.SetHL(0xc000)
		c.Step()

		assert.NotZerof(t, c.Cycles, "opcode %02x", opcode)
	}
}

func TestPairedRegisterViews(t *testing.T) {
	c := testCPU()
	c.SetBC(0xabcd)

	assert.Equal(t, byte(0xab), c.B)
	assert.Equal(t, byte(0xcd), c.C)

	c.H = 0x12
	c.L = 0x34
	assert.Equal(t, uint16(0x1234), c.HL())
}

func TestSetAFMasksFlags(t *testing.T) {
	c := testCPU()
	c.SetAF(0xffff)

	assert.Equal(t, byte(0xff), c.A)
	assert.Equal(t, byte(0xf0), c.F)
	assert.Equal(t, uint16(0xfff0), c.AF())
}

func TestDriverPushPop(t *testing.T) {
	c := testCPU()
	c.SP = 0xd000
	c.Push16(0xabcd)

	assert.Equal(t, uint16(0xcffe), c.SP)
	assert.Equal(t, byte(0xab), c.Bus().Read(0xcfff))
	assert.Equal(t, byte(0xcd), c.Bus().Read(0xcffe))
	assert.Equal(t, uint64(0), c.Cycles)

	assert.Equal(t, uint16(0xabcd), c.Pop16())
	assert.Equal(t, uint16(0xd000), c.SP)
}

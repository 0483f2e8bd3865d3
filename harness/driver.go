package harness

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hexaflex/dmgtest/arch"
	"github.com/hexaflex/dmgtest/bus"
	"github.com/hexaflex/dmgtest/cpu"
)

// TraceFunc receives the executing case's name and the CPU state
// whenever a breakpoint opcode executes and the plan enables
// breakpoints. The result distinguishes ld b,b from ld d,d.
type TraceFunc func(testName string, result cpu.StepResult, c *cpu.CPU)

// Driver applies a plan to a ROM, one fresh bus and CPU per case.
type Driver struct {
	rom   []byte
	plan  Plan
	trace TraceFunc
}

// New creates a driver for the given ROM image and plan.
// Optionally with the given breakpoint trace handler.
func New(rom []byte, plan Plan, trace TraceFunc) *Driver {
	if trace == nil {
		trace = func(string, cpu.StepResult, *cpu.CPU) { /* nop */ }
	}
	return &Driver{
		rom:   rom,
		plan:  plan,
		trace: trace,
	}
}

// Run executes every case in order and collects the outcomes.
// A malformed case aborts the run with an error; test failures do not.
func (d *Driver) Run() ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(d.plan.Cases))

	for i := range d.plan.Cases {
		outcome, _, err := d.RunCase(&d.plan.Cases[i])
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, *outcome)
	}

	return outcomes, nil
}

// RunCase executes a single case. The returned bus holds the final
// memory state, for writing a dump when the case failed.
//
// A case without an entry point is a defect in the plan, not a test
// failure, and is returned as an error.
func (d *Driver) RunCase(tc *Case) (*Outcome, *bus.Bus, error) {
	if tc.Initial.PC == nil {
		return nil, nil, errors.Errorf("test %q: initial state does not set pc", tc.Name)
	}

	b := bus.New()
	b.LoadROM(d.rom)

	c := cpu.New(b)
	c.SP = 0xfffe
	applyState(&tc.Initial, c, b)

	// Seed the stack: data bytes first, so the first byte listed lands
	// at the highest address, then the caller sentinel on top.
	for _, v := range tc.StackPush {
		c.SP--
		b.Write(c.SP, v)
	}
	c.Push16(tc.Caller)

	failure := d.runLoop(tc, c)

	if failure == nil && tc.Expected != nil {
		if mm := verifyState(tc.Expected, c, b); len(mm) > 0 {
			failure = &Failure{Kind: Mismatched, Mismatches: mm}
		}
	}

	outcome := &Outcome{
		Name:    tc.Name,
		Failure: failure,
		Registers: Snapshot{
			A: c.A, F: c.F, B: c.B, C: c.C,
			D: c.D, E: c.E, H: c.H, L: c.L,
			SP: c.SP, PC: c.PC,
		},
		Cycles: c.Cycles,
	}
	return outcome, b, nil
}

// runLoop steps the CPU until a termination condition fires. Returns
// nil on normal termination (caller sentinel or exit address reached).
//
// The checks run in a fixed order after every step: timeout first, then
// unknown opcode, then crash addresses, then exit addresses.
func (d *Driver) runLoop(tc *Case, c *cpu.CPU) *Failure {
	for {
		result := c.Step()

		if c.Cycles >= tc.TimeoutCycles {
			return &Failure{Kind: TimedOut}
		}

		if result == cpu.UnknownOpcode {
			return &Failure{
				Kind:    BadOpcode,
				Address: c.PC,
				Opcode:  c.Bus().Read(c.PC),
			}
		}

		if contains(tc.CrashAddresses, c.PC) {
			return &Failure{Kind: Crashed, Address: c.PC}
		}

		if c.PC == tc.Caller || contains(tc.ExitAddresses, c.PC) {
			return nil
		}

		if result == cpu.BreakpointB || result == cpu.BreakpointD {
			if d.plan.EnableBreakpoints {
				d.trace(tc.Name, result, c)
			}
		}
	}
}

// applyState writes the set fields of s over the CPU and bus. Memory
// goes through the seed channel so tests may place code in ROM. The
// paired registers apply after the byte registers, in config order.
func applyState(s *State, c *cpu.CPU, b *bus.Bus) {
	for _, m := range s.Memory {
		b.Seed(m.Addr, m.Value)
	}

	setByte := func(dst *byte, v *byte) {
		if v != nil {
			*dst = *v
		}
	}
	setByte(&c.A, s.A)
	setByte(&c.B, s.B)
	setByte(&c.C, s.C)
	setByte(&c.D, s.D)
	setByte(&c.E, s.E)
	setByte(&c.H, s.H)
	setByte(&c.L, s.L)

	zf, nf, hf, cf := false, false, false, false
	if s.ZF != nil {
		zf = *s.ZF
	}
	if s.NF != nil {
		nf = *s.NF
	}
	if s.HF != nil {
		hf = *s.HF
	}
	if s.CF != nil {
		cf = *s.CF
	}
	c.SetFlags(zf, nf, hf, cf)

	if s.BC != nil {
		c.SetBC(*s.BC)
	}
	if s.DE != nil {
		c.SetDE(*s.DE)
	}
	if s.HL != nil {
		c.SetHL(*s.HL)
	}
	if s.PC != nil {
		c.PC = *s.PC
	}
	if s.SP != nil {
		c.SP = *s.SP
	}
}

// verifyState compares the set fields of s against the CPU and bus and
// returns every difference.
func verifyState(s *State, c *cpu.CPU, b *bus.Bus) []Mismatch {
	var mm []Mismatch

	check8 := func(field string, want *byte, have byte) {
		if want != nil && have != *want {
			mm = append(mm, Mismatch{field, fmt.Sprintf("$%02x", *want), fmt.Sprintf("$%02x", have)})
		}
	}
	check16 := func(field string, want *uint16, have uint16) {
		if want != nil && have != *want {
			mm = append(mm, Mismatch{field, fmt.Sprintf("$%04x", *want), fmt.Sprintf("$%04x", have)})
		}
	}
	checkFlag := func(field string, want *bool, have bool) {
		if want != nil && have != *want {
			mm = append(mm, Mismatch{field, fmt.Sprintf("%t", *want), fmt.Sprintf("%t", have)})
		}
	}

	check8("a", s.A, c.A)
	check8("b", s.B, c.B)
	check8("c", s.C, c.C)
	check8("d", s.D, c.D)
	check8("e", s.E, c.E)
	check8("h", s.H, c.H)
	check8("l", s.L, c.L)

	checkFlag("f.z", s.ZF, c.F&arch.FlagZ != 0)
	checkFlag("f.n", s.NF, c.F&arch.FlagN != 0)
	checkFlag("f.h", s.HF, c.F&arch.FlagH != 0)
	checkFlag("f.c", s.CF, c.F&arch.FlagC != 0)

	check16("bc", s.BC, c.BC())
	check16("de", s.DE, c.DE())
	check16("hl", s.HL, c.HL())
	check16("sp", s.SP, c.SP)
	check16("pc", s.PC, c.PC)

	for _, m := range s.Memory {
		if have := b.Read(m.Addr); have != m.Value {
			mm = append(mm, Mismatch{
				Field:    fmt.Sprintf("[%04x]", m.Addr),
				Expected: fmt.Sprintf("$%02x", m.Value),
				Actual:   fmt.Sprintf("$%02x", have),
			})
		}
	}

	return mm
}

func contains(addrs []uint16, addr uint16) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

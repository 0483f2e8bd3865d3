// Package harness runs unit tests against a ROM on the emulated CPU.
//
// A Plan arrives fully resolved: symbol references have already been
// turned into numeric addresses by the config loader. The harness owns
// a fresh bus and CPU per case and reports one Outcome each.
package harness

// DefaultCaller is the synthetic return address pushed on the stack so
// a routine's final ret lands on a known termination address.
const DefaultCaller = 0xffff

// DefaultTimeout bounds a case's execution in T-cycles.
const DefaultTimeout = 65536

// MemByte is a single byte-level memory assignment or expectation.
type MemByte struct {
	Addr  uint16
	Value byte
}

// State describes a subset of register and memory state. Nil fields are
// left untouched when the state is applied and skipped when verified.
type State struct {
	A, B, C, D, E, H, L *byte
	ZF, NF, HF, CF      *bool
	BC, DE, HL          *uint16
	PC, SP              *uint16

	// Memory holds byte-level assignments, applied in order.
	Memory []MemByte
}

// Case is one unit test against the ROM.
type Case struct {
	Name string

	// Initial seeds registers and memory before execution. PC is
	// mandatory; SP defaults to 0xFFFE; flags default to cleared.
	Initial State

	// StackPush holds bytes placed on the stack before the caller
	// sentinel. The first byte listed is pushed first and therefore
	// ends up at the highest address.
	StackPush []byte

	// Caller is pushed last; when PC reaches it the test ends normally.
	Caller uint16

	// CrashAddresses fail the test when PC reaches any of them.
	CrashAddresses []uint16

	// ExitAddresses end the test normally, same as returning to Caller.
	ExitAddresses []uint16

	// TimeoutCycles bounds execution in T-cycles.
	TimeoutCycles uint64

	// Expected, when present, is verified after normal termination.
	Expected *State
}

// NewCase returns a case with the documented defaults.
func NewCase(name string) Case {
	return Case{
		Name:          name,
		Caller:        DefaultCaller,
		TimeoutCycles: DefaultTimeout,
	}
}

// Plan is an ordered list of cases sharing one ROM image.
type Plan struct {
	Cases             []Case
	EnableBreakpoints bool
}

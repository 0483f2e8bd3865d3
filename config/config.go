// Package config loads test descriptions from TOML.
//
// The file's root keys form a global template: every key that is not a
// table applies to all tests. Each table [name] clones the template and
// overrides it, producing one test case. Symbol names may stand in for
// any 16-bit value; they are resolved here so the harness only ever
// sees numeric addresses.
package config

import (
	"io"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/hexaflex/dmgtest/harness"
)

// Load reads a TOML test description and resolves it into a plan.
// syms maps symbol names to addresses and may be nil.
func Load(r io.Reader, syms map[string]uint16) (harness.Plan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return harness.Plan{}, errors.Wrap(err, "reading config")
	}

	var raw map[string]interface{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return harness.Plan{}, errors.Wrap(err, "parsing config")
	}

	ld := &loader{syms: syms, breakpoints: true}
	global := harness.NewCase("Global")

	// Walk top-level keys in document order. Global keys accumulate
	// into the template; each table becomes a test seeded from the
	// template as it stands when the table is reached.
	var plan harness.Plan
	for _, key := range topKeys(md) {
		value := raw[key]

		table, ok := value.(map[string]interface{})
		if !ok {
			ld.parseKey(&global, key, value)
			continue
		}

		tc := cloneCase(&global)
		tc.Name = key
		for _, sub := range subKeys(md, key) {
			ld.parseKey(&tc, sub, table[sub])
		}
		plan.Cases = append(plan.Cases, tc)
	}

	plan.EnableBreakpoints = ld.breakpoints
	return plan, ld.errs.orNil()
}

type loader struct {
	syms        map[string]uint16
	breakpoints bool
	errs        ErrorSet
}

func (ld *loader) errorf(f string, argv ...interface{}) {
	ld.errs.Append(errors.Errorf(f, argv...))
}

// parseKey applies one configuration key to the given case.
func (ld *loader) parseKey(tc *harness.Case, key string, value interface{}) {
	switch key {
	case "a":
		tc.Initial.A = ld.parseU8(value, key)
	case "b":
		tc.Initial.B = ld.parseU8(value, key)
	case "c":
		tc.Initial.C = ld.parseU8(value, key)
	case "d":
		tc.Initial.D = ld.parseU8(value, key)
	case "e":
		tc.Initial.E = ld.parseU8(value, key)
	case "h":
		tc.Initial.H = ld.parseU8(value, key)
	case "l":
		tc.Initial.L = ld.parseU8(value, key)
	case "f.z":
		tc.Initial.ZF = ld.parseBool(value, key)
	case "f.n":
		tc.Initial.NF = ld.parseBool(value, key)
	case "f.h":
		tc.Initial.HF = ld.parseBool(value, key)
	case "f.c":
		tc.Initial.CF = ld.parseBool(value, key)
	case "bc":
		tc.Initial.BC = ld.parseU16(value, key)
	case "de":
		tc.Initial.DE = ld.parseU16(value, key)
	case "hl":
		tc.Initial.HL = ld.parseU16(value, key)
	case "pc":
		tc.Initial.PC = ld.parseU16(value, key)
	case "sp":
		tc.Initial.SP = ld.parseU16(value, key)
	case "caller":
		if v := ld.parseU16(value, key); v != nil {
			tc.Caller = *v
		}
	case "crash":
		tc.CrashAddresses = append(tc.CrashAddresses, ld.parseAddrList(value, key)...)
	case "exit":
		tc.ExitAddresses = append(tc.ExitAddresses, ld.parseAddrList(value, key)...)
	case "timeout":
		if v, ok := value.(int64); ok && v > 0 {
			tc.TimeoutCycles = uint64(v)
		} else {
			ld.errorf("value of `%s` must be a positive integer", key)
		}
	case "enable-breakpoints":
		if v := ld.parseBool(value, key); v != nil {
			ld.breakpoints = *v
		}
	case "stack":
		tc.StackPush = append(tc.StackPush, ld.parseBytes(value, key)...)
	case "result":
		table, ok := value.(map[string]interface{})
		if !ok {
			ld.errorf("value of `%s` must be a table", key)
			return
		}
		tc.Expected = ld.parseResult(table)
	default:
		if inner, ok := memoryKey(key); ok {
			tc.Initial.Memory = append(tc.Initial.Memory, ld.parseMemory(inner, value)...)
		} else {
			ld.errorf("unknown config key %q", key)
		}
	}
}

// parseResult builds the expected post-state from a result table.
func (ld *loader) parseResult(table map[string]interface{}) *harness.State {
	var s harness.State

	for key, value := range table {
		switch key {
		case "a":
			s.A = ld.parseU8(value, "result."+key)
		case "b":
			s.B = ld.parseU8(value, "result."+key)
		case "c":
			s.C = ld.parseU8(value, "result."+key)
		case "d":
			s.D = ld.parseU8(value, "result."+key)
		case "e":
			s.E = ld.parseU8(value, "result."+key)
		case "h":
			s.H = ld.parseU8(value, "result."+key)
		case "l":
			s.L = ld.parseU8(value, "result."+key)
		case "f.z":
			s.ZF = ld.parseBool(value, "result."+key)
		case "f.n":
			s.NF = ld.parseBool(value, "result."+key)
		case "f.h":
			s.HF = ld.parseBool(value, "result."+key)
		case "f.c":
			s.CF = ld.parseBool(value, "result."+key)
		case "bc":
			s.BC = ld.parseU16(value, "result."+key)
		case "de":
			s.DE = ld.parseU16(value, "result."+key)
		case "hl":
			s.HL = ld.parseU16(value, "result."+key)
		case "pc":
			s.PC = ld.parseU16(value, "result."+key)
		case "sp":
			s.SP = ld.parseU16(value, "result."+key)
		default:
			if inner, ok := memoryKey(key); ok {
				s.Memory = append(s.Memory, ld.parseMemory(inner, value)...)
			} else {
				ld.errorf("unknown result key %q", key)
			}
		}
	}

	return &s
}

func (ld *loader) parseU8(value interface{}, hint string) *byte {
	v, ok := value.(int64)
	if !ok || v < -128 || v > 255 {
		ld.errorf("value of `%s` must be an 8-bit integer", hint)
		return nil
	}
	b := byte(v)
	return &b
}

func (ld *loader) parseBool(value interface{}, hint string) *bool {
	v, ok := value.(bool)
	if !ok {
		ld.errorf("value of `%s` must be a boolean", hint)
		return nil
	}
	return &v
}

func (ld *loader) parseU16(value interface{}, hint string) *uint16 {
	switch v := value.(type) {
	case int64:
		if v < -32768 || v > 65535 {
			ld.errorf("value of `%s` must be a 16-bit integer", hint)
			return nil
		}
		u := uint16(v)
		return &u
	case string:
		if addr, ok := ld.resolve(v); ok {
			return &addr
		}
		ld.errorf("symbol %q not found", v)
		return nil
	default:
		ld.errorf("value of `%s` must be a 16-bit integer or symbol", hint)
		return nil
	}
}

// parseAddrList accepts a single address or an array of addresses.
func (ld *loader) parseAddrList(value interface{}, hint string) []uint16 {
	items, ok := value.([]interface{})
	if !ok {
		items = []interface{}{value}
	}

	var out []uint16
	for _, item := range items {
		if v := ld.parseU16(item, hint); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// parseBytes flattens a value into a byte sequence: integers, strings,
// bools and nested arrays, in the same shapes memory seeding accepts.
func (ld *loader) parseBytes(value interface{}, hint string) []byte {
	switch v := value.(type) {
	case int64:
		if v < -128 || v > 255 {
			ld.errorf("value of `%s` must be composed of 8-bit integers", hint)
			return nil
		}
		return []byte{byte(v)}
	case string:
		return []byte(v)
	case bool:
		if v {
			return []byte{1}
		}
		return []byte{0}
	case []interface{}:
		var out []byte
		for _, item := range v {
			out = append(out, ld.parseBytes(item, hint)...)
		}
		return out
	default:
		ld.errorf("unsupported value for `%s`: %v", hint, value)
		return nil
	}
}

// parseMemory expands a "[target]" key into byte-level assignments
// starting at the resolved address.
func (ld *loader) parseMemory(target string, value interface{}) []harness.MemByte {
	addr, ok := ld.resolve(target)
	if !ok {
		ld.errorf("symbol %q not found", target)
		return nil
	}

	data := ld.parseBytes(value, target)
	out := make([]harness.MemByte, len(data))
	for i, b := range data {
		out[i] = harness.MemByte{Addr: addr + uint16(i), Value: b}
	}
	return out
}

// resolve turns a symbol name or numeric literal into an address.
func (ld *loader) resolve(name string) (uint16, bool) {
	if addr, ok := ld.syms[name]; ok {
		return addr, true
	}
	if v, err := strconv.ParseUint(name, 0, 16); err == nil {
		return uint16(v), true
	}
	return 0, false
}

// memoryKey recognizes "[symbol-or-address]" keys.
func memoryKey(key string) (string, bool) {
	if len(key) > 2 && strings.HasPrefix(key, "[") && strings.HasSuffix(key, "]") {
		return key[1 : len(key)-1], true
	}
	return "", false
}

// cloneCase deep-copies the template so per-test appends do not bleed
// into later tests.
func cloneCase(tc *harness.Case) harness.Case {
	out := *tc
	out.StackPush = append([]byte(nil), tc.StackPush...)
	out.CrashAddresses = append([]uint16(nil), tc.CrashAddresses...)
	out.ExitAddresses = append([]uint16(nil), tc.ExitAddresses...)
	out.Initial.Memory = append([]harness.MemByte(nil), tc.Initial.Memory...)
	return out
}

// topKeys returns the document-order top-level keys.
func topKeys(md toml.MetaData) []string {
	var out []string
	for _, key := range md.Keys() {
		if len(key) == 1 {
			out = append(out, key[0])
		}
	}
	return out
}

// subKeys returns the document-order keys directly beneath the given
// top-level table.
func subKeys(md toml.MetaData, top string) []string {
	var out []string
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == top {
			out = append(out, key[1])
		}
	}
	return out
}

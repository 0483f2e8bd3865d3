package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hexaflex/dmgtest/arch"
	"github.com/hexaflex/dmgtest/bus"
	"github.com/hexaflex/dmgtest/config"
	"github.com/hexaflex/dmgtest/cpu"
	"github.com/hexaflex/dmgtest/harness"
	"github.com/hexaflex/dmgtest/sym"
)

// errTestsFailed distinguishes failing tests from operational errors;
// the former exit with status 1 without an extra message.
var errTestsFailed = errors.New("tests failed")

// App defines application context.
type App struct {
	config *Config
	logger *Logger
}

// NewApp creates a new application instance using the given configuration.
func NewApp(config *Config) *App {
	return &App{
		config: config,
		logger: NewLogger(config.ROM, config.Silence),
	}
}

// Run loads all inputs, executes the plan and reports the results.
func (a *App) Run() error {
	rom, err := a.loadROM()
	if err != nil {
		return err
	}

	symbols, err := a.loadSymbols()
	if err != nil {
		return err
	}

	plan, err := a.loadPlan(symbols)
	if err != nil {
		return err
	}

	driver := harness.New(rom, plan, a.trace)

	for i := range plan.Cases {
		outcome, mem, err := driver.RunCase(&plan.Cases[i])
		if err != nil {
			return err
		}

		a.logger.Report(outcome)

		if !outcome.Passed() && a.config.DumpDir != "" {
			path := filepath.Join(a.config.DumpDir, outcome.Name+".dump")
			if err := writeDump(path, mem); err != nil {
				// A failed dump should not abort the remaining tests.
				log.Println(errors.Wrapf(err, "failed to write dump to %s", path))
			}
		}
	}

	if !a.logger.Finish() {
		return errTestsFailed
	}
	return nil
}

// trace handles the driver's breakpoint side channel.
func (a *App) trace(testName string, result cpu.StepResult, c *cpu.CPU) {
	kind := "BREAKPOINT"
	if result == cpu.BreakpointD {
		kind = "DEBUG"
	}
	a.logger.Trace(testName, kind, c.String()+"\nnext: "+disassemble(c))
}

// disassemble names the instruction the CPU would execute next.
func disassemble(c *cpu.CPU) string {
	opcode := c.Bus().Read(c.PC)
	if opcode == 0xcb {
		return arch.CBName(c.Bus().Read(c.PC + 1))
	}
	if name, ok := arch.Name(opcode); ok {
		return name
	}
	return fmt.Sprintf("db $%02x", opcode)
}

// loadROM reads the cartridge image from disk or stdin. Images shorter
// than one bank are padded with 0xFF, the value an open bus yields.
func (a *App) loadROM() ([]byte, error) {
	var r io.Reader = os.Stdin

	if a.config.ROM != "-" {
		fd, err := os.Open(a.config.ROM)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", a.config.ROM)
		}
		defer fd.Close()
		r = fd
	}

	rom, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", a.config.ROM)
	}

	for len(rom) < 0x4000 {
		rom = append(rom, 0xff)
	}
	return rom, nil
}

// loadSymbols reads the symbol file, if one was given.
func (a *App) loadSymbols() (map[string]uint16, error) {
	if a.config.Symfile == "" {
		return nil, nil
	}

	fd, err := os.Open(a.config.Symfile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", a.config.Symfile)
	}
	defer fd.Close()

	return sym.Parse(fd)
}

// loadPlan reads and resolves the test configuration.
func (a *App) loadPlan(symbols map[string]uint16) (harness.Plan, error) {
	var r io.Reader = os.Stdin

	if a.config.Tests != "-" {
		fd, err := os.Open(a.config.Tests)
		if err != nil {
			return harness.Plan{}, errors.Wrapf(err, "failed to open %s", a.config.Tests)
		}
		defer fd.Close()
		r = fd
	}

	return config.Load(r, symbols)
}

// writeDump writes the bus contents of a failed test to the given path.
func writeDump(path string, mem *bus.Bus) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	return mem.Dump(fd)
}

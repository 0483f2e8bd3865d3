package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/hexaflex/dmgtest/harness"
)

var (
	passLabel = color.New(color.FgGreen).Sprint("passed")
	failLabel = color.New(color.FgRed).Sprint("failed")
)

// Logger tracks and prints test results, honoring the silence level.
type Logger struct {
	romPath        string
	silencePassing bool
	silenceAll     bool
	pass           int
	fail           int
}

// NewLogger creates a result logger for the given ROM path.
func NewLogger(romPath string, silence int) *Logger {
	return &Logger{
		romPath:        romPath,
		silencePassing: silence >= 1,
		silenceAll:     silence >= 2,
	}
}

// Report prints one test outcome and updates the tallies.
func (l *Logger) Report(o *harness.Outcome) {
	if o.Passed() {
		l.pass++
		if !l.silencePassing {
			fmt.Printf("%s: %s %s\n", l.romPath, o.Name, passLabel)
		}
		return
	}

	l.fail++
	fmt.Printf("%s: %s %s:\n%s\n", l.romPath, o.Name, failLabel, o.Failure)
}

// Trace prints a breakpoint diagnostic line.
func (l *Logger) Trace(testName, kind, state string) {
	fmt.Printf("%s: %s in %s\n%s\n", l.romPath, kind, testName, state)
}

// Finish prints the closing tally. Returns true if every test passed.
func (l *Logger) Finish() bool {
	// At full silence the tally only appears when something failed.
	if !l.silenceAll || l.fail != 0 {
		fmt.Printf("%s: All tests complete. %d/%d passed.\n", l.romPath, l.pass, l.pass+l.fail)
	}
	return l.fail == 0
}

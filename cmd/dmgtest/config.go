package main

import (
	"flag"
	"fmt"
	"os"
)

// Config defines program configuration.
type Config struct {
	ROM     string // Path to the ROM image, or "-" for stdin.
	Tests   string // Path to the TOML test description.
	DumpDir string // Directory for memory dumps of failing tests.
	Symfile string // Optional path to an RGBDS symbol file.
	Silence int    // 0: everything, 1: mute passing tests, 2: mute all unless a test fails.
}

// parseArgs parses command line arguments as applicable.
//
// If an error occurred, this exits the program with an appropriate message.
// When version information is requested, it is printed to stdout and the program ends cleanly.
func parseArgs() *Config {
	var c Config

	flag.Usage = func() {
		fmt.Printf("%s [options] <rom file>\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.StringVar(&c.Tests, "config", "", "Path to the test configuration file.")
	flag.StringVar(&c.DumpDir, "dump-dir", "", "Directory where memory dumps of failing tests are placed.")
	flag.StringVar(&c.Symfile, "symfile", "", "Path to a symbol file.")
	flag.IntVar(&c.Silence, "silent", 0, "Silence level: 1 mutes passing tests, 2 mutes all output unless a test fails.")

	version := flag.Bool("version", false, "Display version information.")
	flag.Parse()

	if *version {
		fmt.Println(Version())
		os.Exit(0)
	}

	if flag.NArg() == 0 || c.Tests == "" {
		flag.Usage()
		os.Exit(1)
	}

	c.ROM = flag.Arg(0)
	return &c
}

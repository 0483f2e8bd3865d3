// Package sym parses RGBDS symbol files (https://rgbds.gbdev.io/sym).
//
// Only the address half of each bank:address pair survives: the harness
// executes a flat 32 KiB ROM holding banks 0 and 1, so higher banks are
// never addressable and the bank number carries no information here.
package sym

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var lineRe = regexp.MustCompile(`^[ \t]*([0-9a-fA-F]{2,}):([0-9a-fA-F]{4})[ \t]+([a-zA-Z_][^;]*)`)

// Parse reads a symbol file and returns the name to address mapping.
// Lines that do not look like symbol definitions (comments, directives)
// are skipped, matching the reference toolchain's tolerance.
func Parse(r io.Reader) (map[string]uint16, error) {
	symbols := make(map[string]uint16)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := lineRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}

		// The regexp guarantees four hex digits.
		addr, _ := strconv.ParseUint(m[2], 16, 16)
		name := strings.TrimRight(m[3], " \t\r")
		symbols[name] = uint16(addr)
	}

	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading symbol file")
	}
	return symbols, nil
}

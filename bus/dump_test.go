package bus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpSections(t *testing.T) {
	b := New()
	b.Write(0x8000, 0xde)
	b.Write(0xc000, 0xad)
	b.Write(0xffff, 0x1f)

	var sb strings.Builder
	require.NoError(t, b.Dump(&sb))
	out := sb.String()

	for _, header := range []string{"[VRAM]", "[SRAM]", "[WRAM]", "[OAM]", "[HRAM]", "[IE]"} {
		assert.Contains(t, out, header)
	}

	assert.Contains(t, out, "0x8000: 0xde 0x00")
	assert.Contains(t, out, "0xc000: 0xad 0x00")
	assert.True(t, strings.HasSuffix(out, "[IE]\n0xffff: 0x1f\n"))
}

func TestDumpEmitsEveryByte(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, New().Dump(&sb))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")

	var rows, headers int
	for _, line := range lines {
		if strings.HasPrefix(line, "[") {
			headers++
		} else {
			rows++
		}
	}

	// Three 8 KiB regions, OAM, HRAM and the lone IE byte.
	// 8192/16 rows each for VRAM, SRAM and WRAM; 160/16 for OAM;
	// 127 bytes make 8 rows for HRAM; 1 row for IE.
	assert.Equal(t, 6, headers)
	assert.Equal(t, 3*512+10+8+1, rows)
}

func TestDumpRowWidth(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, New().Dump(&sb))

	lines := strings.Split(sb.String(), "\n")
	// First VRAM row: address plus sixteen zero bytes.
	assert.Equal(t, "0x8000: 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00 0x00", lines[1])

	// The last HRAM row holds the fifteen-byte remainder.
	var lastHRAM string
	for i, line := range lines {
		if line == "[IE]" {
			lastHRAM = lines[i-1]
		}
	}
	assert.True(t, strings.HasPrefix(lastHRAM, "0xfff0:"))
	assert.Equal(t, 15, strings.Count(lastHRAM, "0x")-1)
}

package sym

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := `
; File generated by rgblink
00:0150 Main
00:0038 CrashHandler
01:4000 BankedRoutine
0a:5123 FarData
`
	syms, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0150), syms["Main"])
	assert.Equal(t, uint16(0x0038), syms["CrashHandler"])
	assert.Equal(t, uint16(0x4000), syms["BankedRoutine"])
	assert.Equal(t, uint16(0x5123), syms["FarData"])
	assert.Len(t, syms, 4)
}

func TestParseSkipsNoise(t *testing.T) {
	input := `
; comment line
garbage
0:0150 TooShortBank
00:150 TooShortAddr
00:0150 Good ; trailing comment
`
	syms, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, map[string]uint16{"Good": 0x0150}, syms)
}

func TestParseLeadingWhitespace(t *testing.T) {
	syms, err := Parse(strings.NewReader("\t 00:c0de wLabel.sub\n"))
	require.NoError(t, err)

	assert.Equal(t, uint16(0xc0de), syms["wLabel.sub"])
}

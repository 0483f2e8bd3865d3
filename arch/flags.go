package arch

// Flag bit positions within the F register. The low nibble of F does
// not exist in hardware and always reads as zero.
const (
	FlagZ = 1 << 7
	FlagN = 1 << 6
	FlagH = 1 << 5
	FlagC = 1 << 4

	FlagMask = FlagZ | FlagN | FlagH | FlagC
)

// Package bus implements the Game Boy memory map as seen by the CPU.
//
// Every address is readable and writeable; the bus never fails. Regions
// without backing storage (the I/O window and the unusable area above
// OAM) read as 0xFF and absorb writes. No hardware register behavior is
// synthesized.
package bus

// Region boundaries of the 16-bit address space.
const (
	ROMEnd    = 0x8000 // 0x0000-0x7FFF: cartridge ROM, bank 0+1 flat.
	VRAMStart = 0x8000
	VRAMEnd   = 0xa000
	SRAMStart = 0xa000
	SRAMEnd   = 0xc000
	WRAMStart = 0xc000
	WRAMEnd   = 0xe000
	EchoStart = 0xe000 // Mirrors WRAM at -0x2000.
	EchoEnd   = 0xfe00
	OAMStart  = 0xfe00
	OAMEnd    = 0xfea0
	IOStart   = 0xff00
	IOEnd     = 0xff80
	HRAMStart = 0xff80
	HRAMEnd   = 0xffff
	IEAddr    = 0xffff
)

// Bus is the segmented address space. Each region has its own backing
// array so a dump can walk them by name.
type Bus struct {
	rom  [0x8000]byte
	vram [0x2000]byte
	sram [0x2000]byte
	wram [0x2000]byte
	oam  [0xa0]byte
	hram [0x7f]byte
	ie   byte
}

// New creates an empty bus. All regions are zero-filled; ROM contents
// come from LoadROM and test seeding.
func New() *Bus {
	return &Bus{}
}

// LoadROM installs the given cartridge image at 0x0000. Images larger
// than 32 KiB are truncated to the first two banks; anything beyond is
// not addressable on this bus.
func (b *Bus) LoadROM(image []byte) {
	copy(b.rom[:], image)
}

// Read returns the byte at the given address. Reads never fail; holes
// in the map return 0xFF.
func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < ROMEnd:
		return b.rom[addr]
	case addr < VRAMEnd:
		return b.vram[addr-VRAMStart]
	case addr < SRAMEnd:
		return b.sram[addr-SRAMStart]
	case addr < WRAMEnd:
		return b.wram[addr-WRAMStart]
	case addr < EchoEnd:
		return b.wram[addr-EchoStart]
	case addr < OAMEnd:
		return b.oam[addr-OAMStart]
	case addr < IOStart:
		return 0xff
	case addr < IOEnd:
		return 0xff
	case addr < IEAddr:
		return b.hram[addr-HRAMStart]
	default:
		return b.ie
	}
}

// Write stores the byte at the given address through the CPU's view of
// the map: ROM writes are silently dropped, as are writes to the I/O
// window and the unusable area. Writes never fail.
func (b *Bus) Write(addr uint16, value byte) {
	if addr < ROMEnd {
		return
	}
	b.store(addr, value)
}

// Seed stores the byte at the given address on behalf of test setup.
// Unlike Write it may place bytes in ROM, so a test can assemble its
// subject routine directly into the cartridge area.
func (b *Bus) Seed(addr uint16, value byte) {
	if addr < ROMEnd {
		b.rom[addr] = value
		return
	}
	b.store(addr, value)
}

func (b *Bus) store(addr uint16, value byte) {
	switch {
	case addr < VRAMEnd:
		b.vram[addr-VRAMStart] = value
	case addr < SRAMEnd:
		b.sram[addr-SRAMStart] = value
	case addr < WRAMEnd:
		b.wram[addr-WRAMStart] = value
	case addr < EchoEnd:
		b.wram[addr-EchoStart] = value
	case addr < OAMEnd:
		b.oam[addr-OAMStart] = value
	case addr < IOEnd:
		// Unusable area and I/O window absorb writes.
	case addr < IEAddr:
		b.hram[addr-HRAMStart] = value
	default:
		b.ie = value
	}
}

// Read16 returns the little-endian 16-bit value at the given address.
// The high byte wraps around the top of the address space.
func (b *Bus) Read16(addr uint16) uint16 {
	return uint16(b.Read(addr)) | uint16(b.Read(addr+1))<<8
}

// Write16 stores the given value little-endian, low byte first, with
// the same wraparound as Read16.
func (b *Bus) Write16(addr uint16, value uint16) {
	b.Write(addr, byte(value))
	b.Write(addr+1, byte(value>>8))
}

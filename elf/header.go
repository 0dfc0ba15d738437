package elf

// Identification constants.
const (
	classELF64     = 2
	dataLittle     = 1
	currentVersion = 1
)

// Machine tags this loader recognizes. EMFakeAlpha and EMS390 matter beyond
// identification: their legacy hash tables use a wide chain-count field.
const (
	EM386       = 3
	EMS390      = 22
	EMX8664     = 62
	EMAArch64   = 183
	EMRISCV     = 243
	EMFakeAlpha = 0x9026
)

var machineNames = map[uint16]string{
	EM386:       "i386",
	EMS390:      "s390",
	EMX8664:     "x86-64",
	EMAArch64:   "aarch64",
	EMRISCV:     "riscv",
	EMFakeAlpha: "alpha",
}

// MachineName names a recognized machine tag.
func MachineName(machine uint16) string {
	if name, ok := machineNames[machine]; ok {
		return name
	}

	return "unknown"
}

// Container is the bit width of the image container. The images this loader
// consumes are 64-bit, but the hash-table length algorithms branch on the
// container, so it is carried explicitly rather than assumed.
type Container int

const (
	Container32 Container = iota
	Container64
)

// Header is the decoded fixed ELF header.
type Header struct {
	Class     uint8
	Data      uint8
	OSABI     uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// Container returns the container width the class declares.
func (h *Header) Container() Container {
	if h.Class == classELF64 {
		return Container64
	}

	return Container32
}

func parseHeader(c *cursor) (Header, error) {
	var h Header

	magic, err := c.bytes(4)
	if err != nil {
		return h, err
	}

	if magic[0] != 0x7f || magic[1] != 'E' || magic[2] != 'L' || magic[3] != 'F' {
		return h, ErrBadMagic
	}

	if h.Class, err = c.uint8(); err != nil {
		return h, err
	}

	if h.Class != classELF64 {
		return h, &UnsupportedError{Field: "class", Value: uint64(h.Class)}
	}

	if h.Data, err = c.uint8(); err != nil {
		return h, err
	}

	if h.Data != dataLittle {
		return h, &UnsupportedError{Field: "endianness", Value: uint64(h.Data)}
	}

	identVersion, err := c.uint8()
	if err != nil {
		return h, err
	}

	if identVersion != currentVersion {
		return h, &UnsupportedError{Field: "ident version", Value: uint64(identVersion)}
	}

	if h.OSABI, err = c.uint8(); err != nil {
		return h, err
	}

	// ABI version plus padding
	if err = c.skip(8); err != nil {
		return h, err
	}

	if h.Type, err = c.uint16(); err != nil {
		return h, err
	}

	if h.Machine, err = c.uint16(); err != nil {
		return h, err
	}

	if _, ok := machineNames[h.Machine]; !ok {
		return h, &UnsupportedError{Field: "machine", Value: uint64(h.Machine)}
	}

	if h.Version, err = c.uint32(); err != nil {
		return h, err
	}

	if h.Entry, err = c.uint64(); err != nil {
		return h, err
	}

	if h.PhOff, err = c.uint64(); err != nil {
		return h, err
	}

	if h.ShOff, err = c.uint64(); err != nil {
		return h, err
	}

	if h.Flags, err = c.uint32(); err != nil {
		return h, err
	}

	if h.EhSize, err = c.uint16(); err != nil {
		return h, err
	}

	if h.PhEntSize, err = c.uint16(); err != nil {
		return h, err
	}

	if h.PhNum, err = c.uint16(); err != nil {
		return h, err
	}

	if h.ShEntSize, err = c.uint16(); err != nil {
		return h, err
	}

	if h.ShNum, err = c.uint16(); err != nil {
		return h, err
	}

	if h.ShStrNdx, err = c.uint16(); err != nil {
		return h, err
	}

	return h, nil
}

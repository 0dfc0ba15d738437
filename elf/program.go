package elf

// Program header segment types.
const (
	PTNull uint32 = iota
	PTLoad
	PTDynamic
	PTInterp
	PTNote
	PTShlib
	PTPhdr
	PTTLS
)

// Segment flag bits.
const (
	PFExec  uint32 = 0x1
	PFWrite uint32 = 0x2
	PFRead  uint32 = 0x4
)

// programHeaderSize is the fixed ELF64 program header record size.
const programHeaderSize = 56

// ProgramHeader is one entry of the program header table.
type ProgramHeader struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

func parseProgramHeaders(buf []byte, off uint64, count int) ([]ProgramHeader, error) {
	// count comes from the image and is untrusted
	if off > uint64(len(buf)) || count > (len(buf)-int(off))/programHeaderSize {
		return nil, &SizeOverflowError{
			Stage: StageProgramHeader,
			Base:  off,
			Size:  uint64(count) * programHeaderSize,
		}
	}

	c := &cursor{buf: buf, off: int(off), stage: StageProgramHeader}

	headers := make([]ProgramHeader, 0, count)

	for i := 0; i < count; i++ {
		var (
			ph  ProgramHeader
			err error
		)

		if ph.Type, err = c.uint32(); err != nil {
			return nil, err
		}

		if ph.Flags, err = c.uint32(); err != nil {
			return nil, err
		}

		if ph.Offset, err = c.uint64(); err != nil {
			return nil, err
		}

		if ph.VAddr, err = c.uint64(); err != nil {
			return nil, err
		}

		if ph.PAddr, err = c.uint64(); err != nil {
			return nil, err
		}

		if ph.FileSize, err = c.uint64(); err != nil {
			return nil, err
		}

		if ph.MemSize, err = c.uint64(); err != nil {
			return nil, err
		}

		if ph.Align, err = c.uint64(); err != nil {
			return nil, err
		}

		headers = append(headers, ph)
	}

	return headers, nil
}

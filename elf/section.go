package elf

// Section header types the loader cares about.
const (
	SHTNull     uint32 = 0
	SHTProgbits uint32 = 1
	SHTSymtab   uint32 = 2
	SHTStrtab   uint32 = 3
	SHTHash     uint32 = 5
	SHTNobits   uint32 = 8
	SHTDynsym   uint32 = 11
	SHTGNUHash  uint32 = 0x6ffffff6
)

// SHNXIndex is the out-of-band section header string table index sentinel:
// the real index lives in section 0's Link field.
const SHNXIndex = 0xffff

// sectionHeaderSize is the fixed ELF64 section header record size.
const sectionHeaderSize = 64

// SectionHeader is one entry of the section header table.
type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

func parseSectionHeaders(buf []byte, off uint64, count int) ([]SectionHeader, error) {
	// count comes from the image and is untrusted
	if off > uint64(len(buf)) || count > (len(buf)-int(off))/sectionHeaderSize {
		return nil, &SizeOverflowError{
			Stage: StageSectionHeader,
			Base:  off,
			Size:  uint64(count) * sectionHeaderSize,
		}
	}

	c := &cursor{buf: buf, off: int(off), stage: StageSectionHeader}

	headers := make([]SectionHeader, 0, count)

	for i := 0; i < count; i++ {
		var (
			sh  SectionHeader
			err error
		)

		if sh.Name, err = c.uint32(); err != nil {
			return nil, err
		}

		if sh.Type, err = c.uint32(); err != nil {
			return nil, err
		}

		if sh.Flags, err = c.uint64(); err != nil {
			return nil, err
		}

		if sh.Addr, err = c.uint64(); err != nil {
			return nil, err
		}

		if sh.Offset, err = c.uint64(); err != nil {
			return nil, err
		}

		if sh.Size, err = c.uint64(); err != nil {
			return nil, err
		}

		if sh.Link, err = c.uint32(); err != nil {
			return nil, err
		}

		if sh.Info, err = c.uint32(); err != nil {
			return nil, err
		}

		if sh.AddrAlign, err = c.uint64(); err != nil {
			return nil, err
		}

		if sh.EntSize, err = c.uint64(); err != nil {
			return nil, err
		}

		headers = append(headers, sh)
	}

	return headers, nil
}

// Package elf parses the kernel's executable image: the fixed header, the
// program header table, and optionally section headers and symbol hash
// tables. Input is untrusted; every read is bounds-checked and every
// failure is a typed error with enough context to diagnose.
package elf

import "math"

// Image is the logical view of a parsed binary. It is built once per load
// attempt and immutable afterwards.
type Image struct {
	Header   Header
	Programs []ProgramHeader
	Sections []SectionHeader

	// SymbolCount is inferred from the hash table when one is present;
	// -1 means the image carries none.
	SymbolCount int

	shstrtab []byte
}

// Parse decodes buf into an Image.
func Parse(buf []byte) (*Image, error) {
	c := &cursor{buf: buf, stage: StageHeader}

	hdr, err := parseHeader(c)
	if err != nil {
		return nil, err
	}

	img := &Image{Header: hdr, SymbolCount: -1}

	if hdr.PhOff != 0 && hdr.PhNum > 0 {
		img.Programs, err = parseProgramHeaders(buf, hdr.PhOff, int(hdr.PhNum))
		if err != nil {
			return nil, err
		}
	}

	if hdr.ShOff != 0 && hdr.ShNum > 0 {
		img.Sections, err = parseSectionHeaders(buf, hdr.ShOff, int(hdr.ShNum))
		if err != nil {
			return nil, err
		}

		if err := img.resolveStringTable(buf); err != nil {
			return nil, err
		}

		if err := img.countSymbols(buf); err != nil {
			return nil, err
		}
	}

	return img, nil
}

// resolveStringTable locates the section header string table. The
// conventional index may be the SHNXIndex sentinel, in which case the real
// index is read from section 0's Link field.
func (img *Image) resolveStringTable(buf []byte) error {
	idx := uint32(img.Header.ShStrNdx)

	if idx == SHNXIndex {
		idx = img.Sections[0].Link
	}

	if idx == 0 {
		return nil
	}

	if int(idx) >= len(img.Sections) {
		return &SizeOverflowError{Stage: StageStringTable, Base: uint64(idx), Size: uint64(len(img.Sections))}
	}

	sh := img.Sections[idx]

	if sh.Offset > uint64(len(buf)) || sh.Size > uint64(len(buf))-sh.Offset {
		return &SizeOverflowError{Stage: StageStringTable, Base: sh.Offset, Size: sh.Size}
	}

	img.shstrtab = buf[sh.Offset : sh.Offset+sh.Size]

	return nil
}

// countSymbols infers the symbol-table length from the first hash section,
// preferring the GNU-style table.
func (img *Image) countSymbols(buf []byte) error {
	for _, sh := range img.Sections {
		if sh.Type != SHTGNUHash {
			continue
		}

		n, err := gnuHashCount(buf, sh.Offset, img.Header.Container())
		if err != nil {
			return err
		}

		img.SymbolCount = n

		return nil
	}

	for _, sh := range img.Sections {
		if sh.Type != SHTHash {
			continue
		}

		n, err := sysvHashCount(buf, sh.Offset, img.Header.Machine, img.Header.Container())
		if err != nil {
			return err
		}

		img.SymbolCount = n

		return nil
	}

	return nil
}

// SectionName resolves a section's name through the string table.
func (img *Image) SectionName(sh SectionHeader) (string, error) {
	if uint64(sh.Name) >= uint64(len(img.shstrtab)) {
		return "", &SizeOverflowError{Stage: StageStringTable, Base: uint64(sh.Name), Size: uint64(len(img.shstrtab))}
	}

	tail := img.shstrtab[sh.Name:]

	for i, b := range tail {
		if b == 0 {
			return string(tail[:i]), nil
		}
	}

	return "", &EndOfBinaryError{Stage: StageStringTable, Offset: int(sh.Name), Need: 1}
}

// EntryPoint is the virtual address execution starts at.
func (img *Image) EntryPoint() uint64 {
	return img.Header.Entry
}

// LoadPlan is the minimal contiguous physical range the loadable segments
// require.
type LoadPlan struct {
	Head uint64
	Tail uint64
}

// Empty reports whether the plan covers no memory. An image with zero
// loadable segments yields the sentinel pair (max, 0); callers must reject
// it rather than allocate a nonsensical span.
func (p LoadPlan) Empty() bool {
	return p.Head >= p.Tail
}

// Size is the byte length of the span.
func (p LoadPlan) Size() uint64 {
	return p.Tail - p.Head
}

// LoadBounds computes the enclosing interval of all loadable segments: the
// running minimum of segment starts and running maximum of segment ends.
func (img *Image) LoadBounds() LoadPlan {
	plan := LoadPlan{Head: math.MaxUint64, Tail: 0}

	for _, ph := range img.Programs {
		if ph.Type != PTLoad {
			continue
		}

		head := ph.VAddr
		tail := ph.VAddr + ph.MemSize

		if head < plan.Head {
			plan.Head = head
		}

		if tail > plan.Tail {
			plan.Tail = tail
		}
	}

	return plan
}

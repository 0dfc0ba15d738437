package elf

import "encoding/binary"

// Stage records where in the image a parse was positioned when it failed.
type Stage int

const (
	StageHeader Stage = iota
	StageProgramHeader
	StageSectionHeader
	StageStringTable
	StageHashTable
)

func (s Stage) String() string {
	switch s {
	case StageHeader:
		return "header"
	case StageProgramHeader:
		return "program-header"
	case StageSectionHeader:
		return "section-header"
	case StageStringTable:
		return "string-table"
	case StageHashTable:
		return "hash-table"
	default:
		return "unknown"
	}
}

// cursor is the read-and-advance primitive every other parsing routine is
// built on. All fields are fixed-width little-endian; a read past the end
// of the buffer fails with an EndOfBinaryError instead of touching memory
// out of bounds.
type cursor struct {
	buf   []byte
	off   int
	stage Stage
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) need(n int) error {
	if c.off < 0 || c.remaining() < n {
		return &EndOfBinaryError{Stage: c.stage, Offset: c.off, Need: n}
	}

	return nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}

	c.off += n

	return nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}

	out := c.buf[c.off : c.off+n]
	c.off += n

	return out, nil
}

func (c *cursor) uint8() (uint8, error) {
	b, err := c.bytes(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (c *cursor) uint16() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

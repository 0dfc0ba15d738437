package elf

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBadMagic means the identification bytes are not an ELF image at all.
var ErrBadMagic = errors.New("bad ELF magic")

// EndOfBinaryError is a fixed-width read that would run past the buffer,
// with the parsing stage for diagnostics.
type EndOfBinaryError struct {
	Stage  Stage
	Offset int
	Need   int
}

func (e *EndOfBinaryError) Error() string {
	return fmt.Sprintf("end of binary in %s: need %d bytes at offset %#x", e.Stage, e.Need, e.Offset)
}

// SizeOverflowError is a declared count, offset or size that exceeds the
// container. These fields are attacker controlled when parsing an
// unexpected image, so they are checked before any allocation or read.
type SizeOverflowError struct {
	Stage Stage
	Base  uint64
	Size  uint64
}

func (e *SizeOverflowError) Error() string {
	return fmt.Sprintf("size overflow in %s: base %#x size %#x exceeds container", e.Stage, e.Base, e.Size)
}

// UnsupportedError is an identification or machine tag outside the set this
// loader handles.
type UnsupportedError struct {
	Field string
	Value uint64
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported %s %#x", e.Field, e.Value)
}

// GNUHashError is a malformed GNU-style hash header; all three raw header
// values ride along for diagnostics.
type GNUHashError struct {
	Buckets   uint32
	MinChain  uint32
	BloomSize uint32
}

func (e *GNUHashError) Error() string {
	return fmt.Sprintf("invalid gnu hash: buckets_count=%d min_chain=%d bloom_size=%d",
		e.Buckets, e.MinChain, e.BloomSize)
}

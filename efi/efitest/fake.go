// Package efitest fabricates an in-process firmware for exercising the
// protocol binding layer. Call-table slots are plain map entries keyed by
// slot address, and pointer arguments are real Go pointers smuggled through
// uint64, so handlers can write results back the way firmware would.
package efitest

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/sugiura-hiromiti/osoboot/efi"
)

// Handler services one call-table slot.
type Handler func(args []uint64) efi.Status

// Fake is a firmware stand-in. It is single-threaded, like the environment
// it imitates.
type Fake struct {
	slots map[uint64]Handler

	// keeps fabricated firmware structures reachable so their addresses
	// stay valid for the duration of a test
	pinned [][]byte
}

func New() *Fake {
	return &Fake{slots: make(map[uint64]Handler)}
}

// Call is the efi.CallFn for this fake.
func (f *Fake) Call(proc uint64, args ...uint64) efi.Status {
	h, ok := f.slots[proc]
	if !ok {
		panic(fmt.Sprintf("efitest: call to unregistered slot %#x", proc))
	}

	return h(args)
}

// Register installs a handler for the slot at addr.
func (f *Fake) Register(addr uint64, h Handler) {
	f.slots[addr] = h
}

// Alloc fabricates a firmware-owned buffer and returns its address and the
// backing slice.
func (f *Fake) Alloc(size int) (uint64, []byte) {
	buf := make([]byte, size)
	f.pinned = append(f.pinned, buf)

	return uint64(uintptr(unsafe.Pointer(&buf[0]))), buf
}

// Region fabricates an opaque address range usable as a call-table base or
// protocol interface address.
func (f *Fake) Region(size int) uint64 {
	addr, _ := f.Alloc(size)
	return addr
}

// SystemTable fabricates a valid EFI system table pointing at the given
// console output interface and boot services base.
func (f *Fake) SystemTable(conOut, bootBase uint64) uint64 {
	addr, buf := f.Alloc(120)

	le := binary.LittleEndian
	le.PutUint64(buf[0:], efi.Signature)
	le.PutUint64(buf[64:], conOut)
	le.PutUint64(buf[96:], bootBase)

	return addr
}

// U64 dereferences a pointer argument a handler received.
func U64(addr uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(addr)))
}

// U32 dereferences a 32-bit pointer argument.
func U32(addr uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(addr)))
}

// Bytes views n bytes at addr, the way firmware would fill a caller buffer.
func Bytes(addr uint64, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}

// UTF16At decodes the null-terminated UTF-16 string a handler received by
// address.
func UTF16At(addr uint64) []uint16 {
	var out []uint16

	for off := uint64(0); ; off += 2 {
		u := binary.LittleEndian.Uint16(Bytes(addr+off, 2))
		if u == 0 {
			return out
		}

		out = append(out, u)
	}
}

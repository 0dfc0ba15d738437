package efi

import "unsafe"

// CallFn invokes a firmware function through a call-table slot. proc is the
// address of the slot holding the function pointer, not the function itself;
// the trampoline loads the pointer and calls it with the EFI calling
// convention. Platform bring-up supplies the real trampoline, tests supply
// an in-process fake keyed by slot address.
//
// The trampoline must not unwind and callers must not panic across it: the
// target is foreign code with no notion of Go's unwinding. Failures come
// back as a Status value only.
type CallFn func(proc uint64, args ...uint64) Status

var (
	alwaysFalse bool
	escapeSink  unsafe.Pointer
)

// ptrval returns the address of p for the EFI ABI. The pointee must remain
// at that address while firmware holds it, so p is forced to escape to the
// heap: a stack address would go stale if the goroutine stack moves before
// the callee writes through it.
func ptrval(p unsafe.Pointer) uint64 {
	if alwaysFalse {
		escapeSink = p
	}

	return uint64(uintptr(p))
}

// MapRange returns a byte view over the identity-mapped preboot address
// space. Before ExitBootServices the firmware maps physical memory 1:1, so
// a physical address is directly addressable.
func MapRange(addr uint64, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

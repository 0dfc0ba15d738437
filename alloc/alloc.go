// Package alloc is the boot-time allocator: a thin veneer over the
// firmware's pool allocation, the only dynamic memory source before the
// kernel owns physical memory.
package alloc

import (
	"fmt"
	"unsafe"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/log"
)

// Allocator serves pool allocations tagged LoaderData.
type Allocator struct {
	L hclog.Logger

	boot *efi.BootServices
}

func New(boot *efi.BootServices) *Allocator {
	return &Allocator{
		L:    log.L,
		boot: boot,
	}
}

// Allocate returns a byte view over size bytes of pool memory. The pool
// guarantees 8-byte alignment only.
//
// Out-of-memory is fatal: there is no fallback allocator at this stage and
// the program cannot continue meaningfully without memory, so this logs a
// diagnostic and terminates rather than returning an error.
func (a *Allocator) Allocate(size int) []byte {
	return a.AllocateAligned(size, 8)
}

// AllocateAligned refuses any alignment stricter than the pool's 8-byte
// guarantee. Silently rounding would hide the misuse, so it terminates
// instead.
func (a *Allocator) AllocateAligned(size, align int) []byte {
	if align > 8 {
		panic(fmt.Sprintf("alloc: pool allocations are 8-byte aligned, %d requested", align))
	}

	addr, err := a.boot.AllocatePool(efi.LoaderData, size)
	if err != nil {
		a.L.Error("firmware pool exhausted", "size", size, "error", err)
		panic("alloc: out of memory before kernel handoff")
	}

	return efi.MapRange(addr, size)
}

// Deallocate releases a buffer returned by Allocate.
func (a *Allocator) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))

	if err := a.boot.FreePool(addr); err != nil {
		a.L.Error("firmware rejected pool free", "addr", addr, "error", err)
		panic("alloc: deallocation failed")
	}
}

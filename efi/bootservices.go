package efi

import (
	"unsafe"

	"github.com/pkg/errors"
)

// EFI Boot Services call-table slot offsets (UEFI Specification 2.10,
// Table 4.4). These byte offsets are the only raw-ABI surface; everything
// above them is typed. Any deviation here is a silent ABI violation, so the
// values are kept verbatim from the table layout.
const (
	bsAllocatePages      = 0x028
	bsFreePages          = 0x030
	bsGetMemoryMap       = 0x038
	bsAllocatePool       = 0x040
	bsFreePool           = 0x048
	bsHandleProtocol     = 0x098
	bsExitBootServices   = 0x0e8
	bsStall              = 0x0f8
	bsOpenProtocol       = 0x118
	bsCloseProtocol      = 0x120
	bsLocateHandleBuffer = 0x138
	bsLocateProtocol     = 0x140
)

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages = iota
	AllocateMaxAddress
	AllocateAddress
)

// EFI_MEMORY_TYPE
const (
	ReservedMemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemory
	MaxMemoryType
)

// PageSize is the EFI page size in bytes.
const PageSize = 4096

// RequiredPages converts a byte size to a page count for AllocatePages.
//
// The extra page is added even when size is an exact multiple of PageSize.
// TODO: decide whether the kernel relies on the trailing guard page before
// switching this to plain ceiling division.
func RequiredPages(size uint64) uint64 {
	return size/PageSize + 1
}

// openProtocolExclusive is EFI_OPEN_PROTOCOL_EXCLUSIVE.
const openProtocolExclusive = 0x20

// BootServices wraps the firmware's boot-time call table. All methods are
// synchronous: the single execution context blocks until firmware returns.
type BootServices struct {
	base  uint64
	image uint64
	call  CallFn
}

// NewBootServices binds a call table at base for the given image handle.
// Production code reaches boot services through Firmware; this constructor
// exists for tests and tooling that fabricate tables.
func NewBootServices(base, image uint64, call CallFn) *BootServices {
	return &BootServices{base: base, image: image, call: call}
}

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages() and returns the
// physical address of the allocation.
func (s *BootServices) AllocatePages(allocateType, memoryType int, pages, addr uint64) (uint64, error) {
	status := s.call(s.base+bsAllocatePages,
		uint64(allocateType),
		uint64(memoryType),
		pages,
		ptrval(unsafe.Pointer(&addr)),
	)

	return addr, status.Err()
}

// FreePages calls EFI_BOOT_SERVICES.FreePages().
func (s *BootServices) FreePages(addr, pages uint64) error {
	return s.call(s.base+bsFreePages, addr, pages).Err()
}

// AllocatePool calls EFI_BOOT_SERVICES.AllocatePool(). The pool guarantees
// 8-byte alignment only.
func (s *BootServices) AllocatePool(memoryType, size int) (uint64, error) {
	var buf uint64

	status := s.call(s.base+bsAllocatePool,
		uint64(memoryType),
		uint64(size),
		ptrval(unsafe.Pointer(&buf)),
	)

	if err := status.Err(); err != nil {
		return 0, err
	}

	if buf == 0 {
		return 0, errors.New("firmware returned success and a null pool pointer")
	}

	return buf, nil
}

// FreePool calls EFI_BOOT_SERVICES.FreePool().
func (s *BootServices) FreePool(addr uint64) error {
	return s.call(s.base+bsFreePool, addr).Err()
}

// MapMeta describes one memory-map snapshot as reported by firmware. The
// descriptor stride is DescriptorSize, which may exceed the compiled-in
// descriptor layout; consumers must step by it, never by their own struct
// size.
type MapMeta struct {
	MapSize           uint64
	MapKey            uint64
	DescriptorSize    uint64
	DescriptorVersion uint32
}

// MemoryMapSize probes the firmware for the current memory-map size without
// fetching it. The EFI_BUFFER_TOO_SMALL status is the expected, informative
// outcome here, not a failure.
func (s *BootServices) MemoryMapSize() (MapMeta, error) {
	var m MapMeta

	status := s.call(s.base+bsGetMemoryMap,
		ptrval(unsafe.Pointer(&m.MapSize)),
		0,
		ptrval(unsafe.Pointer(&m.MapKey)),
		ptrval(unsafe.Pointer(&m.DescriptorSize)),
		ptrval(unsafe.Pointer(&m.DescriptorVersion)),
	)

	if status != BufferTooSmall {
		return m, errors.Wrap(status.Err(), "memory map size probe")
	}

	return m, nil
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap(), filling buf with the
// descriptor array. buf must be 8-byte aligned, which pool allocations
// guarantee.
func (s *BootServices) GetMemoryMap(buf []byte) (MapMeta, error) {
	m := MapMeta{MapSize: uint64(len(buf))}

	status := s.call(s.base+bsGetMemoryMap,
		ptrval(unsafe.Pointer(&m.MapSize)),
		ptrval(unsafe.Pointer(&buf[0])),
		ptrval(unsafe.Pointer(&m.MapKey)),
		ptrval(unsafe.Pointer(&m.DescriptorSize)),
		ptrval(unsafe.Pointer(&m.DescriptorVersion)),
	)

	return m, status.Err()
}

// byProtocol is the EFI_LOCATE_SEARCH_TYPE for GUID searches.
const byProtocol = 2

// HandleFor locates the first handle implementing the protocol identified
// by guid. The firmware-allocated handle buffer is freed before returning.
func (s *BootServices) HandleFor(guid GUID) (uint64, error) {
	var (
		count  uint64
		buffer uint64
	)

	status := s.call(s.base+bsLocateHandleBuffer,
		byProtocol,
		ptrval(unsafe.Pointer(&guid)),
		0,
		ptrval(unsafe.Pointer(&count)),
		ptrval(unsafe.Pointer(&buffer)),
	)

	if err := status.Err(); err != nil {
		return 0, errors.Wrapf(err, "locating handles for %s", guid)
	}

	if count == 0 {
		return 0, errors.Errorf("no handle implements %s", guid)
	}

	handle := uint64(0)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&handle)), 8), MapRange(buffer, 8))

	ferr := s.FreePool(buffer)
	if ferr != nil {
		return 0, errors.Wrap(ferr, "releasing handle buffer")
	}

	return handle, nil
}

// OpenProtocol opens the protocol identified by guid on handle with
// exclusive access and returns the interface address plus a closer. The
// open bumps the firmware's protocol bookkeeping; the closer must run on
// every exit path.
func (s *BootServices) OpenProtocol(handle uint64, guid GUID) (uint64, func() error, error) {
	var iface uint64

	status := s.call(s.base+bsOpenProtocol,
		handle,
		ptrval(unsafe.Pointer(&guid)),
		ptrval(unsafe.Pointer(&iface)),
		s.image,
		0,
		openProtocolExclusive,
	)

	if err := status.Err(); err != nil {
		return 0, nil, errors.Wrapf(err, "opening %s", guid)
	}

	closer := func() error {
		g := guid
		return s.call(s.base+bsCloseProtocol,
			handle,
			ptrval(unsafe.Pointer(&g)),
			s.image,
			0,
		).Err()
	}

	return iface, closer, nil
}

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol(), returning the
// first interface registered for guid without opening it.
func (s *BootServices) LocateProtocol(guid GUID) (uint64, error) {
	var iface uint64

	status := s.call(s.base+bsLocateProtocol,
		ptrval(unsafe.Pointer(&guid)),
		0,
		ptrval(unsafe.Pointer(&iface)),
	)

	return iface, status.Err()
}

// Stall calls EFI_BOOT_SERVICES.Stall(), blocking for usec microseconds.
func (s *BootServices) Stall(usec uint64) error {
	return s.call(s.base+bsStall, usec).Err()
}

// ExitBootServices terminates boot services with a fresh map key. A stale
// key (firmware mutated the map between fetch and exit) comes back as
// EFI_INVALID_PARAMETER and is retried once with a refetched map.
func (s *BootServices) ExitBootServices(buf []byte) error {
	for attempt := 0; ; attempt++ {
		m, err := s.GetMemoryMap(buf)
		if err != nil {
			return errors.Wrap(err, "fetching map key for exit")
		}

		status := s.call(s.base+bsExitBootServices, s.image, m.MapKey)
		if status.IsSuccess() {
			return nil
		}

		if status != InvalidParameter || attempt > 0 {
			return status.Err()
		}
	}
}

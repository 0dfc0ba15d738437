package efi

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/pkg/errors"
)

// Signature precedes the EFI System Table ("IBI SYST").
const Signature = 0x5453595320494249

// TableHeader precedes all standard EFI tables.
type TableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// SystemTable mirrors the binary layout of EFI_SYSTEM_TABLE. Only the
// pointers the loader needs are ever followed.
type SystemTable struct {
	Header               TableHeader
	FirmwareVendor       uint64
	FirmwareRevision     uint32
	_                    uint32
	ConsoleInHandle      uint64
	ConIn                uint64
	ConsoleOutHandle     uint64
	ConOut               uint64
	StandardErrorHandle  uint64
	StdErr               uint64
	RuntimeServices      uint64
	BootServices         uint64
	NumberOfTableEntries uint64
	ConfigurationTable   uint64
}

var ErrBadSystemTable = errors.New("EFI system table pointer is invalid")

// Firmware is the explicit context value for all firmware access. It is
// built exactly once at entry and threaded by reference to every component
// that needs firmware services; there is no package-level table pointer.
type Firmware struct {
	Image uint64
	Table SystemTable
	Boot  *BootServices

	call CallFn
}

// New reads and validates the system table at tablePtr and binds the boot
// services call table. call is the platform's EFI trampoline.
func New(imageHandle, tablePtr uint64, call CallFn) (*Firmware, error) {
	if tablePtr == 0 {
		return nil, errors.Wrap(ErrBadSystemTable, "nil table pointer")
	}

	fw := &Firmware{
		Image: imageHandle,
		call:  call,
	}

	size := int(unsafe.Sizeof(fw.Table))

	err := binary.Read(bytes.NewReader(MapRange(tablePtr, size)), binary.LittleEndian, &fw.Table)
	if err != nil {
		return nil, err
	}

	if fw.Table.Header.Signature != Signature {
		return nil, errors.Wrapf(ErrBadSystemTable, "signature %#x", fw.Table.Header.Signature)
	}

	fw.Boot = &BootServices{
		base:  fw.Table.BootServices,
		image: imageHandle,
		call:  call,
	}

	return fw, nil
}

// ConOut returns the firmware's active console output protocol.
func (fw *Firmware) ConOut() *TextOutput {
	return &TextOutput{addr: fw.Table.ConOut, call: fw.call}
}

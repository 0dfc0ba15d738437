// Package memmap fetches and decodes the firmware memory map. The map is
// the input to ExitBootServices and the diagnostic artifact the loader can
// export as CSV before handoff.
package memmap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/sugiura-hiromiti/osoboot/alloc"
	"github.com/sugiura-hiromiti/osoboot/efi"
)

// Descriptor is one decoded memory-map entry. The wire record is Type (32
// bits plus padding) followed by four 64-bit words; firmware may append
// vendor fields after Attribute, which is why snapshots step by the
// reported stride and never by this struct's size.
type Descriptor struct {
	Type          uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// descriptorWireSize is the portion of a record this package decodes.
const descriptorWireSize = 40

var typeNames = map[uint32]string{
	efi.ReservedMemoryType:      "ReservedMemoryType",
	efi.LoaderCode:              "LoaderCode",
	efi.LoaderData:              "LoaderData",
	efi.BootServicesCode:        "BootServicesCode",
	efi.BootServicesData:        "BootServicesData",
	efi.RuntimeServicesCode:     "RuntimeServicesCode",
	efi.RuntimeServicesData:     "RuntimeServicesData",
	efi.ConventionalMemory:      "ConventionalMemory",
	efi.UnusableMemory:          "UnusableMemory",
	efi.ACPIReclaimMemory:       "ACPIReclaimMemory",
	efi.ACPIMemoryNVS:           "ACPIMemoryNVS",
	efi.MemoryMappedIO:          "MemoryMappedIO",
	efi.MemoryMappedIOPortSpace: "MemoryMappedIOPortSpace",
	efi.PalCode:                 "PalCode",
	efi.PersistentMemory:        "PersistentMemory",
	efi.UnacceptedMemory:        "UnacceptedMemory",
}

// TypeName names a memory type, or "Unknown" for values past the defined
// range.
func TypeName(t uint32) string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return "Unknown"
}

// Map is a fetched memory-map snapshot backed by a pool buffer.
type Map struct {
	Meta efi.MapMeta

	raw []byte
	buf []byte
	a   *alloc.Allocator
}

// slackDescriptors covers map growth between the size probe and the fetch.
// The pool allocation itself adds at least one entry.
const slackDescriptors = 2

// Fetch probes the current map size, allocates a pool buffer with slack,
// and snapshots the map into it.
func Fetch(bs *efi.BootServices) (*Map, error) {
	meta, err := bs.MemoryMapSize()
	if err != nil {
		return nil, err
	}

	size := meta.MapSize + slackDescriptors*meta.DescriptorSize

	a := alloc.New(bs)
	buf := a.Allocate(int(size))

	m, err := bs.GetMemoryMap(buf)
	if err != nil {
		a.Deallocate(buf)
		return nil, errors.Wrap(err, "fetching memory map")
	}

	return &Map{Meta: m, raw: buf[:m.MapSize], buf: buf, a: a}, nil
}

// Raw is the underlying descriptor buffer, sized to the fetched map. It is
// the buffer handed to ExitBootServices.
func (m *Map) Raw() []byte {
	return m.raw
}

// Free releases the pool buffer. The map must not be used afterwards.
func (m *Map) Free() {
	m.a.Deallocate(m.buf)
}

// Descriptors decodes the snapshot.
func (m *Map) Descriptors() []Descriptor {
	return Snapshot(m.raw, m.Meta.DescriptorSize)
}

// Snapshot decodes a raw descriptor buffer, stepping by the stride firmware
// reported. Records truncated by a short buffer are dropped.
func Snapshot(raw []byte, descriptorSize uint64) []Descriptor {
	if descriptorSize < descriptorWireSize {
		return nil
	}

	le := binary.LittleEndian

	var out []Descriptor

	for off := uint64(0); off+descriptorWireSize <= uint64(len(raw)); off += descriptorSize {
		rec := raw[off:]

		out = append(out, Descriptor{
			Type:          le.Uint32(rec),
			PhysicalStart: le.Uint64(rec[8:]),
			VirtualStart:  le.Uint64(rec[16:]),
			NumberOfPages: le.Uint64(rec[24:]),
			Attribute:     le.Uint64(rec[32:]),
		})
	}

	return out
}

// FindType returns the descriptors of the given memory type in map order.
func (m *Map) FindType(t uint32) []Descriptor {
	var out []Descriptor

	for _, d := range m.Descriptors() {
		if d.Type == t {
			out = append(out, d)
		}
	}

	return out
}

// attributeMask drops the vendor and runtime bits above the architectural
// attribute range for the CSV rendering.
const attributeMask = 0xfffff

// WriteCSV renders descriptors in the diagnostic CSV layout.
func WriteCSV(w io.Writer, descriptors []Descriptor) error {
	if _, err := io.WriteString(w, "Index, Type, Type(name), PhysicalStart, NumberOfPages, Attribute\n"); err != nil {
		return err
	}

	for i, d := range descriptors {
		_, err := fmt.Fprintf(w, "%d, %#x, %s, %#08x, %#x, %#x\n",
			i,
			d.Type,
			TypeName(d.Type),
			d.PhysicalStart,
			d.NumberOfPages,
			d.Attribute&attributeMask,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

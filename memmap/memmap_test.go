package memmap_test

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/efi/efitest"
	"github.com/sugiura-hiromiti/osoboot/memmap"
)

// encode writes descriptors at the given stride, padding the tail of each
// record the way firmware with vendor fields does.
func encode(stride uint64, descriptors []memmap.Descriptor) []byte {
	buf := make([]byte, stride*uint64(len(descriptors)))
	le := binary.LittleEndian

	for i, d := range descriptors {
		rec := buf[uint64(i)*stride:]

		le.PutUint32(rec, d.Type)
		le.PutUint64(rec[8:], d.PhysicalStart)
		le.PutUint64(rec[16:], d.VirtualStart)
		le.PutUint64(rec[24:], d.NumberOfPages)
		le.PutUint64(rec[32:], d.Attribute)
	}

	return buf
}

func TestSnapshotStride(t *testing.T) {
	want := []memmap.Descriptor{
		{Type: efi.ConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: 0x400, Attribute: 0xf},
		{Type: efi.LoaderData, PhysicalStart: 0x500000, NumberOfPages: 0x10, Attribute: 0xf},
		{Type: efi.MemoryMappedIO, PhysicalStart: 0xfee00000, NumberOfPages: 0x1, Attribute: 0x8000000000000001},
	}

	t.Run("reported stride larger than the decoded record", func(t *testing.T) {
		got := memmap.Snapshot(encode(48, want), 48)
		require.Equal(t, want, got)
	})

	t.Run("minimal stride", func(t *testing.T) {
		got := memmap.Snapshot(encode(40, want), 40)
		require.Equal(t, want, got)
	})

	t.Run("stride below the record size yields nothing", func(t *testing.T) {
		require.Nil(t, memmap.Snapshot(encode(40, want), 16))
	})

	t.Run("trailing partial record is dropped", func(t *testing.T) {
		raw := encode(40, want)
		got := memmap.Snapshot(raw[:len(raw)-8], 40)
		require.Len(t, got, 2)
	})
}

func TestWriteCSV(t *testing.T) {
	descriptors := []memmap.Descriptor{
		{Type: efi.ConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: 0x400, Attribute: 0xf},
		{Type: efi.MemoryMappedIO, PhysicalStart: 0xfee00000, NumberOfPages: 0x1, Attribute: 0x8000000000000001},
	}

	var buf bytes.Buffer
	require.NoError(t, memmap.WriteCSV(&buf, descriptors))

	// the attribute column drops bits above the architectural range
	want := "Index, Type, Type(name), PhysicalStart, NumberOfPages, Attribute\n" +
		"0, 0x7, ConventionalMemory, 0x100000, 0x400, 0xf\n" +
		"1, 0xb, MemoryMappedIO, 0xfee00000, 0x1, 0x1\n"

	require.Equal(t, want, buf.String())
}

func TestWriteCSVPadsShortAddresses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, memmap.WriteCSV(&buf, []memmap.Descriptor{
		{Type: efi.LoaderCode, PhysicalStart: 0x1000, NumberOfPages: 2, Attribute: 0xf},
	}))

	require.Contains(t, buf.String(), "0, 0x1, LoaderCode, 0x001000, 0x2, 0xf\n")
}

func TestCSVRoundTrip(t *testing.T) {
	want := []memmap.Descriptor{
		{Type: efi.ConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: 0x400, Attribute: 0xf},
		{Type: efi.RuntimeServicesData, PhysicalStart: 0x7ff00000, NumberOfPages: 0x100, Attribute: 0x800000000000000f},
		{Type: efi.MemoryMappedIO, PhysicalStart: 0xfee00000, NumberOfPages: 0x1, Attribute: 0x1},
	}

	var buf bytes.Buffer
	require.NoError(t, memmap.WriteCSV(&buf, want))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(want)+1)

	hex := func(s string) uint64 {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 64)
		require.NoError(t, err)

		return v
	}

	for i, line := range lines[1:] {
		cols := strings.Split(line, ", ")
		require.Len(t, cols, 6)

		idx, err := strconv.Atoi(cols[0])
		require.NoError(t, err)
		require.Equal(t, i, idx)

		require.Equal(t, uint64(want[i].Type), hex(cols[1]))
		require.Equal(t, memmap.TypeName(want[i].Type), cols[2])
		require.Equal(t, want[i].PhysicalStart, hex(cols[3]))
		require.Equal(t, want[i].NumberOfPages, hex(cols[4]))
		require.Equal(t, want[i].Attribute&0xfffff, hex(cols[5]))
	}
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "ConventionalMemory", memmap.TypeName(efi.ConventionalMemory))
	require.Equal(t, "Unknown", memmap.TypeName(0x7fffffff))
}

func TestFetch(t *testing.T) {
	descriptors := []memmap.Descriptor{
		{Type: efi.ConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: 0x400, Attribute: 0xf},
		{Type: efi.BootServicesData, PhysicalStart: 0x7f000000, NumberOfPages: 0x80, Attribute: 0xf},
	}

	const stride = 48

	raw := encode(stride, descriptors)

	fake := efitest.New()
	bootBase := fake.Region(0x200)

	freed := 0

	fake.Register(bootBase+0x38, func(args []uint64) efi.Status {
		size := efitest.U64(args[0])

		if args[1] == 0 {
			*size = uint64(len(raw))
			*efitest.U64(args[3]) = stride

			return efi.BufferTooSmall
		}

		require.GreaterOrEqual(t, *size, uint64(len(raw)))

		copy(efitest.Bytes(args[1], len(raw)), raw)
		*size = uint64(len(raw))
		*efitest.U64(args[2]) = 0x51
		*efitest.U64(args[3]) = stride

		return efi.Success
	})

	fake.Register(bootBase+0x40, func(args []uint64) efi.Status {
		addr, _ := fake.Alloc(int(args[1]))
		*efitest.U64(args[2]) = addr

		return efi.Success
	})

	fake.Register(bootBase+0x48, func(args []uint64) efi.Status {
		freed++
		return efi.Success
	})

	bs := efi.NewBootServices(bootBase, 0x9999, fake.Call)

	m, err := memmap.Fetch(bs)
	require.NoError(t, err)
	require.Equal(t, uint64(0x51), m.Meta.MapKey)
	require.Equal(t, uint64(stride), m.Meta.DescriptorSize)
	require.Equal(t, descriptors, m.Descriptors())
	require.Len(t, m.Raw(), len(raw))

	conventional := m.FindType(efi.ConventionalMemory)
	require.Len(t, conventional, 1)
	require.Equal(t, uint64(0x100000), conventional[0].PhysicalStart)

	m.Free()
	require.Equal(t, 1, freed)
}

package fs_test

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/efi/efitest"
	"github.com/sugiura-hiromiti/osoboot/fs"
)

// fakeVolume wires a fake firmware exposing a single-directory volume with
// one regular file and one subdirectory.
type fakeVolume struct {
	fake *efitest.Fake
	fw   *efi.Firmware

	opens  int
	closes int

	fileCloses int
}

func infoRecord(fileSize uint64, attr efi.FileAttributes, name string) []byte {
	units := utf16.Encode([]rune(name))

	buf := make([]byte, 80+2*len(units)+2)
	le := binary.LittleEndian

	le.PutUint64(buf[0:], uint64(len(buf)))
	le.PutUint64(buf[8:], fileSize)
	le.PutUint64(buf[16:], fileSize)
	le.PutUint64(buf[72:], uint64(attr))

	for i, u := range units {
		le.PutUint16(buf[80+2*i:], u)
	}

	return buf
}

func registerInfo(f *efitest.Fake, addr uint64, record []byte) {
	f.Register(addr+0x40, func(args []uint64) efi.Status {
		size := efitest.U64(args[2])

		if args[3] == 0 {
			*size = uint64(len(record))
			return efi.BufferTooSmall
		}

		copy(efitest.Bytes(args[3], len(record)), record)
		*size = uint64(len(record))

		return efi.Success
	})
}

func newFakeVolume(t *testing.T, content []byte) *fakeVolume {
	t.Helper()

	v := &fakeVolume{fake: efitest.New()}
	f := v.fake

	bootBase := f.Region(0x200)
	sfsAddr := f.Region(0x40)
	rootAddr := f.Region(0x60)
	fileAddr := f.Region(0x60)
	dirAddr := f.Region(0x60)

	handleBuf, handleBytes := f.Alloc(8)
	binary.LittleEndian.PutUint64(handleBytes, 0x1111)

	f.Register(bootBase+0x138, func(args []uint64) efi.Status {
		*efitest.U64(args[3]) = 1
		*efitest.U64(args[4]) = handleBuf

		return efi.Success
	})

	f.Register(bootBase+0x48, func(args []uint64) efi.Status {
		return efi.Success
	})

	f.Register(bootBase+0x118, func(args []uint64) efi.Status {
		v.opens++
		*efitest.U64(args[2]) = sfsAddr

		return efi.Success
	})

	f.Register(bootBase+0x120, func(args []uint64) efi.Status {
		v.closes++
		return efi.Success
	})

	f.Register(sfsAddr+0x08, func(args []uint64) efi.Status {
		*efitest.U64(args[1]) = rootAddr
		return efi.Success
	})

	f.Register(rootAddr+0x08, func(args []uint64) efi.Status {
		name := string(utf16.Decode(efitest.UTF16At(args[2])))

		switch name {
		case "oso_kernel.elf":
			*efitest.U64(args[1]) = fileAddr
			return efi.Success
		case "boot":
			*efitest.U64(args[1]) = dirAddr
			return efi.Success
		}

		return efi.NotFound
	})

	f.Register(rootAddr+0x10, func(args []uint64) efi.Status {
		return efi.Success
	})

	registerInfo(f, fileAddr, infoRecord(uint64(len(content)), 0, "oso_kernel.elf"))
	registerInfo(f, dirAddr, infoRecord(0, efi.AttrDirectory, "boot"))

	// short reads: at most 8 bytes per call, the way real firmware is
	// allowed to behave
	pos := 0

	f.Register(fileAddr+0x20, func(args []uint64) efi.Status {
		n := efitest.U64(args[1])

		want := int(*n)
		if want > 8 {
			want = 8
		}

		if want > len(content)-pos {
			want = len(content) - pos
		}

		copy(efitest.Bytes(args[2], want), content[pos:pos+want])
		pos += want
		*n = uint64(want)

		return efi.Success
	})

	f.Register(fileAddr+0x10, func(args []uint64) efi.Status {
		v.fileCloses++
		return efi.Success
	})

	f.Register(dirAddr+0x10, func(args []uint64) efi.Status {
		v.fileCloses++
		return efi.Success
	})

	fw, err := efi.New(0x9999, v.fake.SystemTable(0, bootBase), f.Call)
	require.NoError(t, err)

	v.fw = fw

	return v
}

func TestMountAndReadAll(t *testing.T) {
	content := []byte("the quick brown kernel jumps over the lazy firmware")
	fv := newFakeVolume(t, content)

	vol, err := fs.Mount(fv.fw)
	require.NoError(t, err)
	require.Equal(t, 1, fv.opens)

	file, err := vol.Open("oso_kernel.elf")
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)), file.Size())

	got, err := file.ReadAll()
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.NoError(t, file.Close())
	require.NoError(t, vol.Close())
	require.Equal(t, 1, fv.closes, "protocol open must be balanced by a close")
}

func TestOpenMissingFile(t *testing.T) {
	fv := newFakeVolume(t, nil)

	vol, err := fs.Mount(fv.fw)
	require.NoError(t, err)

	_, err = vol.Open("no_such_kernel.elf")
	require.Error(t, err)

	st, ok := efi.StatusOf(err)
	require.True(t, ok)
	require.Equal(t, efi.NotFound, st)
}

func TestOpenDirectoryRejected(t *testing.T) {
	fv := newFakeVolume(t, nil)

	vol, err := fs.Mount(fv.fw)
	require.NoError(t, err)

	_, err = vol.Open("boot")
	require.Error(t, err)
	require.Equal(t, fs.ErrIsDirectory, errors.Cause(err))
	require.Equal(t, 1, fv.fileCloses, "the directory handle must not leak")
}

package efi

import (
	"encoding/binary"
	"unicode/utf16"
	"unsafe"

	"github.com/pkg/errors"
)

// EFI_SIMPLE_FILE_SYSTEM_PROTOCOL slot offsets.
const (
	sfsOpenVolume = 0x08
)

// EFI_FILE_PROTOCOL slot offsets.
const (
	fileOpen    = 0x08
	fileClose   = 0x10
	fileRead    = 0x20
	fileWrite   = 0x28
	fileGetInfo = 0x40
	fileFlush   = 0x50
)

// OpenMode selects how File.Open opens a file. The only combinations the
// firmware accepts are Read, Read|Write, and Create|Read|Write.
type OpenMode uint64

const (
	ModeRead   OpenMode = 1
	ModeWrite  OpenMode = 2
	ModeCreate OpenMode = 1 << 63

	ModeCreateReadWrite = ModeCreate | ModeRead | ModeWrite
)

// FileAttributes are the attribute bits for newly created files and the
// bits reported by FileInfo.
type FileAttributes uint64

const (
	AttrReadOnly  FileAttributes = 0x01
	AttrHidden    FileAttributes = 0x02
	AttrSystem    FileAttributes = 0x04
	AttrDirectory FileAttributes = 0x10
	AttrArchive   FileAttributes = 0x20
)

// FileSystem wraps an opened EFI_SIMPLE_FILE_SYSTEM_PROTOCOL interface.
type FileSystem struct {
	addr uint64
	call CallFn
}

// FileSystemAt binds the file system protocol interface at iface, as
// returned by OpenProtocol for SimpleFileSystemGUID.
func (fw *Firmware) FileSystemAt(iface uint64) *FileSystem {
	return &FileSystem{addr: iface, call: fw.call}
}

// OpenVolume opens the root directory of the volume.
func (s *FileSystem) OpenVolume() (*File, error) {
	var root uint64

	status := s.call(s.addr+sfsOpenVolume, s.addr, ptrval(unsafe.Pointer(&root)))
	if err := status.Err(); err != nil {
		return nil, errors.Wrap(err, "opening volume")
	}

	if root == 0 {
		return nil, errors.New("firmware returned success and a null root handle")
	}

	return &File{addr: root, call: s.call}, nil
}

// File wraps an EFI_FILE_PROTOCOL handle. It must be closed on every exit
// path, including error paths.
type File struct {
	addr uint64
	call CallFn
}

// Open opens name relative to f. The path crosses the ABI boundary as
// null-terminated UTF-16.
func (f *File) Open(name string, mode OpenMode, attrs FileAttributes) (*File, error) {
	var handle uint64

	path := utf16z(name)

	status := f.call(f.addr+fileOpen,
		f.addr,
		ptrval(unsafe.Pointer(&handle)),
		ptrval(unsafe.Pointer(&path[0])),
		uint64(mode),
		uint64(attrs),
	)

	if err := status.Err(); err != nil {
		return nil, errors.Wrapf(err, "opening %q", name)
	}

	if handle == 0 {
		return nil, errors.Errorf("firmware returned success and a null handle for %q", name)
	}

	return &File{addr: handle, call: f.call}, nil
}

// Close closes the handle. All cached data is flushed by firmware.
func (f *File) Close() error {
	return f.call(f.addr+fileClose, f.addr).Err()
}

// Read reads up to len(buf) bytes at the current position.
func (f *File) Read(buf []byte) (int, error) {
	n := uint64(len(buf))

	var bufPtr uint64
	if len(buf) > 0 {
		bufPtr = ptrval(unsafe.Pointer(&buf[0]))
	}

	status := f.call(f.addr+fileRead, f.addr, ptrval(unsafe.Pointer(&n)), bufPtr)
	if err := status.Err(); err != nil {
		return 0, err
	}

	return int(n), nil
}

// Write writes buf at the current position and reports bytes written.
func (f *File) Write(buf []byte) (int, error) {
	n := uint64(len(buf))

	var bufPtr uint64
	if len(buf) > 0 {
		bufPtr = ptrval(unsafe.Pointer(&buf[0]))
	}

	status := f.call(f.addr+fileWrite, f.addr, ptrval(unsafe.Pointer(&n)), bufPtr)
	if err := status.Err(); err != nil {
		return 0, err
	}

	return int(n), nil
}

// Flush flushes all modified data to the device.
func (f *File) Flush() error {
	return f.call(f.addr+fileFlush, f.addr).Err()
}

// FileInfo is the decoded EFI_FILE_INFO record.
type FileInfo struct {
	Size         uint64
	FileSize     uint64
	PhysicalSize uint64
	Attribute    FileAttributes
	Name         string
}

// IsDirectory reports whether the info describes a directory.
func (fi *FileInfo) IsDirectory() bool {
	return fi.Attribute&AttrDirectory != 0
}

// fileInfo layout: three uint64 sizes, three 16-byte EFI_TIME stamps, the
// attribute word, then the null-terminated UTF-16 name.
const (
	fileInfoAttrOff = 72
	fileInfoNameOff = 80
)

// Info queries EFI_FILE_INFO for f. The size probe expects the
// buffer-too-small status as a typed informational result and retries with
// the reported size.
func (f *File) Info() (*FileInfo, error) {
	guid := FileInfoGUID

	var n uint64

	status := f.call(f.addr+fileGetInfo,
		f.addr,
		ptrval(unsafe.Pointer(&guid)),
		ptrval(unsafe.Pointer(&n)),
		0,
	)

	if status != BufferTooSmall {
		if err := status.Err(); err != nil {
			return nil, errors.Wrap(err, "file info size probe")
		}

		return nil, errors.New("file info size probe succeeded without a buffer")
	}

	buf := make([]byte, n)

	status = f.call(f.addr+fileGetInfo,
		f.addr,
		ptrval(unsafe.Pointer(&guid)),
		ptrval(unsafe.Pointer(&n)),
		ptrval(unsafe.Pointer(&buf[0])),
	)

	if err := status.Err(); err != nil {
		return nil, errors.Wrap(err, "fetching file info")
	}

	return parseFileInfo(buf[:n])
}

func parseFileInfo(buf []byte) (*FileInfo, error) {
	if len(buf) < fileInfoNameOff {
		return nil, errors.Errorf("file info record truncated at %d bytes", len(buf))
	}

	le := binary.LittleEndian

	fi := &FileInfo{
		Size:         le.Uint64(buf),
		FileSize:     le.Uint64(buf[8:]),
		PhysicalSize: le.Uint64(buf[16:]),
		Attribute:    FileAttributes(le.Uint64(buf[fileInfoAttrOff:])),
	}

	var name []uint16

	for off := fileInfoNameOff; off+1 < len(buf); off += 2 {
		u := le.Uint16(buf[off:])
		if u == 0 {
			break
		}

		name = append(name, u)
	}

	fi.Name = string(utf16.Decode(name))

	return fi, nil
}

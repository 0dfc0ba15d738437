// Package fs mounts the firmware's simple file system and exposes typed
// volume and file handles over it. It owns the protocol bookkeeping: the
// exclusive open performed at mount time is closed again when the volume is.
package fs

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/log"
)

// ErrIsDirectory reports that a path resolved to a directory where a
// regular file was required.
var ErrIsDirectory = errors.New("path names a directory, not a regular file")

// Volume is a mounted boot volume. Close releases both the root directory
// handle and the exclusive protocol open.
type Volume struct {
	L hclog.Logger

	root       *efi.File
	closeProto func() error
}

// Mount locates the first simple-file-system handle, opens the protocol
// exclusively, and opens the volume root.
func Mount(fw *efi.Firmware) (*Volume, error) {
	handle, err := fw.Boot.HandleFor(efi.SimpleFileSystemGUID)
	if err != nil {
		return nil, errors.Wrap(err, "locating boot volume")
	}

	iface, closer, err := fw.Boot.OpenProtocol(handle, efi.SimpleFileSystemGUID)
	if err != nil {
		return nil, errors.Wrap(err, "opening file system protocol")
	}

	root, err := fw.FileSystemAt(iface).OpenVolume()
	if err != nil {
		if cerr := closer(); cerr != nil {
			return nil, errors.Wrapf(err, "volume open failed and protocol close failed too (%s)", cerr)
		}

		return nil, err
	}

	v := &Volume{
		L:          log.L.Named("fs"),
		root:       root,
		closeProto: closer,
	}

	v.L.Debug("mounted boot volume", "handle", handle)

	return v, nil
}

// Open opens name for reading. A path that resolves to a directory is
// rejected with ErrIsDirectory; the handle firmware returned for it is
// closed before reporting.
func (v *Volume) Open(name string) (*File, error) {
	h, err := v.root.Open(name, efi.ModeRead, 0)
	if err != nil {
		return nil, err
	}

	info, err := h.Info()
	if err != nil {
		h.Close()
		return nil, errors.Wrapf(err, "stating %q", name)
	}

	if info.IsDirectory() {
		h.Close()
		return nil, errors.Wrapf(ErrIsDirectory, "%q", name)
	}

	v.L.Debug("opened file", "name", name, "size", info.FileSize)

	return &File{name: name, handle: h, size: info.FileSize}, nil
}

// Create opens name for writing, creating it if absent and truncating is
// left to the caller's write pattern.
func (v *Volume) Create(name string) (*File, error) {
	h, err := v.root.Open(name, efi.ModeCreateReadWrite, 0)
	if err != nil {
		return nil, err
	}

	v.L.Debug("created file", "name", name)

	return &File{name: name, handle: h}, nil
}

// Close closes the root handle and releases the protocol open.
func (v *Volume) Close() error {
	err := v.root.Close()

	if cerr := v.closeProto(); cerr != nil && err == nil {
		err = cerr
	}

	return err
}

// File is an open regular file on a mounted volume.
type File struct {
	name   string
	handle *efi.File
	size   uint64
}

// Name is the path the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Size is the byte size reported by firmware at open time. It is zero for
// files opened with Create.
func (f *File) Size() uint64 {
	return f.size
}

// ReadAll reads the whole file into memory. Firmware may return short
// reads, so it loops until the reported size is in.
func (f *File) ReadAll() ([]byte, error) {
	buf := make([]byte, f.size)

	for off := 0; off < len(buf); {
		n, err := f.handle.Read(buf[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q at offset %d", f.name, off)
		}

		if n == 0 {
			return nil, errors.Errorf("reading %q: firmware returned no data at offset %d of %d", f.name, off, len(buf))
		}

		off += n
	}

	return buf, nil
}

// Read reads into buf at the current position.
func (f *File) Read(buf []byte) (int, error) {
	return f.handle.Read(buf)
}

// Write writes buf at the current position.
func (f *File) Write(buf []byte) (int, error) {
	return f.handle.Write(buf)
}

// Flush pushes buffered writes to the device.
func (f *File) Flush() error {
	return f.handle.Flush()
}

// Close closes the file handle.
func (f *File) Close() error {
	return f.handle.Close()
}

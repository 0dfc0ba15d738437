// Package loader drives the boot sequence: it reads the kernel image off
// the boot volume, places its loadable segments at their linked physical
// addresses, and assembles the handoff state the kernel entry expects.
package loader

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/elf"
	"github.com/sugiura-hiromiti/osoboot/fs"
	"github.com/sugiura-hiromiti/osoboot/log"
	"github.com/sugiura-hiromiti/osoboot/memmap"
)

// DefaultKernelPath is where the kernel image lives on the boot volume.
const DefaultKernelPath = "oso_kernel.elf"

var ErrNoLoadableSegments = errors.New("kernel image has no loadable segments")

type Loader struct {
	L hclog.Logger

	// KernelPath may be overridden before LoadKernel runs.
	KernelPath string

	fw    *efi.Firmware
	cache *ImageCache

	// mapRange views physical memory; swapped out by tests that have no
	// identity-mapped address space to write into
	mapRange func(addr uint64, size int) []byte
}

func New(fw *efi.Firmware, cache *ImageCache) *Loader {
	return &Loader{
		L:          log.L.Named("loader"),
		KernelPath: DefaultKernelPath,
		fw:         fw,
		cache:      cache,
		mapRange:   efi.MapRange,
	}
}

// UseConsole routes the global logger to the firmware text console so boot
// progress is visible on screen before handoff.
func UseConsole(fw *efi.Firmware) {
	log.SetOutput(&efi.Writer{Out: fw.ConOut()})
}

// Handoff is the state passed to the kernel entry point.
type Handoff struct {
	Entry    uint64
	FrameBuf *efi.FrameBufConf
}

func (l *Loader) parse(raw []byte) (*elf.Image, error) {
	if l.cache == nil {
		return elf.Parse(raw)
	}

	key := CacheKey(raw)

	if img, ok := l.cache.Lookup(key); ok {
		l.L.Debug("kernel image cache hit", "key", key)
		return img, nil
	}

	img, err := elf.Parse(raw)
	if err != nil {
		return nil, err
	}

	l.cache.Set(key, img)

	return img, nil
}

// LoadKernel reads the kernel off the boot volume, allocates its load span
// at the exact linked address, and copies the segments in. It returns the
// kernel entry point.
func (l *Loader) LoadKernel() (uint64, error) {
	vol, err := fs.Mount(l.fw)
	if err != nil {
		return 0, err
	}

	defer vol.Close()

	file, err := vol.Open(l.KernelPath)
	if err != nil {
		return 0, err
	}

	raw, err := file.ReadAll()

	if cerr := file.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return 0, err
	}

	img, err := l.parse(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q", l.KernelPath)
	}

	plan := img.LoadBounds()
	if plan.Empty() {
		return 0, errors.Wrapf(ErrNoLoadableSegments, "%q", l.KernelPath)
	}

	pages := efi.RequiredPages(plan.Size())

	l.L.Info("placing kernel",
		"head", hclog.Fmt("%#x", plan.Head),
		"tail", hclog.Fmt("%#x", plan.Tail),
		"pages", pages,
	)

	addr, err := l.fw.Boot.AllocatePages(efi.AllocateAddress, efi.LoaderData, pages, plan.Head)
	if err != nil {
		return 0, errors.Wrapf(err, "allocating %d pages at %#x", pages, plan.Head)
	}

	if addr != plan.Head {
		return 0, errors.Errorf("firmware placed the kernel at %#x, requested %#x", addr, plan.Head)
	}

	dst := l.mapRange(plan.Head, int(plan.Size()))

	if err := copySegments(dst, plan.Head, img, raw); err != nil {
		return 0, err
	}

	l.L.Info("kernel loaded", "entry", hclog.Fmt("%#x", img.EntryPoint()))

	return img.EntryPoint(), nil
}

// copySegments places each loadable segment into dst, which views the load
// span starting at base. File bytes are copied and the remainder of each
// segment's memory size is zeroed. All offsets come from the image and are
// bounds-checked against both buffers.
func copySegments(dst []byte, base uint64, img *elf.Image, src []byte) error {
	for i, ph := range img.Programs {
		if ph.Type != elf.PTLoad {
			continue
		}

		if ph.VAddr < base || ph.MemSize > uint64(len(dst)) || ph.VAddr-base > uint64(len(dst))-ph.MemSize {
			return errors.Errorf("segment %d spans [%#x, %#x) outside the load span", i, ph.VAddr, ph.VAddr+ph.MemSize)
		}

		if ph.FileSize > ph.MemSize {
			return errors.Errorf("segment %d file size %#x exceeds memory size %#x", i, ph.FileSize, ph.MemSize)
		}

		if ph.Offset > uint64(len(src)) || ph.FileSize > uint64(len(src))-ph.Offset {
			return errors.Errorf("segment %d file range [%#x, %#x) is outside the image", i, ph.Offset, ph.Offset+ph.FileSize)
		}

		out := dst[ph.VAddr-base:]

		copy(out, src[ph.Offset:ph.Offset+ph.FileSize])

		for j := ph.FileSize; j < ph.MemSize; j++ {
			out[j] = 0
		}
	}

	return nil
}

// FrameBuffer queries the graphics output protocol for the active frame
// buffer configuration.
func (l *Loader) FrameBuffer() (*efi.FrameBufConf, error) {
	iface, err := l.fw.Boot.LocateProtocol(efi.GraphicsOutputGUID)
	if err != nil {
		return nil, errors.Wrap(err, "locating graphics output")
	}

	conf, err := l.fw.GraphicsOutputAt(iface).FrameBufConf()
	if err != nil {
		return nil, err
	}

	return &conf, nil
}

// Boot runs the full sequence: load the kernel, capture the frame buffer,
// and leave boot services. On return firmware is gone; the only remaining
// step is jumping to Handoff.Entry.
//
// A missing graphics protocol is tolerated: the kernel boots headless.
func (l *Loader) Boot() (*Handoff, error) {
	entry, err := l.LoadKernel()
	if err != nil {
		return nil, err
	}

	fb, err := l.FrameBuffer()
	if err != nil {
		l.L.Warn("no usable frame buffer, booting headless", "error", err)
		fb = nil
	}

	m, err := memmap.Fetch(l.fw.Boot)
	if err != nil {
		return nil, err
	}

	if err := l.fw.Boot.ExitBootServices(m.Raw()); err != nil {
		return nil, errors.Wrap(err, "leaving boot services")
	}

	return &Handoff{Entry: entry, FrameBuf: fb}, nil
}

// SaveMemoryMap exports the current memory map as CSV onto the boot volume.
// Diagnostic only; it runs before ExitBootServices or not at all.
func (l *Loader) SaveMemoryMap(vol *fs.Volume, name string) error {
	m, err := memmap.Fetch(l.fw.Boot)
	if err != nil {
		return err
	}

	defer m.Free()

	f, err := vol.Create(name)
	if err != nil {
		return err
	}

	if err := memmap.WriteCSV(f, m.Descriptors()); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %q", name)
	}

	if err := f.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

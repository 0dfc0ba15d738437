package efi

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PixelFormat is the closed set of frame buffer pixel layouts the firmware
// can report. The set is fixed by the specification; dispatch on it with a
// single switch, never an open interface.
type PixelFormat uint32

const (
	PixelRGBReserved8 PixelFormat = iota
	PixelBGRReserved8
	PixelBitMask
	PixelBltOnly
)

func (p PixelFormat) String() string {
	switch p {
	case PixelRGBReserved8:
		return "rgb"
	case PixelBGRReserved8:
		return "bgr"
	case PixelBitMask:
		return "bitmask"
	case PixelBltOnly:
		return "blt-only"
	default:
		return "unknown"
	}
}

// FrameBufConf is the frame buffer description handed to the kernel at
// entry.
type FrameBufConf struct {
	Format PixelFormat
	Base   uint64
	Size   uint64
	Width  uint32
	Height uint32
	Stride uint32
}

// EFI_GRAPHICS_OUTPUT_PROTOCOL: the Mode pointer lives after QueryMode,
// SetMode and Blt slots.
const gopModePtrOff = 0x18

// EFI_GRAPHICS_OUTPUT_PROTOCOL_MODE field offsets.
const (
	gopModeInfoOff   = 8
	gopModeFBBaseOff = 24
	gopModeFBSizeOff = 32
	gopModeSize      = 40
)

// EFI_GRAPHICS_OUTPUT_MODE_INFORMATION field offsets.
const (
	gopInfoHResOff   = 4
	gopInfoVResOff   = 8
	gopInfoFormatOff = 12
	gopInfoStrideOff = 32
	gopInfoSize      = 36
)

// GraphicsOutput wraps an opened graphics output protocol interface.
type GraphicsOutput struct {
	addr uint64
}

// GraphicsOutputAt binds the graphics output protocol interface at iface.
func (fw *Firmware) GraphicsOutputAt(iface uint64) *GraphicsOutput {
	return &GraphicsOutput{addr: iface}
}

// FrameBufConf decodes the current mode into a frame buffer configuration.
// The mode structures are read-only firmware memory; only fixed-width
// fields are decoded, by offset.
func (g *GraphicsOutput) FrameBufConf() (FrameBufConf, error) {
	le := binary.LittleEndian

	modePtr := le.Uint64(MapRange(g.addr+gopModePtrOff, 8))
	if modePtr == 0 {
		return FrameBufConf{}, errors.New("graphics output protocol has no mode structure")
	}

	mode := MapRange(modePtr, gopModeSize)

	infoPtr := le.Uint64(mode[gopModeInfoOff:])
	if infoPtr == 0 {
		return FrameBufConf{}, errors.New("graphics mode has no info structure")
	}

	info := MapRange(infoPtr, gopInfoSize)

	conf := FrameBufConf{
		Format: PixelFormat(le.Uint32(info[gopInfoFormatOff:])),
		Base:   le.Uint64(mode[gopModeFBBaseOff:]),
		Size:   le.Uint64(mode[gopModeFBSizeOff:]),
		Width:  le.Uint32(info[gopInfoHResOff:]),
		Height: le.Uint32(info[gopInfoVResOff:]),
		Stride: le.Uint32(info[gopInfoStrideOff:]),
	}

	if conf.Format > PixelBltOnly {
		return FrameBufConf{}, errors.Errorf("firmware reported pixel format %d outside the specified set", conf.Format)
	}

	return conf, nil
}

package efi

import "fmt"

// GUID identifies a protocol. The field layout matches EFI_GUID exactly;
// values are only ever passed back into firmware calls by address.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		g.Data1, g.Data2, g.Data3,
		g.Data4[0], g.Data4[1], g.Data4[2], g.Data4[3],
		g.Data4[4], g.Data4[5], g.Data4[6], g.Data4[7])
}

// Protocol GUIDs from the UEFI specification.
var (
	SimpleFileSystemGUID = GUID{0x964e5b22, 0x6459, 0x11d2,
		[8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}

	GraphicsOutputGUID = GUID{0x9042a9de, 0x23dc, 0x4a38,
		[8]byte{0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a}}

	TextOutputGUID = GUID{0x387477c2, 0x69c7, 0x11d2,
		[8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}

	FileInfoGUID = GUID{0x09576e92, 0x6d3f, 0x11d2,
		[8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b}}
)

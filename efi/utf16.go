package efi

import "unicode/utf16"

// utf16z converts s to the firmware's wide-character convention with an
// explicit null terminator. Every string that crosses the ABI boundary goes
// through here; passing an unterminated buffer into firmware is undefined
// behavior, so the conversion is never done ad hoc at call sites.
func utf16z(s string) []uint16 {
	out := utf16.Encode([]rune(s))
	return append(out, 0)
}

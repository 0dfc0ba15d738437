package efi

import "unsafe"

// EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL slot offsets.
const (
	txtReset        = 0x00
	txtOutputString = 0x08
	txtClearScreen  = 0x30
)

// TextOutput wraps the firmware console output protocol. It is the only
// user-visible diagnostics channel before kernel handoff.
type TextOutput struct {
	addr uint64
	call CallFn
}

// Reset calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.Reset().
func (t *TextOutput) Reset() error {
	return t.call(t.addr+txtReset, t.addr, 0).Err()
}

// ClearScreen clears the console and homes the cursor.
func (t *TextOutput) ClearScreen() error {
	return t.call(t.addr+txtClearScreen, t.addr).Err()
}

// OutputString writes s to the console, translating newlines to the CRLF
// pairs the console expects.
func (t *TextOutput) OutputString(s string) error {
	buf := make([]uint16, 0, len(s)+2)

	for _, u := range utf16z(s) {
		if u == '\n' {
			buf = append(buf, '\r')
		}

		buf = append(buf, u)
	}

	return t.call(t.addr+txtOutputString, t.addr, ptrval(unsafe.Pointer(&buf[0]))).Err()
}

// Writer adapts the console to io.Writer so hclog and friends can write to
// it directly.
type Writer struct {
	Out *TextOutput
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.Out.OutputString(string(p)); err != nil {
		return 0, err
	}

	return len(p), nil
}

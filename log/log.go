package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{Name: "osoboot"})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// SetOutput rebuilds the package logger on top of w. The boot path calls
// this once the firmware console is up so diagnostics land there instead of
// the (nonexistent) host stderr.
func SetOutput(w io.Writer) {
	level := hclog.Info
	if str := os.Getenv("TRACE"); str != "" {
		level = hclog.Trace
	}

	L = hclog.New(&hclog.LoggerOptions{
		Name:   "osoboot",
		Output: w,
		Level:  level,
	})
}

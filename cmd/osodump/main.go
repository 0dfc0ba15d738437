package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"
)

var (
	fMemmap  = pflag.StringP("memmap", "m", "", "raw memory map dump to render as CSV")
	fStride  = pflag.Uint64P("stride", "s", 48, "descriptor stride of the raw memory map")
	fVerbose = pflag.BoolP("verbose", "v", false, "dump the full parsed structures")
)

func main() {
	pflag.Parse()

	if *fMemmap != "" {
		if err := dumpMemmap(*fMemmap, *fStride); err != nil {
			log.Fatal(err)
		}

		return
	}

	args := pflag.Args()

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: osodump [flags] kernel.elf")
		os.Exit(2)
	}

	if err := dump(args[0], *fVerbose); err != nil {
		log.Fatal(err)
	}
}

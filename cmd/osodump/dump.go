package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"

	"github.com/sugiura-hiromiti/osoboot/efi"
	"github.com/sugiura-hiromiti/osoboot/elf"
	"github.com/sugiura-hiromiti/osoboot/memmap"
)

var programTypeNames = map[uint32]string{
	elf.PTNull:    "NULL",
	elf.PTLoad:    "LOAD",
	elf.PTDynamic: "DYNAMIC",
	elf.PTInterp:  "INTERP",
	elf.PTNote:    "NOTE",
	elf.PTPhdr:    "PHDR",
	elf.PTTLS:     "TLS",
}

func programTypeName(t uint32) string {
	if name, ok := programTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("%#x", t)
}

func segmentFlags(f uint32) string {
	out := []byte("---")

	if f&elf.PFRead != 0 {
		out[0] = 'r'
	}

	if f&elf.PFWrite != 0 {
		out[1] = 'w'
	}

	if f&elf.PFExec != 0 {
		out[2] = 'x'
	}

	return string(out)
}

func dump(path string, verbose bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	img, err := elf.Parse(raw)
	if err != nil {
		return err
	}

	fmt.Printf("\n[header]\n")
	fmt.Printf("machine: %s\n", elf.MachineName(img.Header.Machine))
	fmt.Printf("entry:   %#x\n", img.EntryPoint())

	if img.SymbolCount >= 0 {
		fmt.Printf("symbols: %d\n", img.SymbolCount)
	}

	fmt.Printf("\n[program headers]\n")

	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

	for i, ph := range img.Programs {
		fmt.Fprintf(tr, "%d\t%s\t%s\tvaddr=%#x\toffset=%#x\tfilesz=%#x\tmemsz=%#x\n",
			i, programTypeName(ph.Type), segmentFlags(ph.Flags),
			ph.VAddr, ph.Offset, ph.FileSize, ph.MemSize)
	}

	tr.Flush()

	if len(img.Sections) > 0 {
		fmt.Printf("\n[sections]\n")

		tr = tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

		for i, sh := range img.Sections {
			name, err := img.SectionName(sh)
			if err != nil {
				name = "?"
			}

			fmt.Fprintf(tr, "%d\t%s\toffset=%#x\tsize=%#x\n", i, name, sh.Offset, sh.Size)
		}

		tr.Flush()
	}

	plan := img.LoadBounds()

	fmt.Printf("\n[load bounds]\n")

	if plan.Empty() {
		fmt.Printf("no loadable segments\n")
	} else {
		fmt.Printf("head:  %#x\ntail:  %#x\nsize:  %#x\npages: %d\n",
			plan.Head, plan.Tail, plan.Size(), efi.RequiredPages(plan.Size()))
	}

	if verbose {
		spew.Dump(img)
	}

	return nil
}

func dumpMemmap(path string, stride uint64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return memmap.WriteCSV(os.Stdout, memmap.Snapshot(raw, stride))
}

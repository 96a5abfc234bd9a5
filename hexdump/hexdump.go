package hexdump

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strings"

	"memkit/coloransi"
	"memkit/process"
)

// Range marks Len bytes starting at offset Start of the dumped buffer
type Range struct {
	Start int
	Len   int
}

func (r Range) contains(i int) bool {
	return i >= r.Start && i < r.Start+r.Len
}

// Options controls the layout of a dump
type Options struct {
	// BytesPerLine is rounded up to a multiple of 8
	BytesPerLine int

	// Address is printed for the first byte of the buffer
	Address uint64

	// Highlight lists byte ranges drawn with HighlightColor
	Highlight []Range

	// MaxLines truncates the dump; 0 prints everything
	MaxLines int

	// IsPointer annotates each aligned 8 byte word it accepts; nil disables
	IsPointer func(uint64) bool

	Palette coloransi.Palette

	AddressColor   coloransi.ColorCode
	HexColor       coloransi.ColorCode
	ZeroColor      coloransi.ColorCode
	TextColor      coloransi.ColorCode
	HighlightColor coloransi.ColorCode
	HighlightBG    coloransi.ColorCode
	PointerColor   coloransi.ColorCode
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine:   16,
		Palette:        coloransi.ANSI,
		AddressColor:   coloransi.Cyan,
		HexColor:       coloransi.Green,
		ZeroColor:      coloransi.BrightBlack,
		TextColor:      coloransi.White,
		HighlightColor: coloransi.Black,
		HighlightBG:    coloransi.Yellow,
		PointerColor:   coloransi.ColorOrange,
	}
}

// Dump renders data as
//
//	00000000004001a0  48 8b 05 10 00 00 00 90  90 90 90 90 90 90 90 90  |H.......|........|
func Dump(data []byte, opts Options) string {
	var sb strings.Builder
	DumpTo(&sb, data, opts)
	return sb.String()
}

func DumpTo(w io.Writer, data []byte, opts Options) {
	perLine := opts.BytesPerLine
	if perLine <= 0 {
		perLine = 16
	}
	perLine = (perLine + 7) &^ 7

	lines := 0
	for off := 0; off < len(data); off += perLine {
		if opts.MaxLines > 0 && lines >= opts.MaxLines {
			fmt.Fprintf(w, "... %d more bytes\n", len(data)-off)
			return
		}
		end := min(off+perLine, len(data))
		writeLine(w, data, off, end, perLine, opts)
		lines++
	}
}

func writeLine(w io.Writer, data []byte, off, end, perLine int, opts Options) {
	p := opts.Palette

	fmt.Fprint(w, p.Foreground(opts.AddressColor, fmt.Sprintf("%016x", opts.Address+uint64(off))), "  ")

	for i := off; i < off+perLine; i++ {
		if i > off && (i-off)%8 == 0 {
			fmt.Fprint(w, " ")
		}
		if i >= end {
			fmt.Fprint(w, "   ")
			continue
		}
		fmt.Fprint(w, hexCell(data[i], opts.highlighted(i), opts), " ")
	}

	fmt.Fprint(w, " |")
	for i := off; i < end; i++ {
		if i > off && (i-off)%8 == 0 {
			fmt.Fprint(w, "|")
		}
		fmt.Fprint(w, textCell(data[i], opts.highlighted(i), opts))
	}
	fmt.Fprint(w, "|")

	if opts.IsPointer != nil {
		for i := off; i+8 <= end; i += 8 {
			ptr := binary.LittleEndian.Uint64(data[i : i+8])
			if ptr != 0 && opts.IsPointer(ptr) {
				fmt.Fprint(w, " ", p.Foreground(opts.PointerColor, fmt.Sprintf("0x%x", ptr)))
			}
		}
	}

	fmt.Fprintln(w)
}

func (o Options) highlighted(i int) bool {
	for _, r := range o.Highlight {
		if r.contains(i) {
			return true
		}
	}
	return false
}

func hexCell(b byte, highlight bool, opts Options) string {
	cell := fmt.Sprintf("%02x", b)
	switch {
	case highlight:
		return opts.Palette.Color(opts.HighlightColor, opts.HighlightBG, cell)
	case b == 0:
		return opts.Palette.Foreground(opts.ZeroColor, cell)
	}
	return opts.Palette.Foreground(opts.HexColor, cell)
}

func textCell(b byte, highlight bool, opts Options) string {
	ch := "."
	if b >= 0x20 && b < 0x7f {
		ch = string(rune(b))
	}
	switch {
	case highlight:
		return opts.Palette.Color(opts.HighlightColor, opts.HighlightBG, ch)
	case ch == ".":
		return opts.Palette.Foreground(opts.ZeroColor, ch)
	}
	return opts.Palette.Foreground(opts.TextColor, ch)
}

// Context dumps the bytes around [addr, addr+length) in proc, highlighting
// the range itself. The window is clipped to readable memory, shrinking from
// the front first.
func Context(proc process.Process, addr process.ProcessMemoryAddress, length, around int, opts Options) (string, error) {
	for before := around; ; before /= 2 {
		start := addr.Add(-int64(before))
		if uint64(before) > uint64(addr) {
			start = process.NullAddress
			before = int(addr)
		}

		size := process.ProcessMemorySize(before + length + around)
		data, err := proc.ReadMemory(start, size)
		if err != nil {
			data, err = proc.ReadMemory(start, process.ProcessMemorySize(before+length))
		}
		if err == nil {
			opts.Address = uint64(start)
			opts.Highlight = append(slices.Clip(opts.Highlight), Range{Start: before, Len: length})
			if opts.IsPointer == nil {
				opts.IsPointer = func(v uint64) bool {
					return proc.IsValidAddress(process.ProcessMemoryAddress(v))
				}
			}
			return Dump(data, opts), nil
		}
		if before == 0 {
			return "", err
		}
	}
}

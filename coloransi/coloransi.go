package coloransi

import (
	"fmt"
	"strings"
)

// ColorCode holds either a basic ANSI color (30-37, 90-97) or a 24 bit RGB
// value packed into the upper three bytes.
type ColorCode uint32

const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	backgroundOffset ColorCode = 10
	rgbMask          ColorCode = 0xFFFFFF00
)

// RGB packs a 24 bit color
func RGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = RGB(255, 140, 0)
	ColorTeal      = RGB(0, 128, 128)
	ColorLimeGreen = RGB(50, 205, 50)
)

func (c ColorCode) IsRGB() bool {
	return c&rgbMask != 0
}

// Palette turns colors into escape sequences. A disabled palette returns
// text unchanged, which keeps output stable when it is not a terminal.
type Palette struct {
	Enabled bool
}

// Plain never emits escape sequences
var Plain = Palette{}

// ANSI always emits escape sequences
var ANSI = Palette{Enabled: true}

func (p Palette) Foreground(fg ColorCode, v ...any) string {
	text := join(v)
	if !p.Enabled {
		return text
	}
	return foreground(fg) + text + Reset()
}

func (p Palette) Color(fg, bg ColorCode, v ...any) string {
	text := join(v)
	if !p.Enabled {
		return text
	}
	return foreground(fg) + background(bg) + text + Reset()
}

func foreground(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code)
}

func background(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code+backgroundOffset)
}

// Reset returns the sequence that clears all attributes
func Reset() string {
	return "\033[0m"
}

func join(v []any) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

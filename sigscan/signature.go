// Package sigscan finds byte signatures with nibble and byte wildcards in
// process memory.
package sigscan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"memkit/process"
)

var (
	// ErrFormat is returned for malformed pattern text
	ErrFormat = errors.New("malformed signature")

	// ErrRange is returned when a buffer is too short for a pattern or a scan
	// start is not aligned
	ErrRange = errors.New("scan range error")
)

// ByteKind selects which bits of a PatternByte are compared
type ByteKind uint8

const (
	// ByteAny matches every value ("??")
	ByteAny ByteKind = iota
	// ByteLowNibble compares the low nibble only ("?5")
	ByteLowNibble
	// ByteHighNibble compares the high nibble only ("5?")
	ByteHighNibble
	// ByteFull compares the whole byte
	ByteFull
)

// PatternByte is one element of a signature. Value holds the compared bits
// in their original position.
type PatternByte struct {
	Value byte
	Kind  ByteKind
}

// Mask returns the bits of a memory byte that take part in the comparison
func (b PatternByte) Mask() byte {
	switch b.Kind {
	case ByteLowNibble:
		return 0x0F
	case ByteHighNibble:
		return 0xF0
	case ByteFull:
		return 0xFF
	}
	return 0x00
}

// Matches compares v against the pattern byte one byte at a time
func (b PatternByte) Matches(v byte) bool {
	return (v^b.Value)&b.Mask() == 0
}

func (b PatternByte) String() string {
	switch b.Kind {
	case ByteLowNibble:
		return fmt.Sprintf("?%X", b.Value&0x0F)
	case ByteHighNibble:
		return fmt.Sprintf("%X?", b.Value>>4)
	case ByteFull:
		return fmt.Sprintf("%02X", b.Value)
	}
	return "??"
}

const wordSize = 8

// VerifyFunc rejects structural matches, e.g. when a referenced address is
// outside of any module
type VerifyFunc func(addr process.ProcessMemoryAddress) bool

// Signature is a compiled pattern
type Signature struct {
	Bytes  []PatternByte
	Offset int64  // added to the match address
	Name   string // identifies the signature within a ScanTarget
	Verify VerifyFunc

	// search and mask are padded to a multiple of wordSize; padding is masked out
	search      []byte
	mask        []byte
	searchWords []uint64
	maskWords   []uint64

	// anchor is the index of the first fully specified byte, -1 if none
	anchor int
}

// ParseSignature compiles hex text such as "48 8B ?5 ?? 90". The parts are
// concatenated and whitespace is ignored.
func ParseSignature(offset int64, pattern ...string) (*Signature, error) {
	text := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.Join(pattern, ""))

	if len(text) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrFormat)
	}
	if len(text)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has an incomplete byte", ErrFormat, text)
	}

	bytes := make([]PatternByte, 0, len(text)/2)
	for i := 0; i < len(text); i += 2 {
		b, err := parseByte(text[i], text[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: byte %d %q: %v", ErrFormat, i/2, text[i:i+2], err)
		}
		bytes = append(bytes, b)
	}

	return compile(bytes, offset), nil
}

// MustParseSignature is ParseSignature for static tables
func MustParseSignature(offset int64, pattern ...string) *Signature {
	sig, err := ParseSignature(offset, pattern...)
	if err != nil {
		panic(err)
	}
	return sig
}

// NewSignature builds a signature where every byte must match exactly
func NewSignature(offset int64, pattern ...byte) *Signature {
	bytes := make([]PatternByte, len(pattern))
	for i, v := range pattern {
		bytes[i] = PatternByte{Value: v, Kind: ByteFull}
	}
	return compile(bytes, offset)
}

func parseByte(hi, lo byte) (PatternByte, error) {
	switch {
	case hi == '?' && lo == '?':
		return PatternByte{Kind: ByteAny}, nil
	case hi == '?':
		v, ok := hexNibble(lo)
		if !ok {
			return PatternByte{}, fmt.Errorf("invalid hex digit %q", lo)
		}
		return PatternByte{Value: v, Kind: ByteLowNibble}, nil
	case lo == '?':
		v, ok := hexNibble(hi)
		if !ok {
			return PatternByte{}, fmt.Errorf("invalid hex digit %q", hi)
		}
		return PatternByte{Value: v << 4, Kind: ByteHighNibble}, nil
	}

	h, ok := hexNibble(hi)
	if !ok {
		return PatternByte{}, fmt.Errorf("invalid hex digit %q", hi)
	}
	l, ok := hexNibble(lo)
	if !ok {
		return PatternByte{}, fmt.Errorf("invalid hex digit %q", lo)
	}
	return PatternByte{Value: h<<4 | l, Kind: ByteFull}, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func compile(bytes []PatternByte, offset int64) *Signature {
	padded := (len(bytes) + wordSize - 1) / wordSize * wordSize

	sig := &Signature{
		Bytes:  bytes,
		Offset: offset,
		search: make([]byte, padded),
		mask:   make([]byte, padded),
		anchor: -1,
	}

	for i, b := range bytes {
		sig.mask[i] = b.Mask()
		sig.search[i] = b.Value & sig.mask[i]
		if sig.anchor < 0 && b.Kind == ByteFull {
			sig.anchor = i
		}
	}

	sig.searchWords = make([]uint64, padded/wordSize)
	sig.maskWords = make([]uint64, padded/wordSize)
	for i := range sig.searchWords {
		sig.searchWords[i] = binary.LittleEndian.Uint64(sig.search[i*wordSize:])
		sig.maskWords[i] = binary.LittleEndian.Uint64(sig.mask[i*wordSize:])
	}

	return sig
}

// WithName sets the name reported to OnFound callbacks
func (s *Signature) WithName(name string) *Signature {
	s.Name = name
	return s
}

// WithVerify sets the predicate a match has to pass
func (s *Signature) WithVerify(verify VerifyFunc) *Signature {
	s.Verify = verify
	return s
}

// Len returns the number of pattern bytes
func (s *Signature) Len() int {
	return len(s.Bytes)
}

// Search returns the padded comparison vector
func (s *Signature) Search() []byte {
	return s.search
}

// Mask returns the padded mask vector
func (s *Signature) Mask() []byte {
	return s.mask
}

func (s *Signature) String() string {
	parts := make([]string, len(s.Bytes))
	for i, b := range s.Bytes {
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

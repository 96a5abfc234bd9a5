package process

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// StringType selects how strings are located and decoded in memory
type StringType int

const (
	// StringAuto guesses between UTF-8 and UTF-16 and scans for a terminator
	StringAuto StringType = iota
	// StringAutoSized guesses the encoding and reads a length prefix
	StringAutoSized
	StringUTF8
	StringUTF8Sized
	StringUTF16
	StringUTF16Sized
)

func (s StringType) String() string {
	switch s {
	case StringAutoSized:
		return "auto-sized"
	case StringUTF8:
		return "utf8"
	case StringUTF8Sized:
		return "utf8-sized"
	case StringUTF16:
		return "utf16"
	case StringUTF16Sized:
		return "utf16-sized"
	}
	return "auto"
}

// ParseStringType maps the names produced by String back to a StringType
func ParseStringType(name string) (StringType, error) {
	for t := StringAuto; t <= StringUTF16Sized; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return StringAuto, fmt.Errorf("unknown string type %q", name)
}

// IsSized reports whether the string carries a 4 byte length prefix
func (s StringType) IsSized() bool {
	return s == StringAutoSized || s == StringUTF8Sized || s == StringUTF16Sized
}

// maxSizedLength rejects garbage length prefixes
const maxSizedLength = 1 << 20

var (
	ErrStringTooLong      = errors.New("string exceeds maximum length")
	ErrStringLengthPrefix = errors.New("invalid string length prefix")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ReadString reads a string at addr.
// Unsized types read at most maxLength characters and stop at the first null
// character; a string without a terminator inside the cap is an error.
// Sized types read the int32 length stored immediately before addr and then
// exactly that many characters.
func ReadString(proc Process, addr ProcessMemoryAddress, stringType StringType, maxLength int) (string, error) {
	if addr == NullAddress {
		return "", ErrNullPointer
	}

	if stringType.IsSized() {
		return readSizedString(proc, addr, stringType)
	}

	if maxLength <= 0 {
		return "", nil
	}

	unit, err := stringUnit(proc, addr, stringType, maxLength)
	if err != nil {
		return "", err
	}

	data, err := readTerminated(proc, addr, unit, maxLength)
	if err != nil {
		return "", err
	}

	return decodeString(data, unit)
}

func readSizedString(proc Process, addr ProcessMemoryAddress, stringType StringType) (string, error) {
	length, err := Read[int32](proc, addr-4)
	if err != nil {
		return "", err
	}
	if length < 0 || length > maxSizedLength {
		return "", fmt.Errorf("%w: %d", ErrStringLengthPrefix, length)
	}
	if length == 0 {
		return "", nil
	}

	unit, err := stringUnit(proc, addr, stringType, int(length))
	if err != nil {
		return "", err
	}

	data, err := proc.ReadMemory(addr, ProcessMemorySize(int(length)*unit))
	if err != nil {
		return "", err
	}

	return decodeString(data, unit)
}

// stringUnit returns the code unit size in bytes. Auto types peek at the
// second byte: ASCII text stored as UTF-16 has a zero high byte there.
func stringUnit(proc Process, addr ProcessMemoryAddress, stringType StringType, length int) (int, error) {
	switch stringType {
	case StringUTF8, StringUTF8Sized:
		return 1, nil
	case StringUTF16, StringUTF16Sized:
		return 2, nil
	}

	if length == 1 && stringType == StringAutoSized {
		return 1, nil
	}

	peek, err := proc.ReadMemory(addr, 2)
	if err != nil {
		return 0, err
	}
	if peek[1] != 0 {
		return 1, nil
	}
	return 2, nil
}

// stringChunk is how many bytes are read per step while looking for a
// terminator. Must be a multiple of every code unit size.
const stringChunk = 256

// readTerminated reads up to maxLength characters in chunks and stops at the
// first null character. A chunk that fails to read is retried with smaller
// sizes so strings ending close to an unmapped boundary still resolve.
func readTerminated(proc Process, addr ProcessMemoryAddress, unit, maxLength int) ([]byte, error) {
	limit := maxLength * unit
	var out []byte

	for len(out) < limit {
		at := addr.Add(int64(len(out)))
		size := min(stringChunk, limit-len(out))

		part, err := proc.ReadMemory(at, ProcessMemorySize(size))
		for err != nil && size > unit {
			size = max(unit, size/2/unit*unit)
			part, err = proc.ReadMemory(at, ProcessMemorySize(size))
		}
		if err != nil {
			return nil, err
		}

		if end := terminator(part, unit); end >= 0 {
			return append(out, part[:end]...), nil
		}
		out = append(out, part...)
	}

	return nil, fmt.Errorf("%w: no terminator within %d characters", ErrStringTooLong, maxLength)
}

func terminator(data []byte, unit int) int {
	if unit == 1 {
		return bytes.IndexByte(data, 0)
	}
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return i
		}
	}
	return -1
}

func decodeString(data []byte, unit int) (string, error) {
	if unit == 1 {
		return string(data), nil
	}

	decoded, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// EncodeString produces the in-memory form of s. Unsized types get a null
// terminator; sized types are written without one.
func EncodeString(s string, stringType StringType) ([]byte, error) {
	var data []byte

	switch stringType {
	case StringUTF16, StringUTF16Sized:
		encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, err
		}
		data = encoded
		if !stringType.IsSized() {
			data = append(data, 0, 0)
		}
	default:
		data = []byte(s)
		if !stringType.IsSized() {
			data = append(data, 0)
		}
	}

	return data, nil
}

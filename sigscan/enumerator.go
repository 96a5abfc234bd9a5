package sigscan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
)

// Enumerator yields the offsets of a signature in a buffer. It is restartable
// only through Reset and is not safe for concurrent use.
type Enumerator struct {
	buf       []byte
	sig       *Signature
	alignment int
	cursor    int
	current   int
}

// NewEnumerator returns an enumerator positioned before the first offset
func NewEnumerator(buf []byte, alignment int, sig *Signature) (*Enumerator, error) {
	if sig.Len() == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrFormat)
	}
	if alignment < 1 {
		return nil, fmt.Errorf("%w: alignment %d", ErrRange, alignment)
	}
	if len(buf) < sig.Len() {
		return nil, fmt.Errorf("%w: buffer of %d bytes is shorter than pattern of %d", ErrRange, len(buf), sig.Len())
	}

	return &Enumerator{
		buf:       buf,
		sig:       sig,
		alignment: alignment,
		current:   -1,
	}, nil
}

// Next advances to the next match and reports whether there was one
func (e *Enumerator) Next() bool {
	n := e.sig.Len()
	last := len(e.buf) - n

	for e.cursor <= last {
		pos := e.cursor

		if e.alignment == 1 && e.sig.anchor >= 0 {
			anchor := e.sig.anchor
			idx := bytes.IndexByte(e.buf[pos+anchor:last+anchor+1], e.sig.search[anchor])
			if idx < 0 {
				e.cursor = last + 1
				return false
			}
			pos += idx
		}

		e.cursor = pos + e.alignment
		if e.matchAt(pos) {
			e.current = pos
			return true
		}
	}

	return false
}

// Current returns the offset found by the last successful Next, or -1
func (e *Enumerator) Current() int {
	return e.current
}

// Reset moves the cursor back to the start of the buffer
func (e *Enumerator) Reset() {
	e.cursor = 0
	e.current = -1
}

// All drains the enumerator from its current position
func (e *Enumerator) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for e.Next() {
			if !yield(e.current) {
				return
			}
		}
	}
}

func (e *Enumerator) matchAt(pos int) bool {
	// word compare while the padded window fits, byte compare near the end
	if pos+len(e.sig.search) <= len(e.buf) {
		window := e.buf[pos:]
		for i, search := range e.sig.searchWords {
			v := binary.LittleEndian.Uint64(window[i*wordSize:])
			if (v^search)&e.sig.maskWords[i] != 0 {
				return false
			}
		}
		return true
	}

	return matchBytes(e.buf[pos:], e.sig.Bytes)
}

func matchBytes(window []byte, pattern []PatternByte) bool {
	for i, b := range pattern {
		if !b.Matches(window[i]) {
			return false
		}
	}
	return true
}

// FindAll returns every offset of sig in buf
func FindAll(buf []byte, alignment int, sig *Signature) ([]int, error) {
	e, err := NewEnumerator(buf, alignment, sig)
	if err != nil {
		return nil, err
	}

	var offsets []int
	for off := range e.All() {
		offsets = append(offsets, off)
	}
	return offsets, nil
}

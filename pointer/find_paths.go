package pointer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"memkit/process"
)

// PathSearcher holds configuration for FindPaths
type PathSearcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	DerefType     process.DerefType
	SearchFor     func([]byte) bool
}

// PathOption is a function that configures a PathSearcher
type PathOption func(*PathSearcher)

func WithMaxStructSize(size uint) PathOption {
	return func(s *PathSearcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) PathOption {
	return func(s *PathSearcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) PathOption {
	return func(s *PathSearcher) {
		if align > 0 {
			s.MinAlignment = align
		}
	}
}

func WithSearchDerefType(derefType process.DerefType) PathOption {
	return func(s *PathSearcher) {
		s.DerefType = derefType
	}
}

// WithSearchForValue looks for the in-memory representation of val
func WithSearchForValue[T Scalar](val T) PathOption {
	want := process.Bytes(val)
	return func(s *PathSearcher) {
		s.SearchFor = func(data []byte) bool {
			return bytes.HasPrefix(data, want)
		}
	}
}

// WithSearchForString looks for str encoded as stringType, without terminator
func WithSearchForString(str string, stringType process.StringType) PathOption {
	encoding := process.StringUTF8Sized
	if stringType == process.StringUTF16 || stringType == process.StringUTF16Sized {
		encoding = process.StringUTF16Sized
	}

	return func(s *PathSearcher) {
		want, err := process.EncodeString(str, encoding)
		if err != nil || len(want) == 0 {
			s.SearchFor = func([]byte) bool { return false }
			return
		}
		s.SearchFor = func(data []byte) bool {
			return bytes.HasPrefix(data, want)
		}
	}
}

// PathResult is an offset chain usable with New(proc, base, Offsets)
type PathResult struct {
	Offsets []int64
}

func (r PathResult) String() string {
	return fmt.Sprintf("%#x", r.Offsets)
}

// FindPaths discovers offset chains from base to a value. base holds a
// pointer to the root structure; every result resolves with the same
// dereference rules as a Pointer built from base.
func FindPaths(proc process.Process, base process.ProcessMemoryAddress, options ...PathOption) ([]PathResult, error) {
	s := &PathSearcher{
		MaxStructSize: 256, // Default
		MaxDepth:      3,   // Default
		MinAlignment:  4,   // Default
	}

	for _, opt := range options {
		opt(s)
	}

	if s.SearchFor == nil {
		return nil, fmt.Errorf("no search target specified")
	}

	is64Bit := s.DerefType.Is64Bit(proc)
	ptrSize := uint(s.DerefType.PointerSize(proc))

	root, err := process.ReadPointer(proc, base, is64Bit)
	if err != nil {
		return nil, fmt.Errorf("read root pointer at %s: %w", base.ToString(), err)
	}

	var results []PathResult
	visited := make(map[process.ProcessMemoryAddress]bool)

	var searchRecursive func(addr process.ProcessMemoryAddress, depth int, path []int64)
	searchRecursive = func(addr process.ProcessMemoryAddress, depth int, path []int64) {
		if depth > s.MaxDepth || visited[addr] {
			return
		}
		visited[addr] = true

		data, err := proc.ReadMemory(addr, process.ProcessMemorySize(s.MaxStructSize))
		if err != nil {
			return
		}

		for offset := uint(0); offset+s.MinAlignment <= uint(len(data)); offset += s.MinAlignment {
			next := append(path[:len(path):len(path)], int64(offset))

			if s.SearchFor(data[offset:]) {
				results = append(results, PathResult{Offsets: next})
			}

			if offset%ptrSize != 0 || depth >= s.MaxDepth || offset+ptrSize > uint(len(data)) {
				continue
			}

			var ptr process.ProcessMemoryAddress
			if is64Bit {
				ptr = process.ProcessMemoryAddress(binary.LittleEndian.Uint64(data[offset:]))
			} else {
				ptr = process.ProcessMemoryAddress(binary.LittleEndian.Uint32(data[offset:]))
			}

			if ptr != process.NullAddress && proc.IsValidAddress(ptr) {
				searchRecursive(ptr, depth+1, next)
			}
		}
	}

	searchRecursive(root, 0, nil)

	return results, nil
}

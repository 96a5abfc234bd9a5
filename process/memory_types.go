package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

// NullAddress is returned by resolution helpers when a chain cannot be followed
const NullAddress = ProcessMemoryAddress(0)

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add applies a signed offset to the address
func (pma ProcessMemoryAddress) Add(offset int64) ProcessMemoryAddress {
	return ProcessMemoryAddress(int64(pma) + offset)
}

// IsAligned reports whether the address is a multiple of alignment
func (pma ProcessMemoryAddress) IsAligned(alignment int) bool {
	if alignment <= 1 {
		return true
	}
	return uint64(pma)%uint64(alignment) == 0
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// DerefType selects the pointer width used when walking a pointer chain
type DerefType int

const (
	// DerefAuto uses the pointer width of the target process
	DerefAuto DerefType = iota
	// Deref32 reads 4 byte pointers
	Deref32
	// Deref64 reads 8 byte pointers
	Deref64
)

func (d DerefType) String() string {
	switch d {
	case Deref32:
		return "32"
	case Deref64:
		return "64"
	}
	return "auto"
}

// Is64Bit resolves the pointer width for proc
func (d DerefType) Is64Bit(proc Process) bool {
	switch d {
	case Deref32:
		return false
	case Deref64:
		return true
	}
	return proc.Is64Bit()
}

// PointerSize returns 4 or 8 depending on the resolved pointer width
func (d DerefType) PointerSize(proc Process) ProcessMemorySize {
	if d.Is64Bit(proc) {
		return 8
	}
	return 4
}

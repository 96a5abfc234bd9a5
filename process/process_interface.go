package process

import (
	"iter"
	"time"

	"memkit/process/memory_map"
)

// Process is the interface that defines operations for interacting with a system process
type Process interface {
	// GetPID returns the process ID
	GetPID() ProcessID

	// StartTime returns when the process was started
	StartTime() time.Time

	// HasExited reports whether the process is gone or was never opened
	HasExited() bool

	// Is64Bit reports whether the process uses 8 byte pointers
	Is64Bit() bool

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	ModuleEnumerator
	PageEnumerator
}

// ModuleEnumerator lists loaded images
type ModuleEnumerator interface {
	// Modules returns the loaded modules, main module first
	Modules() ([]Module, error)
}

// PageEnumerator lists committed memory pages
type PageEnumerator interface {
	// MemoryPages lazily yields committed pages. Without allPages only
	// private, non-guarded pages are produced.
	MemoryPages(allPages bool) iter.Seq[MemoryPage]
}

// Closer is implemented by backends holding OS resources
type Closer interface {
	Close() error
}

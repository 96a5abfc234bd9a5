package process

import (
	"fmt"
	"strings"
)

// ProcessID represents a unique identifier for a process
type ProcessID int

// Module is a loaded binary image within a process's address space
type Module struct {
	Name     string               // Base file name, e.g. "libc.so.6"
	FileName string               // Fully qualified path to the image
	Base     ProcessMemoryAddress // Lowest mapped address of the image
	Size     ProcessMemorySize    // Span from Base to the end of the last mapping
}

// End returns the first address past the module image
func (m Module) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}

// Contains reports whether addr lies within the module image
func (m Module) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.End()
}

// Is reports whether the module matches name, ignoring case
func (m Module) Is(name string) bool {
	return strings.EqualFold(m.Name, name)
}

func (m Module) String() string {
	return fmt.Sprintf("%s [%s-%s]", m.Name, m.Base.ToString(), m.End().ToString())
}

// MemoryPage is a committed region of the address space
type MemoryPage struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Perms   string
	Private bool // private anonymous mapping (heap, stack, anonymous mmap)
	Guarded bool // mapped without any access rights
}

func (mp MemoryPage) String() string {
	return fmt.Sprintf("%s %s (%s)", mp.Address.ToString(), mp.Perms, mp.Size.ToString())
}

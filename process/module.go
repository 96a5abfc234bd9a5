package process

import (
	"fmt"
)

// FindModule returns the loaded module called name, compared case-insensitively
func FindModule(proc Process, name string) (Module, error) {
	modules, err := proc.Modules()
	if err != nil {
		return Module{}, err
	}

	for _, m := range modules {
		if m.Is(name) {
			return m, nil
		}
	}

	return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

// MainModule returns the first module reported by the process
func MainModule(proc Process) (Module, error) {
	modules, err := proc.Modules()
	if err != nil {
		return Module{}, err
	}
	if len(modules) == 0 {
		return Module{}, ErrModuleNotFound
	}
	return modules[0], nil
}

// ModuleAt returns the module containing addr
func ModuleAt(proc Process, addr ProcessMemoryAddress) (Module, bool) {
	modules, err := proc.Modules()
	if err != nil {
		return Module{}, false
	}

	for _, m := range modules {
		if m.Contains(addr) {
			return m, true
		}
	}
	return Module{}, false
}

// FromRelativeAddress resolves a 32-bit displacement stored at addr,
// relative to the end of the displacement
func FromRelativeAddress(proc Process, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	disp, err := Read[int32](proc, addr)
	if err != nil {
		return NullAddress, err
	}
	return addr.Add(4 + int64(disp)), nil
}

// FromAbsoluteAddress reads the absolute pointer stored at addr
func FromAbsoluteAddress(proc Process, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	return ReadPointer(proc, addr, proc.Is64Bit())
}

// FromAssemblyAddress resolves an operand embedded in code: x64 code encodes
// rip-relative displacements, x86 code encodes absolute addresses
func FromAssemblyAddress(proc Process, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	if proc.Is64Bit() {
		return FromRelativeAddress(proc, addr)
	}
	return FromAbsoluteAddress(proc, addr)
}

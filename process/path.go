package process

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// ReadPointer reads a 4 or 8 byte little endian pointer at addr.
func ReadPointer(proc Process, addr ProcessMemoryAddress, is64Bit bool) (ProcessMemoryAddress, error) {
	if addr == NullAddress {
		return NullAddress, ErrNullPointer
	}

	if is64Bit {
		data, err := proc.ReadMemory(addr, 8)
		if err != nil {
			return NullAddress, err
		}
		return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
	}

	data, err := proc.ReadMemory(addr, 4)
	if err != nil {
		return NullAddress, err
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint32(data)), nil
}

// DerefChain walks a pointer chain.
// A pointer is read at base; then for every offset except the last, the offset is
// added and another pointer is read. The last offset is added to the final
// pointer without reading. With no offsets the base itself is the result.
//
// Example:
//
//	// [[base] + 0x10] + 0x20
//	addr, err := process.DerefChain(proc, true, base, 0x10, 0x20)
func DerefChain(proc Process, is64Bit bool, base ProcessMemoryAddress, offsets ...int64) (ProcessMemoryAddress, error) {
	if base == NullAddress {
		return NullAddress, ErrNullPointer
	}

	if len(offsets) == 0 {
		return base, nil
	}

	current, err := ReadPointer(proc, base, is64Bit)
	if err != nil {
		return NullAddress, fmt.Errorf("deref base %#x: %w", uint64(base), err)
	}

	for i, off := range offsets[:len(offsets)-1] {
		addr := current.Add(off)

		next, err := ReadPointer(proc, addr, is64Bit)
		if err != nil {
			return NullAddress, fmt.Errorf("deref step %d (%#x + %#x): %w", i, uint64(current), off, err)
		}
		if next == NullAddress {
			return NullAddress, fmt.Errorf("deref step %d (%#x + %#x): %w", i, uint64(current), off, ErrNullPointer)
		}
		current = next
	}

	return current.Add(offsets[len(offsets)-1]), nil
}

// Deref resolves a pointer chain with the pointer width chosen by derefType.
// The boolean is false when any read fails or an intermediate pointer is null.
// Exit is not checked up front; reads from a process that is gone fail.
func Deref(proc Process, derefType DerefType, base ProcessMemoryAddress, offsets ...int64) (ProcessMemoryAddress, bool) {
	if proc == nil {
		return NullAddress, false
	}

	addr, err := DerefChain(proc, derefType.Is64Bit(proc), base, offsets...)
	if err != nil {
		return NullAddress, false
	}
	return addr, true
}

// ReadPath reads a value of type T at the end of a pointer chain.
func ReadPath[T any](proc Process, derefType DerefType, base ProcessMemoryAddress, offsets ...int64) (T, error) {
	var zero T

	addr, err := DerefChain(proc, derefType.Is64Bit(proc), base, offsets...)
	if err != nil {
		return zero, err
	}

	val, err := Read[T](proc, addr)
	if err != nil {
		return zero, fmt.Errorf("failed to read final value at 0x%x: %w", uint64(addr), err)
	}

	return val, nil
}

// Read is a helper to read a single value of type T from memory.
// T must be a fixed size value type; its in-memory layout is used as is.
func Read[T any](proc Process, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := proc.ReadMemory(addr, size)
	if err != nil {
		return t, err
	}

	copyTo(&t, data)
	return t, nil
}

// Write stores the in-memory representation of v at addr
func Write[T any](proc Process, addr ProcessMemoryAddress, v T) error {
	return proc.WriteMemory(addr, Bytes(v))
}

// Bytes returns a copy of the raw bytes of v
func Bytes[T any](v T) []byte {
	size := int(unsafe.Sizeof(v))
	out := make([]byte, size)
	if size == 0 {
		return out
	}
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
	return out
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}

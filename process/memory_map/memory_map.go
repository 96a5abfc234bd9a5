package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the backing file
	Inode   uint64 // Inode of the backing file, 0 for anonymous mappings
	Path    string // Backing file or pseudo path such as "[heap]"
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	if mmItem.Path == "" {
		return fmt.Sprintf("Address: %x, Size: %d, Perms: %s", mmItem.Address, mmItem.Size, mmItem.Perms)
	}
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

// End returns the first address past the region
func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

// IsPrivate reports a copy-on-write mapping
func (mmItem MemoryMapItem) IsPrivate() bool {
	return len(mmItem.Perms) > 3 && mmItem.Perms[3] == 'p'
}

// IsGuarded reports a mapping without any access rights, typically a stack guard
func (mmItem MemoryMapItem) IsGuarded() bool {
	return strings.HasPrefix(mmItem.Perms, "---")
}

// IsFileBacked reports whether the region maps a file on disk
func (mmItem MemoryMapItem) IsFileBacked() bool {
	return mmItem.Inode != 0 && strings.HasPrefix(mmItem.Path, "/")
}

// IsAnonymous reports heap, stack and anonymous mmap regions
func (mmItem MemoryMapItem) IsAnonymous() bool {
	return !mmItem.IsFileBacked()
}

// IsSpecial reports kernel provided regions which cannot be read remotely
func (mmItem MemoryMapItem) IsSpecial() bool {
	switch mmItem.Path {
	case "[vvar]", "[vsyscall]", "[vvar_vclock]":
		return true
	}
	return false
}

// Name returns the base name of the backing file
func (mmItem MemoryMapItem) Name() string {
	if !mmItem.IsFileBacked() {
		return mmItem.Path
	}
	return filepath.Base(mmItem.Path)
}

// MemoryMap defines the interface for operations related to a process's memory map
type MemoryMap interface {
	// ReadMemoryMap reads and parses the memory map for a process
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)
}

// IsValidAddress checks if an address is within a mapped memory region.
// memoryMap must be sorted by address.
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// GetMemoryRegionForAddress returns the memory region containing an address.
// memoryMap must be sorted by address.
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// Sort orders regions by start address
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// ParseMaps parses the /proc/[pid]/maps format:
//
//	start-end perms offset dev inode [path]
func ParseMaps(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		item, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return memoryMap, nil
}

func parseLine(line string) (MemoryMapItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return MemoryMapItem{}, false
	}

	// Parse address range (e.g., "00400000-0040b000")
	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	// paths may contain spaces
	var path string
	if len(fields) > 5 {
		path = strings.Join(fields[5:], " ")
	}

	return MemoryMapItem{
		Address: startAddr,
		Size:    uint(endAddr - startAddr),
		Perms:   fields[1],
		Offset:  offset,
		Inode:   inode,
		Path:    path,
	}, true
}

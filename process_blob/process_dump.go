// Package process_blob provides an in-memory process image. It backs offline
// analysis of captured regions and serves as the process double in tests.
package process_blob

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"memkit/process"
	"memkit/process/memory_map"
)

// ProcessDump implements process.Process over regions held in memory
type ProcessDump struct {
	mu        sync.RWMutex
	pid       process.ProcessID
	startTime time.Time
	is64Bit   bool
	exited    bool
	memoryMap []memory_map.MemoryMapItem
	blobs     map[uint64][]byte // Address -> Data
	modules   []process.Module

	reads atomic.Int64
}

var _ process.Process = (*ProcessDump)(nil)

// NewProcessDump creates an empty 64-bit image
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		pid:       1,
		startTime: time.Unix(0, 0),
		is64Bit:   true,
		blobs:     make(map[uint64][]byte),
	}
}

func (p *ProcessDump) SetPID(pid process.ProcessID) *ProcessDump {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
	return p
}

func (p *ProcessDump) Set64Bit(is64Bit bool) *ProcessDump {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.is64Bit = is64Bit
	return p
}

// SetExited marks the image as belonging to a process that is gone
func (p *ProcessDump) SetExited(exited bool) *ProcessDump {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = exited
	return p
}

// AddRegion maps data at addr as a private anonymous region.
// perms follows the /proc/<pid>/maps form, e.g. "rw-p".
func (p *ProcessDump) AddRegion(addr process.ProcessMemoryAddress, data []byte, perms string) *ProcessDump {
	return p.addRegion(memory_map.MemoryMapItem{
		Address: uint64(addr),
		Size:    uint(len(data)),
		Perms:   perms,
	}, data)
}

// Segment is one mapping of a module image, Offset bytes past its base
type Segment struct {
	Offset uint64
	Data   []byte
	Perms  string
}

// AddModule maps an image called name at base. The first module added is the
// main module.
func (p *ProcessDump) AddModule(name string, base process.ProcessMemoryAddress, data []byte) *ProcessDump {
	return p.AddModuleSegments(name, base, Segment{Data: data, Perms: "r-xp"})
}

// AddModuleSegments maps an image made of several mappings, the way a loader
// lays out a shared object. Space between segments stays unmapped and the
// module spans base to the end of the last segment.
func (p *ProcessDump) AddModuleSegments(name string, base process.ProcessMemoryAddress, segments ...Segment) *ProcessDump {
	path := "/dump/" + name

	p.mu.RLock()
	inode := uint64(len(p.modules) + 1)
	p.mu.RUnlock()

	var size uint64
	for _, seg := range segments {
		p.addRegion(memory_map.MemoryMapItem{
			Address: uint64(base) + seg.Offset,
			Size:    uint(len(seg.Data)),
			Perms:   seg.Perms,
			Offset:  seg.Offset,
			Inode:   inode,
			Path:    path,
		}, seg.Data)
		size = max(size, seg.Offset+uint64(len(seg.Data)))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules = append(p.modules, process.Module{
		Name:     name,
		FileName: path,
		Base:     base,
		Size:     process.ProcessMemorySize(size),
	})
	return p
}

func (p *ProcessDump) addRegion(item memory_map.MemoryMapItem, data []byte) *ProcessDump {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.memoryMap {
		if item.Address < existing.End() && existing.Address < item.End() {
			panic(fmt.Sprintf("region %x overlaps %s", item.Address, existing))
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	p.blobs[item.Address] = buf
	p.memoryMap = append(p.memoryMap, item)
	memory_map.Sort(p.memoryMap)
	return p
}

// Reads returns the number of ReadMemory calls served
func (p *ProcessDump) Reads() int64 {
	return p.reads.Load()
}

func (p *ProcessDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.blobs = make(map[uint64][]byte)
	p.memoryMap = nil
	p.modules = nil
	p.exited = true
	return nil
}

func (p *ProcessDump) GetPID() process.ProcessID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid
}

func (p *ProcessDump) StartTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startTime
}

func (p *ProcessDump) HasExited() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exited
}

func (p *ProcessDump) Is64Bit() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.is64Bit
}

func (p *ProcessDump) UpdateMemoryMap() error {
	return nil // Memory map is static in a dump
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	region := memory_map.GetMemoryRegionForAddress(uint64(addr), p.memoryMap)
	return region != nil && region.IsReadable()
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]memory_map.MemoryMapItem, len(p.memoryMap))
	copy(result, p.memoryMap)
	return result, nil
}

// region returns the data backing the range [addr, addr+size)
func (p *ProcessDump) region(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (*memory_map.MemoryMapItem, []byte, error) {
	region := memory_map.GetMemoryRegionForAddress(uint64(addr), p.memoryMap)
	if region == nil {
		return nil, nil, process.ErrAddressNotMapped
	}

	data := p.blobs[region.Address]
	offset := uint64(addr) - region.Address
	if offset+uint64(size) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: %s at %s exceeds region %x", process.ErrAddressNotMapped, size.ToString(), addr.ToString(), region.Address)
	}

	return region, data[offset : offset+uint64(size)], nil
}

func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.reads.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.exited {
		return nil, process.ErrProcessNotOpen
	}

	region, data, err := p.region(addr, size)
	if err != nil {
		return nil, err
	}
	if !region.IsReadable() {
		return nil, fmt.Errorf("region %x is not readable", region.Address)
	}

	result := make([]byte, size)
	copy(result, data)
	return result, nil
}

func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return process.ErrProcessNotOpen
	}

	region, dst, err := p.region(addr, process.ProcessMemorySize(len(data)))
	if err != nil {
		return err
	}
	if !region.IsWritable() {
		return fmt.Errorf("memory region at %s is not writable", addr.ToString())
	}

	copy(dst, data)
	return nil
}

// Modules returns the images added with AddModule, main module first
func (p *ProcessDump) Modules() ([]process.Module, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.exited {
		return nil, process.ErrProcessNotOpen
	}

	result := make([]process.Module, len(p.modules))
	copy(result, p.modules)
	return result, nil
}

// MemoryPages yields the regions added with AddRegion, or every region with allPages
func (p *ProcessDump) MemoryPages(allPages bool) iter.Seq[process.MemoryPage] {
	return func(yield func(process.MemoryPage) bool) {
		p.mu.RLock()
		regions := make([]memory_map.MemoryMapItem, len(p.memoryMap))
		copy(regions, p.memoryMap)
		p.mu.RUnlock()

		for _, item := range regions {
			page := process.MemoryPage{
				Address: process.ProcessMemoryAddress(item.Address),
				Size:    process.ProcessMemorySize(item.Size),
				Perms:   item.Perms,
				Private: item.IsPrivate() && item.IsAnonymous(),
				Guarded: item.IsGuarded(),
			}

			if !allPages && (!page.Private || page.Guarded || !item.IsReadable()) {
				continue
			}

			if !yield(page) {
				return
			}
		}
	}
}

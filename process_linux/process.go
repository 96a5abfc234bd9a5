//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"memkit/process"
	"memkit/process/memory_map"
	"memkit/process/module_cache"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	ps "github.com/shirou/gopsutil/v3/process"
)

// upper bound of the x86_64 user address space
const userSpaceEnd = 0x7FFFFFFFFFFF

// mapRefreshInterval throttles memory map reloads triggered by reads of unknown addresses
const mapRefreshInterval = time.Second

// Option configures a LinuxProcess
type Option func(*LinuxProcess)

// WithModuleCache shares a module cache between process handles
func WithModuleCache(cache *module_cache.Cache) Option {
	return func(p *LinuxProcess) {
		p.modules = cache
	}
}

// WithMaxModules bounds the number of modules reported by Modules
func WithMaxModules(n int) Option {
	return func(p *LinuxProcess) {
		if n > 0 {
			p.maxModules = n
		}
	}
}

// LinuxProcess implements the process.Process interface for Linux systems
type LinuxProcess struct {
	pid        process.ProcessID
	log        *logger.Logger
	handle     *ps.Process
	startTime  time.Time
	is64Bit    bool
	exePath    string
	maxModules int
	modules    *module_cache.Cache

	mm     []memory_map.MemoryMapItem
	mmTime time.Time
	mu     sync.Mutex
}

// New creates a new LinuxProcess instance which is not yet attached to a pid
func New(opts ...Option) *LinuxProcess {
	p := &LinuxProcess{
		log:        logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
		maxModules: process.DefaultMaxModules,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.modules == nil {
		p.modules = module_cache.New(module_cache.DefaultCapacity)
	}

	return p
}

// NewWithPID creates a new LinuxProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, opts ...Option) (*LinuxProcess, error) {
	p := New(opts...)
	err := p.Open(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	// Check if process exists
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("process with PID %d does not exist", pid)
	}

	handle, err := ps.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}

	createTime, err := handle.CreateTime()
	if err != nil {
		return fmt.Errorf("process %d start time: %w", pid, err)
	}

	exePath, _ := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))

	p.mu.Lock()
	p.pid = pid
	p.handle = handle
	p.startTime = time.UnixMilli(createTime)
	p.exePath = exePath
	p.is64Bit = detect64Bit(pid)
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	if err := p.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened", exePath, "64bit:", p.is64Bit)

	return nil
}

// detect64Bit reads the ELF class of the main executable, falling back to
// the pointer width of this process when the image cannot be inspected
func detect64Bit(pid process.ProcessID) bool {
	f, err := elf.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return strconv.IntSize == 64
	}
	defer f.Close()

	return f.Class == elf.ELFCLASS64
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Infoln("Closing process")

	// Reset process state
	p.pid = 0
	p.handle = nil
	p.mm = nil

	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	p.log.Infoln("Process closed")

	return nil
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) StartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}

// HasExited also reports true when the pid was reused by a newer process
func (p *LinuxProcess) HasExited() bool {
	p.mu.Lock()
	handle, start := p.handle, p.startTime
	p.mu.Unlock()

	if handle == nil {
		return true
	}

	running, err := handle.IsRunning()
	if err != nil || !running {
		return true
	}

	createTime, err := handle.CreateTime()
	if err != nil {
		return true
	}
	return !time.UnixMilli(createTime).Equal(start)
}

func (p *LinuxProcess) Is64Bit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.is64Bit
}

func (p *LinuxProcess) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.updateMemoryMapLocked()
}

func (p *LinuxProcess) updateMemoryMapLocked() error {
	if p.pid == 0 {
		return process.ErrProcessNotOpen
	}

	linuxMemMap := memory_map.NewLinuxMemoryMap()
	mm, err := linuxMemMap.ReadMemoryMap(int(p.pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	// GetMemoryRegionForAddress requires the memory map to be sorted by address
	memory_map.Sort(mm)

	p.mm = mm
	p.mmTime = time.Now()
	return nil
}

func (p *LinuxProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.regionLocked(addr)
	return ok
}

// regionLocked returns the readable region containing addr. An unknown
// address triggers a throttled reload of the memory map.
func (p *LinuxProcess) regionLocked(addr process.ProcessMemoryAddress) (memory_map.MemoryMapItem, bool) {
	if addr <= 0x10000 || addr > userSpaceEnd {
		return memory_map.MemoryMapItem{}, false
	}

	item := memory_map.GetMemoryRegionForAddress(uint64(addr), p.mm)
	if item == nil && time.Since(p.mmTime) > mapRefreshInterval {
		if err := p.updateMemoryMapLocked(); err != nil {
			return memory_map.MemoryMapItem{}, false
		}
		item = memory_map.GetMemoryRegionForAddress(uint64(addr), p.mm)
	}

	if item == nil || !item.IsReadable() {
		return memory_map.MemoryMapItem{}, false
	}
	return *item, true
}

func (p *LinuxProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	// Make a copy of the memory map to prevent external modification
	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)

	return result, nil
}

package sigscan

import (
	"sync"

	"memkit/process"
)

// AllPages is the module key that scans every committed private page
const AllPages = ""

type groupSet struct {
	names   []string
	targets map[string]*ScanTarget
}

// ScanData maps module name to group name to ScanTarget. Keys keep their
// insertion order.
type ScanData struct {
	modules []string
	groups  map[string]*groupSet
}

func NewScanData() *ScanData {
	return &ScanData{groups: make(map[string]*groupSet)}
}

// Add registers target under module and group, replacing an existing one
func (d *ScanData) Add(module, group string, target *ScanTarget) *ScanData {
	set, ok := d.groups[module]
	if !ok {
		set = &groupSet{targets: make(map[string]*ScanTarget)}
		d.groups[module] = set
		d.modules = append(d.modules, module)
	}

	if _, exists := set.targets[group]; !exists {
		set.names = append(set.names, group)
	}
	set.targets[group] = target
	return d
}

func (d *ScanData) Modules() []string {
	return d.modules
}

func (d *ScanData) Groups(module string) []string {
	set, ok := d.groups[module]
	if !ok {
		return nil
	}
	return set.names
}

func (d *ScanData) Target(module, group string) (*ScanTarget, bool) {
	set, ok := d.groups[module]
	if !ok {
		return nil, false
	}
	t, ok := set.targets[group]
	return t, ok
}

type resultKey struct {
	module string
	group  string
}

// ScanResults holds the resolved address of every group of a ScanData, zero
// while unresolved. It is updated while a scan runs and may be polled.
type ScanResults struct {
	mu    sync.RWMutex
	data  *ScanData
	addrs map[resultKey]process.ProcessMemoryAddress
}

func NewScanResults(data *ScanData) *ScanResults {
	r := &ScanResults{
		data:  data,
		addrs: make(map[resultKey]process.ProcessMemoryAddress),
	}

	for _, module := range data.Modules() {
		for _, group := range data.Groups(module) {
			r.addrs[resultKey{module, group}] = process.NullAddress
		}
	}
	return r
}

func (r *ScanResults) Get(module, group string) process.ProcessMemoryAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addrs[resultKey{module, group}]
}

func (r *ScanResults) Set(module, group string, addr process.ProcessMemoryAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[resultKey{module, group}] = addr
}

func (r *ScanResults) Found(module, group string) bool {
	return r.Get(module, group) != process.NullAddress
}

// Pending returns the enabled groups of module that are still unresolved
func (r *ScanResults) Pending(module string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []string
	for _, group := range r.data.Groups(module) {
		t, _ := r.data.Target(module, group)
		if t.DoScan && r.addrs[resultKey{module, group}] == process.NullAddress {
			pending = append(pending, group)
		}
	}
	return pending
}

// AllFound reports whether every enabled group has an address
func (r *ScanResults) AllFound() bool {
	for _, module := range r.data.Modules() {
		if len(r.Pending(module)) > 0 {
			return false
		}
	}
	return true
}

// Snapshot copies the results as module -> group -> address
func (r *ScanResults) Snapshot() map[string]map[string]process.ProcessMemoryAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]process.ProcessMemoryAddress)
	for key, addr := range r.addrs {
		groups, ok := out[key.module]
		if !ok {
			groups = make(map[string]process.ProcessMemoryAddress)
			out[key.module] = groups
		}
		groups[key.group] = addr
	}
	return out
}

// Data returns the ScanData the results were created for
func (r *ScanResults) Data() *ScanData {
	return r.data
}

//go:build linux

package process_linux

import (
	"iter"

	"memkit/process"
	"memkit/process/memory_map"
	"memkit/process/module_cache"
)

// Modules returns the loaded images, main executable first. Results are
// cached per process incarnation and image count.
func (p *LinuxProcess) Modules() ([]process.Module, error) {
	if err := p.UpdateMemoryMap(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	mm := p.mm
	key := module_cache.Key{
		StartTime:   p.startTime.UnixMilli(),
		PID:         p.pid,
		ModuleCount: countImages(mm),
	}
	exePath, maxModules, cache := p.exePath, p.maxModules, p.modules
	p.mu.Unlock()

	return cache.GetOrLoad(key, func() ([]process.Module, error) {
		modules := ModulesFromMap(mm, exePath, maxModules)
		p.log.Debugln("Enumerated", len(modules), "modules")
		return modules, nil
	})
}

func countImages(mm []memory_map.MemoryMapItem) int {
	seen := make(map[string]struct{})
	for _, item := range mm {
		if item.IsFileBacked() {
			seen[item.Path] = struct{}{}
		}
	}
	return len(seen)
}

// ModulesFromMap groups file backed mappings by path into modules. The module
// spans from its lowest mapping to the end of its highest one. The image at
// exePath is placed first; the rest keep address order.
func ModulesFromMap(mm []memory_map.MemoryMapItem, exePath string, maxModules int) []process.Module {
	var modules []process.Module
	index := make(map[string]int)

	for _, item := range mm {
		if !item.IsFileBacked() {
			continue
		}

		if i, ok := index[item.Path]; ok {
			m := &modules[i]
			base := min(m.Base, process.ProcessMemoryAddress(item.Address))
			end := max(m.End(), process.ProcessMemoryAddress(item.End()))
			m.Base = base
			m.Size = process.ProcessMemorySize(end - base)
			continue
		}

		index[item.Path] = len(modules)
		modules = append(modules, process.Module{
			Name:     item.Name(),
			FileName: item.Path,
			Base:     process.ProcessMemoryAddress(item.Address),
			Size:     process.ProcessMemorySize(item.Size),
		})
	}

	if i, ok := index[exePath]; ok && i != 0 {
		exe := modules[i]
		copy(modules[1:i+1], modules[:i])
		modules[0] = exe
	}

	if maxModules > 0 && len(modules) > maxModules {
		modules = modules[:maxModules]
	}

	return modules
}

// MemoryPages yields the committed pages of the process. Without allPages
// only readable private anonymous mappings are produced, which is where
// heap objects live.
func (p *LinuxProcess) MemoryPages(allPages bool) iter.Seq[process.MemoryPage] {
	return func(yield func(process.MemoryPage) bool) {
		if err := p.UpdateMemoryMap(); err != nil {
			p.log.Debugln("Failed to read memory map", err)
			return
		}

		p.mu.Lock()
		mm := p.mm
		p.mu.Unlock()

		for page := range PagesFromMap(mm, allPages) {
			if !yield(page) {
				return
			}
		}
	}
}

// PagesFromMap converts memory map entries to pages, filtering as MemoryPages does
func PagesFromMap(mm []memory_map.MemoryMapItem, allPages bool) iter.Seq[process.MemoryPage] {
	return func(yield func(process.MemoryPage) bool) {
		for _, item := range mm {
			if item.IsSpecial() {
				continue
			}

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

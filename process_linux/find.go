//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"memkit/process"

	ps "github.com/shirou/gopsutil/v3/process"
)

// PIDsByName returns the pids of processes whose name or executable base name
// equals name, lowest first. The calling process is skipped.
func PIDsByName(name string) ([]process.ProcessID, error) {
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}

	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := int32(os.Getpid())
	var out []process.ProcessID

	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}

		if comm, err := proc.Name(); err == nil && comm == name {
			out = append(out, process.ProcessID(proc.Pid))
			continue
		}

		// may fail for zombies or without permission
		if exe, err := proc.Exe(); err == nil && filepath.Base(exe) == name {
			out = append(out, process.ProcessID(proc.Pid))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// OpenByName opens the lowest pid whose name matches
func OpenByName(name string, opts ...Option) (*LinuxProcess, error) {
	pids, err := PIDsByName(name)
	if err != nil {
		return nil, err
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("process %q: %w", name, os.ErrNotExist)
	}

	return NewWithPID(pids[0], opts...)
}

package main

import (
	"fmt"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memkit/pointer"
	"memkit/process"
	"memkit/scantask"
	"memkit/sigscan"
)

// Value is the JSON view of a watched pointer
type Value struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Pointer  string `json:"pointer"`
	Address  string `json:"address,omitempty"`
	Resolved bool   `json:"resolved"`
	Value    any    `json:"value"`
}

type watch interface {
	Value() Value
}

type typedWatch[T comparable] struct {
	typ string
	p   *pointer.Pointer[T]
}

func (w typedWatch[T]) Value() Value {
	v := Value{
		Name:    w.p.Name(),
		Type:    w.typ,
		Pointer: w.p.String(),
		Value:   w.p.Current(),
	}
	if addr, ok := w.p.Deref(); ok {
		v.Address = addr.ToString()
		v.Resolved = true
	}
	return v
}

func knownType(typ string) bool {
	switch typ {
	case "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "string":
		return true
	}
	return false
}

func makeWatch[T pointer.Scalar](f *pointer.Factory, typ string, base process.ProcessMemoryAddress, offsets []int64) watch {
	return typedWatch[T]{typ: typ, p: pointer.MakeAt[T](f, base, offsets...)}
}

func newWatch(f *pointer.Factory, ps PointerSpec, base process.ProcessMemoryAddress) (watch, error) {
	opts := []pointer.Option{pointer.WithName(ps.Name), pointer.WithUpdateInterval(ps.Interval)}
	if ps.StringType != "" {
		st, err := process.ParseStringType(ps.StringType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pointer.WithStringType(st))
	}
	f = f.With(opts...)

	switch ps.Type {
	case "int8":
		return makeWatch[int8](f, ps.Type, base, ps.Offsets), nil
	case "int16":
		return makeWatch[int16](f, ps.Type, base, ps.Offsets), nil
	case "int32":
		return makeWatch[int32](f, ps.Type, base, ps.Offsets), nil
	case "int64":
		return makeWatch[int64](f, ps.Type, base, ps.Offsets), nil
	case "uint8":
		return makeWatch[uint8](f, ps.Type, base, ps.Offsets), nil
	case "uint16":
		return makeWatch[uint16](f, ps.Type, base, ps.Offsets), nil
	case "uint32":
		return makeWatch[uint32](f, ps.Type, base, ps.Offsets), nil
	case "uint64":
		return makeWatch[uint64](f, ps.Type, base, ps.Offsets), nil
	case "float32":
		return makeWatch[float32](f, ps.Type, base, ps.Offsets), nil
	case "float64":
		return makeWatch[float64](f, ps.Type, base, ps.Offsets), nil
	case "string":
		return typedWatch[string]{typ: ps.Type, p: f.MakeStringAt(base, ps.Offsets...)}, nil
	}
	return nil, fmt.Errorf("unknown pointer type %q", ps.Type)
}

// Watcher resolves the profile targets in the background and rebuilds the
// pointers every time a scan completes.
type Watcher struct {
	proc    process.Process
	profile *Profile
	task    *scantask.ScanTask
	log     *logger.Logger

	mu      sync.RWMutex
	results *sigscan.ScanResults
	scans   int
	order   []string
	watches map[string]watch
}

func NewWatcher(proc process.Process, profile *Profile, opts ...scantask.Option) *Watcher {
	return &Watcher{
		proc:    proc,
		profile: profile,
		task:    scantask.New(proc, opts...),
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("memwatch-%d", proc.GetPID()))),
		watches: make(map[string]watch),
	}
}

// Start begins a scan, replacing any scan still running
func (w *Watcher) Start() {
	results := w.task.Run(w.profile.ScanData(w.proc), w.build)

	w.mu.Lock()
	w.results = results
	w.mu.Unlock()
}

func (w *Watcher) Stop() {
	w.task.Cancel()
}

func (w *Watcher) Wait() error {
	return w.task.Wait()
}

// build runs on the scan goroutine once every target is found
func (w *Watcher) build(results *sigscan.ScanResults) {
	var factory *pointer.Factory
	if exe, err := process.MainModule(w.proc); err == nil {
		factory = pointer.NewFactoryForModule(w.proc, exe)
	} else {
		factory = pointer.NewFactoryForModule(w.proc, process.Module{Name: "none"})
	}

	order := make([]string, 0, len(w.profile.Pointers))
	watches := make(map[string]watch, len(w.profile.Pointers))

	for _, ps := range w.profile.Pointers {
		base, err := w.base(ps, factory, results)
		if err != nil {
			w.log.Warn("Skipping pointer "+ps.Name+": ", err)
			continue
		}

		wt, err := newWatch(factory, ps, base)
		if err != nil {
			w.log.Warn("Skipping pointer "+ps.Name+": ", err)
			continue
		}
		order = append(order, ps.Name)
		watches[ps.Name] = wt
	}

	w.mu.Lock()
	w.order = order
	w.watches = watches
	w.scans++
	w.mu.Unlock()

	w.log.Infoln("Built", len(order), "pointers")
}

func (w *Watcher) base(ps PointerSpec, factory *pointer.Factory, results *sigscan.ScanResults) (process.ProcessMemoryAddress, error) {
	switch {
	case ps.Target != "":
		module, group := splitTarget(ps.Target)
		if !results.Found(module, group) {
			return process.NullAddress, fmt.Errorf("target %s not resolved", ps.Target)
		}
		return results.Get(module, group).Add(ps.Base), nil
	case ps.Module != "":
		m, err := process.FindModule(w.proc, ps.Module)
		if err != nil {
			return process.NullAddress, err
		}
		return m.Base.Add(ps.Base), nil
	}

	if factory.Module().Base == process.NullAddress {
		return process.NullAddress, process.ErrModuleNotFound
	}
	return factory.Module().Base.Add(ps.Base), nil
}

// ScanStatus is the JSON view of the scan state
type ScanStatus struct {
	Completed bool                         `json:"completed"`
	Scans     int                          `json:"scans"`
	Targets   map[string]map[string]string `json:"targets"`
}

func (w *Watcher) Status() ScanStatus {
	w.mu.RLock()
	results, scans := w.results, w.scans
	w.mu.RUnlock()

	status := ScanStatus{
		Completed: w.task.IsCompleted() && results != nil && results.AllFound(),
		Scans:     scans,
		Targets:   make(map[string]map[string]string),
	}
	if results == nil {
		return status
	}

	data := results.Data()
	for _, module := range data.Modules() {
		key := module
		if key == sigscan.AllPages {
			key = pagesKey
		}
		groups := make(map[string]string)
		for _, group := range data.Groups(module) {
			if results.Found(module, group) {
				groups[group] = results.Get(module, group).ToString()
			} else {
				groups[group] = ""
			}
		}
		status.Targets[key] = groups
	}
	return status
}

func (w *Watcher) Values() []Value {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Value, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.watches[name].Value())
	}
	return out
}

func (w *Watcher) Value(name string) (Value, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	wt, ok := w.watches[name]
	if !ok {
		return Value{}, false
	}
	return wt.Value(), true
}

// Package pointer tracks values behind pointer chains in another process.
//
// A Pointer holds a base address and a list of offsets. Every access to
// Current or Old re-resolves the chain, unless an update interval throttles
// it, and notifies OnChanged handlers with the previous and new value.
package pointer

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"memkit/process"
)

// Scalar lists the fixed size types a typed pointer can read
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr |
		~float32 | ~float64
}

type readFunc[T comparable] func(proc process.Process, addr process.ProcessMemoryAddress) (T, error)

type writeFunc[T comparable] func(proc process.Process, addr process.ProcessMemoryAddress, v T) error

// Pointer is a live handle on a value of type T. The process is not owned;
// pointers must be recreated after the process restarts.
type Pointer[T comparable] struct {
	proc    process.Process
	base    process.ProcessMemoryAddress
	offsets []int64
	cfg     config
	read    readFunc[T]
	write   writeFunc[T]

	mu         sync.Mutex
	current    T
	old        T
	lastUpdate time.Time
	handlers   []func(old, current T)
}

func newPointer[T comparable](proc process.Process, base process.ProcessMemoryAddress, offsets []int64, cfg config, read readFunc[T], write writeFunc[T]) *Pointer[T] {
	return &Pointer[T]{
		proc:    proc,
		base:    base,
		offsets: slices.Clone(offsets),
		cfg:     cfg,
		read:    read,
		write:   write,
	}
}

// New returns a pointer reading a scalar at the end of the chain
func New[T Scalar](proc process.Process, base process.ProcessMemoryAddress, offsets []int64, opts ...Option) *Pointer[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newPointer[T](proc, base, offsets, cfg, process.Read[T], process.Write[T])
}

// NewString returns a pointer reading a string at the end of the chain
func NewString(proc process.Process, base process.ProcessMemoryAddress, offsets []int64, opts ...Option) *Pointer[string] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newPointer(proc, base, offsets, cfg, stringReader(cfg), stringWriter(cfg))
}

// NewChild extends the chain of parent with offsets. The child keeps the
// parent's name and deref type unless opts override them.
func NewChild[T Scalar, P comparable](parent *Pointer[P], offsets []int64, opts ...Option) *Pointer[T] {
	cfg := parent.childConfig(opts)
	return newPointer[T](parent.proc, parent.base, parent.childOffsets(offsets), cfg, process.Read[T], process.Write[T])
}

// NewStringChild is NewChild for string pointers
func NewStringChild[P comparable](parent *Pointer[P], offsets []int64, opts ...Option) *Pointer[string] {
	cfg := parent.childConfig(opts)
	return newPointer(parent.proc, parent.base, parent.childOffsets(offsets), cfg, stringReader(cfg), stringWriter(cfg))
}

func (p *Pointer[T]) childConfig(opts []Option) config {
	cfg := defaultConfig()
	cfg.name = p.cfg.name
	cfg.derefType = p.cfg.derefType
	cfg.clock = p.cfg.clock
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (p *Pointer[T]) childOffsets(offsets []int64) []int64 {
	return append(slices.Clone(p.offsets), offsets...)
}

func stringReader(cfg config) readFunc[string] {
	return func(proc process.Process, addr process.ProcessMemoryAddress) (string, error) {
		return process.ReadString(proc, addr, cfg.stringType, cfg.stringLength)
	}
}

func stringWriter(cfg config) writeFunc[string] {
	return func(proc process.Process, addr process.ProcessMemoryAddress, v string) error {
		data, err := process.EncodeString(v, cfg.stringType)
		if err != nil {
			return err
		}

		if cfg.stringType.IsSized() {
			units := len(data)
			if cfg.stringType == process.StringUTF16Sized {
				units /= 2
			}
			if err := process.Write[int32](proc, addr-4, int32(units)); err != nil {
				return err
			}
		}

		return proc.WriteMemory(addr, data)
	}
}

// Update re-resolves the pointer unless the update interval has not elapsed
// since the last resolution. It reports whether the value was updated.
func (p *Pointer[T]) Update() bool {
	return p.ForceUpdate(false)
}

// ForceUpdate is Update, optionally ignoring the update interval
func (p *Pointer[T]) ForceUpdate(ignoreThrottle bool) bool {
	p.mu.Lock()

	now := p.cfg.clock()
	if !ignoreThrottle && p.cfg.interval > 0 && !p.lastUpdate.IsZero() && now.Sub(p.lastUpdate) < p.cfg.interval {
		p.mu.Unlock()
		return false
	}
	p.lastUpdate = now

	value, ok := p.resolve()
	if !ok && !p.cfg.updateOnNull {
		p.mu.Unlock()
		return false
	}

	p.old, p.current = p.current, value
	old, current := p.old, p.current
	handlers := slices.Clone(p.handlers)
	p.mu.Unlock()

	// handlers run every update, changed or not
	for _, h := range handlers {
		h(old, current)
	}
	return true
}

// resolve reads the value at the end of the chain, the zero value on failure
func (p *Pointer[T]) resolve() (T, bool) {
	var zero T

	addr, ok := process.Deref(p.proc, p.cfg.derefType, p.base, p.offsets...)
	if !ok {
		return zero, false
	}

	value, err := p.read(p.proc, addr)
	if err != nil {
		return zero, false
	}
	return value, true
}

// Deref resolves the chain without reading the value
func (p *Pointer[T]) Deref() (process.ProcessMemoryAddress, bool) {
	return process.Deref(p.proc, p.cfg.derefType, p.base, p.offsets...)
}

// DerefAddress is Deref returning process.NullAddress on failure
func (p *Pointer[T]) DerefAddress() process.ProcessMemoryAddress {
	addr, _ := p.Deref()
	return addr
}

// Current updates the pointer and returns its value
func (p *Pointer[T]) Current() T {
	p.Update()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Old updates the pointer and returns the value before the last update
func (p *Pointer[T]) Old() T {
	p.Update()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.old
}

// Changed updates the pointer and reports whether the last update changed the value
func (p *Pointer[T]) Changed() bool {
	p.Update()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.old != p.current
}

// Reset clears both values and the update timestamp
func (p *Pointer[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	p.current = zero
	p.old = zero
	p.lastUpdate = time.Time{}
}

// OnChanged registers a handler called after every update
func (p *Pointer[T]) OnChanged(handler func(old, current T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

// Write stores v at the end of the chain
func (p *Pointer[T]) Write(v T) error {
	addr, ok := p.Deref()
	if !ok {
		return fmt.Errorf("write %s: %w", p, process.ErrNullPointer)
	}
	return p.write(p.proc, addr, v)
}

func (p *Pointer[T]) SetUpdateInterval(d time.Duration) *Pointer[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.interval = d
	return p
}

func (p *Pointer[T]) SetUpdateOnNull(updateOnNull bool) *Pointer[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.updateOnNull = updateOnNull
	return p
}

func (p *Pointer[T]) SetName(name string) *Pointer[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.name = name
	return p
}

func (p *Pointer[T]) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.name
}

func (p *Pointer[T]) Base() process.ProcessMemoryAddress {
	return p.base
}

// Offsets returns a copy of the offset chain
func (p *Pointer[T]) Offsets() []int64 {
	return slices.Clone(p.offsets)
}

func (p *Pointer[T]) DerefType() process.DerefType {
	return p.cfg.derefType
}

func (p *Pointer[T]) Process() process.Process {
	return p.proc
}

func (p *Pointer[T]) String() string {
	parts := make([]string, len(p.offsets))
	for i, off := range p.offsets {
		if off < 0 {
			parts[i] = fmt.Sprintf("-0x%X", -off)
		} else {
			parts[i] = fmt.Sprintf("0x%X", off)
		}
	}

	s := p.base.ToString()
	if len(parts) > 0 {
		s += " [" + strings.Join(parts, ", ") + "]"
	}
	if name := p.Name(); name != "" {
		s = name + " " + s
	}
	return s
}

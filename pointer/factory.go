package pointer

import (
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memkit/process"
)

// Factory builds pointers relative to a default module. Every pointer it
// returns has been resolved once.
type Factory struct {
	proc   process.Process
	module process.Module
	opts   []Option
	log    *logger.Logger
}

// NewFactory uses the main module of proc as the default module
func NewFactory(proc process.Process, opts ...Option) (*Factory, error) {
	module, err := process.MainModule(proc)
	if err != nil {
		return nil, fmt.Errorf("pointer factory: %w", err)
	}
	return NewFactoryForModule(proc, module, opts...), nil
}

// NewFactoryForModule uses module as the default module
func NewFactoryForModule(proc process.Process, module process.Module, opts ...Option) *Factory {
	return &Factory{
		proc:   proc,
		module: module,
		opts:   opts,
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "pointer-"+module.Name)),
	}
}

// NewFactoryForModuleName looks up the default module by name
func NewFactoryForModuleName(proc process.Process, name string, opts ...Option) (*Factory, error) {
	module, err := process.FindModule(proc, name)
	if err != nil {
		return nil, fmt.Errorf("pointer factory: %w", err)
	}
	return NewFactoryForModule(proc, module, opts...), nil
}

func (f *Factory) Module() process.Module {
	return f.module
}

func (f *Factory) Process() process.Process {
	return f.proc
}

func (f *Factory) options(opts []Option) []Option {
	return append(append([]Option{}, f.opts...), opts...)
}

func prime[T comparable](f *Factory, p *Pointer[T]) *Pointer[T] {
	p.Update()
	f.log.Debugln("Pointer", p.String(), "resolved to", p.DerefAddress().ToString())
	return p
}

func (f *Factory) moduleByName(name string) (process.Module, error) {
	module, err := process.FindModule(f.proc, name)
	if err != nil {
		return process.Module{}, fmt.Errorf("pointer factory: %w", err)
	}
	return module, nil
}

// Make builds a pointer at default module base + baseOffset
func Make[T Scalar](f *Factory, baseOffset int64, offsets ...int64) *Pointer[T] {
	return MakeInModule[T](f, f.module, baseOffset, offsets...)
}

// MakeInModule builds a pointer at module base + baseOffset
func MakeInModule[T Scalar](f *Factory, module process.Module, baseOffset int64, offsets ...int64) *Pointer[T] {
	return MakeAt[T](f, module.Base.Add(baseOffset), offsets...)
}

// MakeInModuleName builds a pointer relative to the module called name
func MakeInModuleName[T Scalar](f *Factory, name string, baseOffset int64, offsets ...int64) (*Pointer[T], error) {
	module, err := f.moduleByName(name)
	if err != nil {
		return nil, err
	}
	return MakeInModule[T](f, module, baseOffset, offsets...), nil
}

// MakeAt builds a pointer at an absolute base address
func MakeAt[T Scalar](f *Factory, base process.ProcessMemoryAddress, offsets ...int64) *Pointer[T] {
	return prime(f, New[T](f.proc, base, offsets, f.opts...))
}

// MakeFrom appends offsets to the chain of parent
func MakeFrom[T Scalar, P comparable](f *Factory, parent *Pointer[P], offsets ...int64) *Pointer[T] {
	return prime(f, NewChild[T](parent, offsets, f.opts...))
}

// MakeString builds a string pointer at default module base + baseOffset
func (f *Factory) MakeString(baseOffset int64, offsets ...int64) *Pointer[string] {
	return f.MakeStringInModule(f.module, baseOffset, offsets...)
}

func (f *Factory) MakeStringInModule(module process.Module, baseOffset int64, offsets ...int64) *Pointer[string] {
	return f.MakeStringAt(module.Base.Add(baseOffset), offsets...)
}

func (f *Factory) MakeStringInModuleName(name string, baseOffset int64, offsets ...int64) (*Pointer[string], error) {
	module, err := f.moduleByName(name)
	if err != nil {
		return nil, err
	}
	return f.MakeStringInModule(module, baseOffset, offsets...), nil
}

func (f *Factory) MakeStringAt(base process.ProcessMemoryAddress, offsets ...int64) *Pointer[string] {
	return prime(f, NewString(f.proc, base, offsets, f.opts...))
}

// MakeStringFrom appends offsets to the chain of parent
func MakeStringFrom[P comparable](f *Factory, parent *Pointer[P], offsets ...int64) *Pointer[string] {
	return prime(f, NewStringChild(parent, offsets, f.opts...))
}

// With returns a factory adding opts to every pointer it builds
func (f *Factory) With(opts ...Option) *Factory {
	clone := *f
	clone.opts = f.options(opts)
	return &clone
}

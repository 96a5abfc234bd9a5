package sigscan

import (
	"fmt"
	"iter"

	"memkit/process"
)

// Scanner runs signatures over one memory region. Bytes of a process region
// are fetched on first use and kept until Invalidate.
// A Scanner is not safe for concurrent use.
type Scanner struct {
	proc  process.Process
	start process.ProcessMemoryAddress
	size  process.ProcessMemorySize
	data  []byte
}

// NewScanner scans buf as if it was mapped at start
func NewScanner(buf []byte, start process.ProcessMemoryAddress) *Scanner {
	return &Scanner{
		start: start,
		size:  process.ProcessMemorySize(len(buf)),
		data:  buf,
	}
}

// NewProcessScanner scans the whole image of module
func NewProcessScanner(proc process.Process, module process.Module) *Scanner {
	return NewProcessScannerRange(proc, module.Base, module.Size)
}

// NewProcessScannerRange scans size bytes of proc starting at start
func NewProcessScannerRange(proc process.Process, start process.ProcessMemoryAddress, size process.ProcessMemorySize) *Scanner {
	return &Scanner{
		proc:  proc,
		start: start,
		size:  size,
	}
}

func (s *Scanner) Start() process.ProcessMemoryAddress {
	return s.start
}

func (s *Scanner) Size() process.ProcessMemorySize {
	return s.size
}

// Invalidate drops the cached bytes of a process region
func (s *Scanner) Invalidate() {
	if s.proc != nil {
		s.data = nil
	}
}

// bytes returns the region contents, nil when nothing in it can be read
func (s *Scanner) bytes() []byte {
	if s.proc == nil {
		return s.data
	}

	if s.data != nil && len(s.data) == int(s.size) {
		return s.data
	}

	data, err := s.proc.ReadMemory(s.start, s.size)
	if err != nil || len(data) != int(s.size) {
		data = s.readMapped()
	}

	s.data = data
	return data
}

// readMapped builds the region from the readable mappings inside it. Holes and
// mappings without read access stay zero so offsets remain relative to start.
// Images commonly have both: padding mapped ---p between their segments.
func (s *Scanner) readMapped() []byte {
	mm, err := s.proc.GetMemoryMap()
	if err != nil {
		return nil
	}

	start, end := uint64(s.start), uint64(s.start)+uint64(s.size)

	var data []byte
	for _, item := range mm {
		if !item.IsReadable() || item.End() <= start || item.Address >= end {
			continue
		}

		from, to := max(item.Address, start), min(item.End(), end)
		chunk, err := s.proc.ReadMemory(process.ProcessMemoryAddress(from), process.ProcessMemorySize(to-from))
		if err != nil {
			continue
		}

		if data == nil {
			data = make([]byte, s.size)
		}
		copy(data[from-start:], chunk)
	}
	return data
}

// ScanAll yields every match of every signature in target, signatures in
// insertion order and matches in ascending order. An unreadable region
// yields nothing.
func (s *Scanner) ScanAll(target *ScanTarget, alignment int) (iter.Seq[process.ProcessMemoryAddress], error) {
	if alignment < 1 {
		return nil, fmt.Errorf("%w: alignment %d", ErrRange, alignment)
	}
	if !s.start.IsAligned(alignment) {
		return nil, fmt.Errorf("%w: start %s is not aligned to %d", ErrRange, s.start.ToString(), alignment)
	}

	data := s.bytes()
	if data == nil {
		return func(func(process.ProcessMemoryAddress) bool) {}, nil
	}

	enumerators := make([]*Enumerator, len(target.signatures))
	for i, sig := range target.signatures {
		e, err := NewEnumerator(data, alignment, sig)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %w", sig.Name, err)
		}
		enumerators[i] = e
	}

	return func(yield func(process.ProcessMemoryAddress) bool) {
		for i, sig := range target.signatures {
			for off := range enumerators[i].All() {
				addr := s.start.Add(int64(off) + sig.Offset)

				if sig.Verify != nil && !verify(sig.Verify, addr) {
					continue
				}

				if target.OnFound != nil {
					addr = target.OnFound(sig.Name, addr)
				}

				if !yield(addr) {
					return
				}
			}
		}
	}, nil
}

// Scan returns the first match of target
func (s *Scanner) Scan(target *ScanTarget, alignment int) (process.ProcessMemoryAddress, bool, error) {
	seq, err := s.ScanAll(target, alignment)
	if err != nil {
		return process.NullAddress, false, err
	}

	for addr := range seq {
		return addr, true, nil
	}
	return process.NullAddress, false, nil
}

// verify treats a panicking predicate as a rejected match
func verify(fn VerifyFunc, addr process.ProcessMemoryAddress) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn(addr)
}

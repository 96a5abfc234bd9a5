package sigscan

import (
	"memkit/process"
)

// OnFoundFunc is called with the signature name and match address. Its
// return value replaces the reported address.
type OnFoundFunc func(name string, addr process.ProcessMemoryAddress) process.ProcessMemoryAddress

// ScanTarget groups alternative signatures for the same location. They are
// tried in insertion order.
type ScanTarget struct {
	DoScan  bool
	OnFound OnFoundFunc

	signatures []*Signature
}

// NewScanTarget returns an enabled target
func NewScanTarget(signatures ...*Signature) *ScanTarget {
	return &ScanTarget{
		DoScan:     true,
		signatures: signatures,
	}
}

func (t *ScanTarget) Add(signatures ...*Signature) *ScanTarget {
	t.signatures = append(t.signatures, signatures...)
	return t
}

func (t *ScanTarget) WithOnFound(fn OnFoundFunc) *ScanTarget {
	t.OnFound = fn
	return t
}

func (t *ScanTarget) Len() int {
	return len(t.signatures)
}

func (t *ScanTarget) Signatures() []*Signature {
	return t.signatures
}

// MaxLen returns the length of the longest signature
func (t *ScanTarget) MaxLen() int {
	n := 0
	for _, sig := range t.signatures {
		n = max(n, sig.Len())
	}
	return n
}

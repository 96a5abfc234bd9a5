package sigscan

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"memkit/process"
)

// ErrNoOperand is returned when an instruction does not reference memory
var ErrNoOperand = errors.New("instruction has no address operand")

const maxInstructionLen = 15

// InstructionTarget decodes the instruction at addr and returns the address
// it references: the target of a rip-relative memory operand or of a relative
// branch, or an absolute displacement in 32-bit code.
func InstructionTarget(proc process.Process, addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	code, err := readCode(proc, addr)
	if err != nil {
		return process.NullAddress, err
	}

	mode := 32
	if proc.Is64Bit() {
		mode = 64
	}

	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return process.NullAddress, fmt.Errorf("decode at %s: %w", addr.ToString(), err)
	}

	next := addr.Add(int64(inst.Len))
	for _, arg := range inst.Args {
		switch a := arg.(type) {
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				return next.Add(a.Disp), nil
			}
			if mode == 32 && a.Base == 0 && a.Index == 0 {
				return process.ProcessMemoryAddress(uint32(a.Disp)), nil
			}
		case x86asm.Rel:
			return next.Add(int64(a)), nil
		}
	}

	return process.NullAddress, fmt.Errorf("%w: %v", ErrNoOperand, inst)
}

// readCode reads up to one instruction, stopping at the end of the page
func readCode(proc process.Process, addr process.ProcessMemoryAddress) ([]byte, error) {
	code, err := proc.ReadMemory(addr, maxInstructionLen)
	if err == nil {
		return code, nil
	}

	pageEnd := (addr &^ 0xFFF) + 0x1000
	if remaining := process.ProcessMemorySize(pageEnd - addr); remaining < maxInstructionLen {
		return proc.ReadMemory(addr, remaining)
	}
	return nil, err
}

// FollowInstruction returns an OnFound callback that reports the address
// referenced by the matched instruction instead of the instruction itself.
// Matches that cannot be decoded are reported unchanged.
func FollowInstruction(proc process.Process) OnFoundFunc {
	return func(_ string, addr process.ProcessMemoryAddress) process.ProcessMemoryAddress {
		target, err := InstructionTarget(proc, addr)
		if err != nil {
			return addr
		}
		return target
	}
}

// VerifyTargetInModule accepts a match only when the matched instruction
// references an address inside a loaded module
func VerifyTargetInModule(proc process.Process) VerifyFunc {
	return func(addr process.ProcessMemoryAddress) bool {
		target, err := InstructionTarget(proc, addr)
		if err != nil {
			return false
		}
		_, ok := process.ModuleAt(proc, target)
		return ok
	}
}

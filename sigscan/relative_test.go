package sigscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
	"memkit/process_blob"
)

func codeImage(code []byte, at int) *process_blob.ProcessDump {
	image := make([]byte, 0x1000)
	copy(image[at:], code)
	return process_blob.NewProcessDump().AddModule("game", 0x400000, image)
}

func TestInstructionTargetRipRelative(t *testing.T) {
	// mov rax, [rip+0x10]
	dump := codeImage([]byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00}, 0x100)

	target, err := InstructionTarget(dump, 0x400100)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x400117), target)
}

func TestInstructionTargetCall(t *testing.T) {
	// call rel32 back to itself
	dump := codeImage([]byte{0xE8, 0xFB, 0xFF, 0xFF, 0xFF}, 0x200)

	target, err := InstructionTarget(dump, 0x400200)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x400200), target)
}

func TestInstructionTargetAtPageEnd(t *testing.T) {
	// jmp rel8 in the last two bytes of the image
	dump := codeImage([]byte{0xEB, 0x00}, 0xFFE)

	target, err := InstructionTarget(dump, 0x400FFE)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x401000), target)
}

func TestInstructionTargetNoOperand(t *testing.T) {
	dump := codeImage([]byte{0x90}, 0x10)

	_, err := InstructionTarget(dump, 0x400010)
	assert.ErrorIs(t, err, ErrNoOperand)
}

func TestFollowAndVerify(t *testing.T) {
	code := []byte{
		0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00, // mov rax, [rip+0x10]
		0x48, 0x8B, 0x05, 0x00, 0x00, 0x00, 0x10, // mov rax, [rip+0x10000000]
	}
	dump := codeImage(code, 0)

	target := NewScanTarget(MustParseSignature(0, "48 8B 05").WithVerify(VerifyTargetInModule(dump))).
		WithOnFound(FollowInstruction(dump))

	s := NewProcessScannerRange(dump, 0x400000, 0x1000)
	addr, ok, err := s.Scan(target, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, process.ProcessMemoryAddress(0x400017), addr)

	seq, err := s.ScanAll(target, 1)
	require.NoError(t, err)
	count := 0
	for range seq {
		count++
	}
	// the second load points outside the image
	assert.Equal(t, 1, count)
}

package sigscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
)

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature(3, "48 8b ?5", " ?? 9?")
	require.NoError(t, err)

	require.Equal(t, 5, sig.Len())
	assert.Equal(t, int64(3), sig.Offset)
	assert.Equal(t, []PatternByte{
		{Value: 0x48, Kind: ByteFull},
		{Value: 0x8B, Kind: ByteFull},
		{Value: 0x05, Kind: ByteLowNibble},
		{Kind: ByteAny},
		{Value: 0x90, Kind: ByteHighNibble},
	}, sig.Bytes)
	assert.Equal(t, "48 8B ?5 ?? 9?", sig.String())

	assert.Len(t, sig.Search(), 8)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x0F, 0x00, 0xF0, 0, 0, 0}, sig.Mask())
	assert.Equal(t, []byte{0x48, 0x8B, 0x05, 0x00, 0x90, 0, 0, 0}, sig.Search())
}

func TestParseSignatureErrors(t *testing.T) {
	for _, text := range []string{"AB C", "", "   ", "4G", "G?", "?Z"} {
		_, err := ParseSignature(0, text)
		assert.ErrorIs(t, err, ErrFormat, text)
	}

	assert.Panics(t, func() { MustParseSignature(0, "ABC") })
}

func TestPaddingInvariant(t *testing.T) {
	for n := 1; n <= 17; n++ {
		sig := NewSignature(0, make([]byte, n)...)
		assert.Equal(t, len(sig.Search()), len(sig.Mask()))
		assert.GreaterOrEqual(t, len(sig.Search()), n)
		assert.Zero(t, len(sig.Search())%wordSize)
		for _, m := range sig.Mask()[n:] {
			assert.Zero(t, m)
		}
	}
}

func TestNibbleWildcards(t *testing.T) {
	high := MustParseSignature(0, "5?")
	low := MustParseSignature(0, "?5")

	for n := 0; n < 16; n++ {
		assert.True(t, high.Bytes[0].Matches(byte(0x50|n)), "5? vs %02X", 0x50|n)
		assert.True(t, low.Bytes[0].Matches(byte(n<<4|0x05)), "?5 vs %02X", n<<4|0x05)

		if n != 5 {
			assert.False(t, high.Bytes[0].Matches(byte(n<<4)), "5? vs %02X", n<<4)
			assert.False(t, low.Bytes[0].Matches(byte(n)), "?5 vs %02X", n)
		}
	}
}

func TestFluentSetters(t *testing.T) {
	sig := NewSignature(0, 0x90).WithName("nop").WithVerify(func(process.ProcessMemoryAddress) bool { return true })
	assert.Equal(t, "nop", sig.Name)
	assert.NotNil(t, sig.Verify)
}

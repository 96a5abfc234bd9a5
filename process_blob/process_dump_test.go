package process_blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
)

func TestReadWrite(t *testing.T) {
	dump := NewProcessDump().
		AddRegion(0x10000, make([]byte, 0x100), "rw-p").
		AddRegion(0x20000, []byte{1, 2, 3, 4}, "r--p")

	require.NoError(t, process.Write[uint32](dump, 0x10010, 0xAABBCCDD))
	v, err := process.Read[uint32](dump, 0x10010)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAABBCCDD), v)

	assert.Error(t, dump.WriteMemory(0x20000, []byte{9}))

	_, err = dump.ReadMemory(0x20002, 4)
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)

	_, err = dump.ReadMemory(0x30000, 1)
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)

	assert.Equal(t, int64(3), dump.Reads())
}

func TestModulesAndPages(t *testing.T) {
	dump := NewProcessDump().
		AddModule("game.exe", 0x400000, make([]byte, 0x1000)).
		AddModule("engine.dll", 0x800000, make([]byte, 0x1000)).
		AddRegion(0x10000, make([]byte, 0x1000), "rw-p").
		AddRegion(0x12000, make([]byte, 0x1000), "---p")

	main, err := process.MainModule(dump)
	require.NoError(t, err)
	assert.Equal(t, "game.exe", main.Name)

	engine, err := process.FindModule(dump, "ENGINE.DLL")
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x800000), engine.Base)

	_, err = process.FindModule(dump, "missing.dll")
	assert.ErrorIs(t, err, process.ErrModuleNotFound)

	var private []process.ProcessMemoryAddress
	for page := range dump.MemoryPages(false) {
		private = append(private, page.Address)
	}
	assert.Equal(t, []process.ProcessMemoryAddress{0x10000}, private)

	all := 0
	for range dump.MemoryPages(true) {
		all++
	}
	assert.Equal(t, 4, all)
}

func TestOverlapPanics(t *testing.T) {
	dump := NewProcessDump().AddRegion(0x1000, make([]byte, 0x100), "rw-p")
	assert.Panics(t, func() {
		dump.AddRegion(0x10F0, make([]byte, 0x20), "rw-p")
	})
}

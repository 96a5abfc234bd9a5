package memory_map

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d4c8a00000-55d4c8a2c000 r--p 00000000 fd:01 1315847 /usr/bin/game server
55d4c8a2c000-55d4c8b10000 r-xp 0002c000 fd:01 1315847 /usr/bin/game server
55d4ca1f1000-55d4ca212000 rw-p 00000000 00:00 0 [heap]
7f3b1c000000-7f3b1c021000 rw-p 00000000 00:00 0
7f3b1c021000-7f3b20000000 ---p 00000000 00:00 0
7ffd1a9e3000-7ffd1a9e7000 r--p 00000000 00:00 0 [vvar]
garbage line
`

func TestParseMaps(t *testing.T) {
	items, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, items, 6)

	exe := items[0]
	assert.Equal(t, uint64(0x55d4c8a00000), exe.Address)
	assert.Equal(t, uint(0x2c000), exe.Size)
	assert.Equal(t, "/usr/bin/game server", exe.Path)
	assert.Equal(t, "game server", exe.Name())
	assert.True(t, exe.IsFileBacked())
	assert.False(t, exe.IsWritable())

	assert.Equal(t, uint64(0x2c000), items[1].Offset)
	assert.True(t, items[1].IsExecutable())

	heap := items[2]
	assert.True(t, heap.IsAnonymous())
	assert.True(t, heap.IsPrivate())
	assert.Equal(t, "[heap]", heap.Name())

	assert.True(t, items[4].IsGuarded())
	assert.False(t, items[4].IsReadable())
	assert.True(t, items[5].IsSpecial())
}

func TestGetMemoryRegionForAddress(t *testing.T) {
	items := []MemoryMapItem{
		{Address: 0x3000, Size: 0x1000},
		{Address: 0x1000, Size: 0x1000},
	}
	Sort(items)

	region := GetMemoryRegionForAddress(0x1fff, items)
	require.NotNil(t, region)
	assert.Equal(t, uint64(0x1000), region.Address)

	assert.Nil(t, GetMemoryRegionForAddress(0x2000, items))
	assert.True(t, IsValidAddress(0x3000, items))
	assert.False(t, IsValidAddress(0x4000, items))
}

package pointer

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
	"memkit/process_blob"
)

// gameImage has a global at game.exe+0x100 pointing to a heap object at
// 0x10000 with an int32 at +0x8 and a string pointer at +0x10
func gameImage(t *testing.T) *process_blob.ProcessDump {
	t.Helper()

	image := make([]byte, 0x1000)
	binary.LittleEndian.PutUint64(image[0x100:], 0x10000)

	heap := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(heap[0x8:], 7)
	binary.LittleEndian.PutUint64(heap[0x10:], 0x10800)
	copy(heap[0x800:], "player one\x00")
	binary.LittleEndian.PutUint32(heap[0x18:], 1337)

	return process_blob.NewProcessDump().
		AddModule("game.exe", 0x400000, image).
		AddModule("engine.dll", 0x800000, make([]byte, 0x1000)).
		AddRegion(0x10000, heap, "rw-p")
}

func TestFactoryMake(t *testing.T) {
	dump := gameImage(t)

	f, err := NewFactory(dump, WithUpdateInterval(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "game.exe", f.Module().Name)

	p := Make[int32](f, 0x100, 0x8)
	reads := dump.Reads()

	// primed by the factory, the interval suppresses another read
	assert.Equal(t, int32(7), p.Current())
	assert.Equal(t, reads, dump.Reads())
	assert.Equal(t, process.ProcessMemoryAddress(0x400100), p.Base())
}

func TestFactoryModules(t *testing.T) {
	dump := gameImage(t)

	f, err := NewFactoryForModuleName(dump, "engine.dll")
	require.NoError(t, err)

	p, err := MakeInModuleName[int32](f, "GAME.EXE", 0x100, 0x8)
	require.NoError(t, err)
	assert.Equal(t, int32(7), p.Current())

	_, err = MakeInModuleName[int32](f, "missing.dll", 0)
	assert.ErrorIs(t, err, process.ErrModuleNotFound)

	_, err = NewFactoryForModuleName(dump, "missing.dll")
	assert.ErrorIs(t, err, process.ErrModuleNotFound)

	at := MakeAt[int32](f, 0x10008)
	assert.Equal(t, int32(7), at.Current())
}

func TestFactoryStrings(t *testing.T) {
	dump := gameImage(t)

	f, err := NewFactory(dump)
	require.NoError(t, err)

	name := f.MakeString(0x100, 0x10, 0)
	assert.Equal(t, "player one", name.Current())

	object := Make[uint64](f, 0x100).SetName("object")
	child := MakeStringFrom(f, object, 0x10, 0)
	assert.Equal(t, "player one", child.Current())
	assert.Equal(t, "object", child.Name())

	score := MakeFrom[int32](f, object, 0x18)
	assert.Equal(t, int32(1337), score.Current())
}

func TestFactoryChildrenInheritOptions(t *testing.T) {
	dump := gameImage(t)

	f, err := NewFactory(dump, WithUpdateInterval(time.Hour), WithStringLength(3))
	require.NoError(t, err)

	object := Make[uint64](f, 0x100)
	score := MakeFrom[int32](f, object, 0x18)
	reads := dump.Reads()

	assert.Equal(t, int32(1337), score.Current())
	assert.Equal(t, reads, dump.Reads())

	// "player one" does not fit in three characters
	name := MakeStringFrom(f, object, 0x10, 0)
	assert.Equal(t, "", name.Current())
}

func TestFindPaths(t *testing.T) {
	dump := gameImage(t)

	paths, err := FindPaths(dump, 0x400100, WithSearchForValue(int32(1337)))
	require.NoError(t, err)
	require.Contains(t, paths, PathResult{Offsets: []int64{0x18}})

	for _, path := range paths {
		p := New[int32](dump, 0x400100, path.Offsets)
		assert.Equal(t, int32(1337), p.Current(), path.String())
	}

	paths, err = FindPaths(dump, 0x400100, WithSearchForString("player one", process.StringUTF8))
	require.NoError(t, err)
	assert.Contains(t, paths, PathResult{Offsets: []int64{0x10, 0}})

	_, err = FindPaths(dump, 0x400100)
	assert.Error(t, err)
}

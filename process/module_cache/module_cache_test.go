package module_cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
)

func TestGetOrLoadCachesPerKey(t *testing.T) {
	c := New(2)
	key := Key{StartTime: 10, PID: 42, ModuleCount: 3}

	loads := 0
	load := func() ([]process.Module, error) {
		loads++
		return []process.Module{{Name: "game"}}, nil
	}

	modules, err := c.GetOrLoad(key, load)
	require.NoError(t, err)
	require.Len(t, modules, 1)

	_, err = c.GetOrLoad(key, load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	// a restarted process with the same pid is a different entry
	_, err = c.GetOrLoad(Key{StartTime: 11, PID: 42, ModuleCount: 3}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestGetOrLoadErrorNotCached(t *testing.T) {
	c := New(DefaultCapacity)
	key := Key{PID: 1}

	_, err := c.GetOrLoad(key, func() ([]process.Module, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestEviction(t *testing.T) {
	c := New(2)
	c.Add(Key{PID: 1}, nil)
	c.Add(Key{PID: 2}, nil)
	c.Add(Key{PID: 3}, nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(Key{PID: 1})
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCallersGetCopies(t *testing.T) {
	c := New(DefaultCapacity)
	key := Key{PID: 7, ModuleCount: 2}
	load := func() ([]process.Module, error) {
		return []process.Module{{Name: "game"}, {Name: "engine"}}, nil
	}

	first, err := c.GetOrLoad(key, load)
	require.NoError(t, err)
	first[0].Name = "patched"

	second, err := c.GetOrLoad(key, load)
	require.NoError(t, err)
	assert.Equal(t, "game", second[0].Name)
	second[1].Base = 0x1000

	cached, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []process.Module{{Name: "game"}, {Name: "engine"}}, cached)
	cached[0].Name = "patched"

	again, _ := c.Get(key)
	assert.Equal(t, "game", again[0].Name)
}

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

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// chainImage lays out [[0x1000] + 0x10] + 0x20 = 0x3020
func chainImage(t *testing.T) *process_blob.ProcessDump {
	t.Helper()
	mem := make([]byte, 0x3000)
	binary.LittleEndian.PutUint64(mem[0x0000:], 0x2000)
	binary.LittleEndian.PutUint64(mem[0x1010:], 0x3000)
	binary.LittleEndian.PutUint64(mem[0x2020:], 0x1122334455667788)
	return process_blob.NewProcessDump().AddRegion(0x1000, mem, "rw-p")
}

func TestThrottledUpdate(t *testing.T) {
	dump := process_blob.NewProcessDump().AddRegion(0x10000, make([]byte, 0x100), "rw-p")
	require.NoError(t, process.Write[int32](dump, 0x10010, 42))

	clock := newClock()
	p := New[int32](dump, 0x10010, nil, WithUpdateInterval(time.Second), WithClock(clock.Now))

	reads := dump.Reads()
	assert.Equal(t, int32(42), p.Current())
	assert.Equal(t, reads+1, dump.Reads())

	require.NoError(t, process.Write[int32](dump, 0x10010, 43))
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, int32(42), p.Current())
	assert.Equal(t, reads+1, dump.Reads())

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, int32(43), p.Current())
	assert.Equal(t, reads+2, dump.Reads())
	assert.Equal(t, int32(42), p.Old())

	// ForceUpdate bypasses the interval
	assert.True(t, p.ForceUpdate(true))
	assert.Equal(t, reads+3, dump.Reads())
}

func TestUnthrottledUpdateReadsEveryTime(t *testing.T) {
	dump := process_blob.NewProcessDump().AddRegion(0x10000, make([]byte, 0x100), "rw-p")
	p := New[uint8](dump, 0x10000, nil)

	reads := dump.Reads()
	p.Current()
	p.Current()
	assert.Equal(t, reads+2, dump.Reads())
}

func TestDerefChain(t *testing.T) {
	dump := chainImage(t)
	p := New[uint64](dump, 0x1000, []int64{0x10, 0x20})

	addr, ok := p.Deref()
	require.True(t, ok)
	assert.Equal(t, process.ProcessMemoryAddress(0x3020), addr)
	assert.Equal(t, uint64(0x1122334455667788), p.Current())
}

func TestNullIntermediate(t *testing.T) {
	dump := chainImage(t)
	p := New[uint64](dump, 0x1000, []int64{0x10, 0x20})
	require.Equal(t, uint64(0x1122334455667788), p.Current())

	require.NoError(t, process.Write[uint64](dump, 0x2010, 0))
	assert.Equal(t, process.NullAddress, p.DerefAddress())

	// update on null stores the zero value
	assert.True(t, p.Update())
	assert.Equal(t, uint64(0), p.Current())

	strict := New[uint64](dump, 0x1000, []int64{0x10, 0x20}, WithUpdateOnNull(false))
	assert.False(t, strict.Update())
	assert.Equal(t, uint64(0), strict.Current())
}

func TestOnChangedFiresEveryUpdate(t *testing.T) {
	dump := chainImage(t)
	p := New[uint64](dump, 0x1000, []int64{0x10, 0x20})

	type change struct{ old, current uint64 }
	var changes []change
	p.OnChanged(func(old, current uint64) {
		changes = append(changes, change{old, current})
	})

	p.Update()
	p.Update()
	require.NoError(t, p.Write(7))
	p.Update()

	assert.Equal(t, []change{
		{0, 0x1122334455667788},
		{0x1122334455667788, 0x1122334455667788},
		{0x1122334455667788, 7},
	}, changes)
	assert.False(t, p.Changed())
}

func TestReset(t *testing.T) {
	dump := chainImage(t)
	clock := newClock()
	p := New[uint64](dump, 0x1000, []int64{0x10, 0x20}, WithUpdateInterval(time.Hour), WithClock(clock.Now))

	p.Current()
	p.Reset()

	reads := dump.Reads()
	// the cleared timestamp allows an immediate update
	assert.Equal(t, uint64(0x1122334455667788), p.Current())
	assert.Greater(t, dump.Reads(), reads)
	assert.Equal(t, uint64(0), p.Old())
}

func TestWriteNullChain(t *testing.T) {
	p := New[int32](process_blob.NewProcessDump(), 0, []int64{0x10})
	assert.ErrorIs(t, p.Write(1), process.ErrNullPointer)
}

func TestChild(t *testing.T) {
	dump := chainImage(t)
	parent := New[uint64](dump, 0x1000, []int64{0x10}, WithName("player"), WithDerefType(process.Deref64))
	child := NewChild[uint64](parent, []int64{0x20})

	assert.Equal(t, []int64{0x10, 0x20}, child.Offsets())
	assert.Equal(t, []int64{0x10}, parent.Offsets())
	assert.Equal(t, "player", child.Name())
	assert.Equal(t, process.Deref64, child.DerefType())
	assert.Equal(t, uint64(0x1122334455667788), child.Current())
	assert.Equal(t, "player 0x1000 [0x10, 0x20]", child.String())
}

func TestStringPointer(t *testing.T) {
	mem := make([]byte, 0x200)
	binary.LittleEndian.PutUint64(mem[0:], 0x10100)
	dump := process_blob.NewProcessDump().AddRegion(0x10000, mem, "rw-p")

	p := NewString(dump, 0x10000, []int64{0})
	require.NoError(t, p.Write("hello"))
	assert.Equal(t, "hello", p.Current())

	wide := NewString(dump, 0x10000, []int64{0x40}, WithStringType(process.StringUTF16Sized))
	require.NoError(t, wide.Write("wide"))
	n, err := process.Read[int32](dump, 0x1013C)
	require.NoError(t, err)
	assert.Equal(t, int32(4), n)
	assert.Equal(t, "wide", wide.Current())

	capped := NewString(dump, 0x10000, []int64{0}, WithStringLength(3))
	assert.Equal(t, "", capped.Current())
}

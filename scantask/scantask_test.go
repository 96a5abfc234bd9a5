package scantask

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memkit/process"
	"memkit/process_blob"
	"memkit/sigscan"
)

func heapImage() *process_blob.ProcessDump {
	first := make([]byte, 0x1000)
	copy(first[0x120:], []byte{0xDE, 0xAD, 0xBE, 0xEF})

	second := make([]byte, 0x1000)
	copy(second[0x80:], []byte{0xCA, 0xFE, 0xBA, 0xBE})

	return process_blob.NewProcessDump().
		AddRegion(0x100000, first, "rw-p").
		AddRegion(0x200000, second, "rw-p")
}

func TestScanMemoryTwoGroups(t *testing.T) {
	dump := heapImage()
	data := sigscan.NewScanData().
		Add(sigscan.AllPages, "dead", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "DE AD BE EF"))).
		Add(sigscan.AllPages, "cafe", sigscan.NewScanTarget(sigscan.MustParseSignature(2, "CA FE ?? BE")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := New(dump, WithPollInterval(time.Millisecond)).ScanMemory(ctx, data)
	require.NoError(t, err)

	assert.True(t, results.AllFound())
	assert.Equal(t, process.ProcessMemoryAddress(0x100120), results.Get(sigscan.AllPages, "dead"))
	assert.Equal(t, process.ProcessMemoryAddress(0x200082), results.Get(sigscan.AllPages, "cafe"))
}

func TestRunCompletes(t *testing.T) {
	dump := heapImage()
	data := sigscan.NewScanData().
		Add(sigscan.AllPages, "dead", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "DE AD BE EF")))

	task := New(dump)

	completed := make(chan *sigscan.ScanResults, 1)
	results := task.Run(data, func(r *sigscan.ScanResults) { completed <- r })

	require.NoError(t, task.Wait())
	assert.Same(t, results, <-completed)
	assert.True(t, task.IsCompleted())
}

func TestRunPollsUntilFound(t *testing.T) {
	dump := heapImage()
	data := sigscan.NewScanData().
		Add(sigscan.AllPages, "late", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "11 22 33 44")))

	task := New(dump, WithPollInterval(time.Millisecond))
	results := task.Run(data, nil)
	defer task.Cancel()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, results.Found(sigscan.AllPages, "late"))

	require.NoError(t, dump.WriteMemory(0x200400, []byte{0x11, 0x22, 0x33, 0x44}))

	require.Eventually(t, task.IsCompleted, 5*time.Second, time.Millisecond)
	assert.NoError(t, task.Wait())
	assert.Equal(t, process.ProcessMemoryAddress(0x200400), results.Get(sigscan.AllPages, "late"))
}

func TestCancelAbortsRun(t *testing.T) {
	dump := heapImage()
	data := sigscan.NewScanData().
		Add(sigscan.AllPages, "dead", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "DE AD BE EF"))).
		Add(sigscan.AllPages, "never", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "01 02 03 04 05")))

	task := New(dump, WithPollInterval(time.Millisecond))

	var called atomic.Bool
	results := task.Run(data, func(*sigscan.ScanResults) { called.Store(true) })

	require.Eventually(t, func() bool { return results.Found(sigscan.AllPages, "dead") }, 5*time.Second, time.Millisecond)
	task.Cancel()

	assert.ErrorIs(t, task.Wait(), context.Canceled)
	assert.False(t, results.AllFound())
	assert.False(t, results.Found(sigscan.AllPages, "never"))
	assert.False(t, called.Load())
}

func TestNewRunReplacesPrevious(t *testing.T) {
	dump := heapImage()
	never := sigscan.NewScanData().
		Add(sigscan.AllPages, "never", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "01 02 03 04 05")))
	found := sigscan.NewScanData().
		Add(sigscan.AllPages, "dead", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "DE AD BE EF")))

	task := New(dump, WithPollInterval(time.Millisecond))
	first := task.Run(never, nil)
	second := task.Run(found, nil)

	require.NoError(t, task.Wait())
	assert.False(t, first.AllFound())
	assert.True(t, second.AllFound())
}

func TestScanMemoryCancelled(t *testing.T) {
	data := sigscan.NewScanData().
		Add(sigscan.AllPages, "never", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "01 02 03 04 05")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(heapImage()).ScanMemory(ctx, data)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModuleTargets(t *testing.T) {
	code := make([]byte, 0x1000)
	// mov rax, [rip+0x100]
	copy(code[0x40:], []byte{0x48, 0x8B, 0x05, 0x00, 0x01, 0x00, 0x00})
	dump := process_blob.NewProcessDump().AddModule("game.exe", 0x400000, code)

	disabled := sigscan.NewScanTarget(sigscan.MustParseSignature(0, "FF FF FF FF"))
	disabled.DoScan = false

	data := sigscan.NewScanData().
		Add("GAME.EXE", "global", sigscan.NewScanTarget(sigscan.MustParseSignature(0, "48 8B 05")).
			WithOnFound(sigscan.FollowInstruction(dump))).
		Add("GAME.EXE", "disabled", disabled).
		Add("missing.dll", "other", disabled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := New(dump).ScanMemory(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x400147), results.Get("GAME.EXE", "global"))
	assert.Equal(t, process.NullAddress, results.Get("GAME.EXE", "disabled"))
}

func TestFindAll(t *testing.T) {
	dump := heapImage()
	require.NoError(t, dump.WriteMemory(0x100800, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.NoError(t, dump.WriteMemory(0x200000, []byte{0xDE, 0xAD, 0xBE, 0xEF}))

	target := sigscan.NewScanTarget(sigscan.MustParseSignature(0, "DE AD BE EF"))
	found, err := FindAll(context.Background(), dump, target, WithMaxParallel(2))
	require.NoError(t, err)

	assert.Equal(t, []process.ProcessMemoryAddress{0x100120, 0x100800, 0x200000}, found)
}

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"memkit/pointer"
	"memkit/process"
	"memkit/process_blob"
	"memkit/scantask"
	"memkit/sigscan"
)

// image builds a tiny process: game.exe holds an instruction that loads a
// global, the global points at a player object on the heap.
func image() *process_blob.ProcessDump {
	code := make([]byte, 0x1000)
	// mov rax, [rip+0x200] ; test rax, rax
	copy(code[0x80:], []byte{0x48, 0x8B, 0x05, 0x00, 0x02, 0x00, 0x00, 0x48, 0x85, 0xC0})
	binary.LittleEndian.PutUint64(code[0x287:], 0x20000)

	heap := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(heap[0x10:], 100)
	binary.LittleEndian.PutUint64(heap[0x18:], 0x20100)
	copy(heap[0x100:], "Player One\x00")

	return process_blob.NewProcessDump().
		AddModule("game.exe", 0x400000, code).
		AddRegion(0x20000, heap, "rw-p")
}

func main() {
	proc := image()

	// 1. Describe what to look for
	data := sigscan.NewScanData().
		Add("game.exe", "player", sigscan.NewScanTarget(
			sigscan.MustParseSignature(0, "48 8B 05 ?? ?? ?? ?? 48 85 C0").WithName("player-load"),
		).WithOnFound(sigscan.FollowInstruction(proc)))

	// 2. Resolve it
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := scantask.New(proc).ScanMemory(ctx, data)
	if err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		return
	}
	global := results.Get("game.exe", "player")
	fmt.Printf("Player global at %s\n", global.ToString())

	// 3. Track values behind it
	factory, err := pointer.NewFactory(proc)
	if err != nil {
		fmt.Printf("Factory failed: %v\n", err)
		return
	}

	player := pointer.MakeAt[uint64](factory, global).SetName("player")
	health := pointer.MakeFrom[int32](factory, player, 0x10).SetName("health")
	name := pointer.MakeStringFrom(factory, player, 0x18, 0x0).SetName("name")

	health.OnChanged(func(old, current int32) {
		if old != current {
			fmt.Printf("%s: %d -> %d\n", health.Name(), old, current)
		}
	})

	fmt.Printf("%s = %q\n", name, name.Current())
	fmt.Printf("%s = %d\n", health, health.Current())

	// 4. Write through the chain and observe the change
	if err := health.Write(75); err != nil {
		fmt.Printf("Write failed: %v\n", err)
		return
	}
	health.ForceUpdate(true)

	addr, _ := health.Deref()
	raw, _ := process.Read[int32](proc, addr)
	fmt.Printf("memory at %s now holds %d\n", addr.ToString(), raw)
}

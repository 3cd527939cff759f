package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
)

// fakeDeviceMemory lets SubAllocator tests run without a VkDevice:
// allocateRaw hands back monotonically increasing fake handles, and
// freeRaw just records what was freed.
type fakeDeviceMemory struct {
	next  uint64
	freed []vk.DeviceMemory
	fail  bool
}

func (f *fakeDeviceMemory) allocate(size uint64, memoryTypeIndex uint32) (vk.DeviceMemory, []byte, error) {
	if f.fail {
		return 0, nil, errors.New("out of memory")
	}
	f.next++
	return vk.DeviceMemory(f.next), make([]byte, size), nil
}

func (f *fakeDeviceMemory) free(handle vk.DeviceMemory) {
	f.freed = append(f.freed, handle)
}

func newTestAllocator() (*SubAllocator, *fakeDeviceMemory) {
	fake := &fakeDeviceMemory{}
	return NewSubAllocator(0, true, 0, fake.allocate, fake.free), fake
}

func TestNewSubAllocatorRoundsConfiguredInitialBlockSize(t *testing.T) {
	fake := &fakeDeviceMemory{}
	// 100 MB configured, rounded up to the next 64 MB multiple (128 MB).
	a := NewSubAllocator(0, true, 100*1024*1024, fake.allocate, fake.free)
	if a.nextBlockSize != 128*1024*1024 {
		t.Fatalf("nextBlockSize = %d, want 128 MiB", a.nextBlockSize)
	}

	r, err := a.Allocate(1, 1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if r.Block.Size != 128*1024*1024 {
		t.Fatalf("first block size = %d, want 128 MiB", r.Block.Size)
	}
}

func TestNewSubAllocatorIgnoresUndersizedInitialBlockSize(t *testing.T) {
	fake := &fakeDeviceMemory{}
	a := NewSubAllocator(0, true, 1024, fake.allocate, fake.free)
	if a.nextBlockSize != minBlockGranularity {
		t.Fatalf("nextBlockSize = %d, want the 64 MiB floor when the configured size is below it", a.nextBlockSize)
	}
}

func TestAllocateGrowsBlockOnFirstUse(t *testing.T) {
	a, _ := newTestAllocator()

	r, err := a.Allocate(1024, 256, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if r.Offset != 0 {
		t.Fatalf("first allocation offset = %d, want 0", r.Offset)
	}
	if r.Size != 1024 {
		t.Fatalf("region size = %d, want 1024", r.Size)
	}
	if !a.isSortedNonIncreasing() {
		t.Fatalf("sortedFree violates non-increasing order after first allocate")
	}
}

func TestAllocateRespectsAlignment(t *testing.T) {
	a, _ := newTestAllocator()

	first, err := a.Allocate(1, 1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.Free(first)

	r, err := a.Allocate(64, 256, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if r.Offset%256 != 0 {
		t.Fatalf("offset %d is not 256-aligned", r.Offset)
	}
}

func TestFreeCoalescesAdjacentRegions(t *testing.T) {
	a, _ := newTestAllocator()

	r1, _ := a.Allocate(1024, 1, false)
	r2, _ := a.Allocate(1024, 1, false)
	r3, _ := a.Allocate(1024, 1, false)

	a.Free(r1)
	a.Free(r3)
	if a.hasAdjacentFreeRegions() {
		t.Fatalf("freeing the two outer regions should not yet produce touching free regions")
	}

	a.Free(r2)
	if a.hasAdjacentFreeRegions() {
		t.Fatalf("after freeing all three regions, coalescing should have merged them into one contiguous free region")
	}
	if !a.isSortedNonIncreasing() {
		t.Fatalf("sortedFree violates non-increasing order after coalescing")
	}
}

func TestAllocateReusesFreedRegionBeforeGrowing(t *testing.T) {
	a, fake := newTestAllocator()

	r1, _ := a.Allocate(1024, 1, false)
	a.Free(r1)

	if _, err := a.Allocate(512, 1, false); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if fake.next != 1 {
		t.Fatalf("expected the freed region to be reused without allocating a second block, got %d blocks", fake.next)
	}
}

func TestAllocateDedicatedBypassesBlockReuse(t *testing.T) {
	a, fake := newTestAllocator()

	r, err := a.Allocate(1<<20, 1, true)
	if err != nil {
		t.Fatalf("Allocate(dedicated): %v", err)
	}
	if !r.Block.Dedicated {
		t.Fatalf("expected a dedicated allocation to produce a dedicated block")
	}
	a.Free(r)
	if len(fake.freed) != 1 || fake.freed[0] != r.Block.Handle {
		t.Fatalf("expected dedicated Free to call freeRaw directly, got %v", fake.freed)
	}
}

func TestAllocateSurfacesOutOfMemoryError(t *testing.T) {
	fake := &fakeDeviceMemory{fail: true}
	a := NewSubAllocator(0, true, 0, fake.allocate, fake.free)

	if _, err := a.Allocate(1024, 1, false); err == nil {
		t.Fatalf("expected an error when the underlying vkAllocateMemory fails")
	}
}

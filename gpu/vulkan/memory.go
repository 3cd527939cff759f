package vulkan

import (
	"fmt"
	"sort"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/vanta-gfx/vanta/core"
)

const (
	minBlockGranularity uint64 = 64 * 1024 * 1024
	maxBlockSize        uint64 = 256 * 1024 * 1024
)

// freeRegion is a contiguous unused byte range inside one MemoryBlock.
// It is referenced both from its owning block's offset-ordered list (for
// neighbor coalescing) and from the allocator's size-ordered index, so
// it lives on the heap behind a pointer rather than being copied.
type freeRegion struct {
	block  *MemoryBlock
	offset uint64
	size   uint64
}

// MemoryBlock is a single vkAllocateMemory allocation, carved up by its
// owning SubAllocator (unless dedicated). Host-visible blocks are mapped
// once at creation and keep that pointer for the block's lifetime, per
// spec §4.1.
type MemoryBlock struct {
	Handle          vk.DeviceMemory
	MemoryTypeIndex uint32
	Size            uint64
	Dedicated       bool
	Mapped          []byte // nil when not host-visible

	// free is sorted by offset; used only to find coalescing neighbors.
	// Kept small in practice, so linear scan/insert is acceptable (spec
	// §4.1's own justification for its coarse-grained allocator lock).
	free []*freeRegion
}

// Region is a handed-out allocation: a (block, offset, size) triple the
// caller binds a Vulkan resource to and later returns via Free.
type Region struct {
	Block  *MemoryBlock
	Offset uint64
	Size   uint64
}

// SubAllocator owns every non-dedicated MemoryBlock for one Vulkan
// memory type index, plus the aggregated free-region index sorted
// non-increasing by size (spec §4.1, §8 property 2).
type SubAllocator struct {
	mu              sync.Mutex
	memoryTypeIndex uint32
	hostVisible     bool
	blocks          []*MemoryBlock
	sortedFree      []*freeRegion
	nextBlockSize   uint64

	allocateRaw func(size uint64, memoryTypeIndex uint32) (vk.DeviceMemory, []byte, error)
	freeRaw     func(handle vk.DeviceMemory)
}

// NewSubAllocator constructs an allocator for one memory type. allocRaw
// and freeRaw are the only points where this file touches the Vulkan
// API; device.go supplies them bound to a live VkDevice so the
// allocation bookkeeping above stays table-driven and unit-testable
// without a GPU. initialBlockSize seeds the first block's size (device
// config's SuballocatorBlockMB, in bytes); it is rounded up to
// minBlockGranularity regardless of the caller's value, per spec's
// fixed 64 MB growth floor. A zero initialBlockSize uses
// minBlockGranularity outright.
func NewSubAllocator(memoryTypeIndex uint32, hostVisible bool, initialBlockSize uint64,
	allocRaw func(size uint64, memoryTypeIndex uint32) (vk.DeviceMemory, []byte, error),
	freeRaw func(handle vk.DeviceMemory)) *SubAllocator {
	start := roundUp(minBlockGranularity, minBlockGranularity)
	if initialBlockSize > minBlockGranularity {
		start = roundUp(initialBlockSize, minBlockGranularity)
	}
	if start > maxBlockSize {
		start = maxBlockSize
	}
	return &SubAllocator{
		memoryTypeIndex: memoryTypeIndex,
		hostVisible:     hostVisible,
		nextBlockSize:   start,
		allocateRaw:     allocRaw,
		freeRaw:         freeRaw,
	}
}

func roundUp(size, granularity uint64) uint64 {
	if size%granularity == 0 {
		return size
	}
	return (size/granularity + 1) * granularity
}

func alignUp(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	return roundUp(offset, alignment)
}

// Allocate hands out a region at least requiredSize bytes, aligned to
// alignment, from this memory type. wantDedicated bypasses block reuse
// and allocates exactly requiredSize into its own block.
func (a *SubAllocator) Allocate(requiredSize, alignment uint64, wantDedicated bool) (Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if wantDedicated {
		return a.allocateDedicated(requiredSize)
	}

	// Largest-first search: the sorted index means the first region that
	// fits after alignment padding is also the best fit among the
	// largest-available, which keeps fragmentation low for the common
	// case of same-sized resources.
	for i, fr := range a.sortedFree {
		alignedOffset := alignUp(fr.offset, alignment)
		padding := alignedOffset - fr.offset
		if padding+requiredSize > fr.size {
			continue
		}
		return a.carve(fr, i, alignedOffset, requiredSize), nil
	}

	block, err := a.growAndAllocateBlock(requiredSize)
	if err != nil {
		return Region{}, err
	}
	fr := block.free[0]
	alignedOffset := alignUp(fr.offset, alignment)
	return a.carve(fr, a.indexOf(fr), alignedOffset, requiredSize), nil
}

// carve splits fr into up to three pieces: leading padding (re-inserted
// as a smaller free region), the handed-out [alignedOffset,
// alignedOffset+requiredSize) range, and trailing remainder (also
// re-inserted). fr is removed from both the block's offset list and the
// sorted index before any re-insertion.
func (a *SubAllocator) carve(fr *freeRegion, sortedIdx int, alignedOffset, requiredSize uint64) Region {
	block := fr.block
	origOffset, origSize := fr.offset, fr.size

	a.removeFromBlock(block, fr)
	a.removeFromSorted(sortedIdx)

	if padding := alignedOffset - origOffset; padding > 0 {
		a.insertFree(&freeRegion{block: block, offset: origOffset, size: padding})
	}
	tailOffset := alignedOffset + requiredSize
	if tailSize := (origOffset + origSize) - tailOffset; tailSize > 0 {
		a.insertFree(&freeRegion{block: block, offset: tailOffset, size: tailSize})
	}

	return Region{Block: block, Offset: alignedOffset, Size: requiredSize}
}

func (a *SubAllocator) indexOf(fr *freeRegion) int {
	for i, c := range a.sortedFree {
		if c == fr {
			return i
		}
	}
	return -1
}

func (a *SubAllocator) growAndAllocateBlock(requiredSize uint64) (*MemoryBlock, error) {
	size := a.nextBlockSize
	if rounded := roundUp(requiredSize, minBlockGranularity); rounded > size {
		size = rounded
	}
	handle, mapped, err := a.allocateRaw(size, a.memoryTypeIndex)
	if err != nil {
		core.LogWarn("suballocator: vkAllocateMemory failed for %d bytes on type %d: %s", size, a.memoryTypeIndex, err)
		return nil, fmt.Errorf("%w: %v", core.ErrOutOfDeviceMemory, err)
	}

	if next := a.nextBlockSize * 2; next <= maxBlockSize {
		a.nextBlockSize = next
	} else {
		a.nextBlockSize = maxBlockSize
	}

	block := &MemoryBlock{
		Handle:          handle,
		MemoryTypeIndex: a.memoryTypeIndex,
		Size:            size,
		Mapped:          mapped,
	}
	whole := &freeRegion{block: block, offset: 0, size: size}
	block.free = append(block.free, whole)
	a.blocks = append(a.blocks, block)
	a.insertFree(whole)
	return block, nil
}

func (a *SubAllocator) allocateDedicated(requiredSize uint64) (Region, error) {
	handle, mapped, err := a.allocateRaw(requiredSize, a.memoryTypeIndex)
	if err != nil {
		core.LogWarn("suballocator: dedicated vkAllocateMemory failed for %d bytes: %s", requiredSize, err)
		return Region{}, fmt.Errorf("%w: %v", core.ErrOutOfDeviceMemory, err)
	}
	block := &MemoryBlock{
		Handle:          handle,
		MemoryTypeIndex: a.memoryTypeIndex,
		Size:            requiredSize,
		Mapped:          mapped,
		Dedicated:       true,
	}
	return Region{Block: block, Offset: 0, Size: requiredSize}, nil
}

// Free returns a region to its block's free list, coalescing with
// offset-adjacent neighbors before reinserting into the sorted index.
// Double-free is undefined behavior, per spec §4.1.
func (a *SubAllocator) Free(r Region) {
	if r.Block.Dedicated {
		a.freeRaw(r.Block.Handle)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.release(r.Block, r.Offset, r.Size)
}

// release implements the recursive coalesce-then-insert rule from
// spec §4.1: check both neighbors first, and if either is contiguous
// remove it and recurse on the merged range before ever inserting.
func (a *SubAllocator) release(block *MemoryBlock, offset, size uint64) {
	for _, fr := range block.free {
		if fr.offset+fr.size == offset {
			a.removeFromBlock(block, fr)
			a.removeFromSorted(a.indexOf(fr))
			a.release(block, fr.offset, fr.size+size)
			return
		}
		if offset+size == fr.offset {
			a.removeFromBlock(block, fr)
			a.removeFromSorted(a.indexOf(fr))
			a.release(block, offset, size+fr.size)
			return
		}
	}
	a.insertFree(&freeRegion{block: block, offset: offset, size: size})
}

func (a *SubAllocator) removeFromBlock(block *MemoryBlock, fr *freeRegion) {
	for i, c := range block.free {
		if c == fr {
			block.free = append(block.free[:i], block.free[i+1:]...)
			return
		}
	}
}

func (a *SubAllocator) removeFromSorted(idx int) {
	if idx < 0 {
		return
	}
	a.sortedFree = append(a.sortedFree[:idx], a.sortedFree[idx+1:]...)
}

// insertFree adds fr to its block's offset list and to the allocator's
// size-sorted index via insertion sort, keeping sortedFree non-increasing
// by size at all times (spec §8 property 2).
func (a *SubAllocator) insertFree(fr *freeRegion) {
	fr.block.free = append(fr.block.free, fr)
	sort.Slice(fr.block.free, func(i, j int) bool { return fr.block.free[i].offset < fr.block.free[j].offset })

	idx := sort.Search(len(a.sortedFree), func(i int) bool { return a.sortedFree[i].size <= fr.size })
	a.sortedFree = append(a.sortedFree, nil)
	copy(a.sortedFree[idx+1:], a.sortedFree[idx:])
	a.sortedFree[idx] = fr
}

// hasAdjacentFreeRegions reports whether the allocator currently holds
// two free regions in the same block whose ranges touch. Used only by
// tests asserting the coalescing invariant (spec §8 property 1).
func (a *SubAllocator) hasAdjacentFreeRegions() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, block := range a.blocks {
		for i := 0; i+1 < len(block.free); i++ {
			if block.free[i].offset+block.free[i].size == block.free[i+1].offset {
				return true
			}
		}
	}
	return false
}

// isSortedNonIncreasing reports whether sortedFree currently satisfies
// spec §8 property 2.
func (a *SubAllocator) isSortedNonIncreasing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(a.sortedFree); i++ {
		if a.sortedFree[i].size < a.sortedFree[i+1].size {
			return false
		}
	}
	return true
}

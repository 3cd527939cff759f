package vulkan

import (
	"testing"

	"github.com/vanta-gfx/vanta/internal/container"
)

// newTestUniformBuffer builds a UniformBuffer whose mapped arena is a
// plain Go slice, bypassing vkMapMemory entirely so push's offset
// bookkeeping can be exercised without a device.
func newTestUniformBuffer(pool *UniformBufferPool) *UniformBuffer {
	return &UniformBuffer{
		mapped: make([]byte, uniformBufferSize),
		owner:  pool,
	}
}

func newTestUniformPool(bufs ...*UniformBuffer) *UniformBufferPool {
	p := &UniformBufferPool{
		inactive: container.NewStack[*UniformBuffer](len(bufs)),
	}
	for _, ub := range bufs {
		p.inactive.Push(ub)
	}
	return p
}

func TestPushAdvancesOffsetByBlockSize(t *testing.T) {
	ub := newTestUniformBuffer(nil)
	pool := newTestUniformPool(ub)
	cmd := &CommandBuffer{}

	var cur *UniformBuffer
	data := []byte{1, 2, 3, 4}

	off1 := push(nil, cmd, &cur, pool, data, 256)
	if off1 != 0 {
		t.Fatalf("first push offset = %d, want 0", off1)
	}
	off2 := push(nil, cmd, &cur, pool, data, 256)
	if off2 != 256 {
		t.Fatalf("second push offset = %d, want 256 (block-aligned, not len(data))", off2)
	}
	if cur.offset != 512 {
		t.Fatalf("cursor offset = %d, want 512", cur.offset)
	}
	if got := cur.mapped[256:260]; string(got) != string(data) {
		t.Fatalf("second push did not land its bytes at offset 256: got %v", got)
	}
}

func TestPushSwapsBufferWhenBlockWouldOverflow(t *testing.T) {
	first := newTestUniformBuffer(nil)
	second := newTestUniformBuffer(nil)
	pool := newTestUniformPool(second, first) // first popped before second
	cmd := &CommandBuffer{}

	var cur *UniformBuffer
	blockSize := uint64(uniformBufferSize - 64)
	data := make([]byte, 16)

	push(nil, cmd, &cur, pool, data, blockSize)
	if cur != first {
		t.Fatalf("expected first push to acquire the first popped buffer")
	}

	// A second push of the same near-full block size cannot fit in what's
	// left of `first`, so push must finalize it onto the command buffer's
	// pending list and acquire a fresh one.
	push(nil, cmd, &cur, pool, data, blockSize)
	if cur != second {
		t.Fatalf("expected second push to swap onto the next pooled buffer")
	}
	if len(cmd.boundUniformBuffers) != 1 || cmd.boundUniformBuffers[0] != first {
		t.Fatalf("expected the exhausted buffer to be finalized onto boundUniformBuffers, got %v", cmd.boundUniformBuffers)
	}
	if cur.offset != blockSize {
		t.Fatalf("fresh buffer offset = %d, want %d", cur.offset, blockSize)
	}
}

func TestPushZeroBlockSizeIsNoop(t *testing.T) {
	ub := newTestUniformBuffer(nil)
	pool := newTestUniformPool(ub)
	cmd := &CommandBuffer{}

	var cur *UniformBuffer
	off := push(nil, cmd, &cur, pool, []byte{9}, 0)
	if off != 0 {
		t.Fatalf("zero block size push offset = %d, want 0", off)
	}
	if cur != nil {
		t.Fatalf("zero block size push should never acquire a buffer")
	}
}

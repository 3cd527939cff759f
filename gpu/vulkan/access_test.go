package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/gpu"
)

// TestAccessTableCoversEveryKind guards against the table silently
// falling out of sync with gpu.AccessKind's alphabet: a missing entry
// zero-values to AccessNone's row, which would mask a barrier bug
// rather than fail loudly.
func TestAccessTableCoversEveryKind(t *testing.T) {
	kinds := []gpu.AccessKind{
		gpu.AccessNone, gpu.AccessIndexBuffer, gpu.AccessVertexBuffer, gpu.AccessIndirectBuffer,
		gpu.AccessVertexShaderReadUniformBuffer, gpu.AccessVertexShaderReadSampledImage, gpu.AccessVertexShaderReadOther,
		gpu.AccessFragmentShaderReadUniformBuffer, gpu.AccessFragmentShaderReadSampledImage, gpu.AccessFragmentShaderReadOther,
		gpu.AccessComputeShaderReadUniformBuffer, gpu.AccessComputeShaderReadSampledImage, gpu.AccessComputeShaderReadOther,
		gpu.AccessComputeShaderBufferReadWrite, gpu.AccessComputeShaderStorageImageReadWrite, gpu.AccessAnyShaderReadSampledImage,
		gpu.AccessColorAttachmentRead, gpu.AccessColorAttachmentWrite, gpu.AccessColorAttachmentReadWrite,
		gpu.AccessDepthStencilAttachmentRead, gpu.AccessDepthStencilAttachmentWrite,
		gpu.AccessDepthStencilAttachmentReadWrite, gpu.AccessDepthStencilAttachmentReadOnly,
		gpu.AccessTransferRead, gpu.AccessTransferWrite,
		gpu.AccessResolveRead, gpu.AccessResolveWrite, gpu.AccessPresent, gpu.AccessGeneral,
		gpu.AccessHostRead, gpu.AccessHostWrite,
	}
	for _, k := range kinds {
		if int(k) >= len(accessTable) {
			t.Fatalf("accessTable has no row for %s (index %d)", k, k)
		}
	}
}

func TestIsReadOnlyMatchesAttachmentAndTransferKinds(t *testing.T) {
	readOnly := []gpu.AccessKind{
		gpu.AccessIndexBuffer, gpu.AccessVertexBuffer, gpu.AccessIndirectBuffer,
		gpu.AccessVertexShaderReadUniformBuffer, gpu.AccessAnyShaderReadSampledImage,
	}
	for _, k := range readOnly {
		if !k.IsReadOnly() {
			t.Errorf("%s should be read-only", k)
		}
	}

	readWrite := []gpu.AccessKind{
		gpu.AccessColorAttachmentWrite, gpu.AccessColorAttachmentReadWrite,
		gpu.AccessTransferWrite, gpu.AccessGeneral, gpu.AccessComputeShaderBufferReadWrite,
	}
	for _, k := range readWrite {
		if k.IsReadOnly() {
			t.Errorf("%s should not be read-only", k)
		}
	}
}

func TestClampStageSubstitutesPipelineSentinels(t *testing.T) {
	if got := clampStage(0, true); got != vk.PipelineStageTopOfPipeBit {
		t.Errorf("clampStage(0, source) = %v, want TOP_OF_PIPE", got)
	}
	if got := clampStage(0, false); got != vk.PipelineStageBottomOfPipeBit {
		t.Errorf("clampStage(0, dest) = %v, want BOTTOM_OF_PIPE", got)
	}
	if got := clampStage(vk.PipelineStageVertexShaderBit, true); got != vk.PipelineStageVertexShaderBit {
		t.Errorf("clampStage should pass a non-zero stage through unchanged, got %v", got)
	}
}

func TestLookupAccessFallsBackToNoneForOutOfRangeKind(t *testing.T) {
	huge := gpu.AccessKind(1 << 20)
	if got := lookupAccess(huge); got != accessTable[gpu.AccessNone] {
		t.Errorf("lookupAccess(out-of-range) = %+v, want the AccessNone row", got)
	}
}

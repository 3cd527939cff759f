package gpu

// AccessKind is the fixed alphabet of ways a buffer or texture may be
// used at a given point in the command stream. Every resource carries
// its current AccessKind; requesting a transition to a new kind is what
// drives a backend's pipeline-stage/access-mask/image-layout barrier.
//
// The alphabet intentionally keeps semantically redundant entries
// distinct (COMPUTE_SHADER_READ_OTHER, ANY_SHADER_READ_SAMPLED_IMAGE,
// and GENERAL all describe overlapping states at the Vulkan level) so
// that tests asserting on a specific kind keep working if a backend
// later narrows one of the aliases.
type AccessKind uint32

const (
	AccessNone AccessKind = iota

	// Vertex-input and shader-read kinds (buffers and images).
	AccessIndexBuffer
	AccessVertexBuffer
	AccessIndirectBuffer
	AccessVertexShaderReadUniformBuffer
	AccessVertexShaderReadSampledImage
	AccessVertexShaderReadOther
	AccessFragmentShaderReadUniformBuffer
	AccessFragmentShaderReadSampledImage
	AccessFragmentShaderReadOther
	AccessComputeShaderReadUniformBuffer
	AccessComputeShaderReadSampledImage
	AccessComputeShaderReadOther
	AccessAnyShaderReadSampledImage

	// Compute read-write kinds.
	AccessComputeShaderBufferReadWrite
	AccessComputeShaderStorageImageReadWrite

	// Attachment kinds (images only).
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessDepthStencilAttachmentReadWrite
	AccessDepthStencilAttachmentReadOnly

	// Transfer kinds.
	AccessTransferRead
	AccessTransferWrite

	// Resolve / present kinds (images only).
	AccessColorAttachmentReadWrite
	AccessResolveRead
	AccessResolveWrite
	AccessPresent

	// Catch-all general-layout kind used by compute storage images that
	// are both sampled and written across passes within one dispatch.
	AccessGeneral

	// Host access, used only by the transfer-buffer pool's persistently
	// mapped staging memory.
	AccessHostRead
	AccessHostWrite

	accessKindCount
)

// EndOfRead ends the run of read-only kinds: every kind below it other
// than AccessNone is read-only, and a transition away from one never
// needs a source access mask since nothing was written. Every kind from
// EndOfRead on counts as not read-only, including the attachment,
// transfer, resolve, present and host read kinds declared after it, so a
// transition away from one of those also carries its access mask as the
// source mask.
const EndOfRead = AccessAnyShaderReadSampledImage + 1

// IsReadOnly reports whether k lies below EndOfRead (AccessNone excluded).
func (k AccessKind) IsReadOnly() bool {
	return k > AccessNone && k < EndOfRead
}

func (k AccessKind) String() string {
	if int(k) < len(accessKindNames) {
		return accessKindNames[k]
	}
	return "UNKNOWN_ACCESS_KIND"
}

var accessKindNames = [...]string{
	AccessNone:                                "NONE",
	AccessIndexBuffer:                         "INDEX_BUFFER",
	AccessVertexBuffer:                        "VERTEX_BUFFER",
	AccessIndirectBuffer:                      "INDIRECT_BUFFER",
	AccessVertexShaderReadUniformBuffer:       "VERTEX_SHADER_READ_UNIFORM_BUFFER",
	AccessVertexShaderReadSampledImage:        "VERTEX_SHADER_READ_SAMPLED_IMAGE",
	AccessVertexShaderReadOther:               "VERTEX_SHADER_READ_OTHER",
	AccessFragmentShaderReadUniformBuffer:     "FRAGMENT_SHADER_READ_UNIFORM_BUFFER",
	AccessFragmentShaderReadSampledImage:      "FRAGMENT_SHADER_READ_SAMPLED_IMAGE",
	AccessFragmentShaderReadOther:             "FRAGMENT_SHADER_READ_OTHER",
	AccessComputeShaderReadUniformBuffer:      "COMPUTE_SHADER_READ_UNIFORM_BUFFER",
	AccessComputeShaderReadSampledImage:       "COMPUTE_SHADER_READ_SAMPLED_IMAGE",
	AccessComputeShaderReadOther:              "COMPUTE_SHADER_READ_OTHER",
	AccessComputeShaderBufferReadWrite:        "COMPUTE_SHADER_BUFFER_READ_WRITE",
	AccessComputeShaderStorageImageReadWrite:  "COMPUTE_SHADER_STORAGE_IMAGE_READ_WRITE",
	AccessAnyShaderReadSampledImage:           "ANY_SHADER_READ_SAMPLED_IMAGE",
	AccessColorAttachmentRead:                 "COLOR_ATTACHMENT_READ",
	AccessColorAttachmentWrite:                "COLOR_ATTACHMENT_WRITE",
	AccessDepthStencilAttachmentRead:          "DEPTH_STENCIL_ATTACHMENT_READ",
	AccessDepthStencilAttachmentWrite:         "DEPTH_STENCIL_ATTACHMENT_WRITE",
	AccessDepthStencilAttachmentReadWrite:     "DEPTH_STENCIL_ATTACHMENT_READ_WRITE",
	AccessDepthStencilAttachmentReadOnly:      "DEPTH_STENCIL_ATTACHMENT_READ_ONLY",
	AccessTransferRead:                        "TRANSFER_READ",
	AccessTransferWrite:                       "TRANSFER_WRITE",
	AccessColorAttachmentReadWrite:            "COLOR_ATTACHMENT_READ_WRITE",
	AccessResolveRead:                         "RESOLVE_READ",
	AccessResolveWrite:                        "RESOLVE_WRITE",
	AccessPresent:                             "PRESENT",
	AccessGeneral:                             "GENERAL",
	AccessHostRead:                            "HOST_READ",
	AccessHostWrite:                           "HOST_WRITE",
}

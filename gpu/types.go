package gpu

// Buffer, Texture, Sampler, ShaderModule, GraphicsPipeline, and
// ComputePipeline are opaque handles. Their concrete backing struct
// lives in the backend package (gpu/vulkan); callers hold these as
// pointers and never reach into backend fields. A nil handle is always
// the result of a failed create call, per spec §7.
type (
	Buffer           struct{ backend any }
	Texture          struct{ backend any }
	Sampler          struct{ backend any }
	ShaderModule     struct{ backend any }
	GraphicsPipeline struct{ backend any }
	ComputePipeline  struct{ backend any }
	CommandBuffer    struct{ backend any }
	Window           struct{ backend any }
)

// Backend returns the backend-owned struct behind a handle. Only the
// backend package that created the handle knows how to type-assert the
// result; application code has no use for it.
func (b *Buffer) Backend() any           { return b.backend }
func (t *Texture) Backend() any          { return t.backend }
func (s *Sampler) Backend() any          { return s.backend }
func (m *ShaderModule) Backend() any     { return m.backend }
func (p *GraphicsPipeline) Backend() any { return p.backend }
func (p *ComputePipeline) Backend() any  { return p.backend }
func (c *CommandBuffer) Backend() any    { return c.backend }
func (w *Window) Backend() any           { return w.backend }

// NewBuffer, NewTexture, etc. are constructors backends use to wrap
// their concrete struct in the opaque public handle. Application code
// never calls these.
func NewBuffer(backend any) *Buffer                     { return &Buffer{backend: backend} }
func NewTexture(backend any) *Texture                   { return &Texture{backend: backend} }
func NewSampler(backend any) *Sampler                   { return &Sampler{backend: backend} }
func NewShaderModule(backend any) *ShaderModule         { return &ShaderModule{backend: backend} }
func NewGraphicsPipeline(backend any) *GraphicsPipeline { return &GraphicsPipeline{backend: backend} }
func NewComputePipeline(backend any) *ComputePipeline   { return &ComputePipeline{backend: backend} }
func NewCommandBuffer(backend any) *CommandBuffer       { return &CommandBuffer{backend: backend} }
func NewWindow(backend any) *Window                     { return &Window{backend: backend} }

// BufferUsage is a bitmask of the ways a buffer may be bound.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageIndirect
	BufferUsageComputeStorageRead
	BufferUsageComputeStorageWrite
)

// BufferCreateInfo describes a CreateBuffer call (spec §6).
type BufferCreateInfo struct {
	SizeInBytes uint64
	Usage       BufferUsage
	DebugName   string
}

// TextureUsage is a bitmask of the ways a texture may be bound.
type TextureUsage uint32

const (
	TextureUsageSampler TextureUsage = 1 << iota
	TextureUsageColorTarget
	TextureUsageDepthStencilTarget
	TextureUsageComputeStorageRead
	TextureUsageComputeStorageWrite
)

// TextureCreateInfo describes a CreateTexture call (spec §6).
type TextureCreateInfo struct {
	Width       uint32
	Height      uint32
	Depth       uint32
	LayerCount  uint32
	LevelCount  uint32
	SampleCount uint32
	Format      Format
	Usage       TextureUsage
	IsCube      bool
	Is3D        bool
	DebugName   string
}

// ShaderCreateInfo wraps an opaque SPIR-V blob plus the metadata the
// pipeline layer needs without inspecting the bytecode (spec §6,
// CreateShaderModule; shader bytecode is an external collaborator).
type ShaderCreateInfo struct {
	Code                 []byte
	Stage                ShaderStage
	EntryPoint           string
	SamplerCount         uint32
	UniformBufferCount   uint32
	StorageBufferCount   uint32
	StorageTextureCount  uint32
	UniformBlockSizeBytes uint32
	DebugName            string
}

// VertexAttribute describes one vertex-input attribute slot.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// VertexBinding describes one vertex-buffer binding's stride.
type VertexBinding struct {
	Binding   uint32
	Stride    uint32
	PerVertex bool
}

// ColorTargetBlendState controls per-target color blending.
type ColorTargetBlendState struct {
	Enable          bool
	SrcColorFactor  BlendFactor
	DstColorFactor  BlendFactor
	ColorBlendOp    BlendOp
	SrcAlphaFactor  BlendFactor
	DstAlphaFactor  BlendFactor
	AlphaBlendOp    BlendOp
	WriteMaskRGBA   uint32
}

// ColorAttachmentInfo names one color target's format for pipeline
// compatibility (spec §4.9's "AttachmentInfo").
type ColorAttachmentInfo struct {
	Format     Format
	BlendState ColorTargetBlendState
}

// DepthStencilAttachmentInfo names the depth-stencil target's format
// and test/write state for pipeline compatibility.
type DepthStencilAttachmentInfo struct {
	Format          Format
	DepthTestEnable bool
	DepthWriteEnable bool
	CompareOp       CompareOp
}

// GraphicsPipelineCreateInfo describes a CreateGraphicsPipeline call
// (spec §6 and §4.9).
type GraphicsPipelineCreateInfo struct {
	VertexShader        *ShaderModule
	FragmentShader      *ShaderModule
	VertexAttributes    []VertexAttribute
	VertexBindings      []VertexBinding
	ColorAttachments    []ColorAttachmentInfo
	DepthStencil        *DepthStencilAttachmentInfo
	Topology            PrimitiveTopology
	FillMode            FillMode
	CullMode            CullMode
	FrontFace           FrontFace
	SampleCount         uint32
	DebugName           string
}

// ComputePipelineCreateInfo describes a CreateComputePipeline call.
type ComputePipelineCreateInfo struct {
	Shader              *ShaderModule
	ReadOnlyBufferCount  uint32
	ReadWriteBufferCount uint32
	ReadOnlyTextureCount uint32
	ReadWriteTextureCount uint32
	DebugName            string
}

// SamplerCreateInfo describes a CreateSampler call. MipLodBias and
// MaxAnisotropy are carried here even though spec.md's operation table
// summarizes only "filter/address/compare/border" — both are present in
// the original driver's sampler creation path.
type SamplerCreateInfo struct {
	MinFilter    Filter
	MagFilter    Filter
	AddressModeU SamplerAddressMode
	AddressModeV SamplerAddressMode
	AddressModeW SamplerAddressMode
	CompareOp    *CompareOp
	MipLodBias   float32
	MaxAnisotropy float32
	DebugName    string
}

// ColorAttachmentBinding is one color attachment bound to a render pass
// at BeginRenderPass time, carrying the load/store/clear behavior that
// spec §4.7's RenderPassKey is structural over. There is no separate
// resolve-target field: when Texture's sample count is greater than 1,
// the render target cache owns an MSAA sidecar keyed off
// (Texture, Layer, MipLevel, sampleCount) and resolves into Texture
// itself on store, per spec §4.7's RenderTarget key.
type ColorAttachmentBinding struct {
	Texture    *Texture
	MipLevel   uint32
	Layer      uint32
	LoadOp     LoadOp
	StoreOp    StoreOp
	ClearColor [4]float32
}

// DepthStencilAttachmentBinding is the depth-stencil attachment bound
// at BeginRenderPass time, with independent load/store for depth and
// stencil per SPEC_FULL §4.18.
type DepthStencilAttachmentBinding struct {
	Texture        *Texture
	DepthLoadOp    LoadOp
	DepthStoreOp   StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	ClearDepth     float32
	ClearStencil   uint32
}

// BufferBinding pairs a buffer with the byte range a draw call reads.
type BufferBinding struct {
	Buffer *Buffer
	Offset uint64
}

// TextureSamplerBinding pairs a texture with the sampler used to read
// it at a given binding slot.
type TextureSamplerBinding struct {
	Texture *Texture
	Sampler *Sampler
}

// TextureRegion names a subresource and byte-aligned box inside it, used
// by SetTextureData and the texture-to-texture/buffer copy operations.
type TextureRegion struct {
	Texture  *Texture
	MipLevel uint32
	Layer    uint32
	X, Y, Z  uint32
	Width, Height, Depth uint32
}

// BufferRegion names a byte range inside a buffer.
type BufferRegion struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

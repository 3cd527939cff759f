package gpu

// Format names a pixel/vertex-attribute format independent of any
// backend's native enum.
type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8Unorm
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR16G16Float
	FormatR16G16B16A16Float
	FormatR32Float
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatD32Float
	FormatD24UnormS8Uint
	FormatBC1Unorm
	FormatBC3Unorm
	FormatBC7Unorm
)

// PrimitiveTopology selects how vertices assemble into primitives.
type PrimitiveTopology uint32

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyLineStrip
	PrimitiveTopologyPointList
)

type FillMode uint32

const (
	FillModeFill FillMode = iota
	FillModeLine
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp uint32

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

type BlendFactor uint32

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcColor
	BlendFactorOneMinusSrcColor
	BlendFactorDstColor
	BlendFactorOneMinusDstColor
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
)

type BlendOp uint32

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpReverseSubtract
	BlendOpMin
	BlendOpMax
)

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type SamplerAddressMode uint32

const (
	SamplerAddressModeRepeat SamplerAddressMode = iota
	SamplerAddressModeMirroredRepeat
	SamplerAddressModeClampToEdge
	SamplerAddressModeClampToBorder
)

// LoadOp and StoreOp control a render-pass attachment's behavior at the
// start and end of a pass, per spec §4.7/§4.8.
type LoadOp uint32

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp uint32

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// PresentMode mirrors the four Vulkan present modes named in §4.11.
type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFIFO
	PresentModeFIFORelaxed
)

// ShaderStage identifies which pipeline stage a shader module, uniform
// push, or descriptor binding targets.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
	ShaderStageCompute
)

// IndexElementSize selects 16- or 32-bit index buffer elements.
type IndexElementSize uint32

const (
	IndexElementSize16 IndexElementSize = iota
	IndexElementSize32
)

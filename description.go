package gapi

import (
	"fmt"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// MaxPossible is a sentinel for "as many as the resource allows": a full mip
// chain at resource creation, or the remaining mip/array/subresource range in
// view descriptions and staging allocations.
const MaxPossible uint32 = 0xFFFFFF

// ResourceDimension identifies the addressing shape of a GPU resource.
type ResourceDimension uint32

const (
	ResourceDimensionUnknown ResourceDimension = iota
	ResourceDimensionBuffer
	ResourceDimensionTexture1D
	ResourceDimensionTexture2D
	ResourceDimensionTexture2DMS
	ResourceDimensionTexture3D
	ResourceDimensionTextureCube
)

var resourceDimensionMapping = map[ResourceDimension]string{
	ResourceDimensionUnknown:     "Unknown",
	ResourceDimensionBuffer:      "Buffer",
	ResourceDimensionTexture1D:   "Texture1D",
	ResourceDimensionTexture2D:   "Texture2D",
	ResourceDimensionTexture2DMS: "Texture2DMS",
	ResourceDimensionTexture3D:   "Texture3D",
	ResourceDimensionTextureCube: "TextureCube",
}

func (d ResourceDimension) String() string { return resourceDimensionMapping[d] }

// BindFlags declare the pipeline stages a resource may be bound to. Views
// require the matching capability flag on the resource they are created from.
type BindFlags uint32

const (
	BindShaderResource BindFlags = 1 << iota
	BindRenderTarget
	BindDepthStencil
	BindUnorderedAccess

	BindNone BindFlags = 0
)

// CpuAccess describes how the CPU may touch a resource's memory. Copy
// operations restrict the allowed combinations: sources must be None or
// Write, destinations must be None.
type CpuAccess uint32

const (
	CpuAccessNone CpuAccess = iota
	CpuAccessWrite
	CpuAccessRead
)

var cpuAccessMapping = map[CpuAccess]string{
	CpuAccessNone:  "None",
	CpuAccessWrite: "Write",
	CpuAccessRead:  "Read",
}

func (a CpuAccess) String() string { return cpuAccessMapping[a] }

// GpuResourceDescription is the complete logical shape of a texture or
// buffer: dimension, format, extents, mip/array layout and sample count.
// Two resources with equal descriptions are copy-compatible.
type GpuResourceDescription struct {
	Dimension   ResourceDimension
	Format      Format
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	SampleCount uint32
	ArraySize   uint32
}

func newTextureDescription(dimension ResourceDimension, width, height, depth uint32, format Format, sampleCount, arraySize, mipLevels uint32) GpuResourceDescription {
	desc := GpuResourceDescription{
		Dimension:   dimension,
		Format:      format,
		Width:       width,
		Height:      height,
		Depth:       depth,
		SampleCount: sampleCount,
		ArraySize:   arraySize,
	}

	// MaxPossible (or any overlong request) clamps to the full chain.
	maxMips := desc.MaxMipLevel()
	if mipLevels > maxMips {
		mipLevels = maxMips
	}
	desc.MipLevels = mipLevels

	return desc
}

// NewTexture1DDescription describes a 1D texture. Pass MaxPossible for
// mipLevels to request the full mip chain.
func NewTexture1DDescription(width uint32, format Format, arraySize, mipLevels uint32) GpuResourceDescription {
	return newTextureDescription(ResourceDimensionTexture1D, width, 1, 1, format, 1, arraySize, mipLevels)
}

// NewTexture2DDescription describes a 2D texture. Pass MaxPossible for
// mipLevels to request the full mip chain.
func NewTexture2DDescription(width, height uint32, format Format, arraySize, mipLevels uint32) GpuResourceDescription {
	return newTextureDescription(ResourceDimensionTexture2D, width, height, 1, format, 1, arraySize, mipLevels)
}

// NewTexture2DMSDescription describes a multisampled 2D texture. Multisampled
// resources always have exactly one mip level.
func NewTexture2DMSDescription(width, height uint32, format Format, sampleCount, arraySize uint32) GpuResourceDescription {
	return newTextureDescription(ResourceDimensionTexture2DMS, width, height, 1, format, sampleCount, arraySize, 1)
}

// NewTexture3DDescription describes a volume texture. Pass MaxPossible for
// mipLevels to request the full mip chain.
func NewTexture3DDescription(width, height, depth uint32, format Format, mipLevels uint32) GpuResourceDescription {
	return newTextureDescription(ResourceDimensionTexture3D, width, height, depth, format, 1, 1, mipLevels)
}

// NewTextureCubeDescription describes a cube texture with arraySize sets of
// six faces. Pass MaxPossible for mipLevels to request the full mip chain.
func NewTextureCubeDescription(width, height uint32, format Format, arraySize, mipLevels uint32) GpuResourceDescription {
	return newTextureDescription(ResourceDimensionTextureCube, width, height, 1, format, 1, arraySize, mipLevels)
}

// NewBufferDescription describes a linear buffer of size bytes.
func NewBufferDescription(size uint64) GpuResourceDescription {
	return GpuResourceDescription{
		Dimension:   ResourceDimensionBuffer,
		Format:      FormatUnknown,
		Width:       uint32(size),
		Height:      1,
		Depth:       1,
		MipLevels:   1,
		SampleCount: 1,
		ArraySize:   1,
	}
}

// MaxMipLevel returns the number of mip levels in a full chain for the
// description's extents: 1 + floor(log2(max dimension)).
func (d GpuResourceDescription) MaxMipLevel() uint32 {
	maxDimension := d.Width
	if d.Height > maxDimension {
		maxDimension = d.Height
	}
	if d.Depth > maxDimension {
		maxDimension = d.Depth
	}
	if maxDimension == 0 {
		return 1
	}
	return uint32(bits.Len32(maxDimension))
}

// NumArraySlices returns the effective array slice count, expanding cube
// textures to six faces per array entry.
func (d GpuResourceDescription) NumArraySlices() uint32 {
	if d.Dimension == ResourceDimensionTextureCube {
		return 6 * d.ArraySize
	}
	return d.ArraySize
}

// NumSubresources returns the total number of (mip level, array slice)
// pairs addressable in the resource.
func (d GpuResourceDescription) NumSubresources() uint32 {
	const planeSlices = 1
	return planeSlices * d.NumArraySlices() * d.MipLevels
}

// SubresourceIndex returns the linear index of one (mip level, array slice)
// pair. Mip levels vary fastest, matching the copy-location convention of the
// backend.
func (d GpuResourceDescription) SubresourceIndex(mipLevel, arraySlice uint32) uint32 {
	return mipLevel + arraySlice*d.MipLevels
}

// SubresourceMipLevel returns the mip level addressed by a linear
// subresource index.
func (d GpuResourceDescription) SubresourceMipLevel(index uint32) uint32 {
	return index % d.MipLevels
}

// MipDimensions returns the extents of one mip level, each clamped to at
// least one texel.
func (d GpuResourceDescription) MipDimensions(mipLevel uint32) (width, height, depth uint32) {
	width = d.Width >> mipLevel
	if width == 0 {
		width = 1
	}
	height = d.Height >> mipLevel
	if height == 0 {
		height = 1
	}
	depth = d.Depth >> mipLevel
	if depth == 0 {
		depth = 1
	}
	return width, height, depth
}

// IsBuffer reports whether the description addresses a linear buffer.
func (d GpuResourceDescription) IsBuffer() bool {
	return d.Dimension == ResourceDimensionBuffer
}

// Validate checks the description for internal consistency.
func (d GpuResourceDescription) Validate() error {
	if d.Dimension == ResourceDimensionUnknown {
		return errors.New("resource dimension is unknown")
	}
	if d.Width == 0 || d.Height == 0 || d.Depth == 0 {
		return errors.Newf("resource extents must be non-zero, got %dx%dx%d", d.Width, d.Height, d.Depth)
	}
	if d.MipLevels == 0 || d.ArraySize == 0 || d.SampleCount == 0 {
		return errors.Newf("mip, array and sample counts must be non-zero, got %d/%d/%d", d.MipLevels, d.ArraySize, d.SampleCount)
	}
	if !d.IsBuffer() && d.Format == FormatUnknown {
		return errors.New("texture format is unknown")
	}
	if d.Dimension != ResourceDimensionTexture2DMS && d.SampleCount != 1 {
		return errors.Newf("%s resources cannot be multisampled", d.Dimension)
	}
	if d.Dimension == ResourceDimensionTexture3D && d.ArraySize != 1 {
		return errors.New("volume textures cannot be arrayed")
	}
	if mips := d.MaxMipLevel(); d.MipLevels > mips {
		return errors.Newf("mip count %d exceeds the full chain of %d for %dx%dx%d", d.MipLevels, mips, d.Width, d.Height, d.Depth)
	}
	return nil
}

func (d GpuResourceDescription) String() string {
	return fmt.Sprintf("%s %s %dx%dx%d mips=%d array=%d samples=%d",
		d.Dimension, d.Format, d.Width, d.Height, d.Depth, d.MipLevels, d.ArraySize, d.SampleCount)
}

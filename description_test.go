package gapi_test

import (
	"testing"

	"github.com/openframe/gapi"
	"github.com/stretchr/testify/require"
)

func TestFullMipChainClamping(t *testing.T) {
	desc := gapi.NewTexture2DDescription(256, 64, gapi.FormatRGBA8Unorm, 1, gapi.MaxPossible)
	require.Equal(t, uint32(9), desc.MipLevels)

	desc = gapi.NewTexture2DDescription(130, 130, gapi.FormatRGBA8Unorm, 1, gapi.MaxPossible)
	require.Equal(t, uint32(8), desc.MipLevels)

	desc = gapi.NewTexture2DDescription(1, 1, gapi.FormatRGBA8Unorm, 1, gapi.MaxPossible)
	require.Equal(t, uint32(1), desc.MipLevels)

	// An explicit count below the full chain is kept.
	desc = gapi.NewTexture2DDescription(256, 256, gapi.FormatRGBA8Unorm, 1, 3)
	require.Equal(t, uint32(3), desc.MipLevels)
}

func TestMipDimensionsClampToOne(t *testing.T) {
	desc := gapi.NewTexture3DDescription(64, 16, 4, gapi.FormatRGBA8Unorm, gapi.MaxPossible)
	require.Equal(t, uint32(7), desc.MipLevels)

	w, h, d := desc.MipDimensions(0)
	require.Equal(t, [3]uint32{64, 16, 4}, [3]uint32{w, h, d})

	w, h, d = desc.MipDimensions(5)
	require.Equal(t, [3]uint32{2, 1, 1}, [3]uint32{w, h, d})

	w, h, d = desc.MipDimensions(6)
	require.Equal(t, [3]uint32{1, 1, 1}, [3]uint32{w, h, d})
}

func TestSubresourceIndexing(t *testing.T) {
	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 4, 3)
	require.Equal(t, uint32(12), desc.NumSubresources())
	require.Equal(t, uint32(0), desc.SubresourceIndex(0, 0))
	require.Equal(t, uint32(2), desc.SubresourceIndex(2, 0))
	require.Equal(t, uint32(3), desc.SubresourceIndex(0, 1))
	require.Equal(t, uint32(11), desc.SubresourceIndex(2, 3))
	require.Equal(t, uint32(2), desc.SubresourceMipLevel(11))

	cube := gapi.NewTextureCubeDescription(32, 32, gapi.FormatRGBA8Unorm, 2, 1)
	require.Equal(t, uint32(12), cube.NumArraySlices())
	require.Equal(t, uint32(12), cube.NumSubresources())
}

func TestDescriptionValidate(t *testing.T) {
	require.NoError(t, gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 1, 1).Validate())
	require.NoError(t, gapi.NewBufferDescription(1024).Validate())

	require.Error(t, gapi.NewTexture2DDescription(0, 64, gapi.FormatRGBA8Unorm, 1, 1).Validate())
	require.Error(t, gapi.NewTexture2DDescription(64, 64, gapi.FormatUnknown, 1, 1).Validate())

	multisampledMips := gapi.GpuResourceDescription{
		Dimension: gapi.ResourceDimensionTexture2D,
		Format:    gapi.FormatRGBA8Unorm,
		Width:     64, Height: 64, Depth: 1,
		MipLevels: 1, SampleCount: 4, ArraySize: 1,
	}
	require.Error(t, multisampledMips.Validate())
}

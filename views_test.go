package gapi_test

import (
	"testing"

	"github.com/openframe/gapi"
	"github.com/stretchr/testify/require"
)

func TestViewCacheReturnsSameViewForEqualRequests(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 4, gapi.MaxPossible)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource|gapi.BindRenderTarget, gapi.CpuAccessNone, "t")
	require.NoError(t, err)
	defer texture.Release()

	full, err := texture.GetSRV(gapi.FormatUnknown, 0, gapi.MaxPossible, 0, gapi.MaxPossible)
	require.NoError(t, err)

	// The same range spelled out explicitly resolves to the same key.
	explicit, err := texture.GetSRV(gapi.FormatRGBA8Unorm, 0, desc.MipLevels, 0, desc.ArraySize)
	require.NoError(t, err)
	require.Same(t, full, explicit)

	resolved := full.Description()
	require.Equal(t, gapi.FormatRGBA8Unorm, resolved.Format)
	require.Equal(t, desc.MipLevels, resolved.MipCount)
	require.Equal(t, desc.ArraySize, resolved.ArraySliceCount)
}

func TestViewCacheDistinguishesRangesAndTypes(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 1, gapi.MaxPossible)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource|gapi.BindRenderTarget, gapi.CpuAccessNone, "t")
	require.NoError(t, err)
	defer texture.Release()

	full, err := texture.GetSRV(gapi.FormatUnknown, 0, gapi.MaxPossible, 0, gapi.MaxPossible)
	require.NoError(t, err)
	single, err := texture.GetSRV(gapi.FormatUnknown, 1, 1, 0, gapi.MaxPossible)
	require.NoError(t, err)
	require.NotSame(t, full, single)

	rtv, err := texture.GetRTV(gapi.FormatUnknown, 0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, gapi.ResourceViewRenderTarget, rtv.Type())
	require.Equal(t, gapi.ResourceViewShaderResource, full.Type())
}

func TestViewRequiresMatchingBindFlag(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 1, 1)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource, gapi.CpuAccessNone, "t")
	require.NoError(t, err)
	defer texture.Release()

	_, err = texture.GetRTV(gapi.FormatUnknown, 0, 0, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)

	_, err = texture.GetUAV(gapi.FormatUnknown, 0, 0, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)
}

func TestViewRangeOutOfBounds(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 2, 4)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource, gapi.CpuAccessNone, "t")
	require.NoError(t, err)
	defer texture.Release()

	_, err = texture.GetSRV(gapi.FormatUnknown, 4, 1, 0, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)

	_, err = texture.GetSRV(gapi.FormatUnknown, 2, 3, 0, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)

	_, err = texture.GetSRV(gapi.FormatUnknown, 0, 1, 1, 2)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)
}

func TestDepthStencilViewNeedsExplicitPlaneFormat(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatD24UnormS8Uint, 1, 1)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource|gapi.BindDepthStencil, gapi.CpuAccessNone, "depth")
	require.NoError(t, err)
	defer texture.Release()

	_, err = texture.GetSRV(gapi.FormatUnknown, 0, 1, 0, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)

	// Naming the plane works.
	view, err := texture.GetSRV(gapi.FormatR32Uint, 0, 1, 0, 1)
	require.NoError(t, err)
	require.Equal(t, gapi.FormatR32Uint, view.Description().Format)

	// A pure depth format needs no explicit plane.
	pureDesc := gapi.NewTexture2DDescription(64, 64, gapi.FormatD32Float, 1, 1)
	pure, err := dev.CreateTexture(pureDesc, gapi.BindDepthStencil, gapi.CpuAccessNone, "puredepth")
	require.NoError(t, err)
	defer pure.Release()

	dsv, err := pure.GetDSV(gapi.FormatUnknown, 0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, gapi.FormatD32Float, dsv.Description().Format)
}

func TestBufferViews(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	buffer, err := dev.CreateBuffer(1024, gapi.BindShaderResource|gapi.BindUnorderedAccess, gapi.CpuAccessNone, "b")
	require.NoError(t, err)
	defer buffer.Release()

	full, err := buffer.GetSRV(0, gapi.MaxPossible)
	require.NoError(t, err)
	again, err := buffer.GetSRV(0, 1024)
	require.NoError(t, err)
	require.Same(t, full, again)

	_, err = buffer.GetSRV(1024, 1)
	require.ErrorIs(t, err, gapi.ErrIncompatibleView)

	uav, err := buffer.GetUAV(512, gapi.MaxPossible)
	require.NoError(t, err)
	require.Equal(t, uint32(512), uav.Description().FirstElement)
	require.Equal(t, uint32(512), uav.Description().ElementCount)
}

func TestReleasedResourceViewsAreDeferred(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Unorm, 1, 1)
	texture, err := dev.CreateTexture(desc, gapi.BindShaderResource|gapi.BindRenderTarget, gapi.CpuAccessNone, "t")
	require.NoError(t, err)

	_, err = texture.GetSRV(gapi.FormatUnknown, 0, 1, 0, 1)
	require.NoError(t, err)
	_, err = texture.GetRTV(gapi.FormatUnknown, 0, 0, 1)
	require.NoError(t, err)

	texture.Release()
	// Resource plus two cached views.
	require.Equal(t, 3, dev.PendingReleases())
}

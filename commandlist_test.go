package gapi_test

import (
	"testing"

	"github.com/openframe/gapi"
	"github.com/openframe/gapi/soft"
	"github.com/stretchr/testify/require"
)

func TestAllocatorRingPanicsOnReuseBeforeCompletion(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	backend.SetPumpMode(soft.PumpManual)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	// Two submissions rotate onto the two untouched allocators. The third
	// wraps back to the first allocator, whose work the stalled GPU has not
	// retired.
	require.NoError(t, dev.Submit(list))
	require.NoError(t, dev.Submit(list))
	require.Panics(t, func() {
		_ = dev.Submit(list)
	})
}

func TestAllocatorRingReusesRetiredAllocators(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	backend.SetPumpMode(soft.PumpManual)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	for i := 0; i < 2*gapi.AllocatorsCount; i++ {
		require.NotPanics(t, func() {
			require.NoError(t, dev.Submit(list))
		})
		backend.CompleteAllSignals()
	}
}

func TestCommandListCloseTwicePanics(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	require.NoError(t, list.Close())
	require.Panics(t, func() {
		_ = list.Close()
	})

	// Submitting a closed list reopens it.
	require.NoError(t, dev.Submit(list))
}

func TestCommandListRecordAfterClosePanics(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	source, err := dev.CreateBuffer(256, gapi.BindNone, gapi.CpuAccessNone, "src")
	require.NoError(t, err)
	defer source.Release()
	dest, err := dev.CreateBuffer(256, gapi.BindNone, gapi.CpuAccessNone, "dst")
	require.NoError(t, err)
	defer dest.Release()

	require.NoError(t, list.Close())
	require.Panics(t, func() {
		list.CopyBuffer(dest, source)
	})

	require.NoError(t, dev.Submit(list))
}

func TestCopyRejectsIllegalCpuAccess(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	plain, err := dev.CreateBuffer(256, gapi.BindNone, gapi.CpuAccessNone, "plain")
	require.NoError(t, err)
	defer plain.Release()
	readback, err := dev.CreateBuffer(256, gapi.BindNone, gapi.CpuAccessRead, "readback")
	require.NoError(t, err)
	defer readback.Release()
	upload, err := dev.CreateBuffer(256, gapi.BindNone, gapi.CpuAccessWrite, "upload")
	require.NoError(t, err)
	defer upload.Release()

	// Readback memory cannot be a copy source, CPU-visible memory cannot be
	// a copy destination.
	require.Panics(t, func() {
		list.CopyBuffer(plain, readback)
	})
	require.Panics(t, func() {
		list.CopyBuffer(upload, plain)
	})

	require.NotPanics(t, func() {
		list.CopyBuffer(plain, upload)
	})
	require.NoError(t, dev.Submit(list))
}

func TestCopyRegionSubresourceIndexOutOfBoundsPanics(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Uint, 1, 3)
	source, err := dev.CreateTexture(desc, gapi.BindNone, gapi.CpuAccessNone, "src")
	require.NoError(t, err)
	defer source.Release()
	dest, err := dev.CreateTexture(desc, gapi.BindNone, gapi.CpuAccessNone, "dst")
	require.NoError(t, err)
	defer dest.Release()

	box := gapi.Box3{Width: 1, Height: 1, Depth: 1}

	// Indices past the last subresource must fail up front; mip arithmetic
	// on a wrapped index would validate the box against the wrong level.
	require.Panics(t, func() {
		list.CopyTextureSubresourceRegion(dest, desc.NumSubresources(), gapi.Point3{}, source, 0, box)
	})
	require.Panics(t, func() {
		list.CopyTextureSubresourceRegion(dest, 0, gapi.Point3{}, source, desc.NumSubresources(), box)
	})

	require.NoError(t, dev.Submit(list))
}

func TestCopyBufferRegionOutOfBoundsPanics(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "test")
	require.NoError(t, err)
	defer list.Release()

	source, err := dev.CreateBuffer(128, gapi.BindNone, gapi.CpuAccessNone, "src")
	require.NoError(t, err)
	defer source.Release()
	dest, err := dev.CreateBuffer(64, gapi.BindNone, gapi.CpuAccessNone, "dst")
	require.NoError(t, err)
	defer dest.Release()

	require.Panics(t, func() {
		list.CopyBufferRegion(dest, 0, source, 64, 128)
	})
	require.Panics(t, func() {
		list.CopyBufferRegion(dest, 32, source, 0, 64)
	})

	require.NoError(t, dev.Submit(list))
}

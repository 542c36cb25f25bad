package gapi_test

import (
	"encoding/json"
	"testing"

	"github.com/openframe/gapi"
	"github.com/openframe/gapi/soft"
	"github.com/stretchr/testify/require"
)

func TestDeviceLifecycle(t *testing.T) {
	dev, backend := newTestDevice(t)

	require.NotNil(t, dev.GraphicsQueue())
	require.Equal(t, gapi.CommandQueueGraphics, dev.GraphicsQueue().Type())

	destroyTestDevice(t, dev, backend)
}

func TestDeviceUnknownBackendFails(t *testing.T) {
	_, err := gapi.NewDevice(nil, gapi.DeviceOptions{BackendName: "no-such-backend"})
	require.ErrorIs(t, err, gapi.ErrBackendNotAvailable)
}

func TestDeviceDefaultBackendSelection(t *testing.T) {
	dev, err := gapi.NewDevice(nil, gapi.DeviceOptions{})
	require.NoError(t, err)
	require.NoError(t, dev.Destroy())
}

func TestDeviceCreateBufferRejectsOversize(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	// A size past the 32-bit limit must fail loudly, not truncate.
	_, err := dev.CreateBuffer((1<<32)+100, gapi.BindNone, gapi.CpuAccessNone, "huge")
	require.Error(t, err)

	buffer, err := dev.CreateBuffer(1<<16, gapi.BindNone, gapi.CpuAccessNone, "sane")
	require.NoError(t, err)
	require.Equal(t, uint64(1<<16), buffer.Size())
	buffer.Release()
}

func TestDeviceCreateTextureValidatesDescription(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	bad := gapi.NewTexture2DDescription(0, 64, gapi.FormatRGBA8Unorm, 1, 1)
	_, err := dev.CreateTexture(bad, gapi.BindNone, gapi.CpuAccessNone, "bad")
	require.Error(t, err)

	volumeArray := gapi.GpuResourceDescription{
		Dimension: gapi.ResourceDimensionTexture3D,
		Format:    gapi.FormatRGBA8Unorm,
		Width:     16, Height: 16, Depth: 16,
		MipLevels: 1, SampleCount: 1, ArraySize: 4,
	}
	_, err = dev.CreateTexture(volumeArray, gapi.BindNone, gapi.CpuAccessNone, "bad")
	require.Error(t, err)
}

func TestDeviceFrameLoop(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "frame")
	require.NoError(t, err)
	defer list.Release()

	for frame := 0; frame < 16; frame++ {
		require.NoError(t, dev.Submit(list))
		require.NoError(t, dev.MoveToNextFrame())
	}
	require.NoError(t, dev.WaitForGpu())
}

func TestDeviceStatsJson(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	desc := gapi.NewTexture2DDescription(64, 64, gapi.FormatRGBA8Uint, 1, 1)
	_, err := dev.AllocateIntermediateTextureData(desc, gapi.MemoryAllocationUpload, 0, gapi.MaxPossible)
	require.NoError(t, err)

	var stats struct {
		Backend         string
		PendingReleases int
		Heaps           map[string]struct {
			PageCount       int
			AllocationCount int
			AllocationBytes uint64
			Pages           []map[string]any
		}
	}
	require.NoError(t, json.Unmarshal([]byte(dev.BuildStatsString(false)), &stats))
	require.Equal(t, soft.BackendName, stats.Backend)
	require.Contains(t, stats.Heaps, "UploadHeap")
	require.Contains(t, stats.Heaps, "ReadbackHeap")
	require.Equal(t, 1, stats.Heaps["UploadHeap"].AllocationCount)
	require.Empty(t, stats.Heaps["UploadHeap"].Pages)

	require.NoError(t, json.Unmarshal([]byte(dev.BuildStatsString(true)), &stats))
	require.NotEmpty(t, stats.Heaps["UploadHeap"].Pages)
}

func TestDeviceLossPropagates(t *testing.T) {
	dev, backend := newTestDevice(t)

	list, err := dev.CreateCommandList(gapi.CommandListGraphics, "frame")
	require.NoError(t, err)
	require.NoError(t, dev.Submit(list))

	backend.SimulateDeviceLoss()

	require.ErrorIs(t, dev.WaitForGpu(), gapi.ErrDeviceLost)
	require.ErrorIs(t, dev.MoveToNextFrame(), gapi.ErrDeviceLost)
	require.ErrorIs(t, dev.Submit(list), gapi.ErrDeviceLost)

	// Teardown still works: the queue is force-drained with a warning.
	list.Release()
	require.NoError(t, dev.Destroy())
	require.Zero(t, backend.LiveObjects())
}

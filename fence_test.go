package gapi_test

import (
	"testing"
	"time"

	"github.com/openframe/gapi"
	"github.com/openframe/gapi/soft"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*gapi.Device, *soft.Device) {
	t.Helper()

	dev, err := gapi.NewDevice(nil, gapi.DeviceOptions{BackendName: soft.BackendName})
	require.NoError(t, err)

	backend, ok := dev.BackendDevice().(*soft.Device)
	require.True(t, ok)

	return dev, backend
}

func destroyTestDevice(t *testing.T, dev *gapi.Device, backend *soft.Device) {
	t.Helper()

	backend.SetPumpMode(soft.PumpAuto)
	require.NoError(t, dev.Destroy())
	require.Zero(t, backend.LiveObjects())
}

func TestFenceSignalIsMonotonic(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	fence, err := dev.CreateFence("test", 0)
	require.NoError(t, err)
	defer fence.Release()

	require.Equal(t, uint64(1), fence.CpuValue())
	require.Equal(t, uint64(0), fence.GpuValue())

	signaled, err := fence.Signal(dev.GraphicsQueue())
	require.NoError(t, err)
	require.Equal(t, uint64(1), signaled)
	require.Equal(t, uint64(2), fence.CpuValue())
	require.Equal(t, uint64(1), fence.GpuValue())

	signaled, err = fence.Signal(dev.GraphicsQueue())
	require.NoError(t, err)
	require.Equal(t, uint64(2), signaled)

	require.LessOrEqual(t, fence.GpuValue(), fence.CpuValue())
	require.NoError(t, fence.SyncCPU(nil, time.Second))
}

func TestFenceSyncCPUTimesOutWhileGpuLags(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	backend.SetPumpMode(soft.PumpManual)

	fence, err := dev.CreateFence("test", 0)
	require.NoError(t, err)
	defer fence.Release()

	_, err = fence.Signal(dev.GraphicsQueue())
	require.NoError(t, err)
	require.Equal(t, uint64(0), fence.GpuValue())

	// A zero timeout still reports the timeout outcome instead of hanging.
	err = fence.SyncCPU(nil, 0)
	require.ErrorIs(t, err, gapi.ErrTimeout)

	err = fence.SyncCPU(nil, 10*time.Millisecond)
	require.ErrorIs(t, err, gapi.ErrTimeout)

	backend.CompleteAllSignals()
	require.NoError(t, fence.SyncCPU(nil, time.Second))
	require.Equal(t, uint64(1), fence.GpuValue())
}

func TestFenceWaitForUnsignaledValuePanics(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer destroyTestDevice(t, dev, backend)

	fence, err := dev.CreateFence("test", 0)
	require.NoError(t, err)
	defer fence.Release()

	target := fence.CpuValue()
	require.Panics(t, func() {
		_ = fence.SyncCPU(&target, time.Second)
	})
}

func TestFenceSyncCPUSurfacesDeviceLoss(t *testing.T) {
	dev, backend := newTestDevice(t)
	defer func() {
		require.NoError(t, dev.Destroy())
	}()

	backend.SetPumpMode(soft.PumpManual)

	fence, err := dev.CreateFence("test", 0)
	require.NoError(t, err)
	defer fence.Release()

	_, err = fence.Signal(dev.GraphicsQueue())
	require.NoError(t, err)

	backend.SimulateDeviceLoss()

	err = fence.SyncCPU(nil, time.Second)
	require.ErrorIs(t, err, gapi.ErrDeviceLost)
}

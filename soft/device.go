package soft

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/openframe/gapi"
	"github.com/openframe/gapi/gpuutils"
)

// PumpMode controls when enqueued fence signals complete.
type PumpMode uint32

const (
	// PumpAuto completes every signal the moment it is enqueued, so fence
	// GPU values track CPU values with no lag.
	PumpAuto PumpMode = iota
	// PumpManual holds signals until CompleteSignals or CompleteAllSignals
	// runs, letting tests keep GPU values behind CPU values by an exact
	// number of signals.
	PumpManual
)

type pendingSignal struct {
	fence *fence
	value uint64
}

// Device is the software backend device. Command lists execute synchronously
// at submit; fence completion follows the pump mode. Everything is guarded by
// one mutex since fence waits and pump calls may come from any goroutine.
type Device struct {
	mu     sync.Mutex
	logger *slog.Logger

	pump    PumpMode
	pending []pendingSignal
	lost    bool

	fences      []*fence
	viewSlots   *swiss.Map[uint32, *view]
	nextSlot    uint32
	liveObjects int
	presents    int
}

func newDevice(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Device{
		logger:    logger,
		viewSlots: swiss.NewMap[uint32, *view](16),
	}
}

// SetPumpMode switches signal completion between auto and manual. Switching
// to auto completes everything already pending.
func (d *Device) SetPumpMode(mode PumpMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pump = mode
	if mode == PumpAuto {
		d.completeLocked(len(d.pending))
	}
}

// PendingSignals returns the number of enqueued signals not yet completed.
func (d *Device) PendingSignals() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// CompleteSignals completes the n oldest pending signals, in order.
func (d *Device) CompleteSignals(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.pending) {
		n = len(d.pending)
	}
	d.completeLocked(n)
}

// CompleteAllSignals completes every pending signal.
func (d *Device) CompleteAllSignals() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(len(d.pending))
}

func (d *Device) completeLocked(n int) {
	for i := 0; i < n; i++ {
		signal := d.pending[i]
		signal.fence.complete(signal.value)
	}
	d.pending = d.pending[n:]
}

// SimulateDeviceLoss marks the device removed. Every blocked and future
// fence wait fails with ErrDeviceLost, as do submissions and signals.
func (d *Device) SimulateDeviceLoss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.pending = nil
	for _, f := range d.fences {
		f.markLost()
	}
	d.logger.LogAttrs(context.Background(), slog.LevelWarn, "soft device loss simulated")
}

// LiveObjects returns the number of native objects created and not yet
// released. Zero after a clean teardown.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveObjects
}

// Presents returns the number of Present calls across all swap chains.
func (d *Device) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) objectCreated() {
	d.mu.Lock()
	d.liveObjects++
	d.mu.Unlock()
}

func (d *Device) objectReleased() {
	d.mu.Lock()
	d.liveObjects--
	d.mu.Unlock()
}

func (d *Device) CreateFence(name string, initialValue uint64) (gapi.NativeFence, error) {
	f := newFence(d, name, initialValue)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.liveObjects++
	d.mu.Unlock()
	return f, nil
}

func (d *Device) CreateQueue(queueType gapi.CommandQueueType, name string) (gapi.NativeQueue, error) {
	d.objectCreated()
	return &queue{dev: d, name: name, queueType: queueType}, nil
}

func (d *Device) CreateCommandAllocator(listType gapi.CommandListType, name string) (gapi.NativeAllocator, error) {
	d.objectCreated()
	return &allocator{dev: d, name: name}, nil
}

func (d *Device) CreateCommandList(listType gapi.CommandListType, alloc gapi.NativeAllocator, name string) (gapi.NativeList, error) {
	d.objectCreated()
	return &commandList{dev: d, name: name, allocator: alloc.(*allocator)}, nil
}

func (d *Device) CreateResource(desc gapi.GpuResourceDescription, bindFlags gapi.BindFlags, cpuAccess gapi.CpuAccess, name string) (gapi.NativeResource, error) {
	res, err := newResource(d, desc, cpuAccess, name)
	if err != nil {
		return nil, err
	}
	d.objectCreated()
	return res, nil
}

func (d *Device) CreateView(target gapi.NativeResource, viewType gapi.ResourceViewType, desc gapi.ResourceViewDescription) (gapi.NativeView, error) {
	res := target.(*resource)

	d.mu.Lock()
	defer d.mu.Unlock()

	slot := d.nextSlot
	d.nextSlot++
	v := &view{dev: d, res: res, viewType: viewType, desc: desc, slot: slot}
	d.viewSlots.Put(slot, v)
	d.liveObjects++
	return v, nil
}

func (d *Device) CreateSwapChain(desc gapi.SwapChainDescription) (gapi.NativeSwapChain, error) {
	sc := &swapChain{dev: d, desc: desc}
	if err := sc.createBackbuffers(); err != nil {
		return nil, err
	}
	d.objectCreated()
	return sc, nil
}

// CopyableFootprints lays the requested subresources out in a linear buffer
// with D3D12 alignment rules: each placement starts on a 512-byte boundary
// and every row pitch is rounded up to 256 bytes.
func (d *Device) CopyableFootprints(desc gapi.GpuResourceDescription, firstSubresource, numSubresources uint32, baseOffset uint64) ([]gapi.PlacedFootprint, uint64) {
	info := desc.Format.Info()

	footprints := make([]gapi.PlacedFootprint, 0, numSubresources)
	cursor := baseOffset
	for i := uint32(0); i < numSubresources; i++ {
		mip := desc.SubresourceMipLevel(firstSubresource + i)
		width, height, depth := desc.MipDimensions(mip)

		rowSize := uint64(width) * uint64(info.BytesPerTexel)
		rowPitch := gpuutils.AlignUp(rowSize, gapi.TextureDataPitchAlignment)
		offset := gpuutils.AlignUp(cursor, gapi.TextureDataPlacementAlignment)

		footprints = append(footprints, gapi.PlacedFootprint{
			Offset:         offset,
			Format:         desc.Format,
			Width:          width,
			Height:         height,
			Depth:          depth,
			NumRows:        height,
			RowSizeInBytes: rowSize,
			RowPitch:       rowPitch,
		})
		cursor = offset + rowPitch*uint64(height)*uint64(depth)
	}

	return footprints, cursor - baseOffset
}

// Destroy tears the device down. Remaining live objects mean the frontend
// leaked handles; that is reported as an error rather than ignored.
func (d *Device) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.liveObjects != 0 {
		return errors.Newf("soft: %d native objects leaked at device teardown", d.liveObjects)
	}
	d.fences = nil
	return nil
}

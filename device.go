package gapi

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/openframe/gapi/gpuutils"
)

const gpuIdleTimeout = 10 * time.Second

// DeviceOptions configure device creation. The zero value selects the first
// registered backend and default heap page sizes.
type DeviceOptions struct {
	// BackendName selects a registered backend by name; empty means the
	// first one registered.
	BackendName string
	// UploadHeapPageSize and ReadbackHeapPageSize override the staging heap
	// page size; zero means DefaultHeapPageSize.
	UploadHeapPageSize   uint64
	ReadbackHeapPageSize uint64
}

// Device is the root object of the API: it owns the backend device, the
// graphics queue, the staging heaps, the deferred release context and the
// frame fence. All methods are called from the single device thread unless
// noted otherwise. There is no global device; callers create and own one
// explicitly.
type Device struct {
	logger  *slog.Logger
	backend BackendDevice
	opener  Backend

	release       *ReleaseContext
	graphicsQueue *CommandQueue
	frameFence    *Fence

	uploadHeap   *GpuMemoryHeap
	readbackHeap *GpuMemoryHeap
	heaps        []*GpuMemoryHeap
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// NewDevice opens a backend device and builds the frontend around it. A nil
// logger discards all log output. Any failure during construction tears down
// everything already built; no half-initialized device escapes.
func NewDevice(logger *slog.Logger, options DeviceOptions) (*Device, error) {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	opener, err := lookupBackend(options.BackendName)
	if err != nil {
		return nil, err
	}

	backend, err := opener.Open(logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening backend %q", opener.Name())
	}

	dev := &Device{
		logger:  logger,
		backend: backend,
		opener:  opener,
	}
	if err := dev.initialize(options); err != nil {
		backend.Destroy()
		opener.Close()
		return nil, err
	}

	logger.LogAttrs(context.Background(), slog.LevelInfo, "gapi device created",
		slog.String("backend", opener.Name()))

	return dev, nil
}

func (d *Device) initialize(options DeviceOptions) error {
	release, err := newReleaseContext(d.backend, d.logger)
	if err != nil {
		return err
	}
	d.release = release

	queue, err := newCommandQueue(d.backend, release, CommandQueueGraphics, "Graphics")
	if err != nil {
		return err
	}
	d.graphicsQueue = queue

	fence, err := newFence(d.backend, release, "Frame", 0)
	if err != nil {
		return err
	}
	d.frameFence = fence

	upload, err := newGpuMemoryHeap(d.backend, fence, CpuAccessWrite, options.UploadHeapPageSize, "UploadHeap")
	if err != nil {
		return err
	}
	d.uploadHeap = upload
	d.heaps = append(d.heaps, upload)

	readback, err := newGpuMemoryHeap(d.backend, fence, CpuAccessRead, options.ReadbackHeapPageSize, "ReadbackHeap")
	if err != nil {
		return err
	}
	d.readbackHeap = readback
	d.heaps = append(d.heaps, readback)

	return nil
}

// GraphicsQueue returns the device's graphics command queue.
func (d *Device) GraphicsQueue() *CommandQueue { return d.graphicsQueue }

// BackendDevice exposes the underlying backend device, mainly so tests can
// reach backend-specific controls.
func (d *Device) BackendDevice() BackendDevice { return d.backend }

// CreateTexture materializes a texture resource.
func (d *Device) CreateTexture(desc GpuResourceDescription, bindFlags BindFlags, cpuAccess CpuAccess, name string) (*Texture, error) {
	if desc.IsBuffer() {
		panic("gapi: CreateTexture with a buffer description")
	}
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid description for texture %q", name)
	}
	gpuutils.DebugValidate(desc)

	native, err := d.backend.CreateResource(desc, bindFlags, cpuAccess, name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating texture %q", name)
	}

	return &Texture{GpuResource: GpuResource{
		name:        name,
		description: desc,
		bindFlags:   bindFlags,
		cpuAccess:   cpuAccess,
		dev:         d,
		native:      native,
	}}, nil
}

// CreateBuffer materializes a linear buffer of size bytes. Buffers are
// addressed with 32-bit element ranges, so sizes above 4 GiB are rejected
// rather than truncated.
func (d *Device) CreateBuffer(size uint64, bindFlags BindFlags, cpuAccess CpuAccess, name string) (*Buffer, error) {
	if size > math.MaxUint32 {
		return nil, errors.Newf("buffer %q of %d bytes exceeds the %d byte resource limit", name, size, uint64(math.MaxUint32))
	}
	desc := NewBufferDescription(size)
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid description for buffer %q", name)
	}

	native, err := d.backend.CreateResource(desc, bindFlags, cpuAccess, name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating buffer %q", name)
	}

	return &Buffer{GpuResource: GpuResource{
		name:        name,
		description: desc,
		bindFlags:   bindFlags,
		cpuAccess:   cpuAccess,
		dev:         d,
		native:      native,
	}}, nil
}

// CreateFence creates a fence starting at initialValue.
func (d *Device) CreateFence(name string, initialValue uint64) (*Fence, error) {
	return newFence(d.backend, d.release, name, initialValue)
}

// CreateCommandQueue creates an additional queue of the given class.
func (d *Device) CreateCommandQueue(queueType CommandQueueType, name string) (*CommandQueue, error) {
	return newCommandQueue(d.backend, d.release, queueType, name)
}

// CreateCommandList creates a command list with its own allocator ring.
func (d *Device) CreateCommandList(listType CommandListType, name string) (*CommandList, error) {
	return newCommandList(d, listType, name)
}

// CreateMemoryHeap creates an additional staging heap, tracked by the device
// so its retired pages are recycled each frame.
func (d *Device) CreateMemoryHeap(cpuAccess CpuAccess, pageSize uint64, name string) (*GpuMemoryHeap, error) {
	heap, err := newGpuMemoryHeap(d.backend, d.frameFence, cpuAccess, pageSize, name)
	if err != nil {
		return nil, err
	}
	d.heaps = append(d.heaps, heap)
	return heap, nil
}

// AllocateIntermediateTextureData reserves staging memory for a run of
// subresources of desc, laid out the way the backend requires for placed
// copies. Pass MaxPossible for numSubresources to cover everything from
// firstSubresource onward. Upload and Readback allocations come out of the
// device heaps; CpuReadWrite allocations are plain CPU memory with a tight
// layout of the same footprints.
func (d *Device) AllocateIntermediateTextureData(desc GpuResourceDescription, memoryType MemoryAllocationType, firstSubresource, numSubresources uint32) (*IntermediateMemory, error) {
	total := desc.NumSubresources()
	if numSubresources == MaxPossible {
		if firstSubresource >= total {
			panic(errors.Newf("gapi: first subresource %d out of %d", firstSubresource, total))
		}
		numSubresources = total - firstSubresource
	}
	if firstSubresource+numSubresources > total {
		panic(errors.Newf("gapi: subresource range [%d, %d) exceeds the %d subresources of %s",
			firstSubresource, firstSubresource+numSubresources, total, desc))
	}

	placed, size := d.backend.CopyableFootprints(desc, firstSubresource, numSubresources, 0)

	memory := &IntermediateMemory{
		allocation:       &MemoryAllocation{memoryType: memoryType, size: size},
		footprints:       make([]SubresourceFootprint, len(placed)),
		firstSubresource: firstSubresource,
	}
	for i, footprint := range placed {
		memory.footprints[i] = SubresourceFootprint{
			Offset:         footprint.Offset,
			NumRows:        footprint.NumRows,
			RowSizeInBytes: footprint.RowSizeInBytes,
			RowPitch:       footprint.RowPitch,
			DepthPitch:     footprint.RowPitch * uint64(footprint.NumRows),
			Width:          footprint.Width,
			Depth:          footprint.Depth,
		}
	}

	switch memoryType {
	case MemoryAllocationUpload:
		allocation, err := d.uploadHeap.Allocate(size, TextureDataPlacementAlignment)
		if err != nil {
			return nil, err
		}
		memory.allocation.heap = allocation
	case MemoryAllocationReadback:
		allocation, err := d.readbackHeap.Allocate(size, TextureDataPlacementAlignment)
		if err != nil {
			return nil, err
		}
		memory.allocation.heap = allocation
	case MemoryAllocationCpuReadWrite:
		memory.allocation.cpuData = make([]byte, size)
	default:
		panic(errors.Newf("gapi: unknown memory allocation type %d", memoryType))
	}

	return memory, nil
}

// PendingReleases returns the number of deferred releases still waiting on
// the GPU.
func (d *Device) PendingReleases() int {
	return d.release.PendingReleases()
}

// Submit submits the list to the graphics queue.
func (d *Device) Submit(list *CommandList) error {
	return d.graphicsQueue.Submit(list)
}

// WaitForGpu signals the frame fence on the graphics queue and blocks until
// the GPU reaches it, leaving the queue fully drained.
func (d *Device) WaitForGpu() error {
	if _, err := d.frameFence.Signal(d.graphicsQueue); err != nil {
		return err
	}
	return d.frameFence.SyncCPU(nil, gpuIdleTimeout)
}

// MoveToNextFrame runs the per-frame maintenance after all of the frame's
// work has been submitted: deferred deletions the GPU has finished with are
// destroyed, the frame fence advances, and the staging heaps recycle pages
// the GPU no longer reads.
func (d *Device) MoveToNextFrame() error {
	if err := d.release.ExecuteDeferredDeletions(d.graphicsQueue); err != nil {
		return err
	}
	if _, err := d.frameFence.Signal(d.graphicsQueue); err != nil {
		return err
	}
	for _, heap := range d.heaps {
		heap.ReleaseUsedPages()
	}
	return nil
}

// Present presents the swap chain's current backbuffer and paces the frame
// ring. Equivalent to swapChain.Present.
func (d *Device) Present(swapChain *SwapChain) error {
	return swapChain.Present()
}

// BuildStatsString renders the device's resource statistics as JSON. With
// detailed set, heaps include their full page maps.
func (d *Device) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	obj.Name("Backend").String(d.opener.Name())
	obj.Name("PendingReleases").Int(d.release.PendingReleases())
	obj.Name("FrameFenceCpuValue").Int(int(d.frameFence.CpuValue()))
	obj.Name("FrameFenceGpuValue").Int(int(d.frameFence.GpuValue()))

	heaps := obj.Name("Heaps").Object()
	for _, heap := range d.heaps {
		heap.statsJson(&heaps, detailed)
	}
	heaps.End()
	obj.End()

	if writer.Error() != nil {
		return ""
	}
	return string(writer.Bytes())
}

// Destroy drains the GPU, destroys everything the device owns and closes the
// backend. All user-created resources, lists, queues and swap chains must be
// released first; deferred releases that cannot drain are a leak and panic.
func (d *Device) Destroy() error {
	if err := d.WaitForGpu(); err != nil && !errors.Is(err, ErrDeviceLost) {
		return err
	}

	for _, heap := range d.heaps {
		heap.release(d.release)
	}
	d.heaps = nil
	d.uploadHeap = nil
	d.readbackHeap = nil

	if err := d.release.drainAll(d.graphicsQueue); err != nil && !errors.Is(err, ErrDeviceLost) {
		return err
	}

	d.release.Destroy()
	d.frameFence.releaseDirect()
	d.graphicsQueue.releaseDirect()

	if err := d.backend.Destroy(); err != nil {
		return errors.Wrap(err, "destroying backend device")
	}
	d.opener.Close()

	d.logger.LogAttrs(context.Background(), slog.LevelInfo, "gapi device destroyed",
		slog.String("backend", d.opener.Name()))
	return nil
}

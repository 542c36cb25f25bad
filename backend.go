package gapi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ResourceState is the scheduling state a resource must be transitioned to
// before the GPU may access it in a given role.
type ResourceState uint32

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateCopyDest
	ResourceStateCopySource
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	// ResourceStateGenericRead is the permanent state of CPU-visible
	// (upload/readback heap) resources; they are never transitioned.
	ResourceStateGenericRead
)

var resourceStateMapping = map[ResourceState]string{
	ResourceStateCommon:       "Common",
	ResourceStateCopyDest:     "CopyDest",
	ResourceStateCopySource:   "CopySource",
	ResourceStateRenderTarget: "RenderTarget",
	ResourceStateDepthWrite:   "DepthWrite",
	ResourceStateGenericRead:  "GenericRead",
}

func (s ResourceState) String() string { return resourceStateMapping[s] }

// ResourceViewType distinguishes the four typed lenses onto a resource.
type ResourceViewType uint32

const (
	ResourceViewShaderResource ResourceViewType = iota
	ResourceViewRenderTarget
	ResourceViewDepthStencil
	ResourceViewUnorderedAccess
)

var resourceViewTypeMapping = map[ResourceViewType]string{
	ResourceViewShaderResource:  "ShaderResource",
	ResourceViewRenderTarget:    "RenderTarget",
	ResourceViewDepthStencil:    "DepthStencil",
	ResourceViewUnorderedAccess: "UnorderedAccess",
}

func (t ResourceViewType) String() string { return resourceViewTypeMapping[t] }

// CommandQueueType selects the hardware queue class a queue submits to.
type CommandQueueType uint32

const (
	CommandQueueGraphics CommandQueueType = iota
	CommandQueueCompute
	CommandQueueCopy
)

// CommandListType selects the command class a list may record. It must match
// the queue type the list is submitted to.
type CommandListType uint32

const (
	CommandListGraphics CommandListType = iota
	CommandListCompute
	CommandListCopy
)

// Point3 is a texel offset into a texture subresource.
type Point3 struct {
	X, Y, Z uint32
}

// Box3 is a sub-box of a texture subresource, in texels.
type Box3 struct {
	Left, Top, Front     uint32
	Width, Height, Depth uint32
}

// PlacedFootprint is the backend-computed byte layout of one subresource
// placed inside a linear buffer: where it starts and how its rows are pitched.
type PlacedFootprint struct {
	Offset         uint64
	Format         Format
	Width          uint32
	Height         uint32
	Depth          uint32
	NumRows        uint32
	RowSizeInBytes uint64
	RowPitch       uint64
}

// Placement alignment rules for staging copies between linear buffers and
// texture subresources.
const (
	// TextureDataPlacementAlignment is the minimum byte alignment of a
	// placed subresource inside a staging buffer.
	TextureDataPlacementAlignment = 512
	// TextureDataPitchAlignment is the byte alignment every staging row
	// pitch is rounded up to.
	TextureDataPitchAlignment = 256
)

// NativeHandle is any backend object whose destruction must be deferred
// until the GPU has finished consuming it. Release is invoked exactly once,
// by the deferred release context, never directly by the frontend.
type NativeHandle interface {
	Release()
}

// NativeFence is the backend's completion counter. CompletedValue never
// decreases; Wait blocks until the counter reaches value, returning
// ErrTimeout or ErrDeviceLost on failure.
type NativeFence interface {
	NativeHandle
	CompletedValue() uint64
	Wait(value uint64, timeout time.Duration) error
}

// NativeQueue executes closed command lists in submission order and carries
// fence signal/wait operations for cross-timeline dependencies.
type NativeQueue interface {
	NativeHandle
	Submit(list NativeList) error
	Signal(fence NativeFence, value uint64) error
	Wait(fence NativeFence, value uint64) error
}

// NativeAllocator is the backing memory commands are recorded into. Reset
// reclaims that memory and must only be called once the GPU has retired all
// lists recorded against the allocator; the frontend ring pool guarantees
// this.
type NativeAllocator interface {
	NativeHandle
	Reset() error
}

// NativeList records GPU commands. The frontend guarantees single-threaded
// recording and the Recording/Closed state discipline; implementations do
// not need to revalidate it.
type NativeList interface {
	NativeHandle
	Reset(allocator NativeAllocator) error
	Close() error

	Transition(resource NativeResource, before, after ResourceState)
	CopyResource(dest, source NativeResource)
	CopySubresource(dest NativeResource, destIndex uint32, source NativeResource, sourceIndex uint32)
	CopySubresourceRegion(dest NativeResource, destIndex uint32, destPoint Point3, source NativeResource, sourceIndex uint32, sourceBox Box3)
	CopyBufferRegion(dest NativeResource, destOffset uint64, source NativeResource, sourceOffset uint64, numBytes uint64)
	CopyFromPlaced(dest NativeResource, destIndex uint32, buffer NativeResource, footprint PlacedFootprint)
	CopyToPlaced(buffer NativeResource, footprint PlacedFootprint, source NativeResource, sourceIndex uint32)
	ClearRenderTarget(view NativeView, color [4]float32)
}

// NativeResource is a materialized texture or buffer. Map is only valid for
// CPU-visible resources and returns the full backing range.
type NativeResource interface {
	NativeHandle
	Map() ([]byte, error)
	Unmap()
}

// NativeView is a materialized descriptor for a typed resource view.
type NativeView interface {
	NativeHandle
}

// NativeSwapChain owns the presentable backbuffer chain.
type NativeSwapChain interface {
	NativeHandle
	Backbuffer(index uint32) (NativeResource, error)
	Present() error
	Reset(desc SwapChainDescription) error
}

// BackendDevice is the per-device entry point a backend provides. All
// methods are called from the single device thread.
type BackendDevice interface {
	CreateFence(name string, initialValue uint64) (NativeFence, error)
	CreateQueue(queueType CommandQueueType, name string) (NativeQueue, error)
	CreateCommandAllocator(listType CommandListType, name string) (NativeAllocator, error)
	CreateCommandList(listType CommandListType, allocator NativeAllocator, name string) (NativeList, error)
	CreateResource(desc GpuResourceDescription, bindFlags BindFlags, cpuAccess CpuAccess, name string) (NativeResource, error)
	CreateView(resource NativeResource, viewType ResourceViewType, desc ResourceViewDescription) (NativeView, error)
	CreateSwapChain(desc SwapChainDescription) (NativeSwapChain, error)

	// CopyableFootprints computes the placed byte layout the backend
	// requires for copying numSubresources subresources, starting at
	// firstSubresource, through a linear buffer beginning at baseOffset.
	// It also returns the total staging size in bytes.
	CopyableFootprints(desc GpuResourceDescription, firstSubresource, numSubresources uint32, baseOffset uint64) ([]PlacedFootprint, uint64)

	Destroy() error
}

// Backend creates devices for one underlying graphics API. Implementations
// register themselves from an init function.
type Backend interface {
	Name() string
	Open(logger *slog.Logger) (BackendDevice, error)
	Close()
}

// Variables used for backend registration.
var (
	registryMu sync.Mutex
	registry   []Backend
)

// Register registers a Backend. Backend packages are expected to call
// Register exactly once, from an init function. A backend with a name that
// is already registered replaces the previous registration.
func Register(backend Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i := range registry {
		if registry[i].Name() == backend.Name() {
			registry[i] = backend
			return
		}
	}
	registry = append(registry, backend)
}

// Backends returns the registered Backends in registration order.
func Backends() []Backend {
	registryMu.Lock()
	defer registryMu.Unlock()
	result := make([]Backend, len(registry))
	copy(result, registry)
	return result
}

func lookupBackend(name string) (Backend, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(registry) == 0 {
		return nil, errors.Wrap(ErrBackendNotAvailable, "no backends registered")
	}
	if name == "" {
		return registry[0], nil
	}
	for _, backend := range registry {
		if backend.Name() == name {
			return backend, nil
		}
	}
	return nil, errors.Wrapf(ErrBackendNotAvailable, "no backend named %q", name)
}

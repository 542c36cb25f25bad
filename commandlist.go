package gapi

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// AllocatorsCount is the number of command allocators each list rotates
// through. Three allows the CPU to record one frame while up to two earlier
// frames are still in flight on the GPU.
const AllocatorsCount = 3

// commandAllocatorPool rotates a command list through AllocatorsCount native
// allocators so recording never touches memory the GPU is still reading.
// nextAllocator hands out the cursor entry after the ring check proves its
// previous frame retired; resetAfterSubmit advances and signals, exactly once
// per submission cycle.
type commandAllocatorPool struct {
	ring *fencedRing[NativeAllocator]
}

func newCommandAllocatorPool(dev BackendDevice, release *ReleaseContext, listType CommandListType, name string) (*commandAllocatorPool, error) {
	ring, err := newFencedRing(dev, release, name, AllocatorsCount, func(index int) (NativeAllocator, error) {
		return dev.CreateCommandAllocator(listType, fmt.Sprintf("%s::allocator%d", name, index))
	})
	if err != nil {
		return nil, err
	}
	return &commandAllocatorPool{ring: ring}, nil
}

func (p *commandAllocatorPool) nextAllocator() (NativeAllocator, error) {
	allocator := p.ring.next()
	if err := allocator.Reset(); err != nil {
		return nil, errors.Wrap(err, "resetting command allocator")
	}
	return allocator, nil
}

func (p *commandAllocatorPool) resetAfterSubmit(queue *CommandQueue) error {
	return p.ring.moveNext(queue)
}

func (p *commandAllocatorPool) release(rc *ReleaseContext) {
	p.ring.forEach(func(allocator NativeAllocator) {
		rc.DeferredRelease(allocator)
	})
	p.ring.fence.Release()
}

type commandListState uint32

const (
	commandListRecording commandListState = iota
	commandListClosed
)

// CommandList records GPU commands into the current allocator of its ring
// pool. A list is Recording from creation (and after each resetAfterSubmit)
// until Close; recording into a closed list or closing twice is a programming
// error and panics. Not safe for concurrent recording.
type CommandList struct {
	name     string
	listType CommandListType
	dev      *Device
	native   NativeList
	pool     *commandAllocatorPool
	state    commandListState
}

func newCommandList(dev *Device, listType CommandListType, name string) (*CommandList, error) {
	pool, err := newCommandAllocatorPool(dev.backend, dev.release, listType, name)
	if err != nil {
		return nil, err
	}

	allocator, err := pool.nextAllocator()
	if err != nil {
		pool.release(dev.release)
		return nil, err
	}

	native, err := dev.backend.CreateCommandList(listType, allocator, name)
	if err != nil {
		pool.release(dev.release)
		return nil, errors.Wrapf(err, "creating command list %q", name)
	}

	return &CommandList{
		name:     name,
		listType: listType,
		dev:      dev,
		native:   native,
		pool:     pool,
		state:    commandListRecording,
	}, nil
}

// Name returns the debug name the list was created with.
func (l *CommandList) Name() string { return l.name }

// Type returns the command class the list records.
func (l *CommandList) Type() CommandListType { return l.listType }

func (l *CommandList) mustRecord() NativeList {
	if l.native == nil {
		panic("gapi: use of released command list " + l.name)
	}
	if l.state != commandListRecording {
		panic("gapi: recording into closed command list " + l.name)
	}
	return l.native
}

// checkCopyAccess enforces the CPU access modes a copy may legally touch:
// sources can live in upload memory, destinations cannot be CPU-visible
// at all.
func checkCopyAccess(dest, source *GpuResource) {
	if source.cpuAccess == CpuAccessRead {
		panic("gapi: copy source " + source.name + " is readback memory")
	}
	if dest.cpuAccess != CpuAccessNone {
		panic("gapi: copy destination " + dest.name + " is CPU-visible")
	}
}

// transition records a state barrier unless the resource is CPU-visible.
// Upload and readback resources live permanently in GenericRead and are
// never transitioned.
func (l *CommandList) transition(resource *GpuResource, before, after ResourceState) {
	if resource.cpuAccess != CpuAccessNone {
		return
	}
	l.native.Transition(resource.mustNative(), before, after)
}

// CopyTexture copies the whole of source into dest. The two descriptions
// must be equal; anything else is a programming error.
func (l *CommandList) CopyTexture(dest, source *Texture) {
	list := l.mustRecord()
	checkCopyAccess(&dest.GpuResource, &source.GpuResource)

	if dest.description != source.description {
		panic(errors.Newf("gapi: whole-resource copy between mismatched descriptions %s and %s",
			dest.description, source.description))
	}

	l.transition(&source.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	l.transition(&dest.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	list.CopyResource(dest.mustNative(), source.mustNative())
	l.transition(&dest.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
	l.transition(&source.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// CopyTextureSubresource copies one subresource of source into one
// subresource of dest. The addressed mip levels must have equal extents.
func (l *CommandList) CopyTextureSubresource(dest *Texture, destIndex uint32, source *Texture, sourceIndex uint32) {
	list := l.mustRecord()
	checkCopyAccess(&dest.GpuResource, &source.GpuResource)

	if destIndex >= dest.description.NumSubresources() {
		panic(errors.Newf("gapi: subresource %d out of %d on %q", destIndex, dest.description.NumSubresources(), dest.name))
	}
	if sourceIndex >= source.description.NumSubresources() {
		panic(errors.Newf("gapi: subresource %d out of %d on %q", sourceIndex, source.description.NumSubresources(), source.name))
	}

	dw, dh, dd := dest.description.MipDimensions(dest.description.SubresourceMipLevel(destIndex))
	sw, sh, sd := source.description.MipDimensions(source.description.SubresourceMipLevel(sourceIndex))
	if dw != sw || dh != sh || dd != sd {
		panic(errors.Newf("gapi: subresource copy between mismatched extents %dx%dx%d and %dx%dx%d", dw, dh, dd, sw, sh, sd))
	}

	l.transition(&source.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	l.transition(&dest.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	list.CopySubresource(dest.mustNative(), destIndex, source.mustNative(), sourceIndex)
	l.transition(&dest.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
	l.transition(&source.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// CopyTextureSubresourceRegion copies sourceBox out of one subresource of
// source to destPoint in one subresource of dest. The box must fit both
// subresources.
func (l *CommandList) CopyTextureSubresourceRegion(dest *Texture, destIndex uint32, destPoint Point3, source *Texture, sourceIndex uint32, sourceBox Box3) {
	list := l.mustRecord()
	checkCopyAccess(&dest.GpuResource, &source.GpuResource)

	if destIndex >= dest.description.NumSubresources() {
		panic(errors.Newf("gapi: subresource %d out of %d on %q", destIndex, dest.description.NumSubresources(), dest.name))
	}
	if sourceIndex >= source.description.NumSubresources() {
		panic(errors.Newf("gapi: subresource %d out of %d on %q", sourceIndex, source.description.NumSubresources(), source.name))
	}

	sw, sh, sd := source.description.MipDimensions(source.description.SubresourceMipLevel(sourceIndex))
	if sourceBox.Left+sourceBox.Width > sw || sourceBox.Top+sourceBox.Height > sh || sourceBox.Front+sourceBox.Depth > sd {
		panic(errors.Newf("gapi: source box exceeds subresource %d of %q (%dx%dx%d)", sourceIndex, source.name, sw, sh, sd))
	}
	dw, dh, dd := dest.description.MipDimensions(dest.description.SubresourceMipLevel(destIndex))
	if destPoint.X+sourceBox.Width > dw || destPoint.Y+sourceBox.Height > dh || destPoint.Z+sourceBox.Depth > dd {
		panic(errors.Newf("gapi: copy region exceeds subresource %d of %q (%dx%dx%d)", destIndex, dest.name, dw, dh, dd))
	}

	l.transition(&source.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	l.transition(&dest.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	list.CopySubresourceRegion(dest.mustNative(), destIndex, destPoint, source.mustNative(), sourceIndex, sourceBox)
	l.transition(&dest.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
	l.transition(&source.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// CopyBuffer copies the whole of source into dest. The buffers must be the
// same size.
func (l *CommandList) CopyBuffer(dest, source *Buffer) {
	list := l.mustRecord()
	checkCopyAccess(&dest.GpuResource, &source.GpuResource)

	if dest.Size() != source.Size() {
		panic(errors.Newf("gapi: whole-buffer copy between mismatched sizes %d and %d", dest.Size(), source.Size()))
	}

	l.transition(&source.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	l.transition(&dest.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	list.CopyResource(dest.mustNative(), source.mustNative())
	l.transition(&dest.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
	l.transition(&source.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// CopyBufferRegion copies numBytes from sourceOffset in source to destOffset
// in dest. The ranges must fit their buffers.
func (l *CommandList) CopyBufferRegion(dest *Buffer, destOffset uint64, source *Buffer, sourceOffset uint64, numBytes uint64) {
	list := l.mustRecord()
	checkCopyAccess(&dest.GpuResource, &source.GpuResource)

	if sourceOffset+numBytes > source.Size() {
		panic(errors.Newf("gapi: source range [%d, %d) exceeds buffer %q of %d bytes", sourceOffset, sourceOffset+numBytes, source.name, source.Size()))
	}
	if destOffset+numBytes > dest.Size() {
		panic(errors.Newf("gapi: dest range [%d, %d) exceeds buffer %q of %d bytes", destOffset, destOffset+numBytes, dest.name, dest.Size()))
	}

	l.transition(&source.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	l.transition(&dest.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	list.CopyBufferRegion(dest.mustNative(), destOffset, source.mustNative(), sourceOffset, numBytes)
	l.transition(&dest.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
	l.transition(&source.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// UpdateTexture copies staged subresource data from an Upload allocation into
// texture. The backend recomputes each placed footprint from the texture
// description and it must match the layout the allocation was built with;
// a mismatch means the data was staged for a different resource shape.
func (l *CommandList) UpdateTexture(texture *Texture, memory *IntermediateMemory) {
	list := l.mustRecord()

	if memory.allocation.MemoryType() != MemoryAllocationUpload {
		panic("gapi: UpdateTexture requires an Upload allocation, got " + memory.allocation.MemoryType().String())
	}
	if texture.cpuAccess != CpuAccessNone {
		panic("gapi: UpdateTexture destination " + texture.name + " is CPU-visible")
	}

	heapAlloc := memory.allocation.heapAllocation()
	placed, _ := l.dev.backend.CopyableFootprints(texture.description, memory.firstSubresource, memory.NumSubresources(), heapAlloc.Offset())

	l.transition(&texture.GpuResource, ResourceStateCommon, ResourceStateCopyDest)
	for i, footprint := range placed {
		stored := memory.footprints[i]
		if footprint.NumRows != stored.NumRows || footprint.RowSizeInBytes != stored.RowSizeInBytes || footprint.RowPitch != stored.RowPitch {
			panic(errors.Newf("gapi: staged footprint for subresource %d of %q does not match the texture layout",
				memory.firstSubresource+uint32(i), texture.name))
		}
		list.CopyFromPlaced(texture.mustNative(), memory.firstSubresource+uint32(i), heapAlloc.Resource(), footprint)
	}
	l.transition(&texture.GpuResource, ResourceStateCopyDest, ResourceStateCommon)
}

// ReadbackTexture copies subresource data out of texture into a Readback
// allocation, to be read on the CPU once the GPU has retired the copy.
func (l *CommandList) ReadbackTexture(memory *IntermediateMemory, texture *Texture) {
	list := l.mustRecord()

	if memory.allocation.MemoryType() != MemoryAllocationReadback {
		panic("gapi: ReadbackTexture requires a Readback allocation, got " + memory.allocation.MemoryType().String())
	}
	if texture.cpuAccess != CpuAccessNone {
		panic("gapi: ReadbackTexture source " + texture.name + " is CPU-visible")
	}

	heapAlloc := memory.allocation.heapAllocation()
	placed, _ := l.dev.backend.CopyableFootprints(texture.description, memory.firstSubresource, memory.NumSubresources(), heapAlloc.Offset())

	l.transition(&texture.GpuResource, ResourceStateCommon, ResourceStateCopySource)
	for i, footprint := range placed {
		stored := memory.footprints[i]
		if footprint.NumRows != stored.NumRows || footprint.RowSizeInBytes != stored.RowSizeInBytes || footprint.RowPitch != stored.RowPitch {
			panic(errors.Newf("gapi: staged footprint for subresource %d of %q does not match the texture layout",
				memory.firstSubresource+uint32(i), texture.name))
		}
		list.CopyToPlaced(heapAlloc.Resource(), footprint, texture.mustNative(), memory.firstSubresource+uint32(i))
	}
	l.transition(&texture.GpuResource, ResourceStateCopySource, ResourceStateCommon)
}

// ClearRenderTargetView records a clear of the render target view to color.
func (l *CommandList) ClearRenderTargetView(view *ResourceView, color [4]float32) {
	list := l.mustRecord()

	if view.viewType != ResourceViewRenderTarget {
		panic("gapi: clearing a " + view.viewType.String() + " view as a render target")
	}

	l.transition(view.resource, ResourceStateCommon, ResourceStateRenderTarget)
	list.ClearRenderTarget(view.native, color)
	l.transition(view.resource, ResourceStateRenderTarget, ResourceStateCommon)
}

// Close ends recording. A closed list can only be submitted; closing twice
// panics.
func (l *CommandList) Close() error {
	if l.state == commandListClosed {
		panic("gapi: closing already closed command list " + l.name)
	}
	if err := l.native.Close(); err != nil {
		return errors.Wrapf(err, "closing command list %q", l.name)
	}
	l.state = commandListClosed
	return nil
}

// resetAfterSubmit rotates the allocator ring, signals its fence on queue and
// reopens the list for recording on the next allocator. Called by
// CommandQueue.Submit, exactly once per submission.
func (l *CommandList) resetAfterSubmit(queue *CommandQueue) error {
	if err := l.pool.resetAfterSubmit(queue); err != nil {
		return err
	}

	allocator, err := l.pool.nextAllocator()
	if err != nil {
		return err
	}
	if err := l.native.Reset(allocator); err != nil {
		return errors.Wrapf(err, "reopening command list %q", l.name)
	}
	l.state = commandListRecording
	return nil
}

// Release pushes the native list and its allocator ring into the deferred
// release queue. The CommandList must not be used afterwards.
func (l *CommandList) Release() {
	if l.native == nil {
		return
	}
	l.pool.release(l.dev.release)
	l.dev.release.DeferredRelease(l.native)
	l.native = nil
}

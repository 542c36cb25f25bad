package soft

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/openframe/gapi"
)

// allocator is the backing store commands are recorded into: a plain op
// slice. Reset reclaims it; the frontend ring pool guarantees the GPU is done
// with the ops by then.
type allocator struct {
	dev  *Device
	name string
	ops  []op
}

func (a *allocator) Reset() error {
	a.ops = a.ops[:0]
	return nil
}

func (a *allocator) Release() {
	a.ops = nil
	a.dev.objectReleased()
}

type op interface {
	execute(dev *Device)
}

// commandList records typed ops into its current allocator. Execution
// happens at submit, on the queue.
type commandList struct {
	dev       *Device
	name      string
	allocator *allocator
	closed    bool
}

func (l *commandList) record(o op) {
	if l.closed {
		panic("soft: recording into closed list " + l.name)
	}
	l.allocator.ops = append(l.allocator.ops, o)
}

func (l *commandList) Reset(alloc gapi.NativeAllocator) error {
	l.allocator = alloc.(*allocator)
	l.closed = false
	return nil
}

func (l *commandList) Close() error {
	if l.closed {
		return errors.Newf("soft: closing already closed list %q", l.name)
	}
	l.closed = true
	return nil
}

func (l *commandList) Release() {
	l.dev.objectReleased()
}

func (l *commandList) Transition(res gapi.NativeResource, before, after gapi.ResourceState) {
	l.record(&opTransition{res: res.(*resource), before: before, after: after})
}

func (l *commandList) CopyResource(dest, source gapi.NativeResource) {
	l.record(&opCopyResource{dest: dest.(*resource), source: source.(*resource)})
}

func (l *commandList) CopySubresource(dest gapi.NativeResource, destIndex uint32, source gapi.NativeResource, sourceIndex uint32) {
	l.record(&opCopySubresource{
		dest: dest.(*resource), destIndex: destIndex,
		source: source.(*resource), sourceIndex: sourceIndex,
	})
}

func (l *commandList) CopySubresourceRegion(dest gapi.NativeResource, destIndex uint32, destPoint gapi.Point3, source gapi.NativeResource, sourceIndex uint32, sourceBox gapi.Box3) {
	l.record(&opCopyRegion{
		dest: dest.(*resource), destIndex: destIndex, destPoint: destPoint,
		source: source.(*resource), sourceIndex: sourceIndex, sourceBox: sourceBox,
	})
}

func (l *commandList) CopyBufferRegion(dest gapi.NativeResource, destOffset uint64, source gapi.NativeResource, sourceOffset uint64, numBytes uint64) {
	l.record(&opCopyBufferRegion{
		dest: dest.(*resource), destOffset: destOffset,
		source: source.(*resource), sourceOffset: sourceOffset,
		numBytes: numBytes,
	})
}

func (l *commandList) CopyFromPlaced(dest gapi.NativeResource, destIndex uint32, buffer gapi.NativeResource, footprint gapi.PlacedFootprint) {
	l.record(&opCopyPlaced{
		texture: dest.(*resource), textureIndex: destIndex,
		buffer: buffer.(*resource), footprint: footprint,
		toTexture: true,
	})
}

func (l *commandList) CopyToPlaced(buffer gapi.NativeResource, footprint gapi.PlacedFootprint, source gapi.NativeResource, sourceIndex uint32) {
	l.record(&opCopyPlaced{
		texture: source.(*resource), textureIndex: sourceIndex,
		buffer: buffer.(*resource), footprint: footprint,
		toTexture: false,
	})
}

func (l *commandList) ClearRenderTarget(target gapi.NativeView, color [4]float32) {
	l.record(&opClear{view: target.(*view), color: color})
}

type opTransition struct {
	res           *resource
	before, after gapi.ResourceState
}

func (o *opTransition) execute(*Device) {
	o.res.mustLive()
	if o.res.cpuAccess != gapi.CpuAccessNone {
		panic("soft: transition of CPU-visible resource " + o.res.name)
	}
	if o.res.state != o.before {
		panic(errors.Newf("soft: transition of %q from %s, but it is in %s", o.res.name, o.before, o.res.state))
	}
	o.res.state = o.after
}

type opCopyResource struct {
	dest, source *resource
}

func (o *opCopyResource) execute(*Device) {
	o.source.requireState(gapi.ResourceStateCopySource, "copy source")
	o.dest.requireState(gapi.ResourceStateCopyDest, "copy destination")

	for i := range o.dest.slabs {
		copy(o.dest.slabs[i], o.source.slabs[i])
	}
}

type opCopySubresource struct {
	dest        *resource
	destIndex   uint32
	source      *resource
	sourceIndex uint32
}

func (o *opCopySubresource) execute(*Device) {
	o.source.requireState(gapi.ResourceStateCopySource, "copy source")
	o.dest.requireState(gapi.ResourceStateCopyDest, "copy destination")

	destSlab, _, _, _ := o.dest.subresource(o.destIndex)
	sourceSlab, _, _, _ := o.source.subresource(o.sourceIndex)
	copy(destSlab, sourceSlab)
}

type opCopyRegion struct {
	dest        *resource
	destIndex   uint32
	destPoint   gapi.Point3
	source      *resource
	sourceIndex uint32
	sourceBox   gapi.Box3
}

func (o *opCopyRegion) execute(*Device) {
	o.source.requireState(gapi.ResourceStateCopySource, "copy source")
	o.dest.requireState(gapi.ResourceStateCopyDest, "copy destination")

	texel := uint64(o.dest.desc.Format.Info().BytesPerTexel)
	destSlab, destRowBytes, destRows, _ := o.dest.subresource(o.destIndex)
	sourceSlab, sourceRowBytes, sourceRows, _ := o.source.subresource(o.sourceIndex)

	spanBytes := uint64(o.sourceBox.Width) * texel
	for z := uint32(0); z < o.sourceBox.Depth; z++ {
		destSlice := uint64(o.destPoint.Z+z) * destRowBytes * uint64(destRows)
		sourceSlice := uint64(o.sourceBox.Front+z) * sourceRowBytes * uint64(sourceRows)

		for y := uint32(0); y < o.sourceBox.Height; y++ {
			destRow := destSlice + uint64(o.destPoint.Y+y)*destRowBytes + uint64(o.destPoint.X)*texel
			sourceRow := sourceSlice + uint64(o.sourceBox.Top+y)*sourceRowBytes + uint64(o.sourceBox.Left)*texel
			copy(destSlab[destRow:destRow+spanBytes], sourceSlab[sourceRow:sourceRow+spanBytes])
		}
	}
}

type opCopyBufferRegion struct {
	dest         *resource
	destOffset   uint64
	source       *resource
	sourceOffset uint64
	numBytes     uint64
}

func (o *opCopyBufferRegion) execute(*Device) {
	o.source.requireState(gapi.ResourceStateCopySource, "copy source")
	o.dest.requireState(gapi.ResourceStateCopyDest, "copy destination")

	copy(o.dest.slabs[0][o.destOffset:o.destOffset+o.numBytes],
		o.source.slabs[0][o.sourceOffset:o.sourceOffset+o.numBytes])
}

// opCopyPlaced moves one texture subresource through its placed layout in a
// linear buffer, converting between the buffer's pitched rows and the
// texture's tight slab.
type opCopyPlaced struct {
	texture      *resource
	textureIndex uint32
	buffer       *resource
	footprint    gapi.PlacedFootprint
	toTexture    bool
}

func (o *opCopyPlaced) execute(*Device) {
	if o.toTexture {
		o.buffer.requireState(gapi.ResourceStateCopySource, "copy source")
		o.texture.requireState(gapi.ResourceStateCopyDest, "copy destination")
	} else {
		o.texture.requireState(gapi.ResourceStateCopySource, "copy source")
		o.buffer.requireState(gapi.ResourceStateCopyDest, "copy destination")
	}

	slab, rowBytes, numRows, depth := o.texture.subresource(o.textureIndex)
	fp := o.footprint
	if fp.NumRows != numRows || fp.RowSizeInBytes != rowBytes {
		panic(errors.Newf("soft: placed footprint (%d rows of %d bytes) does not match subresource %d of %q (%d rows of %d bytes)",
			fp.NumRows, fp.RowSizeInBytes, o.textureIndex, o.texture.name, numRows, rowBytes))
	}

	bufferSlab := o.buffer.slabs[0]
	for z := uint32(0); z < depth; z++ {
		bufferSlice := fp.Offset + uint64(z)*fp.RowPitch*uint64(fp.NumRows)
		textureSlice := uint64(z) * rowBytes * uint64(numRows)

		for y := uint32(0); y < numRows; y++ {
			bufferRow := bufferSlice + uint64(y)*fp.RowPitch
			textureRow := textureSlice + uint64(y)*rowBytes

			if o.toTexture {
				copy(slab[textureRow:textureRow+rowBytes], bufferSlab[bufferRow:bufferRow+rowBytes])
			} else {
				copy(bufferSlab[bufferRow:bufferRow+rowBytes], slab[textureRow:textureRow+rowBytes])
			}
		}
	}
}

type opClear struct {
	view  *view
	color [4]float32
}

func (o *opClear) execute(*Device) {
	res := o.view.res
	res.requireState(gapi.ResourceStateRenderTarget, "clear target")

	texel := encodeTexel(o.view.desc.Format, o.color)
	desc := o.view.desc
	base := res.desc.SubresourceIndex(desc.MipLevel, desc.FirstArraySlice)
	for slice := uint32(0); slice < desc.ArraySliceCount; slice++ {
		slab, _, _, _ := res.subresource(base + slice*res.desc.MipLevels)
		for offset := 0; offset < len(slab); offset += len(texel) {
			copy(slab[offset:], texel)
		}
	}
}

func encodeTexel(format gapi.Format, color [4]float32) []byte {
	clamp := func(v float32) byte {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return byte(v*255 + 0.5)
	}

	switch format {
	case gapi.FormatRGBA8Unorm:
		return []byte{clamp(color[0]), clamp(color[1]), clamp(color[2]), clamp(color[3])}
	case gapi.FormatBGRA8Unorm:
		return []byte{clamp(color[2]), clamp(color[1]), clamp(color[0]), clamp(color[3])}
	case gapi.FormatRGBA8Uint:
		return []byte{byte(color[0]), byte(color[1]), byte(color[2]), byte(color[3])}
	case gapi.FormatR32Float:
		texel := make([]byte, 4)
		binary.LittleEndian.PutUint32(texel, math.Float32bits(color[0]))
		return texel
	case gapi.FormatRGBA32Float:
		texel := make([]byte, 16)
		for i, channel := range color {
			binary.LittleEndian.PutUint32(texel[i*4:], math.Float32bits(channel))
		}
		return texel
	default:
		panic(errors.Newf("soft: clear is not implemented for format %s", format))
	}
}

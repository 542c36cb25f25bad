package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/openframe/gapi"
)

// resource is a materialized texture or buffer: one tightly packed byte slab
// per subresource, plus the scheduling state the command stream must keep in
// step with its barriers.
type resource struct {
	dev       *Device
	name      string
	desc      gapi.GpuResourceDescription
	cpuAccess gapi.CpuAccess
	state     gapi.ResourceState
	slabs     [][]byte
	mapped    bool
	released  bool
}

func newResource(dev *Device, desc gapi.GpuResourceDescription, cpuAccess gapi.CpuAccess, name string) (*resource, error) {
	res := &resource{
		dev:       dev,
		name:      name,
		desc:      desc,
		cpuAccess: cpuAccess,
		state:     gapi.ResourceStateCommon,
	}
	if cpuAccess != gapi.CpuAccessNone {
		if !desc.IsBuffer() {
			return nil, errors.Newf("soft: CPU-visible textures are not supported, %q must stage through a buffer", name)
		}
		res.state = gapi.ResourceStateGenericRead
	}

	if desc.IsBuffer() {
		res.slabs = [][]byte{make([]byte, desc.Width)}
		return res, nil
	}

	info := desc.Format.Info()
	count := desc.NumSubresources()
	res.slabs = make([][]byte, count)
	for i := uint32(0); i < count; i++ {
		width, height, depth := desc.MipDimensions(desc.SubresourceMipLevel(i))
		rowBytes := uint64(width) * uint64(info.BytesPerTexel)
		res.slabs[i] = make([]byte, rowBytes*uint64(height)*uint64(depth))
	}
	return res, nil
}

func (r *resource) mustLive() {
	if r.released {
		panic("soft: use of released resource " + r.name)
	}
}

// requireState panics unless the resource is in wanted. CPU-visible
// resources live permanently in GenericRead and satisfy every access.
func (r *resource) requireState(wanted gapi.ResourceState, role string) {
	r.mustLive()
	if r.state == gapi.ResourceStateGenericRead {
		return
	}
	if r.state != wanted {
		panic(errors.Newf("soft: %s %q is in state %s, expected %s; a transition barrier is missing",
			role, r.name, r.state, wanted))
	}
}

// subresource returns the tight slab of one subresource along with its row
// geometry.
func (r *resource) subresource(index uint32) (slab []byte, rowBytes uint64, numRows, depth uint32) {
	r.mustLive()
	if index >= uint32(len(r.slabs)) {
		panic(errors.Newf("soft: subresource %d out of %d on %q", index, len(r.slabs), r.name))
	}
	if r.desc.IsBuffer() {
		slab = r.slabs[0]
		return slab, uint64(len(slab)), 1, 1
	}

	info := r.desc.Format.Info()
	width, height, d := r.desc.MipDimensions(r.desc.SubresourceMipLevel(index))
	return r.slabs[index], uint64(width) * uint64(info.BytesPerTexel), height, d
}

func (r *resource) Map() ([]byte, error) {
	r.mustLive()
	if r.cpuAccess == gapi.CpuAccessNone {
		return nil, errors.Newf("soft: mapping %q, which is not CPU-visible", r.name)
	}
	r.mapped = true
	return r.slabs[0], nil
}

func (r *resource) Unmap() {
	r.mustLive()
	r.mapped = false
}

func (r *resource) Release() {
	if r.released {
		panic("soft: double release of resource " + r.name)
	}
	r.released = true
	r.slabs = nil
	r.dev.objectReleased()
}

// view is a descriptor slot entry. The device keeps all live views in its
// slot table so swap chain resets can detect dangling backbuffer views.
type view struct {
	dev      *Device
	res      *resource
	viewType gapi.ResourceViewType
	desc     gapi.ResourceViewDescription
	slot     uint32
}

func (v *view) Release() {
	v.dev.mu.Lock()
	if _, ok := v.dev.viewSlots.Get(v.slot); !ok {
		v.dev.mu.Unlock()
		panic("soft: double release of view slot")
	}
	v.dev.viewSlots.Delete(v.slot)
	v.dev.liveObjects--
	v.dev.mu.Unlock()
}

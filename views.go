package gapi

// ResourceViewDescription is the canonical cache key for a resource view.
// It is always stored fully resolved: "max possible" sentinels expanded
// against the resource's actual mip and array counts, FormatUnknown replaced
// by the resource format. Two logically identical requests therefore resolve
// to the same key and hit the same cache entry.
//
// Texture views use the mip/array fields; buffer views use the element
// fields. The unused half stays zero.
type ResourceViewDescription struct {
	Format Format

	MipLevel        uint32
	MipCount        uint32
	FirstArraySlice uint32
	ArraySliceCount uint32

	FirstElement uint32
	ElementCount uint32
}

// ResourceView is a typed, range-scoped lens onto a GPU resource, backed by
// a native descriptor. Views are owned and cached by their resource; the
// same resolved description always yields the same *ResourceView.
type ResourceView struct {
	viewType    ResourceViewType
	description ResourceViewDescription
	native      NativeView
	resource    *GpuResource
}

// Type returns the view's kind (SRV, RTV, DSV or UAV).
func (v *ResourceView) Type() ResourceViewType { return v.viewType }

// Description returns the fully resolved view description.
func (v *ResourceView) Description() ResourceViewDescription { return v.description }

// Resource returns the resource the view was created from.
func (v *ResourceView) Resource() *GpuResource { return v.resource }

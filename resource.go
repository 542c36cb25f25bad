package gapi

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// GpuResource is the shared body of Texture and Buffer: the logical
// description, the materialized native handle, and one lazily populated view
// cache per view type. Resource-mutating paths (view creation, release) run
// on the single device thread; there is no internal locking.
type GpuResource struct {
	name        string
	description GpuResourceDescription
	bindFlags   BindFlags
	cpuAccess   CpuAccess

	dev      *Device
	native   NativeResource
	released bool

	viewCaches [4]*swiss.Map[ResourceViewDescription, *ResourceView]
}

// Name returns the debug name the resource was created with.
func (r *GpuResource) Name() string { return r.name }

// Description returns the resource's logical shape.
func (r *GpuResource) Description() GpuResourceDescription { return r.description }

// BindFlags returns the pipeline capabilities the resource was created with.
func (r *GpuResource) BindFlags() BindFlags { return r.bindFlags }

// CpuAccess returns the CPU access mode the resource was created with.
func (r *GpuResource) CpuAccess() CpuAccess { return r.cpuAccess }

func (r *GpuResource) mustNative() NativeResource {
	if r.released {
		panic("gapi: use of released resource " + r.name)
	}
	return r.native
}

// Release drops the resource's ownership of its native objects: the handle
// and every cached view are pushed into the device's deferred release queue,
// stamped with the current fence tick, and destroyed only once the GPU has
// passed it. Safe to call more than once; any use after Release panics.
func (r *GpuResource) Release() {
	if r.released {
		return
	}
	r.released = true

	r.dropViews()
	r.dev.release.DeferredRelease(r.native)
	r.native = nil
}

func (r *GpuResource) dropViews() {
	for i, cache := range r.viewCaches {
		if cache == nil {
			continue
		}
		cache.Iter(func(_ ResourceViewDescription, view *ResourceView) bool {
			r.dev.release.DeferredRelease(view.native)
			return false
		})
		r.viewCaches[i] = nil
	}
}

// invalidate is Release for resources whose native handle the frontend does
// not own, i.e. swap chain backbuffers: cached views are deferred as usual,
// the handle itself is merely dropped.
func (r *GpuResource) invalidate() {
	if r.released {
		return
	}
	r.released = true
	r.dropViews()
	r.native = nil
}

var viewTypeBindRequirements = map[ResourceViewType]BindFlags{
	ResourceViewShaderResource:  BindShaderResource,
	ResourceViewRenderTarget:    BindRenderTarget,
	ResourceViewDepthStencil:    BindDepthStencil,
	ResourceViewUnorderedAccess: BindUnorderedAccess,
}

// resolveTextureView expands sentinel ranges and the Unknown format against
// the resource's actual layout and bounds-checks the result. The returned
// description is canonical: equal requests resolve equal.
func (r *GpuResource) resolveTextureView(format Format, mipLevel, mipCount, firstArraySlice, arraySliceCount uint32) (ResourceViewDescription, error) {
	desc := r.description
	if desc.IsBuffer() {
		return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView, "texture view requested on buffer %q", r.name)
	}

	arraySlices := desc.NumArraySlices()
	if mipCount == MaxPossible {
		if mipLevel >= desc.MipLevels {
			return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView, "mip level %d out of %d on %q", mipLevel, desc.MipLevels, r.name)
		}
		mipCount = desc.MipLevels - mipLevel
	}
	if arraySliceCount == MaxPossible {
		if firstArraySlice >= arraySlices {
			return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView, "array slice %d out of %d on %q", firstArraySlice, arraySlices, r.name)
		}
		arraySliceCount = arraySlices - firstArraySlice
	}

	if format == FormatUnknown {
		if desc.Format.IsDepthStencil() {
			return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView,
				"%q has combined depth-stencil format %s, the view must name one plane explicitly", r.name, desc.Format)
		}
		format = desc.Format
	}

	if mipLevel+mipCount > desc.MipLevels {
		return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView,
			"mip range [%d, %d) exceeds the %d mips of %q", mipLevel, mipLevel+mipCount, desc.MipLevels, r.name)
	}
	if firstArraySlice+arraySliceCount > arraySlices {
		return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView,
			"array range [%d, %d) exceeds the %d slices of %q", firstArraySlice, firstArraySlice+arraySliceCount, arraySlices, r.name)
	}

	return ResourceViewDescription{
		Format:          format,
		MipLevel:        mipLevel,
		MipCount:        mipCount,
		FirstArraySlice: firstArraySlice,
		ArraySliceCount: arraySliceCount,
	}, nil
}

// resolveBufferView is the element-range flavor of resolveTextureView.
func (r *GpuResource) resolveBufferView(firstElement, elementCount uint32) (ResourceViewDescription, error) {
	desc := r.description
	if !desc.IsBuffer() {
		return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView, "buffer view requested on texture %q", r.name)
	}

	numElements := desc.Width
	if elementCount == MaxPossible {
		if firstElement >= numElements {
			return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView, "element %d out of %d on %q", firstElement, numElements, r.name)
		}
		elementCount = numElements - firstElement
	}
	if firstElement+elementCount > numElements {
		return ResourceViewDescription{}, errors.Wrapf(ErrIncompatibleView,
			"element range [%d, %d) exceeds the %d elements of %q", firstElement, firstElement+elementCount, numElements, r.name)
	}

	return ResourceViewDescription{
		FirstElement: firstElement,
		ElementCount: elementCount,
	}, nil
}

// view returns the cached view for the resolved description, materializing
// it through the backend on first request. The bind-flag capability check
// happens here, at construction time, not on cache hits of already-proven
// descriptions.
func (r *GpuResource) view(viewType ResourceViewType, viewDesc ResourceViewDescription) (*ResourceView, error) {
	native := r.mustNative()

	required := viewTypeBindRequirements[viewType]
	if r.bindFlags&required == 0 {
		return nil, errors.Wrapf(ErrIncompatibleView, "%s view requires the matching bind flag on %q", viewType, r.name)
	}

	cache := r.viewCaches[viewType]
	if cache == nil {
		cache = swiss.NewMap[ResourceViewDescription, *ResourceView](8)
		r.viewCaches[viewType] = cache
	}
	if view, ok := cache.Get(viewDesc); ok {
		return view, nil
	}

	nativeView, err := r.dev.backend.CreateView(native, viewType, viewDesc)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s view on %q", viewType, r.name)
	}

	view := &ResourceView{
		viewType:    viewType,
		description: viewDesc,
		native:      nativeView,
		resource:    r,
	}
	cache.Put(viewDesc, view)

	return view, nil
}

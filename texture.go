package gapi

// Texture is a GPU texture resource. Views are created lazily and cached per
// resolved description, so repeated Get calls with the same arguments return
// the same view.
type Texture struct {
	GpuResource
}

// GetSRV returns the shader resource view covering the given mip and array
// range. Pass MaxPossible to cover everything from the first index onward,
// and FormatUnknown to reuse the resource format; combined depth-stencil
// resources must name one plane explicitly.
func (t *Texture) GetSRV(format Format, mipLevel, mipCount, firstArraySlice, arraySliceCount uint32) (*ResourceView, error) {
	desc, err := t.resolveTextureView(format, mipLevel, mipCount, firstArraySlice, arraySliceCount)
	if err != nil {
		return nil, err
	}
	return t.view(ResourceViewShaderResource, desc)
}

// GetRTV returns the render target view for one mip level and array range.
func (t *Texture) GetRTV(format Format, mipLevel, firstArraySlice, arraySliceCount uint32) (*ResourceView, error) {
	desc, err := t.resolveTextureView(format, mipLevel, 1, firstArraySlice, arraySliceCount)
	if err != nil {
		return nil, err
	}
	return t.view(ResourceViewRenderTarget, desc)
}

// GetDSV returns the depth-stencil view for one mip level and array range.
func (t *Texture) GetDSV(format Format, mipLevel, firstArraySlice, arraySliceCount uint32) (*ResourceView, error) {
	desc, err := t.resolveTextureView(format, mipLevel, 1, firstArraySlice, arraySliceCount)
	if err != nil {
		return nil, err
	}
	return t.view(ResourceViewDepthStencil, desc)
}

// GetUAV returns the unordered access view for one mip level and array range.
func (t *Texture) GetUAV(format Format, mipLevel, firstArraySlice, arraySliceCount uint32) (*ResourceView, error) {
	desc, err := t.resolveTextureView(format, mipLevel, 1, firstArraySlice, arraySliceCount)
	if err != nil {
		return nil, err
	}
	return t.view(ResourceViewUnorderedAccess, desc)
}

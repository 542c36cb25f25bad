package gapi

// Buffer is a linear GPU buffer resource.
type Buffer struct {
	GpuResource
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() uint64 {
	return uint64(b.description.Width)
}

// GetSRV returns the shader resource view over an element range. Pass
// MaxPossible for elementCount to cover the rest of the buffer.
func (b *Buffer) GetSRV(firstElement, elementCount uint32) (*ResourceView, error) {
	desc, err := b.resolveBufferView(firstElement, elementCount)
	if err != nil {
		return nil, err
	}
	return b.view(ResourceViewShaderResource, desc)
}

// GetUAV returns the unordered access view over an element range.
func (b *Buffer) GetUAV(firstElement, elementCount uint32) (*ResourceView, error) {
	desc, err := b.resolveBufferView(firstElement, elementCount)
	if err != nil {
		return nil, err
	}
	return b.view(ResourceViewUnorderedAccess, desc)
}

// Map returns the buffer's bytes for CPU access. Only valid for CPU-visible
// buffers; anything else fails in the backend.
func (b *Buffer) Map() ([]byte, error) {
	return b.mustNative().Map()
}

// Unmap releases a mapping taken by Map.
func (b *Buffer) Unmap() {
	b.mustNative().Unmap()
}

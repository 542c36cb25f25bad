package gapi

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/openframe/gapi/gpuutils"
)

// DefaultHeapPageSize is the page size staging heaps are created with unless
// the device options override it.
const DefaultHeapPageSize uint64 = 4 << 20

type heapPage struct {
	index      uint32
	size       uint64
	offset     uint64
	fenceValue uint64
	resource   NativeResource
}

// HeapAllocation is a region carved out of a heap page: an offset plus the
// page's native buffer. The allocation stays valid until the heap recycles
// the page, which only happens after the GPU has drained the frame the page
// was retired in.
type HeapAllocation struct {
	size   uint64
	offset uint64
	page   *heapPage
}

// Offset returns the allocation's byte offset within its page buffer.
func (a HeapAllocation) Offset() uint64 { return a.offset }

// Size returns the allocation's size in bytes.
func (a HeapAllocation) Size() uint64 { return a.size }

// Resource returns the native buffer backing the allocation's page.
func (a HeapAllocation) Resource() NativeResource { return a.page.resource }

// Map maps the containing page and returns the allocation's byte range.
func (a HeapAllocation) Map() ([]byte, error) {
	data, err := a.page.resource.Map()
	if err != nil {
		return nil, errors.Wrapf(err, "mapping heap allocation at offset %d", a.offset)
	}
	return data[a.offset : a.offset+a.size], nil
}

// Unmap releases the page mapping taken by Map.
func (a HeapAllocation) Unmap() {
	a.page.resource.Unmap()
}

// HeapStats is a point-in-time summary of a heap's page and allocation
// footprint.
type HeapStats struct {
	PageCount       int
	PageBytes       uint64
	AllocationCount int
	AllocationBytes uint64
}

// GpuMemoryHeap is a page-based bump allocator over CPU-visible buffers,
// used for staging texture and buffer data. Allocation is O(1) amortized: a
// page serves requests until one would overflow it, then it is retired to
// the used list (stamped with the heap fence's CPU value) and a fresh or
// recycled page takes over. Retired pages return to a FIFO free list once
// the GPU has passed their stamp.
//
// Owned by one device and not safe for concurrent use.
type GpuMemoryHeap struct {
	name            string
	dev             BackendDevice
	fence           *Fence
	cpuAccess       CpuAccess
	defaultPageSize uint64

	pageIndex uint32
	current   *heapPage
	freePages []*heapPage
	usedPages []*heapPage

	stats HeapStats
}

func newGpuMemoryHeap(dev BackendDevice, fence *Fence, cpuAccess CpuAccess, pageSize uint64, name string) (*GpuMemoryHeap, error) {
	if cpuAccess == CpuAccessNone {
		panic("gapi: staging heap " + name + " must be CPU-visible")
	}
	if pageSize == 0 {
		pageSize = DefaultHeapPageSize
	}

	heap := &GpuMemoryHeap{
		name:            name,
		dev:             dev,
		fence:           fence,
		cpuAccess:       cpuAccess,
		defaultPageSize: pageSize,
	}

	page, err := heap.nextPage(0)
	if err != nil {
		return nil, err
	}
	heap.current = page

	return heap, nil
}

// Allocate carves size bytes, aligned to alignment, out of the current page.
// When the aligned cursor would overflow the page, the page is retired and a
// new one sized max(size, default page size) takes over: an outsized request
// gets a page of exactly its own size, never a clamped one.
func (h *GpuMemoryHeap) Allocate(size, alignment uint64) (HeapAllocation, error) {
	if h.current == nil {
		panic("gapi: heap " + h.name + " used after release")
	}
	if size == 0 {
		panic("gapi: zero-size heap allocation")
	}
	if err := gpuutils.CheckPow2(alignment, "alignment"); err != nil {
		return HeapAllocation{}, err
	}

	pageOffset := gpuutils.AlignUp(h.current.offset, alignment)
	if pageOffset+size > h.current.size {
		h.current.fenceValue = h.fence.CpuValue()
		h.usedPages = append(h.usedPages, h.current)
		h.current = nil

		page, err := h.nextPage(size)
		if err != nil {
			return HeapAllocation{}, err
		}
		h.current = page
		pageOffset = 0
	}

	allocation := HeapAllocation{
		size:   size,
		offset: pageOffset,
		page:   h.current,
	}
	h.current.offset = pageOffset + size

	h.stats.AllocationCount++
	h.stats.AllocationBytes += size

	return allocation, nil
}

func (h *GpuMemoryHeap) nextPage(allocSize uint64) (*heapPage, error) {
	if len(h.freePages) > 0 && h.freePages[0].size > allocSize {
		page := h.freePages[0]
		h.freePages = h.freePages[1:]
		page.offset = 0
		page.fenceValue = 0
		return page, nil
	}

	pageSize := allocSize
	if pageSize < h.defaultPageSize {
		pageSize = h.defaultPageSize
	}
	// Page buffers carry 32-bit sizes; a larger request would truncate.
	if pageSize > math.MaxUint32 {
		return nil, errors.Newf("page of %d bytes for heap %q exceeds the %d byte resource limit", pageSize, h.name, uint64(math.MaxUint32))
	}

	desc := NewBufferDescription(pageSize)
	resource, err := h.dev.CreateResource(desc, BindNone, h.cpuAccess, fmt.Sprintf("%s::%d", h.name, h.pageIndex))
	if err != nil {
		return nil, errors.Wrapf(err, "allocating page %d of heap %q (%d bytes)", h.pageIndex, h.name, pageSize)
	}

	page := &heapPage{
		index:    h.pageIndex,
		size:     pageSize,
		resource: resource,
	}
	h.pageIndex++
	h.stats.PageCount++
	h.stats.PageBytes += pageSize

	return page, nil
}

// ReleaseUsedPages returns retired pages whose stamped fence value the GPU
// has passed to the free list. The device calls this once per frame after
// advancing the heap fence.
func (h *GpuMemoryHeap) ReleaseUsedPages() {
	gpuValue := h.fence.GpuValue()

	kept := h.usedPages[:0]
	for _, page := range h.usedPages {
		if page.fenceValue < gpuValue {
			page.offset = 0
			page.fenceValue = 0
			h.freePages = append(h.freePages, page)
		} else {
			kept = append(kept, page)
		}
	}
	h.usedPages = kept
}

// Stats returns the heap's current page and allocation counters.
func (h *GpuMemoryHeap) Stats() HeapStats {
	return h.stats
}

// release pushes every page buffer into the deferred release queue. The
// heap must not be used afterwards.
func (h *GpuMemoryHeap) release(rc *ReleaseContext) {
	if h.current != nil {
		rc.DeferredRelease(h.current.resource)
		h.current = nil
	}
	for _, page := range h.usedPages {
		rc.DeferredRelease(page.resource)
	}
	h.usedPages = nil
	for _, page := range h.freePages {
		rc.DeferredRelease(page.resource)
	}
	h.freePages = nil
}

func (h *GpuMemoryHeap) statsJson(json *jwriter.ObjectState, detailed bool) {
	obj := json.Name(h.name).Object()
	defer obj.End()

	obj.Name("PageCount").Int(h.stats.PageCount)
	obj.Name("PageBytes").Int(int(h.stats.PageBytes))
	obj.Name("AllocationCount").Int(h.stats.AllocationCount)
	obj.Name("AllocationBytes").Int(int(h.stats.AllocationBytes))

	if !detailed {
		return
	}

	pages := obj.Name("Pages").Array()
	defer pages.End()

	writePage := func(page *heapPage, state string) {
		pageObj := pages.Object()
		pageObj.Name("Index").Int(int(page.index))
		pageObj.Name("Size").Int(int(page.size))
		pageObj.Name("Offset").Int(int(page.offset))
		pageObj.Name("FenceValue").Int(int(page.fenceValue))
		pageObj.Name("State").String(state)
		pageObj.End()
	}

	if h.current != nil {
		writePage(h.current, "current")
	}
	for _, page := range h.usedPages {
		writePage(page, "used")
	}
	for _, page := range h.freePages {
		writePage(page, "free")
	}
}

package gapi

import (
	"github.com/cockroachdb/errors"
)

// MemoryAllocationType selects which memory class a staging allocation lives
// in: GPU-visible upload or readback heap pages, or plain CPU memory.
type MemoryAllocationType uint32

const (
	MemoryAllocationUpload MemoryAllocationType = iota
	MemoryAllocationReadback
	MemoryAllocationCpuReadWrite
)

var memoryAllocationTypeMapping = map[MemoryAllocationType]string{
	MemoryAllocationUpload:       "Upload",
	MemoryAllocationReadback:     "Readback",
	MemoryAllocationCpuReadWrite: "CpuReadWrite",
}

func (t MemoryAllocationType) String() string { return memoryAllocationTypeMapping[t] }

// MemoryAllocation is one staging allocation: a heap region for Upload and
// Readback types, plain bytes for CpuReadWrite.
type MemoryAllocation struct {
	memoryType MemoryAllocationType
	size       uint64
	heap       HeapAllocation
	cpuData    []byte
}

// MemoryType returns the allocation's memory class.
func (a *MemoryAllocation) MemoryType() MemoryAllocationType { return a.memoryType }

// Size returns the allocation size in bytes.
func (a *MemoryAllocation) Size() uint64 { return a.size }

// Map returns the allocation's bytes for CPU access.
func (a *MemoryAllocation) Map() ([]byte, error) {
	if a.memoryType == MemoryAllocationCpuReadWrite {
		return a.cpuData, nil
	}
	return a.heap.Map()
}

// Unmap releases a mapping taken by Map.
func (a *MemoryAllocation) Unmap() {
	if a.memoryType == MemoryAllocationCpuReadWrite {
		return
	}
	a.heap.Unmap()
}

func (a *MemoryAllocation) heapAllocation() HeapAllocation {
	if a.memoryType == MemoryAllocationCpuReadWrite {
		panic("gapi: CpuReadWrite allocations have no GPU-visible backing")
	}
	return a.heap
}

// SubresourceFootprint describes the byte layout of one subresource inside a
// staging allocation, relative to the allocation's start.
type SubresourceFootprint struct {
	Offset         uint64
	NumRows        uint32
	RowSizeInBytes uint64
	RowPitch       uint64
	DepthPitch     uint64
	Width          uint32
	Depth          uint32
}

// Compatible reports whether row-by-row copies between the two footprints
// are meaningful: same row count and same payload bytes per row. Pitches may
// differ; offsets always do.
func (f SubresourceFootprint) Compatible(other SubresourceFootprint) bool {
	return f.NumRows == other.NumRows && f.RowSizeInBytes == other.RowSizeInBytes
}

// IntermediateMemory is a staging allocation plus the per-subresource
// footprints the backend requires for copying it to or from a real GPU
// resource. It is allocated on demand, held until the copy or readback
// completes, then dropped; nothing is cached.
type IntermediateMemory struct {
	allocation       *MemoryAllocation
	footprints       []SubresourceFootprint
	firstSubresource uint32
}

// Allocation returns the backing staging allocation.
func (m *IntermediateMemory) Allocation() *MemoryAllocation { return m.allocation }

// FirstSubresource returns the index of the first subresource covered.
func (m *IntermediateMemory) FirstSubresource() uint32 { return m.firstSubresource }

// NumSubresources returns the number of subresources covered.
func (m *IntermediateMemory) NumSubresources() uint32 { return uint32(len(m.footprints)) }

// Footprints returns the per-subresource byte layouts, indexed relative to
// FirstSubresource.
func (m *IntermediateMemory) Footprints() []SubresourceFootprint { return m.footprints }

// FootprintAt returns the byte layout of the index-th covered subresource.
func (m *IntermediateMemory) FootprintAt(index uint32) SubresourceFootprint {
	return m.footprints[index]
}

// CopyDataFrom copies the payload bytes of every covered subresource from
// source on the CPU, row by row, honoring each side's pitches. The two
// allocations must cover the same number of subresources with compatible
// footprints; anything else is a programming error.
func (m *IntermediateMemory) CopyDataFrom(source *IntermediateMemory) error {
	if source == nil {
		panic("gapi: CopyDataFrom with nil source")
	}
	if m == source {
		panic("gapi: CopyDataFrom with itself")
	}
	if m.NumSubresources() != source.NumSubresources() {
		panic(errors.Newf("gapi: staging copy with mismatched subresource counts %d and %d",
			m.NumSubresources(), source.NumSubresources()))
	}

	destData, err := m.allocation.Map()
	if err != nil {
		return err
	}
	defer m.allocation.Unmap()

	sourceData, err := source.allocation.Map()
	if err != nil {
		return err
	}
	defer source.allocation.Unmap()

	for index := range m.footprints {
		destFootprint := m.footprints[index]
		sourceFootprint := source.footprints[index]
		if !destFootprint.Compatible(sourceFootprint) {
			panic(errors.Newf("gapi: incompatible footprints for subresource %d: %d rows of %d bytes vs %d rows of %d bytes",
				index, destFootprint.NumRows, destFootprint.RowSizeInBytes, sourceFootprint.NumRows, sourceFootprint.RowSizeInBytes))
		}

		for slice := uint32(0); slice < destFootprint.Depth; slice++ {
			destSlice := destFootprint.Offset + uint64(slice)*destFootprint.DepthPitch
			sourceSlice := sourceFootprint.Offset + uint64(slice)*sourceFootprint.DepthPitch

			for row := uint32(0); row < destFootprint.NumRows; row++ {
				destRow := destSlice + uint64(row)*destFootprint.RowPitch
				sourceRow := sourceSlice + uint64(row)*sourceFootprint.RowPitch
				copy(destData[destRow:destRow+destFootprint.RowSizeInBytes],
					sourceData[sourceRow:sourceRow+sourceFootprint.RowSizeInBytes])
			}
		}
	}

	return nil
}

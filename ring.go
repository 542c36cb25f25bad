package gapi

import (
	"time"

	"github.com/cockroachdb/errors"
)

type ringEntry[T any] struct {
	payload    T
	fenceValue uint64
}

// fencedRing is a fixed-size ring of payloads, each stamped with the fence
// CPU value of its last hand-out. The same stamp-and-check argument backs
// both uses: the command allocator pool (next panics on reuse before the GPU
// passed the stamp) and per-frame presentation sync (waitCurrent blocks
// instead). The ring fence starts at 1 so untouched entries, stamped 0, pass
// the first-lap check.
type fencedRing[T any] struct {
	name    string
	entries []ringEntry[T]
	index   int
	fence   *Fence
}

func newFencedRing[T any](dev BackendDevice, release *ReleaseContext, name string, count int, create func(index int) (T, error)) (*fencedRing[T], error) {
	if count < 2 {
		panic(errors.Newf("gapi: ring %q needs at least two entries to overlap CPU and GPU work, got %d", name, count))
	}

	fence, err := newFence(dev, release, name+"::ring", 1)
	if err != nil {
		return nil, err
	}

	ring := &fencedRing[T]{
		name:    name,
		fence:   fence,
		entries: make([]ringEntry[T], 0, count),
	}
	for i := 0; i < count; i++ {
		payload, err := create(i)
		if err != nil {
			fence.Release()
			return nil, errors.Wrapf(err, "creating entry %d of ring %q", i, name)
		}
		ring.entries = append(ring.entries, ringEntry[T]{payload: payload})
	}

	return ring, nil
}

// next returns the payload at the ring cursor after verifying the GPU has
// passed the entry's previous stamp, then stamps it with the current fence
// CPU value. Handing out an entry whose prior work is still in flight would
// corrupt in-flight command buffers, so the check failing is fatal.
func (r *fencedRing[T]) next() T {
	entry := &r.entries[r.index]

	if gpuValue := r.fence.GpuValue(); entry.fenceValue >= gpuValue {
		panic(errors.Newf("gapi: ring %q entry %d reused before completion: stamped %d, gpu at %d",
			r.name, r.index, entry.fenceValue, gpuValue))
	}
	entry.fenceValue = r.fence.CpuValue()

	return entry.payload
}

// waitCurrent is the blocking flavor of next, used for frame pacing: it
// waits until the GPU has passed the current entry's stamp, then stamps and
// returns it.
func (r *fencedRing[T]) waitCurrent(timeout time.Duration) (T, error) {
	entry := &r.entries[r.index]

	if entry.fenceValue >= r.fence.GpuValue() {
		target := entry.fenceValue
		if err := r.fence.SyncCPU(&target, timeout); err != nil {
			var zero T
			return zero, err
		}
	}
	entry.fenceValue = r.fence.CpuValue()

	return entry.payload, nil
}

// moveNext advances the cursor and signals the ring fence on queue. Exactly
// one moveNext per hand-out cycle; the signal is what eventually licenses
// the reuse of the entry that was just retired.
func (r *fencedRing[T]) moveNext(queue *CommandQueue) error {
	r.index = (r.index + 1) % len(r.entries)
	_, err := r.fence.Signal(queue)
	return err
}

func (r *fencedRing[T]) forEach(fn func(payload T)) {
	for i := range r.entries {
		fn(r.entries[i].payload)
	}
}

func (r *fencedRing[T]) len() int { return len(r.entries) }

package gapi

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Fence pairs a monotonically increasing CPU-side counter with the GPU-side
// completion counter of a native fence. CpuValue is the next value that will
// be signaled; GpuValue is the value most recently completed by the GPU, so
// GpuValue <= CpuValue always holds. A Fence belongs to exactly one
// synchronization domain and is never shared in write mode.
type Fence struct {
	name     string
	native   NativeFence
	cpuValue uint64
	release  *ReleaseContext
}

func newFence(dev BackendDevice, release *ReleaseContext, name string, initialValue uint64) (*Fence, error) {
	native, err := dev.CreateFence(name, initialValue)
	if err != nil {
		return nil, errors.Wrapf(err, "creating fence %q", name)
	}

	return &Fence{
		name:     name,
		native:   native,
		cpuValue: initialValue + 1,
		release:  release,
	}, nil
}

func (f *Fence) mustNative() NativeFence {
	if f.native == nil {
		panic("gapi: use of released fence " + f.name)
	}
	return f.native
}

// Signal enqueues a GPU-side signal of the current CPU value on queue and
// advances the CPU value. It returns the value that will complete once the
// GPU retires all work submitted to queue before the signal.
func (f *Fence) Signal(queue *CommandQueue) (uint64, error) {
	signaled := f.cpuValue
	if err := queue.mustNative().Signal(f.mustNative(), signaled); err != nil {
		return 0, errors.Wrapf(err, "signaling fence %q at %d", f.name, signaled)
	}
	f.cpuValue++
	return signaled, nil
}

// SyncCPU blocks the calling thread until the GPU has completed target, or
// the last signaled value when target is nil. A wait that elapses returns
// ErrTimeout: the target was not reached and the caller must not assume
// otherwise. A removed device surfaces as ErrDeviceLost and must never be
// retried. Waiting for a value that was never signaled is a contract
// violation and panics.
func (f *Fence) SyncCPU(target *uint64, timeout time.Duration) error {
	value := f.cpuValue - 1
	if target != nil {
		value = *target
	}
	if value >= f.cpuValue {
		panic(errors.Newf("gapi: fence %q waiting for value %d which was never signaled (next is %d)", f.name, value, f.cpuValue))
	}

	native := f.mustNative()
	if native.CompletedValue() >= value {
		return nil
	}
	if err := native.Wait(value, timeout); err != nil {
		return errors.Wrapf(err, "waiting for fence %q to reach %d", f.name, value)
	}
	return nil
}

// SyncGPU makes queue wait, on the GPU timeline, for this fence to reach its
// last signaled value. Independent queues have no implicit ordering; this is
// the only way to express a cross-queue dependency.
func (f *Fence) SyncGPU(queue *CommandQueue) error {
	if err := queue.mustNative().Wait(f.mustNative(), f.cpuValue-1); err != nil {
		return errors.Wrapf(err, "queue wait on fence %q", f.name)
	}
	return nil
}

// GpuValue polls the value most recently completed by the GPU. Non-blocking.
func (f *Fence) GpuValue() uint64 {
	return f.mustNative().CompletedValue()
}

// CpuValue returns the next value that will be signaled, i.e. one past the
// count of signals issued plus the initial value.
func (f *Fence) CpuValue() uint64 {
	return f.cpuValue
}

// Release pushes the native fence into the deferred release queue. The Fence
// must not be used afterwards.
func (f *Fence) Release() {
	if f.native == nil {
		return
	}
	f.release.DeferredRelease(f.native)
	f.native = nil
}

// releaseDirect destroys the native fence immediately, bypassing the
// deferred queue. Only for fences that outlive it: the release context's own
// fence and the frame fence, both destroyed after the final GPU drain.
func (f *Fence) releaseDirect() {
	if f.native == nil {
		return
	}
	f.native.Release()
	f.native = nil
}

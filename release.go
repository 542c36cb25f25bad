package gapi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const releaseDrainTimeout = 10 * time.Second

type releaseEntry struct {
	fenceValue uint64
	native     NativeHandle
}

// ReleaseContext defers destruction of native objects until the GPU has
// finished all work that could touch them. Releasing a handle only enqueues
// it, stamped with the context fence's CPU value; the actual destruction
// happens in ExecuteDeferredDeletions, which the device runs once per frame.
//
// Enqueue and drain may race when submission runs on a background worker, so
// both paths hold the context mutex. Everything else on the device assumes
// the single device thread and is unguarded.
type ReleaseContext struct {
	mu     sync.RWMutex
	logger *slog.Logger
	fence  *Fence
	queue  []releaseEntry
}

func newReleaseContext(dev BackendDevice, logger *slog.Logger) (*ReleaseContext, error) {
	rc := &ReleaseContext{logger: logger}

	fence, err := newFence(dev, rc, "ResourceRelease", 0)
	if err != nil {
		return nil, err
	}
	rc.fence = fence

	return rc, nil
}

// DeferredRelease pushes native onto the tail of the queue, stamped with the
// current CPU fence value. Entries are naturally FIFO-ordered by stamp since
// fence values are monotonic with submission order.
func (rc *ReleaseContext) DeferredRelease(native NativeHandle) {
	if native == nil {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.queue = append(rc.queue, releaseEntry{
		fenceValue: rc.fence.CpuValue(),
		native:     native,
	})
}

// ExecuteDeferredDeletions destroys every queued entry the GPU has provably
// finished with, then signals the context fence on queue so entries enqueued
// from now on are stamped against the next tick. The device calls this once
// per submitted frame; it is never triggered by resource destruction itself.
func (rc *ReleaseContext) ExecuteDeferredDeletions(queue *CommandQueue) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	gpuValue := rc.fence.GpuValue()
	for len(rc.queue) > 0 && rc.queue[0].fenceValue < gpuValue {
		rc.queue[0].native.Release()
		rc.queue[0].native = nil
		rc.queue = rc.queue[1:]
	}

	if _, err := rc.fence.Signal(queue); err != nil {
		return err
	}
	return nil
}

// PendingReleases returns the number of entries still waiting on the GPU.
func (rc *ReleaseContext) PendingReleases() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.queue)
}

// drainAll alternates deletion passes with CPU waits on the context fence
// until the queue is empty. Each pass signals one value past the newest
// stamp, so the loop terminates once the GPU catches up. If the device is
// lost there is no GPU left to finish the work: the queue is force-drained
// so teardown can proceed.
func (rc *ReleaseContext) drainAll(queue *CommandQueue) error {
	for {
		if rc.PendingReleases() == 0 {
			return nil
		}
		if err := rc.ExecuteDeferredDeletions(queue); err != nil {
			if errors.Is(err, ErrDeviceLost) {
				rc.forceDrain()
			}
			return err
		}
		if err := rc.fence.SyncCPU(nil, releaseDrainTimeout); err != nil {
			if errors.Is(err, ErrDeviceLost) {
				rc.forceDrain()
			}
			return err
		}
	}
}

func (rc *ReleaseContext) forceDrain() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.logger.Warn("gapi: device lost, force-releasing deferred resources", slog.Int("count", len(rc.queue)))
	for i := range rc.queue {
		rc.queue[i].native.Release()
		rc.queue[i].native = nil
	}
	rc.queue = nil
}

// Destroy tears the context down. A non-empty queue here means resources
// outlived their GPU usage: that is a leak of device objects, not a
// recoverable condition.
func (rc *ReleaseContext) Destroy() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if len(rc.queue) != 0 {
		panic(errors.Newf("gapi: %d deferred releases outlived the device", len(rc.queue)))
	}
	rc.fence.releaseDirect()
}

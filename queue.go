package gapi

import (
	"github.com/cockroachdb/errors"
)

// CommandQueue submits closed command lists to one hardware queue class.
// Lists submitted to the same queue execute in submission order; ordering
// across queues only exists through fences.
type CommandQueue struct {
	name      string
	queueType CommandQueueType
	native    NativeQueue
	release   *ReleaseContext
}

func newCommandQueue(dev BackendDevice, release *ReleaseContext, queueType CommandQueueType, name string) (*CommandQueue, error) {
	native, err := dev.CreateQueue(queueType, name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating command queue %q", name)
	}

	return &CommandQueue{
		name:      name,
		queueType: queueType,
		native:    native,
		release:   release,
	}, nil
}

// Name returns the debug name the queue was created with.
func (q *CommandQueue) Name() string { return q.name }

// Type returns the hardware queue class.
func (q *CommandQueue) Type() CommandQueueType { return q.queueType }

func (q *CommandQueue) mustNative() NativeQueue {
	if q.native == nil {
		panic("gapi: use of released command queue " + q.name)
	}
	return q.native
}

// Submit closes the list if it is still recording, hands it to the backend
// queue, and rotates the list's allocator ring so the next recording pass
// uses fresh backing memory.
func (q *CommandQueue) Submit(list *CommandList) error {
	if list.state == commandListRecording {
		if err := list.Close(); err != nil {
			return err
		}
	}

	if err := q.mustNative().Submit(list.native); err != nil {
		return errors.Wrapf(err, "submitting command list %q to queue %q", list.name, q.name)
	}

	return list.resetAfterSubmit(q)
}

// Release pushes the native queue into the deferred release queue. The
// CommandQueue must not be used afterwards.
func (q *CommandQueue) Release() {
	if q.native == nil {
		return
	}
	q.release.DeferredRelease(q.native)
	q.native = nil
}

// releaseDirect destroys the native queue immediately. Only for the device's
// own graphics queue, which must outlive the deferred release drain it
// services.
func (q *CommandQueue) releaseDirect() {
	if q.native == nil {
		return
	}
	q.native.Release()
	q.native = nil
}

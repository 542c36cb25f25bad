package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/openframe/gapi"
)

// queue executes submitted command lists synchronously and routes fence
// signals through the device pump.
type queue struct {
	dev       *Device
	name      string
	queueType gapi.CommandQueueType
}

func (q *queue) Submit(list gapi.NativeList) error {
	if q.dev.isLost() {
		return errors.Wrapf(gapi.ErrDeviceLost, "submit to queue %q", q.name)
	}

	l := list.(*commandList)
	if !l.closed {
		panic("soft: submit of open command list " + l.name)
	}
	for _, op := range l.allocator.ops {
		op.execute(q.dev)
	}
	return nil
}

func (q *queue) Signal(target gapi.NativeFence, value uint64) error {
	f := target.(*fence)

	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()

	if q.dev.lost {
		return errors.Wrapf(gapi.ErrDeviceLost, "signal on queue %q", q.name)
	}
	if q.dev.pump == PumpAuto {
		f.complete(value)
		return nil
	}
	q.dev.pending = append(q.dev.pending, pendingSignal{fence: f, value: value})
	return nil
}

// Wait is a GPU-side dependency. Work here executes synchronously at submit,
// so by the time anything later is submitted the dependency already ran;
// there is nothing to stall.
func (q *queue) Wait(target gapi.NativeFence, value uint64) error {
	if q.dev.isLost() {
		return errors.Wrapf(gapi.ErrDeviceLost, "wait on queue %q", q.name)
	}
	return nil
}

func (q *queue) Release() {
	q.dev.objectReleased()
}

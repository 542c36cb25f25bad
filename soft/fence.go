package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/openframe/gapi"
)

// fence is a monotonic completion counter with condition-variable waits.
// complete runs from the device pump, Wait from arbitrary goroutines.
type fence struct {
	dev  *Device
	name string

	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	lost      bool
	released  bool
}

func newFence(dev *Device, name string, initialValue uint64) *fence {
	f := &fence{dev: dev, name: name, completed: initialValue}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Wait blocks until the counter reaches value, the timeout elapses, or the
// device is lost. The timer goroutine flips expired and wakes the waiter;
// spurious wakeups re-check all three conditions.
func (f *fence) Wait(value uint64, timeout time.Duration) error {
	expired := false
	timer := time.AfterFunc(timeout, func() {
		f.mu.Lock()
		expired = true
		f.mu.Unlock()
		f.cond.Broadcast()
	})
	defer timer.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value {
		if f.lost {
			return errors.Wrapf(gapi.ErrDeviceLost, "fence %q", f.name)
		}
		if expired {
			return errors.Wrapf(gapi.ErrTimeout, "fence %q did not reach %d within %s", f.name, value, timeout)
		}
		f.cond.Wait()
	}
	return nil
}

func (f *fence) complete(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

// markLost fails every blocked and future wait. Called with the device mutex
// held; the lock order is always device before fence.
func (f *fence) markLost() {
	f.mu.Lock()
	f.lost = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) Release() {
	f.mu.Lock()
	released := f.released
	f.released = true
	f.mu.Unlock()
	if released {
		panic("soft: double release of fence " + f.name)
	}
	f.dev.objectReleased()
}

package soft

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/openframe/gapi"
)

// swapChain owns the backbuffer resources. Present just counts; there is no
// display to flip.
type swapChain struct {
	dev         *Device
	desc        gapi.SwapChainDescription
	backbuffers []*resource
}

func (sc *swapChain) createBackbuffers() error {
	desc := gapi.NewTexture2DDescription(sc.desc.Width, sc.desc.Height, sc.desc.Format, 1, 1)

	sc.backbuffers = make([]*resource, 0, sc.desc.BufferCount)
	for i := uint32(0); i < sc.desc.BufferCount; i++ {
		res, err := newResource(sc.dev, desc, gapi.CpuAccessNone, fmt.Sprintf("swapchain::backbuffer%d", i))
		if err != nil {
			return err
		}
		sc.dev.objectCreated()
		sc.backbuffers = append(sc.backbuffers, res)
	}
	return nil
}

func (sc *swapChain) Backbuffer(index uint32) (gapi.NativeResource, error) {
	if index >= uint32(len(sc.backbuffers)) {
		return nil, errors.Newf("soft: backbuffer %d out of %d", index, len(sc.backbuffers))
	}
	return sc.backbuffers[index], nil
}

func (sc *swapChain) Present() error {
	if sc.dev.isLost() {
		return errors.Wrap(gapi.ErrDeviceLost, "present")
	}
	sc.dev.mu.Lock()
	sc.dev.presents++
	sc.dev.mu.Unlock()
	return nil
}

// Reset rebuilds the backbuffer chain with the new description. Live views
// onto the old backbuffers mean the frontend did not drop its references
// first; that fails with ErrSwapChainInUse.
func (sc *swapChain) Reset(desc gapi.SwapChainDescription) error {
	sc.dev.mu.Lock()
	var inUse bool
	sc.dev.viewSlots.Iter(func(_ uint32, v *view) bool {
		for _, backbuffer := range sc.backbuffers {
			if v.res == backbuffer {
				inUse = true
				return true
			}
		}
		return false
	})
	sc.dev.mu.Unlock()
	if inUse {
		return errors.Wrap(gapi.ErrSwapChainInUse, "resetting soft swap chain")
	}

	sc.releaseBackbuffers()
	sc.desc = desc
	return sc.createBackbuffers()
}

func (sc *swapChain) releaseBackbuffers() {
	for _, backbuffer := range sc.backbuffers {
		backbuffer.Release()
	}
	sc.backbuffers = nil
}

func (sc *swapChain) Release() {
	sc.releaseBackbuffers()
	sc.dev.objectReleased()
}

package gapi

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

const framePaceTimeout = 10 * time.Second

// SwapChainDescription describes the presentable backbuffer chain.
type SwapChainDescription struct {
	Width        uint32
	Height       uint32
	BufferCount  uint32
	Format       Format
	WindowHandle uintptr
}

func (d SwapChainDescription) validate() error {
	if d.Width == 0 || d.Height == 0 {
		return errors.Newf("swap chain extents must be non-zero, got %dx%d", d.Width, d.Height)
	}
	if d.BufferCount < 2 {
		return errors.Newf("swap chain needs at least two buffers, got %d", d.BufferCount)
	}
	if d.Format == FormatUnknown {
		return errors.New("swap chain format is unknown")
	}
	return nil
}

// SwapChain owns the backbuffer chain and the per-frame pacing ring. Present
// flips to the next backbuffer and blocks once the CPU gets a full chain
// ahead of the GPU, so at most BufferCount-1 frames are ever in flight.
type SwapChain struct {
	dev         *Device
	description SwapChainDescription
	native      NativeSwapChain

	backbuffers []*Texture
	frameRing   *fencedRing[uint32]
	frameIndex  uint32
}

// CreateSwapChain creates a swap chain and its frame pacing ring.
func (d *Device) CreateSwapChain(desc SwapChainDescription) (*SwapChain, error) {
	if err := desc.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid swap chain description")
	}

	native, err := d.backend.CreateSwapChain(desc)
	if err != nil {
		return nil, errors.Wrap(err, "creating swap chain")
	}

	sc := &SwapChain{
		dev:         d,
		description: desc,
		native:      native,
	}
	if err := sc.acquireBackbuffers(); err != nil {
		native.Release()
		return nil, err
	}

	return sc, nil
}

func (sc *SwapChain) acquireBackbuffers() error {
	desc := NewTexture2DDescription(sc.description.Width, sc.description.Height, sc.description.Format, 1, 1)

	sc.backbuffers = make([]*Texture, 0, sc.description.BufferCount)
	for i := uint32(0); i < sc.description.BufferCount; i++ {
		native, err := sc.native.Backbuffer(i)
		if err != nil {
			return errors.Wrapf(err, "fetching backbuffer %d", i)
		}
		sc.backbuffers = append(sc.backbuffers, &Texture{GpuResource: GpuResource{
			name:        fmt.Sprintf("Backbuffer::%d", i),
			description: desc,
			bindFlags:   BindRenderTarget,
			cpuAccess:   CpuAccessNone,
			dev:         sc.dev,
			native:      native,
		}})
	}

	ring, err := newFencedRing(sc.dev.backend, sc.dev.release, "Frame::sync", int(sc.description.BufferCount), func(index int) (uint32, error) {
		return uint32(index), nil
	})
	if err != nil {
		return err
	}
	sc.frameRing = ring
	sc.frameIndex = 0

	return nil
}

// Description returns the swap chain's current description.
func (sc *SwapChain) Description() SwapChainDescription { return sc.description }

// CurrentBackbuffer returns the backbuffer the current frame renders into.
func (sc *SwapChain) CurrentBackbuffer() *Texture {
	return sc.backbuffers[sc.frameIndex]
}

// Present presents the current backbuffer, signals the frame fence and flips
// to the next backbuffer, blocking until the GPU has retired the frame that
// last used it.
func (sc *SwapChain) Present() error {
	if sc.native == nil {
		panic("gapi: present on released swap chain")
	}

	if err := sc.native.Present(); err != nil {
		return errors.Wrap(err, "presenting")
	}
	if err := sc.frameRing.moveNext(sc.dev.graphicsQueue); err != nil {
		return err
	}

	index, err := sc.frameRing.waitCurrent(framePaceTimeout)
	if err != nil {
		return err
	}
	sc.frameIndex = index

	return nil
}

// Reset resizes the backbuffer chain. All outstanding uses of the old
// backbuffers must have been dropped; the GPU is drained, cached backbuffer
// views are destroyed, and the chain is rebuilt with the new description.
// A backend still holding live backbuffer references fails with
// ErrSwapChainInUse.
func (sc *SwapChain) Reset(desc SwapChainDescription) error {
	if err := desc.validate(); err != nil {
		return errors.Wrap(err, "invalid swap chain description")
	}

	if err := sc.dev.WaitForGpu(); err != nil {
		return err
	}
	sc.dropBackbuffers()
	if err := sc.dev.release.drainAll(sc.dev.graphicsQueue); err != nil {
		return err
	}

	if err := sc.native.Reset(desc); err != nil {
		return errors.Wrap(err, "resetting swap chain")
	}
	sc.description = desc

	return sc.acquireBackbuffers()
}

func (sc *SwapChain) dropBackbuffers() {
	for _, backbuffer := range sc.backbuffers {
		backbuffer.invalidate()
	}
	sc.backbuffers = nil
	if sc.frameRing != nil {
		sc.frameRing.fence.Release()
		sc.frameRing = nil
	}
}

// Release pushes the native swap chain into the deferred release queue. The
// SwapChain must not be used afterwards.
func (sc *SwapChain) Release() {
	if sc.native == nil {
		return
	}
	sc.dropBackbuffers()
	sc.dev.release.DeferredRelease(sc.native)
	sc.native = nil
}

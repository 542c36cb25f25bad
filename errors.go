package gapi

import "github.com/pkg/errors"

// Environment failures are reported as wrapped sentinel errors so callers can
// branch with errors.Is. Programmer-contract violations (reusing a busy
// command allocator, recording into a closed list, mismatched staging
// footprints) panic instead: they indicate a broken invariant with no safe
// recovery.
var (
	// ErrDeviceLost means the underlying device was removed or reset. The
	// device and every resource created from it must be torn down and
	// recreated; no operation may be retried against the lost device.
	ErrDeviceLost = errors.New("gapi: device lost")

	// ErrTimeout is returned from a CPU-side fence wait that elapsed before
	// the GPU reached the target value. The target was NOT reached.
	ErrTimeout = errors.New("gapi: wait timed out")

	// ErrOutOfMemory means the backend could not allocate device memory.
	ErrOutOfMemory = errors.New("gapi: out of device memory")

	// ErrBackendNotAvailable is returned from NewDevice when no registered
	// backend matches the request.
	ErrBackendNotAvailable = errors.New("gapi: backend not available")

	// ErrIncompatibleView is returned when a requested resource view does not
	// fit the resource it is created from (range out of bounds, missing bind
	// flag, or ambiguous format).
	ErrIncompatibleView = errors.New("gapi: view incompatible with resource")

	// ErrSwapChainInUse is returned from SwapChain.Reset while backbuffer
	// textures are still referenced.
	ErrSwapChainInUse = errors.New("gapi: swap chain backbuffers still in use")
)

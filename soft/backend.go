// Package soft is a software gapi backend: a complete in-process device that
// executes copy and clear command streams against CPU memory. Submitted work
// runs synchronously, but fence completion can be decoupled from submission
// (see PumpMode), which makes the backend a controllable stand-in for real
// hardware in tests. It registers itself under the name "soft".
package soft

import (
	"log/slog"

	"github.com/openframe/gapi"
)

// BackendName is the name the backend registers under.
const BackendName = "soft"

func init() {
	gapi.Register(&backend{})
}

type backend struct{}

func (*backend) Name() string { return BackendName }

func (*backend) Open(logger *slog.Logger) (gapi.BackendDevice, error) {
	return newDevice(logger), nil
}

func (*backend) Close() {}

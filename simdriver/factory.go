package simdriver

import (
	"fmt"

	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/simdriver/applesimutils"
	"github.com/spance/simdriver-go/simdriver/environment"
	"github.com/spance/simdriver-go/simdriver/plist"
)

// Options tunes the driver built by CreateDriver. Zero values keep the defaults.
type Options struct {
	ArtifactsDir string
	CacheDir     string
}

func CreateDriver(deviceType string, opts Options) (*SimulatorDriver, error) {
	switch deviceType {
	case constants.IOSSimulator, "":
		resolver := environment.NewResolver()
		if opts.CacheDir != "" {
			resolver.CacheDir = opts.CacheDir
		}
		backend := applesimutils.NewBackend(resolver)
		if opts.ArtifactsDir != "" {
			backend.ArtifactsDir = opts.ArtifactsDir
		}
		return NewSimulatorDriver(backend, plist.NewReader(), resolver), nil
	default:
		return nil, fmt.Errorf("unknown device type: %v", deviceType)
	}
}

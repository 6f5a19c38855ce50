package applesimutils

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/utils"
)

const DefaultLogTemplate = "{{devices}}/{{udid}}/data/tmp/simdriver.last_launch_app_log.{{ext}}"

// FrameworkLocator returns the library injected into launched apps.
type FrameworkLocator interface {
	FrameworkBinary(ctx context.Context) (string, error)
}

// Backend drives simulators through applesimutils and `xcrun simctl`.
type Backend struct {
	Runner  utils.Runner
	Starter utils.Starter
	// Framework is optional; without it apps launch with no injected library.
	Framework FrameworkLocator

	// ArtifactsDir receives screenshots and videos.
	ArtifactsDir string
	// DevicesDir is the CoreSimulator devices directory.
	DevicesDir  string
	LogTemplate string

	NewID func() string
}

func NewBackend(framework FrameworkLocator) *Backend {
	return &Backend{
		Runner:       utils.ExecRunner{},
		Starter:      utils.ExecStarter{},
		Framework:    framework,
		ArtifactsDir: os.TempDir(),
		DevicesDir:   defaultDevicesDir(),
		LogTemplate:  DefaultLogTemplate,
		NewID:        func() string { return uuid.New().String() },
	}
}

func defaultDevicesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("Library", "Developer", "CoreSimulator", "Devices")
	}
	return filepath.Join(home, "Library", "Developer", "CoreSimulator", "Devices")
}

func (r *Backend) simctl(ctx context.Context, tag string, args ...string) ([]byte, error) {
	return r.Runner.Run(ctx, utils.Command{
		Tag:  tag,
		Name: constants.XcrunPath,
		Args: append([]string{"simctl"}, args...),
	})
}

func (r *Backend) applesimutils(ctx context.Context, tag string, args ...string) ([]byte, error) {
	return r.Runner.Run(ctx, utils.Command{
		Tag:  tag,
		Name: constants.AppleSimUtilsPath,
		Args: args,
	})
}

func (r *Backend) newID() string {
	if r.NewID == nil {
		return uuid.New().String()
	}
	return r.NewID()
}

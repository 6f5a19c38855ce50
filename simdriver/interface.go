package simdriver

import (
	"context"

	"github.com/spance/simdriver-go/simdriver/definitions"
)

// Backend performs the real simulator operations.
type Backend interface {
	FindDeviceUDID(ctx context.Context, name string) (string, error)
	Boot(ctx context.Context, udid string) error
	Install(ctx context.Context, udid, binaryPath string) error
	Uninstall(ctx context.Context, udid, bundleID string) error
	Launch(ctx context.Context, udid, bundleID string, launchArgs definitions.LaunchArgs) (int, error)
	Terminate(ctx context.Context, udid, bundleID string) error
	SendToHome(ctx context.Context, udid string) error
	Shutdown(ctx context.Context, udid string) error
	SetLocation(ctx context.Context, udid string, lat, lon float64) error
	SetPermissions(ctx context.Context, udid, bundleID string, permissions definitions.Permissions) error
	ResetContentAndSettings(ctx context.Context, udid string) error
	GetLogsPaths(udid string) definitions.LogsPaths
	TakeScreenshot(ctx context.Context, udid string) (string, error)
	StartVideo(ctx context.Context, udid string) (definitions.RecordingHandle, error)
	StopVideo(ctx context.Context, udid string, recording definitions.RecordingHandle) (string, error)
}

// PlistReader reads a single field out of an app package's Info.plist.
type PlistReader interface {
	ReadField(ctx context.Context, plistPath, field string) (string, error)
}

// FrameworkResolver locates the framework support files injected into launched apps.
type FrameworkResolver interface {
	FrameworkPath(ctx context.Context) (string, error)
}

// Driver is the device vocabulary the test runner speaks.
type Driver interface {
	Prepare(ctx context.Context) error
	AcquireFreeDevice(ctx context.Context, name string) (string, error)
	GetBundleIDFromBinary(ctx context.Context, appPath string) (string, error)
	Boot(ctx context.Context, udid string) error
	InstallApp(ctx context.Context, udid, binaryPath string) error
	UninstallApp(ctx context.Context, udid, bundleID string) error
	Launch(ctx context.Context, udid, bundleID string, launchArgs definitions.LaunchArgs) (int, error)
	Terminate(ctx context.Context, udid, bundleID string) error
	SendToHome(ctx context.Context, udid string) error
	Shutdown(ctx context.Context, udid string) error
	SetLocation(ctx context.Context, udid string, lat, lon float64) error
	SetPermissions(ctx context.Context, udid, bundleID string, permissions definitions.Permissions) error
	ResetContentAndSettings(ctx context.Context, udid string) error
	ValidateDeviceConfig(cfg definitions.DeviceConfig) error
	GetLogsPaths(udid string) definitions.LogArtifacts
	TakeScreenshot(ctx context.Context, udid string) (*definitions.FileArtifact, error)
	StartVideo(ctx context.Context, udid string) error
	StopVideo(ctx context.Context, udid string) (*definitions.FileArtifact, error)
}

var _ Driver = (*SimulatorDriver)(nil)

package simdriver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spance/simdriver-go/simdriver/configuration"
	"github.com/spance/simdriver-go/simdriver/definitions"
)

const bundleIDField = "CFBundleIdentifier"

// SimulatorDriver forwards device operations to a Backend and keeps track of
// the video recording running on each device.
type SimulatorDriver struct {
	backend   Backend
	plist     PlistReader
	framework FrameworkResolver

	mu         sync.Mutex
	recordings map[string]definitions.RecordingHandle
	// deviceLocks serializes StartVideo/StopVideo per udid. An entry lives
	// only while some call holds or waits on it.
	deviceLocks map[string]*deviceLock
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

func NewSimulatorDriver(backend Backend, plist PlistReader, framework FrameworkResolver) *SimulatorDriver {
	return &SimulatorDriver{
		backend:     backend,
		plist:       plist,
		framework:   framework,
		recordings:  make(map[string]definitions.RecordingHandle),
		deviceLocks: make(map[string]*deviceLock),
	}
}

func (r *SimulatorDriver) Prepare(ctx context.Context) error {
	frameworkPath, err := r.framework.FrameworkPath(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Prepare] resolve framework path failed")
		return err
	}

	if _, err := os.Stat(frameworkPath); err != nil {
		log.Error().Str("path", frameworkPath).Msg("[Prepare] framework not found")
		return &definitions.MissingFrameworkError{Path: frameworkPath}
	}

	log.Debug().Str("path", frameworkPath).Msg("[Prepare] framework found")
	return nil
}

func (r *SimulatorDriver) AcquireFreeDevice(ctx context.Context, name string) (string, error) {
	udid, err := r.backend.FindDeviceUDID(ctx, name)
	if err != nil {
		return "", err
	}
	if err := r.Boot(ctx, udid); err != nil {
		return "", err
	}
	log.Info().Str("name", name).Str("udid", udid).Msg("[AcquireFreeDevice] device acquired")
	return udid, nil
}

func (r *SimulatorDriver) GetBundleIDFromBinary(ctx context.Context, appPath string) (string, error) {
	raw, err := r.plist.ReadField(ctx, filepath.Join(appPath, "Info.plist"), bundleIDField)
	if err != nil {
		log.Debug().Err(err).Str("app", appPath).Msg("[GetBundleIDFromBinary] read Info.plist failed")
		return "", &definitions.BundleIDNotFoundError{AppPath: appPath, Cause: err}
	}

	bundleID := strings.TrimSpace(raw)
	if bundleID == "" {
		return "", &definitions.BundleIDNotFoundError{AppPath: appPath}
	}
	return bundleID, nil
}

func (r *SimulatorDriver) Boot(ctx context.Context, udid string) error {
	return r.backend.Boot(ctx, udid)
}

func (r *SimulatorDriver) InstallApp(ctx context.Context, udid, binaryPath string) error {
	return r.backend.Install(ctx, udid, binaryPath)
}

func (r *SimulatorDriver) UninstallApp(ctx context.Context, udid, bundleID string) error {
	return r.backend.Uninstall(ctx, udid, bundleID)
}

func (r *SimulatorDriver) Launch(ctx context.Context, udid, bundleID string, launchArgs definitions.LaunchArgs) (int, error) {
	return r.backend.Launch(ctx, udid, bundleID, launchArgs)
}

func (r *SimulatorDriver) Terminate(ctx context.Context, udid, bundleID string) error {
	return r.backend.Terminate(ctx, udid, bundleID)
}

func (r *SimulatorDriver) SendToHome(ctx context.Context, udid string) error {
	return r.backend.SendToHome(ctx, udid)
}

func (r *SimulatorDriver) Shutdown(ctx context.Context, udid string) error {
	return r.backend.Shutdown(ctx, udid)
}

func (r *SimulatorDriver) SetLocation(ctx context.Context, udid string, lat, lon float64) error {
	return r.backend.SetLocation(ctx, udid, lat, lon)
}

func (r *SimulatorDriver) SetPermissions(ctx context.Context, udid, bundleID string, permissions definitions.Permissions) error {
	return r.backend.SetPermissions(ctx, udid, bundleID, permissions)
}

func (r *SimulatorDriver) ResetContentAndSettings(ctx context.Context, udid string) error {
	return r.backend.ResetContentAndSettings(ctx, udid)
}

// ValidateDeviceConfig must pass before a device is acquired for cfg.
func (r *SimulatorDriver) ValidateDeviceConfig(cfg definitions.DeviceConfig) error {
	if cfg.BinaryPath == "" {
		return configuration.ErrorOnEmptyBinaryPath()
	}
	if cfg.Name == "" {
		return configuration.ErrorOnEmptyName()
	}
	return nil
}

// GetLogsPaths does not check that the files exist.
func (r *SimulatorDriver) GetLogsPaths(udid string) definitions.LogArtifacts {
	paths := r.backend.GetLogsPaths(udid)
	return definitions.LogArtifacts{
		Stdout: definitions.NewFileArtifact(paths.Stdout),
		Stderr: definitions.NewFileArtifact(paths.Stderr),
	}
}

func (r *SimulatorDriver) TakeScreenshot(ctx context.Context, udid string) (*definitions.FileArtifact, error) {
	path, err := r.backend.TakeScreenshot(ctx, udid)
	if err != nil {
		return nil, err
	}
	return definitions.NewFileArtifact(path), nil
}

// StartVideo replaces any handle already stored for udid without stopping
// the earlier recording.
func (r *SimulatorDriver) StartVideo(ctx context.Context, udid string) error {
	unlock := r.lockDevice(udid)
	defer unlock()

	recording, err := r.backend.StartVideo(ctx, udid)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if prev, ok := r.recordings[udid]; ok {
		log.Warn().Str("udid", udid).Str("recording", prev.ID()).Msg("[StartVideo] overwriting active recording")
	}
	r.recordings[udid] = recording
	r.mu.Unlock()

	log.Debug().Str("udid", udid).Str("recording", recording.ID()).Msg("[StartVideo] recording started")
	return nil
}

// StopVideo returns a nil artifact and no error when udid has no recording.
func (r *SimulatorDriver) StopVideo(ctx context.Context, udid string) (*definitions.FileArtifact, error) {
	unlock := r.lockDevice(udid)
	defer unlock()

	r.mu.Lock()
	recording, ok := r.recordings[udid]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	video, err := r.backend.StopVideo(ctx, udid, recording)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.recordings, udid)
	r.mu.Unlock()

	return definitions.NewFileArtifact(video), nil
}

// ActiveRecording reports the handle stored for udid, if any.
func (r *SimulatorDriver) ActiveRecording(udid string) (definitions.RecordingHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recording, ok := r.recordings[udid]
	return recording, ok
}

func (r *SimulatorDriver) lockDevice(udid string) func() {
	r.mu.Lock()
	l, ok := r.deviceLocks[udid]
	if !ok {
		l = new(deviceLock)
		r.deviceLocks[udid] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.deviceLocks, udid)
		}
		r.mu.Unlock()
	}
}

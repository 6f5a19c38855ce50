package simdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spance/simdriver-go/simdriver/definitions"
	"github.com/spance/simdriver-go/simdriver/plist"
	"github.com/spance/simdriver-go/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecording string

func (r fakeRecording) ID() string { return string(r) }

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	udids      map[string]string
	bootErr    error
	launchPID  int
	logs       definitions.LogsPaths
	screenshot string
	started    int
	stopped    []definitions.RecordingHandle
	failWith   error
}

func (f *fakeBackend) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) FindDeviceUDID(_ context.Context, name string) (string, error) {
	f.record("find %s", name)
	udid, ok := f.udids[name]
	if !ok {
		return "", fmt.Errorf("can't find a simulator to match with %q", name)
	}
	return udid, nil
}

func (f *fakeBackend) Boot(_ context.Context, udid string) error {
	f.record("boot %s", udid)
	return f.bootErr
}

func (f *fakeBackend) Install(_ context.Context, udid, binaryPath string) error {
	f.record("install %s %s", udid, binaryPath)
	return f.failWith
}

func (f *fakeBackend) Uninstall(_ context.Context, udid, bundleID string) error {
	f.record("uninstall %s %s", udid, bundleID)
	return f.failWith
}

func (f *fakeBackend) Launch(_ context.Context, udid, bundleID string, _ definitions.LaunchArgs) (int, error) {
	f.record("launch %s %s", udid, bundleID)
	return f.launchPID, f.failWith
}

func (f *fakeBackend) Terminate(_ context.Context, udid, bundleID string) error {
	f.record("terminate %s %s", udid, bundleID)
	return f.failWith
}

func (f *fakeBackend) SendToHome(_ context.Context, udid string) error {
	f.record("home %s", udid)
	return f.failWith
}

func (f *fakeBackend) Shutdown(_ context.Context, udid string) error {
	f.record("shutdown %s", udid)
	return f.failWith
}

func (f *fakeBackend) SetLocation(_ context.Context, udid string, lat, lon float64) error {
	f.record("location %s %v %v", udid, lat, lon)
	return f.failWith
}

func (f *fakeBackend) SetPermissions(_ context.Context, udid, bundleID string, permissions definitions.Permissions) error {
	f.record("permissions %s %s %d", udid, bundleID, len(permissions))
	return f.failWith
}

func (f *fakeBackend) ResetContentAndSettings(_ context.Context, udid string) error {
	f.record("reset %s", udid)
	return f.failWith
}

func (f *fakeBackend) GetLogsPaths(udid string) definitions.LogsPaths {
	f.record("logs %s", udid)
	return f.logs
}

func (f *fakeBackend) TakeScreenshot(_ context.Context, udid string) (string, error) {
	f.record("screenshot %s", udid)
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.screenshot, nil
}

func (f *fakeBackend) StartVideo(_ context.Context, udid string) (definitions.RecordingHandle, error) {
	f.record("start %s", udid)
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	f.started++
	n := f.started
	f.mu.Unlock()
	return fakeRecording(fmt.Sprintf("%s-%d", udid, n)), nil
}

func (f *fakeBackend) StopVideo(_ context.Context, udid string, recording definitions.RecordingHandle) (string, error) {
	f.record("stop %s %s", udid, recording.ID())
	if f.failWith != nil {
		return "", f.failWith
	}
	f.mu.Lock()
	f.stopped = append(f.stopped, recording)
	f.mu.Unlock()
	return "/videos/" + recording.ID() + ".mp4", nil
}

type fakePlist struct {
	value string
	err   error
	path  string
}

func (f *fakePlist) ReadField(_ context.Context, plistPath, field string) (string, error) {
	f.path = plistPath + ":" + field
	return f.value, f.err
}

type fakeFramework struct {
	path string
	err  error
}

func (f fakeFramework) FrameworkPath(context.Context) (string, error) {
	return f.path, f.err
}

func newTestDriver(backend *fakeBackend) *SimulatorDriver {
	return NewSimulatorDriver(backend, &fakePlist{}, fakeFramework{})
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d := NewSimulatorDriver(&fakeBackend{}, &fakePlist{}, fakeFramework{path: dir})
	require.NoError(t, d.Prepare(ctx))

	missing := filepath.Join(dir, "Sim.framework")
	d = NewSimulatorDriver(&fakeBackend{}, &fakePlist{}, fakeFramework{path: missing})
	err := d.Prepare(ctx)
	require.ErrorIs(t, err, definitions.ErrMissingFrameworkArtifact)
	require.Equal(t, definitions.KindMissingFrameworkArtifact, definitions.KindOf(err))
	require.Contains(t, err.Error(), missing)

	resolveErr := errors.New("xcodebuild not found")
	d = NewSimulatorDriver(&fakeBackend{}, &fakePlist{}, fakeFramework{err: resolveErr})
	require.ErrorIs(t, d.Prepare(ctx), resolveErr)
}

func TestAcquireFreeDevice(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{udids: map[string]string{"iPhone 15": "UDID-1"}}
	d := newTestDriver(backend)

	udid, err := d.AcquireFreeDevice(ctx, "iPhone 15")
	require.NoError(t, err)
	require.Equal(t, "UDID-1", udid)
	require.Equal(t, []string{"find iPhone 15", "boot UDID-1"}, backend.Calls())
}

func TestAcquireFreeDeviceLookupFailureSkipsBoot(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	_, err := d.AcquireFreeDevice(context.Background(), "iPhone 99")
	require.Error(t, err)
	require.Equal(t, []string{"find iPhone 99"}, backend.Calls())
}

func TestAcquireFreeDeviceBootFailure(t *testing.T) {
	bootErr := errors.New("unable to boot")
	backend := &fakeBackend{udids: map[string]string{"iPhone 15": "UDID-1"}, bootErr: bootErr}

	_, err := newTestDriver(backend).AcquireFreeDevice(context.Background(), "iPhone 15")
	require.ErrorIs(t, err, bootErr)
}

func TestGetBundleIDFromBinary(t *testing.T) {
	ctx := context.Background()
	appPath := "/build/Example.app"

	cases := []struct {
		name    string
		plist   *fakePlist
		want    string
		wantErr bool
	}{
		{name: "plain", plist: &fakePlist{value: "com.example.app"}, want: "com.example.app"},
		{name: "trailing newline", plist: &fakePlist{value: "  com.example.app\n"}, want: "com.example.app"},
		{name: "empty", plist: &fakePlist{value: ""}, wantErr: true},
		{name: "whitespace only", plist: &fakePlist{value: " \n\t"}, wantErr: true},
		{name: "tool failed", plist: &fakePlist{err: errors.New(`Print: Entry, ":CFBundleIdentifier", Does Not Exist`)}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewSimulatorDriver(&fakeBackend{}, tc.plist, fakeFramework{})
			got, err := d.GetBundleIDFromBinary(ctx, appPath)
			require.Equal(t, filepath.Join(appPath, "Info.plist")+":CFBundleIdentifier", tc.plist.path)
			if !tc.wantErr {
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
				return
			}
			require.ErrorIs(t, err, definitions.ErrBundleIdentifierNotFound)
			require.Contains(t, err.Error(), appPath)
			require.Empty(t, got)
		})
	}
}

func TestDelegationsPropagateBackendErrors(t *testing.T) {
	ctx := context.Background()
	backendErr := errors.New("simctl: device is busy")
	backend := &fakeBackend{failWith: backendErr}
	d := newTestDriver(backend)

	ops := map[string]func() error{
		"install":   func() error { return d.InstallApp(ctx, "U", "/a.app") },
		"uninstall": func() error { return d.UninstallApp(ctx, "U", "com.a") },
		"launch": func() error {
			_, err := d.Launch(ctx, "U", "com.a", nil)
			return err
		},
		"terminate":   func() error { return d.Terminate(ctx, "U", "com.a") },
		"home":        func() error { return d.SendToHome(ctx, "U") },
		"shutdown":    func() error { return d.Shutdown(ctx, "U") },
		"location":    func() error { return d.SetLocation(ctx, "U", 1, 2) },
		"permissions": func() error { return d.SetPermissions(ctx, "U", "com.a", definitions.Permissions{"photos": "YES"}) },
		"reset":       func() error { return d.ResetContentAndSettings(ctx, "U") },
		"screenshot": func() error {
			_, err := d.TakeScreenshot(ctx, "U")
			return err
		},
		"start video": func() error { return d.StartVideo(ctx, "U") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Same(t, backendErr, err)
			require.Equal(t, definitions.KindBackendOperationFailed, definitions.KindOf(err))
		})
	}
}

func TestDelegations(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{launchPID: 4242}
	d := newTestDriver(backend)

	require.NoError(t, d.Boot(ctx, "U"))
	require.NoError(t, d.InstallApp(ctx, "U", "/a.app"))
	pid, err := d.Launch(ctx, "U", "com.a", definitions.LaunchArgs{"detoxServer": "ws://localhost:8099"})
	require.NoError(t, err)
	require.Equal(t, 4242, pid)
	require.NoError(t, d.SetLocation(ctx, "U", 31.5, -122.25))
	require.NoError(t, d.SetPermissions(ctx, "U", "com.a", definitions.Permissions{"photos": "YES", "camera": "NO"}))
	require.NoError(t, d.Terminate(ctx, "U", "com.a"))
	require.NoError(t, d.SendToHome(ctx, "U"))
	require.NoError(t, d.ResetContentAndSettings(ctx, "U"))
	require.NoError(t, d.UninstallApp(ctx, "U", "com.a"))
	require.NoError(t, d.Shutdown(ctx, "U"))

	require.Equal(t, []string{
		"boot U",
		"install U /a.app",
		"launch U com.a",
		"location U 31.5 -122.25",
		"permissions U com.a 2",
		"terminate U com.a",
		"home U",
		"reset U",
		"uninstall U com.a",
		"shutdown U",
	}, backend.Calls())
}

func TestValidateDeviceConfig(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	err := d.ValidateDeviceConfig(definitions.DeviceConfig{Name: "iPhone 15"})
	require.ErrorIs(t, err, definitions.ErrEmptyBinaryPath)

	err = d.ValidateDeviceConfig(definitions.DeviceConfig{})
	require.ErrorIs(t, err, definitions.ErrEmptyBinaryPath)

	err = d.ValidateDeviceConfig(definitions.DeviceConfig{BinaryPath: "/a.app"})
	require.ErrorIs(t, err, definitions.ErrEmptyName)
	require.Equal(t, definitions.KindInvalidDeviceConfiguration, definitions.KindOf(err))

	require.NoError(t, d.ValidateDeviceConfig(definitions.DeviceConfig{BinaryPath: "/a.app", Name: "iPhone 15"}))
	require.Empty(t, backend.Calls())
}

func TestGetLogsPaths(t *testing.T) {
	backend := &fakeBackend{logs: definitions.LogsPaths{
		Stdout: "/nonexistent/detox.last_launch_app_log.out",
		Stderr: "/nonexistent/detox.last_launch_app_log.err",
	}}

	logs := newTestDriver(backend).GetLogsPaths("U")
	require.Equal(t, backend.logs.Stdout, logs.Stdout.Path)
	require.Equal(t, backend.logs.Stderr, logs.Stderr.Path)
	require.False(t, logs.Stdout.Exists())
}

func TestTakeScreenshot(t *testing.T) {
	backend := &fakeBackend{screenshot: "/tmp/shot.png"}

	artifact, err := newTestDriver(backend).TakeScreenshot(context.Background(), "U")
	require.NoError(t, err)
	require.Equal(t, "/tmp/shot.png", artifact.Path)
}

func TestStopVideoWithoutStart(t *testing.T) {
	backend := &fakeBackend{}

	artifact, err := newTestDriver(backend).StopVideo(context.Background(), "U")
	require.NoError(t, err)
	require.Nil(t, artifact)
	require.Empty(t, backend.Calls())
}

func TestStartStopVideo(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	require.NoError(t, d.StartVideo(ctx, "U"))
	rec, ok := d.ActiveRecording("U")
	require.True(t, ok)
	require.Equal(t, "U-1", rec.ID())

	artifact, err := d.StopVideo(ctx, "U")
	require.NoError(t, err)
	require.Equal(t, "/videos/U-1.mp4", artifact.Path)

	_, ok = d.ActiveRecording("U")
	require.False(t, ok)

	artifact, err = d.StopVideo(ctx, "U")
	require.NoError(t, err)
	require.Nil(t, artifact)
}

func TestStartVideoOverwritesHandle(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	require.NoError(t, d.StartVideo(ctx, "U"))
	require.NoError(t, d.StartVideo(ctx, "U"))

	artifact, err := d.StopVideo(ctx, "U")
	require.NoError(t, err)
	require.Equal(t, "/videos/U-2.mp4", artifact.Path)
	require.Equal(t, []definitions.RecordingHandle{fakeRecording("U-2")}, backend.stopped)
}

func TestStopVideoFailureKeepsHandle(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := newTestDriver(backend)
	require.NoError(t, d.StartVideo(ctx, "U"))

	backend.failWith = errors.New("recordVideo exited")
	_, err := d.StopVideo(ctx, "U")
	require.ErrorIs(t, err, backend.failWith)

	_, ok := d.ActiveRecording("U")
	require.True(t, ok)
}

func TestRecordingsArePerInstance(t *testing.T) {
	ctx := context.Background()
	a := newTestDriver(&fakeBackend{})
	b := newTestDriver(&fakeBackend{})

	require.NoError(t, a.StartVideo(ctx, "U"))
	_, ok := b.ActiveRecording("U")
	require.False(t, ok)
}

func TestConcurrentVideoPerDevice(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		udid := fmt.Sprintf("U%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.StartVideo(ctx, udid))
			artifact, err := d.StopVideo(ctx, udid)
			assert.NoError(t, err)
			assert.NotNil(t, artifact)
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		_, ok := d.ActiveRecording(fmt.Sprintf("U%d", i))
		require.False(t, ok)
	}
	require.Len(t, backend.stopped, 8)
}

func TestPrepareAcceptsFrameworkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SimDriver")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	d := NewSimulatorDriver(&fakeBackend{}, &fakePlist{}, fakeFramework{path: path})
	require.NoError(t, d.Prepare(context.Background()))
}

type plistBuddyStub struct {
	out string
	err error
}

func (s plistBuddyStub) Run(_ context.Context, cmd utils.Command) ([]byte, error) {
	if len(cmd.Args) != 3 || cmd.Args[1] != "Print CFBundleIdentifier" {
		return nil, fmt.Errorf("unexpected command %s", cmd)
	}
	return []byte(s.out), s.err
}

func TestGetBundleIDFromBinaryWithPlistBuddy(t *testing.T) {
	ctx := context.Background()
	reader := func(runner utils.Runner) *plist.Reader {
		return &plist.Reader{Runner: runner, Tool: "/usr/libexec/PlistBuddy"}
	}

	d := NewSimulatorDriver(&fakeBackend{}, reader(plistBuddyStub{out: "com.example.app\n"}), fakeFramework{})
	bundleID, err := d.GetBundleIDFromBinary(ctx, "/apps/Example.app")
	require.NoError(t, err)
	require.Equal(t, "com.example.app", bundleID)

	exitErr := &utils.CommandError{Command: "PlistBuddy", Stderr: `Print: Entry, ":CFBundleIdentifier", Does Not Exist`, Err: errors.New("exit status 1")}
	d = NewSimulatorDriver(&fakeBackend{}, reader(plistBuddyStub{err: exitErr}), fakeFramework{})
	_, err = d.GetBundleIDFromBinary(ctx, "/apps/Broken.app")
	require.ErrorIs(t, err, definitions.ErrBundleIdentifierNotFound)
	require.EqualError(t, err, "field CFBundleIdentifier not found inside Info.plist of app binary at /apps/Broken.app")
}

// gatedStartBackend holds StartVideo until release is closed.
type gatedStartBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStartBackend) StartVideo(ctx context.Context, udid string) (definitions.RecordingHandle, error) {
	close(g.entered)
	<-g.release
	return g.fakeBackend.StartVideo(ctx, udid)
}

func TestStopVideoWaitsForStartOnSameDevice(t *testing.T) {
	ctx := context.Background()
	backend := &gatedStartBackend{fakeBackend: &fakeBackend{}, entered: make(chan struct{}), release: make(chan struct{})}
	d := NewSimulatorDriver(backend, &fakePlist{}, fakeFramework{})

	startDone := make(chan error, 1)
	go func() { startDone <- d.StartVideo(ctx, "U") }()
	<-backend.entered

	type stopResult struct {
		artifact *definitions.FileArtifact
		err      error
	}
	stopDone := make(chan stopResult, 1)
	go func() {
		artifact, err := d.StopVideo(ctx, "U")
		stopDone <- stopResult{artifact, err}
	}()

	select {
	case <-stopDone:
		t.Fatal("StopVideo returned while StartVideo was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	require.NoError(t, <-startDone)

	res := <-stopDone
	require.NoError(t, res.err)
	require.NotNil(t, res.artifact)
	require.Equal(t, "/videos/U-1.mp4", res.artifact.Path)

	_, ok := d.ActiveRecording("U")
	require.False(t, ok)
}

func TestInterleavedVideoOnSameDevice(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := newTestDriver(backend)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.StartVideo(ctx, "U"))
		}()
		go func() {
			defer wg.Done()
			_, err := d.StopVideo(ctx, "U")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := d.StopVideo(ctx, "U")
	require.NoError(t, err)

	_, ok := d.ActiveRecording("U")
	require.False(t, ok)
	require.Equal(t, 50, backend.started)
}

func TestDeviceLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(&fakeBackend{})

	for i := 0; i < 20; i++ {
		udid := fmt.Sprintf("U%d", i)
		require.NoError(t, d.StartVideo(ctx, udid))
		_, err := d.StopVideo(ctx, udid)
		require.NoError(t, err)
	}
	_, err := d.StopVideo(ctx, "never-started")
	require.NoError(t, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Empty(t, d.deviceLocks)
}

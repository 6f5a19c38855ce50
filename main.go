package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/simdriver"
	"github.com/spance/simdriver-go/simdriver/configuration"
	"github.com/spance/simdriver-go/simdriver/definitions"
	"github.com/spance/simdriver-go/simdriver/environment"
	"github.com/spance/simdriver-go/utils"
	"github.com/spf13/cobra"
)

// Config holds all the configuration values from command line arguments
type Config struct {
	ConfigPath    string `json:"config_path,omitempty"`
	Configuration string `json:"configuration,omitempty"`
	DeviceType    string `json:"device_type"`
	DeviceName    string `json:"device_name"`
	DeviceID      string `json:"device_id"`
	BinaryPath    string `json:"binary_path"`
	BundleID      string `json:"bundle_id"`
	ArtifactsDir  string `json:"artifacts_dir"`

	Prepare             bool              `json:"prepare"`
	CleanFrameworkCache bool              `json:"clean_framework_cache"`
	Acquire             bool              `json:"acquire"`
	Install             bool              `json:"install"`
	Uninstall           bool              `json:"uninstall"`
	Launch              bool              `json:"launch"`
	LaunchArgs          map[string]string `json:"launch_args,omitempty"`
	Terminate           bool              `json:"terminate"`
	Home                bool              `json:"home"`
	Location            string            `json:"location,omitempty"`
	Permissions         map[string]string `json:"permissions,omitempty"`
	Screenshot          bool              `json:"screenshot"`
	Record              time.Duration     `json:"record"`
	Logs                bool              `json:"logs"`
	GetBundleID         bool              `json:"get_bundle_id"`
	Reset               bool              `json:"reset"`
	Shutdown            bool              `json:"shutdown"`
	Debug               bool              `json:"debug"`
}

var config = &Config{}

// createDriver is replaced in tests.
var createDriver = simdriver.CreateDriver

var rootCmd = &cobra.Command{
	Use:   "simdriver",
	Short: "Sim Driver - iOS simulator control for end-to-end tests",
	Long: `Sim Driver boots iOS simulators, installs and launches apps on them and
captures screenshots, videos and app logs, using applesimutils and xcrun simctl.`,
	Example: `  # Check that the framework cache matches the installed Xcode
  simdriver --prepare

  # Boot a simulator by name and install an app
  simdriver --device-name "iPhone 15" --binary-path build/Example.app --acquire --install

  # Use a device from a configuration file
  simdriver --config simdriver.toml --configuration iphone --acquire --install --launch

  # Launch with arguments and record ten seconds of video
  simdriver --device-id 5A1F... --bundle-id com.example.app --launch --launch-arg detoxServer=ws://localhost:8099 --record 10s

  # Grant permissions and move the simulator
  simdriver --device-id 5A1F... --bundle-id com.example.app --permissions photos=YES,location=inuse --location 37.78,-122.40

  # Print the bundle identifier of an app
  simdriver --binary-path build/Example.app --get-bundle-id`,
	PersistentPreRunE: validateArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !run(cmd.Context()) {
			os.Exit(1)
		}
	},
}

// getEnv falls back to defaultValue when key is unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func init() {
	// Device options
	rootCmd.PersistentFlags().StringVar(&config.ConfigPath, "config",
		getEnv(constants.EnvConfigPath, ""),
		"Path to a TOML device configuration file")

	rootCmd.PersistentFlags().StringVar(&config.Configuration, "configuration",
		getEnv(constants.EnvConfigDevice, ""),
		"Device entry to use from the configuration file")

	rootCmd.PersistentFlags().StringVar(&config.DeviceType, "device-type",
		constants.IOSSimulator,
		"Device type (only ios.simulator is supported)")

	rootCmd.PersistentFlags().StringVarP(&config.DeviceName, "device-name", "n",
		getEnv(constants.EnvDeviceName, ""),
		`Simulator name, optionally with OS (e.g. "iPhone 15, iOS 17.0")`)

	rootCmd.PersistentFlags().StringVarP(&config.DeviceID, "device-id", "d",
		getEnv(constants.EnvDeviceUDID, ""),
		"Simulator UDID (skips name lookup)")

	rootCmd.PersistentFlags().StringVarP(&config.BinaryPath, "binary-path", "b",
		getEnv(constants.EnvBinaryPath, ""),
		"Path to the .app bundle")

	rootCmd.PersistentFlags().StringVar(&config.BundleID, "bundle-id",
		getEnv(constants.EnvLaunchBundleID, ""),
		"Bundle identifier (read from the app's Info.plist when empty)")

	rootCmd.PersistentFlags().StringVar(&config.ArtifactsDir, "artifacts-dir",
		getEnv(constants.EnvArtifactsDir, os.TempDir()),
		"Directory for screenshots and videos")

	// Actions
	rootCmd.PersistentFlags().BoolVar(&config.Prepare, "prepare", false,
		"Verify the framework cache exists")
	rootCmd.PersistentFlags().BoolVar(&config.CleanFrameworkCache, "clean-framework-cache", false,
		"Remove the framework cache and exit")
	rootCmd.PersistentFlags().BoolVar(&config.Acquire, "acquire", false,
		"Look up the simulator by name and boot it")
	rootCmd.PersistentFlags().BoolVar(&config.Install, "install", false,
		"Install the app")
	rootCmd.PersistentFlags().BoolVar(&config.Uninstall, "uninstall", false,
		"Uninstall the app")
	rootCmd.PersistentFlags().BoolVar(&config.Launch, "launch", false,
		"Launch the app")
	rootCmd.PersistentFlags().StringToStringVar(&config.LaunchArgs, "launch-arg", nil,
		"Launch argument key=value (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&config.Terminate, "terminate", false,
		"Terminate the app")
	rootCmd.PersistentFlags().BoolVar(&config.Home, "home", false,
		"Send the simulator to the home screen")
	rootCmd.PersistentFlags().StringVar(&config.Location, "location", "",
		"Set the simulated location as lat,lon")
	rootCmd.PersistentFlags().StringToStringVar(&config.Permissions, "permissions", nil,
		"Permissions to set, e.g. photos=YES,location=inuse")
	rootCmd.PersistentFlags().BoolVar(&config.Screenshot, "screenshot", false,
		"Take a screenshot")
	rootCmd.PersistentFlags().DurationVar(&config.Record, "record", 0,
		"Record a video for the given duration (e.g. 10s)")
	rootCmd.PersistentFlags().BoolVar(&config.Logs, "logs", false,
		"Print the app log paths")
	rootCmd.PersistentFlags().BoolVar(&config.GetBundleID, "get-bundle-id", false,
		"Print the app's bundle identifier")
	rootCmd.PersistentFlags().BoolVar(&config.Reset, "reset", false,
		"Erase content and settings")
	rootCmd.PersistentFlags().BoolVar(&config.Shutdown, "shutdown", false,
		"Shut the simulator down")

	rootCmd.PersistentFlags().BoolVar(&config.Debug, "debug", false,
		"Enable debug mode (default: false)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if config.DeviceType != constants.IOSSimulator {
		return fmt.Errorf("invalid device type: %s. Must be '%s'", config.DeviceType, constants.IOSSimulator)
	}
	if config.Location != "" {
		if _, _, err := parseLocation(config.Location); err != nil {
			return err
		}
	}
	if config.Record < 0 {
		return fmt.Errorf("invalid record duration: %s", config.Record)
	}
	return nil
}

func parseLocation(s string) (float64, float64, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid location %q, expected lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", lonStr, err)
	}
	return lat, lon, nil
}

// loadDeviceConfig merges the configuration file entry with explicit flags.
func loadDeviceConfig() (definitions.DeviceConfig, error) {
	cfg := definitions.DeviceConfig{Type: config.DeviceType}
	if config.ConfigPath != "" {
		fileCfg, err := configuration.LoadDeviceConfig(config.ConfigPath, config.Configuration)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}
	if config.DeviceName != "" {
		cfg.Name = config.DeviceName
	}
	if config.BinaryPath != "" {
		cfg.BinaryPath = config.BinaryPath
	}
	return cfg, nil
}

func fail(step string, err error) bool {
	log.Error().Err(err).Str("kind", definitions.KindOf(err).String()).Msgf("❌ %s failed", step)
	return false
}

func run(ctx context.Context) bool {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Debug().Msgf("Configuration: %s", utils.JsonIndent(config))

	if config.CleanFrameworkCache {
		if err := environment.NewResolver().CleanCache(); err != nil {
			return fail("clean framework cache", err)
		}
		log.Info().Msg("✅ framework cache removed")
		return true
	}

	deviceCfg, err := loadDeviceConfig()
	if err != nil {
		return fail("load configuration", err)
	}

	driver, err := createDriver(deviceCfg.Type, simdriver.Options{ArtifactsDir: config.ArtifactsDir})
	if err != nil {
		return fail("create driver", err)
	}

	if config.Prepare {
		if err := driver.Prepare(ctx); err != nil {
			return fail("prepare", err)
		}
		log.Info().Msg("✅ framework found")
	}

	if config.GetBundleID {
		bundleID, err := driver.GetBundleIDFromBinary(ctx, deviceCfg.BinaryPath)
		if err != nil {
			return fail("get bundle id", err)
		}
		fmt.Println(bundleID)
	}

	udid := config.DeviceID
	if config.Acquire {
		if err := driver.ValidateDeviceConfig(deviceCfg); err != nil {
			return fail("validate device config", err)
		}
		udid, err = driver.AcquireFreeDevice(ctx, deviceCfg.Name)
		if err != nil {
			return fail("acquire device", err)
		}
		log.Info().Str("udid", udid).Msg("✅ device booted")
	}

	if !needsDevice() {
		return true
	}
	if udid == "" {
		return fail("select device", fmt.Errorf("no device: pass --device-id or --acquire with a device name"))
	}

	bundleID := config.BundleID
	resolveBundleID := func() error {
		if bundleID != "" {
			return nil
		}
		bundleID, err = driver.GetBundleIDFromBinary(ctx, deviceCfg.BinaryPath)
		return err
	}

	if config.Install {
		if err := driver.ValidateDeviceConfig(deviceCfg); err != nil {
			return fail("validate device config", err)
		}
		if err := driver.InstallApp(ctx, udid, deviceCfg.BinaryPath); err != nil {
			return fail("install", err)
		}
		log.Info().Str("app", deviceCfg.BinaryPath).Msg("✅ installed")
	}

	if len(config.Permissions) > 0 {
		if err := resolveBundleID(); err != nil {
			return fail("get bundle id", err)
		}
		if err := driver.SetPermissions(ctx, udid, bundleID, config.Permissions); err != nil {
			return fail("set permissions", err)
		}
		log.Info().Str("permissions", utils.JsonString(config.Permissions)).Msg("✅ permissions set")
	}

	if config.Location != "" {
		lat, lon, _ := parseLocation(config.Location)
		if err := driver.SetLocation(ctx, udid, lat, lon); err != nil {
			return fail("set location", err)
		}
		log.Info().Float64("lat", lat).Float64("lon", lon).Msg("✅ location set")
	}

	if config.Record > 0 {
		if err := driver.StartVideo(ctx, udid); err != nil {
			return fail("start video", err)
		}
		log.Info().Dur("duration", config.Record).Msg("🎥 recording")
		// no-op once the recording has been stopped below
		defer func() {
			if _, err := driver.StopVideo(context.WithoutCancel(ctx), udid); err != nil {
				log.Error().Err(err).Str("udid", udid).Msg("❌ stop video failed")
			}
		}()
	}

	if config.Launch {
		if err := resolveBundleID(); err != nil {
			return fail("get bundle id", err)
		}
		launchArgs := definitions.LaunchArgs(lo.MapValues(config.LaunchArgs, func(v string, _ string) any { return v }))
		pid, err := driver.Launch(ctx, udid, bundleID, launchArgs)
		if err != nil {
			return fail("launch", err)
		}
		log.Info().Str("bundle_id", bundleID).Int("pid", pid).Msg("✅ launched")
	}

	if config.Record > 0 {
		waitFor(ctx, config.Record)
		// the signal context may already be done; stopping must still finish
		video, err := driver.StopVideo(context.WithoutCancel(ctx), udid)
		if err != nil {
			return fail("stop video", err)
		}
		if video != nil {
			log.Info().Str("video", video.Path).Msg("✅ video saved")
		}
	}

	if config.Screenshot {
		shot, err := driver.TakeScreenshot(ctx, udid)
		if err != nil {
			return fail("screenshot", err)
		}
		log.Info().Str("screenshot", shot.Path).Msg("✅ screenshot saved")
	}

	if config.Logs {
		logs := driver.GetLogsPaths(udid)
		for name, artifact := range map[string]*definitions.FileArtifact{"stdout": logs.Stdout, "stderr": logs.Stderr} {
			if !artifact.Exists() {
				log.Warn().Str(name, artifact.Path).Msg("log file not written yet")
			}
		}
		fmt.Println(utils.JsonIndent(logs))
	}

	if config.Home {
		if err := driver.SendToHome(ctx, udid); err != nil {
			return fail("send to home", err)
		}
	}

	if config.Terminate {
		if err := resolveBundleID(); err != nil {
			return fail("get bundle id", err)
		}
		if err := driver.Terminate(ctx, udid, bundleID); err != nil {
			return fail("terminate", err)
		}
		log.Info().Str("bundle_id", bundleID).Msg("✅ terminated")
	}

	if config.Uninstall {
		if err := resolveBundleID(); err != nil {
			return fail("get bundle id", err)
		}
		if err := driver.UninstallApp(ctx, udid, bundleID); err != nil {
			return fail("uninstall", err)
		}
		log.Info().Str("bundle_id", bundleID).Msg("✅ uninstalled")
	}

	if config.Reset {
		if err := driver.ResetContentAndSettings(ctx, udid); err != nil {
			return fail("reset", err)
		}
		log.Info().Str("udid", udid).Msg("✅ content and settings erased")
	}

	if config.Shutdown {
		if err := driver.Shutdown(ctx, udid); err != nil {
			return fail("shutdown", err)
		}
		log.Info().Str("udid", udid).Msg("✅ shut down")
	}

	return true
}

func needsDevice() bool {
	return config.Install || config.Uninstall || config.Launch || config.Terminate ||
		config.Home || config.Location != "" || len(config.Permissions) > 0 ||
		config.Screenshot || config.Record > 0 || config.Logs || config.Reset || config.Shutdown
}

func waitFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		log.Warn().Msg("interrupted, stopping early")
	}
}

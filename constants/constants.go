package constants

const (
	IOSSimulator = "ios.simulator"
)

// External tools.
const (
	AppleSimUtilsPath = "applesimutils"
	XcrunPath         = "xcrun"
	XcodebuildPath    = "xcodebuild"
	PlistBuddyPath    = "/usr/libexec/PlistBuddy"
)

const (
	SpringboardBundleID = "com.apple.springboard"

	// FrameworkEnvVar makes simctl inject the framework into the launched app.
	FrameworkEnvVar = "SIMCTL_CHILD_DYLD_INSERT_LIBRARIES"
)

// Environment overrides read by the CLI and the framework resolver.
const (
	EnvFrameworkPath  = "SIMDRIVER_FRAMEWORK_PATH"
	EnvCacheDir       = "SIMDRIVER_CACHE_DIR"
	EnvArtifactsDir   = "SIMDRIVER_ARTIFACTS_DIR"
	EnvDeviceName     = "SIMDRIVER_DEVICE_NAME"
	EnvBinaryPath     = "SIMDRIVER_BINARY_PATH"
	EnvConfigPath     = "SIMDRIVER_CONFIG"
	EnvConfigDevice   = "SIMDRIVER_CONFIGURATION"
	EnvDeviceUDID     = "SIMDRIVER_DEVICE_ID"
	EnvLaunchBundleID = "SIMDRIVER_BUNDLE_ID"
)

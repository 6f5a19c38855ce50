package definitions

// DeviceConfig describes the simulator a test run needs and the app to put on it.
type DeviceConfig struct {
	Type       string `toml:"type" json:"type"`
	Name       string `toml:"name" json:"name"`
	BinaryPath string `toml:"binary_path" json:"binary_path"`
	Build      string `toml:"build" json:"build,omitempty"`
}

// LogsPaths is the raw stdout/stderr path pair the backend redirects app output to.
type LogsPaths struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// LogArtifacts wraps LogsPaths into file artifacts.
type LogArtifacts struct {
	Stdout *FileArtifact `json:"stdout"`
	Stderr *FileArtifact `json:"stderr"`
}

// Permissions maps a permission name (e.g. "photos", "location") to its value
// (e.g. "YES", "NO", "always", "inuse").
type Permissions map[string]string

// LaunchArgs are passed to the launched app as "-key value" pairs.
type LaunchArgs map[string]any

// Location is a simulated GPS fix.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RecordingHandle is the backend token for an in-progress video capture.
// Only the backend that issued it knows how to stop it.
type RecordingHandle interface {
	ID() string
}

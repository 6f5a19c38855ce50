package configuration

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/spance/simdriver-go/simdriver/definitions"
)

// File is the on-disk layout of a simdriver configuration file:
//
//	[devices.iphone]
//	type = "ios.simulator"
//	name = "iPhone 15"
//	binary_path = "build/Build/Products/Debug-iphonesimulator/Example.app"
type File struct {
	Devices map[string]definitions.DeviceConfig `toml:"devices"`
}

func ErrorOnEmptyBinaryPath() error {
	return definitions.ErrEmptyBinaryPath
}

func ErrorOnEmptyName() error {
	return definitions.ErrEmptyName
}

// LoadFile parses a TOML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return &f, nil
}

// LoadDeviceConfig returns the device named key from the file at path.
// An empty key is allowed when the file declares exactly one device.
func LoadDeviceConfig(path, key string) (definitions.DeviceConfig, error) {
	f, err := LoadFile(path)
	if err != nil {
		return definitions.DeviceConfig{}, err
	}
	return f.Device(key)
}

func (f *File) Device(key string) (definitions.DeviceConfig, error) {
	if len(f.Devices) == 0 {
		return definitions.DeviceConfig{}, fmt.Errorf("no devices declared in configuration")
	}
	if key == "" {
		if len(f.Devices) > 1 {
			names := lo.Keys(f.Devices)
			sort.Strings(names)
			return definitions.DeviceConfig{}, fmt.Errorf("cannot determine which device to use, choose one of: %v", names)
		}
		for _, cfg := range f.Devices {
			return cfg, nil
		}
	}
	cfg, ok := f.Devices[key]
	if !ok {
		return definitions.DeviceConfig{}, fmt.Errorf("cannot find device configuration %q", key)
	}
	return cfg, nil
}

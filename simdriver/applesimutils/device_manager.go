package applesimutils

import (
	"context"
	"fmt"
	"strings"

	json "github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const stateBooted = "Booted"

// SimDevice is one entry of `applesimutils --list`.
type SimDevice struct {
	UDID                 string `json:"udid"`
	Name                 string `json:"name"`
	State                string `json:"state"`
	IsAvailable          bool   `json:"isAvailable"`
	DeviceTypeIdentifier string `json:"deviceTypeIdentifier,omitempty"`
	DataPath             string `json:"dataPath,omitempty"`
	LogPath              string `json:"logPath,omitempty"`
	OS                   *OS    `json:"os,omitempty"`
}

type OS struct {
	Version    string `json:"version"`
	Identifier string `json:"identifier"`
}

// ListDevices queries applesimutils with the given filter flags.
func (r *Backend) ListDevices(ctx context.Context, filter ...string) ([]SimDevice, error) {
	args := append([]string{"--list"}, filter...)
	out, err := r.applesimutils(ctx, "ListDevices", args...)
	if err != nil {
		return nil, err
	}

	var devices []SimDevice
	if err := json.Unmarshal(out, &devices); err != nil {
		return nil, fmt.Errorf("could not parse applesimutils output: %w", err)
	}
	return devices, nil
}

// FindDeviceUDID accepts a plain device name or "name, OS" (e.g. "iPhone 15, iOS 17.0").
func (r *Backend) FindDeviceUDID(ctx context.Context, name string) (string, error) {
	deviceName, osVersion, _ := strings.Cut(name, ",")
	filter := []string{"--byName", strings.TrimSpace(deviceName)}
	if osVersion = strings.TrimSpace(osVersion); osVersion != "" {
		filter = append(filter, "--byOS", strings.TrimSpace(strings.TrimPrefix(osVersion, "iOS")))
	}

	devices, err := r.ListDevices(ctx, filter...)
	if err != nil {
		return "", err
	}

	device, ok := lo.Find(devices, func(d SimDevice) bool {
		return d.UDID != ""
	})
	if !ok {
		return "", fmt.Errorf("can't find a simulator to match with %q, run 'xcrun simctl list' to list your supported devices", name)
	}
	log.Debug().Str("name", name).Str("udid", device.UDID).Msg("[FindDeviceUDID] found device")
	return device.UDID, nil
}

func (r *Backend) deviceState(ctx context.Context, udid string) (string, error) {
	devices, err := r.ListDevices(ctx, "--byId", udid)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("can't find a simulator with udid %s", udid)
	}
	return devices[0].State, nil
}

// Boot is a no-op for a device that is already booted.
func (r *Backend) Boot(ctx context.Context, udid string) error {
	state, err := r.deviceState(ctx, udid)
	if err != nil {
		return err
	}
	if state == stateBooted {
		log.Debug().Str("udid", udid).Msg("[Boot] device already booted")
		return nil
	}

	if _, err := r.simctl(ctx, "Boot", "boot", udid); err != nil {
		return err
	}
	_, err = r.simctl(ctx, "Boot", "bootstatus", udid)
	return err
}

func (r *Backend) Shutdown(ctx context.Context, udid string) error {
	_, err := r.simctl(ctx, "Shutdown", "shutdown", udid)
	return err
}

func (r *Backend) ResetContentAndSettings(ctx context.Context, udid string) error {
	if err := r.Shutdown(ctx, udid); err != nil {
		return err
	}
	if _, err := r.simctl(ctx, "ResetContentAndSettings", "erase", udid); err != nil {
		return err
	}
	return r.Boot(ctx, udid)
}

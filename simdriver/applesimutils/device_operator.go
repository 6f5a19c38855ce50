package applesimutils

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/simdriver/definitions"
	"github.com/spance/simdriver-go/utils"
	"github.com/valyala/fasttemplate"
)

func (r *Backend) Install(ctx context.Context, udid, binaryPath string) error {
	_, err := r.simctl(ctx, "Install", "install", udid, binaryPath)
	return err
}

func (r *Backend) Uninstall(ctx context.Context, udid, bundleID string) error {
	_, err := r.simctl(ctx, "Uninstall", "uninstall", udid, bundleID)
	return err
}

// Launch starts bundleID with the framework injected and app output
// redirected to the log paths, and returns the app's pid.
func (r *Backend) Launch(ctx context.Context, udid, bundleID string, launchArgs definitions.LaunchArgs) (int, error) {
	var env []string
	if r.Framework != nil {
		binary, err := r.Framework.FrameworkBinary(ctx)
		if err != nil {
			return 0, err
		}
		env = append(env, constants.FrameworkEnvVar+"="+binary)
	}

	logs := r.GetLogsPaths(udid)
	args := []string{"simctl", "launch", "--stdout=" + logs.Stdout, "--stderr=" + logs.Stderr, udid, bundleID}
	args = append(args, FormatLaunchArgs(launchArgs)...)

	out, err := r.Runner.Run(ctx, utils.Command{
		Tag:  "Launch",
		Name: constants.XcrunPath,
		Args: args,
		Env:  env,
	})
	if err != nil {
		return 0, err
	}
	return parseLaunchPID(bundleID, string(out))
}

// FormatLaunchArgs renders args as "-key value" pairs in key order.
func FormatLaunchArgs(launchArgs definitions.LaunchArgs) []string {
	keys := lo.Keys(launchArgs)
	sort.Strings(keys)
	return lo.FlatMap(keys, func(key string, _ int) []string {
		return []string{"-" + key, utils.AnyToString(launchArgs[key])}
	})
}

// parseLaunchPID reads "<bundleID>: <pid>" from simctl launch output.
func parseLaunchPID(bundleID, output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		prefix, pid, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || strings.TrimSpace(prefix) != bundleID {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(pid))
		if err != nil {
			return 0, fmt.Errorf("invalid pid in launch output %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("could not find pid of %s in launch output: %q", bundleID, strings.TrimSpace(output))
}

func (r *Backend) Terminate(ctx context.Context, udid, bundleID string) error {
	_, err := r.simctl(ctx, "Terminate", "terminate", udid, bundleID)
	return err
}

func (r *Backend) SendToHome(ctx context.Context, udid string) error {
	_, err := r.simctl(ctx, "SendToHome", "launch", udid, constants.SpringboardBundleID)
	return err
}

func (r *Backend) SetLocation(ctx context.Context, udid string, lat, lon float64) error {
	location := fmt.Sprintf("[%s, %s]",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64))
	_, err := r.applesimutils(ctx, "SetLocation", "--byId", udid, "--setLocation", location)
	return err
}

func (r *Backend) SetPermissions(ctx context.Context, udid, bundleID string, permissions definitions.Permissions) error {
	if len(permissions) == 0 {
		return nil
	}
	names := lo.Keys(permissions)
	sort.Strings(names)

	invalid := lo.Filter(names, func(name string, _ int) bool {
		return !constants.IsValidPermission(name, permissions[name])
	})
	if len(invalid) > 0 {
		return fmt.Errorf("unsupported permissions: %s", strings.Join(lo.Map(invalid, func(name string, _ int) string {
			return name + "=" + permissions[name]
		}), ", "))
	}

	pairs := lo.Map(names, func(name string, _ int) string {
		return name + "=" + permissions[name]
	})
	_, err := r.applesimutils(ctx, "SetPermissions",
		"--byId", udid,
		"--bundle", bundleID,
		"--restartSB",
		"--setPermissions", strings.Join(pairs, ", "))
	return err
}

// GetLogsPaths does not create or check the files.
func (r *Backend) GetLogsPaths(udid string) definitions.LogsPaths {
	template := r.LogTemplate
	if template == "" {
		template = DefaultLogTemplate
	}
	t, err := fasttemplate.NewTemplate(template, "{{", "}}")
	if err != nil {
		log.Error().Err(err).Str("template", template).Msg("[GetLogsPaths] invalid log template, using default")
		t = fasttemplate.New(DefaultLogTemplate, "{{", "}}")
	}

	render := func(ext string) string {
		return t.ExecuteString(map[string]any{
			"devices": r.DevicesDir,
			"udid":    udid,
			"ext":     ext,
		})
	}
	return definitions.LogsPaths{
		Stdout: render("out"),
		Stderr: render("err"),
	}
}

package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/utils"
	"github.com/valyala/fasttemplate"
)

const (
	DefaultFrameworkTemplate = "{{cache}}/ios/framework/{{xcode}}/SimDriver.framework"
	FrameworkBinaryName      = "SimDriver"
)

// Resolver computes where the framework support files for the installed
// Xcode live. Setting SIMDRIVER_FRAMEWORK_PATH bypasses the lookup.
type Resolver struct {
	Runner   utils.Runner
	Template string
	CacheDir string
	Getenv   func(string) string
}

func NewResolver() *Resolver {
	return &Resolver{
		Runner:   utils.ExecRunner{},
		Template: DefaultFrameworkTemplate,
		Getenv:   os.Getenv,
	}
}

func (r *Resolver) FrameworkPath(ctx context.Context) (string, error) {
	if p := r.getenv(constants.EnvFrameworkPath); p != "" {
		return p, nil
	}

	cacheDir, err := r.cacheDir()
	if err != nil {
		return "", err
	}
	xcode, err := r.XcodeBuildVersion(ctx)
	if err != nil {
		return "", err
	}

	t, err := fasttemplate.NewTemplate(r.template(), "{{", "}}")
	if err != nil {
		return "", fmt.Errorf("invalid framework path template %q: %w", r.template(), err)
	}
	path := t.ExecuteString(map[string]any{
		"cache": cacheDir,
		"xcode": xcode,
	})
	log.Debug().Str("path", path).Msg("[FrameworkPath] resolved")
	return path, nil
}

// FrameworkBinary is the library simctl injects into launched apps.
func (r *Resolver) FrameworkBinary(ctx context.Context) (string, error) {
	dir, err := r.FrameworkPath(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FrameworkBinaryName), nil
}

// XcodeBuildVersion returns the "Build version" reported by xcodebuild, e.g. 15A240d.
func (r *Resolver) XcodeBuildVersion(ctx context.Context) (string, error) {
	out, err := r.Runner.Run(ctx, utils.Command{
		Tag:  "XcodeBuildVersion",
		Name: constants.XcodebuildPath,
		Args: []string{"-version"},
	})
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Build version"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("could not find build version in xcodebuild output: %q", strings.TrimSpace(string(out)))
}

// CleanCache removes every cached framework build.
func (r *Resolver) CleanCache() error {
	cacheDir, err := r.cacheDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(cacheDir, "ios", "framework")
	log.Info().Str("dir", dir).Msg("[CleanCache] removing framework cache")
	return os.RemoveAll(dir)
}

func (r *Resolver) cacheDir() (string, error) {
	if r.CacheDir != "" {
		return r.CacheDir, nil
	}
	if dir := r.getenv(constants.EnvCacheDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "Library", "SimDriver"), nil
}

func (r *Resolver) template() string {
	if r.Template == "" {
		return DefaultFrameworkTemplate
	}
	return r.Template
}

func (r *Resolver) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

// Package rc implements the panmk configuration cascade: it discovers flat
// key=value rc files in a fixed, platform-dependent order, parses them, and
// merges them with command-line overrides into one EffectiveConfig.
//
// Precedence, lowest to highest:
//  1. default rc files, in listed order (or the explicit --rc file instead)
//  2. flags explicitly passed on the command line
package rc

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/panmk/internal/platform"
)

// Options parameterise Resolve.
type Options struct {
	// Platform selects the default candidate list.
	Platform platform.Class

	// ExplicitPath, when set, replaces the default candidates entirely.
	ExplicitPath string

	// SkipDefault disables the default candidates. It has no effect when
	// ExplicitPath is set.
	SkipDefault bool

	// Overrides are merged last and always win.
	Overrides map[string]string

	// Getenv resolves environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// HomeDir resolves the user's home directory. Defaults to os.UserHomeDir.
	HomeDir func() (string, error)

	// Defaults lists the default candidates. Defaults to DefaultPaths.
	Defaults func(platform.Class, func(string) string) []string
}

// Layer is one candidate rc file and, when present, its parsed pairs.
type Layer struct {
	Path    string
	Present bool
	Values  map[string]string
}

// Result is the outcome of Resolve.
type Result struct {
	Config EffectiveConfig

	// Layers lists every candidate tried, in merge order. The override layer
	// is not included.
	Layers []Layer

	// Warnings holds non-fatal *LoadError values.
	Warnings []error
}

// Resolve runs the cascade. It never fails: unreadable files and malformed
// lines are collected as warnings.
func Resolve(opts Options) *Result {
	opts = withDefaults(opts)

	var candidates []string

	switch {
	case opts.ExplicitPath != "":
		candidates = []string{opts.ExplicitPath}
	case opts.SkipDefault:
		// Overrides only.
	default:
		candidates = opts.Defaults(opts.Platform, opts.Getenv)
	}

	res := &Result{}

	layers := make([]map[string]string, 0, len(candidates)+1)

	for _, c := range candidates {
		path, err := Normalize(c, opts.Getenv, opts.HomeDir)
		if err != nil {
			res.Warnings = append(res.Warnings, &LoadError{Path: c, Err: err})
			continue
		}

		layer, warnings := load(path)
		res.Layers = append(res.Layers, layer)
		res.Warnings = append(res.Warnings, warnings...)

		if layer.Present {
			layers = append(layers, layer.Values)
		}
	}

	layers = append(layers, opts.Overrides)
	res.Config = Merge(layers...)

	return res
}

// DefaultPaths returns the default rc candidates for class, unnormalised.
// Only the Windows class consults SYSTEMDRIVE.
func DefaultPaths(class platform.Class, getenv func(string) string) []string {
	var paths []string

	switch class {
	case platform.Windows:
		if drive := getenv("SYSTEMDRIVE"); drive != "" {
			paths = append(paths, filepath.Join(drive+string(filepath.Separator), "panmk", "panmkrc"))
		}

		paths = append(paths, filepath.Join("~", ".panmkrc"))
	default:
		for _, dir := range []string{
			"/opt/local/share/panmk",
			"/usr/local/share/panmk",
			"/usr/local/lib/panmk",
			"~",
		} {
			paths = append(paths, filepath.Join(dir, ".panmk"))
		}
	}

	// Project rc.
	return append(paths, ".panmk")
}

// Normalize expands $VAR and ${VAR} references, a leading ~, and makes the
// result absolute.
func Normalize(path string, getenv func(string) string, homeDir func() (string, error)) (string, error) {
	path = os.Expand(path, getenv)

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := homeDir()
		if err != nil {
			return "", err
		}

		path = filepath.Join(home, path[1:])
	}

	return filepath.Abs(path)
}

// load reads a single candidate. A missing file or a directory is an absent
// layer, not an error.
func load(path string) (Layer, []error) {
	layer := Layer{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return layer, nil
		}

		return layer, []error{&LoadError{Path: path, Err: err}}
	}

	if info.IsDir() {
		return layer, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return layer, []error{&LoadError{Path: path, Err: err}}
	}

	values, warnings, err := Parse(bytes.NewReader(data), path)
	if err != nil {
		return layer, append(warnings, &LoadError{Path: path, Err: err})
	}

	layer.Present = true
	layer.Values = values

	return layer, warnings
}

func withDefaults(opts Options) Options {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	if opts.HomeDir == nil {
		opts.HomeDir = os.UserHomeDir
	}

	if opts.Defaults == nil {
		opts.Defaults = DefaultPaths
	}

	return opts
}

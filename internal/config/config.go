// Package config provides typed configuration for panmk.
//
// Values are resolved with the following precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PANMK_ prefix)
//  3. The effective rc configuration (see package rc)
//  4. Built-in defaults
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/panmk/internal/platform"
	"github.com/hupe1980/panmk/internal/rc"
	"github.com/hupe1980/panmk/internal/viewer"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultConverter is the conversion program used when none is configured.
const DefaultConverter = "pandoc"

// Mode is the requested action.
type Mode int

// Actions, named after the latexmk-style flag combinations that select them.
const (
	ModeCompile Mode = iota
	ModeView
	ModeContinuous
	ModeViewContinuous
)

// String returns the flag combination for m ("p", "pv", "pc", "pvc").
func (m Mode) String() string {
	switch m {
	case ModeView:
		return "pv"
	case ModeContinuous:
		return "pc"
	case ModeViewContinuous:
		return "pvc"
	default:
		return "p"
	}
}

// Continuous reports whether m keeps watching the source.
func (m Mode) Continuous() bool { return m == ModeContinuous || m == ModeViewContinuous }

// Preview reports whether m opens a viewer.
func (m Mode) Preview() bool { return m == ModeView || m == ModeViewContinuous }

// Config represents the effective, typed configuration of one invocation.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor" yaml:"no-color"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// Output is the output template. "{filename}" is replaced by the source
	// base name.
	Output string `mapstructure:"output" json:"output" yaml:"output"`

	// View opens a viewer after compiling.
	View bool `mapstructure:"view" json:"view" yaml:"view"`

	// Continuous keeps watching the source and rebuilding.
	Continuous bool `mapstructure:"continuous" json:"continuous" yaml:"continuous"`

	// ChangeDir runs the converter in the source file's directory.
	ChangeDir bool `mapstructure:"cd" json:"cd" yaml:"cd"`

	// Force compiles even when the output is newer than the source.
	Force bool `mapstructure:"force" json:"force" yaml:"force"`

	// NewViewer starts a new viewer on every rebuild instead of reusing one.
	NewViewer bool `mapstructure:"new-viewer" json:"newViewer" yaml:"new-viewer"`

	// Converter is the conversion program.
	Converter string `mapstructure:"converter" json:"converter" yaml:"converter"`

	// ConverterArgs are whitespace-separated arguments passed to the
	// converter before the source path.
	ConverterArgs string `mapstructure:"converter-args" json:"converterArgs" yaml:"converter-args"`

	// ConverterVersion is an optional semver constraint the converter must
	// satisfy, e.g. ">= 2.11".
	ConverterVersion string `mapstructure:"converter-version" json:"converterVersion" yaml:"converter-version"`

	// Viewer is the viewer command. Empty selects the platform default.
	Viewer string `mapstructure:"viewer" json:"viewer" yaml:"viewer"`

	// Loader names the launch strategy.
	Loader string `mapstructure:"loader" json:"loader" yaml:"loader"`

	// Reloader names the reload strategy used when viewers are reused.
	Reloader string `mapstructure:"reloader" json:"reloader" yaml:"reloader"`

	// ReloadSignal is the signal the "signal" reloader sends.
	ReloadSignal string `mapstructure:"reload-signal" json:"reloadSignal" yaml:"reload-signal"`

	// Platform overrides platform detection.
	Platform string `mapstructure:"platform" json:"platform" yaml:"platform"`

	// PollInterval is the source polling period in continuous modes.
	PollInterval time.Duration `mapstructure:"poll-interval" json:"pollInterval" yaml:"poll-interval"`

	// Debounce is the quiet period applied to filesystem notifications.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`

	// Notify enables filesystem notifications in addition to polling.
	Notify bool `mapstructure:"notify" json:"notify" yaml:"notify"`

	// DiffDiagnostics prints converter diagnostics as a diff against the
	// previous build.
	DiffDiagnostics bool `mapstructure:"diff-diagnostics" json:"diffDiagnostics" yaml:"diff-diagnostics"`

	// Lock holds a per-source lock file while watching.
	Lock bool `mapstructure:"lock" json:"lock" yaml:"lock"`
}

// Keys lists every configuration key, in the order they are documented.
var Keys = []string{
	"log-level", "log-format", "no-color", "quiet",
	"output", "view", "continuous", "cd", "force", "new-viewer",
	"converter", "converter-args", "converter-version",
	"viewer", "loader", "reloader", "reload-signal", "platform",
	"poll-interval", "debounce", "notify", "diff-diagnostics", "lock",
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:     LogLevelInfo,
		LogFormat:    LogFormatText,
		Converter:    DefaultConverter,
		Loader:       viewer.LoaderDefault,
		Reloader:     viewer.ReloaderNone,
		ReloadSignal: "HUP",
		PollInterval: 250 * time.Millisecond,
		Debounce:     100 * time.Millisecond,
		Notify:       true,
		Lock:         true,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Converter == "" {
		return errors.New("converter must not be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s: must be positive", c.PollInterval)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	if _, err := platform.Parse(c.Platform); err != nil {
		return err
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Mode derives the requested action from View and Continuous.
func (c *Config) Mode() Mode {
	switch {
	case c.View && c.Continuous:
		return ModeViewContinuous
	case c.Continuous:
		return ModeContinuous
	case c.View:
		return ModeView
	default:
		return ModeCompile
	}
}

// PlatformClass returns the configured platform class, detecting the host
// when none is configured. Validate has already rejected unknown names.
func (c *Config) PlatformClass() platform.Class {
	class, _ := platform.Parse(c.Platform)
	return class
}

// ViewerSettings returns the settings viewer strategy factories consult.
func (c *Config) ViewerSettings() viewer.Settings {
	return viewer.Settings{
		Platform:     c.PlatformClass(),
		Viewer:       c.Viewer,
		ReloadSignal: c.ReloadSignal,
	}
}

// BaseConverterArgs splits ConverterArgs on whitespace.
func (c *Config) BaseConverterArgs() []string {
	return strings.Fields(c.ConverterArgs)
}

// Load builds a Config from the effective rc configuration, environment
// variables, and the flags of cmd. A fresh viper instance is used on every
// call so that Load is safe for concurrent tests.
func Load(cmd *cobra.Command, effective rc.EffectiveConfig) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := v.MergeConfigMap(effective.Settings()); err != nil {
		return nil, fmt.Errorf("merging rc configuration: %w", err)
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// UnknownKeys returns the keys of effective that no Config field consumes.
func UnknownKeys(effective rc.EffectiveConfig) []string {
	var unknown []string

	for _, k := range effective.Keys() {
		if !slices.Contains(Keys, strings.ToLower(k)) {
			unknown = append(unknown, k)
		}
	}

	return unknown
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("output", d.Output)
	v.SetDefault("view", d.View)
	v.SetDefault("continuous", d.Continuous)
	v.SetDefault("cd", d.ChangeDir)
	v.SetDefault("force", d.Force)
	v.SetDefault("new-viewer", d.NewViewer)
	v.SetDefault("converter", d.Converter)
	v.SetDefault("converter-args", d.ConverterArgs)
	v.SetDefault("converter-version", d.ConverterVersion)
	v.SetDefault("viewer", d.Viewer)
	v.SetDefault("loader", d.Loader)
	v.SetDefault("reloader", d.Reloader)
	v.SetDefault("reload-signal", d.ReloadSignal)
	v.SetDefault("platform", d.Platform)
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("notify", d.Notify)
	v.SetDefault("diff-diagnostics", d.DiffDiagnostics)
	v.SetDefault("lock", d.Lock)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("PANMK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}

// Package converter runs the external document converter (pandoc by
// default) against a single source file.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Placeholder is replaced by the source base name in output templates.
const Placeholder = "{filename}"

// Target identifies what to build: a source path and an output template.
type Target struct {
	Source   string
	Template string
}

// Result is the outcome of one successful conversion.
type Result struct {
	// OutputPath is the artifact written by the converter.
	OutputPath string

	// Diagnostics is the converter's stderr. Non-empty diagnostics do not
	// make a build fail.
	Diagnostics string

	// Duration is the wall-clock time of the conversion.
	Duration time.Duration
}

// Invoker runs the converter. The zero value is not usable; construct it
// with New.
type Invoker struct {
	binary   string
	baseArgs []string
	env      []string
	chdir    bool
	stdout   io.Writer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithBaseArgs sets arguments placed before the source path.
func WithBaseArgs(args ...string) Option {
	return func(i *Invoker) { i.baseArgs = append([]string(nil), args...) }
}

// WithEnv appends KEY=VALUE pairs to the converter's environment.
func WithEnv(env ...string) Option {
	return func(i *Invoker) { i.env = append(i.env, env...) }
}

// WithChangeDir runs the converter in the source file's directory.
func WithChangeDir(enabled bool) Option {
	return func(i *Invoker) { i.chdir = enabled }
}

// WithStdout forwards the converter's stdout to w. It is discarded by
// default.
func WithStdout(w io.Writer) Option {
	return func(i *Invoker) { i.stdout = w }
}

// New returns an Invoker for binary.
func New(binary string, opts ...Option) *Invoker {
	i := &Invoker{binary: binary}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Binary returns the converter program.
func (i *Invoker) Binary() string { return i.binary }

// ResolveOutput substitutes the base name of source (no directory, no final
// extension) into the first placeholder of template.
func ResolveOutput(source, template string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return strings.Replace(template, Placeholder, base, 1)
}

// ResolveOutputIn resolves template for a converter that runs in the
// source's directory and returns the result relative to the caller.
func ResolveOutputIn(source, template string) string {
	output := ResolveOutput(source, template)
	if filepath.IsAbs(output) {
		return output
	}

	return filepath.Join(filepath.Dir(source), output)
}

// Compile converts t.Source synchronously, passing extraArgs verbatim after
// the output flag. It returns a *StartError when the converter cannot be
// started and an *ExitError when it exits unsuccessfully.
func (i *Invoker) Compile(ctx context.Context, t Target, extraArgs []string) (*Result, error) {
	output := ResolveOutput(t.Source, t.Template)
	source := t.Source

	var dir string
	if i.chdir {
		dir = filepath.Dir(t.Source)
		source = filepath.Base(t.Source)
	}

	args := make([]string, 0, len(i.baseArgs)+3+len(extraArgs))
	args = append(args, i.baseArgs...)
	args = append(args, source, "-o", output)
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, i.binary, args...) //nolint:gosec
	cmd.Dir = dir

	if len(i.env) > 0 {
		cmd.Env = append(os.Environ(), i.env...)
	}

	var stderr bytes.Buffer

	cmd.Stderr = &stderr
	cmd.Stdout = i.stdout

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Binary: i.binary, Err: err}
	}

	waitErr := cmd.Wait()
	diagnostics := stderr.String()

	if waitErr != nil {
		exitErr := &ExitError{Binary: i.binary, Code: -1, Diagnostics: diagnostics, Err: waitErr}

		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitErr.Code = ee.ExitCode()
		}

		return nil, exitErr
	}

	if dir != "" && !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}

	return &Result{
		OutputPath:  output,
		Diagnostics: diagnostics,
		Duration:    time.Since(start),
	}, nil
}

// UpToDate reports whether output exists and is not older than source.
func UpToDate(source, output string) bool {
	src, err := os.Stat(source)
	if err != nil {
		return false
	}

	out, err := os.Stat(output)
	if err != nil {
		return false
	}

	return !out.ModTime().Before(src.ModTime())
}

// StartError reports that the converter could not be started.
type StartError struct {
	Binary string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting converter %q: %v", e.Binary, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError reports that the converter ran but did not succeed.
type ExitError struct {
	Binary string
	// Code is the process exit code, or -1 when it was killed.
	Code        int
	Diagnostics string
	Err         error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("converter %q failed with exit code %d", e.Binary, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

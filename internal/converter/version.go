package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// versionPattern matches the first dotted version number in a --version
// banner, e.g. "pandoc 3.1.11.1".
var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// ParseVersion extracts a semantic version from a --version banner. Only the
// first line is inspected, and components beyond major.minor.patch are
// dropped.
func ParseVersion(banner string) (*semver.Version, error) {
	first, _, _ := strings.Cut(strings.TrimSpace(banner), "\n")

	raw := versionPattern.FindString(first)
	if raw == "" {
		return nil, fmt.Errorf("no version number in %q", first)
	}

	if parts := strings.Split(raw, "."); len(parts) > 3 {
		raw = strings.Join(parts[:3], ".")
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw, err)
	}

	return v, nil
}

// Version runs the converter with --version and parses the result.
func (i *Invoker) Version(ctx context.Context) (*semver.Version, error) {
	args := append(append([]string(nil), i.baseArgs...), "--version")

	cmd := exec.CommandContext(ctx, i.binary, args...) //nolint:gosec

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	if len(i.env) > 0 {
		cmd.Env = append(os.Environ(), i.env...)
	}

	if err := cmd.Run(); err != nil {
		return nil, &StartError{Binary: i.binary, Err: err}
	}

	return ParseVersion(stdout.String())
}

// CheckVersion verifies that the converter satisfies constraint (for
// example ">= 2.11"). An empty constraint only checks that the converter
// runs.
func (i *Invoker) CheckVersion(ctx context.Context, constraint string) (*semver.Version, error) {
	v, err := i.Version(ctx)
	if err != nil {
		return nil, err
	}

	if constraint == "" {
		return v, nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return v, fmt.Errorf("invalid converter version constraint %q: %w", constraint, err)
	}

	if !c.Check(v) {
		return v, fmt.Errorf("converter %s version %s does not satisfy %q", i.binary, v, constraint)
	}

	return v, nil
}

// Package testutil holds helpers shared by panmk's tests. The fake
// converter lets the running test binary stand in for pandoc.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Environment variables understood by the fake converter.
const (
	EnvFakeConverter = "PANMK_TEST_FAKE_CONVERTER"
	EnvFakeMode      = "PANMK_TEST_FAKE_MODE"
)

// Fake converter behaviours selected through EnvFakeMode.
const (
	ModeOK   = "ok"
	ModeWarn = "warn"
	ModeFail = "fail"
)

// FakeConverter returns the binary and leading arguments that make the test
// binary behave as a converter. Callers must define
//
//	func TestHelperProcess(*testing.T) { testutil.ServeFakeConverter() }
//
// in the package under test and pass FakeEnv to the child process.
func FakeConverter(t testing.TB) (binary string, baseArgs []string) {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	return exe, []string{"-test.run=^TestHelperProcess$", "--"}
}

// FakeEnv returns the environment that activates the fake converter.
func FakeEnv(mode string) []string {
	return []string{EnvFakeConverter + "=1", EnvFakeMode + "=" + mode}
}

// ServeFakeConverter turns the current process into the fake converter when
// EnvFakeConverter is set, and exits. Otherwise it returns immediately.
func ServeFakeConverter() {
	if os.Getenv(EnvFakeConverter) != "1" {
		return
	}

	args := os.Args
	if i := slices.Index(args, "--"); i >= 0 {
		args = args[i+1:]
	}

	os.Exit(fakeMain(args, os.Getenv(EnvFakeMode)))
}

func fakeMain(args []string, mode string) int {
	if slices.Contains(args, "--version") {
		fmt.Println("pandoc 3.1.11.1")
		fmt.Println("Features: +server +lua")

		return 0
	}

	if len(args) < 3 || args[1] != "-o" {
		fmt.Fprintln(os.Stderr, "usage: fake <source> -o <output> [args...]")
		return 2
	}

	source, output := args[0], args[2]

	switch mode {
	case ModeFail:
		fmt.Fprintf(os.Stderr, "Error at %q (line 1, column 1): unexpected end of input\n", source)
		return 3
	case ModeWarn:
		fmt.Fprintf(os.Stderr, "[WARNING] Could not convert TeX math in %s\n", source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	content := fmt.Sprintf("source: %s\nargs: %s\n%s", source, strings.Join(args[3:], " "), data)
	if err := os.WriteFile(output, []byte(content), 0o644); err != nil { //nolint:gosec
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

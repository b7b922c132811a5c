package cli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/panmk/internal/testutil"
	"github.com/hupe1980/panmk/internal/viewer"
)

// fakeArgs returns the flags that make the test binary act as the converter.
func fakeArgs(t *testing.T, mode string) []string {
	t.Helper()

	for _, kv := range testutil.FakeEnv(mode) {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}

	exe, base := testutil.FakeConverter(t)

	return []string{"--norc", "--converter", exe, "--converter-args=" + strings.Join(base, " ")}
}

// recordingViewer registers a "record" loader and reloader that count calls.
type recordingViewer struct {
	launches atomic.Int32
	reloads  atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (r *recordingViewer) registry() *viewer.Registry {
	reg := viewer.DefaultRegistry()

	reg.RegisterLauncher("record", func(viewer.Settings) (viewer.LaunchFunc, error) {
		return func(_ context.Context, path string) (*viewer.Handle, error) {
			r.launches.Add(1)
			r.mu.Lock()
			r.paths = append(r.paths, path)
			r.mu.Unlock()

			return viewer.NewDetachedHandle(path), nil
		}, nil
	})

	reg.RegisterReloader("record", func(viewer.Settings, viewer.LaunchFunc) (viewer.ReloadFunc, error) {
		return func(_ context.Context, h *viewer.Handle) (*viewer.Handle, error) {
			r.reloads.Add(1)
			return h, nil
		}, nil
	})

	return reg
}

// ---------------------------------------------------------------------------
// One-shot compile
// ---------------------------------------------------------------------------

func TestBuild_CompileOnce(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "report.md")
	testutil.WriteFile(t, source, "# Report\n")

	args := append(fakeArgs(t, testutil.ModeOK), "-o", filepath.Join(dir, "out-{filename}.html"), source, "--toc", "--", "--metadata", "title=X")

	_, stderr, err := executeCommand(args...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out-report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "args: --toc --metadata title=X")
	assert.Contains(t, string(data), "# Report")
	assert.Contains(t, stderr, "report.md → ")
}

func TestBuild_UpToDateSkipsUnlessForced(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	output := filepath.Join(dir, "doc.html")
	testutil.WriteFile(t, source, "text")

	args := append(fakeArgs(t, testutil.ModeOK), "-o", filepath.Join(dir, "{filename}.html"), source)

	_, _, err := executeCommand(args...)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(source, past, past))
	testutil.WriteFile(t, output, "stale marker")

	_, stderr, err := executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "is up to date")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "stale marker", string(data))

	_, _, err = executeCommand(append([]string{"-g"}, args...)...)
	require.NoError(t, err)

	data, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.NotEqual(t, "stale marker", string(data))
}

func TestBuild_ConverterFailureExitsOne(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	args := append(fakeArgs(t, testutil.ModeFail), "-o", filepath.Join(dir, "{filename}.pdf"), source)

	_, stderr, err := executeCommand(args...)
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "failed with exit code 3")
	assert.Contains(t, stderr, "unexpected end of input")
}

func TestBuild_MissingConverterExitsOne(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	_, _, err := executeCommand("--norc", "--converter", "panmk-no-such-converter", "-o", filepath.Join(dir, "x.pdf"), source)
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "starting converter")
}

func TestBuild_DiagnosticsPrinted(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "$x$")

	args := append(fakeArgs(t, testutil.ModeWarn), "-o", filepath.Join(dir, "{filename}.html"), source)

	_, stderr, err := executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "[WARNING] Could not convert TeX math")
}

func TestBuild_ChangeDir(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "sub", "doc.md")
	testutil.WriteFile(t, source, "text")

	args := append(fakeArgs(t, testutil.ModeOK), "--cd", "-o", "{filename}.html", source)

	_, _, err := executeCommand(args...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sub", "doc.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "source: doc.md")
}

func TestBuild_ConverterVersionConstraint(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	args := append(fakeArgs(t, testutil.ModeOK), "-o", filepath.Join(dir, "{filename}.html"), source)

	_, _, err := executeCommand(append([]string{"--converter-version", ">= 3.0"}, args...)...)
	require.NoError(t, err)

	_, _, err = executeCommand(append([]string{"--converter-version", ">= 4.0"}, args...)...)
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "does not satisfy")
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func TestBuild_ViewLaunchesOnce(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	rec := &recordingViewer{}
	args := append(fakeArgs(t, testutil.ModeOK), "-pv", "--loader", "record", "-o", filepath.Join(dir, "{filename}.html"), source)

	_, _, err := executeCommandWith(context.Background(), []Option{WithRegistry(rec.registry())}, args...)
	require.NoError(t, err)

	assert.Equal(t, int32(1), rec.launches.Load())
	assert.Equal(t, []string{filepath.Join(dir, "doc.html")}, rec.paths)
}

func TestBuild_ViewLaunchFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	args := append(fakeArgs(t, testutil.ModeOK), "-v", "--viewer", "panmk-no-such-viewer", "-o", filepath.Join(dir, "{filename}.html"), source)

	_, stderr, err := executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "viewer launch failed")
}

// ---------------------------------------------------------------------------
// Continuous
// ---------------------------------------------------------------------------

func TestBuild_ContinuousPreviewReusesViewer(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	output := filepath.Join(dir, "doc.html")
	testutil.WriteFile(t, source, "v1")

	rec := &recordingViewer{}
	args := append(fakeArgs(t, testutil.ModeOK),
		"-pvc", "--loader", "record", "--reloader", "record",
		"--poll-interval", "10ms", "--notify=false",
		"-o", filepath.Join(dir, "{filename}.html"), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandWith(ctx, []Option{WithRegistry(rec.registry())}, args...)
		done <- err
	}()

	require.Eventually(t, func() bool { return rec.launches.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	testutil.WriteFile(t, source, "version two")
	require.Eventually(t, func() bool { return rec.reloads.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	testutil.WriteFile(t, source, "the third version")
	require.Eventually(t, func() bool { return rec.reloads.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "the third version")

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous build did not stop")
	}

	assert.Equal(t, int32(1), rec.launches.Load())
	assert.Equal(t, int32(2), rec.reloads.Load())
}

func TestBuild_ContinuousSurvivesFailedBuild(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	output := filepath.Join(dir, "doc.html")
	testutil.WriteFile(t, source, "broken")

	args := append(fakeArgs(t, testutil.ModeFail),
		"-c", "--poll-interval", "10ms", "--notify=false",
		"-o", filepath.Join(dir, "{filename}.html"), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandWith(ctx, nil, args...)
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	assert.NoFileExists(t, output)

	t.Setenv(testutil.EnvFakeMode, testutil.ModeOK)
	testutil.WriteFile(t, source, "fixed now")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(output)
		return err == nil && strings.Contains(string(data), "fixed now")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBuild_ContinuousSurvivesMissingConverter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires symlinks")
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	output := filepath.Join(dir, "doc.html")
	converterPath := filepath.Join(dir, "bin", "pandoc")
	testutil.WriteFile(t, source, "first")

	args := fakeArgs(t, testutil.ModeOK)
	exe := args[2]
	args[2] = converterPath

	args = append(args, "-c", "--poll-interval", "10ms", "--notify=false",
		"-o", filepath.Join(dir, "{filename}.html"), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandWith(ctx, nil, args...)
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	assert.NoFileExists(t, output)

	require.NoError(t, os.MkdirAll(filepath.Dir(converterPath), 0o755))
	require.NoError(t, os.Symlink(exe, converterPath))
	testutil.WriteFile(t, source, "second edit")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(output)
		return err == nil && strings.Contains(string(data), "second edit")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous build did not stop")
	}
}

func TestBuild_ContinuousRefusesSecondWatcher(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	args := append(fakeArgs(t, testutil.ModeOK),
		"-c", "--poll-interval", "10ms", "--notify=false",
		"-o", filepath.Join(dir, "{filename}.html"), source)

	done := make(chan error, 1)
	go func() {
		_, _, err := executeCommandWith(ctx, nil, args...)
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ".doc.md.panmk.lock"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	_, _, err := executeCommand(args...)
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "already watching")

	cancel()
	require.NoError(t, <-done)
}

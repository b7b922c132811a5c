package panmk_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/panmk/internal/testutil"
	"github.com/hupe1980/panmk/pkg/panmk"
)

func TestHelperProcess(*testing.T) { testutil.ServeFakeConverter() }

func fake(t *testing.T, mode string) []panmk.Option {
	t.Helper()

	exe, base := testutil.FakeConverter(t)

	return []panmk.Option{
		panmk.WithConverter(exe, base...),
		panmk.WithEnv(testutil.FakeEnv(mode)...),
	}
}

func TestBuild_EmptySource(t *testing.T) {
	_, err := panmk.Build(context.Background(), "", panmk.WithOutput("x.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source must not be empty")
}

func TestBuild_NoOutput(t *testing.T) {
	_, err := panmk.Build(context.Background(), "doc.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output template must not be empty")
}

func TestBuild_Compiles(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "# Hello\n")

	opts := append(fake(t, testutil.ModeWarn),
		panmk.WithOutput(filepath.Join(dir, panmk.Placeholder+".html")),
		panmk.WithExtraArgs("--standalone"),
	)

	result, err := panmk.Build(context.Background(), source, opts...)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, filepath.Join(dir, "doc.html"), result.OutputPath)
	assert.Contains(t, result.Diagnostics, "[WARNING]")

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "args: --standalone")

	again, err := panmk.Build(context.Background(), source, opts...)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	forced, err := panmk.Build(context.Background(), source, append(opts, panmk.WithForce())...)
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
}

func TestBuild_ConverterFailure(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "x")

	_, err := panmk.Build(context.Background(), source,
		append(fake(t, testutil.ModeFail), panmk.WithOutput(filepath.Join(dir, "doc.pdf")))...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
}

func TestBuild_UnknownReloader(t *testing.T) {
	_, err := panmk.Build(context.Background(), "doc.md",
		panmk.WithOutput("doc.pdf"),
		panmk.WithPreview(""),
		panmk.WithReloader("psychic"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown reloader "psychic"`)
}

func TestWatch_PreviewWithCustomStrategy(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "one")

	var launches, reloads atomic.Int32

	reg := panmk.DefaultRegistry()
	reg.RegisterLauncher("count", func(panmk.Settings) (panmk.LaunchFunc, error) {
		return func(_ context.Context, path string) (*panmk.Handle, error) {
			launches.Add(1)
			return panmk.NewDetachedHandle(path), nil
		}, nil
	})
	reg.RegisterReloader("count", func(panmk.Settings, panmk.LaunchFunc) (panmk.ReloadFunc, error) {
		return func(_ context.Context, h *panmk.Handle) (*panmk.Handle, error) {
			reloads.Add(1)
			return h, nil
		}, nil
	})

	var status bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- panmk.Watch(ctx, source, append(fake(t, testutil.ModeOK),
			panmk.WithOutput(filepath.Join(dir, "{filename}.html")),
			panmk.WithPreview(""),
			panmk.WithRegistry(reg),
			panmk.WithLoader("count"),
			panmk.WithReloader("count"),
			panmk.WithPollInterval(10*time.Millisecond),
			panmk.WithoutNotify(),
			panmk.WithStatusWriter(&status),
		)...)
	}()

	require.Eventually(t, func() bool { return launches.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	testutil.WriteFile(t, source, "two, longer")
	require.Eventually(t, func() bool { return reloads.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), launches.Load())
}

func TestWatch_EmptySource(t *testing.T) {
	err := panmk.Watch(context.Background(), "", panmk.WithOutput("x"))
	require.Error(t, err)
}

func TestRegistry_CustomReloaderSeesSettings(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "doc.md")
	testutil.WriteFile(t, source, "text")

	var got panmk.Settings

	reg := panmk.NewRegistry()
	reg.RegisterLauncher(panmk.LoaderDefault, func(s panmk.Settings) (panmk.LaunchFunc, error) {
		got = s
		return func(_ context.Context, path string) (*panmk.Handle, error) {
			return panmk.NewDetachedHandle(path), nil
		}, nil
	})
	reg.RegisterReloader(panmk.ReloaderNone, func(panmk.Settings, panmk.LaunchFunc) (panmk.ReloadFunc, error) {
		return func(_ context.Context, h *panmk.Handle) (*panmk.Handle, error) { return h, nil }, nil
	})

	_, err := panmk.Build(context.Background(), source, append(fake(t, testutil.ModeOK),
		panmk.WithOutput(filepath.Join(dir, "{filename}.html")),
		panmk.WithPreview("my-viewer --reload"),
		panmk.WithPlatform(panmk.Darwin),
		panmk.WithReloadSignal("USR1"),
		panmk.WithRegistry(reg),
	)...)
	require.NoError(t, err)

	assert.Equal(t, panmk.Settings{Platform: panmk.Darwin, Viewer: "my-viewer --reload", ReloadSignal: "USR1"}, got)
	assert.ElementsMatch(t, []string{panmk.ReloaderNone}, reg.Reloaders())
}

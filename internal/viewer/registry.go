package viewer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/panmk/internal/platform"
)

// Built-in strategy names.
const (
	LoaderDefault    = "default"
	ReloaderNone     = "none"
	ReloaderRelaunch = "relaunch"
	ReloaderSignal   = "signal"
)

// ReloadFunc tells the viewer behind h that its file changed. It returns the
// handle to keep, which may be a new one.
type ReloadFunc func(ctx context.Context, h *Handle) (*Handle, error)

// Settings carries the configuration strategy factories may consult.
type Settings struct {
	Platform     platform.Class
	Viewer       string
	ReloadSignal string
}

// LauncherFactory builds a LaunchFunc from settings.
type LauncherFactory func(s Settings) (LaunchFunc, error)

// ReloaderFactory builds a ReloadFunc from settings. launch is the launch
// strategy selected for the same controller.
type ReloaderFactory func(s Settings, launch LaunchFunc) (ReloadFunc, error)

// Registry maps strategy names to factories. It is the extension point for
// viewers that need custom launch or reload behaviour: callers register a
// Go function under a name and select it with the loader/reloader keys.
type Registry struct {
	mu        sync.RWMutex
	launchers map[string]LauncherFactory
	reloaders map[string]ReloaderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		launchers: make(map[string]LauncherFactory),
		reloaders: make(map[string]ReloaderFactory),
	}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterLauncher(LoaderDefault, func(s Settings) (LaunchFunc, error) {
		return NewLauncher(s.Platform, s.Viewer), nil
	})

	r.RegisterReloader(ReloaderNone, func(Settings, LaunchFunc) (ReloadFunc, error) {
		return NoopReloader, nil
	})

	r.RegisterReloader(ReloaderRelaunch, func(_ Settings, launch LaunchFunc) (ReloadFunc, error) {
		return RelaunchReloader(launch), nil
	})

	r.RegisterReloader(ReloaderSignal, func(s Settings, _ LaunchFunc) (ReloadFunc, error) {
		return SignalReloader(s.ReloadSignal)
	})

	return r
}

// RegisterLauncher adds a launch strategy. Existing entries for the same
// name are overwritten.
func (r *Registry) RegisterLauncher(name string, factory LauncherFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.launchers[name] = factory
}

// RegisterReloader adds a reload strategy. Existing entries for the same
// name are overwritten.
func (r *Registry) RegisterReloader(name string, factory ReloaderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloaders[name] = factory
}

// Launcher returns the factory registered under name.
func (r *Registry) Launcher(name string) (LauncherFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.launchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown loader %q (available: %s)", name, strings.Join(sortedKeys(r.launchers), ", "))
	}

	return f, nil
}

// Reloader returns the factory registered under name.
func (r *Registry) Reloader(name string) (ReloaderFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.reloaders[name]
	if !ok {
		return nil, fmt.Errorf("unknown reloader %q (available: %s)", name, strings.Join(sortedKeys(r.reloaders), ", "))
	}

	return f, nil
}

// Launchers returns the registered launch strategy names, sorted.
func (r *Registry) Launchers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.launchers)
}

// Reloaders returns the registered reload strategy names, sorted.
func (r *Registry) Reloaders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.reloaders)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

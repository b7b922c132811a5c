package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// notifier turns fsnotify events for one file into wake-ups. It watches the
// parent directory so that editors replacing the file by rename are seen.
type notifier struct {
	watcher *fsnotify.Watcher
	target  string
	logger  *slog.Logger
	done    chan struct{}
}

// startNotifier watches path and calls trigger for each relevant event.
func startNotifier(path string, logger *slog.Logger, trigger func()) (*notifier, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching directory %q: %w", dir, err)
	}

	n := &notifier{
		watcher: watcher,
		target:  abs,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go n.loop(trigger)

	return n, nil
}

func (n *notifier) loop(trigger func()) {
	defer close(n.done)

	for {
		select {
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}

			if isRelevant(event, n.target) {
				trigger()
			}

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}

			n.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher and waits for the event goroutine to exit.
func (n *notifier) Close() error {
	err := n.watcher.Close()
	<-n.done

	return err
}

// isRelevant keeps events on target. Chmod counts because touch(1) only
// changes attributes.
func isRelevant(event fsnotify.Event, target string) bool {
	if event.Op == 0 {
		return false
	}

	if filepath.Clean(event.Name) != target {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) ||
		event.Has(fsnotify.Chmod)
}

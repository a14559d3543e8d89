package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors and ConfigMap volume
// updates produce for a single change.
const reloadDebounce = 250 * time.Millisecond

// WatchWorkloads calls onChange with the reloaded declarations each time
// the file at path changes, until ctx is canceled. The parent directory is
// watched so atomic renames (as done for mounted ConfigMaps) are seen.
// Unreadable intermediate states are logged and skipped.
func WatchWorkloads(ctx context.Context, path string, onChange func(*WorkloadSet)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		debounce := time.NewTimer(0)
		<-debounce.C
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				debounce.Reset(reloadDebounce)

			case <-debounce.C:
				set, err := LoadWorkloads(path)
				if err != nil {
					slog.Warn("workloads reload failed, keeping previous declarations", "path", path, "error", err)
					continue
				}
				for _, rej := range set.Rejected {
					slog.Warn("workload declaration rejected", "error", rej)
				}
				onChange(set)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("workloads watcher error", "error", err)
			}
		}
	}()
	return nil
}

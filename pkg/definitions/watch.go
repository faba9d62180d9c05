package definitions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval lets the events of one save (write, rename) settle
// before the bundle is read again.
const DebounceInterval = 100 * time.Millisecond

// Watch re-applies the bundle at path whenever its content changes, until
// ctx is done. The parent directory is watched so that editors and deploy
// tools replacing the file atomically are noticed too. A bundle that fails
// to load or apply is logged and the previous definitions stay in place.
func Watch(ctx context.Context, path string, applier *Applier, logger *slog.Logger) error {
	logger = logger.With("module", "definitions_watch", "file", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	name := filepath.Base(path)

	// nil so that the first notification always applies; Apply is an upsert.
	var last []byte

	debounce := time.NewTimer(DebounceInterval)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != name {
				continue
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			debounce.Reset(DebounceInterval)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnContext(ctx, "Watcher error", "error", err)
		case <-debounce.C:
			current := hashFile(path)
			if current == nil || bytes.Equal(current, last) {
				continue
			}

			last = current

			if err := reload(ctx, path, applier); err != nil {
				logger.ErrorContext(ctx, "Failed to reload definitions", "error", err)

				continue
			}

			logger.InfoContext(ctx, "Definitions reloaded")
		}
	}
}

func reload(ctx context.Context, path string, applier *Applier) error {
	bundle, err := LoadFile(path)
	if err != nil {
		return err
	}

	_, err = applier.Apply(ctx, bundle)

	return err
}

func hashFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	sum := sha256.Sum256(data)

	return sum[:]
}

package targets

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DebounceDelay is the quiet period after the last file event before a reload.
const DebounceDelay = 250 * time.Millisecond

// Watch reloads the targets file on every change and passes the result to onChange,
// until ctx is done. A file that fails to load is logged and skipped, so the
// previous list stays active. The parent directory is watched to survive
// editors replacing the file.
func Watch(ctx context.Context, path string, onChange func([]Target)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(absPath), err)
	}

	logger := log.With().Str("component", "targets").Str("path", absPath).Logger()
	logger.Info().Msg("Watching targets file")

	timer := time.NewTimer(DebounceDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(DebounceDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("File watcher error")

		case <-timer.C:
			list, err := LoadFile(absPath)
			if err != nil {
				logger.Warn().Err(err).Msg("Targets file reload failed, keeping previous list")
				continue
			}
			logger.Info().Int("targets", len(list)).Msg("Targets file reloaded")
			onChange(list)
		}
	}
}

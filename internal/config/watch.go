package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/confgate/internal/logfields"
)

// Watch observes the configuration file and invokes onChange with the freshly
// loaded configuration whenever the file is written. Reload failures are
// logged and the previous configuration stays in effect. Watch returns when
// ctx is cancelled.
//
// Only operational settings (currently the log level) are safe to change at
// runtime; callers decide what to apply.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace files, which drops a file-level watch.
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("Configuration reload failed, keeping previous settings",
					logfields.Path(path), logfields.Error(err))
				continue
			}
			slog.Info("Configuration reloaded", logfields.Path(path))
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Configuration watcher error", logfields.Error(err))
		}
	}
}

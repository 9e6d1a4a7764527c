package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file at path whenever it changes on disk and
// invokes onReload with the freshly parsed Config. It runs until ctx is
// cancelled. A zero path disables watching (nothing ever fires). Most
// fields in Config are read once at process startup to build long-lived
// collaborators (broker connections, store handles) that Watch has no
// way to safely rebuild in place; cmd/tripsd only acts on LogLevel from
// onReload for this reason.
func Watch(ctx context.Context, path string, logger *zap.Logger, onReload func(Config)) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config: reload failed, keeping previous config", zap.Error(err))
					continue
				}
				logger.Info("config: reloaded", zap.String("path", path))
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

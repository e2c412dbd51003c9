package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads Config from disk on write and hands the new value to
// onChange. Mirrors the teacher's plugin.Loader hot-reload watcher
// (fsnotify.Watcher over one directory, filtered to the file of interest)
// applied to the config file instead of a plugins directory.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	logger     *zap.Logger
	onChange   func(*Config)
	done       chan struct{}
}

// WatchFile starts watching configPath's containing directory (fsnotify
// watches directories more reliably than bare files across editors that
// write-then-rename) and reloads on every event touching configPath.
func WatchFile(configPath string, logger *zap.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:    fsw,
		configPath: configPath,
		logger:     logger,
		onChange:   onChange,
		done:       make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.configPath)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous configuration", zap.Error(err))
				continue
			}
			w.logger.Info("configuration reloaded", zap.String("path", w.configPath))
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

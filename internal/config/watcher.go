package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTargets holds callbacks that fire when watched files change.
type WatchTargets struct {
	// OnLogChange fires when the time log file is written, created, or
	// replaced. `timeclock watch` re-verifies the chain here, so edits made
	// outside the tool are reported as soon as they land.
	OnLogChange func()

	// OnConfigChange fires when config.yaml is written or created.
	OnConfigChange func()
}

// Watcher monitors the directories holding the time log and config.yaml
// using fsnotify and fires the matching callback on change.
//
// The watcher runs a background goroutine that processes fsnotify events.
// Call Close() to stop the watcher and release resources.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logName   string
	done      chan struct{}
}

// NewWatcher watches logPath and configPath. Their parent directories are
// watched rather than the files, because the log is replaced by rename on
// every save and a file watch would be lost after the first write.
func NewWatcher(logPath, configPath string, targets WatchTargets) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dirs := map[string]bool{filepath.Dir(logPath): true}
	if configPath != "" {
		dirs[filepath.Dir(configPath)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}

	w := &Watcher{
		fsWatcher: fw,
		logName:   filepath.Base(logPath),
		done:      make(chan struct{}),
	}

	configName := ""
	if configPath != "" {
		configName = filepath.Base(configPath)
	}

	go w.processEvents(configName, targets)

	slog.Info("file watcher started", "log", logPath)
	return w, nil
}

// processEvents reads fsnotify events and dispatches to the appropriate
// callback. Runs in a background goroutine until Close() is called.
func (w *Watcher) processEvents(configName string, targets WatchTargets) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// Saves land as a Create (rename over the old file); editors
			// and other tools usually produce a Write.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			switch filepath.Base(event.Name) {
			case w.logName:
				slog.Debug("time log changed", "file", event.Name, "op", event.Op.String())
				if targets.OnLogChange != nil {
					targets.OnLogChange()
				}
			case configName:
				slog.Info("config changed", "file", event.Name)
				if targets.OnConfigChange != nil {
					targets.OnConfigChange()
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the file watcher goroutine and releases the underlying
// fsnotify watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}

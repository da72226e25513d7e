package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the file at path whenever it changes and passes each valid
// snapshot to onChange. Invalid edits are logged and skipped. It blocks
// until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	w := &watcher{path: path, onChange: onChange}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		return w.poll(ctx)
	}
	defer fw.Close()

	// Directory watch catches editors that replace the file via rename.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to watch config directory, falling back to polling")
		return w.poll(ctx)
	}
	log.WithField("path", path).Info("config watcher started using fsnotify")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type watcher struct {
	path     string
	lastMod  time.Time
	onChange func(*Config)
}

func (w *watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if info, err := os.Stat(w.path); err == nil && info.ModTime().After(w.lastMod) {
				w.lastMod = info.ModTime()
				w.reload()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).WithField("path", w.path).Warn("failed to reload config")
		return
	}
	log.WithField("path", w.path).Info("config reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

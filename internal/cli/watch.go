package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// fileWatcher calls fire once per burst of changes to the watched files.
// Parent directories are watched so that editors replacing a file by rename
// are still seen.
type fileWatcher struct {
	fs    *fsnotify.Watcher
	files map[string]bool
	delay time.Duration
	fire  func()
	log   zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

func watchFiles(paths []string, delay time.Duration, log zerolog.Logger, fire func()) (*fileWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &fileWatcher{
		fs:    fs,
		files: make(map[string]bool),
		delay: delay,
		fire:  fire,
		log:   log,
		done:  make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	go w.loop()
	return w, nil
}

func (w *fileWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("watched file changed")
			w.schedule()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *fileWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

// Close stops watching. A pending reload is dropped.
func (w *fileWatcher) Close() error {
	err := w.fs.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

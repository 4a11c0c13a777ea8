package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is called after the config file changes on disk.
type ChangeHandler func(*Config)

// Watcher reloads the engine config on file change and fans the new value
// out to registered handlers (main uses it to invalidate the policy cache
// without a restart).
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	handlers []ChangeHandler
}

// NewWatcher creates a config file watcher for path.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and config maps replace the file.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a handler.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching until Stop.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				w.logger.Warn("Config reload failed, keeping previous values", zap.Error(err))
				continue
			}
			w.logger.Info("Configuration reloaded", zap.String("path", w.path))
			w.mu.Lock()
			handlers := append([]ChangeHandler(nil), w.handlers...)
			w.mu.Unlock()
			for _, h := range handlers {
				h(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// Stop ends watching.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

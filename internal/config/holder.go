package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// Holder provides atomic, hot-reloadable access to Config, watching the
// backing file (if any) via fsnotify. Only the ambient, file-backed
// fields are expected to change across a reload; callers that cache
// derived state (cluster peers, TTL limits) should re-read Holder.Get()
// on every use rather than caching it themselves.
type Holder struct {
	loader  *Loader
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
}

// NewHolder loads the initial configuration. It does not watch the file;
// call WatchFile for that.
func NewHolder(loader *Loader) (*Holder, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	h := &Holder{loader: loader}
	h.current.Store(&cfg)
	return h, nil
}

// Get returns the current configuration snapshot.
func (h *Holder) Get() Config {
	return *h.current.Load()
}

// WatchFile begins watching the loader's backing file for writes,
// reloading on each event. Errors during reload are logged and the
// previous configuration is kept (spec.md ambient-stack style: never
// apply a partially-valid config).
func (h *Holder) WatchFile(path string) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return err
	}
	h.watcher = watcher

	logger := log.WithComponent("config")
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := h.loader.Load()
				if err != nil {
					logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
					continue
				}
				h.current.Store(&cfg)
				logger.Info().Msg("configuration reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if running.
func (h *Holder) Close() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Close()
}

package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/docuhub/gsadapt/common"
)

// Listener is notified with the freshly reloaded Config whenever the
// backing file changes.
type Listener func(cfg *Config)

// Watcher re-reads the config file on change (via viper's fsnotify
// integration) and fans out to registered Listeners. This is what lets
// schedule.Scheduler reschedule adaptor.fullListingSchedule without a
// process restart.
type Watcher struct {
	mu        sync.Mutex
	v         *viper.Viper
	listeners []Listener
	logger    *common.ContextLogger
}

// NewWatcher wraps v, registering viper's own fsnotify-backed OnConfigChange
// hook to reload and notify listeners.
func NewWatcher(v *viper.Viper) *Watcher {
	w := &Watcher{v: v, logger: common.ServiceLogger("config")}
	v.OnConfigChange(func(e fsnotify.Event) {
		w.reload()
	})
	v.WatchConfig()
	return w
}

// Subscribe registers a Listener invoked after every successful reload.
func (w *Watcher) Subscribe(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.v)
	if err != nil {
		w.logger.WithError(err).Error("config reload failed validation, keeping previous config")
		return
	}

	w.mu.Lock()
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	for _, l := range listeners {
		l(cfg)
	}
}

package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the config file used by a viper instance whenever it
// changes on disk and hands every valid result to a callback. Invalid
// edits are logged and ignored.
type Watcher struct {
	v        *viper.Viper
	file     string
	onChange func(Config)
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the file v was loaded from.
func NewWatcher(v *viper.Viper, onChange func(Config), logger *zap.Logger) (*Watcher, error) {
	file := v.ConfigFileUsed()
	if file == "" {
		return nil, errors.New("no config file in use")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		v:        v,
		file:     abs,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the directory holding the config file.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.file)); err != nil {
		return err
	}

	go w.loop()
	return nil
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer = time.After(reloadDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))
		case <-timer:
			timer = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := w.v.ReadInConfig(); err != nil {
		w.logger.Warn("failed to reread config", zap.String("file", w.file), zap.Error(err))
		return
	}
	cfg, err := LoadFrom(w.v)
	if err != nil {
		w.logger.Warn("ignoring invalid config", zap.String("file", w.file), zap.Error(err))
		return
	}

	w.logger.Info("config reloaded", zap.String("file", w.file))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

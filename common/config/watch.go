package config

import (
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadChan is notified after a hot-reload swap, so interested components
// (the boundary server's bind address/port, the registry's db path) can
// decide whether to remount. It mirrors the teacher's per-concern
// globals.*ReloadChan fan-out, collapsed to a single channel since this
// config has no equivalent to the teacher's several independently-
// reloadable subsystems.
var ReloadChan = make(chan struct{}, 1)

// Watch starts watching Path for changes and hot-reloads the singleton on
// each debounced change. The caller owns the returned watcher's lifetime.
func Watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(Path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		debounced := debounce.New(1 * time.Second)
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				debounced(onFileChanged)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Error("config: watcher error: ", err)
			}
		}
	}()

	return watcher, nil
}

func onFileChanged() {
	logrus.Info("config: change detected, reloading")
	c, err := reloadConfig()
	if err != nil {
		logrus.Error("config: reload failed, keeping previous configuration: ", err)
		return
	}
	set(c)
	select {
	case ReloadChan <- struct{}{}:
	default:
	}
}

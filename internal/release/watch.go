package release

import (
	"context"
	"os"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// pollInterval is the fallback check used alongside fsnotify: removable
// media going offline doesn't always fire a filesystem event before the
// mount point itself disappears out from under the watcher.
const pollInterval = 5 * time.Second

// WatchLocation starts a background watcher that toggles
// IsLocationAvailable as the install directory appears or disappears (§5
// "A file watcher on the install location toggles isLocationAvailable").
// It returns at once when no location is set, and otherwise once ctx is
// cancelled.
func (r *Release) WatchLocation(ctx context.Context) {
	r.mu.Lock()
	location := r.state.Location
	r.mu.Unlock()
	if location == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Warn("release: fsnotify unavailable, falling back to polling only: ", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(location); err != nil {
			logrus.Warn("release: could not watch ", location, ": ", err)
		}
	}

	recheck := debounce.New(250 * time.Millisecond)
	doCheck := func() {
		_, err := os.Stat(location)
		r.setLocationAvailable(err == nil)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doCheck()
		case event, ok := <-watchEvents(watcher):
			if !ok {
				continue
			}
			_ = event
			recheck(doCheck)
		case err, ok := <-watchErrors(watcher):
			if !ok {
				continue
			}
			logrus.Warn("release: watcher error for ", location, ": ", err)
		}
	}
}

// watchEvents returns w.Events, or a nil channel (which blocks forever in
// a select, never firing) when w is nil.
func watchEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func watchErrors(w *fsnotify.Watcher) chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}

package repository

import (
	"context"
	"reflect"
	"time"

	"github.com/olebedev/emitter"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
)

// Watch polls cytrus.json every interval, emitting "update" with the new
// list when it is deep-unequal from the previous one, and "check-failed"
// with the error when the fetch fails (§4.2 "Polling"). It stops when ctx is
// cancelled.
func (c *Client) Watch(ctx context.Context, initial *manifest.GameList, interval time.Duration) *emitter.Emitter {
	bus := &emitter.Emitter{}
	previous := initial

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				latest, err := c.GetGamesList(ctx)
				if err != nil {
					<-bus.Emit("check-failed", err)
					continue
				}
				if previous == nil || !reflect.DeepEqual(previous, latest) {
					previous = latest
					<-bus.Emit("update", latest)
				}
			}
		}
	}()

	return bus
}

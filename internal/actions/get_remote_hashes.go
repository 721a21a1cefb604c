package actions

import (
	"context"

	"github.com/kestrelgames/cytrus-updater/common/rcontext"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// GetRemoteHashes fetches the release's file list from the repository and
// stores it on the context as RemoteHashes (§4.6). A hit on uc.ManifestCache
// (when one is attached) skips the repository round trip entirely.
func GetRemoteHashes(ctx context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		if uc.ManifestCache != nil {
			if m, ok := uc.ManifestCache.GetManifest(uc.GameUID, uc.Channel, uc.Platform, uc.Version); ok {
				uc.RemoteHashes = m
				return nil
			}
		}

		m, err := uc.Repository.GetRelease(ctx, uc.GameUID, uc.Channel, uc.Platform, uc.Version)
		if err != nil {
			return err
		}
		uc.RemoteHashes = m

		if uc.ManifestCache != nil {
			if err := uc.ManifestCache.PutManifest(uc.GameUID, uc.Channel, uc.Platform, uc.Version, m); err != nil {
				rcontext.LoggerFrom(ctx).Warn("actions: failed caching remote manifest: ", err)
			}
		}
		return nil
	})
}

package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// HashesFileName is the on-disk name of the per-release local manifest.
const HashesFileName = ".release.hashes.json"

// GetLocalHashes reads location's .release.hashes.json into
// ctx.LocalHashes. A missing or unparseable file surfaces as
// LocalHashesError so the Sequencer can auto-schedule a REPAIR (§4.6, §7).
func GetLocalHashes(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		path := filepath.Join(uc.Location, HashesFileName)
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				uc.LocalHashes = manifest.Manifest{}
				return &LocalHashesError{Location: uc.Location, Err: err}
			}
			return &LocalHashesError{Location: uc.Location, Err: err}
		}

		var m manifest.Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return &LocalHashesError{Location: uc.Location, Err: err}
		}
		uc.LocalHashes = m
		return nil
	})
}

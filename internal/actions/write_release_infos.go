package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// InfosFileName is the on-disk name of the per-release identity record.
const InfosFileName = ".release.infos.json"

// releaseInfos is the {gameUid, release} record written by WriteReleaseInfos.
type releaseInfos struct {
	GameUID string `json:"gameUid"`
	Release string `json:"release"`
}

// WriteReleaseInfos persists the release's identity to .release.infos.json
// (§4.6).
func WriteReleaseInfos(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		infos := releaseInfos{GameUID: uc.GameUID, Release: uc.Channel + "/" + uc.Version}
		raw, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(uc.Location, InfosFileName), raw, 0o644)
	})
}

package actions

import (
	"context"

	"github.com/kestrelgames/cytrus-updater/internal/diff"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// CreateDiff runs the DiffEngine over the context's full local/remote
// manifests and current fragment selection, storing the result as ctx.Diff
// (§4.5, §4.6). It always hands Compute the complete manifests: Compute
// itself already knows how to skip an unselected fragment with no local
// copy and tombstone one that is locally present (§4.5 steps 1 and 3), and
// it can only make that call correctly if it can see every fragment, not
// just the ones the caller happens to be interested in downloading next.
//
// The Sequencer calls this twice per run - once scoped in spirit to the
// configuration fragment (before the rest of the release's selection is
// even known) and once after - but both calls recompute the same full
// diff against whatever ctx.FragmentSelection is at the time; the second
// call's result is what finalization (DeleteFiles, SaveHashes) sees, so it
// is never missing the configuration fragment's own entries or a
// since-deselected fragment's tombstones the way a manifest narrowed down
// to "the fragments we're about to download" would be.
func CreateDiff(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		uc.Diff = diff.Compute(uc.FragmentSelection, uc.LocalHashes, uc.RemoteHashes)
		return nil
	})
}

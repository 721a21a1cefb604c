package sequencer

import (
	"context"

	"github.com/kestrelgames/cytrus-updater/internal/actions"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// stepKind classifies a queuedStep for the purposes of progress
// aggregation and the "cancellable on fragment change" rule (§4.7).
type stepKind int

const (
	stepOther stepKind = iota
	stepCreateDiff
	stepDownloadFragment
)

type queuedStep struct {
	name      string
	kind      stepKind
	fragments []string // scope for stepCreateDiff; the single fragment for stepDownloadFragment
	run       func(ctx context.Context, uc *actions.Context) *task.Task
}

func simpleStep(name string, fn func(ctx context.Context, uc *actions.Context) *task.Task) *queuedStep {
	return &queuedStep{name: name, kind: stepOther, run: fn}
}

func createDiffStep(name string, scope []string) *queuedStep {
	return &queuedStep{
		name:      name,
		kind:      stepCreateDiff,
		fragments: scope,
		run: func(ctx context.Context, uc *actions.Context) *task.Task {
			return actions.CreateDiff(ctx, uc)
		},
	}
}

func downloadFragmentStep(fragment string) *queuedStep {
	return &queuedStep{
		name:      "DownloadFragment[" + fragment + "]",
		kind:      stepDownloadFragment,
		fragments: []string{fragment},
		run: func(ctx context.Context, uc *actions.Context) *task.Task {
			return actions.DownloadFragment(ctx, uc, fragment)
		},
	}
}

// buildQueue composes the initial action queue for kind, per §4.7's table.
// fragments is the release's current fragment selection (non-configuration
// fragments only); the configuration fragment is always implicit.
func buildQueue(kind Type, fragments []string) []*queuedStep {
	switch kind {
	case PreInstall:
		return preInstallQueue()
	case Install:
		return append(commonPrelude(false), installTail(fragments)...)
	case Update:
		return append(commonPrelude(true), installTail(fragments)...)
	case Repair:
		return append(commonPrelude(false), installTail(fragments)...)
	default:
		return nil
	}
}

func preInstallQueue() []*queuedStep {
	return []*queuedStep{
		simpleStep("GetRemoteHashes", actions.GetRemoteHashes),
		createDiffStep("CreateDiff[configuration]", []string{manifest.ConfigurationFragment}),
		downloadFragmentStep(manifest.ConfigurationFragment),
		simpleStep("LoadConfiguration", actions.LoadConfiguration),
	}
}

// commonPrelude is GetRemoteHashes -> [Repair|GetLocalHashes] ->
// CreateDiff[configuration] -> DownloadFragment[configuration] ->
// LoadConfiguration -> CheckConfiguration -> WriteReleaseInfos. withLocal
// selects GetLocalHashes (UPDATE); Repair is used for INSTALL/REPAIR runs
// where there either is no prior local state or it can't be trusted.
func commonPrelude(withLocal bool) []*queuedStep {
	steps := []*queuedStep{
		simpleStep("GetRemoteHashes", actions.GetRemoteHashes),
	}
	if withLocal {
		steps = append(steps, simpleStep("GetLocalHashes", actions.GetLocalHashes))
	} else {
		steps = append(steps, simpleStep("Repair", actions.Repair))
	}
	steps = append(steps,
		createDiffStep("CreateDiff[configuration]", []string{manifest.ConfigurationFragment}),
		downloadFragmentStep(manifest.ConfigurationFragment),
		simpleStep("LoadConfiguration", actions.LoadConfiguration),
		simpleStep("CheckConfiguration", actions.CheckConfiguration),
		simpleStep("WriteReleaseInfos", actions.WriteReleaseInfos),
	)
	return steps
}

// installTail is per-fragment downloads followed by finalization:
// CreateDiff[fragments] -> {CreateDirectories, DownloadFragment} per
// fragment -> DeleteFiles -> ClearEmptyDirectories -> SaveHashes.
func installTail(fragments []string) []*queuedStep {
	steps := []*queuedStep{
		createDiffStep("CreateDiff[fragments]", fragments),
	}
	for _, frag := range fragments {
		frag := frag
		steps = append(steps,
			simpleStep("CreateDirectories["+frag+"]", func(ctx context.Context, uc *actions.Context) *task.Task {
				return actions.CreateDirectories(ctx, uc, frag)
			}),
			downloadFragmentStep(frag),
		)
	}
	steps = append(steps, finalizationSteps()...)
	return steps
}

func finalizationSteps() []*queuedStep {
	return []*queuedStep{
		simpleStep("DeleteFiles", actions.DeleteFiles),
		simpleStep("ClearEmptyDirectories", actions.ClearEmptyDirectories),
		simpleStep("SaveHashes", actions.SaveHashes),
	}
}

package sequencer

import (
	"errors"

	"github.com/kestrelgames/cytrus-updater/internal/actions"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
)

// errFragmentChangeRebuild is the context.Cause recorded on a step's
// derived context when OnFragmentsChanged cancels it mid-flight.
var errFragmentChangeRebuild = errors.New("sequencer: fragment selection changed, rebuilding queue")

// OnFragmentsChanged applies §4.7's "fragment-change mid-flight" rule: it
// clears every still-queued cancellable action, checkpoints with
// SaveHashes, and rebuilds CreateDiff + per-fragment downloads +
// finalization against the new fragment list. If the action currently
// executing is itself cancellable on fragment change - a DownloadFragment
// whose fragment isn't configuration, or a CreateDiff whose scope isn't
// exclusively configuration - its context is cancelled so the rebuilt
// queue can start immediately; GetRemoteHashes, GetLocalHashes,
// LoadConfiguration, CheckConfiguration, and WriteReleaseInfos are never
// cancelled this way (§8: "Fragment change during GetRemoteHashes does
// not cancel that action").
func (s *Sequencer) OnFragmentsChanged(fragments []string) {
	s.mu.Lock()
	s.Context.FragmentSelection = fragments

	rebuilt := append([]*queuedStep{checkpointStep()}, installTail(fragments)...)
	s.queue = rebuilt

	cancelCurrent := s.current != nil && isCancellableOnFragmentChange(s.current)
	cancel := s.cancelStep
	s.mu.Unlock()

	if cancelCurrent && cancel != nil {
		cancel(errFragmentChangeRebuild)
	}
}

func checkpointStep() *queuedStep {
	return simpleStep("SaveHashes[checkpoint]", actions.SaveHashes)
}

func isCancellableOnFragmentChange(step *queuedStep) bool {
	switch step.kind {
	case stepDownloadFragment:
		return len(step.fragments) != 1 || step.fragments[0] != manifest.ConfigurationFragment
	case stepCreateDiff:
		return !isExclusivelyConfiguration(step.fragments)
	default:
		return false
	}
}

func isExclusivelyConfiguration(scope []string) bool {
	if len(scope) == 0 {
		return false // an unscoped CreateDiff touches every fragment
	}
	for _, name := range scope {
		if name != manifest.ConfigurationFragment {
			return false
		}
	}
	return true
}

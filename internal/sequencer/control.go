package sequencer

import (
	"errors"

	"github.com/kestrelgames/cytrus-updater/internal/metrics"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// ErrNoCurrentAction is returned by Pause/Resume when no action is
// currently executing to forward the call to.
var ErrNoCurrentAction = errors.New("sequencer: no action currently running")

// errStopRequested is the context.Cause recorded on a step's derived
// context when Stop() cancels it.
var errStopRequested = errors.New("sequencer: stop requested")

// Pause forwards to the current action's Task. The byUser/non-user
// distinction (connectivity loss, self-update downloading) only affects
// whether the release record's pausedByUser flag is set, which is the
// caller's responsibility, not the Sequencer's.
func (s *Sequencer) Pause(byUser bool) error {
	t := s.currentActionTask()
	if t == nil {
		return ErrNoCurrentAction
	}
	return t.Pause()
}

// Resume forwards to the current action's Task.
func (s *Sequencer) Resume() error {
	t := s.currentActionTask()
	if t == nil {
		return ErrNoCurrentAction
	}
	return t.Resume()
}

// Stop requests the sequencer wind down: the current action's context is
// cancelled, remaining queued actions are dropped, and a final cancel
// event is emitted once Run observes the Stopping state (§4.7).
func (s *Sequencer) Stop() error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return errors.New("sequencer: not running")
	}
	prev := s.state
	s.state = Stopping
	s.queue = nil
	cancel := s.cancelStep
	s.mu.Unlock()

	metrics.SequencerState.WithLabelValues(s.Context.GameUID, s.Context.Channel, prev.String()).Set(0)
	metrics.SequencerState.WithLabelValues(s.Context.GameUID, s.Context.Channel, Stopping.String()).Set(1)

	if cancel != nil {
		cancel(errStopRequested)
	}
	return nil
}

func (s *Sequencer) currentActionTask() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTask
}

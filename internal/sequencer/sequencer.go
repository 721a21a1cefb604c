// Package sequencer implements the UpdateSequencer (C7): a finite action
// queue driven to completion for one release update run, with fragment
// mid-flight rebuilds, progress aggregation, periodic checkpointing, and
// pause/resume/stop forwarded to whichever action is currently executing.
//
// It is grounded on the teacher's tasks/task_runner package (a plain
// function taking a context + params, reporting completion or an error via
// markDone/markError) generalized into an ordered list of such functions
// driven by internal/task's FSM instead of a one-shot background job.
package sequencer

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/emitter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/actions"
	"github.com/kestrelgames/cytrus-updater/internal/metrics"
	"github.com/kestrelgames/cytrus-updater/internal/task"
	"github.com/kestrelgames/cytrus-updater/util"
)

// Type is the kind of run a Sequencer was built for (§4.7).
type Type int

const (
	PreInstall Type = iota
	Install
	Update
	Repair
)

func (t Type) String() string {
	switch t {
	case PreInstall:
		return "pre_install"
	case Install:
		return "install"
	case Update:
		return "update"
	case Repair:
		return "repair"
	default:
		return "unknown"
	}
}

// State is the Sequencer's own lifecycle state, independent of the
// ControllableTask state of whichever action is currently running.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Completed
	Errored
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// checkpointInterval is how often SaveHashes runs while the sequencer is
// active, cleared on pause/stop (§4.7).
const checkpointInterval = 10 * time.Second

// Release is the subset of ReleaseStore behavior the Sequencer drives on
// error/completion (§7's propagation policy). The concrete implementation
// lives in internal/release; this interface keeps the two packages
// decoupled.
type Release interface {
	MarkDirty() error
	ClearTransientFlags() error
	ForgetLocation() error
	SetInstalledFragments(fragments []string) error
	ScheduleRepair()
	WriteLicenses(location, licensesFolder string) error

	// RecordDownloadProgress persists a coarse download-progress checkpoint
	// so a restart mid-update can report "resuming an N-byte update"
	// without re-deriving it from the filesystem.
	RecordDownloadProgress(bytes int64, unixMillis int64) error

	// SetOpenedByExternalProcess records the advisory §9 Open Questions
	// flag: a delete/move failing because some other process still has a
	// handle open on a file under the install location.
	SetOpenedByExternalProcess(held bool) error
}

// Sequencer drives one release's action queue to completion.
type Sequencer struct {
	ID      string
	Kind    Type
	Context *actions.Context
	release Release

	bus *emitter.Emitter

	mu          sync.Mutex
	state       State
	queue       []*queuedStep
	current     *queuedStep
	currentTask *task.Task
	cancelStep  context.CancelCauseFunc

	progress *progressTracker

	stopCheckpoint chan struct{}
	runDone        chan struct{}
}

// New builds a Sequencer for one update run, with its initial queue
// composed per §4.7's table for kind.
func New(kind Type, uc *actions.Context, release Release) *Sequencer {
	s := &Sequencer{
		ID:      uuid.NewString(),
		Kind:    kind,
		Context: uc,
		release: release,
		bus:     &emitter.Emitter{},
		state:   Idle,
		queue:    buildQueue(kind, uc.FragmentSelection),
		progress: newProgressTracker(),
	}
	return s
}

// On subscribes to one of the Sequencer's lifecycle events: "progress",
// "cancel", "error", "completed" (§4.7).
func (s *Sequencer) On(event string) <-chan emitter.Event {
	return s.bus.On(event)
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState updates the sequencer's own state and mirrors it onto the
// per-release SequencerState gauge, clearing the previous state's label so
// stale states don't linger in the exposition.
func (s *Sequencer) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	labels := func(st State) []string { return []string{s.Context.GameUID, s.Context.Channel, st.String()} }
	if prev != state {
		metrics.SequencerState.WithLabelValues(labels(prev)...).Set(0)
	}
	metrics.SequencerState.WithLabelValues(labels(state)...).Set(1)
}

// Run drives the queue to completion, returning only once the sequencer
// has reached a terminal state. It is meant to be called from the
// UpdateQueue's single active-sequencer goroutine.
func (s *Sequencer) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return errors.New("sequencer: already run")
	}
	s.stopCheckpoint = make(chan struct{})
	s.runDone = make(chan struct{})
	s.mu.Unlock()
	s.setState(Running)

	go s.runCheckpoints(ctx)
	defer close(s.stopCheckpoint)
	defer close(s.runDone)

	for {
		step, ok := s.nextStep()
		if !ok {
			break
		}

		stepErr := s.runStep(ctx, step)

		s.mu.Lock()
		stopping := s.state == Stopping
		s.mu.Unlock()
		if stopping {
			return s.finishCancelled()
		}

		if stepErr != nil {
			if errors.Is(stepErr, errFragmentChangeRebuild) {
				continue // intentional mid-flight cancel; rebuilt queue already runs next
			}
			return s.finishWithError(stepErr)
		}
	}

	return s.finishCompleted()
}

func (s *Sequencer) nextStep() (*queuedStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	step := s.queue[0]
	s.queue = s.queue[1:]
	s.current = step
	return step, true
}

func (s *Sequencer) runStep(ctx context.Context, step *queuedStep) error {
	started := time.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues(step.name, s.Kind.String()).Observe(time.Since(started).Seconds())
	}()

	stepCtx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	s.cancelStep = cancel
	s.mu.Unlock()
	defer cancel(nil)

	t := step.run(stepCtx, s.Context)

	s.mu.Lock()
	s.currentTask = t
	s.mu.Unlock()

	unsubscribe := s.forwardStepProgress(step, t)
	defer unsubscribe()

	<-t.Done()

	s.mu.Lock()
	s.currentTask = nil
	s.current = nil
	cause := context.Cause(stepCtx)
	s.cancelStep = nil
	s.mu.Unlock()

	outcome := t.Outcome()
	if outcome.Err != nil {
		if errors.Is(cause, errFragmentChangeRebuild) {
			return errFragmentChangeRebuild
		}
		metrics.ActionErrors.WithLabelValues(step.name).Inc()
		return outcome.Err
	}

	if step.kind == stepCreateDiff {
		s.seedProgress()
	}
	return nil
}

// seedProgress re-initializes each diffed fragment's total from the diff's
// per-fragment download size (the release's .meta summary is not read) and
// folds already-present local bytes into the baseline
// overallDownloadProgress carries forward (§4.7).
func (s *Sequencer) seedProgress() {
	var already int64
	for name, frag := range s.Context.Diff {
		if frag == nil {
			continue
		}
		s.progress.resetFragment(name, int64(frag.TotalDownloadSize()))
	}
	for _, frag := range s.Context.LocalHashes {
		if frag == nil {
			continue
		}
		for _, fe := range frag.Files {
			already += int64(fe.Size)
		}
	}
	s.progress.setAlreadyDownloaded(already)
}

func (s *Sequencer) forwardStepProgress(step *queuedStep, t *task.Task) func() {
	if step.kind != stepDownloadFragment {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ch := t.OnProgress()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fp, ok := ev.Args[0].(actions.FragmentProgress)
				if !ok {
					continue
				}
				delta := s.progress.update(fp.Fragment, fp.DownloadedSize)
				if delta > 0 {
					metrics.DownloadBytesTotal.WithLabelValues(s.Context.GameUID, fp.Fragment).Add(float64(delta))
				}
				snap := s.progress.snapshot()
				metrics.DownloadSpeedBytesPerSecond.WithLabelValues(s.Context.GameUID, s.Context.Channel).Set(snap.SpeedBps)
				<-s.bus.Emit("progress", snap)
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (s *Sequencer) finishCompleted() error {
	s.setState(Completed)
	if err := actions.SaveHashes(context.Background(), s.Context); err != nil {
		_ = err
	}
	if s.release != nil {
		_ = s.release.SetInstalledFragments(s.Context.FragmentSelection)
		if s.Context.LicensesFolder != "" {
			if err := s.release.WriteLicenses(s.Context.Location, s.Context.LicensesFolder); err != nil {
				logrus.Warn("sequencer: failed writing licenses: ", err)
			}
		}
	}
	<-s.bus.Emit("completed")
	return nil
}

func (s *Sequencer) finishCancelled() error {
	s.setState(Cancelled)
	<-s.bus.Emit("cancel")
	return nil
}

// finishWithError applies §7's propagation policy: mark the release dirty,
// clear transient flags, persist, emit error(err); on LocalHashesError the
// release auto-schedules a REPAIR.
func (s *Sequencer) finishWithError(err error) error {
	s.setState(Errored)

	if s.release != nil {
		if markErr := s.release.MarkDirty(); markErr != nil {
			logrus.Error("sequencer: failed marking release dirty: ", markErr)
		}
		if clearErr := s.release.ClearTransientFlags(); clearErr != nil {
			logrus.Error("sequencer: failed clearing transient flags: ", clearErr)
		}
		if s.Kind == Install {
			_ = s.release.ForgetLocation()
		}

		var localHashesErr *actions.LocalHashesError
		if errors.As(err, &localHashesErr) {
			s.release.ScheduleRepair()
		}

		if errors.Is(err, syscall.EBUSY) {
			if flagErr := s.release.SetOpenedByExternalProcess(true); flagErr != nil {
				logrus.Warn("sequencer: failed recording external-process hold: ", flagErr)
			}
		}
	}

	<-s.bus.Emit("error", err)
	return err
}

func (s *Sequencer) runCheckpoints(ctx context.Context) {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			active := s.state == Running && (s.currentTask == nil || s.currentTask.State() != task.Paused)
			s.mu.Unlock()
			if !active {
				continue
			}
			saveTask := actions.SaveHashes(ctx, s.Context)
			<-saveTask.Done()
			if err := saveTask.Outcome().Err; err != nil {
				logrus.Warn("sequencer: periodic SaveHashes failed: ", err)
			}
			if s.release != nil {
				snap := s.progress.snapshot()
				if err := s.release.RecordDownloadProgress(snap.Overall.Downloaded, util.NowMillis()); err != nil {
					logrus.Warn("sequencer: periodic RecordDownloadProgress failed: ", err)
				}
			}
		case <-s.stopCheckpoint:
			return
		case <-ctx.Done():
			return
		}
	}
}

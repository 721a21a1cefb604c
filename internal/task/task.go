// Package task implements the ControllableTask primitive (§4.1): a unit of
// asynchronous work that can be paused, resumed, and cancelled, and that
// broadcasts progress and lifecycle events. It is the concurrency primitive
// underlying the Fetcher, the ActionLibrary, and the UpdateSequencer.
//
// It replaces the "callback-based controllable promise with deferred
// fulfilment" pattern named in §9 with an explicit state machine guarded by
// a single exclusive operation lock, and an emitter.Emitter broadcast bus
// for progress/lifecycle notifications in place of an event-emitter flood.
package task

import (
	"sync"

	"github.com/olebedev/emitter"
	"github.com/pkg/errors"
)

// State is one of the FSM states named in §4.1:
// Resumed -> Paused -> Resumed -> ... -> {Fulfilled | Cancelled | Rejected}.
type State int

const (
	Resumed State = iota
	Paused
	Fulfilled
	Cancelled
	Rejected
)

func (s State) String() string {
	switch s {
	case Resumed:
		return "resumed"
	case Paused:
		return "paused"
	case Fulfilled:
		return "fulfilled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Fulfilled || s == Cancelled || s == Rejected
}

// ErrPrecondition is returned by Pause/Resume/Cancel when the requested
// transition is not legal from the task's current state, or when a
// concurrent operation already holds the exclusive lock. No state is
// mutated when this error is returned.
var ErrPrecondition = errors.New("task precondition violated")

// ErrCancelRace is the "programming error" outcome named in §4.1: a cancel
// handler is registered, and the underlying work settled while that
// handler was still running. The task surfaces as Rejected.
var ErrCancelRace = errors.New("task settled while its cancel handler was running")

// PauseFunc is invoked once when the task transitions Resumed -> Paused. It
// should stop the underlying work's I/O (e.g. unpipe a response stream).
type PauseFunc func() error

// ResumeFunc is invoked once when the task transitions Paused -> Resumed. It
// should restart the underlying work's I/O.
type ResumeFunc func() error

// CancelFunc is invoked when Cancel is called on a non-terminal task. If the
// task has no CancelFunc registered, Cancel settles the task as Cancelled
// directly.
type CancelFunc func() error

// Outcome is a task's terminal result.
type Outcome struct {
	Result interface{}
	Err    error
}

// Task is one ControllableTask instance.
type Task struct {
	opLock sync.Mutex // the "exclusive operation lock" of §4.1
	mu     sync.Mutex // guards the fields below

	state     State
	bus       *emitter.Emitter
	onPause   PauseFunc
	onResume  ResumeFunc
	onCancel  CancelFunc
	cancelling bool
	pending   *Outcome // fulfillment deferred while paused
	outcome   *Outcome
	done      chan struct{}
}

// New creates a Task in the Resumed state. onCancel may be nil, in which
// case Cancel settles the task immediately.
func New(onPause PauseFunc, onResume ResumeFunc, onCancel CancelFunc) *Task {
	return &Task{
		state:    Resumed,
		bus:      &emitter.Emitter{},
		onPause:  onPause,
		onResume: onResume,
		onCancel: onCancel,
		done:     make(chan struct{}),
	}
}

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the task's terminal outcome, or nil if it has not
// settled yet.
func (t *Task) Outcome() *Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Progress delivers a best-effort, synchronous progress notification to
// subscribers. Per §4.1 the producer contract ceases emitting progress
// while paused, but Progress additionally drops notifications delivered
// during a paused interval as a safety net.
func (t *Task) Progress(p interface{}) {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()
	if state != Resumed {
		return
	}
	<-t.bus.Emit("progress", p)
}

// OnProgress subscribes to progress notifications. Delivery order matches
// producer order; each subscriber gets every notification (one-to-many).
func (t *Task) OnProgress() <-chan emitter.Event {
	return t.bus.On("progress")
}

// Settle is called by the work producer exactly once with the task's
// natural (non-cancelled) terminal result. If the task is currently Paused,
// fulfillment is deferred to the next Resume call (§4.1: "preserves the
// observable contract that progress notifications cease until resume").
func (t *Task) Settle(result interface{}, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return // idempotent: settling an already-settled task is a no-op
	}

	if t.cancelling {
		// The producer finished while a cancel handler was still running -
		// surface the programming error named in §4.1 instead of the
		// producer's own result.
		t.finalizeLocked(Rejected, Outcome{Err: ErrCancelRace})
		return
	}

	if t.state == Paused {
		t.pending = &Outcome{Result: result, Err: err}
		return
	}

	final := Fulfilled
	if err != nil {
		final = Rejected
	}
	t.finalizeLocked(final, Outcome{Result: result, Err: err})
}

func (t *Task) finalizeLocked(state State, outcome Outcome) {
	t.state = state
	t.outcome = &outcome
	close(t.done)

	switch state {
	case Fulfilled:
		<-t.bus.Emit("completed", outcome.Result)
	case Cancelled:
		<-t.bus.Emit("cancel")
	case Rejected:
		<-t.bus.Emit("error", outcome.Err)
	}
}

// Pause transitions Resumed -> Paused, invoking the registered PauseFunc.
// It fails with ErrPrecondition (mutating nothing) if another Pause/
// Resume/Cancel is in flight or the task is not in the Resumed state.
func (t *Task) Pause() error {
	if !t.opLock.TryLock() {
		return ErrPrecondition
	}
	defer t.opLock.Unlock()

	t.mu.Lock()
	if t.state != Resumed {
		t.mu.Unlock()
		return ErrPrecondition
	}
	t.state = Paused
	t.mu.Unlock()

	if t.onPause != nil {
		return t.onPause()
	}
	return nil
}

// Resume transitions Paused -> Resumed, invoking the registered
// ResumeFunc. If a fulfillment was deferred while paused, it is applied
// now. It fails with ErrPrecondition if another operation is in flight or
// the task is not Paused.
func (t *Task) Resume() error {
	if !t.opLock.TryLock() {
		return ErrPrecondition
	}
	defer t.opLock.Unlock()

	t.mu.Lock()
	if t.state != Paused {
		t.mu.Unlock()
		return ErrPrecondition
	}
	t.state = Resumed
	t.mu.Unlock()

	if t.onResume != nil {
		if err := t.onResume(); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		deferred := t.pending
		t.pending = nil
		final := Fulfilled
		if deferred.Err != nil {
			final = Rejected
		}
		t.finalizeLocked(final, *deferred)
	}
	return nil
}

// Cancel requests cooperative cancellation. If no CancelFunc is registered,
// the task settles as Cancelled immediately. If a CancelFunc is
// registered and the task settles naturally while the handler is running,
// the task surfaces as Rejected with ErrCancelRace instead of Cancelled -
// the "programming error" case of §4.1.
func (t *Task) Cancel() error {
	if !t.opLock.TryLock() {
		return ErrPrecondition
	}
	defer t.opLock.Unlock()

	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return ErrPrecondition
	}
	if t.onCancel == nil {
		t.finalizeLocked(Cancelled, Outcome{})
		t.mu.Unlock()
		return nil
	}
	t.cancelling = true
	t.mu.Unlock()

	err := t.onCancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelling = false
	if t.state.Terminal() {
		// Settle already finalized us (possibly as Rejected via the race
		// path above); nothing further to do.
		return err
	}
	t.finalizeLocked(Cancelled, Outcome{})
	return err
}

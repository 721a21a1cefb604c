package task

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Group is a dynamic set of in-flight Tasks that Pause/Resume/Cancel fan out
// to as one unit. It is how a single wrapping Task (e.g. DownloadFragment's)
// gets real pause/resume/cancel semantics when the actual work is split
// across many independently-started per-fetch Tasks it has no other handle
// on - the "exclusive operation lock" of §4.1 only ever guards one Task, so
// fanning the call out to every tracked Task is the group's job, not the
// Task's.
type Group struct {
	mu    sync.Mutex
	tasks map[*Task]struct{}
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{tasks: map[*Task]struct{}{}}
}

// Add starts tracking t. Adding a task already in the group is a no-op.
func (g *Group) Add(t *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks[t] = struct{}{}
}

// Remove stops tracking t, typically once it has reached a terminal state.
func (g *Group) Remove(t *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, t)
}

func (g *Group) snapshot() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Task, 0, len(g.tasks))
	for t := range g.tasks {
		out = append(out, t)
	}
	return out
}

// Pause pauses every task currently tracked. A task that has already
// settled or is already paused by the time this reaches it is not an error
// for the group as a whole - membership is racy by nature, since tasks
// start and finish while a Pause/Resume/Cancel call is still fanning out.
func (g *Group) Pause() error {
	var merr *multierror.Error
	for _, t := range g.snapshot() {
		if err := t.Pause(); err != nil && err != ErrPrecondition {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Resume resumes every task currently tracked, the same best-effort way
// Pause does.
func (g *Group) Resume() error {
	var merr *multierror.Error
	for _, t := range g.snapshot() {
		if err := t.Resume(); err != nil && err != ErrPrecondition {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Cancel cancels every task currently tracked.
func (g *Group) Cancel() error {
	var merr *multierror.Error
	for _, t := range g.snapshot() {
		if err := t.Cancel(); err != nil && err != ErrPrecondition {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

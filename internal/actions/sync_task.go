package actions

import (
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/task"
	"github.com/kestrelgames/cytrus-updater/util"
)

// runSync wraps a synchronous, non-interruptible action body as a
// ControllableTask: pause/resume are accepted (the FSM still guards
// concurrent operations) but have no effect on fn once it has started,
// matching the short-lived nature of these actions. A panic inside fn is
// recovered and surfaced as the Task's error instead of taking down the
// process, the way the teacher's resource_handler worker functions do.
func runSync(fn func() error) *task.Task {
	t := task.New(nil, nil, nil)
	go func() {
		t.Settle(nil, recoverToError(func() error { return fn() }))
	}()
	return t
}

// runControllable is runSync for an action body that reports chunk-level
// progress through the returned Task and fans pause/resume/cancel out to a
// group of other Tasks it started (e.g. one per in-flight fetch) rather
// than accepting them as no-ops - currently only DownloadFragment, whose
// Fetcher/Dedup calls are the ones that actually need to stop moving bytes
// on Pause. The returned Task's own Pause/Resume/Cancel therefore have a
// real effect on fn's work instead of only flipping the FSM flag nothing
// downstream is watching.
func runControllable(group *task.Group, fn func(*task.Task) error) *task.Task {
	t := task.New(group.Pause, group.Resume, group.Cancel)
	go func() {
		t.Settle(nil, recoverToError(func() error { return fn(t) }))
	}()
	return t
}

func recoverToError(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Error("actions: recovered panic: ", r)
			err = util.PanicToError(r)
		}
	}()
	return fn()
}

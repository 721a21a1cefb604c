package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeRunner is a Runner whose Run blocks until finish() is called or its
// context is cancelled, and which just counts Pause/Resume calls rather
// than modeling their effect on Run - the queue's scheduling decisions
// don't depend on what Pause/Resume actually do downstream.
type fakeRunner struct {
	mu          sync.Mutex
	runCalls    int
	pauseCalls  int
	resumeCalls int
	done        chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runCalls++
	f.mu.Unlock()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRunner) Pause(byUser bool) error {
	f.mu.Lock()
	f.pauseCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeRunner) Resume() error {
	f.mu.Lock()
	f.resumeCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeRunner) finish() { close(f.done) }

func (f *fakeRunner) counts() (run, pause, resume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runCalls, f.pauseCalls, f.resumeCalls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func newUpdate(gameUID, release string, r *fakeRunner) *Update {
	return &Update{GameUID: gameUID, Release: release, Seq: r}
}

func TestAddStartsFirstUpdateImmediately(t *testing.T) {
	q := New(context.Background())
	r := newFakeRunner()
	u := newUpdate("g", "r1", r)

	q.Add(u)
	waitFor(t, func() bool { run, _, _ := r.counts(); return run == 1 })
	if q.Current() != u {
		t.Error("expected u to be current")
	}
}

func TestAddSecondUpdateOnlyQueues(t *testing.T) {
	q := New(context.Background())
	r1, r2 := newFakeRunner(), newFakeRunner()
	u1, u2 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2)

	q.Add(u1)
	waitFor(t, func() bool { run, _, _ := r1.counts(); return run == 1 })
	q.Add(u2)

	time.Sleep(20 * time.Millisecond)
	if run, _, _ := r2.counts(); run != 0 {
		t.Error("second update should not start while the first is running")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0] != u2 {
		t.Errorf("pending = %v, want [u2]", pending)
	}
}

func TestFinishAdvancesToNextPending(t *testing.T) {
	q := New(context.Background())
	r1, r2 := newFakeRunner(), newFakeRunner()
	u1, u2 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2)

	finishedCh := make(chan *Update, 2)
	q.onFinish = func(u *Update, err error) { finishedCh <- u }

	q.Add(u1)
	waitFor(t, func() bool { run, _, _ := r1.counts(); return run == 1 })
	q.Add(u2)

	r1.finish()
	select {
	case got := <-finishedCh:
		if got != u1 {
			t.Fatalf("finished = %v, want u1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("u1 never finished")
	}

	waitFor(t, func() bool { run, _, _ := r2.counts(); return run == 1 })
	if q.Current() != u2 {
		t.Error("expected u2 to be current after u1 finished")
	}
}

func TestPauseCurrentUpdateMovesToTailAndStartsNext(t *testing.T) {
	q := New(context.Background())
	r1, r2 := newFakeRunner(), newFakeRunner()
	u1, u2 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2)

	q.Add(u1)
	waitFor(t, func() bool { run, _, _ := r1.counts(); return run == 1 })
	q.Add(u2)

	q.PauseCurrentUpdate(true)

	if _, pause, _ := r1.counts(); pause != 1 {
		t.Error("expected u1 to be paused")
	}
	if !u1.PausedByUser() {
		t.Error("u1 should be marked paused-by-user")
	}
	waitFor(t, func() bool { run, _, _ := r2.counts(); return run == 1 })
	if q.Current() != u2 {
		t.Error("expected u2 to become current")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0] != u1 {
		t.Errorf("pending = %v, want [u1]", pending)
	}
}

func TestResumeUpdatePromotesAndDemotesCurrent(t *testing.T) {
	q := New(context.Background())
	r1, r2 := newFakeRunner(), newFakeRunner()
	u1, u2 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2)

	q.Add(u1)
	waitFor(t, func() bool { run, _, _ := r1.counts(); return run == 1 })
	q.Add(u2)
	q.PauseCurrentUpdate(true) // current is now u2, u1 paused in pending

	waitFor(t, func() bool { run, _, _ := r2.counts(); return run == 1 })

	if err := q.ResumeUpdate("g", "r1", true); err != nil {
		t.Fatalf("ResumeUpdate: %v", err)
	}

	if u1.PausedByUser() {
		t.Error("resuming u1 should clear its pausedByUser flag")
	}
	if _, _, resume := r1.counts(); resume != 1 {
		t.Error("expected u1.Resume to be called, since it was already started")
	}
	if run, _, _ := r1.counts(); run != 1 {
		t.Error("u1 should not be Run a second time, only Resumed")
	}
	if q.Current() != u1 {
		t.Error("expected u1 to be current again")
	}
	if _, pause, _ := r2.counts(); pause != 1 {
		t.Error("expected u2 to be paused when demoted")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0] != u2 {
		t.Errorf("pending = %v, want [u2]", pending)
	}
}

func TestResumeUpdateUnknownReturnsError(t *testing.T) {
	q := New(context.Background())
	if err := q.ResumeUpdate("nope", "nope", true); err != ErrUpdateNotFound {
		t.Errorf("err = %v, want ErrUpdateNotFound", err)
	}
}

func TestGlobalPausePausesInPlaceWithoutReordering(t *testing.T) {
	q := New(context.Background())
	r := newFakeRunner()
	u := newUpdate("g", "r1", r)
	q.Add(u)
	waitFor(t, func() bool { run, _, _ := r.counts(); return run == 1 })

	q.SetOffline(true)
	if !q.IsGloballyPaused() {
		t.Error("expected queue to report globally paused")
	}
	if _, pause, _ := r.counts(); pause != 1 {
		t.Error("expected current update to be paused")
	}
	if q.Current() != u {
		t.Error("global pause must not reorder: u should still be current")
	}

	q.SetOffline(false)
	if q.IsGloballyPaused() {
		t.Error("expected queue to report not globally paused")
	}
	if _, _, resume := r.counts(); resume != 1 {
		t.Error("expected current update to be resumed when the trigger cleared")
	}
	if q.Current() != u {
		t.Error("u should remain current after an in-place resume")
	}
}

func TestGlobalPauseBlocksNewStartsUntilCleared(t *testing.T) {
	q := New(context.Background())
	r := newFakeRunner()
	u := newUpdate("g", "r1", r)

	q.SetOffline(true)
	q.Add(u)

	time.Sleep(20 * time.Millisecond)
	if run, _, _ := r.counts(); run != 0 {
		t.Error("update should not start while globally paused")
	}
	if q.Current() != nil {
		t.Error("current should be nil while globally paused")
	}

	q.SetOffline(false)
	waitFor(t, func() bool { run, _, _ := r.counts(); return run == 1 })
	if q.Current() != u {
		t.Error("expected u to start once the pause trigger cleared")
	}
}

func TestSetIndexPromotesPendingEntryToHead(t *testing.T) {
	q := New(context.Background())
	r1, r2, r3 := newFakeRunner(), newFakeRunner(), newFakeRunner()
	u1, u2, u3 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2), newUpdate("g", "r3", r3)

	q.Add(u1)
	waitFor(t, func() bool { run, _, _ := r1.counts(); return run == 1 })
	q.Add(u2)
	q.Add(u3)

	q.SetIndex(u3, 0)

	if _, pause, _ := r1.counts(); pause != 1 {
		t.Error("expected u1 to be paused when displaced from the head")
	}
	waitFor(t, func() bool { run, _, _ := r3.counts(); return run == 1 })
	if q.Current() != u3 {
		t.Error("expected u3 to become current")
	}
	pending := q.Pending()
	if len(pending) != 2 || pending[0] != u2 || pending[1] != u1 {
		t.Errorf("pending = %v, want [u2, u1]", pending)
	}
}

func TestAttemptStartHeadSkipsUserPausedHead(t *testing.T) {
	q := New(context.Background())
	r1, r2 := newFakeRunner(), newFakeRunner()
	u1, u2 := newUpdate("g", "r1", r1), newUpdate("g", "r2", r2)
	u1.setPausedByUser(true)

	q.mu.Lock()
	q.pending = []*Update{u1, u2}
	q.attemptStartHeadLocked()
	q.mu.Unlock()

	waitFor(t, func() bool { run, _, _ := r2.counts(); return run == 1 })
	if run, _, _ := r1.counts(); run != 0 {
		t.Error("u1 is paused-by-user and should not have been started")
	}
	if q.Current() != u2 {
		t.Error("expected u2 to be started instead of the paused head")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0] != u1 {
		t.Errorf("pending = %v, want [u1] (left in place, still paused)", pending)
	}
}

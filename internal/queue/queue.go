// Package queue implements the UpdateQueue (C8): a FIFO of pending release
// updates with an at-most-one-running invariant, global pause driven by
// connectivity and host self-update state, and priority operations that
// reorder or promote updates without ever running two Sequencers' actions
// at once.
//
// It is grounded on internal/pool's named-queue-holder shape (pool/queue.go
// generalized from "N bounded ants workers" to "at most one active
// sequencer, many waiting"): Queue plays the role pool.Queue plays for a
// worker pool, except its one "worker" is whichever Update currently holds
// the run slot.
package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/metrics"
)

// ErrUpdateNotFound is returned by ResumeUpdate when no queued or running
// update matches the given game/release pair.
var ErrUpdateNotFound = errors.New("queue: no matching update")

// Runner is the subset of *sequencer.Sequencer's behavior the queue drives.
// Defined here rather than importing internal/sequencer directly, mirroring
// that package's own Release interface: it keeps the queue testable against
// fakes and decoupled from the sequencer package's internals.
type Runner interface {
	Run(ctx context.Context) error
	Pause(byUser bool) error
	Resume() error
}

// Update is one release update the queue knows about: its identity and the
// Runner (a *sequencer.Sequencer in production) driving it. Once started,
// an Update's Run goroutine stays alive - paused or progressing - until it
// reaches a terminal state; it is never torn down and restarted by the
// queue itself.
type Update struct {
	GameUID string
	Release string
	Seq     Runner

	mu           sync.Mutex
	pausedByUser bool
	started      bool
}

// PausedByUser reports whether a user explicitly paused this update, as
// opposed to the queue's global connectivity/self-update pause.
func (u *Update) PausedByUser() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pausedByUser
}

func (u *Update) setPausedByUser(v bool) {
	u.mu.Lock()
	u.pausedByUser = v
	u.mu.Unlock()
}

// Queue is the UpdateQueue (C8).
type Queue struct {
	ctx context.Context

	mu      sync.Mutex
	pending []*Update
	current *Update

	offline      bool
	selfUpdating bool

	onFinish func(u *Update, err error) // test seam
}

// New creates an empty Queue. ctx is the long-lived application context
// each started Update's Sequencer.Run is driven under.
func New(ctx context.Context) *Queue {
	return &Queue{ctx: ctx}
}

// IsGloballyPaused reports whether connectivity loss or a host self-update
// download is currently suppressing new work (§4.8 isPaused).
func (q *Queue) IsGloballyPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.globallyPausedLocked()
}

func (q *Queue) globallyPausedLocked() bool {
	return q.offline || q.selfUpdating
}

// Current returns the update currently holding the run slot, or nil.
func (q *Queue) Current() *Update {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Pending returns a snapshot of the queue's waiting updates, head first.
func (q *Queue) Pending() []*Update {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Update, len(q.pending))
	copy(out, q.pending)
	return out
}

// Add appends u and, if nothing is currently occupying the run slot or the
// current occupant is paused by its user, attempts to start the new head
// (§4.8 "add(u) appends; if no current or current is paused-by-user, start
// the head").
func (q *Queue) Add(u *Update) {
	defer q.reportDepth()
	q.mu.Lock()
	q.pending = append(q.pending, u)
	if q.current == nil || q.current.PausedByUser() {
		q.attemptStartHeadLocked()
	}
	q.mu.Unlock()
}

// SetIndex repositions u to index i among the combined priority order,
// where index 0 names the run slot. Moving u into or out of index 0 pauses
// whatever currently holds the slot and starts the new head, unless the
// queue is globally paused (§4.8 "setIndex(u, i) reorders...").
func (q *Queue) SetIndex(u *Update, i int) {
	defer q.reportDepth()
	q.mu.Lock()
	defer q.mu.Unlock()

	wasHead := q.current == u
	if wasHead {
		if err := u.Seq.Pause(false); err != nil {
			logrus.Warn("queue: pausing update moved out of the run slot: ", err)
		}
	}
	q.removeLocked(u)

	switch {
	case i <= 0:
		q.pending = append([]*Update{u}, q.pending...)
	case i >= len(q.pending):
		q.pending = append(q.pending, u)
	default:
		rest := append([]*Update{u}, q.pending[i:]...)
		q.pending = append(q.pending[:i], rest...)
	}

	if wasHead || i <= 0 {
		if q.current != nil && q.current != u {
			q.demoteCurrentLocked()
		}
		q.attemptStartHeadLocked()
	}
}

// PauseCurrentUpdate pauses whatever currently holds the run slot and moves
// it to the tail of the pending queue, then starts the new head (§4.8
// "pauseCurrentUpdate(byUser) moves current to tail (or pauses in-place if
// only one entry)"). byUser records whether this was a user-initiated
// pause, which later governs whether Add/startHead may auto-resume it.
func (q *Queue) PauseCurrentUpdate(byUser bool) {
	defer q.reportDepth()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return
	}
	q.current.setPausedByUser(byUser)
	q.demoteCurrentLocked()
	q.attemptStartHeadLocked()
}

// ResumeUpdate finds the update named by gameUID/release - whether queued
// or already holding the run slot - clears its pausedByUser flag, and
// promotes it to head (§4.8 "resumeUpdate(g, r, byUser) promotes a
// specific update to head"). byUser is accepted for parity with
// PauseCurrentUpdate's signature and is not used; resuming a specific update always clears
// its own pause flag regardless, since that is the only sane effect of
// "resume this one."
func (q *Queue) ResumeUpdate(gameUID, release string, byUser bool) error {
	defer q.reportDepth()
	q.mu.Lock()
	defer q.mu.Unlock()

	u := q.findLocked(gameUID, release)
	if u == nil {
		return ErrUpdateNotFound
	}
	_ = byUser
	u.setPausedByUser(false)

	wasHead := q.current == u
	q.removeLocked(u)
	q.pending = append([]*Update{u}, q.pending...)

	if !wasHead && q.current != nil {
		q.demoteCurrentLocked()
	}
	q.attemptStartHeadLocked()
	return nil
}

// SetOffline toggles the connectivity-loss pause trigger (§4.8 "Global
// pause triggers: connectivity offline").
func (q *Queue) SetOffline(offline bool) {
	q.setGlobalTrigger(func() { q.offline = offline })
}

// SetSelfUpdateDownloading toggles the host self-update pause trigger
// (§4.8 "host auto-updater downloading").
func (q *Queue) SetSelfUpdateDownloading(downloading bool) {
	q.setGlobalTrigger(func() { q.selfUpdating = downloading })
}

func (q *Queue) setGlobalTrigger(apply func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	was := q.globallyPausedLocked()
	apply()
	now := q.globallyPausedLocked()
	if now == was {
		return
	}

	if now {
		if q.current != nil {
			if err := q.current.Seq.Pause(false); err != nil {
				logrus.Warn("queue: global pause could not pause current update: ", err)
			}
		}
		return
	}

	// Trigger cleared: resume the current occupant in place rather than
	// reordering anything (§4.8 "On triggers clearing, resume").
	if q.current != nil {
		if err := q.current.Seq.Resume(); err != nil {
			logrus.Warn("queue: resuming current update after trigger cleared: ", err)
		}
		return
	}
	q.attemptStartHeadLocked()
}

// attemptStartHeadLocked pops entries off the pending head until it finds
// one it can actually run: the queue must not be globally paused, the run
// slot must be free, and a paused-by-user head is skipped in favor of the
// next non-user-paused entry (§4.8 "if [the head] is paused-by-user and the
// caller did not request a user-resume, skip to the next non-user-paused
// update").
func (q *Queue) attemptStartHeadLocked() {
	if q.globallyPausedLocked() || q.current != nil {
		return
	}

	var skipped []*Update
	for len(q.pending) > 0 {
		head := q.pending[0]
		q.pending = q.pending[1:]
		if head.PausedByUser() {
			skipped = append(skipped, head)
			continue
		}
		q.startLocked(head)
		q.pending = append(skipped, q.pending...)
		return
	}
	q.pending = append(skipped, q.pending...)
}

func (q *Queue) startLocked(u *Update) {
	q.current = u

	u.mu.Lock()
	alreadyStarted := u.started
	u.started = true
	u.mu.Unlock()

	if alreadyStarted {
		if err := u.Seq.Resume(); err != nil {
			logrus.Warn("queue: resuming an already-started update: ", err)
		}
		return
	}

	go func() {
		err := u.Seq.Run(q.ctx)
		q.finished(u, err)
	}()
}

func (q *Queue) finished(u *Update, err error) {
	defer q.reportDepth()
	q.mu.Lock()
	if q.current == u {
		q.current = nil
	}
	q.attemptStartHeadLocked()
	q.mu.Unlock()

	if err != nil {
		logrus.Warn("queue: update for ", u.GameUID, "/", u.Release, " finished with error: ", err)
	}
	if q.onFinish != nil {
		q.onFinish(u, err)
	}
}

// demoteCurrentLocked pauses whatever holds the run slot (without marking
// it user-paused) and moves it to the tail of pending.
func (q *Queue) demoteCurrentLocked() {
	old := q.current
	if old == nil {
		return
	}
	if err := old.Seq.Pause(false); err != nil {
		logrus.Warn("queue: pausing demoted update: ", err)
	}
	q.current = nil
	q.pending = append(q.pending, old)
}

func (q *Queue) removeLocked(u *Update) {
	if q.current == u {
		q.current = nil
		return
	}
	for i, p := range q.pending {
		if p == u {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// reportDepth mirrors the combined pending+running count onto the
// QueueDepth gauge. Called after any method that can change membership,
// never while already holding q.mu.
func (q *Queue) reportDepth() {
	q.mu.Lock()
	depth := len(q.pending)
	if q.current != nil {
		depth++
	}
	q.mu.Unlock()
	metrics.QueueDepth.Set(float64(depth))
}

func (q *Queue) findLocked(gameUID, release string) *Update {
	if q.current != nil && q.current.GameUID == gameUID && q.current.Release == release {
		return q.current
	}
	for _, p := range q.pending {
		if p.GameUID == gameUID && p.Release == release {
			return p
		}
	}
	return nil
}

// Package pool provides named, bounded-concurrency worker queues for the
// ActionLibrary's per-operation concurrency budgets (§4.6), adapted from
// pool/queue.go's ants.Pool wrapper.
package pool

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Queue is a bounded-concurrency worker pool identified by name, for
// logging and panic attribution.
type Queue struct {
	name string
	pool *ants.Pool
}

// NewQueue creates a Queue with at most workers concurrently-running tasks.
func NewQueue(workers int, name string) (*Queue, error) {
	p, err := ants.NewPool(workers, ants.WithOptions(ants.Options{
		ExpiryDuration:   1 * time.Minute,
		PreAlloc:         false,
		MaxBlockingTasks: 0,
		Nonblocking:      false,
		PanicHandler: func(err interface{}) {
			logrus.Errorf("panic from pool %s", name)
			logrus.Error(err)
			if e, ok := err.(error); ok {
				sentry.CaptureException(e)
			}
		},
		DisablePurge: false,
	}))
	if err != nil {
		return nil, err
	}
	return &Queue{name: name, pool: p}, nil
}

// Schedule submits task to the pool, returning an error only if the pool
// has already been released.
func (q *Queue) Schedule(task func()) error {
	return q.pool.Submit(task)
}

// Tune resizes the pool's worker capacity in place.
func (q *Queue) Tune(workers int) {
	q.pool.Tune(workers)
}

// Release drains and shuts down the pool.
func (q *Queue) Release() {
	q.pool.Release()
}

// Running reports the number of tasks currently executing.
func (q *Queue) Running() int {
	return q.pool.Running()
}

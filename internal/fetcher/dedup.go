package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/djherbis/stream"

	"github.com/kestrelgames/cytrus-updater/internal/task"
	"github.com/kestrelgames/cytrus-updater/util/resource_handler"
)

// Dedup coalesces concurrent Fetch calls for the same content hash into a
// single download into a shared, hash-addressed staging file, then fans
// that file out to each caller's own target list via independent stream
// readers - the "downloaded once, distributed to every waiting caller" rule
// of §4.4, implemented the way util/resource_handler/handler.go dedupes
// concurrent lookups by id.
//
// The shared download is still a real Fetcher Task with working
// pause/resume/cancel handlers (fetcher.go's download type); Dedup just
// hides it inside resource_handler's worker closure. waiters lets a caller
// that wants control over that Task register a *task.Group before kicking
// the request off, so it gets added to the group the moment the download
// actually starts, wherever it ends up running.
type Dedup struct {
	fetcher    *Fetcher
	handler    *resource_handler.ResourceHandler
	stagingDir string

	mu      sync.Mutex
	waiters map[string][]*task.Group
}

type dedupResult struct {
	result *Result
	err    error
}

type dedupRequest struct {
	ctx context.Context
	req Request
}

// NewDedup wraps fetcher with request de-duplication keyed by content hash.
// workers bounds the number of concurrent distinct-hash downloads; staging
// is where the single shared copy of each hash is downloaded to before
// fan-out.
func NewDedup(f *Fetcher, workers int, staging string) (*Dedup, error) {
	d := &Dedup{fetcher: f, stagingDir: staging, waiters: map[string][]*task.Group{}}

	handler, err := resource_handler.New(workers, func(req *resource_handler.WorkRequest) interface{} {
		meta := req.Metadata.(dedupRequest)
		shared := meta.req
		shared.Targets = []string{d.stagedPath(meta.req.Hash)}

		t := f.Fetch(meta.ctx, shared)
		d.joinWaiters(meta.req.Hash, t)
		<-t.Done()
		d.leaveWaiters(meta.req.Hash, t)
		outcome := t.Outcome()
		if outcome.Err != nil {
			return dedupResult{err: outcome.Err}
		}
		return dedupResult{result: outcome.Result.(*Result)}
	})
	if err != nil {
		return nil, err
	}
	d.handler = handler
	return d, nil
}

func (d *Dedup) stagedPath(hash string) string {
	return filepath.Join(d.stagingDir, hash)
}

// watch registers group as interested in whichever Task ends up performing
// hash's shared download, and returns a function that un-registers it again.
// It must be called before the corresponding GetResource call so the
// registration is in place before the worker closure's Fetch can run.
func (d *Dedup) watch(hash string, group *task.Group) func() {
	if group == nil {
		return func() {}
	}
	d.mu.Lock()
	d.waiters[hash] = append(d.waiters[hash], group)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		list := d.waiters[hash]
		for i, g := range list {
			if g == group {
				d.waiters[hash] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(d.waiters[hash]) == 0 {
			delete(d.waiters, hash)
		}
	}
}

func (d *Dedup) joinWaiters(hash string, t *task.Task) {
	d.mu.Lock()
	groups := append([]*task.Group{}, d.waiters[hash]...)
	d.mu.Unlock()
	for _, g := range groups {
		g.Add(t)
	}
}

func (d *Dedup) leaveWaiters(hash string, t *task.Task) {
	d.mu.Lock()
	groups := append([]*task.Group{}, d.waiters[hash]...)
	d.mu.Unlock()
	for _, g := range groups {
		g.Remove(t)
	}
}

// Fetch attaches to (or starts) the shared download of req.Hash, then
// gives each of req.Targets its own reader over the completed staged file
// via a djherbis/stream memory-backed stream, the same "one stream, many
// NextReader() consumers" pattern the teacher uses to fan a single remote
// download out to every waiting caller. If group is non-nil, the real
// per-fetch Task backing this download joins it for the duration of the
// fetch, so the group's Pause/Resume/Cancel reach the live transfer instead
// of only an FSM flag nothing is listening to.
func (d *Dedup) Fetch(ctx context.Context, req Request, group *task.Group) (*Result, error) {
	unwatch := d.watch(req.Hash, group)
	defer unwatch()

	resultChan := d.handler.GetResource(req.Hash, dedupRequest{ctx: ctx, req: req})
	raw := <-resultChan
	res := raw.(dedupResult)
	if res.err != nil {
		return nil, res.err
	}

	staged, err := os.Open(d.stagedPath(req.Hash))
	if err != nil {
		return nil, err
	}
	defer staged.Close()

	ms := stream.NewMemStream()
	if _, err := io.Copy(ms, staged); err != nil {
		return nil, err
	}
	if err := ms.Close(); err != nil {
		return nil, err
	}

	for _, target := range req.Targets {
		if err := writeFromStream(ms, target); err != nil {
			return nil, err
		}
	}
	return res.result, nil
}

// Close releases the dedup worker pool.
func (d *Dedup) Close() {
	d.handler.Close()
}

func writeFromStream(ms *stream.Stream, dst string) error {
	r, err := ms.NextReader()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, r)
	return err
}

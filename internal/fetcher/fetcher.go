// Package fetcher implements the Fetcher (§4.4): resumable, hash-verified
// download of one content-addressed blob to one or more target paths. Its
// pause/resume/cancel surface is a thin binding onto internal/task; its
// retry and request-deduplication shape are grounded on
// util/resource_handler/handler.go.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/errcache"
	"github.com/kestrelgames/cytrus-updater/internal/repository"
	"github.com/kestrelgames/cytrus-updater/internal/task"
	"github.com/kestrelgames/cytrus-updater/util"
)

const (
	maxRetries        = 5
	baseAttemptTimeout = 2000 * time.Millisecond
)

// Progress is the per-chunk notification emitted through the Task (§4.4).
type Progress struct {
	ChunkSize      int64
	DownloadedSize int64
}

// Request is one (hash, expected-size, targets, verify) download unit.
// OnProgress, if set, is additionally called for every chunk copied -
// callers that don't hold the returned Task (e.g. Dedup's wrapped work
// function) can still observe byte-level progress this way.
type Request struct {
	GameUID      string
	Hash         string
	ExpectedSize int64
	Targets      []string
	VerifyHash   bool
	OnProgress   func(Progress)
}

// Result is a Fetcher's terminal Task result.
type Result struct {
	BytesWritten int64
}

// Fetcher downloads content-addressed blobs from a RepositoryClient.
type Fetcher struct {
	client   *repository.Client
	failures *errcache.ErrCache
}

// New returns a Fetcher bound to a repository client. Recently-failed
// hashes are remembered for failureTTL so concurrent retries against a
// hash the repository can't currently serve fail fast.
func New(client *repository.Client, failureTTL time.Duration) *Fetcher {
	return &Fetcher{client: client, failures: errcache.New(failureTTL)}
}

// download holds the mutable state of one in-flight fetch, shared between
// the run goroutine and the pause/resume/cancel hooks bound to its Task.
type download struct {
	fetcher *Fetcher
	req     Request
	tmpPath string

	mu        sync.Mutex
	body      io.ReadCloser
	paused    bool
	resumeCh  chan struct{}
	cancelled bool
}

// Fetch starts downloading req and returns the Task controlling it. The
// Task's Outcome.Result is a *Result on success. If req.Hash recently
// failed, the task settles immediately as Rejected without touching the
// network.
func (f *Fetcher) Fetch(ctx context.Context, req Request) *task.Task {
	if cached := f.failures.Get(req.Hash); cached != nil {
		t := task.New(nil, nil, nil)
		t.Settle(nil, cached)
		return t
	}

	d := &download{
		fetcher: f,
		req:     req,
		tmpPath: req.Targets[0] + ".tmp",
	}

	t := task.New(d.pause, d.resume, d.cancel)
	go d.run(ctx, t)
	return t
}

func (d *download) pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	d.resumeCh = make(chan struct{})
	if d.body != nil {
		_ = d.body.Close() // unpipe the response stream (§4.4 "Pause")
		d.body = nil
	}
	return nil
}

func (d *download) resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	if d.resumeCh != nil {
		close(d.resumeCh)
		d.resumeCh = nil
	}
	return nil
}

func (d *download) cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = true
	if d.body != nil {
		_ = d.body.Close()
		d.body = nil
	}
	if d.resumeCh != nil {
		close(d.resumeCh)
		d.resumeCh = nil
	}
	if err := os.Remove(d.tmpPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *download) isCancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelled
}

func (d *download) waitWhilePaused() {
	for {
		d.mu.Lock()
		if !d.paused || d.cancelled {
			ch := d.resumeCh
			d.mu.Unlock()
			_ = ch
			return
		}
		ch := d.resumeCh
		d.mu.Unlock()
		if ch == nil {
			return
		}
		<-ch
	}
}

func (d *download) run(ctx context.Context, t *task.Task) {
	result, err := d.attemptLoop(ctx, t)
	if d.isCancelled() {
		return // Cancel() already settles this task; Settle() would be a no-op anyway.
	}
	if err != nil {
		d.fetcher.failures.Set(d.req.Hash, err)
	}
	t.Settle(result, err)
}

func (d *download) attemptLoop(ctx context.Context, t *task.Task) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			resumeSize, _ := tempFileSize(d.tmpPath)
			logrus.WithError(lastErr).Warnf("fetcher: retrying %s (attempt %d/%d), %s already on disk",
				d.req.Hash, attempt, maxRetries, humanize.Bytes(uint64(resumeSize)))
		}

		d.waitWhilePaused()
		if d.isCancelled() {
			return nil, errors.New("fetcher: cancelled")
		}

		timeout := baseAttemptTimeout * time.Duration(attempt+1)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		n, err := d.attempt(attemptCtx, t)
		cancel()

		if err == nil {
			return &Result{BytesWritten: n}, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.Wrapf(lastErr, "fetcher: exhausted %d retries for %s", maxRetries, d.req.Hash)
}

// attempt performs one Range-resumable GET-and-write cycle: it inspects the
// existing .tmp file to decide a resume offset, streams the response body
// into it chunk by chunk, emitting progress, and on a full/verified
// download copies the temp file into every target.
func (d *download) attempt(ctx context.Context, t *task.Task) (int64, error) {
	offset, err := tempFileSize(d.tmpPath)
	if err != nil {
		return 0, err
	}

	rangeHeader := ""
	if offset > 0 {
		rangeHeader = "bytes=" + strconv.FormatInt(offset, 10) + "-"
	}

	body, contentLength, rangeHonored, err := d.fetcher.client.GetHash(ctx, d.req.GameUID, d.req.Hash, rangeHeader)
	if err != nil {
		if httpErr, ok := err.(*repository.NetworkError); ok && httpErr.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			if rmErr := os.Remove(d.tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return 0, rmErr
			}
			return 0, errors.New("fetcher: 416, retrying from zero")
		}
		return 0, err
	}

	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		_ = body.Close()
		return 0, errors.New("fetcher: cancelled")
	}
	d.body = body
	d.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 && rangeHeader != "" && rangeHonored {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		offset = 0
	}
	f, err := os.OpenFile(d.tmpPath, flags, 0o644)
	if err != nil {
		_ = body.Close()
		return 0, err
	}

	written, copyErr := d.copyWithProgress(f, body, t, offset)
	closeErr := f.Close()

	d.mu.Lock()
	d.body = nil
	d.mu.Unlock()
	_ = body.Close()

	if copyErr != nil {
		return 0, copyErr
	}
	if closeErr != nil {
		return 0, closeErr
	}

	total := offset + written
	if d.req.ExpectedSize > 0 && contentLength > 0 && total != d.req.ExpectedSize && offset == 0 {
		return 0, errors.Errorf("fetcher: size mismatch, got %d want %d", total, d.req.ExpectedSize)
	}

	if d.req.VerifyHash {
		verifyErr := d.verifyAndPlace(total)
		if verifyErr != nil {
			_ = os.Remove(d.tmpPath)
			return 0, verifyErr
		}
	} else if err := d.place(total); err != nil {
		return 0, err
	}

	return total, nil
}

func (d *download) copyWithProgress(dst *os.File, src io.Reader, t *task.Task, baseOffset int64) (int64, error) {
	buf := make([]byte, 64*1024)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			p := Progress{ChunkSize: int64(n), DownloadedSize: baseOffset + written}
			t.Progress(p)
			if d.req.OnProgress != nil {
				d.req.OnProgress(p)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
		if d.isCancelled() {
			return written, errors.New("fetcher: cancelled mid-copy")
		}
	}
}

// verifyAndPlace hashes the completed temp file and, on a match, copies it
// into every target (fan-out for shared hashes, §4.4).
func (d *download) verifyAndPlace(size int64) error {
	f, err := os.Open(d.tmpPath)
	if err != nil {
		return err
	}
	sum, err := util.GetSha1HashOfStream(f)
	if err != nil {
		return err
	}
	if sum != d.req.Hash {
		return errors.Errorf("fetcher: hash mismatch, got %s want %s", sum, d.req.Hash)
	}
	_ = size
	return d.place(size)
}

func (d *download) place(size int64) error {
	src, err := os.Open(d.tmpPath)
	if err != nil {
		return err
	}

	readers := util.CloneReader(src, len(d.req.Targets))
	var wg sync.WaitGroup
	errs := make([]error, len(d.req.Targets))
	for i, target := range d.req.Targets {
		wg.Add(1)
		go func(i int, target string, r io.ReadCloser) {
			defer wg.Done()
			errs[i] = writeTarget(target, r)
		}(i, target, readers[i])
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return os.Remove(d.tmpPath)
}

func writeTarget(target string, r io.ReadCloser) error {
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

func tempFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr *repository.NetworkError
	if ok := errors.As(err, &netErr); ok {
		return netErr.StatusCode == 0 || netErr.StatusCode >= 500
	}
	return true
}

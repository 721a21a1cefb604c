package sequencer

import (
	"sync"
	"time"
)

// bucketWidth and bucketWindow implement the sliding-bucket download speed
// measurement of §4.7: accumulate bytes into 100ms buckets, keep buckets
// newer than 1500ms, report bytes/second from what remains.
const (
	bucketWidth  = 100 * time.Millisecond
	bucketWindow = 1500 * time.Millisecond
)

// FragmentProgress is one fragment's {downloaded, total} pair.
type FragmentProgress struct {
	Downloaded int64
	Total      int64
}

// Snapshot is what the Sequencer emits on its "progress" event.
type Snapshot struct {
	Fragments map[string]FragmentProgress
	Overall   FragmentProgress
	SpeedBps  float64
}

type bucket struct {
	start time.Time
	bytes int64
}

// progressTracker holds the sequencer's download progress state. already
// Downloaded is a caller-supplied baseline (bytes already present from a
// prior run) folded into overallDownloadProgress per §4.7.
type progressTracker struct {
	mu                sync.Mutex
	fragments         map[string]FragmentProgress
	alreadyDownloaded int64
	buckets           []bucket
	clock             func() time.Time
}

func newProgressTracker() *progressTracker {
	return &progressTracker{
		fragments: map[string]FragmentProgress{},
		clock:     time.Now,
	}
}

func (p *progressTracker) setAlreadyDownloaded(bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alreadyDownloaded = bytes
}

// resetFragment re-initializes one fragment's total from the diff's
// download size for that fragment, called after each CreateDiff (§4.7);
// the .meta summary is not consulted.
func (p *progressTracker) resetFragment(fragment string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragments[fragment] = FragmentProgress{Total: total}
}

func (p *progressTracker) update(fragment string, downloadedSize int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.fragments[fragment]
	delta := downloadedSize - prev.Downloaded
	prev.Downloaded = downloadedSize
	p.fragments[fragment] = prev

	if delta > 0 {
		p.accrueLocked(delta)
	}
	return delta
}

func (p *progressTracker) accrueLocked(delta int64) {
	now := p.clock()
	if n := len(p.buckets); n > 0 && now.Sub(p.buckets[n-1].start) < bucketWidth {
		p.buckets[n-1].bytes += delta
		return
	}
	p.buckets = append(p.buckets, bucket{start: now, bytes: delta})
}

// snapshot returns the current aggregated state: per-fragment progress,
// overall progress (baseline + sum of fragments), and a speed computed
// from buckets younger than bucketWindow.
func (p *progressTracker) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := Snapshot{Fragments: make(map[string]FragmentProgress, len(p.fragments))}
	var downloaded, total int64
	for name, fp := range p.fragments {
		out.Fragments[name] = fp
		downloaded += fp.Downloaded
		total += fp.Total
	}
	out.Overall = FragmentProgress{
		Downloaded: p.alreadyDownloaded + downloaded,
		Total:      p.alreadyDownloaded + total,
	}

	now := p.clock()
	cutoff := now.Add(-bucketWindow)
	kept := p.buckets[:0]
	var sum int64
	var oldest time.Time
	for _, b := range p.buckets {
		if b.start.Before(cutoff) {
			continue
		}
		if oldest.IsZero() || b.start.Before(oldest) {
			oldest = b.start
		}
		kept = append(kept, b)
		sum += b.bytes
	}
	p.buckets = kept

	if sum > 0 && !oldest.IsZero() {
		elapsed := now.Sub(oldest).Milliseconds()
		if elapsed < 50 {
			elapsed = 50
		}
		out.SpeedBps = 1000 * float64(sum) / float64(elapsed)
	}
	return out
}

package sequencer

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/kestrelgames/cytrus-updater/internal/actions"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

func TestBuildQueueShapes(t *testing.T) {
	cases := []struct {
		kind  Type
		names []string
	}{
		{PreInstall, []string{
			"GetRemoteHashes", "CreateDiff[configuration]", "DownloadFragment[configuration]", "LoadConfiguration",
		}},
	}
	for _, c := range cases {
		got := buildQueue(c.kind, nil)
		if len(got) != len(c.names) {
			t.Fatalf("%v: got %d steps, want %d", c.kind, len(got), len(c.names))
		}
		for i, name := range c.names {
			if got[i].name != name {
				t.Errorf("%v: step %d = %q, want %q", c.kind, i, got[i].name, name)
			}
		}
	}
}

func TestBuildQueueInstallUsesRepairNotLocalHashes(t *testing.T) {
	q := buildQueue(Install, []string{"assets"})
	if q[1].name != "Repair" {
		t.Errorf("Install step 1 = %q, want Repair", q[1].name)
	}
	q = buildQueue(Update, []string{"assets"})
	if q[1].name != "GetLocalHashes" {
		t.Errorf("Update step 1 = %q, want GetLocalHashes", q[1].name)
	}
}

func TestInstallTailPerFragmentSteps(t *testing.T) {
	tail := installTail([]string{"assets", "dlc"})
	wantNames := []string{
		"CreateDiff[fragments]",
		"CreateDirectories[assets]", "DownloadFragment[assets]",
		"CreateDirectories[dlc]", "DownloadFragment[dlc]",
		"DeleteFiles", "ClearEmptyDirectories", "SaveHashes",
	}
	if len(tail) != len(wantNames) {
		t.Fatalf("got %d steps, want %d", len(tail), len(wantNames))
	}
	for i, name := range wantNames {
		if tail[i].name != name {
			t.Errorf("step %d = %q, want %q", i, tail[i].name, name)
		}
	}
}

// fakeRelease records which Release methods were invoked.
type fakeRelease struct {
	markedDirty      bool
	transientCleared bool
	locationForgot   bool
	installed        []string
	repairScheduled  bool
	licensesWritten  string
	externalHold     bool
	recordedBytes    int64
}

func (f *fakeRelease) MarkDirty() error                          { f.markedDirty = true; return nil }
func (f *fakeRelease) ClearTransientFlags() error                { f.transientCleared = true; return nil }
func (f *fakeRelease) ForgetLocation() error                     { f.locationForgot = true; return nil }
func (f *fakeRelease) SetInstalledFragments(fragments []string) error {
	f.installed = fragments
	return nil
}
func (f *fakeRelease) ScheduleRepair() { f.repairScheduled = true }
func (f *fakeRelease) WriteLicenses(location, licensesFolder string) error {
	f.licensesWritten = licensesFolder
	return nil
}
func (f *fakeRelease) SetOpenedByExternalProcess(held bool) error {
	f.externalHold = held
	return nil
}
func (f *fakeRelease) RecordDownloadProgress(bytes int64, unixMillis int64) error {
	f.recordedBytes = bytes
	return nil
}

func newTestSequencer(t *testing.T, kind Type, release Release) *Sequencer {
	uc := &actions.Context{FragmentSelection: []string{"assets"}, Location: t.TempDir()}
	s := New(kind, uc, release)
	return s
}

// stubStep builds a queuedStep whose run function returns a Task settled
// with the given outcome as soon as it is invoked.
func stubStep(name string, kind stepKind, fragments []string, err error) *queuedStep {
	return &queuedStep{
		name:      name,
		kind:      kind,
		fragments: fragments,
		run: func(ctx context.Context, uc *actions.Context) *task.Task {
			tk := task.New(nil, nil, nil)
			tk.Settle(nil, err)
			return tk
		},
	}
}

// blockingStep builds a queuedStep whose Task settles only when ctx is
// cancelled, surfacing context.Cause(ctx) as its error.
func blockingStep(name string, kind stepKind, fragments []string) *queuedStep {
	return &queuedStep{
		name:      name,
		kind:      kind,
		fragments: fragments,
		run: func(ctx context.Context, uc *actions.Context) *task.Task {
			tk := task.New(nil, nil, nil)
			go func() {
				<-ctx.Done()
				tk.Settle(nil, context.Cause(ctx))
			}()
			return tk
		},
	}
}

func TestRunCompletesThroughQueue(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Install, rel)
	s.queue = []*queuedStep{
		stubStep("one", stepOther, nil, nil),
		stubStep("two", stepOther, nil, nil),
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != Completed {
		t.Errorf("state = %v, want Completed", s.State())
	}
	if len(rel.installed) != 1 || rel.installed[0] != "assets" {
		t.Errorf("installed fragments = %v", rel.installed)
	}
}

func TestRunPropagatesErrorAndSchedulesRepair(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Update, rel)
	localErr := &actions.LocalHashesError{Location: "/tmp/x", Err: errors.New("missing")}
	s.queue = []*queuedStep{
		stubStep("GetLocalHashes", stepOther, nil, localErr),
	}

	err := s.Run(context.Background())
	if !errors.Is(err, localErr) && !errors.As(err, new(*actions.LocalHashesError)) {
		t.Fatalf("Run err = %v, want wrapping LocalHashesError", err)
	}
	if s.State() != Errored {
		t.Errorf("state = %v, want Errored", s.State())
	}
	if !rel.markedDirty || !rel.transientCleared || !rel.repairScheduled {
		t.Errorf("release side effects = %+v", rel)
	}
	if rel.locationForgot {
		t.Errorf("ForgetLocation should only fire for Install, got forgot=true for Update")
	}
}

func TestRunSetsExternalProcessHoldOnEBUSY(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Update, rel)
	busyErr := fmt.Errorf("deleting stale.bin: %w", syscall.EBUSY)
	s.queue = []*queuedStep{
		stubStep("DeleteFiles", stepOther, nil, busyErr),
	}

	if err := s.Run(context.Background()); !errors.Is(err, syscall.EBUSY) {
		t.Fatalf("Run err = %v, want wrapping EBUSY", err)
	}

	if !rel.externalHold {
		t.Error("expected SetOpenedByExternalProcess(true) on an EBUSY failure")
	}
}

func TestRunInstallErrorForgetsLocation(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Install, rel)
	s.queue = []*queuedStep{
		stubStep("DownloadFragment[assets]", stepDownloadFragment, []string{"assets"}, errors.New("boom")),
	}
	_ = s.Run(context.Background())
	if !rel.locationForgot {
		t.Error("expected ForgetLocation on Install failure")
	}
}

func TestStopCancelsCurrentStepAndFinishesCancelled(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Install, rel)
	s.queue = []*queuedStep{
		blockingStep("DownloadFragment[assets]", stepDownloadFragment, []string{"assets"}),
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	// Give Run a moment to reach runStep and register cancelStep.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ready := s.cancelStep != nil
		s.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if s.State() != Cancelled {
		t.Errorf("state = %v, want Cancelled", s.State())
	}
}

func TestOnFragmentsChangedCancelsDownloadFragmentButNotConfiguration(t *testing.T) {
	rel := &fakeRelease{}
	s := newTestSequencer(t, Install, rel)

	s.mu.Lock()
	s.current = downloadFragmentStep("assets")
	_, cancel := context.WithCancelCause(context.Background())
	s.cancelStep = cancel
	s.mu.Unlock()

	s.OnFragmentsChanged([]string{"assets", "dlc"})

	s.mu.Lock()
	newQueue := s.queue
	s.mu.Unlock()
	if len(newQueue) == 0 || newQueue[0].name != "SaveHashes[checkpoint]" {
		t.Fatalf("rebuilt queue does not start with checkpoint: %+v", newQueue)
	}

	// configuration fragment's DownloadFragment must not be cancellable.
	confStep := downloadFragmentStep(manifest.ConfigurationFragment)
	if isCancellableOnFragmentChange(confStep) {
		t.Error("DownloadFragment[configuration] should not be cancellable on fragment change")
	}
	assetsStep := downloadFragmentStep("assets")
	if !isCancellableOnFragmentChange(assetsStep) {
		t.Error("DownloadFragment[assets] should be cancellable on fragment change")
	}
}

func TestIsExclusivelyConfiguration(t *testing.T) {
	if isExclusivelyConfiguration(nil) {
		t.Error("unscoped (nil) should not count as exclusively configuration")
	}
	if !isExclusivelyConfiguration([]string{manifest.ConfigurationFragment}) {
		t.Error("[configuration] should be exclusively configuration")
	}
	if isExclusivelyConfiguration([]string{manifest.ConfigurationFragment, "assets"}) {
		t.Error("[configuration, assets] should not be exclusively configuration")
	}
}

func TestPauseResumeForwardToCurrentTask(t *testing.T) {
	s := newTestSequencer(t, Install, &fakeRelease{})
	if err := s.Pause(true); err != ErrNoCurrentAction {
		t.Errorf("Pause with no current task = %v, want ErrNoCurrentAction", err)
	}

	tk := task.New(nil, nil, nil)
	s.mu.Lock()
	s.currentTask = tk
	s.mu.Unlock()

	if err := s.Pause(false); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if tk.State() != task.Paused {
		t.Errorf("task state = %v, want Paused", tk.State())
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if tk.State() != task.Resumed {
		t.Errorf("task state = %v, want Resumed", tk.State())
	}
}

func TestProgressTrackerSnapshotAggregatesAndPrunes(t *testing.T) {
	p := newProgressTracker()
	now := time.Now()
	p.clock = func() time.Time { return now }

	p.setAlreadyDownloaded(1000)
	p.resetFragment("assets", 5000)
	p.update("assets", 1000)

	snap := p.snapshot()
	if snap.Overall.Downloaded != 2000 {
		t.Errorf("Overall.Downloaded = %d, want 2000", snap.Overall.Downloaded)
	}
	if snap.Overall.Total != 6000 {
		t.Errorf("Overall.Total = %d, want 6000", snap.Overall.Total)
	}
	if snap.SpeedBps <= 0 {
		t.Errorf("SpeedBps = %v, want > 0 right after an update", snap.SpeedBps)
	}

	// advance the clock past the bucket window: old buckets should be
	// pruned and speed should fall back to zero.
	now = now.Add(bucketWindow + time.Second)
	snap = p.snapshot()
	if snap.SpeedBps != 0 {
		t.Errorf("SpeedBps after window elapsed = %v, want 0", snap.SpeedBps)
	}
	if snap.Overall.Downloaded != 2000 {
		t.Errorf("Overall.Downloaded after prune = %d, want 2000 (progress itself isn't pruned)", snap.Overall.Downloaded)
	}
}

func TestProgressTrackerAccruesWithinSameBucket(t *testing.T) {
	p := newProgressTracker()
	now := time.Now()
	p.clock = func() time.Time { return now }

	p.resetFragment("assets", 1000)
	p.update("assets", 10)
	p.update("assets", 20) // same instant: should merge into the same bucket

	p.mu.Lock()
	n := len(p.buckets)
	bytes := int64(0)
	if n > 0 {
		bytes = p.buckets[n-1].bytes
	}
	p.mu.Unlock()

	if n != 1 {
		t.Fatalf("buckets = %d, want 1", n)
	}
	if bytes != 20 {
		t.Errorf("merged bucket bytes = %d, want 20", bytes)
	}
}

// Package release implements the ReleaseStore (C9): per-release state
// persistence, the legacy-schema migration hooks, and startup crash
// recovery, plus a supplemental sqlite-backed Registry that indexes every
// known release so crash recovery doesn't need a filesystem walk.
//
// It is grounded on the teacher's database package for the registry half
// (db.go's singleton-open-and-migrate shape, table_*.go's prepared-
// statement accessors) and on tasks/task_runner/datastore_migrate.go for
// the record-migration idiom applied here to release.json's legacy shape.
package release

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Release is the concrete ReleaseStore record for one game/release pair.
// It satisfies sequencer.Release without importing that package, the same
// decoupling internal/queue uses for its Runner interface.
type Release struct {
	mu    sync.Mutex
	state State
	path  string // release.json path under the state directory

	registry *Registry // optional; nil when running without the sqlite index

	onRepairScheduled func(*Release)

	locationAvailable atomic.Bool
}

// New constructs a Release from an already-loaded state record and the
// path its release.json lives at. Callers normally get these from
// LoadOrCreate rather than calling New directly.
func New(state State, path string) *Release {
	r := &Release{state: state, path: path}
	r.locationAvailable.Store(true)
	return r
}

// LoadOrCreate reads path's release.json if present, migrating a legacy
// record via gameNameToUID, or seeds a fresh neutral record if the file
// doesn't exist yet (§3 "Release record is created on first observation
// from the repository game list").
func LoadOrCreate(path, gameUID, releaseName string, gameNameToUID map[string]string) (*Release, error) {
	s, err := readState(path, gameNameToUID)
	if err != nil {
		if !isNotExist(err) {
			return nil, err
		}
		s = &State{GameUID: gameUID, ReleaseName: releaseName, SchemaVersion: schemaVersion}
	}
	return New(*s, path), nil
}

// State returns a copy of the current persisted record.
func (r *Release) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsLocationAvailable reports the live flag toggled by the install
// location's file watcher (§5: "when unavailable, no action is scheduled
// against that release").
func (r *Release) IsLocationAvailable() bool {
	return r.locationAvailable.Load()
}

func (r *Release) setLocationAvailable(v bool) {
	r.locationAvailable.Store(v)
}

// SetRepairScheduledHook installs the callback ScheduleRepair invokes. The
// Release package has no reference to the UpdateQueue, so whatever wires
// the two together (the process entry point) supplies this.
func (r *Release) SetRepairScheduledHook(fn func(*Release)) {
	r.mu.Lock()
	r.onRepairScheduled = fn
	r.mu.Unlock()
}

// persistLocked writes the current state to disk and, if a registry is
// attached, syncs the index row. Caller must hold r.mu.
func (r *Release) persistLocked() error {
	if err := writeJSONAtomic(r.path, &r.state); err != nil {
		return err
	}
	if r.registry != nil {
		if err := r.registry.Upsert(&r.state, r.path); err != nil {
			logrus.Warn("release: registry sync failed for ", r.state.GameUID, "/", r.state.ReleaseName, ": ", err)
		}
	}
	return nil
}

// MarkDirty implements sequencer.Release.
func (r *Release) MarkDirty() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsDirty = true
	return r.persistLocked()
}

// ClearTransientFlags implements sequencer.Release.
func (r *Release) ClearTransientFlags() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsInstalling = false
	r.state.IsUpdating = false
	r.state.IsRepairing = ""
	r.state.IsMoving = false
	return r.persistLocked()
}

// ForgetLocation implements sequencer.Release, applying §3's
// location-unset invariant.
func (r *Release) ForgetLocation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.resetLocationNeutral()
	return r.persistLocked()
}

// SetInstalledFragments implements sequencer.Release.
func (r *Release) SetInstalledFragments(fragments []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.InstalledFragments = fragments
	return r.persistLocked()
}

// ScheduleRepair implements sequencer.Release. It cannot enqueue a new run
// itself - that's the UpdateQueue's job, one layer up - so it marks the
// intent on disk and notifies whatever hook was registered.
func (r *Release) ScheduleRepair() {
	r.mu.Lock()
	r.state.IsRepairing = r.state.RepositoryVersion
	err := r.persistLocked()
	hook := r.onRepairScheduled
	r.mu.Unlock()

	if err != nil {
		logrus.Warn("release: failed persisting scheduled repair: ", err)
	}
	if hook != nil {
		hook(r)
	}
}

// WriteLicenses implements sequencer.Release: scans licensesFolder under
// location and persists the result to licenses.json next to release.json
// (§4.9, §6).
func (r *Release) WriteLicenses(location, licensesFolder string) error {
	licenses, err := scanLicenses(location, licensesFolder)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	path := stateDirSibling(r.path, LicensesFileName)
	return writeJSONAtomic(path, licenses)
}

// BeginInstall sets the transient flags for a fresh install and persists.
func (r *Release) BeginInstall(location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Location = location
	r.state.IsInstalling = true
	return r.persistLocked()
}

// BeginUpdate sets the transient flag for an update run and persists.
func (r *Release) BeginUpdate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsUpdating = true
	return r.persistLocked()
}

// BeginMove sets the transient flag for a move run and persists.
func (r *Release) BeginMove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsMoving = true
	return r.persistLocked()
}

// SetRepositoryVersion records the repository's current version for this
// release and persists; WriteReleaseInfos/SaveHashes's completion is what
// makes Version non-null (§3 invariant), RepositoryVersion tracks what the
// repository is currently offering regardless of install progress.
func (r *Release) SetRepositoryVersion(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.RepositoryVersion = version
	return r.persistLocked()
}

// SetInstalledVersion records a successful WriteReleaseInfos + SaveHashes
// sequence's resulting version (§3 invariant: "version is non-null only
// after" that sequence).
func (r *Release) SetInstalledVersion(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Version = version
	return r.persistLocked()
}

// SetUpdatePausedByUser records whether the update currently targeting
// this release was paused by the user, mirroring the UpdateQueue's
// Update.PausedByUser for persistence across restarts.
func (r *Release) SetUpdatePausedByUser(v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.UpdatePausedByUser = v
	return r.persistLocked()
}

// RecordDownloadProgress persists a coarse, infrequent snapshot of update
// download progress so a restart can show "resuming a N-byte update"
// rather than starting blind; this is not the fine-grained progress
// tracker the Sequencer keeps in memory, just a checkpoint.
func (r *Release) RecordDownloadProgress(bytes int64, unixMillis int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.UpdateDownloadedSize = bytes
	r.state.UpdateDownloadedSizeDate = unixMillis
	return r.persistLocked()
}

// SetOpenedByExternalProcess implements sequencer.Release's advisory §9
// Open Questions flag.
func (r *Release) SetOpenedByExternalProcess(held bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.OpenedByExternalProcess = held
	return r.persistLocked()
}

// Setup is §4.9's crash-recovery dispatch, run once per release at process
// startup.
func (r *Release) Setup() RecoveryAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.state
	switch {
	case s.IsDirty || s.IsRepairing != "" || (s.IsInstalling && s.Location != ""):
		return RecoveryRepair
	case s.IsUpdating:
		return RecoveryUpdate
	case s.IsMoving:
		return RecoveryMoveResume
	default:
		return RecoveryNone
	}
}

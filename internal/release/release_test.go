package release

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOrCreateSeedsNeutralRecordWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StateFileName)

	r, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	s := r.State()
	if s.GameUID != "game-1" || s.ReleaseName != "stable" {
		t.Errorf("state = %+v, want fresh neutral record for game-1/stable", s)
	}
	if s.IsDirty || s.IsInstalling || s.Location != "" {
		t.Errorf("fresh record should be neutral, got %+v", s)
	}
}

func TestMarkDirtyPersistsAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StateFileName)
	r, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.MarkDirty(); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	r2, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.State().IsDirty {
		t.Error("expected reloaded record to be dirty")
	}
}

func TestForgetLocationResetsNeutralFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StateFileName)
	r, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	r.state.Location = "/games/stable"
	r.state.Version = "v1"
	r.state.InstalledFragments = []string{"assets"}
	r.state.IsInstalling = true
	r.state.IsUpdating = true
	r.state.IsRepairing = "v2"
	r.state.IsMoving = true
	r.mu.Unlock()

	if err := r.ForgetLocation(); err != nil {
		t.Fatalf("ForgetLocation: %v", err)
	}
	s := r.State()
	if s.Location != "" || s.Version != "" || s.InstalledFragments != nil {
		t.Errorf("location-neutral fields not reset: %+v", s)
	}
	if s.IsInstalling || s.IsUpdating || s.IsRepairing != "" {
		t.Errorf("transient flags not reset: %+v", s)
	}
	// isMoving is not part of §3's location-unset reset list.
	if !s.IsMoving {
		t.Error("ForgetLocation should not touch isMoving")
	}
}

func TestClearTransientFlagsLeavesLocationIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StateFileName)
	r, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	r.state.Location = "/games/stable"
	r.state.IsInstalling = true
	r.state.IsMoving = true
	r.mu.Unlock()

	if err := r.ClearTransientFlags(); err != nil {
		t.Fatalf("ClearTransientFlags: %v", err)
	}
	s := r.State()
	if s.Location != "/games/stable" {
		t.Error("ClearTransientFlags should not touch location")
	}
	if s.IsInstalling || s.IsMoving {
		t.Errorf("expected transient flags cleared, got %+v", s)
	}
}

func TestScheduleRepairInvokesHookAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StateFileName)
	r, err := LoadOrCreate(path, "game-1", "stable", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	r.state.RepositoryVersion = "v3"
	r.mu.Unlock()

	var hooked *Release
	r.SetRepairScheduledHook(func(rr *Release) { hooked = rr })

	r.ScheduleRepair()

	if hooked != r {
		t.Error("expected ScheduleRepair to invoke its hook with itself")
	}
	if r.State().IsRepairing != "v3" {
		t.Errorf("IsRepairing = %q, want %q", r.State().IsRepairing, "v3")
	}
}

func TestSetupDispatchesRecoveryAction(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  RecoveryAction
	}{
		{"dirty wins", State{IsDirty: true, IsUpdating: true}, RecoveryRepair},
		{"repairing wins", State{IsRepairing: "v1"}, RecoveryRepair},
		{"installing with location", State{IsInstalling: true, Location: "/x"}, RecoveryRepair},
		{"installing without location is not a repair", State{IsInstalling: true}, RecoveryNone},
		{"updating", State{IsUpdating: true}, RecoveryUpdate},
		{"moving", State{IsMoving: true}, RecoveryMoveResume},
		{"neutral", State{}, RecoveryNone},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := New(c.state, filepath.Join(t.TempDir(), StateFileName))
			if got := r.Setup(); got != c.want {
				t.Errorf("Setup() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestWriteLicensesScansFolderAndSortsByName(t *testing.T) {
	install := t.TempDir()
	licensesDir := filepath.Join(install, "licenses")
	if err := os.MkdirAll(licensesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(licensesDir, "zlib.txt"), []byte("zlib license text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(licensesDir, "mit.txt"), []byte("mit license text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(licensesDir, "readme.ignored"), []byte("not a license"), 0o644); err != nil {
		t.Fatal(err)
	}

	statePath := filepath.Join(t.TempDir(), "state", StateFileName)
	r := New(State{GameUID: "g", ReleaseName: "r"}, statePath)

	if err := r.WriteLicenses(install, "licenses"); err != nil {
		t.Fatalf("WriteLicenses: %v", err)
	}

	raw, err := os.ReadFile(stateDirSibling(statePath, LicensesFileName))
	if err != nil {
		t.Fatalf("reading licenses.json: %v", err)
	}
	var got []LicenseEntry
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal licenses.json: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(licenses) = %d, want 2 (readme.ignored excluded)", len(got))
	}
	if got[0].Title != "mit" || got[1].Title != "zlib" {
		t.Errorf("licenses not sorted by filename: %+v", got)
	}
}

func TestDecodeStateMigratesLegacyGameNameAndIsRepairing(t *testing.T) {
	legacy := `{
		"gameName": "Widget Quest",
		"releaseName": "stable",
		"location": "/games/widget",
		"repositoryVersion": "v7",
		"isRepairing": true,
		"schemaVersion": 1
	}`
	s, err := decodeState([]byte(legacy), map[string]string{"Widget Quest": "widget-quest-uid"})
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}
	if s.GameUID != "widget-quest-uid" {
		t.Errorf("GameUID = %q, want migrated uid", s.GameUID)
	}
	if s.IsRepairing != "v7" {
		t.Errorf("IsRepairing = %q, want %q (migrated from bool+repositoryVersion)", s.IsRepairing, "v7")
	}
	if s.SchemaVersion != schemaVersion {
		t.Errorf("SchemaVersion = %d, want %d after migration", s.SchemaVersion, schemaVersion)
	}
}

func TestDecodeStateLeavesCurrentSchemaUntouched(t *testing.T) {
	current := `{"gameUid":"g","releaseName":"stable","isRepairing":"v2","schemaVersion":2}`
	s, err := decodeState([]byte(current), nil)
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}
	if s.GameUID != "g" || s.IsRepairing != "v2" {
		t.Errorf("unexpected result decoding an already-current record: %+v", s)
	}
}

func TestWatchLocationReturnsImmediatelyWithNoLocation(t *testing.T) {
	r := New(State{GameUID: "g", ReleaseName: "r"}, filepath.Join(t.TempDir(), StateFileName))

	done := make(chan struct{})
	go func() {
		r.WatchLocation(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchLocation should return immediately when Location is unset")
	}
}

func TestSetLocationAvailableIsObservable(t *testing.T) {
	r := New(State{GameUID: "g", ReleaseName: "r", Location: "/x"}, filepath.Join(t.TempDir(), StateFileName))
	if !r.IsLocationAvailable() {
		t.Error("New should default to available until the first check runs")
	}
	r.setLocationAvailable(false)
	if r.IsLocationAvailable() {
		t.Error("expected availability to reflect setLocationAvailable(false)")
	}
}

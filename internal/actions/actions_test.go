package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/pool"
)

func newTestRegistry(t *testing.T) *pool.Registry {
	t.Helper()
	r, err := pool.NewRegistry()
	if err != nil {
		t.Fatalf("pool.NewRegistry: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func TestCreateDiffCoversEverySelectedFragment(t *testing.T) {
	uc := &Context{
		FragmentSelection: []string{"assets"},
		LocalHashes:       manifest.Manifest{},
		RemoteHashes: manifest.Manifest{
			manifest.ConfigurationFragment: {Files: map[string]manifest.FileEntry{"config.json": {Hash: "a", Size: 10}}},
			"assets":                       {Files: map[string]manifest.FileEntry{"assets/a.bin": {Hash: "b", Size: 20}}},
		},
	}
	tk := CreateDiff(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("CreateDiff: %v", err)
	}
	if len(uc.Diff) != 2 {
		t.Errorf("diff has %d fragments, want 2", len(uc.Diff))
	}
	if _, ok := uc.Diff[manifest.ConfigurationFragment]; !ok {
		t.Fatal("expected configuration fragment in the diff")
	}
	if _, ok := uc.Diff["assets"]; !ok {
		t.Fatal("expected assets fragment in the diff")
	}
}

// TestCreateDiffTombstonesDeselectedFragment is the regression case for a
// fragment selection narrowed between runs (a repair/update that dropped a
// previously-installed fragment, or a crash-recovered release restoring an
// older FragmentSelection): CreateDiff must still see that fragment's local
// files even though it is no longer selected, so they get tombstoned
// instead of silently surviving on disk and in .release.hashes.json.
func TestCreateDiffTombstonesDeselectedFragment(t *testing.T) {
	uc := &Context{
		FragmentSelection: []string{"main"}, // "extra" dropped from the selection
		LocalHashes: manifest.Manifest{
			manifest.ConfigurationFragment: {Files: map[string]manifest.FileEntry{"config.json": {Hash: "a", Size: 10}}},
			"main":                         {Files: map[string]manifest.FileEntry{"main/a.bin": {Hash: "m", Size: 5}}},
			"extra":                        {Files: map[string]manifest.FileEntry{"extra/b.bin": {Hash: "e", Size: 5}}},
		},
		RemoteHashes: manifest.Manifest{
			manifest.ConfigurationFragment: {Files: map[string]manifest.FileEntry{"config.json": {Hash: "a", Size: 10}}},
			"main":                         {Files: map[string]manifest.FileEntry{"main/a.bin": {Hash: "m", Size: 5}}},
			"extra":                        {Files: map[string]manifest.FileEntry{"extra/b.bin": {Hash: "e", Size: 5}}},
		},
	}

	tk := CreateDiff(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("CreateDiff: %v", err)
	}

	entry := uc.Diff["extra"].Files["extra/b.bin"]
	if entry == nil || !entry.IsDeletion() {
		t.Fatalf("expected extra/b.bin to be tombstoned once its fragment was deselected, got %+v", entry)
	}
	if cfg := uc.Diff[manifest.ConfigurationFragment]; cfg == nil || len(cfg.Files) != 0 {
		t.Fatalf("expected configuration fragment to still be present with no changes, got %+v", cfg)
	}
}

func TestCreateDirectoriesOnlyUsesNamedFragment(t *testing.T) {
	dir := t.TempDir()
	uc := &Context{
		Location: dir,
		Pool:     newTestRegistry(t),
		Diff: manifest.Diff{
			"assets": {Files: map[string]*manifest.DiffFileEntry{
				"assets/sub/a.bin": {Download: true},
			}},
			"dlc": {Files: map[string]*manifest.DiffFileEntry{
				"dlc/other/b.bin": {Download: true},
			}},
		},
	}

	tk := CreateDirectories(context.Background(), uc, "assets")
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("CreateDirectories: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "assets", "sub")); err != nil {
		t.Errorf("expected assets/sub created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "dlc", "other")); !os.IsNotExist(err) {
		t.Errorf("dlc/other should not have been created by a fragment-scoped call, err=%v", err)
	}
}

func TestDeleteFilesSkipsPathsWantedByAnotherFragment(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "shared.bin")
	gone := filepath.Join(dir, "stale.bin")
	for _, p := range []string{keep, gone} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	uc := &Context{
		Location: dir,
		Pool:     newTestRegistry(t),
		Diff: manifest.Diff{
			"assets": {Files: map[string]*manifest.DiffFileEntry{
				"shared.bin": {Size: 0}, // marked deleted by this fragment's view
			}},
			"dlc": {Files: map[string]*manifest.DiffFileEntry{
				"shared.bin": {Size: 5, Download: true}, // but wanted by dlc
				"stale.bin":  {Size: 0},
			}},
		},
	}

	tk := DeleteFiles(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}

	if _, err := os.Stat(keep); err != nil {
		t.Errorf("shared.bin should have survived (wanted by dlc): %v", err)
	}
	if _, err := os.Stat(gone); !os.IsNotExist(err) {
		t.Errorf("stale.bin should have been deleted, err=%v", err)
	}
	if len(uc.DeletedFiles) != 1 || uc.DeletedFiles[0] != "stale.bin" {
		t.Errorf("DeletedFiles = %v, want [stale.bin]", uc.DeletedFiles)
	}
}

func TestClearEmptyDirectoriesRemovesBottomUp(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "keep")
	if err := os.MkdirAll(keep, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(keep, "file.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	uc := &Context{Location: dir}
	tk := ClearEmptyDirectories(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("ClearEmptyDirectories: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "a")); !os.IsNotExist(err) {
		t.Errorf("empty tree under a/ should be gone, err=%v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("non-empty dir should survive: %v", err)
	}
}

func TestSaveHashesFoldsDownloadsAndDeletionsThenRoundTrips(t *testing.T) {
	dir := t.TempDir()
	uc := &Context{
		Location: dir,
		Diff: manifest.Diff{
			"assets": {Files: map[string]*manifest.DiffFileEntry{
				"assets/a.bin": {},
				"assets/b.bin": {},
			}},
		},
		LocalHashes: manifest.Manifest{
			"assets": {Files: map[string]manifest.FileEntry{
				"assets/b.bin": {Hash: "stale", Size: 3},
			}},
		},
		DownloadedFiles: map[string]manifest.FileEntry{
			"assets/a.bin": {Hash: "h1", Size: 10},
		},
		DeletedFiles: []string{"assets/b.bin"},
	}

	tk := SaveHashes(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("SaveHashes: %v", err)
	}

	frag := uc.LocalHashes["assets"]
	if frag == nil {
		t.Fatal("expected assets fragment in LocalHashes")
	}
	if _, ok := frag.Files["assets/a.bin"]; !ok {
		t.Error("expected assets/a.bin recorded")
	}
	if _, ok := frag.Files["assets/b.bin"]; ok {
		t.Error("assets/b.bin should have been removed by the deletion fold")
	}

	raw, err := os.ReadFile(filepath.Join(dir, HashesFileName))
	if err != nil {
		t.Fatalf("reading persisted hashes: %v", err)
	}
	first := raw

	// Running again against the same state must be byte-identical (§8's
	// round-trip law): re-seed LocalHashes from what we just wrote and
	// re-run with the same downloaded/deleted sets.
	uc2 := &Context{
		Location:        dir,
		Diff:            uc.Diff,
		DownloadedFiles: uc.DownloadedFiles,
		DeletedFiles:    uc.DeletedFiles,
	}
	var reloaded manifest.Manifest
	if err := json.Unmarshal(first, &reloaded); err != nil {
		t.Fatalf("unmarshal persisted hashes: %v", err)
	}
	uc2.LocalHashes = reloaded

	tk = SaveHashes(context.Background(), uc2)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("second SaveHashes: %v", err)
	}

	second, err := os.ReadFile(filepath.Join(dir, HashesFileName))
	if err != nil {
		t.Fatalf("reading re-persisted hashes: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("SaveHashes is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestRepairRebuildsFromDiskAndSkipsUnselectedFragments(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	assetPath := filepath.Join(dir, "assets", "a.bin")
	if err := os.WriteFile(assetPath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	uc := &Context{
		Location:          dir,
		Pool:              newTestRegistry(t),
		FragmentSelection: []string{"assets"},
		RemoteHashes: manifest.Manifest{
			manifest.ConfigurationFragment: {Files: map[string]manifest.FileEntry{
				"config.json": {Hash: "x", Size: 1},
			}},
			"assets": {Files: map[string]manifest.FileEntry{
				"assets/a.bin":       {Hash: "y", Size: 5},
				"assets/missing.bin": {Hash: "z", Size: 99},
			}},
			"dlc": {Files: map[string]manifest.FileEntry{
				"dlc/x.bin": {Hash: "w", Size: 3},
			}},
		},
	}

	tk := Repair(context.Background(), uc)
	<-tk.Done()
	if err := tk.Outcome().Err; err != nil {
		t.Fatalf("Repair: %v", err)
	}

	if _, ok := uc.LocalHashes["dlc"]; ok {
		t.Error("dlc is not selected and should not appear in rebuilt local hashes")
	}
	assetsFrag := uc.LocalHashes["assets"]
	if assetsFrag == nil {
		t.Fatal("expected assets fragment rebuilt")
	}
	if _, ok := assetsFrag.Files["assets/a.bin"]; !ok {
		t.Error("expected assets/a.bin rehashed from disk")
	}
	if _, ok := assetsFrag.Files["assets/missing.bin"]; ok {
		t.Error("a file absent from disk should not be recorded, not erred")
	}
	if _, ok := uc.LocalHashes[manifest.ConfigurationFragment]; !ok {
		t.Error("configuration fragment is always selected regardless of FragmentSelection")
	}
}

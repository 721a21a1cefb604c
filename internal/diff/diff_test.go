package diff

import (
	"testing"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
)

func TestFreshInstallOneFile(t *testing.T) {
	remote := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			"a.bin": {Hash: "aa", Size: 4, Executable: false},
		}},
	}
	local := manifest.Manifest{}

	d := Compute([]string{"main"}, local, remote)

	frag := d["main"]
	if frag == nil {
		t.Fatalf("expected a diff bucket for main")
	}
	entry := frag.Files["a.bin"]
	if entry == nil || !entry.Download || entry.Hash != "aa" || entry.Size != 4 {
		t.Fatalf("expected a.bin to be marked for download, got %+v", entry)
	}
}

func TestIdempotentRerunProducesEmptyDiff(t *testing.T) {
	remote := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			"a.bin": {Hash: "aa", Size: 4, Executable: false},
		}},
	}
	local := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			"a.bin": {Hash: "aa", Size: 4, Executable: false},
		}},
	}

	d := Compute([]string{"main"}, local, remote)
	if !d.IsEmpty() {
		t.Fatalf("expected an idempotent rerun to produce an empty diff, got %+v", d["main"].Files)
	}
}

func TestDeletionOfLocalOnlyFile(t *testing.T) {
	remote := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			"a.bin": {Hash: "aa", Size: 4},
		}},
	}
	local := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			"a.bin": {Hash: "aa", Size: 4},
			"b.bin": {Hash: "bb", Size: 2},
		}},
	}

	d := Compute([]string{"main"}, local, remote)

	bEntry := d["main"].Files["b.bin"]
	if bEntry == nil || !bEntry.IsDeletion() {
		t.Fatalf("expected b.bin to be tombstoned, got %+v", bEntry)
	}
	if aEntry, ok := d["main"].Files["a.bin"]; ok && aEntry.Download {
		t.Fatalf("did not expect a.bin to be re-downloaded")
	}
}

func TestPackCoalescingAboveRatio(t *testing.T) {
	files := map[string]manifest.FileEntry{}
	hashes := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		hash := "h" + string(rune('0'+i))
		hashes = append(hashes, hash)
		if i < 6 {
			// these 6 changed remotely and so become downloadable
			files["f"+string(rune('0'+i))] = manifest.FileEntry{Hash: hash, Size: 10}
		} else {
			// these 4 are unchanged from local
			files["f"+string(rune('0'+i))] = manifest.FileEntry{Hash: hash, Size: 10}
		}
	}

	remote := manifest.Manifest{
		"main": {
			Files: files,
			Packs: map[string]manifest.PackEntry{
				"packhash": {Size: 1000, Hashes: hashes},
			},
		},
	}

	local := manifest.Manifest{
		"main": {Files: map[string]manifest.FileEntry{
			// the last 4 already match remote; the first 6 are absent locally
			"f6": {Hash: "h6", Size: 10},
			"f7": {Hash: "h7", Size: 10},
			"f8": {Hash: "h8", Size: 10},
			"f9": {Hash: "h9", Size: 10},
		}},
	}

	d := Compute([]string{"main"}, local, remote)

	packEntry := d["main"].Files["pack/packhash"]
	if packEntry == nil || !packEntry.IsPack || !packEntry.Download {
		t.Fatalf("expected a coalesced pack entry, got %+v", d["main"].Files)
	}
	if len(packEntry.PackFiles) != 6 {
		t.Fatalf("expected 6 pack members, got %d", len(packEntry.PackFiles))
	}
	for i := 0; i < 6; i++ {
		name := "f" + string(rune('0'+i))
		if _, stillIndividual := d["main"].Files[name]; stillIndividual {
			t.Fatalf("expected %s to be removed from individual downloads once packed", name)
		}
	}
}

func TestUnselectedFragmentWithLocalCopyIsFullyTombstoned(t *testing.T) {
	remote := manifest.Manifest{
		"configuration": {Files: map[string]manifest.FileEntry{"cfg.json": {Hash: "c1", Size: 1}}},
		"fr": {Files: map[string]manifest.FileEntry{
			"strings.bin": {Hash: "s1", Size: 5},
		}},
	}
	local := manifest.Manifest{
		"configuration": {Files: map[string]manifest.FileEntry{"cfg.json": {Hash: "c1", Size: 1}}},
		"fr": {Files: map[string]manifest.FileEntry{
			"strings.bin": {Hash: "s1", Size: 5},
		}},
	}

	// "fr" is no longer selected, but it is locally present.
	d := Compute([]string{"configuration"}, local, remote)

	frEntry := d["fr"].Files["strings.bin"]
	if frEntry == nil || !frEntry.IsDeletion() {
		t.Fatalf("expected deselected fragment's local file to be tombstoned, got %+v", frEntry)
	}
	if !(manifest.Diff{"configuration": d["configuration"]}).IsEmpty() && len(d["configuration"].Files) != 0 {
		t.Fatalf("expected configuration fragment to have no changes, got %+v", d["configuration"].Files)
	}
}

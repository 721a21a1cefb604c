package manifest

import "testing"

func TestFileEntryIsTombstone(t *testing.T) {
	tombstone := FileEntry{Size: 0, Hash: ""}
	if !tombstone.IsTombstone() {
		t.Fatalf("expected tombstone entry to report IsTombstone")
	}

	present := FileEntry{Size: 4, Hash: "aa"}
	if present.IsTombstone() {
		t.Fatalf("did not expect populated entry to report IsTombstone")
	}
}

func TestManifestCloneIsIndependent(t *testing.T) {
	m := Manifest{
		"main": &Fragment{
			Files: map[string]FileEntry{
				"a.bin": {Hash: "aa", Size: 4},
			},
		},
	}

	clone := m.Clone()
	delete(clone["main"].Files, "a.bin")

	if _, stillThere := m["main"].Files["a.bin"]; !stillThere {
		t.Fatalf("mutating the clone affected the original manifest")
	}
}

func TestDiffIsEmpty(t *testing.T) {
	empty := Diff{"main": NewDiffFragment()}
	if !empty.IsEmpty() {
		t.Fatalf("expected diff with no decisions to be empty")
	}

	withDownload := Diff{"main": {Files: map[string]*DiffFileEntry{
		"a.bin": {Download: true, Size: 4},
	}}}
	if withDownload.IsEmpty() {
		t.Fatalf("expected diff with a download decision to be non-empty")
	}
}

func TestParseGameListFoldsLegacyKeys(t *testing.T) {
	legacy := []byte(`{"Version":5,"Games":{"demo":{"GameId":"demo","Order":1,"Name":"Demo"}}}`)
	gl, err := ParseGameList(legacy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gl.Version != 5 {
		t.Fatalf("expected version 5, got %d", gl.Version)
	}
	if _, ok := gl.Games["demo"]; !ok {
		t.Fatalf("expected folded games map to retain the demo entry")
	}
}

func TestParseGameListRejectsUnsupportedVersion(t *testing.T) {
	raw := []byte(`{"version":4,"games":{}}`)
	_, err := ParseGameList(raw)
	if err != ErrUnsupportedCytrusVersion {
		t.Fatalf("expected ErrUnsupportedCytrusVersion, got %v", err)
	}
}

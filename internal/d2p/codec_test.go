package d2p

import (
	"bytes"
	"testing"
)

func TestBuildExtractRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "one.txt", Data: []byte("hello")},
		{Name: "two.txt", Data: []byte("world, a little longer body")},
		{Name: "empty.txt", Data: []byte{}},
	}
	properties := []Property{{Key: "gameUid", Value: "demo"}}

	raw, err := BuildBytes(entries, properties)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	files, meta, err := ExtractBytes(raw)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if len(meta.Files) != len(entries) {
		t.Fatalf("expected %d files in meta, got %d", len(entries), len(meta.Files))
	}
	for i, e := range entries {
		if meta.Files[i] != e.Name {
			t.Fatalf("expected file order to match index order, got %v at %d", meta.Files[i], i)
		}
		if !bytes.Equal(files[e.Name], e.Data) {
			t.Fatalf("body mismatch for %s: got %q want %q", e.Name, files[e.Name], e.Data)
		}
	}
	if len(meta.Properties) != 1 || meta.Properties[0] != properties[0] {
		t.Fatalf("property round-trip mismatch: got %v", meta.Properties)
	}

	// Re-building from the extracted entries, in index order, must produce
	// byte-identical output (§8: D2P.build(D2P.extract(x)) == x).
	rebuilt := make([]Entry, len(meta.Files))
	for i, name := range meta.Files {
		rebuilt[i] = Entry{Name: name, Data: files[name]}
	}
	raw2, err := BuildBytes(rebuilt, meta.Properties)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if !bytes.Equal(raw, raw2) {
		t.Fatalf("expected build(extract(x)) == x")
	}
}

func TestExtractRejectsWrongVersion(t *testing.T) {
	raw := make([]byte, headerSize+trailerSize)
	raw[0] = 1
	raw[1] = 0
	_, _, err := ExtractBytes(raw)
	if err != ErrWrongVersion {
		t.Fatalf("expected ErrWrongVersion, got %v", err)
	}
}

func TestExtractRejectsTruncatedFile(t *testing.T) {
	_, _, err := ExtractBytes([]byte{2, 1})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

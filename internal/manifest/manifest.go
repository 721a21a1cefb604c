// Package manifest holds the §3 data model: remote/local manifests, the
// diff shape produced by the diff engine, and the legacy cytrus v4 key
// folding described in §9.
package manifest

// FileEntry is one file record inside a fragment's Files map. A record with
// Size == 0 and Hash == "" is a tombstone: the file should be removed.
type FileEntry struct {
	Hash       string `json:"hash"`
	Size       uint64 `json:"size"`
	Executable bool   `json:"executable"`
}

// IsTombstone reports whether this entry marks a file for deletion.
func (f FileEntry) IsTombstone() bool {
	return f.Size == 0 && f.Hash == ""
}

// HashTarget is one destination sharing a content hash, used by the
// diff-side inverted hash index.
type HashTarget struct {
	Path       string `json:"path"`
	Size       uint64 `json:"size"`
	Executable bool   `json:"executable"`
}

// PackEntry describes a tar bundle addressed by one hash, whose members
// replace individual file fetches once enough of them are downloadable.
type PackEntry struct {
	Size   uint64   `json:"size"`
	Hashes []string `json:"hashes"`
}

// ArchiveFile is one inner member of an Archive.
type ArchiveFile struct {
	Hash string `json:"hash"`
	Size uint64 `json:"size"`
}

// ArchiveEntry describes a container file (a .d2p archive) whose internal
// members are manifested individually and may be patched in place.
type ArchiveEntry struct {
	Files map[string]ArchiveFile `json:"files"`
}

// Fragment is one named subset of a release's content.
type Fragment struct {
	Files    map[string]FileEntry        `json:"files"`
	Hashes   map[string][]HashTarget     `json:"hashes,omitempty"`
	Packs    map[string]PackEntry        `json:"packs,omitempty"`
	Archives map[string]ArchiveEntry     `json:"archives,omitempty"`
}

// Manifest maps fragment name to its record. Both the remote manifest
// fetched from the repository and the local manifest read from
// .release.hashes.json share this shape.
type Manifest map[string]*Fragment

// ConfigurationFragment is the name of the mandatory fragment that always
// diffs and downloads first and defines the remaining fragment set.
const ConfigurationFragment = "configuration"

// NewFragment returns an empty, initialized fragment.
func NewFragment() *Fragment {
	return &Fragment{
		Files: map[string]FileEntry{},
	}
}

// Clone returns a deep-enough copy of the manifest for use as a diff-pass
// scratch copy (§4.5 step 1: "remove matched entries from the local-side
// scratch copy").
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for name, frag := range m {
		if frag == nil {
			continue
		}
		nf := &Fragment{
			Files: make(map[string]FileEntry, len(frag.Files)),
		}
		for p, e := range frag.Files {
			nf.Files[p] = e
		}
		if frag.Packs != nil {
			nf.Packs = make(map[string]PackEntry, len(frag.Packs))
			for h, p := range frag.Packs {
				nf.Packs[h] = p
			}
		}
		if frag.Archives != nil {
			nf.Archives = make(map[string]ArchiveEntry, len(frag.Archives))
			for p, a := range frag.Archives {
				nf.Archives[p] = a
			}
		}
		out[name] = nf
	}
	return out
}

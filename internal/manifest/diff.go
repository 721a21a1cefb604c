package manifest

// DiffFileEntry is a file entry as it appears inside a Diff, carrying the
// extra decision fields the DiffEngine attaches per §3.
type DiffFileEntry struct {
	Hash              string                 `json:"hash,omitempty"`
	Size              uint64                 `json:"size"`
	Executable        bool                   `json:"executable"`
	Download          bool                   `json:"download,omitempty"`
	UpdatePermissions bool                   `json:"updatePermissions,omitempty"`
	IsPack            bool                   `json:"isPack,omitempty"`
	PackFiles         map[string]FileEntry   `json:"packFiles,omitempty"`
}

// IsDeletion reports whether this entry represents a file to remove.
func (e DiffFileEntry) IsDeletion() bool {
	return e.Size == 0 && !e.Download && !e.IsPack
}

// DiffFragment is one fragment's worth of diff output.
type DiffFragment struct {
	Files    map[string]*DiffFileEntry `json:"files"`
	Hashes   map[string][]HashTarget   `json:"hashes,omitempty"`
	Archives map[string]ArchiveEntry   `json:"archives,omitempty"`
}

// Diff is the output of the DiffEngine: same shape as Manifest, keyed by
// fragment, with per-file decisions about what the Fetcher/ActionLibrary
// must do.
type Diff map[string]*DiffFragment

// NewDiffFragment returns an empty, initialized diff fragment.
func NewDiffFragment() *DiffFragment {
	return &DiffFragment{Files: map[string]*DiffFileEntry{}}
}

// TotalDownloadSize sums the size of every entry in the fragment marked for
// download, including pack entries (whose size is the compressed pack size,
// not the sum of its members - this matches what the repository actually
// transfers over the wire).
func (f *DiffFragment) TotalDownloadSize() uint64 {
	var total uint64
	for _, e := range f.Files {
		if e.Download {
			total += e.Size
		}
	}
	return total
}

// DownloadCount returns the number of entries in the fragment marked for
// download (packs count as one transfer, not one per member).
func (f *DiffFragment) DownloadCount() int {
	n := 0
	for _, e := range f.Files {
		if e.Download {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the diff has no work to do in any fragment
// (§8: "diff(C, L, L) = ∅").
func (d Diff) IsEmpty() bool {
	for _, frag := range d {
		if frag == nil {
			continue
		}
		for _, e := range frag.Files {
			if e.Download || e.UpdatePermissions || e.IsDeletion() {
				return false
			}
		}
	}
	return true
}

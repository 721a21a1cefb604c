package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// SaveHashes folds everything this run downloaded, archived, or deleted
// into ctx.LocalHashes and persists it to .release.hashes.json. Writing the
// same diff's results twice produces byte-identical output, since
// json.Marshal orders map keys deterministically (§8's round-trip law).
func SaveHashes(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		if uc.LocalHashes == nil {
			uc.LocalHashes = manifest.Manifest{}
		}

		fragmentOf := fragmentIndex(uc.Diff)

		for path, fe := range uc.DownloadedFiles {
			frag := fragmentFor(uc.LocalHashes, fragmentOf, path)
			frag.Files[path] = fe
		}
		for path, ae := range uc.DownloadedArchives {
			frag := fragmentFor(uc.LocalHashes, fragmentOf, path)
			if frag.Archives == nil {
				frag.Archives = map[string]manifest.ArchiveEntry{}
			}
			frag.Archives[path] = ae
		}
		for _, path := range uc.DeletedFiles {
			fragName, ok := fragmentOf[path]
			if !ok {
				continue
			}
			if frag := uc.LocalHashes[fragName]; frag != nil {
				delete(frag.Files, path)
				delete(frag.Archives, path)
			}
		}

		raw, err := json.MarshalIndent(uc.LocalHashes, "", "  ")
		if err != nil {
			return err
		}

		tmp := filepath.Join(uc.Location, HashesFileName+".tmp")
		if err := os.WriteFile(tmp, raw, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, filepath.Join(uc.Location, HashesFileName))
	})
}

// fragmentIndex maps every path named in the diff to the fragment it
// belongs to, so flat DownloadedFiles/DownloadedArchives/DeletedFiles
// records can be folded back into the per-fragment local manifest.
func fragmentIndex(diff manifest.Diff) map[string]string {
	idx := map[string]string{}
	for name, frag := range diff {
		if frag == nil {
			continue
		}
		for path, entry := range frag.Files {
			idx[path] = name
			if entry == nil || !entry.IsPack {
				continue
			}
			for packPath := range entry.PackFiles {
				idx[packPath] = name
			}
		}
	}
	return idx
}

func fragmentFor(local manifest.Manifest, idx map[string]string, path string) *manifest.Fragment {
	name, ok := idx[path]
	if !ok {
		name = manifest.ConfigurationFragment
	}
	frag := local[name]
	if frag == nil {
		frag = manifest.NewFragment()
		local[name] = frag
	}
	return frag
}

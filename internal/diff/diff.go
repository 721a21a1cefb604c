// Package diff implements the DiffEngine (§4.5): manifest reconciliation
// that decides which files to download, delete, or repermission, including
// pack-aggregation heuristics. It is pure and stateless over its inputs -
// the CreateDiff action (§4.6) is the only caller, and it may be called
// again with a different fragment selection at any time (§4.5, "Fragment-
// change mid-flight").
//
// The core partition (added/modified/removed by hash comparison) is shaped
// after other_examples/Gustash-FreeCarnival's delta.go, generalized from a
// flat file list to cytrus's fragment/pack/archive manifest shape.
package diff

import (
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
)

// PackRatio is the threshold above which a pack is downloaded wholesale
// instead of its members individually (§4.5 step 2, §8).
const PackRatio = 0.5

// Compute runs the three-pass DiffEngine algorithm described in §4.5 over
// a fragment selection and the local/remote manifests, and returns the
// resulting Diff. The configuration fragment is always treated as selected
// regardless of the selection slice, since it diffs and downloads before
// the rest of the release's fragment set is even known.
func Compute(selection []string, local, remote manifest.Manifest) manifest.Diff {
	selected := toSet(selection)
	scratch := local.Clone()

	result := manifest.Diff{}

	for fragName, remoteFrag := range remote {
		if remoteFrag == nil {
			continue
		}
		isSelected := fragName == manifest.ConfigurationFragment || selected[fragName]
		_, hasLocalCopy := scratch[fragName]

		if !isSelected && !hasLocalCopy {
			continue // §4.5 step 1: nothing local, not selected - skip entirely
		}

		diffFrag := manifest.NewDiffFragment()
		result[fragName] = diffFrag

		localFrag := scratch[fragName]

		for path, remoteEntry := range remoteFrag.Files {
			if !isSelected && hasLocalCopy {
				// Leave for the deletion pass: don't evaluate this file at
				// all, so it survives in scratch and gets tombstoned later.
				continue
			}

			localEntry, exists := lookupFile(localFrag, path)
			hashChanged := !exists || localEntry.Hash != remoteEntry.Hash
			execChanged := !exists || (checkExecutableBit() && localEntry.Executable != remoteEntry.Executable)

			if hashChanged || execChanged {
				entry := &manifest.DiffFileEntry{
					Hash:              remoteEntry.Hash,
					Size:              remoteEntry.Size,
					Executable:        remoteEntry.Executable,
					Download:          hashChanged,
					UpdatePermissions: execChanged,
				}
				diffFrag.Files[path] = entry

				if remoteFrag.Archives != nil {
					if arc, ok := remoteFrag.Archives[path]; ok {
						if diffFrag.Archives == nil {
							diffFrag.Archives = map[string]manifest.ArchiveEntry{}
						}
						diffFrag.Archives[path] = arc
					}
				}

				if hashChanged {
					if diffFrag.Hashes == nil {
						diffFrag.Hashes = map[string][]manifest.HashTarget{}
					}
					diffFrag.Hashes[remoteEntry.Hash] = append(diffFrag.Hashes[remoteEntry.Hash], manifest.HashTarget{
						Path:       path,
						Size:       remoteEntry.Size,
						Executable: remoteEntry.Executable,
					})
				}
			}

			if exists {
				delete(localFrag.Files, path)
			}
		}

		applyPackPass(remoteFrag, diffFrag)
	}

	applyDeletionPass(scratch, result)

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debug("diff computed: ", spew.Sdump(result))
	}

	return result
}

func lookupFile(frag *manifest.Fragment, path string) (manifest.FileEntry, bool) {
	if frag == nil {
		return manifest.FileEntry{}, false
	}
	e, ok := frag.Files[path]
	return e, ok
}

// checkExecutableBit reports whether the executable bit participates in
// change detection on this platform (§4.5: "on non-Windows").
func checkExecutableBit() bool {
	return runtime.GOOS != "windows"
}

// applyPackPass is §4.5 step 2: coalesce individually-downloaded files into
// whole-pack fetches once enough of a pack's members are already marked
// for download.
func applyPackPass(remoteFrag *manifest.Fragment, diffFrag *manifest.DiffFragment) {
	for packHash, pack := range remoteFrag.Packs {
		if len(pack.Hashes) == 0 {
			continue
		}

		downloadable := make([]string, 0, len(pack.Hashes))
		for _, h := range pack.Hashes {
			if targets, ok := diffFrag.Hashes[h]; ok && len(targets) > 0 {
				downloadable = append(downloadable, h)
			}
		}

		if float64(len(downloadable))/float64(len(pack.Hashes)) <= PackRatio {
			continue
		}

		packFiles := map[string]manifest.FileEntry{}
		for _, h := range downloadable {
			for _, target := range diffFrag.Hashes[h] {
				delete(diffFrag.Files, target.Path)
				packFiles[target.Path] = manifest.FileEntry{
					Hash:       h,
					Size:       target.Size,
					Executable: target.Executable,
				}
			}
			delete(diffFrag.Hashes, h)
		}

		diffFrag.Files["pack/"+packHash] = &manifest.DiffFileEntry{
			Hash:      packHash,
			Size:      pack.Size,
			Download:  true,
			IsPack:    true,
			PackFiles: packFiles,
		}
	}
}

// applyDeletionPass is §4.5 step 3: anything left over in the scratch copy
// (matched by nothing in step 1) becomes a tombstone in its fragment.
func applyDeletionPass(scratch manifest.Manifest, result manifest.Diff) {
	for fragName, frag := range scratch {
		if frag == nil || len(frag.Files) == 0 {
			continue
		}
		diffFrag, ok := result[fragName]
		if !ok {
			diffFrag = manifest.NewDiffFragment()
			result[fragName] = diffFrag
		}
		for path := range frag.Files {
			if existing, ok := diffFrag.Files[path]; ok && existing.Download {
				continue
			}
			diffFrag.Files[path] = &manifest.DiffFileEntry{Size: 0}
		}
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

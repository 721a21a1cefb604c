package actions

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kestrelgames/cytrus-updater/internal/fetcher"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// FragmentProgress is the payload DownloadFragment's Task reports through
// Progress(): chunkSize/downloadedSize for one fragment's transfer, the
// shape the Sequencer aggregates into its downloadProgress table (§4.7).
type FragmentProgress struct {
	Fragment       string
	ChunkSize      int64
	DownloadedSize int64
}

// DownloadFragment fetches every downloadable entry of one diff fragment:
// plain files via the Fetcher/Dedup, packs via download-then-untar, .d2p
// archives via patchArchive, and chmods permission-only entries - all
// bounded to DownloadFragmentConcurrency concurrent entries (§4.6).
func DownloadFragment(ctx context.Context, uc *Context, fragmentName string) *task.Task {
	group := task.NewGroup()
	return runControllable(group, func(t *task.Task) error {
		frag := uc.Diff[fragmentName]
		if frag == nil {
			return nil
		}

		if uc.DownloadedFiles == nil {
			uc.DownloadedFiles = map[string]manifest.FileEntry{}
		}

		var mu sync.Mutex
		var merr *multierror.Error
		var wg sync.WaitGroup
		var downloaded int64
		record := func(recPath string, fe manifest.FileEntry) {
			mu.Lock()
			uc.DownloadedFiles[recPath] = fe
			mu.Unlock()
		}
		recordArchive := func(recPath string, ae manifest.ArchiveEntry) {
			mu.Lock()
			if uc.DownloadedArchives == nil {
				uc.DownloadedArchives = map[string]manifest.ArchiveEntry{}
			}
			uc.DownloadedArchives[recPath] = ae
			mu.Unlock()
		}
		onProgress := func(p fetcher.Progress) {
			mu.Lock()
			downloaded += p.ChunkSize
			total := downloaded
			mu.Unlock()
			t.Progress(FragmentProgress{Fragment: fragmentName, ChunkSize: p.ChunkSize, DownloadedSize: total})
		}

		for path, entry := range frag.Files {
			if entry == nil {
				continue
			}
			path, entry := path, entry

			wg.Add(1)
			submitErr := uc.Pool.DownloadFragment.Schedule(func() {
				defer wg.Done()
				err := downloadOne(ctx, uc, frag, path, entry, record, recordArchive, onProgress, group)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					merr = multierror.Append(merr, err)
				}
			})
			if submitErr != nil {
				wg.Done()
				mu.Lock()
				merr = multierror.Append(merr, submitErr)
				mu.Unlock()
			}
		}

		wg.Wait()
		return merr.ErrorOrNil()
	})
}

// recorder is called once per successfully-materialized plain file (not
// archives, which record into uc.DownloadedArchives themselves) so the
// caller can merge it into uc.DownloadedFiles under its own lock.
type recorder func(path string, fe manifest.FileEntry)
type archiveRecorder func(path string, ae manifest.ArchiveEntry)
type progressFunc func(fetcher.Progress)

func downloadOne(ctx context.Context, uc *Context, frag *manifest.DiffFragment, path string, entry *manifest.DiffFileEntry, record recorder, recordArchive archiveRecorder, onProgress progressFunc, group *task.Group) error {
	if entry.IsDeletion() {
		return nil // DeleteFiles owns tombstones
	}

	if entry.IsPack {
		return downloadPack(ctx, uc, path, entry, record, onProgress, group)
	}

	if archive, isArchive := frag.Archives[path]; isArchive && entry.Download {
		return patchArchive(ctx, uc, path, entry, archive, recordArchive, onProgress, group)
	}

	target := filepath.Join(uc.Location, path)

	if !entry.Download && entry.UpdatePermissions {
		return chmodTarget(target, entry.Executable)
	}

	if entry.Download {
		if entry.Size == 0 {
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(target, nil, 0o644); err != nil {
				return err
			}
			if err := chmodTarget(target, entry.Executable); err != nil {
				return err
			}
			record(path, manifest.FileEntry{Hash: entry.Hash, Size: entry.Size, Executable: entry.Executable})
			return nil
		}

		if _, err := uc.Dedup.Fetch(ctx, buildFetcherRequest(uc, entry, []string{target}, onProgress), group); err != nil {
			return err
		}
		if err := chmodTarget(target, entry.Executable); err != nil {
			return err
		}
		record(path, manifest.FileEntry{Hash: entry.Hash, Size: entry.Size, Executable: entry.Executable})
		return nil
	}

	return nil
}

func buildFetcherRequest(uc *Context, entry *manifest.DiffFileEntry, targets []string, onProgress progressFunc) fetcher.Request {
	return fetcher.Request{
		GameUID:      uc.GameUID,
		Hash:         entry.Hash,
		ExpectedSize: int64(entry.Size),
		Targets:      targets,
		VerifyHash:   true,
		OnProgress:   onProgress,
	}
}

// downloadPack fetches a pack's tar stream to a temp file, extracts its
// members to their target paths, and chmods each per its declared
// executable bit (§4.6).
func downloadPack(ctx context.Context, uc *Context, packKey string, entry *manifest.DiffFileEntry, record recorder, onProgress progressFunc, group *task.Group) error {
	tmp := filepath.Join(os.TempDir(), "cytrus-pack-"+entry.Hash+".tar")
	defer os.Remove(tmp)

	if _, err := uc.Dedup.Fetch(ctx, buildFetcherRequest(uc, entry, []string{tmp}, onProgress), group); err != nil {
		return err
	}

	f, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	members := entry.PackFiles
	reader := tar.NewReader(f)
	seen := map[string]bool{}

	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		member, known := members[hdr.Name]
		if !known {
			continue // not one of the files this pack pass cared about
		}

		target := filepath.Join(uc.Location, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return err
		}
		out.Close()

		if err := chmodTarget(target, member.Executable); err != nil {
			return err
		}
		seen[hdr.Name] = true
		record(hdr.Name, member)
	}

	if len(seen) == len(members) {
		return nil
	}

	// §8: a missing member aborts the pack and falls back to per-file
	// downloads of the missing hashes.
	var merr *multierror.Error
	for name, member := range members {
		if seen[name] {
			continue
		}
		target := filepath.Join(uc.Location, name)
		fallback := manifest.DiffFileEntry{Hash: member.Hash, Size: member.Size, Executable: member.Executable, Download: true}
		if _, err := uc.Dedup.Fetch(ctx, buildFetcherRequest(uc, &fallback, []string{target}, onProgress), group); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if err := chmodTarget(target, member.Executable); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		record(name, member)
	}
	return merr.ErrorOrNil()
}

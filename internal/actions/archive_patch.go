package actions

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/kestrelgames/cytrus-updater/internal/d2p"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// ArchiveFullThreshold is the fraction of an archive's size above which a
// changed-inner-members patch is abandoned in favor of downloading the
// whole archive, per §4.6 "Archive patching".
const ArchiveFullThreshold = 0.7

// patchArchive applies §4.6's extended archive-patching rule for one
// .d2p-shaped file entry: if the archive is absent locally it is fetched
// whole; otherwise only its changed inner members are fetched and spliced
// into a freshly re-emitted archive, unless that would exceed
// ArchiveFullThreshold of the archive's total size, in which case it also
// falls back to a whole-archive fetch.
func patchArchive(ctx context.Context, uc *Context, path string, entry *manifest.DiffFileEntry, archive manifest.ArchiveEntry, recordArchive archiveRecorder, onProgress progressFunc, group *task.Group) error {
	target := filepath.Join(uc.Location, path)

	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return fetchWholeArchive(ctx, uc, path, entry, archive, recordArchive, onProgress, group)
		}
		return err
	}

	files, meta, err := d2p.Extract(target)
	if err != nil {
		// Anything unreadable about the existing archive (wrong version,
		// corrupt trailer) is an integrity failure - fall back to a clean
		// whole-archive fetch rather than patching from bad data.
		return fetchWholeArchive(ctx, uc, path, entry, archive, recordArchive, onProgress, group)
	}

	changed := map[string]manifest.ArchiveFile{}
	var totalSize, changedSize uint64
	for innerPath, remoteFile := range archive.Files {
		totalSize += remoteFile.Size
		localHash, hasLocal := hashOf(files[innerPath])
		if !hasLocal || localHash != remoteFile.Hash {
			changed[innerPath] = remoteFile
			changedSize += remoteFile.Size
		}
	}

	if totalSize > 0 && float64(changedSize)/float64(totalSize) > ArchiveFullThreshold {
		return fetchWholeArchive(ctx, uc, path, entry, archive, recordArchive, onProgress, group)
	}

	fetched := map[string][]byte{}
	var mu sync.Mutex
	var merr *multierror.Error
	var wg sync.WaitGroup
	for innerPath, remoteFile := range changed {
		innerPath, remoteFile := innerPath, remoteFile
		wg.Add(1)
		submitErr := uc.Pool.ArchiveInner.Schedule(func() {
			defer wg.Done()
			body, fetchErr := fetchBlob(ctx, uc, remoteFile.Hash, int64(remoteFile.Size))
			mu.Lock()
			defer mu.Unlock()
			if fetchErr != nil {
				merr = multierror.Append(merr, fetchErr)
				return
			}
			fetched[innerPath] = body
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			merr = multierror.Append(merr, submitErr)
			mu.Unlock()
		}
	}
	wg.Wait()
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	names := make([]string, 0, len(archive.Files))
	for innerPath := range archive.Files {
		names = append(names, innerPath)
	}
	// Preserve the archive's original member ordering where possible so an
	// unpatched re-emit is byte-identical, per §8's round-trip law.
	ordered := append([]string{}, meta.Files...)
	for _, name := range names {
		if !contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}

	entries := make([]d2p.Entry, 0, len(ordered))
	for _, name := range ordered {
		if _, stillPresent := archive.Files[name]; !stillPresent {
			continue // member removed remotely
		}
		body, isChanged := fetched[name]
		if !isChanged {
			body = files[name]
		}
		entries = append(entries, d2p.Entry{Name: name, Data: body})
	}

	raw, err := d2p.BuildBytes(entries, meta.Properties)
	if err != nil {
		return err
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return err
	}

	recordArchive(path, archive)
	return chmodTarget(target, entry.Executable)
}

func fetchWholeArchive(ctx context.Context, uc *Context, path string, entry *manifest.DiffFileEntry, archive manifest.ArchiveEntry, recordArchive archiveRecorder, onProgress progressFunc, group *task.Group) error {
	target := filepath.Join(uc.Location, path)
	if _, err := uc.Dedup.Fetch(ctx, buildFetcherRequest(uc, entry, []string{target}, onProgress), group); err != nil {
		return err
	}
	recordArchive(path, archive)
	return chmodTarget(target, entry.Executable)
}

func fetchBlob(ctx context.Context, uc *Context, hash string, expectedSize int64) ([]byte, error) {
	body, _, _, err := uc.Repository.GetHash(ctx, uc.GameUID, hash, "")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if expectedSize > 0 && int64(len(data)) != expectedSize {
		return nil, errors.Errorf("actions: archive member %s size mismatch, got %d want %d", hash, len(data), expectedSize)
	}
	sum, _ := hashOf(data)
	if sum != hash {
		return nil, errors.Errorf("actions: archive member hash mismatch, got %s want %s", sum, hash)
	}
	return data, nil
}

func hashOf(data []byte) (string, bool) {
	if data == nil {
		return "", false
	}
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:]), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package actions

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// DeleteFiles unlinks every entry the diff marked as a deletion, skipping
// any path that some other fragment's download set still wants to keep on
// disk, bounded concurrency 10 (§4.6).
func DeleteFiles(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		wanted := downloadedPaths(uc.Diff)

		var toDelete []string
		for _, frag := range uc.Diff {
			if frag == nil {
				continue
			}
			for path, entry := range frag.Files {
				if entry == nil || !entry.IsDeletion() {
					continue
				}
				if wanted[path] {
					continue
				}
				toDelete = append(toDelete, path)
			}
		}

		var mu sync.Mutex
		var merr *multierror.Error
		var wg sync.WaitGroup

		for _, path := range toDelete {
			path := path
			wg.Add(1)
			submitErr := uc.Pool.DeleteFiles.Schedule(func() {
				defer wg.Done()
				target := filepath.Join(uc.Location, path)
				err := os.Remove(target)
				mu.Lock()
				defer mu.Unlock()
				if err != nil && !os.IsNotExist(err) {
					merr = multierror.Append(merr, err)
					return
				}
				uc.DeletedFiles = append(uc.DeletedFiles, path)
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

// downloadedPaths is the union, across every fragment in the diff, of paths
// that fragment still wants present on disk - either downloaded directly or
// left alone with a permissions-only update.
func downloadedPaths(diff manifest.Diff) map[string]bool {
	wanted := map[string]bool{}
	for _, frag := range diff {
		if frag == nil {
			continue
		}
		for path, entry := range frag.Files {
			if entry == nil {
				continue
			}
			if entry.Download || entry.UpdatePermissions {
				wanted[path] = true
			}
		}
	}
	return wanted
}

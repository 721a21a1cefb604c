package actions

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// CreateDirectories ensures every directory needed by one fragment's
// downloadable files exists, bounded concurrency 10 (§4.6, §4.7 "for each
// fragment {CreateDirectories, DownloadFragment}").
func CreateDirectories(_ context.Context, uc *Context, fragmentName string) *task.Task {
	return runSync(func() error {
		dirs := collectDirs(uc, fragmentName)

		var mu sync.Mutex
		var merr *multierror.Error
		var wg sync.WaitGroup

		for dir := range dirs {
			wg.Add(1)
			dir := dir
			submitErr := uc.Pool.CreateDirectories.Schedule(func() {
				defer wg.Done()
				if err := os.MkdirAll(dir, 0o755); err != nil {
					mu.Lock()
					merr = multierror.Append(merr, err)
					mu.Unlock()
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

func collectDirs(uc *Context, fragmentName string) map[string]struct{} {
	dirs := map[string]struct{}{}
	frag := uc.Diff[fragmentName]
	if frag == nil {
		return dirs
	}
	for path, entry := range frag.Files {
		if entry == nil || !entry.Download {
			continue
		}
		dirs[filepath.Dir(filepath.Join(uc.Location, path))] = struct{}{}
	}
	return dirs
}

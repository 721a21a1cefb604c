package actions

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
	"github.com/kestrelgames/cytrus-updater/util"
)

// Repair rehashes every file named by the fragment selection's remote
// manifest that exists on disk, rebuilding ctx.LocalHashes from the tree
// itself rather than trusting .release.hashes.json (§4.6, §3 "on crash
// recovery, a repair can rebuild it by hashing the tree"). Missing files
// are recorded as absent, not as an error - the subsequent diff will
// schedule them for download.
func Repair(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		rebuilt := manifest.Manifest{}
		var mu sync.Mutex
		var merr *multierror.Error
		var wg sync.WaitGroup

		for fragName, frag := range uc.RemoteHashes {
			if !selected(uc.FragmentSelection, fragName) {
				continue
			}
			if frag == nil {
				continue
			}

			rebuilt[fragName] = manifest.NewFragment()

			for path, entry := range frag.Files {
				wg.Add(1)
				path, entry, fragName := path, entry, fragName
				submitErr := uc.Pool.Repair.Schedule(func() {
					defer wg.Done()
					hashed, ok, err := hashLocalFile(uc.Location, path, entry.Executable)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						merr = multierror.Append(merr, err)
						return
					}
					if ok {
						rebuilt[fragName].Files[path] = hashed
					}
				})
				if submitErr != nil {
					wg.Done()
					mu.Lock()
					merr = multierror.Append(merr, submitErr)
					mu.Unlock()
				}
			}
		}

		wg.Wait()
		uc.LocalHashes = rebuilt
		return merr.ErrorOrNil()
	})
}

func selected(selection []string, fragment string) bool {
	if fragment == manifest.ConfigurationFragment {
		return true
	}
	for _, s := range selection {
		if s == fragment {
			return true
		}
	}
	return false
}

func hashLocalFile(location, path string, executable bool) (manifest.FileEntry, bool, error) {
	full := filepath.Join(location, path)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest.FileEntry{}, false, nil
		}
		return manifest.FileEntry{}, false, err
	}

	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return manifest.FileEntry{}, false, statErr
	}

	sum, hashErr := util.GetSha1HashOfStream(f)
	if hashErr != nil {
		return manifest.FileEntry{}, false, hashErr
	}

	return manifest.FileEntry{
		Hash:       sum,
		Size:       uint64(info.Size()),
		Executable: executable && isExecutableOnDisk(info),
	}, true, nil
}

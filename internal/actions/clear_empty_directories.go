package actions

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// ClearEmptyDirectories removes directories left empty by DeleteFiles,
// walking the tree bottom-up so a directory that becomes empty only after
// its last child is removed is itself removed too (§4.6).
func ClearEmptyDirectories(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		var dirs []string
		err := filepath.Walk(uc.Location, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() && path != uc.Location {
				dirs = append(dirs, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		// Reverse walk order so children are evaluated before their parents.
		for i := len(dirs) - 1; i >= 0; i-- {
			removeIfEmpty(dirs[i])
		}
		return nil
	})
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	os.Remove(dir)
}

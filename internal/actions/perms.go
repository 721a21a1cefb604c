package actions

import (
	"os"
	"runtime"
)

// executableMode and nonExecutableMode are the two permission bits written
// on non-Windows hosts per §4.6 "Permissions".
const (
	executableMode    os.FileMode = 0o744
	nonExecutableMode os.FileMode = 0o644
)

func modeFor(executable bool) os.FileMode {
	if executable {
		return executableMode
	}
	return nonExecutableMode
}

func isExecutableOnDisk(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return info.Mode()&0o100 != 0
}

// chmodTarget applies the executable/non-executable mode to path, ignoring
// the call entirely on Windows where the bit doesn't participate (§4.5).
func chmodTarget(path string, executable bool) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	err := os.Chmod(path, modeFor(executable))
	if os.IsNotExist(err) {
		return nil // missing-file errors are skipped, not returned
	}
	return err
}

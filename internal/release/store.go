package release

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// StateFileName is the per-release JSON state record (§6 state directory
// layout).
const StateFileName = "release.json"

// LicensesFileName is the secondary file written alongside release.json
// (§4.9, §6).
const LicensesFileName = "licenses.json"

// licenseExtensions lists the file suffixes scanned for license text under
// a release's licensesFolder. Anything else in that folder is ignored.
var licenseExtensions = []string{".txt", ".md", ""}

func writeJSONAtomic(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling "+filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating directory for "+filepath.Base(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "writing "+filepath.Base(path))
	}
	return os.Rename(tmp, path)
}

func readState(path string, gameNameToUID map[string]string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeState(raw, gameNameToUID)
}

// scanLicenses reads every recognized license file under
// <location>/<licensesFolder>, sorted by filename for deterministic output.
// A missing folder is not an error: a release may simply have no licenses.
func scanLicenses(location, licensesFolder string) ([]LicenseEntry, error) {
	dir := filepath.Join(location, licensesFolder)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading licenses folder")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !hasLicenseExtension(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	licenses := make([]LicenseEntry, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrap(err, "reading license file "+name)
		}
		licenses = append(licenses, LicenseEntry{
			Title: strings.TrimSuffix(name, filepath.Ext(name)),
			Text:  string(raw),
		})
	}
	return licenses, nil
}

func hasLicenseExtension(name string) bool {
	ext := filepath.Ext(name)
	for _, allowed := range licenseExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// stateDirSibling builds the path to another file in the same state
// directory as statePath (release.json's directory).
func stateDirSibling(statePath, name string) string {
	return filepath.Join(filepath.Dir(statePath), name)
}

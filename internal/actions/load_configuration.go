package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/task"
)

// configurationManifest is the structure carried by the configuration
// fragment's own content - the "metadata that defines the other fragments"
// named in §3. It lists every fragment this release offers and which ones
// a fresh install selects by default.
type configurationManifest struct {
	Fragments        []string       `json:"fragments"`
	DefaultFragments []string       `json:"defaultFragments"`
	Validator        string         `json:"validator,omitempty"`
	Results          map[int]string `json:"results,omitempty"`
	LicensesFolder   string         `json:"licensesFolder,omitempty"`
}

// configurationFileName is where the configuration fragment's own manifest
// is written once downloaded.
const configurationFileName = "fragments.json"

// LoadConfiguration parses the downloaded configuration fragment and, if
// the caller hasn't already pinned an explicit fragment selection, seeds
// it from the configuration's default set (§4.6).
func LoadConfiguration(_ context.Context, uc *Context) *task.Task {
	return runSync(func() error {
		path := filepath.Join(uc.Location, manifest.ConfigurationFragment, configurationFileName)
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "reading configuration manifest")
		}

		var cm configurationManifest
		if err := json.Unmarshal(raw, &cm); err != nil {
			return errors.Wrap(err, "decoding configuration manifest")
		}

		if len(uc.FragmentSelection) == 0 {
			uc.FragmentSelection = cm.DefaultFragments
		}
		if cm.Validator != "" {
			uc.ValidatorPath = filepath.Join(uc.Location, manifest.ConfigurationFragment, cm.Validator)
			uc.ValidatorResults = cm.Results
		}
		uc.LicensesFolder = cm.LicensesFolder
		return nil
	})
}

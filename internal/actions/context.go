// Package actions implements the ActionLibrary (§4.6): the individual,
// independently controllable steps an UpdateSequencer composes into an
// install/update/repair run. Each action is a ControllableTask operating
// on a shared Context, mutated in place as named fields settle - the
// "typed update-context record passed by exclusive borrow" of §9, in place
// of the original's dynamic parameter bag.
package actions

import (
	"github.com/kestrelgames/cytrus-updater/internal/cache"
	"github.com/kestrelgames/cytrus-updater/internal/fetcher"
	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/pool"
	"github.com/kestrelgames/cytrus-updater/internal/repository"
)

// Context is the per-release parameter bag actions read from and write
// into. The Sequencer owns it exclusively while a run is in flight.
type Context struct {
	GameUID  string
	Channel  string
	Platform string
	Version  string
	Location string

	Repository    *repository.Client
	Fetcher       *fetcher.Fetcher
	Dedup         *fetcher.Dedup
	Pool          *pool.Registry
	ManifestCache *cache.Cache // optional; nil disables manifest caching

	FragmentSelection []string
	ValidatorPath     string
	ValidatorResults  map[int]string
	LicensesFolder    string

	RemoteHashes  manifest.Manifest
	LocalHashes   manifest.Manifest
	Configuration *manifest.Fragment
	Diff          manifest.Diff

	DownloadedFiles    map[string]manifest.FileEntry
	DownloadedArchives map[string]manifest.ArchiveEntry
	DeletedFiles       []string
}

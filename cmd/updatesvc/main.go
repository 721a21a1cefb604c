// Command updatesvc is the host process entry point: it loads
// configuration, brings up logging and the release registry, recovers
// any release left mid-action by a previous crash, starts the
// UpdateQueue and the boundary status server, and blocks until a signal
// asks it to stop.
package main

import (
	"context"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/common/config"
	"github.com/kestrelgames/cytrus-updater/common/runtime"
	"github.com/kestrelgames/cytrus-updater/common/version"
	"github.com/kestrelgames/cytrus-updater/internal/actions"
	"github.com/kestrelgames/cytrus-updater/internal/boundary"
	"github.com/kestrelgames/cytrus-updater/internal/cache"
	"github.com/kestrelgames/cytrus-updater/internal/fetcher"
	"github.com/kestrelgames/cytrus-updater/internal/metrics"
	"github.com/kestrelgames/cytrus-updater/internal/pool"
	"github.com/kestrelgames/cytrus-updater/internal/queue"
	"github.com/kestrelgames/cytrus-updater/internal/release"
	"github.com/kestrelgames/cytrus-updater/internal/repository"
	"github.com/kestrelgames/cytrus-updater/internal/sequencer"
)

func main() {
	flag.StringVar(&config.Path, "config", config.Path, "path to updater.yaml")
	versionFlag := flag.Bool("version", false, "prints the version and exits")
	flag.Parse()

	if *versionFlag {
		version.Print(false)
		return
	}

	cfg := config.Get()

	registry, err := runtime.RunStartupSequence(cfg)
	if err != nil {
		logrus.Fatal("startup failed: ", err)
	}
	defer registry.Close()
	version.Print(true)

	watcher, err := config.Watch()
	if err != nil {
		logrus.Warn("config: hot-reload disabled, watcher failed to start: ", err)
	} else {
		defer watcher.Close()
	}

	repoClient, err := newRepositoryClient(cfg)
	if err != nil {
		logrus.Fatal("repository: ", err)
	}

	f := fetcher.New(repoClient, 5*time.Minute)

	var redisTier *cache.RedisTier
	if cfg.Redis.Enabled {
		redisTier = cache.NewRedisTier(cfg.Redis.Address)
		defer redisTier.Close()
	}
	manifestCache := newManifestCache(redisTier)

	poolRegistry, err := pool.NewRegistry()
	if err != nil {
		logrus.Fatal("pool: ", err)
	}
	applyConcurrencyConfig(poolRegistry, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dedup, err := fetcher.NewDedup(f, cfg.Concurrency.DownloadFragment, cfg.General.DataRoot+"/.staging")
	if err != nil {
		logrus.Fatal("fetcher: ", err)
	}

	q := queue.New(ctx)
	recoverKnownReleases(registry, q, recoveryDeps{
		cfg:        cfg,
		repository: repoClient,
		fetcher:    f,
		dedup:      dedup,
		pool:       poolRegistry,
		cache:      manifestCache,
	})

	server := boundary.NewServer(cfg.Boundary.BindAddress, cfg.Boundary.Port, q, 5, 10)
	if err := server.Start(); err != nil {
		logrus.Fatal("boundary: ", err)
	}
	defer server.Close()

	if cfg.Metrics.Enabled {
		metrics.Start(cfg.Metrics.BindAddress, cfg.Metrics.Port)
		defer metrics.Stop()
	}

	logrus.Info("cytrus-updater: ready")

	waitForShutdown()
	logrus.Info("cytrus-updater: shutting down")
}

func newRepositoryClient(cfg *config.UpdaterConfig) (*repository.Client, error) {
	u, err := url.Parse(cfg.Repository.BaseURL)
	if err != nil {
		return nil, err
	}
	return repository.New(repository.Options{
		Host:       u.Host,
		Scheme:     u.Scheme,
		PreRelease: cfg.Repository.PreRelease,
	}), nil
}

func applyConcurrencyConfig(r *pool.Registry, cfg *config.UpdaterConfig) {
	tune := func(q *pool.Queue, configured, fallback int) {
		if configured > 0 {
			q.Tune(configured)
		} else {
			q.Tune(fallback)
		}
	}
	tune(r.DownloadFragment, cfg.Concurrency.DownloadFragment, pool.DownloadFragmentConcurrency)
	tune(r.CreateDirectories, cfg.Concurrency.CreateDirectories, pool.CreateDirectoriesConcurrency)
	tune(r.Repair, cfg.Concurrency.Repair, pool.RepairConcurrency)
	tune(r.DeleteFiles, cfg.Concurrency.DeleteFiles, pool.DeleteFilesConcurrency)
	tune(r.ArchiveInner, cfg.Concurrency.ArchiveInner, pool.ArchiveInnerConcurrency)
}

// recoveryDeps bundles what each recovered release's actions.Context
// needs, so recoverKnownReleases doesn't take half a dozen positional
// parameters.
type recoveryDeps struct {
	cfg        *config.UpdaterConfig
	repository *repository.Client
	fetcher    *fetcher.Fetcher
	dedup      *fetcher.Dedup
	pool       *pool.Registry
	cache      *cache.Cache
}

// recoverKnownReleases runs §4.9's crash-recovery dispatch over every
// release the registry already knows about and, for any release whose
// dispatch isn't RecoveryNone, builds a Sequencer and adds it to the
// queue under the matching run type. A RecoveryMoveResume release is
// resumed as an ordinary Update, since no MOVE action body is specified
// (see DESIGN.md's Open Questions entry).
func recoverKnownReleases(registry *release.Registry, q *queue.Queue, deps recoveryDeps) {
	summaries, err := registry.List()
	if err != nil {
		logrus.Error("recovery: failed listing known releases: ", err)
		return
	}
	for _, s := range summaries {
		rel, err := release.LoadOrCreate(s.Path, s.GameUID, s.ReleaseName, nil)
		if err != nil {
			logrus.Error("recovery: failed loading ", s.GameUID, "/", s.ReleaseName, ": ", err)
			continue
		}
		rel.Attach(registry)
		action := rel.Setup()

		log := logrus.WithFields(logrus.Fields{
			"gameUid": s.GameUID,
			"release": s.ReleaseName,
			"action":  action.String(),
		})
		log.Info("recovery: dispatch decided")

		kind, ok := sequencerKindFor(action)
		if !ok {
			continue
		}

		uc := &actions.Context{
			GameUID:    s.GameUID,
			Channel:    s.ReleaseName,
			Platform:   deps.cfg.Repository.Platform,
			Version:    s.Version,
			Location:   s.Location,
			Repository: deps.repository,
			Fetcher:    deps.fetcher,
			Dedup:      deps.dedup,
			Pool:       deps.pool,

			ManifestCache:     deps.cache,
			FragmentSelection: rel.State().InstalledFragments,
		}

		seq := sequencer.New(kind, uc, rel)
		q.Add(&queue.Update{GameUID: s.GameUID, Release: s.ReleaseName, Seq: seq})
	}
}

func sequencerKindFor(action release.RecoveryAction) (sequencer.Type, bool) {
	switch action {
	case release.RecoveryRepair:
		return sequencer.Repair, true
	case release.RecoveryUpdate, release.RecoveryMoveResume:
		return sequencer.Update, true
	default:
		return 0, false
	}
}

// newManifestCache wraps tier2 for cache.New, keeping the interface value
// genuinely nil when Redis is disabled rather than a non-nil interface
// wrapping a nil *RedisTier (which would make the cache.Cache's nil check
// always report "enabled").
func newManifestCache(tier2 *cache.RedisTier) *cache.Cache {
	if tier2 == nil {
		return cache.New(nil)
	}
	return cache.New(tier2)
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

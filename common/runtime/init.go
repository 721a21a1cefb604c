// Package runtime sequences process startup: logging, crash reporting,
// and the release registry, the way the teacher's RunStartupSequence
// brings up the database and datastores before the webserver mounts.
package runtime

import (
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/common/config"
	"github.com/kestrelgames/cytrus-updater/common/logging"
	"github.com/kestrelgames/cytrus-updater/internal/release"
)

// RunStartupSequence configures logging and crash reporting from cfg and
// opens the release registry, returning it for the caller to hand to the
// UpdateQueue and crash-recovery pass.
func RunStartupSequence(cfg *config.UpdaterConfig) (*release.Registry, error) {
	if err := logging.Setup(cfg.Logging.Directory, cfg.Logging.Colors, cfg.Logging.JSON, cfg.Logging.Level); err != nil {
		return nil, err
	}

	if cfg.Sentry.Enabled {
		logrus.Info("Starting crash reporting...")
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.Dsn,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			logrus.Warn("runtime: sentry init failed, continuing without crash reporting: ", err)
		}
	}

	logrus.Info("Opening release registry...")
	reg, err := release.OpenRegistry(cfg.Registry.DatabasePath, cfg.Registry.MigrationsPath)
	if err != nil {
		sentry.CaptureException(err)
		return nil, err
	}

	return reg, nil
}

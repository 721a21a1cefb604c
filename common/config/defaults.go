package config

// NewDefaultConfig returns the configuration a fresh updater.yaml is
// seeded with, the same role the teacher's NewDefaultMainConfig plays for
// media-repo.yaml.
func NewDefaultConfig() *UpdaterConfig {
	return &UpdaterConfig{
		General: GeneralConfig{
			DataRoot:     "data",
			PollInterval: 300,
		},
		Repository: RepositoryConfig{
			BaseURL:    "https://cytrus.cdn.ubi.com",
			Platform:   "win32",
			PreRelease: false,
			UserAgent:  "cytrus-updater",
		},
		Concurrency: ConcurrencyConfig{
			DownloadFragment:  6,
			CreateDirectories: 10,
			Repair:            10,
			DeleteFiles:       10,
			ArchiveInner:      2,
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
		},
		Registry: RegistryConfig{
			DatabasePath:   "data/registry.db",
			MigrationsPath: "internal/release/migrations",
		},
		Sentry: SentryConfig{
			Enabled:     false,
			Dsn:         "not supplied",
			Environment: "",
		},
		Logging: LoggingConfig{
			Directory: "logs",
			Level:     "info",
			JSON:      false,
			Colors:    true,
		},
		Boundary: BoundaryConfig{
			BindAddress: "127.0.0.1",
			Port:        9420,
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        9421,
		},
	}
}

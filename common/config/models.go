package config

// UpdaterConfig is the top-level shape of updater.yaml.
type UpdaterConfig struct {
	General     GeneralConfig     `yaml:"general"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Redis       RedisConfig       `yaml:"redis"`
	Registry    RegistryConfig    `yaml:"registry"`
	Sentry      SentryConfig      `yaml:"sentry"`
	Logging     LoggingConfig     `yaml:"logging"`
	Boundary    BoundaryConfig    `yaml:"boundary"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GeneralConfig covers where the updater keeps its own state.
type GeneralConfig struct {
	DataRoot     string `yaml:"dataRoot"`
	PollInterval int    `yaml:"pollIntervalSeconds"`
}

// RepositoryConfig configures the RepositoryClient (C2).
type RepositoryConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	Platform    string `yaml:"platform"`
	PreRelease  bool   `yaml:"preRelease"`
	UserAgent   string `yaml:"userAgent"`
}

// ConcurrencyConfig mirrors §5's per-operation pool sizes; zero values fall
// back to the §5 defaults in internal/pool.
type ConcurrencyConfig struct {
	DownloadFragment  int `yaml:"downloadFragment"`
	CreateDirectories int `yaml:"createDirectories"`
	Repair            int `yaml:"repair"`
	DeleteFiles       int `yaml:"deleteFiles"`
	ArchiveInner      int `yaml:"archiveInner"`
}

// RedisConfig is the optional tier-2 manifest cache backend.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RegistryConfig is the sqlite-backed release index (internal/release.Registry).
type RegistryConfig struct {
	DatabasePath   string `yaml:"databasePath"`
	MigrationsPath string `yaml:"migrationsPath"`
}

// SentryConfig configures the boundary.CrashReporter implementation.
type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dsn         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// LoggingConfig configures common/logging.Setup.
type LoggingConfig struct {
	Directory string `yaml:"directory"`
	Level     string `yaml:"level"`
	JSON      bool   `yaml:"json"`
	Colors    bool   `yaml:"colors"`
}

// BoundaryConfig configures the localhost status/control surface.
type BoundaryConfig struct {
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

// MetricsConfig configures internal/metrics's Prometheus exposition
// endpoint, kept separate from BoundaryConfig so the operator-facing
// scrape port can sit on a different bind address than the control surface.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

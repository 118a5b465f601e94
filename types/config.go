package types

type ConfigManager interface {
	Load() error
	GetConfig() *Config
}

type Config struct {
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Reporter *ReporterConfig `yaml:"reporter" json:"reporter"`
	Watcher  *WatcherConfig  `yaml:"watcher" json:"watcher"`
}

type CacheConfig struct {
	Type            string `yaml:"type" json:"type" env:"TYPE"`
	DefaultTTL      string `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`
	MaxEntries      int    `yaml:"max_entries" json:"max_entries" env:"MAX_ENTRIES" validate:"omitempty,min=1"`
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

type LoggerConfig struct {
	Level  string      `yaml:"level" json:"level" env:"LOG_LEVEL"`
	Config interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type ReporterConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"REPORTER_ENABLED"`
	Schedule string `yaml:"schedule" json:"schedule" env:"REPORTER_SCHEDULE" validate:"required_if=Enabled true"`
	Timezone string `yaml:"timezone" json:"timezone" env:"REPORTER_TIMEZONE"`
}

type WatcherConfig struct {
	Enabled  bool        `yaml:"enabled" json:"enabled" env:"WATCHER_ENABLED"`
	Interval string      `yaml:"interval" json:"interval" env:"WATCHER_INTERVAL"`
	Rules    []WatchRule `yaml:"rules" json:"rules" validate:"dive"`
}

type WatchRule struct {
	Path string   `yaml:"path" json:"path" validate:"required"`
	Tags []string `yaml:"tags" json:"tags"`
}

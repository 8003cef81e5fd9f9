package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	WPhase  WPhaseConfig  `yaml:"wphase" mapstructure:"wphase"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Profile ProfileConfig `yaml:"profile" mapstructure:"profile"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// WPhaseConfig names the artifacts and output keys.
type WPhaseConfig struct {
	BeachballPrefix           string `yaml:"beachball_prefix" mapstructure:"beachball_prefix"`
	StationDistributionPrefix string `yaml:"station_distribution_prefix" mapstructure:"station_distribution_prefix"`
	PreliminaryFitPrefix      string `yaml:"preliminary_fit_prefix" mapstructure:"preliminary_fit_prefix"`
	RawTracesPrefix           string `yaml:"raw_traces_prefix" mapstructure:"raw_traces_prefix"`
	GridSearchPrefix          string `yaml:"grid_search_prefix" mapstructure:"grid_search_prefix"`
	Authority                 string `yaml:"authority" mapstructure:"authority"`
	WarningsKey               string `yaml:"warnings_key" mapstructure:"warnings_key"`
	ProfileKey                string `yaml:"profile_key" mapstructure:"profile_key"`
}

// OutputConfig configures where and what is written.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	MakeMaps  bool   `yaml:"make_maps" mapstructure:"make_maps"`
	MakePlots bool   `yaml:"make_plots" mapstructure:"make_plots"`
	ImageSize int    `yaml:"image_size" mapstructure:"image_size"`
}

// ProfileConfig toggles CPU profiling of each run.
type ProfileConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// StoreConfig configures the run archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WPHASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("wphase.beachball_prefix", "beachball")
	v.SetDefault("wphase.station_distribution_prefix", "station_distribution")
	v.SetDefault("wphase.preliminary_fit_prefix", "preliminary_fit")
	v.SetDefault("wphase.raw_traces_prefix", "raw_traces")
	v.SetDefault("wphase.grid_search_prefix", "grid_search")
	v.SetDefault("wphase.authority", "GA W-phase")
	v.SetDefault("wphase.warnings_key", "Warnings")
	v.SetDefault("wphase.profile_key", "WPInvProfile")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.make_maps", true)
	v.SetDefault("output.make_plots", true)
	v.SetDefault("output.image_size", 400)
	v.SetDefault("profile.enabled", false)
	v.SetDefault("store.driver", "none")
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var problems []string

	prefixes := []struct{ key, value string }{
		{"wphase.beachball_prefix", c.WPhase.BeachballPrefix},
		{"wphase.station_distribution_prefix", c.WPhase.StationDistributionPrefix},
		{"wphase.preliminary_fit_prefix", c.WPhase.PreliminaryFitPrefix},
		{"wphase.raw_traces_prefix", c.WPhase.RawTracesPrefix},
		{"wphase.grid_search_prefix", c.WPhase.GridSearchPrefix},
	}
	for _, p := range prefixes {
		switch {
		case p.value == "":
			problems = append(problems, p.key+" is required")
		case strings.ContainsAny(p.value, `/\`):
			problems = append(problems, p.key+" must not contain a path separator")
		}
	}
	if c.WPhase.WarningsKey == "" {
		problems = append(problems, "wphase.warnings_key is required")
	}

	switch c.Store.Driver {
	case "none", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be one of none, sqlite, postgres")
	}

	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 64 {
		problems = append(problems, "batch.max_concurrent must be between 1 and 64")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

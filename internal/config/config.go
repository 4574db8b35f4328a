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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	GBIF     GBIFConfig     `yaml:"gbif" mapstructure:"gbif"`
	WFO      WFOConfig      `yaml:"wfo" mapstructure:"wfo"`
	Wikidata WikidataConfig `yaml:"wikidata" mapstructure:"wikidata"`
	Resolve  ResolveConfig  `yaml:"resolve" mapstructure:"resolve"`
	Nativity NativityConfig `yaml:"nativity" mapstructure:"nativity"`
	Throttle ThrottleConfig `yaml:"throttle" mapstructure:"throttle"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GBIFConfig holds GBIF species API settings.
type GBIFConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WFOConfig holds World Flora Online settings.
type WFOConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WikidataConfig holds SPARQL endpoint settings.
type WikidataConfig struct {
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	ClimbDepth int     `yaml:"climb_depth" mapstructure:"climb_depth"`
}

// ResolveConfig configures the name-resolution pass. The thresholds are
// empirically chosen; treat them as tunables, not invariants.
type ResolveConfig struct {
	NameColumn       string   `yaml:"name_column" mapstructure:"name_column"`
	AlternateColumns []string `yaml:"alternate_columns" mapstructure:"alternate_columns"`
	SpeciesThreshold int      `yaml:"species_threshold" mapstructure:"species_threshold"`
	GenusThreshold   int      `yaml:"genus_threshold" mapstructure:"genus_threshold"`
	MaxHops          int      `yaml:"max_hops" mapstructure:"max_hops"`
}

// NativityConfig configures the native-range pass.
type NativityConfig struct {
	TaxonColumn   string `yaml:"taxon_column" mapstructure:"taxon_column"`
	HierarchyPath string `yaml:"hierarchy_path" mapstructure:"hierarchy_path"`
	RetryBlank    bool   `yaml:"retry_blank" mapstructure:"retry_blank"`
}

// ThrottleConfig configures the adaptive delay controller.
type ThrottleConfig struct {
	InitialMS      int     `yaml:"initial_ms" mapstructure:"initial_ms"`
	MaxMS          int     `yaml:"max_ms" mapstructure:"max_ms"`
	UpMultiplier   float64 `yaml:"up_multiplier" mapstructure:"up_multiplier"`
	DownMultiplier float64 `yaml:"down_multiplier" mapstructure:"down_multiplier"`
	SuccessWindow  int     `yaml:"success_window" mapstructure:"success_window"`
}

// ServerConfig configures the lookup API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("FLORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "flora-cache.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("gbif.base_url", "https://api.gbif.org/v1")
	v.SetDefault("gbif.rate_limit", 10.0)
	v.SetDefault("wfo.base_url", "https://www.worldfloraonline.org")
	v.SetDefault("wfo.rate_limit", 1.0)
	v.SetDefault("wikidata.endpoint", "https://query.wikidata.org/sparql")
	v.SetDefault("wikidata.rate_limit", 5.0)
	v.SetDefault("wikidata.climb_depth", 5)
	v.SetDefault("resolve.name_column", "name")
	v.SetDefault("resolve.alternate_columns", []string{"scientific_name", "canonical_name"})
	v.SetDefault("resolve.species_threshold", 90)
	v.SetDefault("resolve.genus_threshold", 75)
	v.SetDefault("resolve.max_hops", 10)
	v.SetDefault("nativity.taxon_column", "accepted_id")
	v.SetDefault("nativity.retry_blank", true)
	v.SetDefault("throttle.initial_ms", 50)
	v.SetDefault("throttle.max_ms", 3000)
	v.SetDefault("throttle.up_multiplier", 1.6)
	v.SetDefault("throttle.down_multiplier", 0.92)
	v.SetDefault("throttle.success_window", 18)

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

// Validate checks the configuration for a given run mode ("resolve",
// "nativity", "serve"). It accumulates all problems into one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "resolve":
		if c.Resolve.NameColumn == "" {
			problems = append(problems, "resolve.name_column is required")
		}
		if c.Resolve.SpeciesThreshold < 0 || c.Resolve.SpeciesThreshold > 100 {
			problems = append(problems, "resolve.species_threshold must be between 0 and 100")
		}
		if c.Resolve.GenusThreshold < 0 || c.Resolve.GenusThreshold > 100 {
			problems = append(problems, "resolve.genus_threshold must be between 0 and 100")
		}
		if c.Resolve.MaxHops < 1 {
			problems = append(problems, "resolve.max_hops must be >= 1")
		}
	case "nativity":
		if c.Nativity.TaxonColumn == "" {
			problems = append(problems, "nativity.taxon_column is required")
		}
		if c.Wikidata.ClimbDepth < 1 {
			problems = append(problems, "wikidata.climb_depth must be >= 1")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "cache":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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

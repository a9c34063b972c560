// Package config loads application configuration from a YAML file and
// PRICEWISE_* environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Optimizer OptimizerConfig `yaml:"optimizer" mapstructure:"optimizer"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	// Driver selects the backend: memory, sqlite, or postgres.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ScrapeConfig configures scrape job execution.
type ScrapeConfig struct {
	Concurrency         int    `yaml:"concurrency" mapstructure:"concurrency"`
	WorkerTimeoutSecs   int    `yaml:"worker_timeout_secs" mapstructure:"worker_timeout_secs"`
	MaxProductsPerStore int    `yaml:"max_products_per_store" mapstructure:"max_products_per_store"`
	StoresFile          string `yaml:"stores_file" mapstructure:"stores_file"`
}

// WorkerTimeout returns the per-store time budget as a duration.
func (c ScrapeConfig) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutSecs) * time.Second
}

// OptimizerConfig configures the price optimization engine.
type OptimizerConfig struct {
	// Rates maps ISO currency codes to fixed multipliers into a common base.
	Rates map[string]float64 `yaml:"rates" mapstructure:"rates"`
	// CategoryElasticity overrides the elasticity baseline per category;
	// unset categories fall back to elasticity_base.
	CategoryElasticity map[string]float64 `yaml:"category_elasticity" mapstructure:"category_elasticity"`
	BaseVolume     float64            `yaml:"base_volume" mapstructure:"base_volume"`
	ElasticityBase float64            `yaml:"elasticity_base" mapstructure:"elasticity_base"`
	MoveFraction   float64            `yaml:"move_fraction" mapstructure:"move_fraction"`
}

// BatchConfig configures batch optimization.
type BatchConfig struct {
	MaxConcurrentProducts int `yaml:"max_concurrent_products" mapstructure:"max_concurrent_products"`
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
	v.SetEnvPrefix("PRICEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricewise.db")
	v.SetDefault("server.port", 8000)
	v.SetDefault("scrape.concurrency", 3)
	v.SetDefault("scrape.worker_timeout_secs", 120)
	v.SetDefault("scrape.max_products_per_store", 15)
	v.SetDefault("scrape.stores_file", "stores.yaml")
	v.SetDefault("optimizer.rates", map[string]float64{
		"USD": 1.0,
		"EUR": 1.08,
		"GBP": 1.27,
	})
	v.SetDefault("optimizer.base_volume", 100.0)
	v.SetDefault("optimizer.elasticity_base", -1.0)
	v.SetDefault("optimizer.move_fraction", 0.75)
	v.SetDefault("batch.max_concurrent_products", 5)
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

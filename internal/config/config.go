// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DiscoveryQuery is one named search-query parameter set the init flow loads.
type DiscoveryQuery struct {
	Name  string
	Query string
}

// Config holds all configuration for the application.
type Config struct {
	LogLevel         string           `mapstructure:"LOG_LEVEL"`
	DBURL            string           `mapstructure:"DB_URL"`
	GithubToken      string           `mapstructure:"GITHUB_TOKEN"`
	APIBaseURL       string           `mapstructure:"API_BASE_URL"`
	MaxRate          int              `mapstructure:"MAX_RATE"`
	TimePeriod       time.Duration    `mapstructure:"TIME_PERIOD"`
	BatchSize        int              `mapstructure:"BATCH_SIZE"`
	PerPage          int              `mapstructure:"PER_PAGE"`
	MaxPages         int              `mapstructure:"MAX_PAGES"`
	HTTPAddr         string           `mapstructure:"HTTP_ADDR"`
	RawQueries       []string         `mapstructure:"DISCOVERY_QUERIES"`
	DiscoveryQueries []DiscoveryQuery `mapstructure:"-"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("API_BASE_URL", "https://api.github.com")
	viper.SetDefault("MAX_RATE", 8)
	viper.SetDefault("TIME_PERIOD", "1s")
	viper.SetDefault("BATCH_SIZE", 500)
	viper.SetDefault("PER_PAGE", 100)
	viper.SetDefault("MAX_PAGES", 3)
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("DISCOVERY_QUERIES", []string{"python-popular=language:Python stars:>10"})

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables. Required fields have no default, so they
	// must be bound explicitly for Unmarshal to see env-only values.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("DB_URL")
	_ = viper.BindEnv("GITHUB_TOKEN")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	queries, err := parseDiscoveryQueries(cfg.RawQueries)
	if err != nil {
		return nil, err
	}
	cfg.DiscoveryQueries = queries

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.MaxRate <= 0 {
		return nil, errors.New("MAX_RATE must be a positive integer")
	}
	if cfg.TimePeriod <= 0 {
		return nil, errors.New("TIME_PERIOD must be a positive duration")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("BATCH_SIZE must be a positive integer")
	}

	return &cfg, nil
}

// parseDiscoveryQueries splits 'name=query' entries into named parameter sets.
func parseDiscoveryQueries(raw []string) ([]DiscoveryQuery, error) {
	if len(raw) == 0 {
		return nil, errors.New("DISCOVERY_QUERIES must contain at least one 'name=query' entry")
	}
	queries := make([]DiscoveryQuery, 0, len(raw))
	for _, entry := range raw {
		name, query, ok := strings.Cut(entry, "=")
		if !ok || name == "" || strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("invalid discovery query %q, expected 'name=query'", entry)
		}
		queries = append(queries, DiscoveryQuery{Name: name, Query: strings.TrimSpace(query)})
	}
	return queries, nil
}

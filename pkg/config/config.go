// Package config loads runtime settings from a YAML file or the environment.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every pricetrack setting. Environment variables override
// values read from the file.
type Config struct {
	DataDir        string `yaml:"data_dir" env:"PRICETRACK_DATA_DIR" env-default:"./data" env-description:"directory holding the price history logs"`
	HTTPAddr       string `yaml:"http_addr" env:"PRICETRACK_HTTP_ADDR" env-default:":8080" env-description:"listen address of the web form"`
	PathPrefix     string `yaml:"path_prefix" env:"PRICETRACK_PATH_PREFIX" env-description:"prefix for page links when served under a subpath"`
	UserAgent      string `yaml:"user_agent" env:"PRICETRACK_USER_AGENT" env-description:"User-Agent sent with product page requests"`
	AcceptLanguage string `yaml:"accept_language" env:"PRICETRACK_ACCEPT_LANGUAGE" env-default:"en-GB,en;q=0.9" env-description:"Accept-Language sent with product page requests"`
	MaxTasks       int    `yaml:"max_tasks" env:"PRICETRACK_MAX_TASKS" env-default:"0" env-description:"maximum number of tracked products, 0 for no limit"`
	LogLevel       string `yaml:"log_level" env:"PRICETRACK_LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	LogJSON        bool   `yaml:"log_json" env:"PRICETRACK_LOG_JSON" env-default:"false" env-description:"log as JSON instead of text"`
}

// Load reads the config file at path, or only the environment when path is empty.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.MaxTasks < 0 {
		return nil, fmt.Errorf("max_tasks must not be negative, got %d", cfg.MaxTasks)
	}
	return &cfg, nil
}

// Usage describes the environment variables understood by Load.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"FINSIFT_DB_MIN_CONNS" default:"2"`
	DBMaxConns  int32  `envconfig:"FINSIFT_DB_MAX_CONNS" default:"10"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY" default:""`
	ClassificationModel string `envconfig:"OPENAI_CLASSIFICATION_MODEL" default:"gpt-4o-mini"`
	ClassifyConcurrency int    `envconfig:"TWEET_CLASSIFICATION_CONCURRENCY" default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("FINSIFT_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("FINSIFT_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("FINSIFT_DB_MIN_CONNS (%d) cannot exceed FINSIFT_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ClassifyConcurrency < 1 {
		return fmt.Errorf("TWEET_CLASSIFICATION_CONCURRENCY must be >= 1")
	}
	if strings.TrimSpace(c.ClassificationModel) == "" {
		return fmt.Errorf("OPENAI_CLASSIFICATION_MODEL must not be empty")
	}
	return nil
}

// LLMConfigured reports whether an OpenAI credential is present. An empty
// key is an operating mode (classification degrades to no-op), not an error.
func (c *Config) LLMConfigured() bool {
	return c != nil && strings.TrimSpace(c.OpenAIAPIKey) != ""
}

package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultListen     = ":8080"
	DefaultSessionTTL = 24 * time.Hour
)

type Config struct {
	Endpoint         string            `yaml:"endpoint"`
	Headers          map[string]string `yaml:"headers"`
	PersistedQueries bool              `yaml:"persistedQueries"`

	Listen     string        `yaml:"listen"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

func Default() *Config {
	return &Config{
		Listen:     DefaultListen,
		SessionTTL: DefaultSessionTTL,
	}
}

// Load reads the YAML file at path over Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(b []byte) (*Config, error) {
	cfg := Default()
	err := yaml.UnmarshalWithOptions(b, cfg, yaml.DisallowUnknownField())
	if err != nil {
		return nil, err
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("sessionTTL must be positive: %s", cfg.SessionTTL)
	}
	return cfg, nil
}

func (cfg *Config) HTTPHeader() http.Header {
	h := make(http.Header, len(cfg.Headers))
	for key, value := range cfg.Headers {
		h.Set(key, value)
	}
	return h
}

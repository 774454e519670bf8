package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is loaded once at startup and never mutated afterwards. Backend
// settings are threaded into the client constructor instead of living in a
// mutable global.
type AppConfig struct {
	Platform   string `yaml:"platform"`
	GatewayURL string `yaml:"gateway_url"`

	BackendURL           string        `yaml:"backend_url"`
	UserdataBackendURL   string        `yaml:"userdata_backend_url"`
	Proxy                string        `yaml:"proxy"`
	BackendProxy         bool          `yaml:"backend_proxy"`
	UserdataBackendProxy bool          `yaml:"userdata_backend_proxy"`
	Timeout              time.Duration `yaml:"timeout"`

	UseEasyBG bool `yaml:"use_easy_bg"`
	Compress  bool `yaml:"compress"`

	Reply   bool `yaml:"reply"`
	At      bool `yaml:"at"`
	NoSpace bool `yaml:"no_space"`

	BandoriStationToken string `yaml:"bandori_station_token"`

	RedisURL    string        `yaml:"redis_url"`
	DatabaseURL string        `yaml:"database_url"`
	VerifyTTL   time.Duration `yaml:"verify_ttl"`

	MessagesDir string `yaml:"messages_dir"`

	// Extra alias sets per command, keyed by the command's primary name.
	CommandAliases map[string][]string `yaml:"command_aliases"`
}

// Load reads the YAML file named by TSUGU_CONFIG (if set) and then applies
// environment overrides for deployment-specific values.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Platform:           "red",
		BackendURL:         "http://tsugubot.com:8080",
		UserdataBackendURL: "http://tsugubot.com:8080",
		Timeout:            10 * time.Second,
		VerifyTTL:          10 * time.Minute,
	}

	if path := strings.TrimSpace(os.Getenv("TSUGU_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvString(&cfg.Platform, "TSUGU_PLATFORM")
	applyEnvString(&cfg.GatewayURL, "TSUGU_GATEWAY_URL")
	applyEnvString(&cfg.BackendURL, "TSUGU_BACKEND_URL")
	applyEnvString(&cfg.UserdataBackendURL, "TSUGU_DATA_BACKEND_URL")
	applyEnvString(&cfg.Proxy, "TSUGU_PROXY")
	applyEnvString(&cfg.BandoriStationToken, "TSUGU_BANDORI_STATION_TOKEN")
	applyEnvString(&cfg.RedisURL, "REDIS_URL")
	applyEnvString(&cfg.DatabaseURL, "DATABASE_URL")

	applyEnvBool(&cfg.Reply, "TSUGU_REPLY")
	applyEnvBool(&cfg.At, "TSUGU_AT")
	applyEnvBool(&cfg.NoSpace, "TSUGU_NO_SPACE")
	applyEnvBool(&cfg.UseEasyBG, "TSUGU_USE_EASY_BG")
	applyEnvBool(&cfg.Compress, "TSUGU_COMPRESS")
	applyEnvBool(&cfg.BackendProxy, "TSUGU_BACKEND_PROXY")
	applyEnvBool(&cfg.UserdataBackendProxy, "TSUGU_DATA_BACKEND_PROXY")

	if v := strings.TrimSpace(os.Getenv("TSUGU_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse TSUGU_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv("TSUGU_VERIFY_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse TSUGU_VERIFY_TTL: %w", err)
		}
		cfg.VerifyTTL = d
	}

	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway_url is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("redis_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 10 * time.Minute
	}

	return cfg, nil
}

func applyEnvString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyEnvBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

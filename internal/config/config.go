// Package config reads and writes the global ~/.tabchat/config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Every field has a working default so
// a missing or empty file still yields a runnable daemon.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	HTTP       HTTP       `toml:"http"`
	Redis      Redis      `toml:"redis"`
	Auth       Auth       `toml:"auth"`
	Media      Media      `toml:"media"`
	Classifier Classifier `toml:"classifier"`
	Topic      Topic      `toml:"topic"`
}

// HTTP configures the local API server.
type HTTP struct {
	ListenAddr string `toml:"listen_addr"`
}

// Redis configures the live presence store. An empty Addr selects the
// in-memory store.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Auth configures the OTP gateway client.
type Auth struct {
	BaseURL string `toml:"base_url"`
}

// Media configures the upload service client.
type Media struct {
	BaseURL string `toml:"base_url"`
}

// Classifier configures the topic naming model. An empty BaseURL disables
// the model; detection then uses the keyword extractor only.
type Classifier struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// Topic configures topic detection thresholds.
type Topic struct {
	MinMessages    int    `toml:"min_messages"`
	MaxMessages    int    `toml:"max_messages"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	StopwordsPath  string `toml:"stopwords_path"`
}

// Timeout returns the classifier timeout as a duration.
func (t Topic) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTP{ListenAddr: "127.0.0.1:8077"},
		Classifier: Classifier{
			Model: "gpt-4o-mini",
		},
		Topic: Topic{
			MinMessages:    5,
			MaxMessages:    15,
			TimeoutSeconds: 10,
		},
	}
}

// Load reads config from the given path, layered over Default. A missing
// file is an error; callers that tolerate it fall back to Default
// themselves.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables that rarely change between invocations.
// Flags override config file values, which override the defaults.
type Config struct {
	DBFile           string `yaml:"dbFile"`
	UserAgent        string `yaml:"userAgent"`
	MaxHops          int    `yaml:"maxHops"`
	ConnectTimeoutMS int    `yaml:"connectTimeoutMs"`
	ReadTimeoutMS    int    `yaml:"readTimeoutMs"`
	HeuristicTTLMS   int    `yaml:"heuristicTtlMs"`
	SearchResults    int    `yaml:"searchResults"`
}

func defaultConfig() Config {
	return Config{
		DBFile:           "go2web.db",
		UserAgent:        "go2web/1.0",
		MaxHops:          10,
		ConnectTimeoutMS: 10_000,
		ReadTimeoutMS:    30_000,
		HeuristicTTLMS:   300_000,
		SearchResults:    10,
	}
}

func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

func (c Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// heuristicTTL is the freshness window applied to responses without
// explicit expiration information.
func (c Config) heuristicTTL() time.Duration {
	return time.Duration(c.HeuristicTTLMS) * time.Millisecond
}

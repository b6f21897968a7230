package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// Gate behavior
	Mode         string `koanf:"mode"`
	BlockMessage string `koanf:"block_message"`

	// Steam requirement
	SteamRequired bool   `koanf:"steam_required"`
	SteamMessage  string `koanf:"steam_message"`

	// Static rule lists
	StaticIPs      []string `koanf:"static_ips"`
	StaticLicenses []string `koanf:"static_licenses"`
	StaticSteamIDs []int64  `koanf:"static_steam_ids"`

	// Persistence
	PersistenceEnabled bool          `koanf:"persistence_enabled"`
	DatabaseDSN        string        `koanf:"database_dsn"`
	DataDir            string        `koanf:"data_dir"`
	ReloadInterval     time.Duration `koanf:"reload_interval"`

	// Mutation worker pool
	PoolWorkers    int           `koanf:"pool_workers"`
	PoolQueueDepth int           `koanf:"pool_queue_depth"`
	PoolMaxRetries int           `koanf:"pool_max_retries"`
	PoolRetryBase  time.Duration `koanf:"pool_retry_base"`

	// Operational
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsAddr    string `koanf:"metrics_addr"`
	APIAddr        string `koanf:"api_addr"`
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"mode":                "blacklist",
		"block_message":       "You have been blacklisted",
		"steam_required":      false,
		"steam_message":       "You must be running Steam to play on this server",
		"persistence_enabled": true,
		"database_dsn":        "/data/sessiongate.db",
		"data_dir":            "/data",
		"reload_interval":     "30m",
		"pool_workers":        2,
		"pool_queue_depth":    1024,
		"pool_max_retries":    3,
		"pool_retry_base":     "1s",
		"log_level":           "info",
		"log_format":          "json",
		"metrics_enabled":     true,
		"metrics_addr":        ":9090",
		"api_addr":            ":8080",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or
// double quotes from s. This normalises values set via Docker --env-file,
// which does not strip shell quoting.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// sanitise removes a single layer of matching surrounding quotes from all
// string fields and string slice elements.
func (c *Config) sanitise() {
	c.Mode = stripEnvQuotes(c.Mode)
	c.BlockMessage = stripEnvQuotes(c.BlockMessage)
	c.SteamMessage = stripEnvQuotes(c.SteamMessage)
	c.DatabaseDSN = stripEnvQuotes(c.DatabaseDSN)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.APIAddr = stripEnvQuotes(c.APIAddr)

	for i, s := range c.StaticIPs {
		c.StaticIPs[i] = stripEnvQuotes(s)
	}
	for i, s := range c.StaticLicenses {
		c.StaticLicenses[i] = stripEnvQuotes(s)
	}
}

// Load reads configuration from environment variables, applying _FILE
// secret injection for the database DSN.
func Load() (*Config, error) {
	// Use "." as delimiter so env vars with "_" in their names are treated
	// as flat keys, not nested paths.
	k := koanf.New(".")

	defs := defaults()
	if err := k.Load(&rawProvider{data: defs}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Post-process comma-separated list fields that koanf won't split
	cfg.StaticIPs = splitCSV(k.String("static_ips"))
	cfg.StaticLicenses = splitCSV(k.String("static_licenses"))
	ids, err := splitCSVInt64(k.String("static_steam_ids"))
	if err != nil {
		return nil, fmt.Errorf("STATIC_STEAM_IDS: %w", err)
	}
	cfg.StaticSteamIDs = ids

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.Mode != "whitelist" && c.Mode != "blacklist" {
		return fmt.Errorf("MODE must be whitelist or blacklist; got %q", c.Mode)
	}

	if c.BlockMessage == "" {
		return fmt.Errorf("BLOCK_MESSAGE must not be empty")
	}

	if c.PersistenceEnabled && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when persistence is enabled")
	}

	if c.ReloadInterval <= 0 {
		return fmt.Errorf("RELOAD_INTERVAL must be > 0; got %s", c.ReloadInterval)
	}

	for _, ip := range c.StaticIPs {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return fmt.Errorf("STATIC_IPS: invalid IPv4 address %q", ip)
		}
	}

	for _, lic := range c.StaticLicenses {
		if len(lic) != 40 {
			return fmt.Errorf("STATIC_LICENSES: license must be exactly 40 characters; got %q", lic)
		}
	}

	if c.PoolWorkers < 1 || c.PoolWorkers > 64 {
		return fmt.Errorf("POOL_WORKERS must be 1–64; got %d", c.PoolWorkers)
	}

	if c.PoolQueueDepth < 1 {
		return fmt.Errorf("POOL_QUEUE_DEPTH must be >= 1; got %d", c.PoolQueueDepth)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
var fileSecretKeys = []string{
	"database_dsn",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func splitCSVInt64(s string) ([]int64, error) {
	parts := splitCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = stripEnvQuotes(p)
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric ID %q", p)
		}
		result = append(result, id)
	}
	return result, nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "blacklist" {
		t.Errorf("Mode = %q, want blacklist", cfg.Mode)
	}
	if cfg.BlockMessage != "You have been blacklisted" {
		t.Errorf("BlockMessage = %q", cfg.BlockMessage)
	}
	if !cfg.PersistenceEnabled {
		t.Error("PersistenceEnabled should default to true")
	}
	if cfg.ReloadInterval != 30*time.Minute {
		t.Errorf("ReloadInterval = %s, want 30m", cfg.ReloadInterval)
	}
	if cfg.PoolWorkers != 2 {
		t.Errorf("PoolWorkers = %d, want 2", cfg.PoolWorkers)
	}
	if cfg.APIAddr != ":8080" {
		t.Errorf("APIAddr = %q, want :8080", cfg.APIAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "whitelist")
	t.Setenv("STEAM_REQUIRED", "true")
	t.Setenv("RELOAD_INTERVAL", "5m")
	t.Setenv("STATIC_IPS", "1.2.3.4, 5.6.7.8")
	t.Setenv("STATIC_STEAM_IDS", "76561198000000001,76561198000000002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "whitelist" {
		t.Errorf("Mode = %q, want whitelist", cfg.Mode)
	}
	if !cfg.SteamRequired {
		t.Error("SteamRequired not picked up from env")
	}
	if cfg.ReloadInterval != 5*time.Minute {
		t.Errorf("ReloadInterval = %s, want 5m", cfg.ReloadInterval)
	}
	if !reflect.DeepEqual(cfg.StaticIPs, []string{"1.2.3.4", "5.6.7.8"}) {
		t.Errorf("StaticIPs = %v", cfg.StaticIPs)
	}
	if !reflect.DeepEqual(cfg.StaticSteamIDs, []int64{76561198000000001, 76561198000000002}) {
		t.Errorf("StaticSteamIDs = %v", cfg.StaticSteamIDs)
	}
}

func TestLoadStripsEnvQuotes(t *testing.T) {
	t.Setenv("BLOCK_MESSAGE", `"No entry"`)
	t.Setenv("STATIC_IPS", `'1.2.3.4'`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BlockMessage != "No entry" {
		t.Errorf("BlockMessage = %q, quotes not stripped", cfg.BlockMessage)
	}
	if len(cfg.StaticIPs) != 1 || cfg.StaticIPs[0] != "1.2.3.4" {
		t.Errorf("StaticIPs = %v, quotes not stripped", cfg.StaticIPs)
	}
}

func TestLoadFileSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsn")
	if err := os.WriteFile(path, []byte("/var/lib/gate/rules.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_DSN_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDSN != "/var/lib/gate/rules.db" {
		t.Errorf("DatabaseDSN = %q, want file contents", cfg.DatabaseDSN)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad mode":        {"MODE", "greylist"},
		"bad static ip":   {"STATIC_IPS", "not-an-ip"},
		"ipv6 static ip":  {"STATIC_IPS", "::1"},
		"short license":   {"STATIC_LICENSES", "abc123"},
		"bad steam id":    {"STATIC_STEAM_IDS", "notanumber"},
		"bad log level":   {"LOG_LEVEL", "verbose"},
		"bad log format":  {"LOG_FORMAT", "yaml"},
		"zero interval":   {"RELOAD_INTERVAL", "0s"},
		"too many worker": {"POOL_WORKERS", "100"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s should fail validation", kv[0], kv[1])
			}
		})
	}
}

func TestValidateRequiresDSNWhenPersistent(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	if _, err := Load(); err == nil {
		t.Error("empty DSN with persistence enabled should fail")
	}

	t.Setenv("PERSISTENCE_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Errorf("empty DSN with persistence disabled should load: %v", err)
	}
}

func TestStripEnvQuotes(t *testing.T) {
	cases := map[string]string{
		`"quoted"`: "quoted",
		`'single'`: "single",
		`plain`:    "plain",
		`"half`:    `"half`,
		`x`:        "x",
		``:         "",
	}
	for in, want := range cases {
		if got := stripEnvQuotes(in); got != want {
			t.Errorf("stripEnvQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,, c ")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("splitCSV = %v", got)
	}
	if splitCSV("") != nil {
		t.Error("splitCSV of empty string should be nil")
	}
}

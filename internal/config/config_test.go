package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  tickers_csv: ref/tickers.csv
  dir: /tmp/barbench
compression:
  algorithm: snappy
query:
  ticker: TSLA
  start: 2023-11-17T00:00:00Z
  end: 2023-11-21T23:59:59Z
  top_n: 2
bench:
  iterations: 10
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Data.TickersCSV != "ref/tickers.csv" {
		t.Errorf("tickers_csv = %s", cfg.Data.TickersCSV)
	}
	// Unset fields keep their defaults.
	if cfg.Data.PricesCSV != "market_data_multi.csv" {
		t.Errorf("prices_csv default lost: %s", cfg.Data.PricesCSV)
	}
	if cfg.Compression.Algorithm != "snappy" {
		t.Errorf("algorithm = %s", cfg.Compression.Algorithm)
	}
	if cfg.Query.Ticker != "TSLA" || cfg.Query.TopN != 2 {
		t.Errorf("query = %+v", cfg.Query)
	}
	if cfg.Query.Window != 5 {
		t.Errorf("window default lost: %d", cfg.Query.Window)
	}
	wantStart := time.Date(2023, 11, 17, 0, 0, 0, 0, time.UTC)
	if !cfg.Query.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", cfg.Query.Start, wantStart)
	}
	if cfg.Bench.Iterations != 10 {
		t.Errorf("iterations = %d", cfg.Bench.Iterations)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad compression", "compression:\n  algorithm: brotli\n"},
		{"zstd level out of range", "compression:\n  algorithm: zstd\n  level: 30\n"},
		{"non-positive top_n", "query:\n  top_n: 0\n"},
		{"non-positive window", "query:\n  window: -1\n"},
		{"inverted range", "query:\n  start: 2023-11-21T00:00:00Z\n  end: 2023-11-17T00:00:00Z\n"},
		{"non-positive iterations", "bench:\n  iterations: 0\n"},
		{"sketch accuracy out of range", "bench:\n  sketch_accuracy: 1.5\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should preserve fs.ErrNotExist: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.Dir = "/srv/bars"

	if got := cfg.SQLitePath(); got != "/srv/bars/market_data.db" {
		t.Errorf("SQLitePath = %s", got)
	}
	if got := cfg.ParquetDir(); got != "/srv/bars/market_data" {
		t.Errorf("ParquetDir = %s", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.Dir = filepath.Join(t.TempDir(), "nested", "data")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	info, err := os.Stat(cfg.Data.Dir)
	if err != nil || !info.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}
}

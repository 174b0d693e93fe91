package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete barbench configuration.
type Config struct {
	// Data configures input files and backend storage locations.
	Data DataConfig `yaml:"data"`

	// Compression configures Parquet compression for the columnar backend.
	Compression CompressionConfig `yaml:"compression"`

	// Query holds the default parameters for the query battery.
	Query QueryConfig `yaml:"query"`

	// Bench configures the benchmark harness.
	Bench BenchConfig `yaml:"bench"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig configures input files and backend storage locations.
type DataConfig struct {
	// TickersCSV is the ticker reference data file.
	TickersCSV string `yaml:"tickers_csv"`

	// PricesCSV is the per-minute OHLCV bar file.
	PricesCSV string `yaml:"prices_csv"`

	// Dir is the root directory for both backends' persisted state.
	// The relational store lives at {Dir}/market_data.db, the columnar
	// store under {Dir}/market_data/.
	Dir string `yaml:"dir"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// QueryConfig holds the default parameters for the query battery.
type QueryConfig struct {
	// Ticker is the symbol used for single-ticker queries.
	Ticker string `yaml:"ticker"`

	// Start and End bound the range and return queries (inclusive).
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`

	// TopN is the number of tickers returned by the top-returns ranking.
	TopN int `yaml:"top_n"`

	// Window is the rolling window size in bars.
	Window int `yaml:"window"`

	// DailyLimit caps the daily first/last summary row count. Zero means
	// no cap.
	DailyLimit int `yaml:"daily_limit"`
}

// BenchConfig configures the benchmark harness.
type BenchConfig struct {
	// Iterations is the number of timed runs per case per backend.
	Iterations int `yaml:"iterations"`

	// ReportPath is where the JSON comparison report is written.
	// Empty disables the file report.
	ReportPath string `yaml:"report_path"`

	// SketchAccuracy is the DDSketch relative accuracy for latency
	// percentiles (0.01 = 1% error).
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			TickersCSV: "tickers.csv",
			PricesCSV:  "market_data_multi.csv",
			Dir:        "data",
		},
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
		},
		Query: QueryConfig{
			Ticker: "AAPL",
			Start:  time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2025, 11, 22, 0, 0, 0, 0, time.UTC),
			TopN:   3,
			Window: 5,
		},
		Bench: BenchConfig{
			Iterations:     5,
			ReportPath:     "benchmark_report.json",
			SketchAccuracy: 0.01,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}

	switch c.Compression.Algorithm {
	case "", "none", "snappy", "zstd", "lz4", "gzip":
	default:
		return fmt.Errorf("unknown compression algorithm: %s", c.Compression.Algorithm)
	}
	if c.Compression.Algorithm == "zstd" && (c.Compression.Level < 0 || c.Compression.Level > 22) {
		return fmt.Errorf("zstd level must be in [0,22], got %d", c.Compression.Level)
	}

	if c.Query.TopN <= 0 {
		return fmt.Errorf("query.top_n must be positive, got %d", c.Query.TopN)
	}
	if c.Query.Window <= 0 {
		return fmt.Errorf("query.window must be positive, got %d", c.Query.Window)
	}
	if !c.Query.End.IsZero() && c.Query.End.Before(c.Query.Start) {
		return fmt.Errorf("query.end before query.start")
	}

	if c.Bench.Iterations <= 0 {
		return fmt.Errorf("bench.iterations must be positive, got %d", c.Bench.Iterations)
	}
	if c.Bench.SketchAccuracy <= 0 || c.Bench.SketchAccuracy >= 1 {
		return fmt.Errorf("bench.sketch_accuracy must be in (0,1), got %f", c.Bench.SketchAccuracy)
	}

	return nil
}

// SQLitePath returns the relational store's database file path.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Data.Dir, "market_data.db")
}

// ParquetDir returns the columnar store's partition root directory.
func (c *Config) ParquetDir() string {
	return filepath.Join(c.Data.Dir, "market_data")
}

// EnsureDirectories creates the data directory tree if missing.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Data.Dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Archive backends.
const (
	ArchiveModeHTTP   = "http"
	ArchiveModeMemory = "memory"
)

// Config captures the settings required to boot the change-detection service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Display  DisplayConfig  `yaml:"display"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig controls gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ArchiveConfig configures access to the remote imagery archive.
type ArchiveConfig struct {
	// Mode selects the archive backend: "http" or "memory" (synthetic scenes).
	Mode          string        `yaml:"mode"`
	BaseURL       string        `yaml:"baseURL"`
	TokenPath     string        `yaml:"tokenPath"`
	CompositePath string        `yaml:"compositePath"`
	ExportPath    string        `yaml:"exportPath"`
	KeyID         string        `yaml:"keyID"`
	KeySecret     string        `yaml:"keySecret"`
	Collection    string        `yaml:"collection"`
	Timeout       time.Duration `yaml:"timeout"`
}

// AnalysisConfig holds the change-detection policy.
type AnalysisConfig struct {
	NIRBand             string        `yaml:"nirBand"`
	RedBand             string        `yaml:"redBand"`
	Threshold           float64       `yaml:"threshold"`
	MinYear             int           `yaml:"minYear"`
	MaxYear             int           `yaml:"maxYear"`
	RequireOrderedYears bool          `yaml:"requireOrderedYears"`
	RunTimeout          time.Duration `yaml:"runTimeout"`
	CloudQABand         string        `yaml:"cloudQABand"`
	CloudBit            uint          `yaml:"cloudBit"`
}

// DisplayConfig controls the layer styles handed to the map renderer.
type DisplayConfig struct {
	VisualBands   []string `yaml:"visualBands"`
	Min           float64  `yaml:"min"`
	Max           float64  `yaml:"max"`
	ChangePalette []string `yaml:"changePalette"`
	Zoom          int      `yaml:"zoom"`
}

// ExportConfig controls export jobs submitted to the archive.
type ExportConfig struct {
	Description string  `yaml:"description"`
	Scale       float64 `yaml:"scale"`
	Destination string  `yaml:"destination"`
	FilePrefix  string  `yaml:"filePrefix"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TracingConfig governs OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Load initialises Config from defaults, an optional YAML file, an optional
// .env file and environment overrides, in that order.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("LANDCHANGE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			HTTPAddress:     ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Archive: ArchiveConfig{
			Mode:          ArchiveModeHTTP,
			TokenPath:     "/v1/auth/token",
			CompositePath: "/v1/composites",
			ExportPath:    "/v1/exports",
			Collection:    "LANDSAT/LC08/C01/T1_SR",
			Timeout:       60 * time.Second,
		},
		Analysis: AnalysisConfig{
			NIRBand:     "B5",
			RedBand:     "B4",
			Threshold:   0.2,
			MinYear:     1984,
			RunTimeout:  3 * time.Minute,
			CloudQABand: "pixel_qa",
			CloudBit:    5,
		},
		Display: DisplayConfig{
			VisualBands:   []string{"B4", "B3", "B2"},
			Min:           0,
			Max:           3000,
			ChangePalette: []string{"red"},
			Zoom:          8,
		},
		Export: ExportConfig{
			Description: "change_detection",
			Scale:       30,
			Destination: "drive",
			FilePrefix:  "change_detection",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Tracing: TracingConfig{
			ServiceName: "landchange",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	if math.IsNaN(c.Analysis.Threshold) || c.Analysis.Threshold < -2 || c.Analysis.Threshold > 2 {
		return fmt.Errorf("analysis.threshold must be a number within [-2, 2]")
	}
	if c.Analysis.NIRBand == "" || c.Analysis.RedBand == "" {
		return fmt.Errorf("analysis.nirBand and analysis.redBand are required")
	}
	if c.Analysis.MaxYear != 0 && c.Analysis.MinYear > c.Analysis.MaxYear {
		return fmt.Errorf("analysis.minYear %d exceeds analysis.maxYear %d", c.Analysis.MinYear, c.Analysis.MaxYear)
	}
	switch c.Archive.Mode {
	case ArchiveModeHTTP, ArchiveModeMemory:
	default:
		return fmt.Errorf("archive.mode must be %q or %q", ArchiveModeHTTP, ArchiveModeMemory)
	}
	if c.Export.Scale <= 0 {
		return fmt.Errorf("export.scale must be positive")
	}
	if c.Display.Max <= c.Display.Min {
		return fmt.Errorf("display.max must exceed display.min")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sampleRatio must be within [0,1]")
	}
	return nil
}

// YearRange resolves the supported year range; a zero MaxYear means the
// current UTC year.
func (a AnalysisConfig) YearRange(now time.Time) (int, int) {
	max := a.MaxYear
	if max == 0 {
		max = now.UTC().Year()
	}
	return a.MinYear, max
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LANDCHANGE_GRPC_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("LANDCHANGE_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("LANDCHANGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_MODE"); v != "" {
		cfg.Archive.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_URL"); v != "" {
		cfg.Archive.BaseURL = v
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_KEY_ID"); v != "" {
		cfg.Archive.KeyID = v
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_KEY_SECRET"); v != "" {
		cfg.Archive.KeySecret = v
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_COLLECTION"); v != "" {
		cfg.Archive.Collection = v
	}
	if v := os.Getenv("LANDCHANGE_ARCHIVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.Timeout = d
		}
	}
	if v := os.Getenv("LANDCHANGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.Threshold = f
		}
	}
	if v := os.Getenv("LANDCHANGE_MIN_YEAR"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MinYear = y
		}
	}
	if v := os.Getenv("LANDCHANGE_MAX_YEAR"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxYear = y
		}
	}
	if v := os.Getenv("LANDCHANGE_REQUIRE_ORDERED_YEARS"); v != "" {
		cfg.Analysis.RequireOrderedYears = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LANDCHANGE_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.RunTimeout = d
		}
	}
	if v := os.Getenv("LANDCHANGE_EXPORT_DESTINATION"); v != "" {
		cfg.Export.Destination = v
	}
	if v := os.Getenv("LANDCHANGE_EXPORT_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Export.Scale = f
		}
	}
	if v := os.Getenv("LANDCHANGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LANDCHANGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("LANDCHANGE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LANDCHANGE_TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("LANDCHANGE_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("LANDCHANGE_TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRatio = f
		}
	}
}

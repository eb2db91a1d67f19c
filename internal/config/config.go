package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imgdex/imgdex/internal/registry"
)

// Config holds the imgdex service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Resources ResourcesConfig `yaml:"resources"`
	Schema    SchemaConfig    `yaml:"schema"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds row store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ResourcesConfig names the preloaded hash reference data.
type ResourcesConfig struct {
	Dir        string   `yaml:"dir"`
	PivotCodes []string `yaml:"pivot_codes"`
}

// SchemaConfig holds the indexed feature set and field storage overrides.
type SchemaConfig struct {
	SegmentSize  int           `yaml:"segment_size"`
	FeatureCodes []string      `yaml:"feature_codes"`
	Fields       []FieldConfig `yaml:"fields"`
}

// FieldConfig overrides storage settings for one histogram field.
type FieldConfig struct {
	Name        string `yaml:"name"`
	MultiValued bool   `yaml:"multi_valued"`
	Indexed     bool   `yaml:"indexed"`
	Stored      bool   `yaml:"stored"`
	DocValues   *bool  `yaml:"doc_values"` // nil means true
}

// ScoringConfig holds scoring request defaults.
type ScoringConfig struct {
	DefaultAggregation string  `yaml:"default_aggregation"`
	DefaultFallback    float64 `yaml:"default_fallback"`
	DefaultLimit       int     `yaml:"default_limit"`
	MaxLimit           int     `yaml:"max_limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Resources.Dir == "" {
		c.Resources.Dir = "resources"
	}
	if c.Schema.SegmentSize <= 0 {
		c.Schema.SegmentSize = 4096
	}
	if len(c.Schema.FeatureCodes) == 0 {
		c.Schema.FeatureCodes = registry.DefaultFeatureCodes()
	}
	if c.Scoring.DefaultAggregation == "" {
		c.Scoring.DefaultAggregation = "avg"
	}
	if c.Scoring.DefaultLimit <= 0 {
		c.Scoring.DefaultLimit = 20
	}
	if c.Scoring.MaxLimit <= 0 {
		c.Scoring.MaxLimit = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch strings.ToLower(c.Scoring.DefaultAggregation) {
	case "avg", "min", "max":
		// ok
	default:
		return fmt.Errorf(
			"scoring.default_aggregation must be avg, min or max, got %q",
			c.Scoring.DefaultAggregation,
		)
	}
	for _, code := range c.Resources.PivotCodes {
		if len(code) != 2 {
			return fmt.Errorf("resources.pivot_codes entry %q must be a two-letter code", code)
		}
	}
	for _, code := range c.Schema.FeatureCodes {
		if len(code) != 2 {
			return fmt.Errorf("schema.feature_codes entry %q must be a two-letter code", code)
		}
	}
	for _, f := range c.Schema.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema.fields entry without a name")
		}
	}
	return nil
}

// MultiValuedFields lists the histogram fields configured as multi-valued.
func (c *Config) MultiValuedFields() []string {
	var out []string
	for _, f := range c.Schema.Fields {
		if f.MultiValued {
			out = append(out, f.Name)
		}
	}
	return out
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

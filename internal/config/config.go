package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"archflow/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARCHFLOW"

// Config is the contents of .archflow/config.json.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// Frameworks are the active framework tags. Empty means every tag in the
	// pattern table.
	Frameworks   []string `json:"frameworks" mapstructure:"frameworks"`
	Protocols    []string `json:"protocols" mapstructure:"protocols"`
	PatternsFile string   `json:"patternsFile" mapstructure:"patternsFile"`

	Extract ExtractConfig `json:"extract" mapstructure:"extract"`
	Storage StorageConfig `json:"storage" mapstructure:"storage"`
	Neo4j   Neo4jConfig   `json:"neo4j" mapstructure:"neo4j"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ExtractConfig controls source extraction.
type ExtractConfig struct {
	IgnoreDirs   []string `json:"ignoreDirs" mapstructure:"ignoreDirs"`
	IncludeTests bool     `json:"includeTests" mapstructure:"includeTests"`
}

// StorageConfig controls the build history database.
type StorageConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Path is relative to the repository root unless absolute. Empty means
	// .archflow/archflow.db.
	Path string `json:"path" mapstructure:"path"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI       string `json:"uri" mapstructure:"uri"`
	User      string `json:"user" mapstructure:"user"`
	Password  string `json:"password,omitempty" mapstructure:"password"`
	Database  string `json:"database" mapstructure:"database"`
	BatchSize int    `json:"batchSize" mapstructure:"batchSize"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:    CurrentVersion,
		Frameworks: []string{},
		Protocols:  []string{},
		Extract: ExtractConfig{
			IgnoreDirs:   []string{"vendor", "testdata", "node_modules", ".git"},
			IncludeTests: false,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		Neo4j: Neo4jConfig{
			URI:       "neo4j://localhost:7687",
			User:      "neo4j",
			Database:  "neo4j",
			BatchSize: 500,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// EnvOverride records one environment variable that changed a setting.
type EnvOverride struct {
	EnvVar string `json:"envVar"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// envBindings maps config keys to environment variables.
var envBindings = []struct {
	key string
	env string
}{
	{"frameworks", "ARCHFLOW_FRAMEWORKS"},
	{"protocols", "ARCHFLOW_PROTOCOLS"},
	{"patternsFile", "ARCHFLOW_PATTERNS_FILE"},
	{"extract.includeTests", "ARCHFLOW_EXTRACT_INCLUDE_TESTS"},
	{"storage.enabled", "ARCHFLOW_STORAGE_ENABLED"},
	{"storage.path", "ARCHFLOW_STORAGE_PATH"},
	{"neo4j.uri", "ARCHFLOW_NEO4J_URI"},
	{"neo4j.user", "ARCHFLOW_NEO4J_USER"},
	{"neo4j.password", "ARCHFLOW_NEO4J_PASSWORD"},
	{"neo4j.database", "ARCHFLOW_NEO4J_DATABASE"},
	{"neo4j.batchSize", "ARCHFLOW_NEO4J_BATCH_SIZE"},
	{"logging.format", "ARCHFLOW_LOG_FORMAT"},
	{"logging.level", "ARCHFLOW_LOG_LEVEL"},
	{"logging.file", "ARCHFLOW_LOG_FILE"},
}

// SupportedEnvVars lists the recognized environment variables.
func SupportedEnvVars() []string {
	vars := make([]string, 0, len(envBindings))
	for _, b := range envBindings {
		vars = append(vars, b.env)
	}
	return vars
}

// LoadResult is a loaded config plus where it came from.
type LoadResult struct {
	Config       *Config
	ConfigPath   string // empty when no file was found
	EnvOverrides []EnvOverride
}

// LoadConfig loads .archflow/config.json under repoRoot, falling back to
// defaults when the file does not exist. Environment overrides apply either way.
func LoadConfig(repoRoot string) (*Config, error) {
	result, err := LoadConfigWithDetails(paths.ConfigPath(repoRoot))
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadConfigWithDetails loads the config file at path over the defaults.
func LoadConfigWithDetails(path string) (*LoadResult, error) {
	v := viper.New()
	v.SetConfigType("json")

	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, err
	}

	result := &LoadResult{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, &ConfigError{Field: filepath.Base(path), Message: err.Error()}
		}
		result.ConfigPath = path
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, err
		}
		if value, ok := os.LookupEnv(b.env); ok {
			result.EnvOverrides = append(result.EnvOverrides, EnvOverride{EnvVar: b.env, Key: b.key, Value: value})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	result.Config = &cfg
	return result, nil
}

// Save writes the configuration to .archflow/config.json under repoRoot.
func (c *Config) Save(repoRoot string) error {
	dir, err := paths.EnsureStateDir(repoRoot)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0644)
}

// ActiveFrameworks returns the configured tags, or all when none are set.
func (c *Config) ActiveFrameworks(all []string) []string {
	if len(c.Frameworks) == 0 {
		return all
	}
	return c.Frameworks
}

// DatabasePath resolves the storage path against repoRoot.
func (c *Config) DatabasePath(repoRoot string) string {
	if c.Storage.Path == "" {
		return paths.DatabasePath(repoRoot)
	}
	return paths.ResolveIn(repoRoot, c.Storage.Path)
}

var (
	validProtocols  = map[string]bool{"http": true, "grpc": true, "cli": true}
	validLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks field values. Framework tags are not checked here since
// custom pattern files may add new ones.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	for _, p := range c.Protocols {
		if !validProtocols[p] {
			return &ConfigError{Field: "protocols", Message: "unknown protocol " + p}
		}
	}
	for _, fw := range c.Frameworks {
		if fw == "" || fw != strings.ToLower(fw) {
			return &ConfigError{Field: "frameworks", Message: "framework tags are lowercase and non-empty"}
		}
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return &ConfigError{Field: "logging.level", Message: "must be debug, info, warn or error"}
	}
	if !validLogFormats[c.Logging.Format] {
		return &ConfigError{Field: "logging.format", Message: "must be text or json"}
	}
	if c.Neo4j.BatchSize <= 0 {
		return &ConfigError{Field: "neo4j.batchSize", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

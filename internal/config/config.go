// Package config provides configuration management for skillmaster.
// It supports YAML or TOML configuration files, environment variables, and sensible defaults.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/klauern/skillmaster/internal/util"
)

// DefaultBaseURL is the catalog service used when none is configured.
const DefaultBaseURL = "https://skillmaster.cc/api"

// Config represents the complete skillmaster configuration.
type Config struct {
	// API configures the catalog service client
	API APIConfig `yaml:"api" toml:"api" json:"api"`

	// Paths configures where skills are installed
	Paths PathsConfig `yaml:"paths" toml:"paths" json:"paths"`

	// Cache configures catalog metadata caching
	Cache CacheConfig `yaml:"cache" toml:"cache" json:"cache"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output" json:"output"`
}

// APIConfig holds catalog service settings.
type APIConfig struct {
	// BaseURL is the root of the catalog REST API
	BaseURL string `yaml:"base_url" toml:"base_url" json:"base_url"`
	// Timeout bounds each catalog request
	Timeout time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent,omitempty" toml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// PathsConfig holds the skill directory layout.
type PathsConfig struct {
	// ProjectDir is the project root for local installs; empty means the working directory
	ProjectDir string `yaml:"project_dir,omitempty" toml:"project_dir,omitempty" json:"project_dir,omitempty"`
	// LocalSkillsDir is resolved against ProjectDir when relative
	LocalSkillsDir string `yaml:"local_skills_dir" toml:"local_skills_dir" json:"local_skills_dir"`
	// GlobalSkillsDir may use ~ for the home directory
	GlobalSkillsDir string `yaml:"global_skills_dir" toml:"global_skills_dir" json:"global_skills_dir"`
}

// CacheConfig holds caching settings.
type CacheConfig struct {
	// Enabled enables or disables caching
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled"`
	// TTL is the time-to-live for cache entries
	TTL time.Duration `yaml:"ttl" toml:"ttl" json:"ttl"`
	// Location is the cache directory path
	Location string `yaml:"location" toml:"location" json:"location"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default list output format (table, json, yaml)
	Format string `yaml:"format" toml:"format" json:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color" json:"color"`
}

var (
	validColors  = []string{"auto", "always", "never"}
	validFormats = []string{"table", "json", "yaml"}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   30 * time.Second,
			UserAgent: "skillmaster-cli",
		},
		Paths: PathsConfig{
			LocalSkillsDir:  filepath.Join(".claude", "skills"),
			GlobalSkillsDir: "~/.claude/skills",
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTL:      time.Hour,
			Location: filepath.Join(xdg.CacheHome, "skillmaster"),
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
		},
	}
}

// Env reads environment variables. It exists so tests can supply a fixed environment.
type Env interface {
	Getenv(key string) string
}

// OSEnv implements Env using the process environment.
type OSEnv struct{}

// Getenv returns the value of the environment variable named by key.
func (OSEnv) Getenv(key string) string {
	return os.Getenv(key)
}

// MapEnv implements Env over a fixed map.
type MapEnv map[string]string

// Getenv returns the mapped value for key.
func (m MapEnv) Getenv(key string) string {
	return m[key]
}

const (
	yamlFileName = "config.yaml"
	tomlFileName = "config.toml"
)

// FilePath returns the path to the config file.
// config.yaml is preferred; config.toml is used when it is the only one present.
func FilePath() string {
	dir := util.ConfigDir()
	yamlPath := filepath.Join(dir, yamlFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	tomlPath := filepath.Join(dir, tomlFileName)
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	return yamlPath
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	return LoadWithEnv(FilePath(), OSEnv{})
}

// LoadFromPath loads configuration from a specific path.
// Unlike Load, a missing file is an error.
func LoadFromPath(path string) (*Config, error) {
	// #nosec G304 - path is provided by caller
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return LoadWithEnv(path, OSEnv{})
}

// LoadWithEnv reads path over the defaults and applies overrides from env.
// A missing file yields the defaults.
func LoadWithEnv(path string, env Env) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is constructed from trusted config directory
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvironment(env)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
// The encoding follows the file extension.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Encode(path)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Encode renders the configuration in the format implied by path.
func (c *Config) Encode(path string) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(c)
}

// ApplyEnvironment applies environment variable overrides.
// Environment variables follow the pattern SKILLMASTER_<SECTION>_<KEY>.
// Unparseable values are ignored.
func (c *Config) ApplyEnvironment(env Env) {
	if env == nil {
		env = OSEnv{}
	}

	if v := env.Getenv("SKILLMASTER_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := env.Getenv("SKILLMASTER_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}

	if v := env.Getenv("SKILLMASTER_PROJECT_DIR"); v != "" {
		c.Paths.ProjectDir = v
	}
	if v := env.Getenv("SKILLMASTER_LOCAL_SKILLS_DIR"); v != "" {
		c.Paths.LocalSkillsDir = v
	}
	if v := env.Getenv("SKILLMASTER_GLOBAL_SKILLS_DIR"); v != "" {
		c.Paths.GlobalSkillsDir = v
	}

	if v := env.Getenv("SKILLMASTER_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := env.Getenv("SKILLMASTER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := env.Getenv("SKILLMASTER_CACHE_LOCATION"); v != "" {
		c.Cache.Location = v
	}

	if v := env.Getenv("SKILLMASTER_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := env.Getenv("SKILLMASTER_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if strings.TrimSpace(c.Paths.LocalSkillsDir) == "" {
		return fmt.Errorf("paths.local_skills_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.GlobalSkillsDir) == "" {
		return fmt.Errorf("paths.global_skills_dir must not be empty")
	}
	if !slices.Contains(validColors, c.Output.Color) {
		return fmt.Errorf("output.color %q is invalid (valid: %s)", c.Output.Color, strings.Join(validColors, ", "))
	}
	if !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("output.format %q is invalid (valid: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	return nil
}

// Keys lists the settable configuration keys in display order.
func Keys() []string {
	return []string{
		"api.base_url",
		"api.timeout",
		"api.user_agent",
		"paths.project_dir",
		"paths.local_skills_dir",
		"paths.global_skills_dir",
		"cache.enabled",
		"cache.ttl",
		"cache.location",
		"output.format",
		"output.color",
	}
}

// Set assigns value to the dotted key and validates the result.
// The configuration is left unchanged when an error is returned.
func (c *Config) Set(key, value string) error {
	next := *c
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api.base_url":
		next.API.BaseURL = value
	case "api.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("api.timeout: %w", err)
		}
		next.API.Timeout = d
	case "api.user_agent":
		next.API.UserAgent = value
	case "paths.project_dir":
		next.Paths.ProjectDir = value
	case "paths.local_skills_dir":
		next.Paths.LocalSkillsDir = value
	case "paths.global_skills_dir":
		next.Paths.GlobalSkillsDir = value
	case "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache.enabled: %w", err)
		}
		next.Cache.Enabled = b
	case "cache.ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cache.ttl: %w", err)
		}
		next.Cache.TTL = d
	case "cache.location":
		next.Cache.Location = value
	case "output.format":
		next.Output.Format = value
	case "output.color":
		next.Output.Color = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Get returns the value of the dotted key formatted the way Set accepts it.
func (c *Config) Get(key string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api.base_url":
		return c.API.BaseURL, nil
	case "api.timeout":
		return c.API.Timeout.String(), nil
	case "api.user_agent":
		return c.API.UserAgent, nil
	case "paths.project_dir":
		return c.Paths.ProjectDir, nil
	case "paths.local_skills_dir":
		return c.Paths.LocalSkillsDir, nil
	case "paths.global_skills_dir":
		return c.Paths.GlobalSkillsDir, nil
	case "cache.enabled":
		return strconv.FormatBool(c.Cache.Enabled), nil
	case "cache.ttl":
		return c.Cache.TTL.String(), nil
	case "cache.location":
		return c.Cache.Location, nil
	case "output.format":
		return c.Output.Format, nil
	case "output.color":
		return c.Output.Color, nil
	default:
		return "", fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
}

// ResolvedProjectDir returns the project root, defaulting to the working directory.
func (c *Config) ResolvedProjectDir() string {
	if dir := util.ExpandPath(c.Paths.ProjectDir, ""); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// ResolvedLocalSkillsDir returns the absolute local skills directory.
func (c *Config) ResolvedLocalSkillsDir() string {
	return util.ExpandPath(c.Paths.LocalSkillsDir, c.ResolvedProjectDir())
}

// SiteURL is the catalog's web site: the API base URL without its /api suffix.
func (c *Config) SiteURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	return strings.TrimSuffix(base, "/api")
}

// SkillPageURL returns the catalog web page of the skill with the given id.
func (c *Config) SkillPageURL(id string) string {
	return c.SiteURL() + "/skill/" + url.PathEscape(id)
}

// ResolvedGlobalSkillsDir returns the absolute global skills directory.
func (c *Config) ResolvedGlobalSkillsDir() string {
	dir := util.ExpandPath(c.Paths.GlobalSkillsDir, "")
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

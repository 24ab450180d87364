package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// Timezone names must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/Nik4ant/SfuTelegramBot/internal/render"
)

// Defaults.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultTimezone        = "Asia/Krasnoyarsk"
	DefaultLogLevel        = "info"
	DefaultRefresh         = "@every 24h"
	DefaultUpstreamURL     = "https://edu.sfu-kras.ru/api/timetable/get"
	DefaultUpstreamTimeout = 15
	DefaultRPS             = 5
	DefaultBurst           = 5
	DefaultOutputDir       = "./_timetable_images/_output"
	DefaultAssetsDir       = "./_timetable_images/_assets"
	DefaultProfileDB       = "./database.db"

	BackendRaster   = "raster"
	BackendChromium = "chromium"
)

// Environment variables that override secrets from the file.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvAdminIDs      = "ADMIN_IDS"
)

// UpstreamConfig describes the university timetable API.
type UpstreamConfig struct {
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// RenderConfig controls how and where images are produced.
type RenderConfig struct {
	// Backend is "raster" (pure Go drawing) or "chromium" (HTML screenshot).
	Backend   string `yaml:"backend" json:"backend"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	AssetsDir string `yaml:"assets_dir" json:"assets_dir"`
	// FontFile is an optional TTF/OTF inside AssetsDir.
	FontFile     string `yaml:"font_file,omitempty" json:"font_file,omitempty"`
	DefaultTheme string `yaml:"default_theme" json:"default_theme"`
}

// TelegramConfig enables the bot when Token is set.
type TelegramConfig struct {
	Token    string  `yaml:"token" json:"-"`
	AdminIDs []int64 `yaml:"admin_ids" json:"admin_ids"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Timezone string `yaml:"timezone" json:"timezone"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Refresh is the cron schedule of the full cache reset.
	Refresh string `yaml:"refresh" json:"refresh"`

	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Render   RenderConfig   `yaml:"render" json:"render"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`

	ProfileDB string `yaml:"profile_db" json:"profile_db"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Refresh == "" {
		c.Refresh = DefaultRefresh
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamURL
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		c.Upstream.TimeoutSeconds = DefaultUpstreamTimeout
	}
	if c.Upstream.RequestsPerSecond <= 0 {
		c.Upstream.RequestsPerSecond = DefaultRPS
	}
	if c.Upstream.Burst <= 0 {
		c.Upstream.Burst = DefaultBurst
	}

	c.Render.Backend = strings.ToLower(strings.TrimSpace(c.Render.Backend))
	if c.Render.Backend == "" {
		c.Render.Backend = BackendRaster
	}
	if c.Render.OutputDir == "" {
		c.Render.OutputDir = DefaultOutputDir
	}
	if c.Render.AssetsDir == "" {
		c.Render.AssetsDir = DefaultAssetsDir
	}
	if c.Render.DefaultTheme == "" {
		c.Render.DefaultTheme = "dark"
	}
	if c.Telegram.AdminIDs == nil {
		c.Telegram.AdminIDs = []int64{}
	}

	if c.ProfileDB == "" {
		c.ProfileDB = DefaultProfileDB
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	switch c.Render.Backend {
	case BackendRaster, BackendChromium:
	default:
		errs = append(errs, fmt.Errorf("render.backend %q: want %s or %s", c.Render.Backend, BackendRaster, BackendChromium))
	}
	switch c.Render.DefaultTheme {
	case "dark", "light":
	default:
		errs = append(errs, fmt.Errorf("render.default_theme %q: want dark or light", c.Render.DefaultTheme))
	}
	// The output directory is wiped on every reset, so neither may hold the other.
	if render.Within(c.Render.AssetsDir, c.Render.OutputDir) || render.Within(c.Render.OutputDir, c.Render.AssetsDir) {
		errs = append(errs, errors.New("render.output_dir and render.assets_dir must be separate directories"))
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth needs both username and password"))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ApplyEnv lets secrets come from the environment instead of the file.
func (c *Config) ApplyEnv() error {
	if tok := strings.TrimSpace(os.Getenv(EnvTelegramToken)); tok != "" {
		c.Telegram.Token = tok
	}
	if raw := strings.TrimSpace(os.Getenv(EnvAdminIDs)); raw != "" {
		ids := []int64{}
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %q is not a Telegram id", EnvAdminIDs, part)
			}
			ids = append(ids, id)
		}
		c.Telegram.AdminIDs = ids
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there with 0600
// permissions and returned. Otherwise the file is read, unmarshalled and
// normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether running without a file is fine.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".sfubot-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

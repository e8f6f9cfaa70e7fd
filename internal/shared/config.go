package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// GoogleAPIKeyEnv overrides [GeocodingConfig.APIKey] when set.
const GoogleAPIKeyEnv = "GOOGLE_API_KEY"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
	Browser    BrowserConfig    `toml:"browser"`
	Pacing     PacingConfig     `toml:"pacing"`
	Screenshot ScreenshotConfig `toml:"screenshot"`
	Geocoding  GeocodingConfig  `toml:"geocoding"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Providers  ProvidersConfig  `toml:"providers"`
}

// StorageConfig locates the task file and the history ledger partitions.
type StorageConfig struct {
	TasksFile string `toml:"tasks_file"`
	DataDir   string `toml:"data_dir"`
}

// DatabaseConfig contains database connection settings for the run journal.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BrowserConfig configures the shared automated browser session.
type BrowserConfig struct {
	Headless        bool     `toml:"headless"`
	UserAgent       string   `toml:"user_agent"`
	Width           int      `toml:"width"`
	Height          int      `toml:"height"`
	PageLoadTimeout Duration `toml:"page_load_timeout"`
	Settle          Duration `toml:"settle"` // wait after each navigation before reading the page
	ExecPath        string   `toml:"exec_path"`
}

// PacingConfig controls delays between groups.
type PacingConfig struct {
	MinWait         Duration `toml:"min_wait"`
	MaxWait         Duration `toml:"max_wait"`
	InteractiveWait Duration `toml:"interactive_wait"`
}

// ScreenshotConfig controls where evidence images go and how they are encoded.
type ScreenshotConfig struct {
	Dir     string `toml:"dir"`
	Quality int    `toml:"quality"`
}

// GeocodingConfig contains the geocoding API credentials.
type GeocodingConfig struct {
	APIKey    string  `toml:"api_key"`
	Endpoint  string  `toml:"endpoint"`
	Language  string  `toml:"language"`
	RateLimit float64 `toml:"rate_limit"`
	Accuracy  float64 `toml:"accuracy"`
}

// ScheduleConfig configures the headless scheduled run.
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// ProvidersConfig holds per-provider tuning.
type ProvidersConfig struct {
	Directory   DirectoryConfig   `toml:"directory"`
	FeaturePage FeaturePageConfig `toml:"feature_page"`
	MapPack     MapPackConfig     `toml:"map_pack"`
	WebSearch   WebSearchConfig   `toml:"web_search"`
}

// DirectoryConfig tunes the directory search pipeline.
type DirectoryConfig struct {
	BaseURL    string `toml:"base_url"`
	RefererURL string `toml:"referer_url"`
	GenreAlias string `toml:"genre_alias"`
	MaxPages   int    `toml:"max_pages"`
	PageSize   int    `toml:"page_size"`
}

// FeaturePageConfig tunes the feature page pipeline.
type FeaturePageConfig struct {
	MaxPages int `toml:"max_pages"`
	PageSize int `toml:"page_size"`
}

// MapPackConfig tunes the map pack pipeline.
type MapPackConfig struct {
	BaseURL          string   `toml:"base_url"`
	ScrollIterations int      `toml:"scroll_iterations"`
	ScrollPause      Duration `toml:"scroll_pause"`
	PanelTimeout     Duration `toml:"panel_timeout"`
	Zoom             int      `toml:"zoom"`
}

// WebSearchConfig tunes the web search pipeline.
type WebSearchConfig struct {
	BaseURL  string `toml:"base_url"`
	PageSize int    `toml:"page_size"`
}

// Duration wraps [time.Duration] so TOML values like "30s" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	applyEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	applyEnv(&config)
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Storage.TasksFile == "":
		return fmt.Errorf("%w: storage.tasks_file is required", ErrInvalidConfig)
	case c.Storage.DataDir == "":
		return fmt.Errorf("%w: storage.data_dir is required", ErrInvalidConfig)
	case c.Pacing.MaxWait.Duration < c.Pacing.MinWait.Duration:
		return fmt.Errorf("%w: pacing.max_wait must not be below pacing.min_wait", ErrInvalidConfig)
	case c.Screenshot.Quality < 1 || c.Screenshot.Quality > 100:
		return fmt.Errorf("%w: screenshot.quality must be within 1..100", ErrInvalidConfig)
	}
	return nil
}

func applyEnv(c *Config) {
	if key := os.Getenv(GoogleAPIKeyEnv); key != "" {
		c.Geocoding.APIKey = key
	}
}

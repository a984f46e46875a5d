// Package config loads and validates the service's declarative YAML
// configuration.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/joho/godotenv"
)

var (
	templateNamePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	funContentEndpointName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	dailyTimePattern       = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
)

// Config is the root configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Ops       OpsConfig       `yaml:"ops"`
	Sources   []DataSource    `yaml:"data_sources"`
	Templates TemplatesConfig `yaml:"templates"`
	Timezone  TimezoneConfig  `yaml:"timezone"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	BaseDomain string `yaml:"base_domain"`
}

type PathsConfig struct {
	CacheDir     string `yaml:"cache_dir"`
	StatePath    string `yaml:"state_path"`
	StaticDir    string `yaml:"static_dir"`
	TemplatesDir string `yaml:"templates_dir"`
	LockDir      string `yaml:"lock_dir"`
}

type SchedulerConfig struct {
	Mode         string   `yaml:"mode"` // "daily" | "hourly"
	DailyTimes   []string `yaml:"daily_times"`
	MinuteOfHour int      `yaml:"minute_of_hour"`
}

type CacheConfig struct {
	RetainDays int `yaml:"retain_days"`
}

type OpsConfig struct {
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DataSource is the discriminated-union configuration for one upstream
// source adapter.
type DataSource struct {
	Type       string `yaml:"type"` // news | fun_content | crazy_thursday | holiday | stock_index
	Enabled    bool   `yaml:"enabled"`
	TimeoutSec int    `yaml:"timeout_sec"`

	// news / crazy_thursday
	URL string `yaml:"url,omitempty"`

	// fun_content
	Endpoints []FunContentEndpoint `yaml:"endpoints,omitempty"`

	// holiday
	Mirrors []string `yaml:"mirrors,omitempty"`

	// stock_index
	QuoteURL          string `yaml:"quote_url,omitempty"`
	CacheTTLSec       int    `yaml:"cache_ttl_sec,omitempty"`
	MarketHoursAPIURL string `yaml:"market_hours_api_url,omitempty"`
}

type FunContentEndpoint struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	DataPath     string `yaml:"data_path"`
	DisplayTitle string `yaml:"display_title"`
}

type ViewportConfig struct {
	W int `yaml:"w"`
	H int `yaml:"h"`
}

type TemplateRenderConfig struct {
	DeviceScaleFactor float64 `yaml:"device_scale_factor"`
	JPEGQuality       int     `yaml:"jpeg_quality"`
	UseChinaCDN       bool    `yaml:"use_china_cdn"`
}

type TemplateItemConfig struct {
	Name              string         `yaml:"name"`
	Path              string         `yaml:"path"`
	Viewport          ViewportConfig `yaml:"viewport"`
	DeviceScaleFactor *float64       `yaml:"device_scale_factor,omitempty"`
	JPEGQuality       *int           `yaml:"jpeg_quality,omitempty"`
	ShowKFC           bool           `yaml:"show_kfc"`
	ShowStock         bool           `yaml:"show_stock"`
}

type TemplatesConfig struct {
	Default string               `yaml:"default"`
	Config  TemplateRenderConfig `yaml:"config"`
	Items   []TemplateItemConfig `yaml:"items"`
}

// GetTemplate resolves a template by name, falling back to Default when
// name is empty. Returns ok=false if no such template is configured.
func (t TemplatesConfig) GetTemplate(name string) (TemplateItemConfig, bool) {
	if name == "" {
		name = t.Default
	}
	for _, item := range t.Items {
		if item.Name == name {
			return item, true
		}
	}
	return TemplateItemConfig{}, false
}

type TimezoneConfig struct {
	Business string `yaml:"business"`
	Display  string `yaml:"display"`
}

// Load reads and validates the YAML configuration at path. It also loads
// envPath via godotenv (if present) before falling back to the environment
// for secrets left blank in the file, such as ops.api_key.
func Load(path, envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("config: load .env: %w", err)
			}
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if key := os.Getenv("OPS_API_KEY"); key != "" && cfg.Ops.APIKey == "" {
		cfg.Ops.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every configuration invariant eagerly so violations
// abort startup instead of surfacing at generation time.
func (c *Config) Validate() error {
	if c.Timezone.Business == "local" {
		return fmt.Errorf("config: timezone.business must not be %q", "local")
	}

	switch c.Scheduler.Mode {
	case "daily":
		if len(c.Scheduler.DailyTimes) == 0 {
			return fmt.Errorf("config: scheduler.daily_times must be non-empty when mode=daily")
		}
		for _, t := range c.Scheduler.DailyTimes {
			if !dailyTimePattern.MatchString(t) {
				return fmt.Errorf("config: scheduler.daily_times entry %q is not HH:MM", t)
			}
		}
	case "hourly":
		if c.Scheduler.MinuteOfHour < 0 || c.Scheduler.MinuteOfHour > 59 {
			return fmt.Errorf("config: scheduler.minute_of_hour out of range: %d", c.Scheduler.MinuteOfHour)
		}
	default:
		return fmt.Errorf("config: scheduler.mode must be %q or %q, got %q", "daily", "hourly", c.Scheduler.Mode)
	}

	if c.Cache.RetainDays <= 0 {
		return fmt.Errorf("config: cache.retain_days must be > 0")
	}

	for _, src := range c.Sources {
		if src.TimeoutSec <= 0 {
			return fmt.Errorf("config: data_sources[%s].timeout_sec must be > 0", src.Type)
		}
		if src.Type == "fun_content" {
			for _, ep := range src.Endpoints {
				if !funContentEndpointName.MatchString(ep.Name) {
					return fmt.Errorf("config: fun_content endpoint name %q invalid", ep.Name)
				}
			}
		}
	}

	seenNames := map[string]bool{}
	for _, item := range c.Templates.Items {
		if !templateNamePattern.MatchString(item.Name) {
			return fmt.Errorf("config: template name %q invalid", item.Name)
		}
		if seenNames[item.Name] {
			return fmt.Errorf("config: duplicate template name %q", item.Name)
		}
		seenNames[item.Name] = true
		if item.Viewport.W <= 0 || item.Viewport.H <= 0 {
			return fmt.Errorf("config: template %q viewport must be positive", item.Name)
		}
		if item.JPEGQuality != nil && (*item.JPEGQuality < 1 || *item.JPEGQuality > 100) {
			return fmt.Errorf("config: template %q jpeg_quality out of range", item.Name)
		}
	}
	if c.Templates.Config.JPEGQuality != 0 && (c.Templates.Config.JPEGQuality < 1 || c.Templates.Config.JPEGQuality > 100) {
		return fmt.Errorf("config: templates.config.jpeg_quality out of range")
	}

	return nil
}

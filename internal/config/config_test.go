package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  host: "0.0.0.0"
  port: 8080
  base_domain: "https://example.com"
paths:
  cache_dir: "./data"
  state_path: "./data/state.json"
  static_dir: "./static"
  templates_dir: "./templates"
  lock_dir: "./locks"
scheduler:
  mode: daily
  daily_times: ["06:30"]
cache:
  retain_days: 30
ops:
  api_key: "secret"
data_sources:
  - type: news
    enabled: true
    timeout_sec: 10
    url: "https://example.com/news"
templates:
  default: moyuren
  config:
    device_scale_factor: 2
    jpeg_quality: 85
    use_china_cdn: false
  items:
    - name: moyuren
      path: moyuren.html
      viewport: {w: 800, h: 1200}
      show_kfc: true
      show_stock: true
timezone:
  business: "Asia/Shanghai"
  display: "Asia/Shanghai"
logging:
  level: info
`

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "daily", cfg.Scheduler.Mode)
	assert.Equal(t, "moyuren", cfg.Templates.Default)
	tpl, ok := cfg.Templates.GetTemplate("")
	require.True(t, ok)
	assert.Equal(t, "moyuren", tpl.Name)
}

func TestLoad_RejectsLocalBusinessTimezone(t *testing.T) {
	body := strings.Replace(validYAML, `business: "Asia/Shanghai"`, `business: "local"`, 1)
	path := writeConfig(t, body)
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyDailyTimes(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Scheduler.Mode = "daily"
	cfg.Scheduler.DailyTimes = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsDuplicateTemplateNames(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Templates.Items = append(cfg.Templates.Items, cfg.Templates.Items[0])
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadJPEGQuality(t *testing.T) {
	cfg := baseValidConfig()
	bad := 150
	cfg.Templates.Items[0].JPEGQuality = &bad
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveRetainDays(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Cache.RetainDays = 0
	assert.Error(t, cfg.Validate())
}

func baseValidConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{Mode: "daily", DailyTimes: []string{"06:30"}},
		Cache:     CacheConfig{RetainDays: 30},
		Templates: TemplatesConfig{
			Default: "moyuren",
			Items: []TemplateItemConfig{
				{Name: "moyuren", Path: "moyuren.html", Viewport: ViewportConfig{W: 800, H: 1200}},
			},
		},
		Timezone: TimezoneConfig{Business: "Asia/Shanghai", Display: "Asia/Shanghai"},
	}
}

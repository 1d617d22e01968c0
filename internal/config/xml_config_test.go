package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CertificateOCR.config")

	cfg, err := LoadConfig(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay())
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<CertificateOCR>")
	assert.Contains(t, string(data), "<MaxAttempts>3</MaxAttempts>")
}

func TestParse_XMLKeepsDefaultsForMissingFields(t *testing.T) {
	doc := `<?xml version="1.0"?>
<CertificateOCR>
  <Server><Port>9100</Port></Server>
  <OCRService><BaseURL>http://ocr.internal:8000</BaseURL></OCRService>
</CertificateOCR>`

	cfg, err := Parse("app.config", []byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://ocr.internal:8000", cfg.OCRService.BaseURL)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.Equal(t, "image/", cfg.Queue.AllowedMIMEPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestParse_YAML(t *testing.T) {
	doc := `
server:
  port: 9200
run:
  max_attempts: 5
  retry_delay_ms: 250
advanced:
  log_format: json
`
	cfg, err := Parse("app.yaml", []byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Run.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, "json", cfg.Advanced.LogFormat)
	assert.Equal(t, 96, cfg.Queue.ThumbnailSize)
}

func TestSaveAndLoad_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yml")
	cfg := DefaultConfig()
	cfg.OCRService.BaseURL = "http://10.0.0.5:8000"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000", loaded.OCRService.BaseURL)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	lookuper := envconfig.MapLookuper(map[string]string{
		"PORT":               "9999",
		"OCR_BASE_URL":       "http://sidecar:8000",
		"RUN_RETRY_DELAY_MS": "0",
		"LOG_LEVEL":          "debug",
	})

	require.NoError(t, cfg.applyOverrides(context.Background(), lookuper))

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "http://sidecar:8000", cfg.OCRService.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay())
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	assert.Equal(t, "127.0.0.1", cfg.Server.BindAddress, "unset variables keep file values")
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
}

func TestApplyOverrides_InvalidNumber(t *testing.T) {
	cfg := DefaultConfig()
	lookuper := envconfig.MapLookuper(map[string]string{"PORT": "not-a-port"})

	assert.Error(t, cfg.applyOverrides(context.Background(), lookuper))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"port out of range", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"missing base url host", func(c *AppConfig) { c.OCRService.BaseURL = "not a url" }},
		{"zero attempts", func(c *AppConfig) { c.Run.MaxAttempts = 0 }},
		{"negative delay", func(c *AppConfig) { c.Run.RetryDelayMs = -1 }},
		{"zero availability attempts", func(c *AppConfig) { c.Run.AvailabilityAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

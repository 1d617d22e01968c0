// Package config provides file-based configuration for the OCR console.
// The XML layout is the primary format; YAML files are accepted as well.
package config

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"CertificateOCR" yaml:"-"`

	Server     ServerConfig     `xml:"Server" yaml:"server"`
	OCRService OCRServiceConfig `xml:"OCRService" yaml:"ocr_service"`
	Run        RunConfig        `xml:"Run" yaml:"run"`
	Queue      QueueConfig      `xml:"Queue" yaml:"queue"`
	Advanced   AdvancedConfig   `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port              int    `xml:"Port" yaml:"port"`
	BindAddress       string `xml:"BindAddress" yaml:"bind_address"`
	EnableCORS        bool   `xml:"EnableCORS" yaml:"enable_cors"`
	AllowOrigins      string `xml:"AllowOrigins" yaml:"allow_origins"`
	ReadTimeout       int    `xml:"ReadTimeoutSeconds" yaml:"read_timeout_seconds"`
	WriteTimeout      int    `xml:"WriteTimeoutSeconds" yaml:"write_timeout_seconds"`
	IdleTimeout       int    `xml:"IdleTimeoutSeconds" yaml:"idle_timeout_seconds"`
	BodyLimit         string `xml:"BodyLimit" yaml:"body_limit"`
	EnableCompression bool   `xml:"EnableCompression" yaml:"enable_compression"`
	CompressionLevel  int    `xml:"CompressionLevel" yaml:"compression_level"`
}

// OCRServiceConfig points at the extraction sidecar.
type OCRServiceConfig struct {
	BaseURL        string `xml:"BaseURL" yaml:"base_url"`
	TimeoutSeconds int    `xml:"TimeoutSeconds" yaml:"timeout_seconds"`
}

// RunConfig tunes the run controller's retry behaviour.
type RunConfig struct {
	MaxAttempts             int `xml:"MaxAttempts" yaml:"max_attempts"`
	RetryDelayMs            int `xml:"RetryDelayMs" yaml:"retry_delay_ms"`
	AvailabilityAttempts    int `xml:"AvailabilityAttempts" yaml:"availability_attempts"`
	AvailabilityBaseDelayMs int `xml:"AvailabilityBaseDelayMs" yaml:"availability_base_delay_ms"`
	AvailabilityMaxDelayMs  int `xml:"AvailabilityMaxDelayMs" yaml:"availability_max_delay_ms"`
}

// QueueConfig contains upload and thumbnail settings
type QueueConfig struct {
	AllowedMIMEPrefix string `xml:"AllowedMIMEPrefix" yaml:"allowed_mime_prefix"`
	ThumbnailSize     int    `xml:"ThumbnailSize" yaml:"thumbnail_size"`
	ThumbnailWorkers  int    `xml:"ThumbnailWorkers" yaml:"thumbnail_workers"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel" yaml:"log_level"`
	LogFormat            string `xml:"LogFormat" yaml:"log_format"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging" yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:              8089,
			BindAddress:       "127.0.0.1",
			EnableCORS:        true,
			AllowOrigins:      "http://localhost,http://localhost:3000",
			ReadTimeout:       30,
			WriteTimeout:      30,
			IdleTimeout:       120,
			BodyLimit:         "64M",
			EnableCompression: true,
			CompressionLevel:  5,
		},
		OCRService: OCRServiceConfig{
			BaseURL:        "http://127.0.0.1:8000",
			TimeoutSeconds: 120,
		},
		Run: RunConfig{
			MaxAttempts:             3,
			RetryDelayMs:            2000,
			AvailabilityAttempts:    5,
			AvailabilityBaseDelayMs: 500,
			AvailabilityMaxDelayMs:  5000,
		},
		Queue: QueueConfig{
			AllowedMIMEPrefix: "image/",
			ThumbnailSize:     96,
			ThumbnailWorkers:  4,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "text",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from an XML or YAML file. A missing file is
// created with defaults.
func LoadConfig(ctx context.Context, configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		if err := config.applyEnvironmentOverrides(ctx); err != nil {
			return nil, err
		}
		return config, config.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(configPath, data)
	if err != nil {
		return nil, err
	}

	if err := config.applyEnvironmentOverrides(ctx); err != nil {
		return nil, err
	}

	return config, config.Validate()
}

// Parse decodes data according to the extension of name. Fields absent from
// the document keep their default values.
func Parse(name string, data []byte) (*AppConfig, error) {
	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return config, nil
}

// Save saves the configuration, choosing the format from the file extension.
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Certificate OCR Console configuration\n"), out...)
	default:
		out, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Certificate OCR Console Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, out...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	u, err := url.Parse(c.OCRService.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ocr service base url is invalid: %q", c.OCRService.BaseURL)
	}
	if c.Run.MaxAttempts < 1 {
		return fmt.Errorf("run max attempts must be positive, got %d", c.Run.MaxAttempts)
	}
	if c.Run.RetryDelayMs < 0 {
		return fmt.Errorf("run retry delay must not be negative, got %d", c.Run.RetryDelayMs)
	}
	if c.Run.AvailabilityAttempts < 1 {
		return fmt.Errorf("availability attempts must be positive, got %d", c.Run.AvailabilityAttempts)
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RetryDelay is the pause between attempts on the same queue item.
func (c *AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.Run.RetryDelayMs) * time.Millisecond
}

// OCRTimeout bounds a single request to the extraction sidecar.
func (c *AppConfig) OCRTimeout() time.Duration {
	return time.Duration(c.OCRService.TimeoutSeconds) * time.Second
}

// AvailabilityBackoff returns the base and maximum delay of the availability poll.
func (c *AppConfig) AvailabilityBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Run.AvailabilityBaseDelayMs) * time.Millisecond,
		time.Duration(c.Run.AvailabilityMaxDelayMs) * time.Millisecond
}

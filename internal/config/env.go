package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// envOverrides lists the environment variables that may replace file values.
// Unset variables leave the pointer nil.
type envOverrides struct {
	Port              *int    `env:"PORT"`
	BindAddress       *string `env:"BIND_ADDRESS"`
	OCRBaseURL        *string `env:"OCR_BASE_URL"`
	OCRTimeoutSeconds *int    `env:"OCR_TIMEOUT_SECONDS"`
	RunMaxAttempts    *int    `env:"RUN_MAX_ATTEMPTS"`
	RunRetryDelayMs   *int    `env:"RUN_RETRY_DELAY_MS"`
	LogLevel          *string `env:"LOG_LEVEL"`
	LogFormat         *string `env:"LOG_FORMAT"`
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides(ctx context.Context) error {
	return c.applyOverrides(ctx, envconfig.OsLookuper())
}

func (c *AppConfig) applyOverrides(ctx context.Context, lookuper envconfig.Lookuper) error {
	var in envOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:        &in,
		Lookuper:      lookuper,
		DefaultNoInit: true,
	}); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if in.Port != nil {
		c.Server.Port = *in.Port
	}
	if in.BindAddress != nil {
		c.Server.BindAddress = *in.BindAddress
	}
	if in.OCRBaseURL != nil {
		c.OCRService.BaseURL = *in.OCRBaseURL
	}
	if in.OCRTimeoutSeconds != nil {
		c.OCRService.TimeoutSeconds = *in.OCRTimeoutSeconds
	}
	if in.RunMaxAttempts != nil {
		c.Run.MaxAttempts = *in.RunMaxAttempts
	}
	if in.RunRetryDelayMs != nil {
		c.Run.RetryDelayMs = *in.RunRetryDelayMs
	}
	if in.LogLevel != nil {
		c.Advanced.LogLevel = *in.LogLevel
	}
	if in.LogFormat != nil {
		c.Advanced.LogFormat = *in.LogFormat
	}
	return nil
}

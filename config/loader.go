// Package config loads and validates application configuration from YAML.
package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/peelkit/peel/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads, parses and validates the config file at path, applying
// defaults for anything the file leaves unset.
func (l *Loader) Load(path string) (*types.AppConfig, error) {
	if path == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.readFileWithTimeout(ctx, path)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	cfg := Defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, types.WrapError(err, types.ErrConfigParseFailed.Error())
	}

	if err := l.validator.Struct(cfg); err != nil {
		return nil, types.WrapError(err, types.ErrConfigValidateFailed.Error())
	}

	return cfg, nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, path string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(path)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults returns a complete configuration suitable for local development.
func Defaults() *types.AppConfig {
	return &types.AppConfig{
		Name:    "peel",
		Version: "0.1.0",
		Server: &types.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			IdleTimeout:     120,
			ShutdownTimeout: 5,
		},
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Enabled:    false,
			Type:       "memory",
			DefaultTTL: time.Minute,
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    9090,
			Path:    "/metrics",
		},
		Middlewares: &types.MiddlewaresConfig{
			Recovery:  &types.MiddlewareItemConfig{Enabled: true},
			Logging:   &types.MiddlewareItemConfig{Enabled: true},
			RequestID: &types.MiddlewareItemConfig{Enabled: true},
		},
	}
}

// Package middleware bundles the middleware shipped with peel. Every
// constructor returns a peel.Middleware; nil configs fall back to defaults.
package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/types"
)

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
}

// NewLogging logs one entry line and one completion line per request, with
// the completion level chosen by status class.
func NewLogging(logger types.Logger, cfg *LoggingConfig) peel.Middleware {
	if cfg == nil {
		cfg = &LoggingConfig{LogLevel: "info"}
	}

	logWithLevel := func(msg string, fields ...zap.Field) {
		switch cfg.LogLevel {
		case "debug":
			logger.Debug(msg, fields...)
		case "warn":
			logger.Warn(msg, fields...)
		default:
			logger.Info(msg, fields...)
		}
	}

	return func(ctx *peel.Context, next peel.Next) error {
		start := time.Now()

		fields := []zap.Field{
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
		}
		if requestID, ok := ctx.Get(RequestIDKey); ok {
			fields = append(fields, zap.String("request_id", requestID.(string)))
		}
		if cfg.LogHeaders {
			fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx.Headers())))
		}

		logWithLevel("Request started", fields...)

		err := next()

		completed := []zap.Field{
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Int("status", ctx.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			completed = append(completed, zap.Error(err))
		}

		switch {
		case err != nil || ctx.Status() >= 500:
			logger.Error("Request completed", completed...)
		case ctx.Status() >= 400:
			logger.Warn("Request completed", completed...)
		default:
			logWithLevel("Request completed", completed...)
		}

		return err
	}
}

var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"X-Api-Key":     true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

func sanitizeHeaders(headers map[string]string) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, value := range headers {
		if sensitiveHeaders[key] {
			sanitized[key] = "[REDACTED]"
		} else {
			sanitized[key] = value
		}
	}
	return sanitized
}

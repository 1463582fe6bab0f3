package middleware

import (
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/types"
)

type BodyLimitConfig struct {
	MaxBodySize int `json:"max_body_size"`
}

// NewBodyLimit rejects requests whose body exceeds the configured size with
// a 413 before any downstream middleware runs.
func NewBodyLimit(cfg *BodyLimitConfig) peel.Middleware {
	if cfg == nil || cfg.MaxBodySize <= 0 {
		cfg = &BodyLimitConfig{MaxBodySize: 1024 * 1024}
	}

	return func(ctx *peel.Context, next peel.Next) error {
		switch ctx.Method() {
		case fasthttp.MethodPost, fasthttp.MethodPut, fasthttp.MethodPatch, fasthttp.MethodDelete:
		default:
			return next()
		}

		length := ctx.Request().ContentLength()
		if length > cfg.MaxBodySize || len(ctx.Request().Body()) > cfg.MaxBodySize {
			return types.NewHTTPError(fasthttp.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", cfg.MaxBodySize))
		}

		return next()
	}
}

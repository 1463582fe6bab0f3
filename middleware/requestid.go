package middleware

import (
	"github.com/google/uuid"

	"github.com/peelkit/peel"
)

// RequestIDKey is the state-bag key under which the request id is stored.
const RequestIDKey = "request_id"

const requestIDHeader = "X-Request-ID"

type RequestIDConfig struct {
	Generate bool `json:"generate"`
}

// NewRequestID propagates an inbound X-Request-ID, minting one when absent,
// and mirrors it onto the response and the state bag.
func NewRequestID(cfg *RequestIDConfig) peel.Middleware {
	if cfg == nil {
		cfg = &RequestIDConfig{Generate: true}
	}

	return func(ctx *peel.Context, next peel.Next) error {
		requestID := ctx.Header(requestIDHeader)
		if requestID == "" && cfg.Generate {
			requestID = uuid.NewString()
			ctx.Request().SetHeader(requestIDHeader, requestID)
		}

		if requestID != "" {
			ctx.Set(RequestIDKey, requestID)
			ctx.Response().SetHeader(requestIDHeader, requestID)
		}

		return next()
	}
}

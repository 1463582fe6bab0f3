package middleware

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/types"
	"github.com/peelkit/peel/utils"
)

type CacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// NewCache serves successful GET responses from the supplied store. Only
// buffered body variants are cached; streams are never buffered here.
func NewCache(store types.Cache, logger types.Logger, cfg *CacheConfig) peel.Middleware {
	if cfg == nil || cfg.TTL <= 0 {
		cfg = &CacheConfig{TTL: time.Minute}
	}

	return func(ctx *peel.Context, next peel.Next) error {
		if ctx.Method() != fasthttp.MethodGet {
			return next()
		}

		key := ctx.URL()

		if encoded, ok := store.Get(ctx.RawCtx(), key); ok {
			var cached cachedResponse
			if err := utils.Unmarshal(encoded, &cached); err == nil {
				if err := ctx.SetStatus(cached.Status); err != nil {
					return err
				}
				if cached.ContentType != "" {
					ctx.SetType(cached.ContentType)
				}
				ctx.SetBodyBytes(cached.Body)
				ctx.Response().SetHeader("X-Cache", "HIT")
				return nil
			}
			_ = store.Delete(ctx.RawCtx(), key)
		}

		if err := next(); err != nil {
			return err
		}

		response := ctx.Response()
		if response.Status() != fasthttp.StatusOK {
			return nil
		}
		switch response.BodyKind() {
		case peel.BodyText, peel.BodyBinary, peel.BodyJSON:
		default:
			return nil
		}

		encoded, err := utils.Marshal(&cachedResponse{
			Status:      response.Status(),
			ContentType: response.ContentType(),
			Body:        response.Body(),
		})
		if err != nil {
			return nil
		}

		if err := store.Set(ctx.RawCtx(), key, encoded, cfg.TTL); err != nil {
			logger.Warn("Failed to store cached response",
				zap.String("key", key), zap.Error(err))
		}
		response.SetHeader("X-Cache", "MISS")

		return nil
	}
}

package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/cache"
	"github.com/peelkit/peel/logger"
	"github.com/peelkit/peel/metrics"
	"github.com/peelkit/peel/types"
)

func nopLogger() types.Logger {
	return logger.NewZapWrapper(zap.NewNop())
}

func newTestCtx(method, url string) *peel.Context {
	rctx := &fasthttp.RequestCtx{}
	rctx.Request.Header.SetMethod(method)
	rctx.Request.SetRequestURI(url)
	return peel.NewContext(nil, rctx)
}

func run(t *testing.T, mw peel.Middleware, ctx *peel.Context, next peel.Next) error {
	t.Helper()
	if next == nil {
		next = func() error { return nil }
	}
	return mw(ctx, next)
}

func TestRequestIDGenerates(t *testing.T) {
	mw := NewRequestID(nil)
	ctx := newTestCtx("GET", "/")

	require.NoError(t, run(t, mw, ctx, nil))

	id, ok := ctx.Get(RequestIDKey)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, ctx.Response().Header("X-Request-ID"))
}

func TestRequestIDPropagates(t *testing.T) {
	mw := NewRequestID(nil)
	ctx := newTestCtx("GET", "/")
	ctx.Request().SetHeader("X-Request-ID", "req-123")

	require.NoError(t, run(t, mw, ctx, nil))

	id, _ := ctx.Get(RequestIDKey)
	assert.Equal(t, "req-123", id)
	assert.Equal(t, "req-123", ctx.Response().Header("X-Request-ID"))
}

func TestRecoveryConvertsPanic(t *testing.T) {
	mw := NewRecovery(nopLogger(), nil)
	ctx := newTestCtx("GET", "/")

	err := mw(ctx, func() error { panic("kaboom") })
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPanicRecovered)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRecoveryPassesThrough(t *testing.T) {
	mw := NewRecovery(nopLogger(), nil)
	ctx := newTestCtx("GET", "/")

	assert.NoError(t, run(t, mw, ctx, nil))
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	mw := NewBodyLimit(&BodyLimitConfig{MaxBodySize: 4})
	ctx := newTestCtx("POST", "/")
	ctx.Request().Raw().SetBodyString("way too large")

	err := run(t, mw, ctx, nil)
	require.Error(t, err)

	var httpErr *types.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, httpErr.Code)
}

func TestBodyLimitIgnoresGet(t *testing.T) {
	mw := NewBodyLimit(&BodyLimitConfig{MaxBodySize: 4})
	ctx := newTestCtx("GET", "/")
	ctx.Request().Raw().SetBodyString("way too large")

	assert.NoError(t, run(t, mw, ctx, nil))
}

func TestCORSPreflight(t *testing.T) {
	mw := NewCORS(&CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})
	ctx := newTestCtx("OPTIONS", "/")
	ctx.Request().SetHeader("Origin", "https://app.example.com")

	nextRan := false
	require.NoError(t, run(t, mw, ctx, func() error {
		nextRan = true
		return nil
	}))

	assert.False(t, nextRan, "preflight is answered without running the pipeline")
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Status())
	assert.Equal(t, "https://app.example.com",
		ctx.Response().Header(fasthttp.HeaderAccessControlAllowOrigin))
	assert.NotEmpty(t, ctx.Response().Header(fasthttp.HeaderAccessControlAllowMethods))
}

func TestCORSDisallowedOriginPreflight(t *testing.T) {
	mw := NewCORS(&CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})
	ctx := newTestCtx("OPTIONS", "/")
	ctx.Request().SetHeader("Origin", "https://evil.example.net")

	require.NoError(t, run(t, mw, ctx, nil))
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Status())
	assert.Empty(t, ctx.Response().Header(fasthttp.HeaderAccessControlAllowOrigin))
}

func TestCORSSimpleRequest(t *testing.T) {
	mw := NewCORS(nil)
	ctx := newTestCtx("GET", "/")
	ctx.Request().SetHeader("Origin", "https://anywhere.example.org")

	require.NoError(t, run(t, mw, ctx, nil))
	assert.Equal(t, "*", ctx.Response().Header(fasthttp.HeaderAccessControlAllowOrigin))
}

func TestCompressionGzip(t *testing.T) {
	mw := NewCompression(&CompressionConfig{MinSize: 8})
	ctx := newTestCtx("GET", "/")
	ctx.Request().SetHeader(fasthttp.HeaderAcceptEncoding, "gzip")

	payload := strings.Repeat("compress me ", 64)
	require.NoError(t, run(t, mw, ctx, func() error {
		ctx.SetBodyString(payload)
		return nil
	}))

	assert.Equal(t, "gzip", ctx.Response().Header(fasthttp.HeaderContentEncoding))

	reader, err := gzip.NewReader(bytes.NewReader(ctx.Response().Body()))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decompressed))
}

func TestCompressionSkipsSmallBodies(t *testing.T) {
	mw := NewCompression(nil)
	ctx := newTestCtx("GET", "/")
	ctx.Request().SetHeader(fasthttp.HeaderAcceptEncoding, "gzip")

	require.NoError(t, run(t, mw, ctx, func() error {
		ctx.SetBodyString("tiny")
		return nil
	}))

	assert.Empty(t, ctx.Response().Header(fasthttp.HeaderContentEncoding))
	assert.Equal(t, "tiny", string(ctx.Response().Body()))
}

func TestCompressionSkipsWithoutAcceptEncoding(t *testing.T) {
	mw := NewCompression(&CompressionConfig{MinSize: 8})
	ctx := newTestCtx("GET", "/")

	payload := strings.Repeat("x", 128)
	require.NoError(t, run(t, mw, ctx, func() error {
		ctx.SetBodyString(payload)
		return nil
	}))

	assert.Empty(t, ctx.Response().Header(fasthttp.HeaderContentEncoding))
}

func TestCacheMiddlewareHitAndMiss(t *testing.T) {
	store, err := cache.NewMemoryCache(context.Background(), nopLogger(), nil)
	require.NoError(t, err)
	defer store.Close()

	mw := NewCache(store, nopLogger(), &CacheConfig{TTL: time.Minute})

	handlerRuns := 0
	handler := func(ctx *peel.Context) peel.Next {
		return func() error {
			handlerRuns++
			ctx.SetType("application/json")
			ctx.SetBodyString(`{"cached":true}`)
			return nil
		}
	}

	first := newTestCtx("GET", "/data?x=1")
	require.NoError(t, mw(first, handler(first)))
	assert.Equal(t, 1, handlerRuns)
	assert.Equal(t, "MISS", first.Response().Header("X-Cache"))

	second := newTestCtx("GET", "/data?x=1")
	require.NoError(t, mw(second, handler(second)))
	assert.Equal(t, 1, handlerRuns, "second request must be served from cache")
	assert.Equal(t, "HIT", second.Response().Header("X-Cache"))
	assert.Equal(t, `{"cached":true}`, string(second.Response().Body()))

	other := newTestCtx("GET", "/data?x=2")
	require.NoError(t, mw(other, handler(other)))
	assert.Equal(t, 2, handlerRuns, "different URL is a different cache key")
}

func TestCacheMiddlewareSkipsNonGet(t *testing.T) {
	store, err := cache.NewMemoryCache(context.Background(), nopLogger(), nil)
	require.NoError(t, err)
	defer store.Close()

	mw := NewCache(store, nopLogger(), nil)

	runs := 0
	for i := 0; i < 2; i++ {
		ctx := newTestCtx("POST", "/data")
		require.NoError(t, mw(ctx, func() error {
			runs++
			ctx.SetBodyString("fresh")
			return nil
		}))
	}
	assert.Equal(t, 2, runs)
}

func TestCompressionAppendsToVary(t *testing.T) {
	cors := NewCORS(&CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})
	compression := NewCompression(&CompressionConfig{MinSize: 8})

	ctx := newTestCtx("GET", "/")
	ctx.Request().SetHeader("Origin", "https://app.example.com")
	ctx.Request().SetHeader(fasthttp.HeaderAcceptEncoding, "gzip")

	require.NoError(t, cors(ctx, func() error {
		return compression(ctx, func() error {
			ctx.SetBodyString(strings.Repeat("payload ", 64))
			return nil
		})
	}))

	vary := ctx.Response().Header(fasthttp.HeaderVary)
	assert.Contains(t, vary, "Origin",
		"compression must not clobber the Vary entry written upstream")
	assert.Contains(t, vary, fasthttp.HeaderAcceptEncoding)
}

func TestCompressionRespectsRefusedEncoding(t *testing.T) {
	mw := NewCompression(&CompressionConfig{MinSize: 8})

	t.Run("q=0 disables the encoding", func(t *testing.T) {
		ctx := newTestCtx("GET", "/")
		ctx.Request().SetHeader(fasthttp.HeaderAcceptEncoding, "gzip;q=0")

		require.NoError(t, mw(ctx, func() error {
			ctx.SetBodyString(strings.Repeat("x", 128))
			return nil
		}))
		assert.Empty(t, ctx.Response().Header(fasthttp.HeaderContentEncoding))
	})

	t.Run("falls back to the next accepted encoding", func(t *testing.T) {
		ctx := newTestCtx("GET", "/")
		ctx.Request().SetHeader(fasthttp.HeaderAcceptEncoding, "gzip;q=0, deflate;q=0.5")

		require.NoError(t, mw(ctx, func() error {
			ctx.SetBodyString(strings.Repeat("x", 128))
			return nil
		}))
		assert.Equal(t, "deflate", ctx.Response().Header(fasthttp.HeaderContentEncoding))
	})
}

func TestMetricsReleasedOnPanic(t *testing.T) {
	m, err := metrics.New(nil, nopLogger())
	require.NoError(t, err)

	mw := NewMetrics(m)
	ctx := newTestCtx("GET", "/")

	assert.Panics(t, func() {
		_ = mw(ctx, func() error { panic("downstream blew up") })
	})

	assert.Equal(t, float64(0), testutil.ToFloat64(m.RequestsInFlight),
		"in-flight gauge must be released when the dispatch unwinds")
	assert.Equal(t, float64(1), m.RequestCount("GET", "500"),
		"a panicking dispatch is still counted as a failure")
}

func TestMetricsCountsByStatus(t *testing.T) {
	m, err := metrics.New(nil, nopLogger())
	require.NoError(t, err)

	mw := NewMetrics(m)

	ok := newTestCtx("GET", "/")
	require.NoError(t, mw(ok, func() error {
		return ok.SetStatus(fasthttp.StatusOK)
	}))

	failing := newTestCtx("GET", "/")
	require.Error(t, mw(failing, func() error {
		return types.NewErrorf("boom")
	}))

	assert.Equal(t, float64(1), m.RequestCount("GET", "200"))
	assert.Equal(t, float64(1), m.RequestCount("GET", "500"))
}

func TestLoggingPassesErrorsThrough(t *testing.T) {
	mw := NewLogging(nopLogger(), nil)
	ctx := newTestCtx("GET", "/")

	sentinel := types.NewErrorf("downstream failed")
	err := mw(ctx, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

package peel

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/peelkit/peel/logger"
	"github.com/peelkit/peel/types"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	app, err := New(nil, logger.NewZapWrapper(zap.NewNop()))
	require.NoError(t, err)
	return app
}

func dispatch(app *Application, method, url string) *fasthttp.RequestCtx {
	rctx := &fasthttp.RequestCtx{}
	rctx.Request.Header.SetMethod(method)
	rctx.Request.SetRequestURI(url)
	app.Handler()(rctx)
	return rctx
}

func TestApplicationDispatchSuccess(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		ctx.SetBodyString("hello")
		return next()
	}))

	rctx := dispatch(app, "GET", "/")
	assert.Equal(t, fasthttp.StatusOK, rctx.Response.StatusCode())
	assert.Equal(t, "hello", string(rctx.Response.Body()))
}

func TestApplicationDefaultNotFound(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return next()
	}))

	rctx := dispatch(app, "GET", "/nowhere")
	assert.Equal(t, fasthttp.StatusNotFound, rctx.Response.StatusCode())
	assert.Equal(t, "Not Found", string(rctx.Response.Body()))
}

func TestApplicationErrorFallback(t *testing.T) {
	app := newTestApp(t)

	reported := 0
	var reportedErr error
	app.OnError(func(err error, ctx *Context) {
		reported++
		reportedErr = err
	})

	boom := errors.New("database exploded: credentials leaked")
	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return boom
	}))

	rctx := dispatch(app, "GET", "/")

	assert.Equal(t, 1, reported, "error channel is called exactly once")
	assert.ErrorIs(t, reportedErr, boom)
	assert.Equal(t, fasthttp.StatusInternalServerError, rctx.Response.StatusCode())
	assert.NotContains(t, string(rctx.Response.Body()), "database exploded",
		"internal error details must not leak to the client")
	assert.Contains(t, string(rctx.Response.Body()), "Internal Server Error")
}

func TestApplicationExposedHTTPError(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return types.NewHTTPError(fasthttp.StatusBadRequest, "missing field: name")
	}))

	rctx := dispatch(app, "POST", "/")
	assert.Equal(t, fasthttp.StatusBadRequest, rctx.Response.StatusCode())
	assert.Contains(t, string(rctx.Response.Body()), "missing field: name")
}

func TestApplicationUnexposedHTTPError(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return types.NewHTTPErrorFrom(fasthttp.StatusBadGateway, errors.New("upstream secret"))
	}))

	rctx := dispatch(app, "GET", "/")
	assert.Equal(t, fasthttp.StatusBadGateway, rctx.Response.StatusCode())
	assert.NotContains(t, string(rctx.Response.Body()), "upstream secret")
}

func TestApplicationUseRejectsNil(t *testing.T) {
	app := newTestApp(t)
	err := app.Use(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMiddlewareIsNil)
}

func TestApplicationUseInvalidatesComposition(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return next()
	}))
	dispatch(app, "GET", "/")

	ranLate := false
	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		ranLate = true
		return next()
	}))

	dispatch(app, "GET", "/")
	assert.True(t, ranLate, "middleware added after a dispatch must join the next one")
}

func TestApplicationPipelineOrderAcrossDispatches(t *testing.T) {
	app := newTestApp(t)

	var log []string
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, app.Use(func(ctx *Context, next Next) error {
			log = append(log, "enter "+name)
			err := next()
			log = append(log, "resume "+name)
			return err
		}))
	}

	dispatch(app, "GET", "/")
	dispatch(app, "GET", "/")

	assert.Equal(t, []string{
		"enter a", "enter b", "resume b", "resume a",
		"enter a", "enter b", "resume b", "resume a",
	}, log)
}

func TestApplicationNoBodyStatusCommit(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		ctx.SetBodyString("dropped")
		return ctx.SetStatus(fasthttp.StatusNoContent)
	}))

	rctx := dispatch(app, "GET", "/")
	assert.Equal(t, fasthttp.StatusNoContent, rctx.Response.StatusCode())
	assert.Empty(t, rctx.Response.Body())
}

func TestApplicationCommittedResponseUntouchedOnError(t *testing.T) {
	app := newTestApp(t)

	reported := 0
	app.OnError(func(err error, ctx *Context) { reported++ })

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		ctx.SetBodyString("partial")
		ctx.Response().setCommitted()
		return errors.New("late failure")
	}))

	rctx := dispatch(app, "GET", "/")

	assert.Equal(t, 1, reported, "failure is still reported")
	assert.Equal(t, "partial", string(rctx.Response.Body()),
		"no response mutation once the transport has the response")
}

func TestApplicationStreamBody(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		ctx.Response().SetBodyStream(strings.NewReader("streamed"), -1)
		return next()
	}))

	rctx := dispatch(app, "GET", "/")
	assert.Equal(t, "streamed", string(rctx.Response.Body()))
}

func TestApplicationJSONBody(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.Use(func(ctx *Context, next Next) error {
		return ctx.SetBodyJSON(map[string]int{"n": 42})
	}))

	rctx := dispatch(app, "GET", "/")
	assert.Equal(t, fasthttp.StatusOK, rctx.Response.StatusCode())
	assert.JSONEq(t, `{"n":42}`, string(rctx.Response.Body()))
	assert.Contains(t, string(rctx.Response.Header.ContentType()), "application/json")
}

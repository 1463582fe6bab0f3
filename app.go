package peel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peelkit/peel/config"
	"github.com/peelkit/peel/logger"
	"github.com/peelkit/peel/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// ErrorHandler receives every unrecovered pipeline failure exactly once,
// before the fallback response is written.
type ErrorHandler func(err error, ctx *Context)

// Application owns the ordered middleware sequence and dispatches one
// pipeline run per incoming request. The middleware list must not be
// mutated concurrently with in-flight requests.
type Application struct {
	config          *types.AppConfig
	logger          types.Logger
	onError         ErrorHandler
	mu              sync.RWMutex
	middlewares     []Middleware
	composed        Middleware
	server          *fasthttp.Server
	listener        net.Listener
	state           atomic.Value
	shutdownTimeout time.Duration
}

// New builds an Application with the supplied configuration and
// error-reporting channel. A nil config falls back to defaults; a nil
// logger gets a default zap-backed one.
func New(cfg *types.AppConfig, log types.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}

	if log == nil {
		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return nil, types.WrapError(err, "failed to create logger")
		}
	}

	app := &Application{
		config:          cfg,
		logger:          log,
		shutdownTimeout: 5 * time.Second,
	}
	if cfg.Server != nil && cfg.Server.ShutdownTimeout > 0 {
		app.shutdownTimeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	app.onError = app.reportError
	app.state.Store(StateStopped)

	return app, nil
}

// Logger returns the injected error-reporting channel.
func (a *Application) Logger() types.Logger { return a.logger }

// Config returns the application configuration.
func (a *Application) Config() *types.AppConfig { return a.config }

// OnError replaces the default error reporter. The handler is still called
// exactly once per unrecovered failure.
func (a *Application) OnError(handler ErrorHandler) {
	if handler != nil {
		a.onError = handler
	}
}

// Use appends a middleware to the pipeline and invalidates the cached
// composition, so the next dispatch reflects the updated sequence.
func (a *Application) Use(mw Middleware) error {
	if mw == nil {
		return types.Errorf(types.ErrMiddlewareIsNil, "index %d", len(a.middlewares))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.middlewares = append(a.middlewares, mw)
	a.composed = nil
	return nil
}

func (a *Application) composedChain() (Middleware, error) {
	a.mu.RLock()
	composed := a.composed
	a.mu.RUnlock()

	if composed != nil {
		return composed, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.composed == nil {
		composed, err := Compose(a.middlewares)
		if err != nil {
			return nil, err
		}
		a.composed = composed
	}
	return a.composed, nil
}

// Handler is the sole transport entry point: one invocation runs one full
// dispatch cycle against the supplied raw request/response pair.
func (a *Application) Handler() fasthttp.RequestHandler {
	return func(rctx *fasthttp.RequestCtx) {
		ctx := NewContext(a, rctx)

		composed, err := a.composedChain()
		if err != nil {
			a.handleError(ctx, err)
			return
		}

		if err := composed(ctx, nil); err != nil {
			a.handleError(ctx, err)
			return
		}

		a.respond(ctx)
	}
}

// respond commits the final facade state to the transport. Facade setters
// write through as they happen, so this step only applies defaults and
// marks the response committed.
func (a *Application) respond(ctx *Context) {
	response := ctx.Response()
	if response.Committed() {
		return
	}
	defer response.setCommitted()

	if response.BodyKind() == BodyNone && !response.StatusSet() {
		response.Raw().SetStatusCode(fasthttp.StatusNotFound)
		response.SetBodyString(fasthttp.StatusMessage(fasthttp.StatusNotFound))
		return
	}

	if statusOmitsBody(response.Status()) {
		response.ClearBody()
	}
}

func (a *Application) handleError(ctx *Context, err error) {
	a.onError(err, ctx)
	a.writeFallback(ctx, err)
}

func (a *Application) reportError(err error, ctx *Context) {
	a.logger.Error("Request pipeline failed",
		zap.Error(err),
		zap.String("method", ctx.Method()),
		zap.String("path", ctx.Path()),
	)
}

// writeFallback emits the generic error response. Internal error details
// never reach the client; an exposable HTTPError supplies its own status
// and message.
func (a *Application) writeFallback(ctx *Context, err error) {
	response := ctx.Response()
	if response.Committed() {
		return
	}
	defer response.setCommitted()

	status := fasthttp.StatusInternalServerError
	message := "An unexpected error occurred"

	var httpErr *types.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code >= 100 && httpErr.Code <= 599 {
		status = httpErr.Code
		if httpErr.Expose && httpErr.Message != "" {
			message = httpErr.Message
		}
	}

	raw := response.Raw()
	raw.ResetBody()
	raw.SetStatusCode(status)
	raw.Header.SetContentType(contentTypeJSON)
	raw.Header.Set(fasthttp.HeaderCacheControl, "no-cache, no-store, must-revalidate")

	if requestID := ctx.Header("X-Request-ID"); requestID != "" {
		raw.Header.Set("X-Request-ID", requestID)
	}

	raw.SetBodyString(fmt.Sprintf(`{"error":%q,"message":%q}`,
		fasthttp.StatusMessage(status), message))
}

// Start brings up the fasthttp server on the configured address. The
// transport owns connection handling; closed connections surface as no-ops
// at response write time, never as pipeline failures.
func (a *Application) Start() error {
	if !a.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrAppAlreadyRunning
	}

	serverCfg := a.config.Server
	if serverCfg == nil {
		serverCfg = config.Defaults().Server
	}
	a.server = &fasthttp.Server{
		Handler:      a.Handler(),
		Name:         a.config.Name,
		ReadTimeout:  time.Duration(serverCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverCfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(serverCfg.IdleTimeout) * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		a.state.Store(StateStopped)
		return types.WrapError(err, "listener failed")
	}
	a.listener = listener

	go func() {
		if err := a.server.Serve(listener); err != nil {
			a.logger.Error("HTTP server failed", zap.Error(err))
			a.state.Store(StateStopped)
		}
	}()

	a.state.Store(StateRunning)
	a.logger.Info("Application started",
		zap.String("name", a.config.Name),
		zap.String("address", addr))

	return nil
}

// Stop shuts the server down gracefully within the shutdown timeout.
func (a *Application) Stop() error {
	if !a.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrAppNotRunning
	}
	defer a.state.Store(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if a.server == nil {
			return nil
		}
		return a.server.ShutdownWithContext(gCtx)
	})

	if err := g.Wait(); err != nil {
		a.logger.Warn("Application stop timed out", zap.Error(err))
		return nil
	}

	a.logger.Info("Application stopped gracefully")
	return nil
}

// IsRunning reports whether the server is accepting requests.
func (a *Application) IsRunning() bool {
	return a.state.Load().(State) == StateRunning
}

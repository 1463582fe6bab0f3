package middleware

import (
	"go.uber.org/zap"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/metrics"
	"github.com/peelkit/peel/types"
	"github.com/peelkit/peel/utils"
)

// Deps carries the collaborators the config-driven middleware need. Store
// and Collector may be nil when the corresponding middleware is disabled.
type Deps struct {
	Logger    types.Logger
	Store     types.Cache
	Collector *metrics.Metrics
}

// Register wires the middleware enabled in cfg onto the application, in the
// order recovery, logging, request id, metrics, CORS, body limit,
// compression, cache.
func Register(app *peel.Application, cfg *types.MiddlewaresConfig, deps Deps) error {
	if cfg == nil {
		return nil
	}

	logger := deps.Logger
	if logger == nil {
		logger = app.Logger()
	}

	if enabled(cfg.Recovery) {
		recoveryCfg := &RecoveryConfig{StackTrace: true}
		unmarshalParams(cfg.Recovery, recoveryCfg, logger)
		if err := app.Use(NewRecovery(logger, recoveryCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.Logging) {
		loggingCfg := &LoggingConfig{LogLevel: "info"}
		unmarshalParams(cfg.Logging, loggingCfg, logger)
		if err := app.Use(NewLogging(logger, loggingCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.RequestID) {
		requestIDCfg := &RequestIDConfig{Generate: true}
		unmarshalParams(cfg.RequestID, requestIDCfg, logger)
		if err := app.Use(NewRequestID(requestIDCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.Metrics) && deps.Collector != nil {
		if err := app.Use(NewMetrics(deps.Collector)); err != nil {
			return err
		}
	}

	if enabled(cfg.CORS) {
		corsCfg := &CORSConfig{}
		unmarshalParams(cfg.CORS, corsCfg, logger)
		if err := app.Use(NewCORS(corsCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.BodyLimit) {
		bodyLimitCfg := &BodyLimitConfig{}
		unmarshalParams(cfg.BodyLimit, bodyLimitCfg, logger)
		if err := app.Use(NewBodyLimit(bodyLimitCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.Compression) {
		compressionCfg := &CompressionConfig{}
		unmarshalParams(cfg.Compression, compressionCfg, logger)
		if err := app.Use(NewCompression(compressionCfg)); err != nil {
			return err
		}
	}

	if enabled(cfg.Cache) && deps.Store != nil {
		cacheCfg := &CacheConfig{}
		unmarshalParams(cfg.Cache, cacheCfg, logger)
		if err := app.Use(NewCache(deps.Store, logger, cacheCfg)); err != nil {
			return err
		}
	}

	return nil
}

func enabled(item *types.MiddlewareItemConfig) bool {
	return item != nil && item.Enabled
}

func unmarshalParams[T any](item *types.MiddlewareItemConfig, target *T, logger types.Logger) {
	if item == nil || item.Params == nil {
		return
	}
	if err := utils.UnmarshalConfig(item.Params, target); err != nil {
		logger.Error("Failed to unmarshal middleware params", zap.Error(err))
	}
}

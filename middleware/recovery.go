package middleware

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/types"
	"github.com/peelkit/peel/utils"
)

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

// NewRecovery converts panics in downstream middleware into pipeline errors
// so the dispatcher's error path handles them like any other failure.
func NewRecovery(logger types.Logger, cfg *RecoveryConfig) peel.Middleware {
	if cfg == nil {
		cfg = &RecoveryConfig{StackTrace: true}
	}

	stackBufPool := sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 4096)
			return &buf
		},
	}

	getStackTrace := func() string {
		buf := stackBufPool.Get().(*[]byte)
		defer stackBufPool.Put(buf)

		n := runtime.Stack(*buf, false)
		if n == len(*buf) {
			bigBuf := make([]byte, 65536)
			n = runtime.Stack(bigBuf, false)
			return utils.BytesToString(bigBuf[:n])
		}

		stack := make([]byte, n)
		copy(stack, (*buf)[:n])
		return utils.BytesToString(stack)
	}

	return func(ctx *peel.Context, next peel.Next) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				fields := []zap.Field{
					zap.Any("panic", rec),
					zap.String("method", ctx.Method()),
					zap.String("path", ctx.Path()),
				}
				if cfg.StackTrace {
					fields = append(fields, zap.String("stack", getStackTrace()))
				}
				logger.Error("Recovered from panic", fields...)

				err = types.Errorf(types.ErrPanicRecovered, "%v", rec)
			}
		}()

		return next()
	}
}

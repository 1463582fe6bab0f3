package middleware

import (
	"strconv"
	"time"

	"github.com/peelkit/peel"
	"github.com/peelkit/peel/metrics"
)

// NewMetrics records request counts, durations and in-flight gauge on the
// supplied collector. Recording happens in a defer so a panic unwinding
// through this middleware still releases the gauge and counts the request;
// failed dispatches are counted under status 500 since that is what the
// fallback response reports.
func NewMetrics(m *metrics.Metrics) peel.Middleware {
	return func(ctx *peel.Context, next peel.Next) (err error) {
		start := time.Now()
		m.RequestsInFlight.Inc()

		failed := true
		defer func() {
			m.RequestsInFlight.Dec()
			m.RequestDuration.WithLabelValues(ctx.Method()).Observe(time.Since(start).Seconds())

			status := ctx.Status()
			if failed {
				status = 500
			}
			m.RequestsTotal.WithLabelValues(ctx.Method(), strconv.Itoa(status)).Inc()
		}()

		err = next()
		failed = err != nil
		return err
	}
}

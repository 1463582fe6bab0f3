// Package peel implements an onion-model middleware pipeline over fasthttp.
// Middleware run in registration order; code after a middleware's next()
// call runs only once everything downstream has fully completed, and errors
// returned downstream surface at every upstream next() call site.
package peel

import (
	"github.com/peelkit/peel/types"
)

// Next resumes the remainder of the pipeline. It may be called at most once
// per middleware invocation.
type Next func() error

// Middleware is one unit of the request pipeline.
type Middleware func(ctx *Context, next Next) error

// Compose collapses an ordered middleware sequence into a single middleware.
// Nil entries are rejected here, before any request is processed.
func Compose(middlewares []Middleware) (Middleware, error) {
	for i, mw := range middlewares {
		if mw == nil {
			return nil, types.Errorf(types.ErrMiddlewareIsNil, "index %d", i)
		}
	}

	chain := make([]Middleware, len(middlewares))
	copy(chain, middlewares)

	return func(ctx *Context, next Next) error {
		// cursor guards against a continuation being invoked twice within
		// one dispatch; that would silently re-run downstream middleware.
		cursor := -1

		var dispatch func(i int) error
		dispatch = func(i int) error {
			if i <= cursor {
				return types.Errorf(types.ErrNextCalledMultiple, "index %d", i)
			}
			cursor = i

			if i == len(chain) {
				if next != nil {
					return next()
				}
				return nil
			}

			return chain[i](ctx, func() error {
				return dispatch(i + 1)
			})
		}

		return dispatch(0)
	}, nil
}

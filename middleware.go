// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import "context"

// Middleware is a named transformer of a [Handler].
//
// HandleMiddleware receives the input and the next handler in the chain.
// It may inspect or mutate the input before calling next, inspect or
// mutate the output after next returns, recover from the error returned by
// next, or short-circuit by returning without calling next at all.
//
// Errors returned by next propagate to the caller unless the middleware
// explicitly replaces them.
type Middleware[In, Out any] interface {
	// ID returns the name used for positioning and removal. IDs
	// are unique by convention only.
	ID() string

	// HandleMiddleware invokes the middleware behavior.
	HandleMiddleware(ctx context.Context, input In, next Handler[In, Out]) (Out, error)
}

// MiddlewareFunc returns a [Middleware] with the given ID invoking fn.
func MiddlewareFunc[In, Out any](
	id string, fn func(ctx context.Context, input In, next Handler[In, Out]) (Out, error)) Middleware[In, Out] {
	return &middlewareFunc[In, Out]{id: id, fn: fn}
}

type middlewareFunc[In, Out any] struct {
	id string
	fn func(context.Context, In, Handler[In, Out]) (Out, error)
}

func (m *middlewareFunc[In, Out]) ID() string {
	return m.id
}

func (m *middlewareFunc[In, Out]) HandleMiddleware(ctx context.Context, input In, next Handler[In, Out]) (Out, error) {
	return m.fn(ctx, input, next)
}

// Decorate returns the [Handler] obtained by wrapping next with m.
//
// Invoking the returned handler runs the pre-logic of m, then next,
// then the post-logic of m.
func Decorate[In, Out any](m Middleware[In, Out], next Handler[In, Out]) Handler[In, Out] {
	return &decoratedHandler[In, Out]{next: next, with: m}
}

type decoratedHandler[In, Out any] struct {
	next Handler[In, Out]
	with Middleware[In, Out]
}

func (h *decoratedHandler[In, Out]) Handle(ctx context.Context, input In) (Out, error) {
	return h.with.HandleMiddleware(ctx, input, h.next)
}

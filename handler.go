//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.0/internal/x/dslx/fxcore.go
//

package opstack

import "context"

// Handler is the unit of execution of an operation.
//
// A Handler maps an input to an output or fails with an error. Per-operation
// attributes travel inside the context (see [OperationContextFrom]), and the
// context also carries cancellation for the suspension points (body reads
// and the transport call).
//
// Resource cleanup contract: when a Handler receives a closeable resource as
// input and returns an error, it is responsible for closing that resource
// before returning. This ensures that composed handlers do not leak
// resources on partial failure. See [TLSHandshakeHandler] for an example.
type Handler[In, Out any] interface {
	Handle(ctx context.Context, input In) (Out, error)
}

// HandlerFunc adapts a function to the [Handler] interface.
//
// Use this for terminal handlers in tests and for ad-hoc glue code.
type HandlerFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Handle implements [Handler].
func (f HandlerFunc[In, Out]) Handle(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// Unit is a type not containing any value (analogous to an
// explicit `void` type in C and C++).
//
// Use this type to construct a [Handler] that takes no argument.
type Unit struct{}

// Compose2 chains two [Handler] instances by continuation.
//
// The output of h1 becomes the input of h2. If h1 fails, h2 is
// not called and the error is returned unchanged.
func Compose2[A, B, C any](h1 Handler[A, B], h2 Handler[B, C]) Handler[A, C] {
	return &compose2[A, B, C]{h1, h2}
}

type compose2[A, B, C any] struct {
	h1 Handler[A, B]
	h2 Handler[B, C]
}

func (c *compose2[A, B, C]) Handle(ctx context.Context, input A) (C, error) {
	res, err := c.h1.Handle(ctx, input)
	if err != nil {
		var zero C
		return zero, err
	}
	return c.h2.Handle(ctx, res)
}

// Compose3 chains three [Handler] instances.
func Compose3[A, B, C, D any](h1 Handler[A, B], h2 Handler[B, C], h3 Handler[C, D]) Handler[A, D] {
	return Compose2(h1, Compose2(h2, h3))
}

// Compose4 chains four [Handler] instances.
func Compose4[A, B, C, D, E any](h1 Handler[A, B], h2 Handler[B, C], h3 Handler[C, D], h4 Handler[D, E]) Handler[A, E] {
	return Compose2(h1, Compose3(h2, h3, h4))
}

// Compose5 chains five [Handler] instances.
func Compose5[A, B, C, D, E, F any](
	h1 Handler[A, B], h2 Handler[B, C], h3 Handler[C, D], h4 Handler[D, E], h5 Handler[E, F]) Handler[A, F] {
	return Compose2(h1, Compose4(h2, h3, h4, h5))
}

// Compose6 chains six [Handler] instances.
func Compose6[A, B, C, D, E, F, G any](
	h1 Handler[A, B], h2 Handler[B, C], h3 Handler[C, D], h4 Handler[D, E], h5 Handler[E, F],
	h6 Handler[F, G]) Handler[A, G] {
	return Compose2(h1, Compose5(h2, h3, h4, h5, h6))
}

// Compose7 chains seven [Handler] instances.
func Compose7[A, B, C, D, E, F, G, H any](
	h1 Handler[A, B], h2 Handler[B, C], h3 Handler[C, D], h4 Handler[D, E], h5 Handler[E, F],
	h6 Handler[F, G], h7 Handler[G, H]) Handler[A, H] {
	return Compose2(h1, Compose6(h2, h3, h4, h5, h6, h7))
}

// Apply binds a fixed input to a [Handler], returning a [Handler] taking [Unit].
func Apply[A, B any](h Handler[A, B], input A) Handler[Unit, B] {
	return &apply[A, B]{h, input}
}

type apply[A, B any] struct {
	h     Handler[A, B]
	input A
}

func (a *apply[A, B]) Handle(ctx context.Context, _ Unit) (B, error) {
	return a.h.Handle(ctx, a.input)
}

// ConstHandler returns a [Handler] that ignores its input and always
// returns the given value.
func ConstHandler[B any](value B) Handler[Unit, B] {
	return &constHandler[B]{value}
}

type constHandler[B any] struct {
	value B
}

func (c *constHandler[B]) Handle(ctx context.Context, _ Unit) (B, error) {
	return c.value, nil
}

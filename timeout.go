// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"time"
)

// TimeoutMiddlewareID is the ID of the middleware returned by [NewTimeoutMiddleware].
const TimeoutMiddlewareID = "Timeout"

// NewTimeoutMiddleware returns a [Middleware] bounding the rest of the
// chain to the given timeout.
//
// The derived context is cancelled when the chain returns, so do not use
// it with outputs that keep reading the response body afterwards, such
// as [ByteStream] outputs.
func NewTimeoutMiddleware[In, Out any](timeout time.Duration) Middleware[In, Out] {
	return MiddlewareFunc(TimeoutMiddlewareID, func(ctx context.Context, input In, next Handler[In, Out]) (Out, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next.Handle(ctx, input)
	})
}

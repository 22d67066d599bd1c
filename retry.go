// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryMiddlewareID is the ID of [*RetryMiddleware].
const RetryMiddlewareID = "Retry"

// NewRetryMiddleware returns a [*RetryMiddleware] making at most
// maxAttempts attempts with exponential backoff between them.
//
// Register it in the finalize step so that each attempt rebuilds the
// request and runs the transport and the deserialize step again.
func NewRetryMiddleware[Out any](cfg *Config, maxAttempts int, logger SLogger) *RetryMiddleware[Out] {
	return &RetryMiddleware[Out]{
		ErrClassifier: cfg.ErrClassifier,
		IsRetryable:   IsRetryable,
		Logger:        logger,
		MaxAttempts:   maxAttempts,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// RetryMiddleware retries the rest of the chain on retryable errors.
//
// Requests whose body cannot be replayed (a non-seekable stream) are
// attempted exactly once. Each attempt receives a clone of the request
// builder and stores its 1-based number under [RetryAttemptKey]. The
// error of the last attempt is returned unchanged, except when the
// context is done while waiting, which returns a [*CanceledError].
//
// All fields are safe to modify after construction but before first use.
type RetryMiddleware[Out any] struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// IsRetryable decides whether an error deserves another attempt.
	IsRetryable func(err error) bool

	// Logger is the [SLogger] to use.
	Logger SLogger

	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// NewBackOff returns the policy for one operation invocation.
	NewBackOff func() backoff.BackOff
}

var _ Middleware[*RequestBuilder, any] = &RetryMiddleware[any]{}

// ID implements [Middleware].
func (m *RetryMiddleware[Out]) ID() string {
	return RetryMiddlewareID
}

// HandleMiddleware implements [Middleware].
func (m *RetryMiddleware[Out]) HandleMiddleware(
	ctx context.Context, builder *RequestBuilder, next Handler[*RequestBuilder, Out]) (Out, error) {
	oc := OperationContextFrom(ctx)
	if !builder.Body.Rewindable() || m.MaxAttempts <= 1 {
		RetryAttemptKey.Set(oc, 1)
		return next.Handle(ctx, builder)
	}

	var (
		attempt int
		output  Out
	)
	operation := func() error {
		attempt++
		RetryAttemptKey.Set(oc, attempt)
		out, err := next.Handle(ctx, builder.Clone())
		if err != nil {
			if !m.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = out
		return nil
	}
	notify := func(err error, delay time.Duration) {
		m.Logger.Info(
			"retryAttempt",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("err", err),
			slog.String("errClass", m.ErrClassifier.Classify(err)),
			invocationAttr(ctx),
			slog.String("operationName", oc.OperationName()),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.NewBackOff(), uint64(m.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		var zero Out
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) && !errors.As(err, new(*CanceledError)) {
			return zero, &CanceledError{Err: err}
		}
		return zero, err
	}
	return output, nil
}

// IsRetryable reports whether err is a transient failure: a transport
// failure not caused by cancellation, or a [*ServiceError] with status
// 429 or 5xx.
func IsRetryable(err error) bool {
	var (
		canceled *CanceledError
		send     *RequestSendError
		service  *ServiceError
	)
	switch {
	case errors.As(err, &canceled):
		return false
	case errors.As(err, &send):
		return true
	case errors.As(err, &service):
		return service.StatusCode == http.StatusTooManyRequests || service.StatusCode >= 500
	default:
		return false
	}
}

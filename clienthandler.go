// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient abstracts the [*http.Client] behavior.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClientHandler returns a [*ClientHandler] sending requests with client.
func NewClientHandler(cfg *Config, client HTTPClient, logger SLogger) *ClientHandler {
	return &ClientHandler{
		Client:        client,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ClientHandler is a terminal [Handler] sending a [*Request] with an [HTTPClient].
//
// Transport failures are returned as [*RequestSendError], or as
// [*CanceledError] when the context is done. The response body is a
// non-seekable [ByteStream] read lazily by the deserialize step.
// Closing the [*Response] closes the body.
//
// All fields are safe to modify after construction but before first use.
type ClientHandler struct {
	// Client sends the requests.
	Client HTTPClient

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ Handler[*Request, *Response] = &ClientHandler{}

// Handle implements [Handler].
func (h *ClientHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	t0 := h.TimeNow()
	deadline, _ := ctx.Deadline()
	h.Logger.Info(
		"httpClientDoStart",
		slog.Time("deadline", deadline),
		slog.String("httpMethod", httpReq.Method),
		slog.String("httpUrl", httpReq.URL.String()),
		invocationAttr(ctx),
		slog.Time("t", t0),
	)

	httpResp, err := h.Client.Do(httpReq)
	err = sendError(ctx, err)

	var statusCode int
	if httpResp != nil {
		statusCode = httpResp.StatusCode
	}
	h.Logger.Info(
		"httpClientDoDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", h.ErrClassifier.Classify(err)),
		slog.String("httpMethod", httpReq.Method),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.String("httpUrl", httpReq.URL.String()),
		invocationAttr(ctx),
		slog.Time("t0", t0),
		slog.Time("t", h.TimeNow()),
	)

	if err != nil {
		return nil, err
	}
	return newTransportResponse(httpResp, httpResp.Body), nil
}

// newHTTPRequest converts req for the transport. A request that cannot be
// represented as an [*http.Request] is rejected with an [*InputError].
func newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("cannot build HTTP request: %w", err)}
	}
	return httpReq, nil
}

// sendError maps a transport error to [*RequestSendError], wrapped in a
// [*CanceledError] when ctx is done.
func sendError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var canceled *CanceledError
	if errors.As(err, &canceled) {
		return err
	}
	err = &RequestSendError{Err: err}
	if ctx.Err() != nil {
		return &CanceledError{Err: err}
	}
	return err
}

// newTransportResponse converts an [*http.Response] whose resources are
// released by closer into a [*Response].
func newTransportResponse(httpResp *http.Response, closer io.Closer) *Response {
	body := NoBody
	if httpResp.Body != nil && httpResp.Body != http.NoBody {
		body = FromReaderLength(httpResp.Body, httpResp.ContentLength)
	}
	resp := NewResponse(httpResp.StatusCode, HeadersFromHTTP(httpResp.Header), body)
	resp.closer = closer
	return resp
}

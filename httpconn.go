//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/httpslog/httpslog.go
//

package opstack

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// HTTPConn is an HTTP transport bound to a single connection.
//
// Each round trip emits httpRoundTripStart and httpRoundTripDone events
// and the response body is wrapped to emit httpBodyStreamStart and
// httpBodyStreamDone events.
//
// The caller is responsible for calling [*HTTPConn.Close].
//
// Construct using [*HTTPConnHandler].
type HTTPConn struct {
	closeIdle func()
	conn      net.Conn
	txp       http.RoundTripper

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ http.RoundTripper = &HTTPConn{}

// RoundTrip implements [http.RoundTripper].
func (hc *HTTPConn) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	common := []any{
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", req.URL.String()),
		slog.Any("httpRequestHeaders", req.Header),
		invocationAttr(ctx),
		slog.String("localAddr", safeconn.LocalAddr(hc.conn)),
		slog.String("protocol", safeconn.Network(hc.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(hc.conn)),
	}
	t0 := hc.TimeNow()
	deadline, _ := ctx.Deadline()
	hc.Logger.Info("httpRoundTripStart", append(common, slog.Time("deadline", deadline), slog.Time("t", t0))...)

	resp, err := hc.txp.RoundTrip(req)

	var (
		statusCode int
		headers    http.Header
	)
	if resp != nil {
		statusCode = resp.StatusCode
		headers = resp.Header
	}
	hc.Logger.Info("httpRoundTripDone", append(common,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", hc.ErrClassifier.Classify(err)),
		slog.Any("httpResponseHeaders", headers),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.Time("t0", t0),
		slog.Time("t", hc.TimeNow()),
	)...)

	if err != nil {
		return nil, err
	}
	resp.Body = observeBody(ctx, resp.Body, hc.conn, hc.ErrClassifier, hc.Logger, hc.TimeNow)
	return resp, nil
}

// Close closes idle transport connections and the underlying connection.
func (hc *HTTPConn) Close() error {
	hc.closeIdle()
	return hc.conn.Close()
}

// Conn returns the underlying [net.Conn].
func (hc *HTTPConn) Conn() net.Conn {
	return hc.conn
}

// NewHTTPConnHandler returns a new [*HTTPConnHandler].
//
// Use T = [net.Conn] for plaintext HTTP and T = [TLSConn] for HTTPS.
func NewHTTPConnHandler[T net.Conn](cfg *Config, logger SLogger) *HTTPConnHandler[T] {
	return &HTTPConnHandler[T]{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// HTTPConnHandler turns a connection into an [*HTTPConn].
//
// The protocol is selected using ALPN: "h2" selects HTTP/2 and anything
// else selects HTTP/1.1 without keep-alives. The connection is consumed
// by a single-use dialer, so the [*HTTPConn] never dials on its own.
//
// All fields are safe to modify after construction but before first use.
type HTTPConnHandler[T net.Conn] struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var (
	_ Handler[net.Conn, *HTTPConn] = &HTTPConnHandler[net.Conn]{}
	_ Handler[TLSConn, *HTTPConn]  = &HTTPConnHandler[TLSConn]{}
)

// Handle implements [Handler].
func (h *HTTPConnHandler[T]) Handle(ctx context.Context, conn T) (*HTTPConn, error) {
	var alpn string
	if cs, ok := any(conn).(interface{ ConnectionState() tls.ConnectionState }); ok {
		alpn = cs.ConnectionState().NegotiatedProtocol
	}

	dialer := sud.NewSingleUseDialer(conn)
	hc := &HTTPConn{
		conn:          conn,
		ErrClassifier: h.ErrClassifier,
		Logger:        h.Logger,
		TimeNow:       h.TimeNow,
	}
	if alpn == "h2" {
		txp := &http2.Transport{DialTLSContext: dialer.DialTLSContext}
		hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
		return hc, nil
	}
	txp := &http.Transport{
		DialContext:       dialer.DialContext,
		DialTLSContext:    dialer.DialContext,
		DisableKeepAlives: true,
	}
	hc.txp, hc.closeIdle = txp, txp.CloseIdleConnections
	return hc, nil
}

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package opstack

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnHandler returns a new [*ObserveConnHandler].
func NewObserveConnHandler(cfg *Config, logger SLogger) *ObserveConnHandler {
	return &ObserveConnHandler{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnHandler wraps a [net.Conn] to log its I/O.
//
// Reads, writes and deadline changes are logged at Debug level, while
// close is logged at Info level. All events carry the invocation ID of
// the operation that created the connection.
//
// All fields are safe to modify after construction but before first use.
type ObserveConnHandler struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ Handler[net.Conn, net.Conn] = &ObserveConnHandler{}

// Handle implements [Handler].
func (h *ObserveConnHandler) Handle(ctx context.Context, conn net.Conn) (net.Conn, error) {
	observed := &observedConn{
		conn: conn,
		h:    h,
		peer: []any{
			invocationAttr(ctx),
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		},
	}
	return observed, nil
}

type observedConn struct {
	closeOnce sync.Once
	conn      net.Conn
	h         *ObserveConnHandler
	peer      []any
}

// args returns the per-connection attributes followed by extra.
func (c *observedConn) args(extra ...any) []any {
	out := make([]any, 0, len(c.peer)+len(extra))
	out = append(out, c.peer...)
	return append(out, extra...)
}

func (c *observedConn) done(t0 time.Time, err error, extra ...any) []any {
	return c.args(append([]any{
		slog.Any("err", err),
		slog.String("errClass", c.h.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.h.TimeNow()),
	}, extra...)...)
}

// Close closes the connection once. Subsequent calls return [net.ErrClosed].
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeOnce.Do(func() {
		t0 := c.h.TimeNow()
		c.h.Logger.Info("closeStart", c.args(slog.Time("t", t0))...)
		err = c.conn.Close()
		c.h.Logger.Info("closeDone", c.done(t0, err)...)
	})
	return
}

func (c *observedConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.h.TimeNow()
	c.h.Logger.Debug("readStart", c.args(slog.Int("ioBufferSize", len(buf)), slog.Time("t", t0))...)
	count, err := c.conn.Read(buf)
	c.h.Logger.Debug("readDone", c.done(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

func (c *observedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *observedConn) SetDeadline(t time.Time) error {
	c.logDeadline("setDeadline", t)
	return c.conn.SetDeadline(t)
}

func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.logDeadline("setReadDeadline", t)
	return c.conn.SetReadDeadline(t)
}

func (c *observedConn) SetWriteDeadline(t time.Time) error {
	c.logDeadline("setWriteDeadline", t)
	return c.conn.SetWriteDeadline(t)
}

func (c *observedConn) logDeadline(event string, deadline time.Time) {
	c.h.Logger.Debug(event, c.args(slog.Time("deadline", deadline), slog.Time("t", c.h.TimeNow()))...)
}

func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.h.TimeNow()
	c.h.Logger.Debug("writeStart", c.args(slog.Int("ioBufferSize", len(data)), slog.Time("t", t0))...)
	count, err := c.conn.Write(data)
	c.h.Logger.Debug("writeDone", c.done(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

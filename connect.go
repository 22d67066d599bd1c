//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package opstack

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*ConnectHandler] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectHandler returns a new [*ConnectHandler] using [Config.Dialer].
//
// The network argument must be either "tcp" or "udp".
func NewConnectHandler(cfg *Config, network string, logger SLogger) *ConnectHandler {
	return &ConnectHandler{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Network:       network,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectHandler dials a [netip.AddrPort] using a configured network.
//
// Returns either a valid [net.Conn] or an error, never both. The
// connectStart and connectDone events carry the invocation ID of the
// operation being executed, if any.
//
// All fields are safe to modify after construction but before first use.
type ConnectHandler struct {
	// Dialer is the [Dialer] to use.
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Network is the network to use (either "tcp" or "udp").
	Network string

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ Handler[netip.AddrPort, net.Conn] = &ConnectHandler{}

// Handle implements [Handler].
func (h *ConnectHandler) Handle(ctx context.Context, address netip.AddrPort) (net.Conn, error) {
	t0 := h.TimeNow()
	deadline, _ := ctx.Deadline()
	endpoint := address.String()
	h.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		invocationAttr(ctx),
		slog.String("protocol", h.Network),
		slog.String("remoteAddr", endpoint),
		slog.Time("t", t0),
	)

	conn, err := h.Dialer.DialContext(ctx, h.Network, endpoint)

	h.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", h.ErrClassifier.Classify(err)),
		invocationAttr(ctx),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", h.Network),
		slog.String("remoteAddr", endpoint),
		slog.Time("t0", t0),
		slog.Time("t", h.TimeNow()),
	)
	return conn, err
}

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/tlsdialer.go
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package opstack

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// TLSEngine creates client [TLSConn] instances.
type TLSEngine interface {
	// Client builds a new client [TLSConn].
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string

	// Parrot returns the configured parrot or an empty string.
	Parrot() string
}

// TLSEngineStdlib implements [TLSEngine] using [tls.Client].
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Client implements [TLSEngine].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine]. It returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// Parrot implements [TLSEngine]. It returns "".
func (TLSEngineStdlib) Parrot() string {
	return ""
}

// TLSConn abstracts over [*tls.Conn].
type TLSConn interface {
	ConnectionState() tls.ConnectionState
	HandshakeContext(ctx context.Context) error
	net.Conn
}

// NewTLSHandshakeHandler returns a new [*TLSHandshakeHandler] using a
// clone of the given [*tls.Config] for every handshake.
func NewTLSHandshakeHandler(cfg *Config, tlsConfig *tls.Config, logger SLogger) *TLSHandshakeHandler {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeHandler{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeHandler performs a TLS handshake over an existing [net.Conn].
//
// Returns either a valid [TLSConn] or an error, never both. On failure,
// the input connection is closed.
//
// All fields are safe to modify after construction but before first use.
type TLSHandshakeHandler struct {
	// Config is cloned before each handshake.
	Config *tls.Config

	// Engine is the [TLSEngine] to use.
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ Handler[net.Conn, TLSConn] = &TLSHandshakeHandler{}

// Handle implements [Handler].
func (h *TLSHandshakeHandler) Handle(ctx context.Context, conn net.Conn) (TLSConn, error) {
	runtimex.Assert(h.Config != nil)
	config := h.Config.Clone()
	config.Time = h.TimeNow

	common := []any{
		invocationAttr(ctx),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("tlsEngineName", h.Engine.Name()),
		slog.String("tlsParrot", h.Engine.Parrot()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	}

	tconn := h.Engine.Client(conn, config)
	t0 := h.TimeNow()
	deadline, _ := ctx.Deadline()
	h.Logger.Info("tlsHandshakeStart", append(common, slog.Time("deadline", deadline), slog.Time("t", t0))...)

	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()

	h.Logger.Info("tlsHandshakeDone", append(common,
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", h.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", h.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.Any("tlsPeerCerts", tlsPeerCerts(state, err)),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)...)

	if err != nil {
		tconn.Close()
		return nil, err
	}
	return tconn, nil
}

// tlsPeerCerts returns the raw peer certificates, preferring the
// certificate carried by a verification error when there is one.
func tlsPeerCerts(state tls.ConnectionState, err error) [][]byte {
	var (
		hostnameErr  x509.HostnameError
		authorityErr x509.UnknownAuthorityError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &hostnameErr) && hostnameErr.Certificate != nil:
		return [][]byte{hostnameErr.Certificate.Raw}
	case errors.As(err, &authorityErr) && authorityErr.Cert != nil:
		return [][]byte{authorityErr.Cert.Raw}
	case errors.As(err, &invalidErr) && invalidErr.Cert != nil:
		return [][]byte{invalidErr.Cert.Raw}
	}
	out := [][]byte{}
	for _, cert := range state.PeerCertificates {
		out = append(out, cert.Raw)
	}
	return out
}

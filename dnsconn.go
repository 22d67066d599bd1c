// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverstream"
	"github.com/bassosimone/minest"
)

// DNSProtocol is the protocol used to reach a DNS server.
type DNSProtocol string

const (
	// DNSOverUDP is DNS over UDP.
	DNSOverUDP = DNSProtocol("udp")

	// DNSOverTCP is DNS over TCP.
	DNSOverTCP = DNSProtocol("tcp")

	// DNSOverTLS is DNS over TLS.
	DNSOverTLS = DNSProtocol("dot")

	// DNSOverHTTPS is DNS over HTTPS.
	DNSOverHTTPS = DNSProtocol("doh")
)

// DNSExchanger sends DNS queries over an established connection.
//
// Implementations own the connection: Close releases it.
type DNSExchanger interface {
	Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error)
	Close() error
}

// DNSConn is a [DNSExchanger] over an established UDP, TCP or TLS connection.
//
// Exchange may be called multiple times. Construct using [*DNSConnHandler].
type DNSConn struct {
	conn     net.Conn
	protocol DNSProtocol

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ DNSExchanger = &DNSConn{}

// Close closes the underlying connection.
func (c *DNSConn) Close() error {
	return c.conn.Close()
}

// Conn returns the underlying connection.
func (c *DNSConn) Conn() net.Conn {
	return c.conn
}

// Protocol returns the [DNSProtocol] in use.
func (c *DNSConn) Protocol() DNSProtocol {
	return c.protocol
}

// unspecifiedServer is the placeholder server address for transports
// that exchange over an existing connection and never dial.
var unspecifiedServer = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)

// Exchange implements [DNSExchanger].
func (c *DNSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	lc := newDNSExchangeLog(ctx, c.conn, c.protocol, c.ErrClassifier, c.Logger, c.TimeNow)
	lc.start()
	resp, err := c.exchange(ctx, lc, query)
	lc.done(err)
	return resp, err
}

func (c *DNSConn) exchange(ctx context.Context, lc *dnsExchangeLog, query *dnscodec.Query) (*dnscodec.Response, error) {
	switch c.protocol {
	case DNSOverUDP:
		txp := minest.NewDNSOverUDPTransport(noDialer{}, unspecifiedServer)
		txp.ObserveRawQuery = lc.observeQuery
		txp.ObserveRawResponse = lc.observeResponse
		return txp.ExchangeWithConn(ctx, c.conn, query)

	case DNSOverTCP:
		txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(noDialer{}), unspecifiedServer)
		txp.ObserveRawQuery = lc.observeQuery
		txp.ObserveRawResponse = lc.observeResponse
		return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTCPStreamOpener(c.conn), query)

	case DNSOverTLS:
		tconn, ok := c.conn.(TLSConn)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a TLS connection", ErrUnsupportedDNSProtocol, c.protocol)
		}
		txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(noDialer{}), unspecifiedServer)
		txp.ObserveRawQuery = lc.observeQuery
		txp.ObserveRawResponse = lc.observeResponse
		return txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTLSStreamOpener(tconn), query)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDNSProtocol, c.protocol)
	}
}

// noDialer is a [Dialer] for DNS transports that exchange over an existing
// connection. Dialing through it is a programming error.
type noDialer struct{}

var _ Dialer = noDialer{}

func (noDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("opstack: DNS transport must not dial")
}

// NewDNSConnHandler returns a new [*DNSConnHandler] for the given protocol.
//
// Use T = [net.Conn] with [DNSOverUDP] and [DNSOverTCP] and T = [TLSConn]
// with [DNSOverTLS].
func NewDNSConnHandler[T net.Conn](cfg *Config, protocol DNSProtocol, logger SLogger) *DNSConnHandler[T] {
	return &DNSConnHandler[T]{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Protocol:      protocol,
		TimeNow:       cfg.TimeNow,
	}
}

// DNSConnHandler wraps a connection into a [*DNSConn].
//
// On failure, the input connection is closed.
type DNSConnHandler[T net.Conn] struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Protocol is the [DNSProtocol] to speak.
	Protocol DNSProtocol

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var (
	_ Handler[net.Conn, *DNSConn] = &DNSConnHandler[net.Conn]{}
	_ Handler[TLSConn, *DNSConn]  = &DNSConnHandler[TLSConn]{}
)

// Handle implements [Handler].
func (h *DNSConnHandler[T]) Handle(ctx context.Context, conn T) (*DNSConn, error) {
	switch h.Protocol {
	case DNSOverUDP, DNSOverTCP, DNSOverTLS:
	default:
		conn.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDNSProtocol, h.Protocol)
	}
	dc := &DNSConn{
		conn:          conn,
		protocol:      h.Protocol,
		ErrClassifier: h.ErrClassifier,
		Logger:        h.Logger,
		TimeNow:       h.TimeNow,
	}
	return dc, nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/bassosimone/runtimex"
)

// NewDirectHandler returns a [*DirectHandler] offering HTTP/2 and HTTP/1.1.
func NewDirectHandler(cfg *Config, logger SLogger) *DirectHandler {
	return &DirectHandler{
		Config:    cfg,
		Logger:    logger,
		TLSConfig: &tls.Config{NextProtos: []string{"h2", "http/1.1"}},
	}
}

// DirectHandler is a terminal [Handler] that sends every [*Request] over
// a dedicated connection without pooling.
//
// For each request it resolves the endpoint host using [Config.Resolver],
// then tries the addresses in order composing [*ConnectHandler],
// [*ObserveConnHandler], [CancelWatchHandler], [*TLSHandshakeHandler]
// (https only) and [*HTTPConnHandler]. The first address that connects
// is used for the round trip.
//
// The connection is bound to the context, so cancelling the context
// interrupts reading the response body. Closing the [*Response] closes
// the body and the connection.
//
// All fields are safe to modify after construction but before first use.
type DirectHandler struct {
	// Config is the common configuration.
	Config *Config

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TLSConfig is the template used for https endpoints. The ServerName
	// defaults to the endpoint host when empty.
	TLSConfig *tls.Config
}

var _ Handler[*Request, *Response] = &DirectHandler{}

// Handle implements [Handler].
func (h *DirectHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	endpoint := req.Endpoint()
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	hc, err := h.connect(ctx, endpoint)
	if err != nil {
		return nil, sendError(ctx, err)
	}

	httpResp, err := hc.RoundTrip(httpReq)
	if err != nil {
		hc.Close()
		return nil, sendError(ctx, err)
	}
	return newTransportResponse(httpResp, &directCloser{body: httpResp.Body, conn: hc}), nil
}

func (h *DirectHandler) connect(ctx context.Context, endpoint Endpoint) (*HTTPConn, error) {
	addrs, err := h.Config.Resolver.LookupHost(ctx, endpoint.Host())
	if err != nil {
		return nil, err
	}
	port := endpoint.Port()
	if port == 0 {
		port = endpoint.Scheme().DefaultPort()
	}

	var errv []error
	for _, addr := range addrs {
		dial, err := h.dialer(endpoint, netip.AddrPortFrom(addr, port))
		if err != nil {
			return nil, err
		}
		hc, err := dial.Handle(ctx, Unit{})
		if err == nil {
			return hc, nil
		}
		errv = append(errv, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errv...)
}

func (h *DirectHandler) dialer(endpoint Endpoint, address netip.AddrPort) (Handler[Unit, *HTTPConn], error) {
	cfg := h.Config
	connect := Apply[netip.AddrPort, net.Conn](NewConnectHandler(cfg, "tcp", h.Logger), address)
	observe := NewObserveConnHandler(cfg, h.Logger)

	switch endpoint.Scheme() {
	case SchemeHTTP:
		return Compose4(connect, observe, CancelWatchHandler{},
			NewHTTPConnHandler[net.Conn](cfg, h.Logger)), nil

	case SchemeHTTPS:
		runtimex.Assert(h.TLSConfig != nil)
		tlsConfig := h.TLSConfig.Clone()
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = endpoint.Host()
		}
		return Compose5(connect, observe, CancelWatchHandler{},
			NewTLSHandshakeHandler(cfg, tlsConfig, h.Logger), NewHTTPConnHandler[TLSConn](cfg, h.Logger)), nil

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, endpoint.Scheme())
	}
}

// directCloser releases the response body and then the connection.
//
// The transport may already have closed the connection when the body
// was closed, so [net.ErrClosed] from the connection is not an error.
type directCloser struct {
	body io.Closer
	conn *HTTPConn
}

func (c *directCloser) Close() error {
	bodyErr := c.body.Close()
	connErr := c.conn.Close()
	if errors.Is(connErr, net.ErrClosed) {
		connErr = nil
	}
	return errors.Join(bodyErr, connErr)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolver returns fixed addresses for every host.
type staticResolver []netip.Addr

func (r staticResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return r, nil
}

// Handle dials a dedicated plaintext connection and performs the round trip.
func TestDirectHandlerHTTP(t *testing.T) {
	srv := newEchoServer(t)
	logger, messages := newLockedLogger()
	h := NewDirectHandler(NewConfig(), logger)

	builder := NewRequestBuilder()
	builder.Method = http.MethodPost
	builder.Endpoint = endpointFromURL(t, srv.URL, "/direct")
	builder.Body = FromString("hello")

	resp, err := h.Handle(context.Background(), builder.Build())
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode())
	assert.Equal(t, "/direct", resp.Headers().Value("X-Path"))
	data, err := resp.Body().ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, resp.Close())

	got := messages()
	assert.Contains(t, got, "connectStart")
	assert.Contains(t, got, "httpRoundTripDone")
	assert.Contains(t, got, "closeDone")
}

// Handle performs the TLS handshake for https endpoints.
func TestDirectHandlerHTTPS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.TLS.ServerName))
	}))
	defer srv.Close()

	cfg := NewConfig()
	cfg.Resolver = staticResolver{netip.MustParseAddr("127.0.0.1")}
	h := NewDirectHandler(cfg, DefaultSLogger())
	h.TLSConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
		RootCAs:    srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs,
	}

	endpoint := endpointFromURL(t, srv.URL, "/")
	builder := NewRequestBuilder()
	builder.Endpoint = NewEndpoint(SchemeHTTPS, "example.com", endpoint.Port(), "/")

	resp, err := h.Handle(context.Background(), builder.Build())
	require.NoError(t, err)
	defer resp.Close()

	data, err := resp.Body().ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", string(data))
}

// Every address is tried and all failures are reported.
func TestDirectHandlerConnectFailure(t *testing.T) {
	var dialed []string
	cfg := NewConfig()
	cfg.Resolver = staticResolver{netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2")}
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			return nil, errors.New("connection refused")
		},
	}
	h := NewDirectHandler(cfg, DefaultSLogger())

	builder := NewRequestBuilder()
	builder.Endpoint = NewEndpoint(SchemeHTTP, "example.com", 0, "/")
	_, err := h.Handle(context.Background(), builder.Build())

	var sendErr *RequestSendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, []string{"10.0.0.1:80", "10.0.0.2:80"}, dialed)
}

// Unsupported schemes are rejected.
func TestDirectHandlerUnsupportedScheme(t *testing.T) {
	cfg := NewConfig()
	cfg.Resolver = staticResolver{netip.MustParseAddr("127.0.0.1")}
	h := NewDirectHandler(cfg, DefaultSLogger())

	builder := NewRequestBuilder()
	builder.Endpoint = NewEndpoint("ftp", "example.com", 21, "/")
	_, err := h.Handle(context.Background(), builder.Build())

	require.ErrorIs(t, err, ErrInvalidEndpoint)
}

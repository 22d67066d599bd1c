// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Handle wraps the HTTPConn and copies the configuration.
func TestDNSOverHTTPSConnHandler(t *testing.T) {
	url := "https://dns.google/dns-query"
	hc := newTestHTTPConn(nil, DefaultSLogger())

	h := NewDNSOverHTTPSConnHandler(NewConfig(), url, DefaultSLogger())
	dc, err := h.Handle(context.Background(), hc)

	require.NoError(t, err)
	assert.Same(t, hc, dc.HTTPConn())
	assert.Equal(t, url, dc.URL())
	assert.NotNil(t, dc.Logger)
	assert.NotNil(t, dc.TimeNow)
	assert.NotNil(t, dc.ErrClassifier)
}

// Close delegates to the underlying HTTPConn.
func TestDNSOverHTTPSConnClose(t *testing.T) {
	closeCalled := false
	hc := newTestHTTPConn(nil, DefaultSLogger())
	mockConn := newMinimalConn()
	mockConn.CloseFunc = func() error {
		closeCalled = true
		return nil
	}
	hc.conn = mockConn

	dc, err := NewDNSOverHTTPSConnHandler(NewConfig(), "https://dns.google/dns-query", DefaultSLogger()).Handle(
		context.Background(), hc)
	require.NoError(t, err)

	require.NoError(t, dc.Close())
	assert.True(t, closeCalled)
}

// Exchange propagates errors from the HTTP round trip and logs the exchange.
func TestDNSOverHTTPSConnExchangeRoundTripError(t *testing.T) {
	wantErr := errors.New("round trip error")
	logger, records := newCapturingLogger()
	hc := newTestHTTPConn(funcRoundTripper(func(req *http.Request) (*http.Response, error) {
		return nil, wantErr
	}), DefaultSLogger())

	dc, err := NewDNSOverHTTPSConnHandler(NewConfig(), "https://dns.google/dns-query", logger).Handle(
		context.Background(), hc)
	require.NoError(t, err)

	_, err = dc.Exchange(context.Background(), dnscodec.NewQuery("example.com", dns.TypeA))

	require.ErrorIs(t, err, wantErr)
	messages := recordMessages(*records)
	require.NotEmpty(t, messages)
	assert.Equal(t, "dnsExchangeStart", messages[0])
	assert.Equal(t, "dnsExchangeDone", messages[len(messages)-1])
	protocol, found := recordAttr((*records)[0], "serverProtocol")
	require.True(t, found)
	assert.Equal(t, "doh", protocol.String())
}

// Exchange returns an error when the URL is invalid.
func TestDNSOverHTTPSConnExchangeInvalidURL(t *testing.T) {
	hc := newTestHTTPConn(nil, DefaultSLogger())
	dc, err := NewDNSOverHTTPSConnHandler(NewConfig(), "\t", DefaultSLogger()).Handle(context.Background(), hc)
	require.NoError(t, err)

	_, err = dc.Exchange(context.Background(), dnscodec.NewQuery("example.com", dns.TypeA))

	require.Error(t, err)
}

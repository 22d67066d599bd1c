// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverhttps"
)

// DNSOverHTTPSConn is a [DNSExchanger] sending queries to a DoH URL
// through an [*HTTPConn] it owns.
//
// Construct using [*DNSOverHTTPSConnHandler].
type DNSOverHTTPSConn struct {
	httpConn *HTTPConn
	url      string

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ DNSExchanger = &DNSOverHTTPSConn{}

// Close closes the underlying [*HTTPConn].
func (c *DNSOverHTTPSConn) Close() error {
	return c.httpConn.Close()
}

// HTTPConn returns the underlying [*HTTPConn].
func (c *DNSOverHTTPSConn) HTTPConn() *HTTPConn {
	return c.httpConn
}

// URL returns the DoH URL.
func (c *DNSOverHTTPSConn) URL() string {
	return c.url
}

// Exchange implements [DNSExchanger].
func (c *DNSOverHTTPSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	lc := newDNSExchangeLog(ctx, c.httpConn.Conn(), DNSOverHTTPS, c.ErrClassifier, c.Logger, c.TimeNow)
	lc.start()
	resp, err := c.exchange(ctx, lc, query)
	lc.done(err)
	return resp, err
}

func (c *DNSOverHTTPSConn) exchange(ctx context.Context, lc *dnsExchangeLog, query *dnscodec.Query) (*dnscodec.Response, error) {
	httpReq, queryMsg, err := dnsoverhttps.NewRequestWithHook(ctx, query, c.url, lc.observeQuery)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpConn.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	return dnsoverhttps.ReadResponseWithHook(ctx, httpResp, queryMsg, lc.observeResponse)
}

// NewDNSOverHTTPSConnHandler returns a new [*DNSOverHTTPSConnHandler]
// for the given DoH URL (e.g., "https://dns.google/dns-query").
func NewDNSOverHTTPSConnHandler(cfg *Config, url string, logger SLogger) *DNSOverHTTPSConnHandler {
	return &DNSOverHTTPSConnHandler{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		URL:           url,
	}
}

// DNSOverHTTPSConnHandler wraps an [*HTTPConn] into a [*DNSOverHTTPSConn].
type DNSOverHTTPSConnHandler struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time

	// URL is the DoH URL.
	URL string
}

var _ Handler[*HTTPConn, *DNSOverHTTPSConn] = &DNSOverHTTPSConnHandler{}

// Handle implements [Handler].
func (h *DNSOverHTTPSConnHandler) Handle(ctx context.Context, httpConn *HTTPConn) (*DNSOverHTTPSConn, error) {
	dc := &DNSOverHTTPSConn{
		httpConn:      httpConn,
		url:           h.URL,
		ErrClassifier: h.ErrClassifier,
		Logger:        h.Logger,
		TimeNow:       h.TimeNow,
	}
	return dc, nil
}

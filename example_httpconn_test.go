// SPDX-License-Identifier: GPL-3.0-or-later

package opstack_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/bassosimone/opstack"
	"github.com/bassosimone/runtimex"
)

// This example shows how to compose an HTTPS dial pipeline that performs
// an HTTP round trip and reads the response body.
func Example_httpsRoundTrip() {
	// The caller owns the overall timeout: handlers never modify the context.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := opstack.NewConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// CancelWatchHandler binds the context lifecycle to the connection
	// lifecycle: when the context is done, the connection closes.
	tlsConfig := &tls.Config{ServerName: "dns.google", NextProtos: []string{"h2", "http/1.1"}}
	dialPipe := opstack.Compose6(
		opstack.NewEndpointHandler(netip.MustParseAddrPort("8.8.8.8:443")),
		opstack.NewConnectHandler(cfg, "tcp", logger),
		opstack.NewObserveConnHandler(cfg, logger),
		opstack.Handler[net.Conn, net.Conn](opstack.CancelWatchHandler{}),
		opstack.NewTLSHandshakeHandler(cfg, tlsConfig, logger),
		opstack.NewHTTPConnHandler[opstack.TLSConn](cfg, logger),
	)

	httpConn := runtimex.PanicOnError1(dialPipe.Handle(ctx, opstack.Unit{}))
	defer httpConn.Close()

	httpReq := runtimex.PanicOnError1(
		http.NewRequestWithContext(ctx, "GET", "https://dns.google/", http.NoBody))
	resp := runtimex.PanicOnError1(httpConn.RoundTrip(httpReq))
	defer resp.Body.Close()
	runtimex.Assert(resp.StatusCode < 400)

	body := runtimex.PanicOnError1(io.ReadAll(resp.Body))
	fmt.Printf("%s\n", extractTitle(string(body)))

	// Output:
	// Google Public DNS
}

// extractTitle extracts the content of the <title> tag from HTML.
func extractTitle(html string) string {
	const startTag = "<title>"
	const endTag = "</title>"
	start := strings.Index(html, startTag)
	if start == -1 {
		return ""
	}
	start += len(startTag)
	end := strings.Index(html[start:], endTag)
	if end == -1 {
		return ""
	}
	return html[start : start+end]
}

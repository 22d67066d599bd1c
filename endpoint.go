// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"net"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Scheme is the protocol scheme of an [Endpoint].
type Scheme string

const (
	// SchemeHTTP is the plaintext HTTP scheme.
	SchemeHTTP = Scheme("http")

	// SchemeHTTPS is the HTTP over TLS scheme.
	SchemeHTTPS = Scheme("https")
)

// DefaultPort returns the well-known port of the scheme or zero.
func (s Scheme) DefaultPort() uint16 {
	switch s {
	case SchemeHTTP:
		return 80
	case SchemeHTTPS:
		return 443
	default:
		return 0
	}
}

// QueryItem is a single query parameter. Query items keep their order.
type QueryItem struct {
	Name  string
	Value string
}

// Endpoint is the network address an operation is sent to.
//
// Endpoint is an immutable value: construct it with [NewEndpoint].
type Endpoint struct {
	host   string
	path   string
	port   uint16
	query  []QueryItem
	scheme Scheme
}

// NewEndpoint returns a new [Endpoint].
//
// Construction never fails: an invalid combination of host and path is
// reported later, when [Endpoint.URL] returns false.
func NewEndpoint(scheme Scheme, host string, port uint16, path string, query ...QueryItem) Endpoint {
	return Endpoint{
		host:   host,
		path:   path,
		port:   port,
		query:  slices.Clone(query),
		scheme: scheme,
	}
}

// NewHTTPSEndpoint returns an [Endpoint] for host using https on port 443
// and path "/".
func NewHTTPSEndpoint(host string) Endpoint {
	return NewEndpoint(SchemeHTTPS, host, SchemeHTTPS.DefaultPort(), "/")
}

// Host returns the host name or IP address.
func (e Endpoint) Host() string {
	return e.host
}

// Path returns the path.
func (e Endpoint) Path() string {
	return e.path
}

// Port returns the port.
func (e Endpoint) Port() uint16 {
	return e.port
}

// Query returns a copy of the query items.
func (e Endpoint) Query() []QueryItem {
	return slices.Clone(e.query)
}

// Scheme returns the scheme.
func (e Endpoint) Scheme() Scheme {
	return e.scheme
}

// HostPort returns host and port joined for dialing and Host headers.
func (e Endpoint) HostPort() string {
	if e.port == 0 {
		if strings.Contains(e.host, ":") {
			return "[" + e.host + "]"
		}
		return e.host
	}
	return net.JoinHostPort(e.host, strconv.Itoa(int(e.port)))
}

// HostPath returns the host followed by the path, without scheme and port.
func (e Endpoint) HostPath() string {
	return e.host + "/" + strings.TrimPrefix(e.path, "/")
}

// URL returns the URL of the endpoint.
//
// The boolean is false when the components do not form a valid URL,
// for example because the host contains illegal characters or the path
// does not start with a slash.
func (e Endpoint) URL() (*url.URL, bool) {
	if e.host == "" || !validHost(e.host) || !validPath(e.path) || !validScheme(e.scheme) {
		return nil, false
	}
	u := &url.URL{
		Scheme:   string(e.scheme),
		Host:     e.HostPort(),
		Path:     e.path,
		RawQuery: encodeQuery(e.query),
	}
	return u, true
}

// URLString returns the URL as a string, or false like [Endpoint.URL].
func (e Endpoint) URLString() (string, bool) {
	u, ok := e.URL()
	if !ok {
		return "", false
	}
	return u.String(), true
}

func validScheme(scheme Scheme) bool {
	if scheme == "" {
		return false
	}
	for idx, c := range scheme {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case idx > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func validHost(host string) bool {
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	for _, c := range host {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-' || c == '.' || c == '_':
		default:
			return false
		}
	}
	return true
}

func validPath(path string) bool {
	if path != "" && !strings.HasPrefix(path, "/") {
		return false
	}
	for _, c := range path {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func encodeQuery(items []QueryItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, url.QueryEscape(item.Name)+"="+url.QueryEscape(item.Value))
	}
	return strings.Join(parts, "&")
}

// NewEndpointHandler returns a [Handler] that always returns the given
// [netip.AddrPort], the entry point of a dial pipeline.
func NewEndpointHandler(address netip.AddrPort) Handler[Unit, netip.AddrPort] {
	return ConstHandler(address)
}

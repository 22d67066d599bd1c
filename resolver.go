// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
)

// Resolver maps a host name to IP addresses.
//
// [*DirectHandler] uses a Resolver to find the addresses to dial.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// ErrUnsupportedDNSProtocol indicates an unknown or misused [DNSProtocol].
var ErrUnsupportedDNSProtocol = errors.New("unsupported DNS protocol")

// ErrNoAddresses indicates that a lookup succeeded without returning addresses.
var ErrNoAddresses = errors.New("no addresses for host")

// SystemResolver is a [Resolver] using a [*net.Resolver].
type SystemResolver struct {
	Resolver *net.Resolver
}

var _ Resolver = &SystemResolver{}

// LookupHost implements [Resolver].
func (r *SystemResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, err := r.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddresses, host)
	}
	for idx, addr := range addrs {
		addrs[idx] = addr.Unmap()
	}
	return addrs, nil
}

// NewDNSResolver returns a [*DNSResolver] querying server over protocol.
//
// For [DNSOverTLS] and [DNSOverHTTPS], set TLSConfig (and URL for DoH)
// before first use.
func NewDNSResolver(cfg *Config, protocol DNSProtocol, server netip.AddrPort, logger SLogger) *DNSResolver {
	return &DNSResolver{
		Config:    cfg,
		Logger:    logger,
		Protocol:  protocol,
		Server:    server,
		TLSConfig: nil,
		URL:       "",
	}
}

// DNSResolver is a [Resolver] that queries a specific DNS server for A
// records using a fresh connection per lookup.
//
// Each lookup dials with [*ConnectHandler], observes the connection with
// [*ObserveConnHandler], binds it to the context with [CancelWatchHandler]
// and, depending on the protocol, performs a TLS handshake and creates
// an [*HTTPConn], all while logging with the invocation ID.
//
// All fields are safe to modify after construction but before first use.
type DNSResolver struct {
	// Config is the common configuration.
	Config *Config

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Protocol is the [DNSProtocol] to use.
	Protocol DNSProtocol

	// Server is the DNS server address.
	Server netip.AddrPort

	// TLSConfig is required for [DNSOverTLS] and [DNSOverHTTPS].
	TLSConfig *tls.Config

	// URL is the DoH URL, required for [DNSOverHTTPS].
	URL string
}

var _ Resolver = &DNSResolver{}

// LookupHost implements [Resolver].
//
// IP address literals are returned without querying the server.
func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	dial, err := r.dialer()
	if err != nil {
		return nil, err
	}
	exchanger, err := dial.Handle(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer exchanger.Close()

	resp, err := exchanger.Exchange(ctx, dnscodec.NewQuery(host, dns.TypeA))
	if err != nil {
		return nil, err
	}
	records, err := resp.RecordsA()
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(records))
	for _, record := range records {
		addr, err := netip.ParseAddr(record)
		if err != nil {
			r.Logger.Debug("dnsSkipRecord", slog.String("record", record), slog.Any("err", err))
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddresses, host)
	}
	return addrs, nil
}

// dialer returns the pipeline producing a connected [DNSExchanger].
func (r *DNSResolver) dialer() (Handler[Unit, DNSExchanger], error) {
	cfg := r.Config
	connect := func(network string) Handler[Unit, net.Conn] {
		return Apply[netip.AddrPort, net.Conn](NewConnectHandler(cfg, network, r.Logger), r.Server)
	}
	observe := NewObserveConnHandler(cfg, r.Logger)
	watch := CancelWatchHandler{}

	switch r.Protocol {
	case DNSOverUDP:
		return Compose5(connect("udp"), observe, watch,
			NewDNSConnHandler[net.Conn](cfg, DNSOverUDP, r.Logger), asExchanger[*DNSConn]()), nil

	case DNSOverTCP:
		return Compose5(connect("tcp"), observe, watch,
			NewDNSConnHandler[net.Conn](cfg, DNSOverTCP, r.Logger), asExchanger[*DNSConn]()), nil

	case DNSOverTLS:
		runtimex.Assert(r.TLSConfig != nil)
		return Compose6(connect("tcp"), observe, watch,
			NewTLSHandshakeHandler(cfg, r.TLSConfig, r.Logger),
			NewDNSConnHandler[TLSConn](cfg, DNSOverTLS, r.Logger), asExchanger[*DNSConn]()), nil

	case DNSOverHTTPS:
		runtimex.Assert(r.TLSConfig != nil)
		dial := Compose5(connect("tcp"), observe, watch,
			NewTLSHandshakeHandler(cfg, r.TLSConfig, r.Logger), NewHTTPConnHandler[TLSConn](cfg, r.Logger))
		return Compose3(dial, NewDNSOverHTTPSConnHandler(cfg, r.URL, r.Logger), asExchanger[*DNSOverHTTPSConn]()), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDNSProtocol, r.Protocol)
	}
}

// asExchanger converts a concrete exchanger to the [DNSExchanger] interface.
func asExchanger[T DNSExchanger]() Handler[T, DNSExchanger] {
	return HandlerFunc[T, DNSExchanger](func(ctx context.Context, conn T) (DNSExchanger, error) {
		return conn, nil
	})
}

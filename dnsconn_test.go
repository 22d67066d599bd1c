// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/netstub"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeDNSConn returns a datagram conn answering every A query with addrs.
func newFakeDNSConn(t *testing.T, addrs ...string) *netstub.FuncConn {
	t.Helper()
	responses := make(chan []byte, 4)
	var closeOnce sync.Once
	closed := make(chan struct{})

	conn := newMinimalConn()
	conn.LocalAddrFunc = func() net.Addr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321} }
	conn.RemoteAddrFunc = func() net.Addr { return &net.UDPAddr{IP: net.IPv4(8, 8, 8, 8), Port: 53} }
	conn.SetDeadlineFunc = func(time.Time) error { return nil }
	conn.SetReadDeadFunc = func(time.Time) error { return nil }
	conn.SetWriteDeaFunc = func(time.Time) error { return nil }
	conn.CloseFunc = func() error {
		closeOnce.Do(func() { close(closed) })
		return nil
	}
	conn.WriteFunc = func(b []byte) (int, error) {
		query := new(dns.Msg)
		if err := query.Unpack(b); err != nil {
			return 0, err
		}
		resp := new(dns.Msg)
		resp.SetReply(query)
		for _, addr := range addrs {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: query.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(addr),
			})
		}
		raw, err := resp.Pack()
		if err != nil {
			return 0, err
		}
		responses <- raw
		return len(b), nil
	}
	conn.ReadFunc = func(b []byte) (int, error) {
		select {
		case raw := <-responses:
			return copy(b, raw), nil
		case <-closed:
			return 0, net.ErrClosed
		case <-time.After(5 * time.Second):
			return 0, os.ErrDeadlineExceeded
		}
	}
	return conn
}

// Handle wraps the conn for supported protocols.
func TestDNSConnHandler(t *testing.T) {
	mockConn := newMinimalConn()

	dc, err := NewDNSConnHandler[net.Conn](NewConfig(), DNSOverTCP, DefaultSLogger()).Handle(context.Background(), mockConn)

	require.NoError(t, err)
	assert.Equal(t, mockConn, dc.Conn())
	assert.Equal(t, DNSOverTCP, dc.Protocol())
	assert.NotNil(t, dc.Logger)
	assert.NotNil(t, dc.TimeNow)
	assert.NotNil(t, dc.ErrClassifier)
}

// Handle rejects DoH and closes the conn, since DoH needs an HTTPConn.
func TestDNSConnHandlerUnsupportedProtocol(t *testing.T) {
	closeCalled := false
	mockConn := newMinimalConn()
	mockConn.CloseFunc = func() error {
		closeCalled = true
		return nil
	}

	dc, err := NewDNSConnHandler[net.Conn](NewConfig(), DNSOverHTTPS, DefaultSLogger()).Handle(context.Background(), mockConn)

	require.ErrorIs(t, err, ErrUnsupportedDNSProtocol)
	assert.Nil(t, dc)
	assert.True(t, closeCalled)
}

// Exchange over UDP sends the query and parses the response.
func TestDNSConnExchangeUDP(t *testing.T) {
	logger, records := newCapturingLogger()
	dc, err := NewDNSConnHandler[net.Conn](NewConfig(), DNSOverUDP, logger).Handle(
		context.Background(), newFakeDNSConn(t, "93.184.216.34"))
	require.NoError(t, err)

	resp, err := dc.Exchange(withInvocationID("inv-dns"), dnscodec.NewQuery("example.com", dns.TypeA))

	require.NoError(t, err)
	addrs, err := resp.RecordsA()
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, addrs)

	assert.Equal(t, []string{"dnsExchangeStart", "dnsQuery", "dnsResponse", "dnsExchangeDone"}, recordMessages(*records))
	rawQuery, found := recordAttr((*records)[2], "dnsRawQuery")
	require.True(t, found)
	assert.NotEmpty(t, rawQuery.Any())
	id, found := recordAttr((*records)[3], "invocationID")
	require.True(t, found)
	assert.Equal(t, "inv-dns", id.String())
}

// Exchange propagates write errors from the underlying connection.
func TestDNSConnExchangeWriteError(t *testing.T) {
	wantErr := errors.New("write error")
	for _, protocol := range []DNSProtocol{DNSOverUDP, DNSOverTCP} {
		t.Run(string(protocol), func(t *testing.T) {
			mockConn := newMinimalConn()
			mockConn.WriteFunc = func(b []byte) (int, error) {
				return 0, wantErr
			}
			mockConn.SetDeadlineFunc = func(time.Time) error { return nil }
			mockConn.CloseFunc = func() error { return nil }

			dc, err := NewDNSConnHandler[net.Conn](NewConfig(), protocol, DefaultSLogger()).Handle(
				context.Background(), mockConn)
			require.NoError(t, err)

			_, err = dc.Exchange(context.Background(), dnscodec.NewQuery("example.com", dns.TypeA))

			require.Error(t, err)
		})
	}
}

// Exchange over TLS requires a TLSConn.
func TestDNSConnExchangeTLSRequiresTLSConn(t *testing.T) {
	dc := &DNSConn{
		conn:          newMinimalConn(),
		protocol:      DNSOverTLS,
		ErrClassifier: DefaultErrClassifier,
		Logger:        DefaultSLogger(),
		TimeNow:       time.Now,
	}

	_, err := dc.Exchange(context.Background(), dnscodec.NewQuery("example.com", dns.TypeA))

	require.ErrorIs(t, err, ErrUnsupportedDNSProtocol)
}

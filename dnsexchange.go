// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// dnsExchangeLog holds the logging state of one DNS exchange.
//
// It consolidates the events shared by every [DNSProtocol]:
// dnsExchangeStart, dnsQuery, dnsResponse and dnsExchangeDone.
type dnsExchangeLog struct {
	classifier ErrClassifier
	deadline   time.Time
	logger     SLogger
	peer       []any
	rawQuery   []byte
	t0         time.Time
	timeNow    func() time.Time
}

func newDNSExchangeLog(ctx context.Context, conn net.Conn, protocol DNSProtocol,
	classifier ErrClassifier, logger SLogger, timeNow func() time.Time) *dnsExchangeLog {
	deadline, _ := ctx.Deadline()
	return &dnsExchangeLog{
		classifier: classifier,
		deadline:   deadline,
		logger:     logger,
		peer: []any{
			invocationAttr(ctx),
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
			slog.String("serverProtocol", string(protocol)),
		},
		t0:      timeNow(),
		timeNow: timeNow,
	}
}

func (lc *dnsExchangeLog) with(extra ...any) []any {
	out := make([]any, 0, len(lc.peer)+len(extra))
	out = append(out, lc.peer...)
	return append(out, extra...)
}

func (lc *dnsExchangeLog) start() {
	lc.logger.Info("dnsExchangeStart", lc.with(slog.Time("deadline", lc.deadline), slog.Time("t", lc.t0))...)
}

func (lc *dnsExchangeLog) done(err error) {
	lc.logger.Info("dnsExchangeDone", lc.with(
		slog.Time("deadline", lc.deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.classifier.Classify(err)),
		slog.Time("t0", lc.t0),
		slog.Time("t", lc.timeNow()),
	)...)
}

// observeQuery logs the raw query and remembers it for observeResponse.
func (lc *dnsExchangeLog) observeQuery(rawQuery []byte) {
	lc.rawQuery = rawQuery
	lc.logger.Info("dnsQuery", lc.with(slog.Any("dnsRawQuery", rawQuery), slog.Time("t", lc.t0))...)
}

func (lc *dnsExchangeLog) observeResponse(rawResp []byte) {
	lc.logger.Info("dnsResponse", lc.with(
		slog.Any("dnsRawQuery", lc.rawQuery),
		slog.Any("dnsRawResponse", rawResp),
		slog.Time("t0", lc.t0),
		slog.Time("t", lc.timeNow()),
	)...)
}

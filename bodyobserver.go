// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
)

// observeBody wraps a response body so that httpBodyStreamStart is
// emitted on the first Read and httpBodyStreamDone on Close, the latter
// only when at least one Read happened.
func observeBody(ctx context.Context, body io.ReadCloser, conn net.Conn,
	classifier ErrClassifier, logger SLogger, timeNow func() time.Time) io.ReadCloser {
	return &observedBody{
		body:       body,
		classifier: classifier,
		logger:     logger,
		peer: []any{
			invocationAttr(ctx),
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		},
		timeNow: timeNow,
	}
}

type observedBody struct {
	body       io.ReadCloser
	classifier ErrClassifier
	closeOnce  sync.Once
	count      atomic.Int64
	didRead    atomic.Bool
	logger     SLogger
	peer       []any
	readOnce   sync.Once
	t0         time.Time
	timeNow    func() time.Time
}

func (b *observedBody) Read(buffer []byte) (int, error) {
	b.readOnce.Do(func() {
		b.t0 = b.timeNow()    // written before the release store below
		b.didRead.Store(true) // release: t0 is visible to Close
		b.logger.Info("httpBodyStreamStart", append(b.peer, slog.Time("t", b.t0))...)
	})
	count, err := b.body.Read(buffer)
	b.count.Add(int64(count))
	return count, err
}

func (b *observedBody) Close() (err error) {
	b.closeOnce.Do(func() {
		err = b.body.Close()
		if !b.didRead.Load() { // acquire
			return
		}
		b.logger.Info("httpBodyStreamDone", append(b.peer,
			slog.Any("err", err),
			slog.String("errClass", b.classifier.Classify(err)),
			slog.Int64("ioBytesCount", b.count.Load()),
			slog.Time("t0", b.t0),
			slog.Time("t", b.timeNow()),
		)...)
	})
	return
}

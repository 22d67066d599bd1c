// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"net"
)

// CancelWatchHandler binds the lifetime of a connection to a context.
//
// When the context is done, the connection is closed, which makes any
// blocked read or write fail immediately. [*DirectHandler] uses this to
// honour cancellation while the deserialize step is still reading the
// response body.
//
// Closing the returned connection unregisters the watcher, so no
// goroutine outlives the connection. Do not use this handler for
// connections that must outlive the context, such as pooled connections.
//
// The zero value is ready to use.
type CancelWatchHandler struct{}

var _ Handler[net.Conn, net.Conn] = CancelWatchHandler{}

// Handle implements [Handler].
func (CancelWatchHandler) Handle(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &watchedConn{Conn: conn, stop: stop}, nil
}

type watchedConn struct {
	net.Conn
	stop func() bool
}

func (c *watchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

// SLogger is the logging interface used by stacks, middleware and
// transports. The [*slog.Logger] type satisfies it.
//
// Two levels are used:
//   - Info for operation and lifecycle events (operation start and done,
//     retry attempts, connect, TLS handshake, HTTP round trip, DNS exchange)
//   - Debug for per-I/O events (read, write, set deadline) and skipped records
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns a [SLogger] discarding all output, so that
// nothing is written unless the caller configures a logger.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

func (discardSLogger) Debug(msg string, args ...any) {}

func (discardSLogger) Info(msg string, args ...any) {}

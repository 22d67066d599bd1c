// SPDX-License-Identifier: GPL-3.0-or-later

// Package opstack executes network client operations through an ordered
// stack of middleware.
//
// # Core Abstraction
//
// The package is built around a single interface:
//
//	type Handler[In, Out any] interface {
//		Handle(ctx context.Context, input In) (Out, error)
//	}
//
// A [Middleware] wraps a Handler: it runs pre-logic, calls the next
// handler, and runs post-logic. It may also mutate the input, mutate the
// output, recover from errors or short-circuit without calling next.
//
// # Operation Stack
//
// An [OperationStack] threads a typed input through five [Step] values:
//
//   - initialize: the operation input, converted to a [SerializeInput]
//     carrying a fresh [RequestBuilder] at the step boundary
//   - serialize: encodes the input into the request (see [NewSerializeBodyMiddleware])
//   - build: adjusts the request builder (see [NewContentLengthMiddleware])
//   - finalize: hosts retries and signing, converting the builder into
//     an immutable [Request] at the step boundary (see [RetryMiddleware])
//   - deserialize: maps the [Response] into the output (see [NewDeserializeMiddleware])
//
// The terminal transport handler sits below deserialize. Every step
// returns an [OperationOutput] pairing the raw response with the output.
// Within a step, the first registered middleware is the outermost.
//
// Per-call attributes live in an [OperationContext], a bag of typed
// [Key] values that [OperationStack.Execute] attaches to the context.
//
// # Bodies
//
// Request and response bodies are [ByteStream] values: empty, buffered
// bytes, or a lazily read [Stream]. Seekable streams can be replayed,
// which allows [RetryMiddleware] to retry requests with such bodies.
//
// # Transports
//
//   - [ClientHandler]: sends requests with an [*http.Client]
//   - [DirectHandler]: resolves, dials and handshakes a dedicated
//     connection per request by composing [ConnectHandler],
//     [ObserveConnHandler], [CancelWatchHandler], [TLSHandshakeHandler]
//     and [HTTPConnHandler]
//
// [DirectHandler] resolves names with a [Resolver]: [SystemResolver] or
// [DNSResolver], which speaks DNS over UDP, TCP, TLS or HTTPS.
//
// # Observability
//
// All components log through [SLogger] (compatible with [log/slog]).
// Logging is disabled by default. Components emit span events
// (*Start/*Done pairs carrying t0, t, err and errClass) and wire
// observations such as dnsQuery and dnsResponse. Per-I/O events are
// emitted at [slog.LevelDebug] and everything else at [slog.LevelInfo].
// Events carry the invocationID set by [NewInvocationIDMiddleware], which
// correlates the events of one operation across steps and transports.
//
// [NewMetricsMiddleware] exports Prometheus metrics and
// [NewTracingMiddleware] creates OpenTelemetry spans.
//
// # Context
//
// Cancellation travels in the [context.Context]. The suspension points
// are body reads and the transport call: both fail with a [CanceledError]
// when the context is done.
package opstack

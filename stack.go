// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// SerializeInput is the value flowing through the serialize step: the
// operation input paired with the request being built.
type SerializeInput[I any] struct {
	// Builder is the request under construction.
	Builder *RequestBuilder

	// Input is the operation input.
	Input I
}

// OperationOutput is the value returned by every step: the raw
// transport response paired with the decoded output.
type OperationOutput[O any] struct {
	// Output is the decoded output, set by the deserialize step.
	Output O

	// Response is the raw response returned by the transport.
	Response *Response
}

// ErrNilResponse indicates that a handler returned neither a response nor an error.
var ErrNilResponse = errors.New("handler returned a nil response without error")

// Validator is implemented by inputs that can reject themselves
// before the operation starts.
type Validator interface {
	Validate() error
}

// NewOperationStack returns an [*OperationStack] with five empty steps.
//
// The id names the operation for logging correlation only.
func NewOperationStack[I, O any](cfg *Config, id string, logger SLogger) *OperationStack[I, O] {
	return &OperationStack[I, O]{
		Build:         NewStep[*RequestBuilder, *RequestBuilder, *OperationOutput[O]]("build", Identity[*RequestBuilder]),
		Deserialize:   NewStep[*Request, *Request, *OperationOutput[O]]("deserialize", Identity[*Request]),
		ErrClassifier: cfg.ErrClassifier,
		Finalize:      NewStep[*RequestBuilder, *Request, *OperationOutput[O]]("finalize", finalizeRequest),
		ID:            id,
		Initialize:    NewStep[I, *SerializeInput[I], *OperationOutput[O]]("initialize", initializeRequest[I]),
		Logger:        logger,
		Serialize:     NewStep[*SerializeInput[I], *RequestBuilder, *OperationOutput[O]]("serialize", serializeBoundary[I]),
		TimeNow:       cfg.TimeNow,
	}
}

// OperationStack executes one operation through five ordered steps.
//
// The steps run in this order: initialize (operation input), serialize
// (input plus request builder), build (request builder), finalize (request
// builder, converted to an immutable [*Request] at the boundary) and
// deserialize (request). Below deserialize sits the terminal transport
// handler passed to [*OperationStack.Execute].
//
// Configure the steps before the first call to Execute. Once configured,
// the stack may be executed concurrently with distinct operation contexts.
type OperationStack[I, O any] struct {
	// Build finalizes the request shape (headers, content length).
	Build *Step[*RequestBuilder, *RequestBuilder, *OperationOutput[O]]

	// Deserialize decodes the response into the output.
	Deserialize *Step[*Request, *Request, *OperationOutput[O]]

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Finalize hosts retries and signing.
	Finalize *Step[*RequestBuilder, *Request, *OperationOutput[O]]

	// ID names the operation for logging.
	ID string

	// Initialize prepares the operation context and the input.
	Initialize *Step[I, *SerializeInput[I], *OperationOutput[O]]

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Serialize encodes the input into the request.
	Serialize *Step[*SerializeInput[I], *RequestBuilder, *OperationOutput[O]]

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

// Default middleware IDs installed by [*OperationStack.AddDefaultMiddleware].
const (
	InvocationIDMiddlewareID  = "InvocationID"
	ContentLengthMiddlewareID = "ContentLength"
)

// AddDefaultMiddleware installs the baseline middleware: an invocation ID
// generator in initialize and a Content-Length setter in build.
//
// Calling this method more than once has no further effect.
func (s *OperationStack[I, O]) AddDefaultMiddleware() {
	if _, found := s.Initialize.Get(InvocationIDMiddlewareID); !found {
		s.Initialize.Add(NewInvocationIDMiddleware[I, *OperationOutput[O]](), Before)
	}
	if _, found := s.Build.Get(ContentLengthMiddlewareID); !found {
		s.Build.Add(NewContentLengthMiddleware[*OperationOutput[O]](), After)
	}
}

// Handler composes the steps on top of terminal and returns the
// resulting [Handler]. Middleware registered afterwards is not included.
//
// When the context passed to the returned handler carries no
// [*OperationContext], a new one is attached for that invocation.
func (s *OperationStack[I, O]) Handler(terminal Handler[*Request, *Response]) Handler[I, *OperationOutput[O]] {
	h5 := s.Deserialize.Compose(&transportAdapter[O]{terminal: terminal})
	h4 := s.Finalize.Compose(h5)
	h3 := s.Build.Compose(h4)
	h2 := s.Serialize.Compose(h3)
	return &contextAttacher[I, *OperationOutput[O]]{next: s.Initialize.Compose(h2)}
}

// contextAttacher ensures that the wrapped handler always sees a
// shared [*OperationContext].
type contextAttacher[In, Out any] struct {
	next Handler[In, Out]
}

func (a *contextAttacher[In, Out]) Handle(ctx context.Context, input In) (Out, error) {
	if oc, ok := ctx.Value(operationContextKey{}).(*OperationContext); !ok || oc == nil {
		ctx = WithOperationContext(ctx, NewOperationContext())
	}
	return a.next.Handle(ctx, input)
}

// Execute runs input through the stack once, using terminal as the transport.
//
// The oc argument carries the per-call attributes and must not be shared
// with other invocations. A nil oc means an empty context.
//
// An input implementing [Validator] is validated before entering the
// stack and a failure is returned as [*InputError]. Every other error is
// returned exactly as produced by the middleware or the transport.
//
// Execute returns only the output, not the [*Response]. With a [ByteStream]
// output and [NewDeserializeMiddleware], the response is released when the
// body is read to EOF. Callers that may stop reading early should use
// [*OperationStack.Handler] and close [OperationOutput.Response] instead.
func (s *OperationStack[I, O]) Execute(
	ctx context.Context, oc *OperationContext, input I, terminal Handler[*Request, *Response]) (O, error) {
	if oc == nil {
		oc = NewOperationContext()
	}
	ctx = WithOperationContext(ctx, oc)

	t0 := s.TimeNow()
	deadline, _ := ctx.Deadline()
	s.Logger.Info(
		"operationStart",
		slog.Time("deadline", deadline),
		invocationAttr(ctx),
		slog.String("operationID", s.ID),
		slog.String("operationName", oc.OperationName()),
		slog.Time("t", t0),
	)

	output, err := s.execute(ctx, input, terminal)

	s.Logger.Info(
		"operationDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		invocationAttr(ctx),
		slog.String("operationID", s.ID),
		slog.String("operationName", oc.OperationName()),
		slog.String("outcome", Outcome(err)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
	return output, err
}

func (s *OperationStack[I, O]) execute(ctx context.Context, input I, terminal Handler[*Request, *Response]) (O, error) {
	var zero O
	if v, ok := any(input).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, &InputError{Err: err}
		}
	}
	out, err := s.Handler(terminal).Handle(ctx, input)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, ErrNilResponse
	}
	return out.Output, nil
}

// transportAdapter runs the terminal handler below the deserialize step.
type transportAdapter[O any] struct {
	terminal Handler[*Request, *Response]
}

func (a *transportAdapter[O]) Handle(ctx context.Context, req *Request) (*OperationOutput[O], error) {
	resp, err := a.terminal.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &RequestSendError{Err: ErrNilResponse}
	}
	return &OperationOutput[O]{Response: resp}, nil
}

// initializeRequest creates the request builder from the well-known
// attributes of the operation context.
func initializeRequest[I any](ctx context.Context, input I) (*SerializeInput[I], error) {
	oc := OperationContextFrom(ctx)
	builder := NewRequestBuilder()
	if method, ok := MethodKey.Get(oc); ok && method != "" {
		builder.Method = method
	}
	if path, ok := PathKey.Get(oc); ok {
		builder.Path = path
	}
	if endpoint, ok := EndpointKey.Get(oc); ok {
		builder.Endpoint = endpoint
	}
	return &SerializeInput[I]{Builder: builder, Input: input}, nil
}

func serializeBoundary[I any](ctx context.Context, input *SerializeInput[I]) (*RequestBuilder, error) {
	return input.Builder, nil
}

func finalizeRequest(ctx context.Context, builder *RequestBuilder) (*Request, error) {
	return builder.Build(), nil
}

// NewInvocationIDMiddleware returns a [Middleware] that stores a fresh
// [NewInvocationID] under [InvocationIDKey] unless one is already set.
func NewInvocationIDMiddleware[In, Out any]() Middleware[In, Out] {
	return MiddlewareFunc(InvocationIDMiddlewareID, func(ctx context.Context, input In, next Handler[In, Out]) (Out, error) {
		oc := OperationContextFrom(ctx)
		if _, found := InvocationIDKey.Get(oc); !found {
			InvocationIDKey.Set(oc, NewInvocationID())
		}
		return next.Handle(ctx, input)
	})
}

// NewContentLengthMiddleware returns a [Middleware] for the build step
// that sets the Content-Length header when the body length is known
// and the header is not already present.
func NewContentLengthMiddleware[Out any]() Middleware[*RequestBuilder, Out] {
	return MiddlewareFunc(ContentLengthMiddlewareID, func(
		ctx context.Context, builder *RequestBuilder, next Handler[*RequestBuilder, Out]) (Out, error) {
		if length, ok := builder.Body.Len(); ok && length > 0 && !builder.Headers.Has("Content-Length") {
			builder.Headers.Set("Content-Length", strconv.FormatInt(length, 10))
		}
		return next.Handle(ctx, builder)
	})
}

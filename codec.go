// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Encoder serializes an operation input into a request body.
type Encoder interface {
	// ContentType returns the media type of the encoded body.
	ContentType() string

	// Encode serializes v.
	Encode(v any) ([]byte, error)
}

// Decoder deserializes a response body into an operation output.
type Decoder interface {
	Decode(data []byte, v any) error
}

// JSONCodec is an [Encoder] and [Decoder] using [encoding/json].
//
// The zero value is ready to use.
type JSONCodec struct{}

var (
	_ Encoder = JSONCodec{}
	_ Decoder = JSONCodec{}
)

// ContentType implements [Encoder].
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Encode implements [Encoder].
func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements [Decoder].
func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Codec middleware IDs.
const (
	SerializeBodyMiddlewareID = "SerializeBody"
	DeserializeMiddlewareID   = "Deserialize"
)

// NewSerializeBodyMiddleware returns a serialize step [Middleware] that
// encodes the operation input into the request body.
//
// The [Encoder] comes from [EncoderKey] and defaults to [JSONCodec].
// Inputs that are already a [ByteStream] are sent as they are, and [Unit]
// inputs produce no body. The Content-Type header is set unless present.
func NewSerializeBodyMiddleware[I, Out any]() Middleware[*SerializeInput[I], Out] {
	return MiddlewareFunc(SerializeBodyMiddlewareID, func(
		ctx context.Context, input *SerializeInput[I], next Handler[*SerializeInput[I], Out]) (Out, error) {
		switch value := any(input.Input).(type) {
		case Unit:
			// nothing
		case ByteStream:
			input.Builder.Body = value
		default:
			encoder, ok := EncoderKey.Get(OperationContextFrom(ctx))
			if !ok {
				encoder = JSONCodec{}
			}
			data, err := encoder.Encode(value)
			if err != nil {
				var zero Out
				return zero, &InputError{Err: err}
			}
			input.Builder.Body = FromBytes(data)
			if !input.Builder.Headers.Has("Content-Type") {
				input.Builder.Headers.Set("Content-Type", encoder.ContentType())
			}
		}
		return next.Handle(ctx, input)
	})
}

// serviceErrorBody is the body shape decoded into a [*ServiceError].
type serviceErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewDeserializeMiddleware returns a deserialize step [Middleware] that
// maps the response into the operation output.
//
// A status code of 300 or above becomes a [*ServiceError]. Otherwise the
// body is decoded into the output with the [Decoder] from [DecoderKey],
// defaulting to [JSONCodec], and a decoding failure becomes a
// [*DeserializeError]. An empty body leaves the zero output. When the
// output type is [ByteStream], the body is handed over unread and the
// response is closed once the body reaches EOF, or at once when the
// body is not a stream. Callers that stop reading early must close
// [OperationOutput.Response]. In every other case the response is
// closed before returning.
func NewDeserializeMiddleware[O any]() Middleware[*Request, *OperationOutput[O]] {
	return MiddlewareFunc(DeserializeMiddlewareID, func(
		ctx context.Context, req *Request, next Handler[*Request, *OperationOutput[O]]) (*OperationOutput[O], error) {
		out, err := next.Handle(ctx, req)
		if err != nil {
			return nil, err
		}
		resp := out.Response
		if resp == nil {
			return nil, &DeserializeError{Err: ErrNilResponse}
		}

		if resp.StatusCode() < http.StatusMultipleChoices {
			if stream, ok := any(&out.Output).(*ByteStream); ok {
				body, err := closeOnEOF(resp)
				if err != nil {
					return nil, err
				}
				*stream = body
				return out, nil
			}
		}
		defer resp.Close()

		data, err := resp.Body().ReadAll(ctx)
		if err != nil {
			return nil, err
		}

		decoder, ok := DecoderKey.Get(OperationContextFrom(ctx))
		if !ok {
			decoder = JSONCodec{}
		}

		if resp.StatusCode() >= http.StatusMultipleChoices {
			return nil, newServiceError(resp, data, decoder)
		}
		if len(data) > 0 {
			if err := decoder.Decode(data, &out.Output); err != nil {
				return nil, &DeserializeError{StatusCode: resp.StatusCode(), Err: err}
			}
		}
		return out, nil
	})
}

// closeOnEOF returns the body of resp wrapped so that reaching EOF
// closes resp. A body that is not a stream has nothing left to read,
// so resp is closed right away.
func closeOnEOF(resp *Response) (ByteStream, error) {
	body := resp.Body()
	if !body.IsSource() {
		return body, resp.Close()
	}
	r, err := body.Reader()
	if err != nil {
		resp.Close()
		return NoBody, err
	}
	length, ok := body.Len()
	if !ok {
		length = -1
	}
	return FromReaderLength(&eofCloser{reader: r, closer: resp}, length), nil
}

type eofCloser struct {
	closer io.Closer
	reader io.Reader
}

func (c *eofCloser) Read(buffer []byte) (int, error) {
	count, err := c.reader.Read(buffer)
	if errors.Is(err, io.EOF) {
		c.closer.Close()
	}
	return count, err
}

func newServiceError(resp *Response, data []byte, decoder Decoder) *ServiceError {
	serr := &ServiceError{
		Headers:    resp.Headers(),
		StatusCode: resp.StatusCode(),
	}
	var body serviceErrorBody
	if err := decoder.Decode(data, &body); err == nil && (body.Code != "" || body.Message != "") {
		serr.Code, serr.Message = body.Code, body.Message
		return serr
	}
	serr.Message = string(data)
	return serr
}

// IsServiceError reports whether err is or wraps a [*ServiceError].
func IsServiceError(err error) bool {
	var serr *ServiceError
	return errors.As(err, &serr)
}

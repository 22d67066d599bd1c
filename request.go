// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// RequestBuilder is the mutable request flowing through the serialize,
// build and finalize steps.
//
// The finalize step converts it into an immutable [*Request] by
// calling [*RequestBuilder.Build].
type RequestBuilder struct {
	// Body is the request body.
	Body ByteStream

	// Endpoint provides scheme, host, port, base path and base query.
	Endpoint Endpoint

	// Headers contains the request headers.
	Headers Headers

	// Method is the HTTP method.
	Method string

	// Path is appended to the endpoint path, separated by a single slash.
	Path string

	// Query is appended to the endpoint query.
	Query []QueryItem
}

// NewRequestBuilder returns a [*RequestBuilder] for a GET request.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{Method: http.MethodGet}
}

// Clone returns a copy of the builder sharing the body.
func (b *RequestBuilder) Clone() *RequestBuilder {
	return &RequestBuilder{
		Body:     b.Body,
		Endpoint: b.Endpoint,
		Headers:  b.Headers.Clone(),
		Method:   b.Method,
		Path:     b.Path,
		Query:    slices.Clone(b.Query),
	}
}

// Build returns an immutable [*Request] snapshot of the builder.
func (b *RequestBuilder) Build() *Request {
	base := b.Endpoint
	path := base.Path()
	if b.Path != "" {
		path = strings.TrimSuffix(path, "/") + "/" + strings.TrimPrefix(b.Path, "/")
	}
	query := slices.Concat(base.Query(), b.Query)
	return &Request{
		body:     b.Body,
		endpoint: NewEndpoint(base.Scheme(), base.Host(), base.Port(), path, query...),
		headers:  b.Headers.Clone(),
		method:   b.Method,
	}
}

// Request is the immutable request produced by the finalize step
// and consumed by the transport.
type Request struct {
	body     ByteStream
	endpoint Endpoint
	headers  Headers
	method   string
}

// Body returns the request body.
func (r *Request) Body() ByteStream {
	return r.body
}

// Endpoint returns the full endpoint including the request path and query.
func (r *Request) Endpoint() Endpoint {
	return r.endpoint
}

// Headers returns a copy of the request headers.
func (r *Request) Headers() Headers {
	return r.headers.Clone()
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.method
}

// ErrInvalidEndpoint indicates that the request endpoint is not a valid URL.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// HTTPRequest converts the request into an [*http.Request] bound to ctx.
//
// The body is streamed, not buffered.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	u, ok := r.endpoint.URL()
	if !ok {
		return nil, ErrInvalidEndpoint
	}
	body, err := r.body.Reader()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.headers.HTTPHeader()
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	if length, ok := r.body.Len(); ok {
		req.ContentLength = length
		if length == 0 {
			req.Body = http.NoBody
		}
	} else {
		req.ContentLength = -1
	}
	return req, nil
}

// Response is the response returned by the transport.
type Response struct {
	body       ByteStream
	closeOnce  sync.Once
	closer     io.Closer
	headers    Headers
	statusCode int
}

// NewResponse returns a new [*Response].
func NewResponse(statusCode int, headers Headers, body ByteStream) *Response {
	return &Response{
		body:       body,
		headers:    headers.Clone(),
		statusCode: statusCode,
	}
}

// Body returns the response body.
func (r *Response) Body() ByteStream {
	return r.body
}

// Headers returns a copy of the response headers.
func (r *Response) Headers() Headers {
	return r.headers.Clone()
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Close releases the resources held by the transport for this response,
// such as the body reader and the connection. Close is idempotent.
func (r *Response) Close() (err error) {
	r.closeOnce.Do(func() {
		if r.closer != nil {
			err = r.closer.Close()
		}
	})
	return
}

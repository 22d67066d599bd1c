// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"errors"
	"fmt"
)

// InputError indicates that the operation input was rejected before
// entering the stack.
type InputError struct {
	Err error
}

// Error implements error.
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid operation input: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}

// RequestSendError indicates that the transport could not send the
// request or receive a response.
type RequestSendError struct {
	Err error
}

// Error implements error.
func (e *RequestSendError) Error() string {
	return fmt.Sprintf("request send failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestSendError) Unwrap() error {
	return e.Err
}

// ConnectionError reports that the error is a connectivity failure.
func (e *RequestSendError) ConnectionError() bool {
	return true
}

// CanceledError indicates that the context was done during a
// suspension point (body read or transport call).
type CanceledError struct {
	Err error
}

// Error implements error.
func (e *CanceledError) Error() string {
	return fmt.Sprintf("operation canceled: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CanceledError) Unwrap() error {
	return e.Err
}

// StreamError indicates a failure of the reader behind a [ByteStream].
type StreamError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StreamError) Error() string {
	return fmt.Sprintf("byte stream %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// DeserializeError indicates that a response was received but could not
// be mapped to the operation output or to a service error.
type DeserializeError struct {
	StatusCode int
	Err        error
}

// Error implements error.
func (e *DeserializeError) Error() string {
	return fmt.Sprintf("cannot deserialize response with status %d: %v", e.StatusCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeserializeError) Unwrap() error {
	return e.Err
}

// ServiceError is a domain error reported by the remote service.
//
// The service answered, so this is not a pipeline failure: callers
// distinguish it from infrastructure errors using [errors.As].
type ServiceError struct {
	// Code is the service-specific error code, if any.
	Code string

	// Headers contains the response headers.
	Headers Headers

	// Message is the human readable message, if any.
	Message string

	// StatusCode is the HTTP status code.
	StatusCode int
}

// Error implements error.
func (e *ServiceError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("service error %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("service error %d: %s", e.StatusCode, e.Code)
	case e.Message != "":
		return fmt.Sprintf("service error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("service error %d", e.StatusCode)
	}
}

// Outcome classifies the result of an operation for logging and metrics.
//
// The returned value is one of "success", "service_error",
// "transport_error", "canceled", "input_error", "deserialize_error",
// or "error" for errors produced by middleware.
func Outcome(err error) string {
	var (
		serviceErr     *ServiceError
		sendErr        *RequestSendError
		canceledErr    *CanceledError
		inputErr       *InputError
		deserializeErr *DeserializeError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &serviceErr):
		return "service_error"
	case errors.As(err, &canceledErr):
		return "canceled"
	case errors.As(err, &sendErr):
		return "transport_error"
	case errors.As(err, &inputErr):
		return "input_error"
	case errors.As(err, &deserializeErr):
		return "deserialize_error"
	default:
		return "error"
	}
}

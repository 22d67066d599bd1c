// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"sort"
)

// Key is a typed key for an [OperationContext] attribute.
//
// Keys are compared by identity: two keys created with the same name are
// distinct. The name only serves debugging. Create keys once, at package
// level, using [NewKey].
type Key[T any] struct {
	name string
}

// NewKey returns a new [*Key] with the given debugging name.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

// Name returns the key name.
func (k *Key[T]) Name() string {
	return k.name
}

// Get returns the value stored under the key, if any.
//
// Absence of a key is a valid state and reading from a nil
// [*OperationContext] returns false. A nil value stored under a key
// of interface type reads as absent.
func (k *Key[T]) Get(oc *OperationContext) (T, bool) {
	var zero T
	if oc == nil {
		return zero, false
	}
	entry, found := oc.values[k]
	if !found {
		return zero, false
	}
	value, ok := entry.value.(T)
	return value, ok
}

// Set stores the value under the key, replacing any previous value.
func (k *Key[T]) Set(oc *OperationContext, value T) {
	oc.values[k] = contextEntry{name: k.name, value: value}
}

// Delete removes the key. Deleting an absent key is a no-op.
func (k *Key[T]) Delete(oc *OperationContext) {
	delete(oc.values, k)
}

// Well-known attributes populated by callers before [*OperationStack.Execute].
var (
	// OperationNameKey is the name of the operation being executed.
	OperationNameKey = NewKey[string]("operationName")

	// MethodKey is the HTTP method of the request.
	MethodKey = NewKey[string]("method")

	// PathKey is the request path relative to the endpoint.
	PathKey = NewKey[string]("path")

	// EndpointKey is the [Endpoint] the request is sent to.
	EndpointKey = NewKey[Endpoint]("endpoint")

	// EncoderKey is the [Encoder] used by serialize middleware.
	EncoderKey = NewKey[Encoder]("encoder")

	// DecoderKey is the [Decoder] used by deserialize middleware.
	DecoderKey = NewKey[Decoder]("decoder")

	// InvocationIDKey uniquely identifies one invocation of the operation.
	InvocationIDKey = NewKey[string]("invocationID")

	// RetryAttemptKey is the 1-based attempt number set by [*RetryMiddleware].
	RetryAttemptKey = NewKey[int]("retryAttempt")

	// AuthSchemeKey names the auth scheme selected for the operation,
	// consumed by signing middleware.
	AuthSchemeKey = NewKey[string]("authScheme")
)

type contextEntry struct {
	name  string
	value any
}

// OperationContext is the mutable attribute bag of one operation invocation.
//
// Create a new OperationContext for every call. It is not safe for
// concurrent use and must not be shared across invocations.
type OperationContext struct {
	values map[any]contextEntry
}

// NewOperationContext returns an empty [*OperationContext].
func NewOperationContext() *OperationContext {
	return &OperationContext{values: map[any]contextEntry{}}
}

// Keys returns the sorted names of the keys currently set.
func (oc *OperationContext) Keys() []string {
	names := make([]string, 0, len(oc.values))
	for _, entry := range oc.values {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of attributes currently set.
func (oc *OperationContext) Len() int {
	return len(oc.values)
}

// OperationName is a convenience accessor for [OperationNameKey].
func (oc *OperationContext) OperationName() string {
	value, _ := OperationNameKey.Get(oc)
	return value
}

// Method is a convenience accessor for [MethodKey].
func (oc *OperationContext) Method() string {
	value, _ := MethodKey.Get(oc)
	return value
}

// Path is a convenience accessor for [PathKey].
func (oc *OperationContext) Path() string {
	value, _ := PathKey.Get(oc)
	return value
}

type operationContextKey struct{}

// WithOperationContext returns a context carrying the given [*OperationContext].
func WithOperationContext(ctx context.Context, oc *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey{}, oc)
}

// OperationContextFrom returns the [*OperationContext] carried by ctx.
//
// When ctx carries none, this function returns an empty context so that
// readers can treat absence uniformly.
func OperationContextFrom(ctx context.Context) *OperationContext {
	if oc, ok := ctx.Value(operationContextKey{}).(*OperationContext); ok && oc != nil {
		return oc
	}
	return NewOperationContext()
}

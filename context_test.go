// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Keys store typed values and are distinct even with the same name.
func TestKeyGetSetDelete(t *testing.T) {
	oc := NewOperationContext()
	first := NewKey[int]("counter")
	second := NewKey[int]("counter")

	_, found := first.Get(oc)
	assert.False(t, found)

	first.Set(oc, 41)
	first.Set(oc, 42)
	value, found := first.Get(oc)
	require.True(t, found)
	assert.Equal(t, 42, value)

	_, found = second.Get(oc)
	assert.False(t, found)
	assert.Equal(t, "counter", second.Name())

	first.Delete(oc)
	first.Delete(oc)
	assert.Equal(t, 0, oc.Len())
}

// Reading from a nil context reports absence.
func TestKeyGetNilContext(t *testing.T) {
	_, found := OperationNameKey.Get(nil)
	assert.False(t, found)
}

// Well-known accessors read the corresponding keys.
func TestOperationContextAccessors(t *testing.T) {
	oc := NewOperationContext()
	OperationNameKey.Set(oc, "GetObject")
	MethodKey.Set(oc, "PUT")
	PathKey.Set(oc, "/objects/1")

	assert.Equal(t, "GetObject", oc.OperationName())
	assert.Equal(t, "PUT", oc.Method())
	assert.Equal(t, "/objects/1", oc.Path())
	assert.Equal(t, []string{"method", "operationName", "path"}, oc.Keys())
	assert.Equal(t, 3, oc.Len())
}

// The operation context travels inside a context.Context.
func TestOperationContextFrom(t *testing.T) {
	oc := NewOperationContext()
	ctx := WithOperationContext(context.Background(), oc)

	assert.Same(t, oc, OperationContextFrom(ctx))

	empty := OperationContextFrom(context.Background())
	require.NotNil(t, empty)
	assert.Equal(t, 0, empty.Len())
}

// A nil value stored under an interface key reads as absent.
func TestKeyGetNilInterfaceValue(t *testing.T) {
	oc := NewOperationContext()
	EncoderKey.Set(oc, nil)

	encoder, found := EncoderKey.Get(oc)

	assert.False(t, found)
	assert.Nil(t, encoder)

	builder, err := serializeWith(t, WithOperationContext(context.Background(), oc),
		greetInput{Name: "carol"}, NewRequestBuilder())
	require.NoError(t, err)
	assert.Equal(t, "application/json", builder.Headers.Value("Content-Type"))
}

// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An operation runs with the discarding logger.
func TestDefaultSLogger(t *testing.T) {
	logger := DefaultSLogger()
	assert.Equal(t, discardSLogger{}, logger)

	stack := NewOperationStack[Unit, Unit](NewConfig(), "discard", logger)
	stack.AddDefaultMiddleware()
	_, err := stack.Execute(context.Background(), nil, Unit{}, HandlerFunc[*Request, *Response](
		func(ctx context.Context, req *Request) (*Response, error) {
			return NewResponse(204, Headers{}, NoBody), nil
		}))

	require.NoError(t, err)
}

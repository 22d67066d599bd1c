// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The rest of the chain sees a context bounded by the timeout.
func TestTimeoutMiddleware(t *testing.T) {
	m := NewTimeoutMiddleware[Unit, Unit](10 * time.Millisecond)
	assert.Equal(t, TimeoutMiddlewareID, m.ID())

	var sawDeadline bool
	next := HandlerFunc[Unit, Unit](func(ctx context.Context, _ Unit) (Unit, error) {
		_, sawDeadline = ctx.Deadline()
		<-ctx.Done()
		return Unit{}, ctx.Err()
	})

	_, err := m.HandleMiddleware(context.Background(), Unit{}, next)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, sawDeadline)
}

// A shorter parent deadline is kept.
func TestTimeoutMiddlewareParentDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	parentDeadline, _ := parent.Deadline()

	m := NewTimeoutMiddleware[Unit, Unit](time.Hour)
	next := HandlerFunc[Unit, Unit](func(ctx context.Context, _ Unit) (Unit, error) {
		deadline, _ := ctx.Deadline()
		assert.Equal(t, parentDeadline, deadline)
		return Unit{}, nil
	})

	_, err := m.HandleMiddleware(parent, Unit{}, next)

	require.NoError(t, err)
}

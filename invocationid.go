// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"log/slog"

	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewInvocationID returns a UUIDv7 identifying one operation invocation.
//
// All log entries emitted while executing an [*OperationStack] carry the
// invocation ID, which enables correlating events across steps and across
// the transport. Being time-ordered, IDs also sort by start time.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewInvocationID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

// invocationAttr returns the invocation ID attached to ctx as a log attribute.
//
// The attribute is empty when ctx carries no [*OperationContext] or
// the context has no invocation ID.
func invocationAttr(ctx context.Context) slog.Attr {
	id, _ := InvocationIDKey.Get(OperationContextFrom(ctx))
	return slog.String("invocationID", id)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Position is the relative position used when registering a [Middleware].
type Position int

const (
	// Before places the middleware ahead of the anchor (or at the head
	// of the step, farthest from the step boundary).
	Before Position = iota

	// After places the middleware following the anchor (or at the tail
	// of the step, closest to the step boundary).
	After
)

// String implements [fmt.Stringer].
func (p Position) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// ErrMiddlewareNotFound indicates that [*Step.Insert] could not find the anchor.
var ErrMiddlewareNotFound = errors.New("middleware not found")

// Converter performs the type-changing conversion at a step boundary.
type Converter[In, Next any] func(ctx context.Context, input In) (Next, error)

// Step is an ordered collection of [Middleware] operating on In plus a
// terminal [Converter] turning In into Next at the step boundary.
//
// Out is the type returned by the whole chain below the step. The first
// middleware in the list is the outermost wrapper: its pre-logic runs
// first and its post-logic runs last.
//
// A Step is not safe for concurrent mutation. Once configured, it may be
// composed and executed concurrently by many invocations.
type Step[In, Next, Out any] struct {
	convert Converter[In, Next]
	entries []Middleware[In, Out]
	name    string
}

// NewStep returns an empty [*Step] with the given name and boundary converter.
func NewStep[In, Next, Out any](name string, convert Converter[In, Next]) *Step[In, Next, Out] {
	return &Step[In, Next, Out]{
		convert: convert,
		entries: nil,
		name:    name,
	}
}

// Name returns the step name.
func (s *Step[In, Next, Out]) Name() string {
	return s.name
}

// Add inserts m at the head (Before) or at the tail (After) of the step.
func (s *Step[In, Next, Out]) Add(m Middleware[In, Out], pos Position) {
	switch pos {
	case Before:
		s.entries = slices.Insert(s.entries, 0, m)
	default:
		s.entries = append(s.entries, m)
	}
}

// Insert places m immediately before or after the first middleware
// whose ID is anchor.
//
// Returns an error wrapping [ErrMiddlewareNotFound] without modifying
// the step when no such middleware exists.
func (s *Step[In, Next, Out]) Insert(m Middleware[In, Out], anchor string, pos Position) error {
	idx := s.indexOf(anchor)
	if idx < 0 {
		return fmt.Errorf("%s step: cannot insert %q %s %q: %w", s.name, m.ID(), pos, anchor, ErrMiddlewareNotFound)
	}
	if pos == After {
		idx++
	}
	s.entries = slices.Insert(s.entries, idx, m)
	return nil
}

// Remove removes every middleware whose ID is id and reports whether
// at least one was removed. Removing an absent ID is a no-op.
func (s *Step[In, Next, Out]) Remove(id string) bool {
	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(m Middleware[In, Out]) bool {
		return m.ID() == id
	})
	return len(s.entries) != before
}

// Get returns the first middleware whose ID is id.
func (s *Step[In, Next, Out]) Get(id string) (Middleware[In, Out], bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return s.entries[idx], true
}

// List returns the middleware IDs in execution order.
func (s *Step[In, Next, Out]) List() []string {
	ids := make([]string, 0, len(s.entries))
	for _, m := range s.entries {
		ids = append(ids, m.ID())
	}
	return ids
}

// Len returns the number of registered middleware.
func (s *Step[In, Next, Out]) Len() int {
	return len(s.entries)
}

// Clear removes all the middleware.
func (s *Step[In, Next, Out]) Clear() {
	s.entries = nil
}

func (s *Step[In, Next, Out]) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(m Middleware[In, Out]) bool {
		return m.ID() == id
	})
}

// Compose folds the middleware onto a terminal handler that converts the
// input with the step converter and forwards the result to next.
//
// The fold runs right to left, so the returned handler nests exactly one
// [decoratedHandler] per registered middleware. Later changes to the step
// do not affect handlers already composed.
func (s *Step[In, Next, Out]) Compose(next Handler[Next, Out]) Handler[In, Out] {
	var h Handler[In, Out] = &stepBoundary[In, Next, Out]{convert: s.convert, next: next}
	for i := len(s.entries) - 1; i >= 0; i-- {
		h = Decorate(s.entries[i], h)
	}
	return h
}

// stepBoundary is the innermost handler of a step.
type stepBoundary[In, Next, Out any] struct {
	convert Converter[In, Next]
	next    Handler[Next, Out]
}

func (b *stepBoundary[In, Next, Out]) Handle(ctx context.Context, input In) (Out, error) {
	converted, err := b.convert(ctx, input)
	if err != nil {
		var zero Out
		return zero, err
	}
	return b.next.Handle(ctx, converted)
}

// Identity is a [Converter] for steps that do not change the value type.
func Identity[T any](ctx context.Context, input T) (T, error) {
	return input, nil
}

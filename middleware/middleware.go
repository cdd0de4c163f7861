// Package middleware implements the interceptor chain that sits between
// Store.Send and the reducer.
//
// Every middleware receives the action, the current state and a next
// continuation. Calling next forwards the (possibly transformed) action to the
// following link; not calling it vetoes the action silently. Links run in
// registration order and the reducer is the innermost link.
package middleware

import (
	"errors"
	"fmt"
)

// ErrDuplicateName is returned when two middlewares in one pipeline share a name.
var ErrDuplicateName = errors.New("duplicate middleware name")

// Next continues the pipeline with action.
type Next[A any] func(action A)

// Middleware observes, transforms, delays or vetoes actions.
type Middleware[S, A any] interface {
	Name() string
	Handle(action A, state S, next Next[A])
}

// StateBinder is implemented by middlewares that need to read the live state,
// e.g. to observe the result of the reduction after next returns. The store
// binds its state getter once at construction.
type StateBinder[S any] interface {
	BindState(get func() S)
}

type funcMiddleware[S, A any] struct {
	name   string
	handle func(A, S, Next[A])
}

func (m funcMiddleware[S, A]) Name() string { return m.name }

func (m funcMiddleware[S, A]) Handle(action A, state S, next Next[A]) {
	m.handle(action, state, next)
}

// New builds a middleware from a handler function.
func New[S, A any](name string, handle func(action A, state S, next Next[A])) Middleware[S, A] {
	return funcMiddleware[S, A]{name: name, handle: handle}
}

// Pipeline is an ordered, name-unique list of middlewares.
type Pipeline[S, A any] struct {
	middlewares []Middleware[S, A]
}

// NewPipeline validates name uniqueness and keeps registration order.
func NewPipeline[S, A any](middlewares ...Middleware[S, A]) (Pipeline[S, A], error) {
	seen := make(map[string]struct{}, len(middlewares))
	for _, m := range middlewares {
		if _, ok := seen[m.Name()]; ok {
			return Pipeline[S, A]{}, fmt.Errorf("%w: %s", ErrDuplicateName, m.Name())
		}
		seen[m.Name()] = struct{}{}
	}
	return Pipeline[S, A]{middlewares: append([]Middleware[S, A](nil), middlewares...)}, nil
}

// Names lists the middleware names in the order they see an action.
func (p Pipeline[S, A]) Names() []string {
	names := make([]string, len(p.middlewares))
	for i, m := range p.middlewares {
		names[i] = m.Name()
	}
	return names
}

// Len returns the number of middlewares.
func (p Pipeline[S, A]) Len() int {
	return len(p.middlewares)
}

// BindState hands get to every middleware implementing StateBinder.
func (p Pipeline[S, A]) BindState(get func() S) {
	for _, m := range p.middlewares {
		if binder, ok := m.(StateBinder[S]); ok {
			binder.BindState(get)
		}
	}
}

// Build folds the middlewares right to left around final, so the first
// registered middleware sees the action first. state is read when each link runs.
func (p Pipeline[S, A]) Build(state func() S, final Next[A]) Next[A] {
	next := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		m, inner := p.middlewares[i], next
		next = func(action A) {
			m.Handle(action, state(), inner)
		}
	}
	return next
}

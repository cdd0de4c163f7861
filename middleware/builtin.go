package middleware

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logging logs every action before it is forwarded and again once the rest of
// the pipeline returned, together with the elapsed time and the resulting state.
func Logging[S, A any](logger *zap.Logger) Middleware[S, A] {
	return &loggingMiddleware[S, A]{logger: logger}
}

type loggingMiddleware[S, A any] struct {
	logger *zap.Logger
	get    func() S
}

func (m *loggingMiddleware[S, A]) Name() string { return "logging" }

func (m *loggingMiddleware[S, A]) BindState(get func() S) { m.get = get }

func (m *loggingMiddleware[S, A]) Handle(action A, state S, next Next[A]) {
	actionType := fmt.Sprintf("%T", action)
	m.logger.Debug("action received",
		zap.String("action_type", actionType),
		zap.Any("action", action),
		zap.Any("state_before", state),
	)

	start := time.Now()
	next(action)

	fields := []zap.Field{
		zap.String("action_type", actionType),
		zap.Duration("elapsed", time.Since(start)),
	}
	if m.get != nil {
		fields = append(fields, zap.Any("state_after", m.get()))
	}
	m.logger.Debug("action forwarded", fields...)
}

// Validation vetoes actions for which valid returns false. onInvalid, when set,
// is called with the rejected action instead.
func Validation[S, A any](name string, valid func(A, S) bool, onInvalid func(A, S)) Middleware[S, A] {
	return New(name, func(action A, state S, next Next[A]) {
		if valid(action, state) {
			next(action)
			return
		}
		if onInvalid != nil {
			onInvalid(action, state)
		}
	})
}

// Transform replaces the action with the one returned by fn; ok=false vetoes it.
func Transform[S, A any](name string, fn func(A, S) (A, bool)) Middleware[S, A] {
	return New(name, func(action A, state S, next Next[A]) {
		if transformed, ok := fn(action, state); ok {
			next(transformed)
		}
	})
}

// Delay forwards actions accepted by match after d; other actions pass through immediately.
// Delayed actions re-enter the store's serialized context when they reach the reducer.
func Delay[S, A any](name string, d time.Duration, match func(A) bool) Middleware[S, A] {
	return New(name, func(action A, _ S, next Next[A]) {
		if match != nil && !match(action) {
			next(action)
			return
		}
		time.AfterFunc(d, func() { next(action) })
	})
}

// Observe calls fn for every action and always forwards it.
func Observe[S, A any](name string, fn func(A, S)) Middleware[S, A] {
	var mu sync.Mutex
	return New(name, func(action A, state S, next Next[A]) {
		mu.Lock()
		fn(action, state)
		mu.Unlock()
		next(action)
	})
}

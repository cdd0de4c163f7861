package store

import (
	"context"
	"time"

	"github.com/on-the-ground/effect_ive_store/config"
	"github.com/on-the-ground/effect_ive_store/middleware"
	"go.uber.org/zap"
)

const (
	defaultFeedbackBuffer   = 64
	defaultSubscriberBuffer = 16
)

type options[S, A any] struct {
	ctx              context.Context
	logger           *zap.Logger
	middlewares      []middleware.Middleware[S, A]
	observers        []Observer[S, A]
	feedbackBuffer   int
	subscriberBuffer int
	now              func() time.Time
}

func defaultOptions[S, A any]() options[S, A] {
	return options[S, A]{
		ctx:              context.Background(),
		logger:           zap.NewNop(),
		feedbackBuffer:   defaultFeedbackBuffer,
		subscriberBuffer: defaultSubscriberBuffer,
		now:              time.Now,
	}
}

// Option configures a Store.
type Option[S, A any] func(*options[S, A])

// WithLogger sets the logger for the store, its executor and its subscriptions.
func WithLogger[S, A any](logger *zap.Logger) Option[S, A] {
	return func(o *options[S, A]) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMiddleware appends middlewares; the first registered sees each action first.
func WithMiddleware[S, A any](mws ...middleware.Middleware[S, A]) Option[S, A] {
	return func(o *options[S, A]) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithObserver registers a transition hook. Observers run in the serialized
// context after each reduction, in registration order.
func WithObserver[S, A any](observer Observer[S, A]) Option[S, A] {
	return func(o *options[S, A]) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithContext bounds the store's lifetime; cancelling ctx stops all effects.
func WithContext[S, A any](ctx context.Context) Option[S, A] {
	return func(o *options[S, A]) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithFeedbackBuffer sizes the channel that carries effect results back.
func WithFeedbackBuffer[S, A any](n int) Option[S, A] {
	return func(o *options[S, A]) {
		if n > 0 {
			o.feedbackBuffer = n
		}
	}
}

// WithSubscriberBuffer sets the buffer used by Subscribe when none is given.
func WithSubscriberBuffer[S, A any](n int) Option[S, A] {
	return func(o *options[S, A]) {
		if n > 0 {
			o.subscriberBuffer = n
		}
	}
}

// WithClock replaces time.Now for throttle windows and transition timestamps.
func WithClock[S, A any](now func() time.Time) Option[S, A] {
	return func(o *options[S, A]) {
		if now != nil {
			o.now = now
		}
	}
}

// FromConfig applies the [store] section of cfg.
func FromConfig[S, A any](cfg config.Config) Option[S, A] {
	return func(o *options[S, A]) {
		WithFeedbackBuffer[S, A](cfg.Store.FeedbackBuffer)(o)
		WithSubscriberBuffer[S, A](cfg.Store.SubscriberBuffer)(o)
	}
}

package persist

import (
	"errors"
	"fmt"

	"github.com/on-the-ground/effect_ive_store/config"
	"github.com/on-the-ground/effect_ive_store/middleware"
	"github.com/on-the-ground/effect_ive_store/store"
	"go.uber.org/zap"
)

const defaultKey = "state"

// Persister saves and restores one store's state. Failures never propagate
// into the store: they are logged and handed to the error handler.
type Persister[S any] struct {
	codec   Codec[S]
	storage Storage
	key     string
	onError func(error)
	logger  *zap.Logger
}

type Option[S any] func(*Persister[S])

// WithKey sets the storage key, "state" by default.
func WithKey[S any](key string) Option[S] {
	return func(p *Persister[S]) {
		if key != "" {
			p.key = key
		}
	}
}

// WithCodec replaces the default JSON codec.
func WithCodec[S any](codec Codec[S]) Option[S] {
	return func(p *Persister[S]) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithErrorHandler receives every save or restore failure.
func WithErrorHandler[S any](fn func(error)) Option[S] {
	return func(p *Persister[S]) {
		p.onError = fn
	}
}

func WithLogger[S any](logger *zap.Logger) Option[S] {
	return func(p *Persister[S]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// FromConfig applies the [persist] section of cfg.
func FromConfig[S any](cfg config.Config) (Option[S], error) {
	codec, err := CodecByName[S](cfg.Persist.Codec)
	if err != nil {
		return nil, err
	}
	return func(p *Persister[S]) {
		WithCodec(codec)(p)
		WithKey[S](cfg.Persist.Key)(p)
	}, nil
}

func NewPersister[S any](storage Storage, opts ...Option[S]) *Persister[S] {
	p := &Persister[S]{
		codec:   JSONCodec[S]{},
		storage: storage,
		key:     defaultKey,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save encodes and stores state.
func (p *Persister[S]) Save(state S) error {
	data, err := p.codec.Encode(state)
	if err == nil {
		err = p.storage.Save(p.key, data)
	}
	if err != nil {
		return p.fail("save", err)
	}
	p.logger.Debug("state saved", zap.String("key", p.key), zap.String("codec", p.codec.Name()), zap.Int("bytes", len(data)))
	return nil
}

// Restore loads the stored state. ok is false when nothing is stored or
// the snapshot cannot be read; only the latter reaches the error handler.
func (p *Persister[S]) Restore() (state S, ok bool) {
	data, err := p.storage.Load(p.key)
	if errors.Is(err, ErrNotFound) {
		return state, false
	}
	if err != nil {
		_ = p.fail("restore", err)
		return state, false
	}
	state, err = p.codec.Decode(data)
	if err != nil {
		_ = p.fail("restore", err)
		var zero S
		return zero, false
	}
	return state, true
}

// Clear removes the stored snapshot, if any.
func (p *Persister[S]) Clear() error {
	if err := p.storage.Delete(p.key); err != nil && !errors.Is(err, ErrNotFound) {
		return p.fail("clear", err)
	}
	return nil
}

func (p *Persister[S]) fail(op string, err error) error {
	err = fmt.Errorf("%s %q: %w", op, p.key, err)
	p.logger.Error("persistence failed", zap.String("key", p.key), zap.Error(err))
	if p.onError != nil {
		p.onError(err)
	}
	return err
}

// Observer saves the resulting state of every transition.
func Observer[S, A any](p *Persister[S]) store.Observer[S, A] {
	return func(t store.Transition[S, A]) {
		_ = p.Save(t.After)
	}
}

// saveMiddleware saves the live state after the rest of the pipeline has
// handled an action.
type saveMiddleware[S, A any] struct {
	persister *Persister[S]
	match     func(A) bool
	get       func() S
}

// Middleware returns a pipeline link named "persist" that saves after each
// action for which match returns true; nil matches every action.
func Middleware[S, A any](p *Persister[S], match func(A) bool) middleware.Middleware[S, A] {
	return &saveMiddleware[S, A]{persister: p, match: match}
}

func (m *saveMiddleware[S, A]) Name() string { return "persist" }

func (m *saveMiddleware[S, A]) BindState(get func() S) { m.get = get }

func (m *saveMiddleware[S, A]) Handle(action A, state S, next middleware.Next[A]) {
	next(action)
	if m.match != nil && !m.match(action) {
		return
	}
	if m.get != nil {
		state = m.get()
	}
	_ = m.persister.Save(state)
}

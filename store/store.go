package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/on-the-ground/effect_ive_store/effect"
	"github.com/on-the-ground/effect_ive_store/middleware"
	"github.com/on-the-ground/effect_ive_store/reducer"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Cloner is implemented by state types holding reference fields (maps,
// slices, pointers). Every snapshot handed out of the store is a Clone.
type Cloner[S any] interface {
	Clone() S
}

// Transition describes one reduction.
type Transition[S, A any] struct {
	Action A
	Before S
	After  S
	Start  time.Time
	End    time.Time
}

// Duration is the time spent in the reducer.
func (t Transition[S, A]) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Observer is notified of every transition. It runs in the serialized
// context; a Send from inside an observer is queued, not reduced in place.
type Observer[S, A any] func(Transition[S, A])

type command[S, A any] struct {
	scope   *scope
	action  A
	direct  bool
	restore *S
}

// Store owns a state value, serializes every mutation of it through its
// reducer and runs the effects the reducer returns.
type Store[S, A any] struct {
	reducer   reducer.Reducer[S, A]
	pipeline  middleware.Pipeline[S, A]
	observers []Observer[S, A]
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state S

	// reduceMu orders reductions, subscriber notification and subscription
	// changes.
	reduceMu sync.Mutex
	box      mailbox[command[S, A]]

	exec     *executor[A]
	feedback chan envelope[A]
	subs     *subscribers[S]
	subBuf   int

	ctx      context.Context
	cancel   context.CancelFunc
	pumpDone chan struct{}
	closed   atomic.Bool

	dispatched atomic.Uint64
}

// New builds a store around initial. It fails only when the middleware
// names are not unique.
func New[S, A any](initial S, r reducer.Reducer[S, A], opts ...Option[S, A]) (*Store[S, A], error) {
	o := defaultOptions[S, A]()
	for _, opt := range opts {
		opt(&o)
	}

	pipeline, err := middleware.NewPipeline(o.middlewares...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(o.ctx)
	s := &Store[S, A]{
		reducer:   r,
		pipeline:  pipeline,
		observers: o.observers,
		logger:    o.logger,
		now:       o.now,
		state:     clone(initial),
		feedback:  make(chan envelope[A], o.feedbackBuffer),
		subs:      newSubscribers[S](o.logger),
		subBuf:    o.subscriberBuffer,
		ctx:       ctx,
		cancel:    cancel,
		pumpDone:  make(chan struct{}),
	}
	s.exec = newExecutor(ctx, o.logger, s.feedback, s.redispatch, o.now)
	pipeline.BindState(s.State)
	s.startPump()
	return s, nil
}

// startPump forwards effect results into the serialized context.
func (s *Store[S, A]) startPump() {
	ready := make(chan struct{})
	go func() {
		defer close(s.pumpDone)
		close(ready)
		for {
			select {
			case env := <-s.feedback:
				s.enqueue(command[S, A]{scope: env.scope, action: env.action})
			case <-s.ctx.Done():
				return
			}
		}
	}()
	<-ready
}

// Send dispatches action. It never blocks on effects and never fails; calls
// made while a dispatch is in progress, including reentrant ones, are queued
// and processed in call order.
func (s *Store[S, A]) Send(action A) {
	if s.closed.Load() {
		s.logger.Debug("send on closed store ignored", zap.Any("action", action))
		return
	}
	s.enqueue(command[S, A]{action: action})
}

// State returns a snapshot of the current state.
func (s *Store[S, A]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.state)
}

// Restore replaces the state without running the reducer or middlewares.
// Subscribers are notified; observers are not.
func (s *Store[S, A]) Restore(state S) {
	if s.closed.Load() {
		return
	}
	st := clone(state)
	s.enqueue(command[S, A]{restore: &st})
}

// DispatchCount is the number of actions that entered the middleware pipeline.
func (s *Store[S, A]) DispatchCount() uint64 {
	return s.dispatched.Load()
}

// ActiveEffectCount is the number of effect routines currently running.
func (s *Store[S, A]) ActiveEffectCount() int {
	return int(s.exec.active.Load())
}

// PendingCount is the number of commands waiting in the serialized context.
func (s *Store[S, A]) PendingCount() int {
	return s.box.len()
}

// SubscriberCount is the number of live subscriptions.
func (s *Store[S, A]) SubscriberCount() int {
	return s.subs.count()
}

// Cancel cancels the effect registered under id.
func (s *Store[S, A]) Cancel(id effect.ID) {
	s.exec.cancel(id, nil)
}

// CancelAll cancels every running effect, clears pending debounces and
// throttle windows, and discards results still on their way back.
func (s *Store[S, A]) CancelAll() {
	s.exec.cancelAll()
}

// Subscribe returns a subscription that immediately receives the current
// state and then every subsequent one. buffer <= 0 uses the store default.
func (s *Store[S, A]) Subscribe(buffer int) (*Subscription[S], error) {
	if buffer <= 0 {
		buffer = s.subBuf
	}

	s.reduceMu.Lock()
	defer s.reduceMu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}

	id, c := s.subs.add(buffer)
	offer(c, s.State())
	return &Subscription[S]{
		c: c,
		cancel: func() {
			s.reduceMu.Lock()
			defer s.reduceMu.Unlock()
			s.subs.remove(id)
		},
	}, nil
}

// Close cancels every effect, waits for their routines to return and closes
// all subscriptions. The store ignores sends afterwards.
func (s *Store[S, A]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.cancel()
	s.exec.wait()
	<-s.pumpDone

	s.reduceMu.Lock()
	s.subs.closeAll()
	s.reduceMu.Unlock()
	return nil
}

func (s *Store[S, A]) redispatch(sc *scope, action A) {
	s.enqueue(command[S, A]{scope: sc, action: action})
}

func (s *Store[S, A]) enqueue(cmd command[S, A]) {
	if !s.box.push(cmd) {
		return
	}
	for {
		next, ok := s.box.next()
		if !ok {
			return
		}
		s.process(next)
	}
}

func (s *Store[S, A]) process(cmd command[S, A]) {
	if cmd.scope != nil {
		defer cmd.scope.settle()
	}

	switch {
	case cmd.restore != nil:
		s.reduceMu.Lock()
		s.mu.Lock()
		s.state = *cmd.restore
		s.mu.Unlock()
		s.subs.publish(s.State)
		s.reduceMu.Unlock()
		return

	case cmd.scope != nil && !cmd.scope.live():
		s.logger.Debug("dropped result of cancelled effect", zap.Any("action", cmd.action))
		return

	case cmd.direct:
		s.reduce(cmd.action)
		return
	}

	s.dispatched.Add(1)

	// The innermost link reduces in place while this command is being
	// processed. A middleware that forwards later (e.g. after a delay) goes
	// back through the mailbox and skips the pipeline.
	var returned atomic.Bool
	chain := s.pipeline.Build(s.State, func(action A) {
		if returned.Load() {
			s.enqueue(command[S, A]{action: action, direct: true})
			return
		}
		s.reduce(action)
	})
	chain(cmd.action)
	returned.Store(true)
}

func (s *Store[S, A]) reduce(action A) {
	s.reduceMu.Lock()

	var before S
	if len(s.observers) > 0 {
		before = s.State()
	}

	start := s.now()
	eff := s.safeReduce(action)
	end := s.now()

	s.subs.publish(s.State)
	if len(s.observers) > 0 {
		t := Transition[S, A]{Action: action, Before: before, After: s.State(), Start: start, End: end}
		for _, observe := range s.observers {
			observe(t)
		}
	}
	s.reduceMu.Unlock()

	if !effect.IsNone(eff) {
		s.exec.launch(eff)
	}
}

// safeReduce runs the reducer under the state lock. A panicking reducer
// breaks its contract; the panic is logged and the action dropped, the
// state keeps whatever the reducer wrote before panicking.
func (s *Store[S, A]) safeReduce(action A) (eff effect.Effect[A]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reducer panicked", zap.Any("action", action), zap.Any("error", r))
			eff = effect.None[A]()
		}
	}()
	return s.reducer.Reduce(&s.state, action)
}

func clone[S any](state S) S {
	if c, ok := any(state).(Cloner[S]); ok {
		return c.Clone()
	}
	return state
}

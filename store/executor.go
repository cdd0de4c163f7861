package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/on-the-ground/effect_ive_store/effect"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrEffectPanicked wraps a panic raised by effect work.
var ErrEffectPanicked = errors.New("effect panicked")

// throttleCapacity bounds how many throttle ids keep a window; the least
// recently admitted id is forgotten first.
const throttleCapacity = 4096

// scope is a cancellation scope. Actions produced inside a scope are only
// reduced while the scope and all of its parents are still live, which closes
// the window between a task finishing and its follow-up action being reduced.
type scope struct {
	key       uuid.UUID
	parent    *scope
	cancelled atomic.Bool
	cancel    context.CancelFunc
	token     uint64

	// A finished scope stays registered until the results it queued are processed.
	pending  atomic.Int64
	finished atomic.Bool
	retire   func()
}

func (s *scope) live() bool {
	for c := s; c != nil; c = c.parent {
		if c.cancelled.Load() {
			return false
		}
	}
	return true
}

// hold records a result queued for the store on s and its parents.
func (s *scope) hold() {
	for c := s; c != nil; c = c.parent {
		c.pending.Add(1)
	}
}

// settle undoes hold once the store has taken the result.
func (s *scope) settle() {
	for c := s; c != nil; c = c.parent {
		if c.pending.Add(-1) <= 0 && c.finished.Load() && c.retire != nil {
			c.retire()
		}
	}
}

func (s *scope) finish() {
	s.finished.Store(true)
	if s.pending.Load() <= 0 && s.retire != nil {
		s.retire()
	}
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// claim reserves an id for a launched effect before execution reaches the
// effect carrying it. cancelled is guarded by the executor's mu.
type claim struct {
	cancelled bool
}

// claims are the reservations of one launched effect tree. They are dropped
// when the last routine started for the tree returns.
type claims struct {
	refs  atomic.Int64
	byKey map[uuid.UUID]*claim
}

func (c *claims) acquire() {
	if c != nil {
		c.refs.Add(1)
	}
}

type claimsKey struct{}

func claimFrom(ctx context.Context, key uuid.UUID) *claim {
	c, _ := ctx.Value(claimsKey{}).(*claims)
	if c == nil {
		return nil
	}
	return c.byKey[key]
}

// reservations collects the ids in e. The value is false for ids only held
// by throttles, which never displace an earlier holder.
func reservations[A any](e effect.Effect[A], keys map[uuid.UUID]bool) {
	switch e := e.(type) {
	case effect.TaskEffect[A]:
		if !e.ID.IsZero() {
			keys[e.ID.UUID()] = true
		}
	case effect.CancellableEffect[A]:
		keys[e.ID.UUID()] = true
		reservations(e.Effect, keys)
	case effect.DebounceEffect[A]:
		keys[e.ID.UUID()] = true
		reservations(e.Effect, keys)
	case effect.ThrottleEffect[A]:
		if _, ok := keys[e.ID.UUID()]; !ok {
			keys[e.ID.UUID()] = false
		}
		reservations(e.Effect, keys)
	case effect.MergeEffect[A]:
		for _, child := range e.Effects {
			reservations(child, keys)
		}
	case effect.ConcatenateEffect[A]:
		for _, child := range e.Effects {
			reservations(child, keys)
		}
	case effect.DelayEffect[A]:
		reservations(e.Effect, keys)
	case effect.TimeoutEffect[A]:
		reservations(e.Effect, keys)
	case effect.RetryEffect[A]:
		reservations(e.Effect, keys)
	case effect.CatchEffect[A]:
		reservations(e.Effect, keys)
	}
}

// envelope carries an action produced by an effect back to the store.
type envelope[A any] struct {
	scope  *scope
	action A
}

type emitFn[A any] func(ctx context.Context, action A)

// executor runs effect descriptions. It never touches state: follow-up
// actions go back to the store either synchronously through dispatch (while
// launching from the serialized context) or through the feedback channel.
type executor[A any] struct {
	logger   *zap.Logger
	sv       *supervisor
	feedback chan<- envelope[A]
	dispatch func(*scope, A)
	now      func() time.Time

	root   context.Context
	active atomic.Int64

	mu        sync.Mutex
	gen       context.Context
	genScope  *scope
	scopes    map[uuid.UUID]*scope
	claimed   map[uuid.UUID][]*claim
	throttled *lru.Cache[uuid.UUID, time.Time]
	seq       uint64
	stopped   bool
}

func newExecutor[A any](
	root context.Context,
	logger *zap.Logger,
	feedback chan<- envelope[A],
	dispatch func(*scope, A),
	now func() time.Time,
) *executor[A] {
	// lru.New only fails for a non-positive size.
	throttled, _ := lru.New[uuid.UUID, time.Time](throttleCapacity)
	x := &executor[A]{
		logger:    logger,
		sv:        &supervisor{logger: logger},
		feedback:  feedback,
		dispatch:  dispatch,
		now:       now,
		root:      root,
		scopes:    make(map[uuid.UUID]*scope),
		claimed:   make(map[uuid.UUID][]*claim),
		throttled: throttled,
	}
	x.newGeneration()
	return x
}

// newGeneration must be called with mu held, or before the executor is shared.
func (x *executor[A]) newGeneration() {
	ctx, cancel := context.WithCancel(x.root)
	x.genScope = &scope{cancel: cancel}
	x.gen = context.WithValue(ctx, scopeKey{}, x.genScope)
}

// launch starts e from the serialized context. Everything that must be ordered
// relative to later actions happens before launch returns: Send is enqueued,
// Cancel takes effect, throttle windows are checked and every id in e is
// reserved, displacing earlier holders. Only the asynchronous parts run on goroutines.
func (x *executor[A]) launch(e effect.Effect[A]) {
	x.mu.Lock()
	ctx := x.gen
	c := x.reserve(e)
	x.mu.Unlock()

	if c != nil {
		ctx = context.WithValue(ctx, claimsKey{}, c)
	}
	x.start(ctx, e)
	x.unreserve(c)
}

// reserve must be called with mu held.
func (x *executor[A]) reserve(e effect.Effect[A]) *claims {
	keys := make(map[uuid.UUID]bool)
	reservations(e, keys)
	if len(keys) == 0 {
		return nil
	}
	c := &claims{byKey: make(map[uuid.UUID]*claim, len(keys))}
	c.refs.Store(1)
	for key, replace := range keys {
		if replace {
			x.displace(key, nil)
		}
		cl := &claim{}
		c.byKey[key] = cl
		x.claimed[key] = append(x.claimed[key], cl)
	}
	return c
}

func (x *executor[A]) unreserve(c *claims) {
	if c == nil || c.refs.Add(-1) > 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for key, cl := range c.byKey {
		held := x.claimed[key]
		if i := slices.Index(held, cl); i >= 0 {
			held = slices.Delete(held, i, i+1)
		}
		if len(held) == 0 {
			delete(x.claimed, key)
		} else {
			x.claimed[key] = held
		}
	}
}

func (x *executor[A]) start(ctx context.Context, e effect.Effect[A]) {
	switch e := e.(type) {
	case nil, effect.NoneEffect[A]:
		return

	case effect.SendEffect[A]:
		sc := scopeFrom(ctx)
		sc.hold()
		x.dispatch(sc, e.Action)

	case effect.CancelEffect[A]:
		x.cancel(e.ID, claimFrom(ctx, e.ID.UUID()))

	case effect.MergeEffect[A]:
		for _, child := range e.Effects {
			x.start(ctx, child)
		}

	case effect.ThrottleEffect[A]:
		if !x.admit(e.ID, e.Duration) {
			x.logger.Debug("throttled effect dropped", zap.Stringer("effect_id", e.ID))
			return
		}
		sctx, release := x.enter(ctx, e.ID)
		x.spawn(sctx, e, func() error {
			defer release()
			return x.execute(sctx, e.Effect, x.emit)
		})

	case effect.TaskEffect[A]:
		if e.ID.IsZero() {
			x.spawn(ctx, e, func() error { return x.runTask(ctx, e, x.emit) })
			return
		}
		sctx, release := x.enter(ctx, e.ID)
		x.spawn(sctx, e, func() error {
			defer release()
			return x.runTask(sctx, e, x.emit)
		})

	case effect.CancellableEffect[A]:
		sctx, release := x.enter(ctx, e.ID)
		x.spawn(sctx, e, func() error {
			defer release()
			return x.execute(sctx, e.Effect, x.emit)
		})

	case effect.DebounceEffect[A]:
		sctx, release := x.enter(ctx, e.ID)
		x.spawn(sctx, e, func() error {
			defer release()
			return x.debounce(sctx, e, x.emit)
		})

	default:
		x.spawn(ctx, e, func() error { return x.execute(ctx, e, x.emit) })
	}
}

// execute runs e to completion on the calling goroutine.
func (x *executor[A]) execute(ctx context.Context, e effect.Effect[A], emit emitFn[A]) error {
	switch e := e.(type) {
	case nil, effect.NoneEffect[A]:
		return nil

	case effect.SendEffect[A]:
		emit(ctx, e.Action)
		return nil

	case effect.CancelEffect[A]:
		x.cancel(e.ID, claimFrom(ctx, e.ID.UUID()))
		return nil

	case effect.TaskEffect[A]:
		if !e.ID.IsZero() {
			sctx, release := x.enter(ctx, e.ID)
			defer release()
			ctx = sctx
		}
		return x.runTask(ctx, e, emit)

	case effect.MergeEffect[A]:
		return x.merge(ctx, e.Effects, emit)

	case effect.ConcatenateEffect[A]:
		return x.concatenate(ctx, e.Effects, emit)

	case effect.CancellableEffect[A]:
		sctx, release := x.enter(ctx, e.ID)
		defer release()
		return x.execute(sctx, e.Effect, emit)

	case effect.DebounceEffect[A]:
		sctx, release := x.enter(ctx, e.ID)
		defer release()
		return x.debounce(sctx, e, emit)

	case effect.ThrottleEffect[A]:
		if !x.admit(e.ID, e.Duration) {
			x.logger.Debug("throttled effect dropped", zap.Stringer("effect_id", e.ID))
			return nil
		}
		sctx, release := x.enter(ctx, e.ID)
		defer release()
		return x.execute(sctx, e.Effect, emit)

	case effect.DelayEffect[A]:
		if !sleep(ctx, e.Duration) {
			return ctx.Err()
		}
		return x.execute(ctx, e.Effect, emit)

	case effect.TimeoutEffect[A]:
		return x.timeout(ctx, e, emit)

	case effect.RetryEffect[A]:
		return x.retry(ctx, e, emit)

	case effect.CatchEffect[A]:
		err := x.execute(ctx, e.Effect, emit)
		if err == nil || isCancellation(err) || e.Handler == nil {
			return err
		}
		if action, ok := e.Handler(err); ok {
			emit(ctx, action)
		}
		return nil

	default:
		// Effect is sealed, so this is a bug.
		panic(fmt.Sprintf("unrecognized effect variant: %T", e))
	}
}

func (x *executor[A]) runTask(ctx context.Context, e effect.TaskEffect[A], emit emitFn[A]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEffectPanicked, r)
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	action, ok, err := e.Work(ctx)
	if ctx.Err() != nil {
		// Whatever the work returned, it was cancelled first.
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if ok {
		emit(ctx, action)
	}
	return nil
}

func (x *executor[A]) merge(ctx context.Context, children []effect.Effect[A], emit emitFn[A]) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, child := range children {
		wg.Add(1)
		go func(child effect.Effect[A]) {
			defer wg.Done()
			if err := x.protect(func() error { return x.execute(ctx, child, emit) }); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(child)
	}
	wg.Wait()
	return errs
}

// concatenate runs children in order. The chain stops after the first child
// that yields an action, or at the first failure.
func (x *executor[A]) concatenate(ctx context.Context, children []effect.Effect[A], emit emitFn[A]) error {
	for _, child := range children {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var yielded atomic.Bool
		err := x.execute(ctx, child, func(ctx context.Context, action A) {
			yielded.Store(true)
			emit(ctx, action)
		})
		if err != nil {
			return err
		}
		if yielded.Load() {
			return nil
		}
	}
	return nil
}

// debounce expects ctx to already carry the debounce scope.
func (x *executor[A]) debounce(ctx context.Context, e effect.DebounceEffect[A], emit emitFn[A]) error {
	if !sleep(ctx, e.Duration) {
		return ctx.Err()
	}
	return x.execute(ctx, e.Effect, emit)
}

// timeout races the inner effect against a deadline. The first outcome wins:
// either the inner effect yields or completes, or the deadline fires the fallback.
func (x *executor[A]) timeout(ctx context.Context, e effect.TimeoutEffect[A], emit emitFn[A]) error {
	inner, cancel := context.WithCancel(ctx)

	var (
		mu       sync.Mutex
		settled  bool
		timedOut bool
	)
	guarded := func(c context.Context, action A) {
		mu.Lock()
		if timedOut {
			mu.Unlock()
			return
		}
		settled = true
		mu.Unlock()
		emit(c, action)
	}

	done := make(chan error, 1)
	go func() {
		done <- x.protect(func() error { return x.execute(inner, e.Effect, guarded) })
	}()

	timer := time.NewTimer(e.Duration)
	defer timer.Stop()

	select {
	case err := <-done:
		cancel()
		return err

	case <-timer.C:
		mu.Lock()
		if settled {
			mu.Unlock()
			err := <-done
			cancel()
			return err
		}
		timedOut = true
		mu.Unlock()

		cancel()
		x.logger.Debug("effect timed out, dispatching fallback",
			zap.Duration("timeout", e.Duration),
			zap.Error(effect.ErrTimeout),
		)
		emit(ctx, e.Fallback)
		// The inner routine is joined so it cannot outlive Close.
		<-done
		return nil

	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (x *executor[A]) retry(ctx context.Context, e effect.RetryEffect[A], emit emitFn[A]) error {
	var err error
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		err = x.execute(ctx, e.Effect, emit)
		if err == nil || isCancellation(err) {
			return err
		}
		if attempt == e.MaxAttempts {
			break
		}
		x.logger.Debug("effect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.MaxAttempts),
			zap.Error(err),
		)
		if !sleep(ctx, e.Delay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %d, %w", effect.ErrMaxAttempts, e.MaxAttempts, err)
}

// emit hands an action produced on an effect goroutine back to the store.
func (x *executor[A]) emit(ctx context.Context, action A) {
	sc := scopeFrom(ctx)
	if sc != nil && !sc.live() {
		return
	}
	sc.hold()
	select {
	case x.feedback <- envelope[A]{scope: sc, action: action}:
	case <-ctx.Done():
		sc.settle()
	case <-x.root.Done():
		sc.settle()
	}
}

// enter opens a cancellation scope for id, cancelling the previous holder of
// id. The returned release closes the scope without marking it cancelled.
// Entering the id of the enclosing scope reuses it, and entering an id whose
// reservation was cancelled yields a scope that is already dead.
func (x *executor[A]) enter(ctx context.Context, id effect.ID) (context.Context, func()) {
	key := id.UUID()
	parent := scopeFrom(ctx)
	if parent != nil && parent.key == key {
		return ctx, func() {}
	}

	sctx, cancel := context.WithCancel(ctx)
	sc := &scope{key: key, parent: parent, cancel: cancel}

	x.mu.Lock()
	if cl := claimFrom(ctx, key); cl != nil && cl.cancelled {
		x.mu.Unlock()
		sc.cancelled.Store(true)
		cancel()
		return context.WithValue(sctx, scopeKey{}, sc), func() {}
	}
	if prev, ok := x.scopes[key]; ok {
		prev.cancelled.Store(true)
		prev.cancel()
	}
	x.seq++
	sc.token = x.seq
	sc.retire = func() {
		x.mu.Lock()
		defer x.mu.Unlock()
		if cur, ok := x.scopes[key]; ok && cur.token == sc.token {
			delete(x.scopes, key)
		}
	}
	x.scopes[key] = sc
	x.mu.Unlock()

	return context.WithValue(sctx, scopeKey{}, sc), func() {
		cancel()
		sc.finish()
	}
}

// cancel cancels whatever holds id. keep, when set, is a reservation of the
// cancelling effect tree itself and survives.
func (x *executor[A]) cancel(id effect.ID, keep *claim) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.displace(id.UUID(), keep) {
		x.logger.Debug("effect cancelled", zap.Stringer("effect_id", id))
	}
}

// displace cancels the running scope and every reservation of key but keep.
// It must be called with mu held.
func (x *executor[A]) displace(key uuid.UUID, keep *claim) bool {
	found := false
	var kept []*claim
	for _, cl := range x.claimed[key] {
		if cl == keep {
			kept = append(kept, cl)
			continue
		}
		cl.cancelled = true
		found = true
	}
	if len(kept) > 0 {
		x.claimed[key] = kept
	} else {
		delete(x.claimed, key)
	}
	if sc, ok := x.scopes[key]; ok {
		sc.cancelled.Store(true)
		sc.cancel()
		delete(x.scopes, key)
		found = true
	}
	return found
}

// cancelAll cancels every running effect, pending debounce and throttle window.
func (x *executor[A]) cancelAll() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for key := range x.scopes {
		x.displace(key, nil)
	}
	for key := range x.claimed {
		x.displace(key, nil)
	}
	x.throttled.Purge()
	x.genScope.cancelled.Store(true)
	x.genScope.cancel()
	x.newGeneration()
}

func (x *executor[A]) admit(id effect.ID, window time.Duration) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	now := x.now()
	if last, ok := x.throttled.Get(id.UUID()); ok && now.Sub(last) < window {
		return false
	}
	x.throttled.Add(id.UUID(), now)
	return true
}

// spawn runs e on a supervised routine. The reservations carried by ctx live
// at least until the routine returns.
func (x *executor[A]) spawn(ctx context.Context, e effect.Effect[A], run func() error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.stopped || x.root.Err() != nil {
		return
	}
	c, _ := ctx.Value(claimsKey{}).(*claims)
	c.acquire()
	x.active.Add(1)
	x.sv.spawn(effect.Describe(e), func() {
		defer x.active.Add(-1)
		defer x.unreserve(c)
		x.report(e, run())
	})
}

func (x *executor[A]) report(e effect.Effect[A], err error) {
	switch {
	case err == nil:
	case isCancellation(err):
		x.logger.Debug("effect cancelled", zap.String("effect", effect.Describe(e)))
	default:
		x.logger.Error("effect failed", zap.String("effect", effect.Describe(e)), zap.Error(err))
	}
}

func (x *executor[A]) protect(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEffectPanicked, r)
		}
	}()
	return run()
}

// wait stops new spawns and blocks until running routines return.
func (x *executor[A]) wait() {
	x.mu.Lock()
	x.stopped = true
	x.mu.Unlock()
	x.sv.wait()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

package store

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Subscription delivers state snapshots in the order they were produced.
// A subscriber that falls behind loses the oldest pending snapshot, so it
// always converges on the latest state.
type Subscription[S any] struct {
	c      chan S
	once   sync.Once
	cancel func()
}

// C returns the snapshot channel. It is closed when the subscription is
// cancelled or the store is closed.
func (s *Subscription[S]) C() <-chan S {
	return s.c
}

// Cancel stops delivery and closes C. It is safe to call more than once.
func (s *Subscription[S]) Cancel() {
	s.once.Do(s.cancel)
}

// offer sends v, evicting the oldest buffered value when the buffer is full.
// It must only be called by the single producer of c.
func offer[S any](c chan S, v S) (dropped bool) {
	for {
		select {
		case c <- v:
			return dropped
		default:
		}
		select {
		case <-c:
			dropped = true
		default:
		}
	}
}

// subscribers is the store's registry. All producers run under the store's
// reduce lock, so each channel has exactly one writer at a time.
type subscribers[S any] struct {
	logger *zap.Logger
	seq    atomic.Uint64
	subs   *xsync.MapOf[uint64, chan S]
}

func newSubscribers[S any](logger *zap.Logger) *subscribers[S] {
	return &subscribers[S]{
		logger: logger,
		subs:   xsync.NewMapOf[uint64, chan S](),
	}
}

func (r *subscribers[S]) add(buffer int) (uint64, chan S) {
	if buffer < 1 {
		buffer = 1
	}
	id := r.seq.Add(1)
	c := make(chan S, buffer)
	r.subs.Store(id, c)
	return id, c
}

func (r *subscribers[S]) remove(id uint64) {
	if c, ok := r.subs.LoadAndDelete(id); ok {
		close(c)
	}
}

func (r *subscribers[S]) publish(snapshot func() S) {
	r.subs.Range(func(id uint64, c chan S) bool {
		if offer(c, snapshot()) {
			r.logger.Debug("slow subscriber, dropped a stale snapshot", zap.Uint64("subscriber", id))
		}
		return true
	})
}

func (r *subscribers[S]) closeAll() {
	r.subs.Range(func(id uint64, _ chan S) bool {
		r.remove(id)
		return true
	})
}

func (r *subscribers[S]) count() int {
	return r.subs.Size()
}

// mapSubscription projects every value of source through f into a new
// subscription. Cancelling the result cancels source.
func mapSubscription[S, R any](source *Subscription[S], buffer int, f func(S) R) *Subscription[R] {
	if buffer < 1 {
		buffer = 1
	}
	sink := &Subscription[R]{
		c:      make(chan R, buffer),
		cancel: source.Cancel,
	}
	ready := make(chan struct{})
	go func() {
		defer close(sink.c)
		close(ready)
		for v := range source.C() {
			offer(sink.c, f(v))
		}
	}()
	<-ready
	return sink
}

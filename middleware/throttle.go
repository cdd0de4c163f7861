package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultThrottleCapacity = 1024

type throttleConfig[A any] struct {
	now      func() time.Time
	hash     func(A) uint64
	capacity int
}

// ThrottleOption configures ThrottleByAction.
type ThrottleOption[A any] func(*throttleConfig[A])

// WithClock replaces time.Now.
func WithClock[A any](now func() time.Time) ThrottleOption[A] {
	return func(c *throttleConfig[A]) { c.now = now }
}

// WithActionHash replaces the default action hash. Actions with equal hashes are throttled together.
func WithActionHash[A any](hash func(A) uint64) ThrottleOption[A] {
	return func(c *throttleConfig[A]) { c.hash = hash }
}

// WithCapacity bounds how many distinct actions are remembered; the least recently
// seen action is forgotten first.
func WithCapacity[A any](capacity int) ThrottleOption[A] {
	return func(c *throttleConfig[A]) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// HashAction hashes the printed form of action, so structurally equal actions hash equally.
func HashAction[A any](action A) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%T:%+v", action, action))
}

// ThrottleByAction drops an action dispatched again within window of the last
// forwarded dispatch of an equal action. The timestamp table is private to the
// returned middleware; do not share one instance between stores.
func ThrottleByAction[S, A any](window time.Duration, opts ...ThrottleOption[A]) Middleware[S, A] {
	cfg := throttleConfig[A]{
		now:      time.Now,
		hash:     HashAction[A],
		capacity: defaultThrottleCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	// lru.New only fails for a non-positive size.
	lastSeen, _ := lru.New[uint64, time.Time](cfg.capacity)
	return &throttleMiddleware[S, A]{
		window:   window,
		cfg:      cfg,
		lastSeen: lastSeen,
	}
}

type throttleMiddleware[S, A any] struct {
	window time.Duration
	cfg    throttleConfig[A]

	mu       sync.Mutex
	lastSeen *lru.Cache[uint64, time.Time]
}

func (m *throttleMiddleware[S, A]) Name() string { return "throttle" }

func (m *throttleMiddleware[S, A]) Handle(action A, _ S, next Next[A]) {
	if !m.admit(m.cfg.hash(action)) {
		return
	}
	next(action)
}

func (m *throttleMiddleware[S, A]) admit(key uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.now()
	if last, ok := m.lastSeen.Get(key); ok && now.Sub(last) < m.window {
		return false
	}
	m.lastSeen.Add(key, now)
	return true
}

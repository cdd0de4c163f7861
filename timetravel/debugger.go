package timetravel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/on-the-ground/effect_ive_store/config"
	"github.com/on-the-ground/effect_ive_store/store"
	"github.com/rickb777/date/v2/timespan"
	"go.uber.org/zap"
)

var (
	// ErrIndexOutOfRange is returned when jumping outside the recorded history.
	ErrIndexOutOfRange = errors.New("history index out of range")

	// ErrNotDiffable is returned by Diff when the state type does not implement Diffable.
	ErrNotDiffable = errors.New("state is not diffable")
)

const defaultMaxEntries = 1000

// Entry is one recorded transition.
type Entry[S, A any] struct {
	// Index is the entry's position in the history when it was read.
	Index  int
	Action A
	Before S
	After  S
	// Span covers the reduction, from the reducer call to its return.
	Span timespan.TimeSpan
}

// Timestamp is when the reduction started.
func (e Entry[S, A]) Timestamp() time.Time {
	return e.Span.Start()
}

// Duration is the time spent in the reducer.
func (e Entry[S, A]) Duration() time.Duration {
	return e.Span.Duration()
}

// Restorer replaces a store's live state. *store.Store implements it.
type Restorer[S any] interface {
	Restore(state S)
}

// Debugger records a store's transitions and moves its live state to any
// recorded point.
//
// While the current index is the tip the debugger is recording. Jumping back
// makes it time-travel; the next recorded transition then discards every
// entry after the current index before being appended, and recording resumes.
// Jumps restore state only: effects started since are not rolled back.
type Debugger[S, A any] struct {
	mu         sync.Mutex
	logger     *zap.Logger
	maxEntries int
	entries    []Entry[S, A]
	current    int
	traveling  bool
	paused     bool
	target     Restorer[S]
}

// Option configures a Debugger.
type Option func(*settings)

type settings struct {
	logger     *zap.Logger
	maxEntries int
}

// WithMaxEntries bounds the history; the oldest entries are evicted first.
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithLogger sets the debugger's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// FromConfig applies the [history] section of cfg.
func FromConfig(cfg config.Config) Option {
	return WithMaxEntries(cfg.History.MaxEntries)
}

// New returns an empty, recording debugger.
func New[S, A any](opts ...Option) *Debugger[S, A] {
	s := settings{logger: zap.NewNop(), maxEntries: defaultMaxEntries}
	for _, opt := range opts {
		opt(&s)
	}
	return &Debugger[S, A]{
		logger:     s.logger,
		maxEntries: s.maxEntries,
		current:    -1,
	}
}

// Attach sets the store whose state jumps restore.
func (d *Debugger[S, A]) Attach(target Restorer[S]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = target
}

// Observer returns the hook to register with store.WithObserver.
func (d *Debugger[S, A]) Observer() store.Observer[S, A] {
	return d.Record
}

// Record appends a transition. While time-traveling it first truncates the
// entries after the current index.
func (d *Debugger[S, A]) Record(t store.Transition[S, A]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paused {
		return
	}
	if d.traveling {
		dropped := len(d.entries) - (d.current + 1)
		clear(d.entries[d.current+1:])
		d.entries = d.entries[:d.current+1]
		d.traveling = false
		d.logger.Debug("history branch discarded", zap.Int("dropped", dropped))
	}

	d.entries = append(d.entries, Entry[S, A]{
		Action: t.Action,
		Before: t.Before,
		After:  t.After,
		Span:   timespan.BetweenTimes(t.Start, t.End),
	})
	d.current = len(d.entries) - 1

	if over := len(d.entries) - d.maxEntries; over > 0 {
		clear(d.entries[:over])
		d.entries = d.entries[over:]
		d.current -= over
	}
}

// JumpTo makes index current and restores its resulting state.
func (d *Debugger[S, A]) JumpTo(index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.entries) {
		n := len(d.entries)
		d.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, n)
	}
	d.current = index
	d.traveling = index < len(d.entries)-1
	state, target := d.entries[index].After, d.target
	d.mu.Unlock()

	d.logger.Debug("jumped in history", zap.Int("index", index))
	if target != nil {
		target.Restore(state)
	}
	return nil
}

// StepBack jumps to the previous entry.
func (d *Debugger[S, A]) StepBack() error {
	return d.JumpTo(d.CurrentIndex() - 1)
}

// StepForward jumps to the next entry.
func (d *Debugger[S, A]) StepForward() error {
	return d.JumpTo(d.CurrentIndex() + 1)
}

// Clear drops every entry and resumes recording.
func (d *Debugger[S, A]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
	d.current = -1
	d.traveling = false
}

// Pause stops recording until Resume.
func (d *Debugger[S, A]) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

func (d *Debugger[S, A]) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

// Entries returns a copy of the history, oldest first.
func (d *Debugger[S, A]) Entries() []Entry[S, A] {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Entry[S, A], len(d.entries))
	for i, e := range d.entries {
		e.Index = i
		e.Before = clone(e.Before)
		e.After = clone(e.After)
		out[i] = e
	}
	return out
}

// Len is the number of recorded entries.
func (d *Debugger[S, A]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// CurrentIndex is -1 when the history is empty.
func (d *Debugger[S, A]) CurrentIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Debugger[S, A]) IsTimeTraveling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.traveling
}

// Replay sends the actions of entries [from, to] again, in order. Replayed
// actions are ordinary dispatches and are recorded like any other.
func (d *Debugger[S, A]) Replay(send func(A), from, to int) error {
	d.mu.Lock()
	if from < 0 || to >= len(d.entries) || from > to {
		n := len(d.entries)
		d.mu.Unlock()
		return fmt.Errorf("%w: [%d, %d] not in [0, %d)", ErrIndexOutOfRange, from, to, n)
	}
	actions := make([]A, 0, to-from+1)
	for _, e := range d.entries[from : to+1] {
		actions = append(actions, e.Action)
	}
	d.mu.Unlock()

	for _, a := range actions {
		send(a)
	}
	return nil
}

func clone[S any](state S) S {
	if c, ok := any(state).(store.Cloner[S]); ok {
		return c.Clone()
	}
	return state
}

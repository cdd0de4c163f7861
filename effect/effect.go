package effect

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMaxAttempts is returned by a Retry effect whose every attempt failed.
	ErrMaxAttempts = errors.New("max attempts reached")
	// ErrTimeout is reported when a Timeout effect hits its deadline.
	ErrTimeout = errors.New("effect timed out")
)

// Effect is a sealed union of effect descriptions producing actions of type A.
// Only the variant types declared in this package implement it.
type Effect[A any] interface {
	sealedEffect(A)
}

// Priority is a scheduling hint attached to a Task.
type Priority int

const (
	PriorityMedium Priority = iota
	PriorityLow
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "medium"
	}
}

// Work is the asynchronous body of a Task. It returns ok=false when it produces no action.
// Work must honour ctx cancellation.
type Work[A any] func(ctx context.Context) (action A, ok bool, err error)

// NoneEffect does nothing.
type NoneEffect[A any] struct{}

// SendEffect dispatches Action within the store's serialized context.
type SendEffect[A any] struct {
	Action A
}

// TaskEffect runs Work on the executor. A non-zero ID makes the task cancellable
// and replaces any in-flight effect with the same ID.
type TaskEffect[A any] struct {
	ID       ID
	Priority Priority
	Work     Work[A]
}

// MergeEffect runs all Effects in parallel with no ordering promise between them.
type MergeEffect[A any] struct {
	Effects []Effect[A]
}

// ConcatenateEffect runs Effects one after another. The chain stops after the
// first child that yields an action or fails.
type ConcatenateEffect[A any] struct {
	Effects []Effect[A]
}

// CancelEffect cancels the in-flight effect registered under ID.
type CancelEffect[A any] struct {
	ID ID
}

// CancellableEffect runs Effect under a cancellation scope named ID.
type CancellableEffect[A any] struct {
	ID     ID
	Effect Effect[A]
}

// DebounceEffect runs Effect once Duration has passed without another submission with the same ID.
type DebounceEffect[A any] struct {
	ID       ID
	Duration time.Duration
	Effect   Effect[A]
}

// ThrottleEffect runs Effect at most once per Duration window for ID; submissions
// inside the window are dropped.
type ThrottleEffect[A any] struct {
	ID       ID
	Duration time.Duration
	Effect   Effect[A]
}

// DelayEffect runs Effect after Duration.
type DelayEffect[A any] struct {
	Duration time.Duration
	Effect   Effect[A]
}

// TimeoutEffect races Effect against Duration and yields Fallback if the deadline wins.
type TimeoutEffect[A any] struct {
	Duration time.Duration
	Fallback A
	Effect   Effect[A]
}

// RetryEffect re-runs Effect while it fails, up to MaxAttempts runs, waiting Delay between runs.
type RetryEffect[A any] struct {
	MaxAttempts int
	Delay       time.Duration
	Effect      Effect[A]
}

// CatchEffect converts a failure of Effect into an action via Handler.
type CatchEffect[A any] struct {
	Effect  Effect[A]
	Handler func(error) (A, bool)
}

func (NoneEffect[A]) sealedEffect(A)        {}
func (SendEffect[A]) sealedEffect(A)        {}
func (TaskEffect[A]) sealedEffect(A)        {}
func (MergeEffect[A]) sealedEffect(A)       {}
func (ConcatenateEffect[A]) sealedEffect(A) {}
func (CancelEffect[A]) sealedEffect(A)      {}
func (CancellableEffect[A]) sealedEffect(A) {}
func (DebounceEffect[A]) sealedEffect(A)    {}
func (ThrottleEffect[A]) sealedEffect(A)    {}
func (DelayEffect[A]) sealedEffect(A)       {}
func (TimeoutEffect[A]) sealedEffect(A)     {}
func (RetryEffect[A]) sealedEffect(A)       {}
func (CatchEffect[A]) sealedEffect(A)       {}

// None returns the empty effect.
func None[A any]() Effect[A] {
	return NoneEffect[A]{}
}

// IsNone reports whether e does nothing.
func IsNone[A any](e Effect[A]) bool {
	switch e.(type) {
	case nil, NoneEffect[A]:
		return true
	}
	return false
}

// Send dispatches action synchronously once the current reduction finishes.
func Send[A any](action A) Effect[A] {
	return SendEffect[A]{Action: action}
}

// Task wraps asynchronous work. Pass a zero ID for work that cannot be cancelled by ID.
func Task[A any](id ID, priority Priority, work Work[A]) Effect[A] {
	if work == nil {
		return None[A]()
	}
	return TaskEffect[A]{ID: id, Priority: priority, Work: work}
}

// Future is a Task whose work always yields an action unless it fails.
func Future[A any](work func(context.Context) (A, error)) Effect[A] {
	return Task(ID{}, PriorityMedium, func(ctx context.Context) (A, bool, error) {
		action, err := work(ctx)
		if err != nil {
			var zero A
			return zero, false, err
		}
		return action, true, nil
	})
}

// FireAndForget is a Task that never yields an action.
func FireAndForget[A any](work func(context.Context) error) Effect[A] {
	return Task(ID{}, PriorityMedium, func(ctx context.Context) (A, bool, error) {
		var zero A
		return zero, false, work(ctx)
	})
}

// Merge runs effects in parallel. None children are dropped, nested merges are
// flattened, an empty result is None and a single child is returned as is.
func Merge[A any](effects ...Effect[A]) Effect[A] {
	flat := make([]Effect[A], 0, len(effects))
	for _, e := range effects {
		switch e := e.(type) {
		case nil, NoneEffect[A]:
		case MergeEffect[A]:
			flat = append(flat, e.Effects...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return None[A]()
	case 1:
		return flat[0]
	default:
		return MergeEffect[A]{Effects: flat}
	}
}

// Concatenate runs effects sequentially, with the same normalisation rules as Merge.
func Concatenate[A any](effects ...Effect[A]) Effect[A] {
	flat := make([]Effect[A], 0, len(effects))
	for _, e := range effects {
		switch e := e.(type) {
		case nil, NoneEffect[A]:
		case ConcatenateEffect[A]:
			flat = append(flat, e.Effects...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return None[A]()
	case 1:
		return flat[0]
	default:
		return ConcatenateEffect[A]{Effects: flat}
	}
}

// Cancel cancels whatever runs under id.
func Cancel[A any](id ID) Effect[A] {
	return CancelEffect[A]{ID: id}
}

// Cancellable tags e with id. Submitting another effect with the same id cancels e.
func Cancellable[A any](id ID, e Effect[A]) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	return CancellableEffect[A]{ID: id, Effect: e}
}

// Debounce delays e until d passes without a newer submission under id.
func Debounce[A any](d time.Duration, id ID, e Effect[A]) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	return DebounceEffect[A]{ID: id, Duration: d, Effect: e}
}

// Throttle lets e run at most once per d for id.
func Throttle[A any](d time.Duration, id ID, e Effect[A]) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	return ThrottleEffect[A]{ID: id, Duration: d, Effect: e}
}

// Delay runs e after d.
func Delay[A any](d time.Duration, e Effect[A]) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	return DelayEffect[A]{Duration: d, Effect: e}
}

// DelayAction dispatches action after d.
func DelayAction[A any](d time.Duration, action A) Effect[A] {
	return Delay(d, Send(action))
}

// Timeout yields fallback if e has not completed within d.
func Timeout[A any](d time.Duration, fallback A, e Effect[A]) Effect[A] {
	return TimeoutEffect[A]{Duration: d, Fallback: fallback, Effect: e}
}

// Retry re-runs e on failure, at most maxAttempts runs in total.
func Retry[A any](maxAttempts int, delay time.Duration, e Effect[A]) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryEffect[A]{MaxAttempts: maxAttempts, Delay: delay, Effect: e}
}

// Catch turns a failure of e into an action. A handler returning ok=false swallows the error.
func Catch[A any](e Effect[A], handler func(error) (A, bool)) Effect[A] {
	if IsNone(e) {
		return None[A]()
	}
	return CatchEffect[A]{Effect: e, Handler: handler}
}

// MapError turns every failure of e into the action returned by fn.
func MapError[A any](e Effect[A], fn func(error) A) Effect[A] {
	return Catch(e, func(err error) (A, bool) {
		return fn(err), true
	})
}

// IDOf returns the cancellation id carried by e, if any.
func IDOf[A any](e Effect[A]) (ID, bool) {
	switch e := e.(type) {
	case TaskEffect[A]:
		return e.ID, !e.ID.IsZero()
	case CancellableEffect[A]:
		return e.ID, true
	case DebounceEffect[A]:
		return e.ID, true
	case ThrottleEffect[A]:
		return e.ID, true
	}
	return ID{}, false
}

package effect

import (
	"context"
	"fmt"
	"strings"
)

// Map rewrites every action e can produce with transform, keeping ids and structure.
func Map[A, B any](e Effect[A], transform func(A) B) Effect[B] {
	switch e := e.(type) {
	case nil, NoneEffect[A]:
		return NoneEffect[B]{}

	case SendEffect[A]:
		return SendEffect[B]{Action: transform(e.Action)}

	case TaskEffect[A]:
		return TaskEffect[B]{ID: e.ID, Priority: e.Priority, Work: mapWork(e.Work, transform)}

	case MergeEffect[A]:
		return MergeEffect[B]{Effects: mapAll(e.Effects, transform)}

	case ConcatenateEffect[A]:
		return ConcatenateEffect[B]{Effects: mapAll(e.Effects, transform)}

	case CancelEffect[A]:
		return CancelEffect[B]{ID: e.ID}

	case CancellableEffect[A]:
		return CancellableEffect[B]{ID: e.ID, Effect: Map(e.Effect, transform)}

	case DebounceEffect[A]:
		return DebounceEffect[B]{ID: e.ID, Duration: e.Duration, Effect: Map(e.Effect, transform)}

	case ThrottleEffect[A]:
		return ThrottleEffect[B]{ID: e.ID, Duration: e.Duration, Effect: Map(e.Effect, transform)}

	case DelayEffect[A]:
		return DelayEffect[B]{Duration: e.Duration, Effect: Map(e.Effect, transform)}

	case TimeoutEffect[A]:
		return TimeoutEffect[B]{
			Duration: e.Duration,
			Fallback: transform(e.Fallback),
			Effect:   Map(e.Effect, transform),
		}

	case RetryEffect[A]:
		return RetryEffect[B]{MaxAttempts: e.MaxAttempts, Delay: e.Delay, Effect: Map(e.Effect, transform)}

	case CatchEffect[A]:
		handler := e.Handler
		return CatchEffect[B]{
			Effect: Map(e.Effect, transform),
			Handler: func(err error) (B, bool) {
				a, ok := handler(err)
				if !ok {
					var zero B
					return zero, false
				}
				return transform(a), true
			},
		}

	default:
		// Effect is sealed, so this is a bug.
		panic(fmt.Sprintf("effect: unrecognized variant %T", e))
	}
}

func mapAll[A, B any](effects []Effect[A], transform func(A) B) []Effect[B] {
	mapped := make([]Effect[B], len(effects))
	for i, e := range effects {
		mapped[i] = Map(e, transform)
	}
	return mapped
}

func mapWork[A, B any](work Work[A], transform func(A) B) Work[B] {
	return func(ctx context.Context) (B, bool, error) {
		var zero B
		a, ok, err := work(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		return transform(a), true, nil
	}
}

// Describe renders the shape of e, e.g. "merge(task,debounce(send))".
// Two effects with the same description have the same structure.
func Describe[A any](e Effect[A]) string {
	var b strings.Builder
	describe(&b, e)
	return b.String()
}

func describe[A any](b *strings.Builder, e Effect[A]) {
	nested := func(name string, children ...Effect[A]) {
		b.WriteString(name)
		b.WriteByte('(')
		for i, c := range children {
			if i > 0 {
				b.WriteByte(',')
			}
			describe(b, c)
		}
		b.WriteByte(')')
	}

	switch e := e.(type) {
	case nil, NoneEffect[A]:
		b.WriteString("none")
	case SendEffect[A]:
		b.WriteString("send")
	case TaskEffect[A]:
		b.WriteString("task")
	case MergeEffect[A]:
		nested("merge", e.Effects...)
	case ConcatenateEffect[A]:
		nested("concatenate", e.Effects...)
	case CancelEffect[A]:
		b.WriteString("cancel")
	case CancellableEffect[A]:
		nested("cancellable", e.Effect)
	case DebounceEffect[A]:
		nested("debounce", e.Effect)
	case ThrottleEffect[A]:
		nested("throttle", e.Effect)
	case DelayEffect[A]:
		nested("delay", e.Effect)
	case TimeoutEffect[A]:
		nested("timeout", e.Effect)
	case RetryEffect[A]:
		nested("retry", e.Effect)
	case CatchEffect[A]:
		nested("catch", e.Effect)
	default:
		panic(fmt.Sprintf("effect: unrecognized variant %T", e))
	}
}

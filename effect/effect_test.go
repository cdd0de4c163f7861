package effect_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/on-the-ground/effect_ive_store/effect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_EmptyAndAllNoneAreNone(t *testing.T) {
	assert.Equal(t, effect.None[int](), effect.Merge[int]())
	assert.Equal(t, effect.None[int](), effect.Merge(effect.None[int](), effect.None[int]()))
	assert.True(t, effect.IsNone(effect.Merge[int](nil)))
}

func TestMerge_CollapsesSingletonAndFlattens(t *testing.T) {
	send := effect.Send(1)
	assert.Equal(t, send, effect.Merge(effect.None[int](), send))

	nested := effect.Merge(effect.Send(1), effect.Merge(effect.Send(2), effect.Send(3)))
	merged, ok := nested.(effect.MergeEffect[int])
	require.True(t, ok)
	assert.Len(t, merged.Effects, 3)
	assert.Equal(t, "merge(send,send,send)", effect.Describe(nested))
}

func TestConcatenate_Normalises(t *testing.T) {
	assert.Equal(t, effect.None[int](), effect.Concatenate[int]())
	c := effect.Concatenate(effect.Send(1), effect.None[int](), effect.Concatenate(effect.Send(2), effect.Send(3)))
	assert.Equal(t, "concatenate(send,send,send)", effect.Describe(c))
}

func TestMap_NoneStaysNone(t *testing.T) {
	mapped := effect.Map(effect.None[int](), strconv.Itoa)
	assert.Equal(t, effect.None[string](), mapped)
}

func TestMap_PreservesStructureAndIDs(t *testing.T) {
	id := effect.NamedID("search")
	e := effect.Merge(
		effect.Send(1),
		effect.Debounce(time.Second, id, effect.Future(func(ctx context.Context) (int, error) {
			return 2, nil
		})),
		effect.Timeout(time.Second, 3, effect.Send(4)),
	)

	mapped := effect.Map(e, func(i int) string { return "#" + strconv.Itoa(i) })
	assert.Equal(t, effect.Describe(e), effect.Describe(mapped))

	merged := mapped.(effect.MergeEffect[string])
	assert.Equal(t, effect.SendEffect[string]{Action: "#1"}, merged.Effects[0])

	debounced := merged.Effects[1].(effect.DebounceEffect[string])
	assert.Equal(t, id, debounced.ID)
	task := debounced.Effect.(effect.TaskEffect[string])
	action, ok, err := task.Work(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "#2", action)

	timeout := merged.Effects[2].(effect.TimeoutEffect[string])
	assert.Equal(t, "#3", timeout.Fallback)
}

func TestMap_TaskErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	e := effect.Future(func(ctx context.Context) (int, error) { return 0, boom })
	mapped := effect.Map(e, strconv.Itoa).(effect.TaskEffect[string])
	_, ok, err := mapped.Work(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestMap_CatchHandlerIsLifted(t *testing.T) {
	e := effect.MapError(effect.FireAndForget[int](func(ctx context.Context) error {
		return errors.New("boom")
	}), func(err error) int { return -1 })

	mapped := effect.Map(e, strconv.Itoa).(effect.CatchEffect[string])
	action, ok := mapped.Handler(errors.New("any"))
	assert.True(t, ok)
	assert.Equal(t, "-1", action)
}

func TestConstruction_DoesNotStartWork(t *testing.T) {
	started := false
	work := func(ctx context.Context) (int, error) {
		started = true
		return 0, nil
	}
	_ = effect.Retry(3, time.Millisecond, effect.Delay(time.Millisecond, effect.Future(work)))
	_ = effect.Map(effect.Future(work), strconv.Itoa)
	assert.False(t, started)
}

func TestNamedID_Equality(t *testing.T) {
	assert.Equal(t, effect.NamedID("x"), effect.NamedID("x"))
	assert.NotEqual(t, effect.NamedID("x"), effect.NamedID("y"))
	assert.NotEqual(t, effect.NewID(), effect.NewID())
	assert.True(t, effect.ID{}.IsZero())
	assert.Equal(t, "x", effect.NamedID("x").String())
}

func TestIDOf(t *testing.T) {
	id := effect.NamedID("load")
	got, ok := effect.IDOf(effect.Task(id, effect.PriorityHigh, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	}))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = effect.IDOf(effect.Send(1))
	assert.False(t, ok)
}

func TestRetry_ClampsAttempts(t *testing.T) {
	r := effect.Retry(0, 0, effect.Send(1)).(effect.RetryEffect[int])
	assert.Equal(t, 1, r.MaxAttempts)
}

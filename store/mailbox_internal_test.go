package store

import (
	"context"
	"testing"
	"time"

	"github.com/on-the-ground/effect_ive_store/effect"
	"github.com/on-the-ground/effect_ive_store/reducer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMailbox_FirstPusherOwnsUntilEmpty(t *testing.T) {
	var m mailbox[int]
	assert.True(t, m.push(1))
	assert.False(t, m.push(2))
	assert.Equal(t, 2, m.len())

	v, ok := m.next()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = m.next()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.next()
	assert.False(t, ok)
	assert.True(t, m.push(3), "ownership is released once drained")
}

func TestScope_LiveFollowsParents(t *testing.T) {
	parent := &scope{}
	child := &scope{parent: parent}
	assert.True(t, child.live())

	parent.cancelled.Store(true)
	assert.False(t, child.live())
}

func TestStore_DropsQueuedResultOfCancelledScope(t *testing.T) {
	reduced := 0
	s, err := New(0, reducer.Func[int, string](func(n *int, _ string) effect.Effect[string] {
		reduced++
		*n++
		return nil
	}))
	require.NoError(t, err)
	defer s.Close()

	sc := &scope{}
	sc.cancelled.Store(true)
	s.redispatch(sc, "late")
	s.redispatch(&scope{}, "on time")

	assert.Equal(t, 1, reduced)
	assert.Equal(t, 1, s.State())
}

func TestOffer_EvictsOldest(t *testing.T) {
	c := make(chan int, 2)
	assert.False(t, offer(c, 1))
	assert.False(t, offer(c, 2))
	assert.True(t, offer(c, 3))
	assert.Equal(t, 2, <-c)
	assert.Equal(t, 3, <-c)
}

func newTestExecutor() *executor[string] {
	return newExecutor[string](context.Background(), zap.NewNop(), make(chan envelope[string], 1), func(*scope, string) {}, time.Now)
}

func TestExecutor_ThrottleWindowsAreBounded(t *testing.T) {
	x := newTestExecutor()
	for i := 0; i < throttleCapacity+10; i++ {
		assert.True(t, x.admit(effect.NewID(), time.Hour))
	}
	assert.Equal(t, throttleCapacity, x.throttled.Len())

	id := effect.NamedID("t")
	assert.True(t, x.admit(id, time.Hour))
	assert.False(t, x.admit(id, time.Hour))
}

func TestExecutor_FinishedScopeStaysCancellableUntilSettled(t *testing.T) {
	x := newTestExecutor()
	id := effect.NamedID("x")

	ctx, release := x.enter(context.Background(), id)
	sc := scopeFrom(ctx)
	sc.hold()
	release()

	x.cancel(id, nil)
	assert.False(t, sc.live())

	sc.settle()
	assert.Empty(t, x.scopes)
}

func TestExecutor_SettledScopeIsRetired(t *testing.T) {
	x := newTestExecutor()
	ctx, release := x.enter(context.Background(), effect.NamedID("x"))
	sc := scopeFrom(ctx)
	sc.hold()
	release()
	assert.Len(t, x.scopes, 1)

	sc.settle()
	assert.Empty(t, x.scopes)
	assert.True(t, sc.live())
}

func TestExecutor_CancelledReservationKillsLaterScope(t *testing.T) {
	x := newTestExecutor()
	id := effect.NamedID("x")
	task := effect.Task(id, effect.PriorityMedium, func(context.Context) (string, bool, error) {
		return "", false, nil
	})

	x.mu.Lock()
	c := x.reserve(effect.Delay(time.Hour, task))
	x.mu.Unlock()
	ctx := context.WithValue(context.Background(), claimsKey{}, c)

	x.cancel(id, nil)
	sctx, release := x.enter(ctx, id)
	defer release()
	assert.False(t, scopeFrom(sctx).live())
	assert.Error(t, sctx.Err())

	x.unreserve(c)
	assert.Empty(t, x.claimed)
}

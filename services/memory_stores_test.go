package services

import (
	"context"
	"testing"
	"time"

	"roulette_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueListOrdersByJoinTime(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "bob", JoinedAt: base.Add(2 * time.Second), State: models.TicketStateWaiting}))
	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "alice", JoinedAt: base, State: models.TicketStateWaiting}))
	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "carol", JoinedAt: base.Add(time.Second), State: models.TicketStateInCall}))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].UserName)
	assert.Equal(t, "carol", all[1].UserName)
	assert.Equal(t, "bob", all[2].UserName)

	waiting, err := store.List(ctx, models.TicketStateWaiting)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "alice", waiting[0].UserName)
}

func TestQueueListBreaksTiesByUserName(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()
	at := time.Now()

	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "zed", JoinedAt: at, State: models.TicketStateWaiting}))
	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "amy", JoinedAt: at, State: models.TicketStateWaiting}))

	tickets, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "amy", tickets[0].UserName)
}

func TestQueueDequeueReportsClaim(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "alice", JoinedAt: time.Now(), State: models.TicketStateWaiting}))

	claimed, err := store.Dequeue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second dequeue loses the claim.
	claimed, err = store.Dequeue(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestQueueSweepDropsOnlyOldTickets(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()
	now := time.Now()
	store.Now = func() time.Time { return now }

	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "old", JoinedAt: now.Add(-10 * time.Minute), State: models.TicketStateWaiting}))
	require.NoError(t, store.Enqueue(ctx, models.Ticket{UserName: "fresh", JoinedAt: now.Add(-time.Minute), State: models.TicketStateWaiting}))

	swept, err := store.Sweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "old", swept[0].UserName)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMatchTableRejectsDoubleBooking(t *testing.T) {
	store := NewMemoryMatchTable()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.Match{RoomName: "rt-1", User1: "alice", User2: "bob", MatchedAt: time.Now()}))
	err := store.Create(ctx, models.Match{RoomName: "rt-1", User1: "carol", User2: "dave", MatchedAt: time.Now()})
	require.ErrorIs(t, err, ErrRoomTaken)
}

func TestMatchTableGetByUser(t *testing.T) {
	store := NewMemoryMatchTable()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, models.Match{RoomName: "rt-1", User1: "alice", User2: "bob", MatchedAt: time.Now()}))

	match, err := store.GetByUser(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "rt-1", match.RoomName)
	assert.Equal(t, "alice", match.Other("bob"))

	match, err = store.GetByUser(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchTableRemoveIsIdempotent(t *testing.T) {
	store := NewMemoryMatchTable()
	ctx := context.Background()
	require.NoError(t, store.Remove(ctx, "rt-never-existed"))
}

func TestCooldownOrderIndependence(t *testing.T) {
	ledger := NewMemoryCooldownLedger(30*time.Second, 2*time.Minute)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "bob", "alice", models.CooldownKindNormal))

	remaining, err := ledger.Remaining(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 30*time.Second)
}

func TestCooldownSkipKindLastsLonger(t *testing.T) {
	ledger := NewMemoryCooldownLedger(30*time.Second, 2*time.Minute)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "alice", "bob", models.CooldownKindSkip))
	remaining, err := ledger.Remaining(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Greater(t, remaining, 30*time.Second)
}

func TestCooldownExpires(t *testing.T) {
	ledger := NewMemoryCooldownLedger(30*time.Second, 2*time.Minute)
	ctx := context.Background()
	require.NoError(t, ledger.Record(ctx, "alice", "bob", models.CooldownKindNormal))

	ledger.Now = func() time.Time { return time.Now().Add(time.Minute) }
	remaining, err := ledger.Remaining(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestPairingLockBlocksSecondHolder(t *testing.T) {
	locks := NewMemoryPairingLock()
	ctx := context.Background()

	handle, err := locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)

	// Order of the pair does not matter.
	_, err = locks.TryAcquire(ctx, "bob", "alice", 10*time.Second)
	require.ErrorIs(t, err, ErrLockContention)

	require.NoError(t, handle.Release(ctx))
	handle, err = locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, handle.Release(ctx))
}

func TestPairingLockExpiredLockIsTakenOver(t *testing.T) {
	locks := NewMemoryPairingLock()
	ctx := context.Background()

	_, err := locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)

	locks.Now = func() time.Time { return time.Now().Add(time.Minute) }
	handle, err := locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, handle.Release(ctx))
}

func TestPairingLockStaleReleaseDoesNotDropNewHolder(t *testing.T) {
	locks := NewMemoryPairingLock()
	ctx := context.Background()

	first, err := locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)

	locks.Now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)

	// The original holder's release must not free the takeover's lock.
	require.NoError(t, first.Release(ctx))
	count, err := locks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPairingLockClearStale(t *testing.T) {
	locks := NewMemoryPairingLock()
	ctx := context.Background()

	_, err := locks.TryAcquire(ctx, "alice", "bob", 10*time.Second)
	require.NoError(t, err)
	_, err = locks.TryAcquire(ctx, "carol", "dave", 10*time.Second)
	require.NoError(t, err)

	locks.Now = func() time.Time { return time.Now().Add(time.Minute) }
	cleared, err := locks.ClearStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	count, err := locks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLeftBehindStoreRoundTrip(t *testing.T) {
	store := NewMemoryLeftBehindStore()
	ctx := context.Background()

	record := models.LeftBehindRecord{
		UserName:         "alice",
		PreviousRoom:     "rt-1",
		DisconnectedFrom: "bob",
		CreatedAt:        time.Now(),
	}
	require.NoError(t, store.Put(ctx, record))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.DisconnectedFrom)

	require.NoError(t, store.Delete(ctx, "alice"))
	got, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

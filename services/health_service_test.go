package services

import (
	"context"
	"testing"
	"time"

	"roulette_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthFixture(t *testing.T) (*HealthService, *MemoryPairingLock) {
	t.Helper()
	ctx := context.Background()
	queue := NewMemoryQueueStore()
	matches := NewMemoryMatchTable()
	cooldowns := NewMemoryCooldownLedger(30*time.Second, 2*time.Minute)
	locks := NewMemoryPairingLock()
	leftBehind := NewMemoryLeftBehindStore()

	require.NoError(t, queue.Enqueue(ctx, models.Ticket{UserName: "alice", JoinedAt: time.Now(), State: models.TicketStateWaiting}))
	require.NoError(t, matches.Create(ctx, models.Match{RoomName: "rt-1", User1: "bob", User2: "carol", MatchedAt: time.Now()}))
	require.NoError(t, cooldowns.Record(ctx, "bob", "carol", models.CooldownKindNormal))
	_, err := locks.TryAcquire(ctx, "dave", "erin", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, leftBehind.Put(ctx, models.LeftBehindRecord{UserName: "frank", CreatedAt: time.Now()}))

	return &HealthService{
		Queue:      queue,
		Matches:    matches,
		Cooldowns:  cooldowns,
		Locks:      locks,
		LeftBehind: leftBehind,
	}, locks
}

func TestHealthStats(t *testing.T) {
	service, _ := newHealthFixture(t)

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.QueueSize)
	assert.Equal(t, 1, stats.MatchCount)
	assert.Equal(t, 1, stats.CooldownCount)
	assert.Equal(t, 1, stats.LockCount)
	assert.Equal(t, 1, stats.LeftBehindCount)
}

func TestHealthClearStaleLocks(t *testing.T) {
	service, locks := newHealthFixture(t)

	locks.Now = func() time.Time { return time.Now().Add(time.Minute) }
	cleared, err := service.ClearStaleLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}

func TestHealthResetSingleTarget(t *testing.T) {
	service, _ := newHealthFixture(t)
	ctx := context.Background()

	require.NoError(t, service.Reset(ctx, ResetTargetQueue))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.QueueSize)
	assert.Equal(t, 1, stats.MatchCount)
}

func TestHealthResetAll(t *testing.T) {
	service, _ := newHealthFixture(t)
	ctx := context.Background()

	require.NoError(t, service.Reset(ctx, ResetTargetAll))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &HealthStats{}, stats)
}

func TestHealthResetUnknownTarget(t *testing.T) {
	service, _ := newHealthFixture(t)
	err := service.Reset(context.Background(), "everything")
	require.ErrorIs(t, err, ErrValidation)
}

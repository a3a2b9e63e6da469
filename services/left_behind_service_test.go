package services

import (
	"context"
	"testing"
	"time"

	"roulette_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeftBehindFixture() (*LeftBehindService, *MemoryLeftBehindStore, *MemoryMatchTable) {
	store := NewMemoryLeftBehindStore()
	matches := NewMemoryMatchTable()
	return &LeftBehindService{Store: store, Matches: matches, TTL: 2 * time.Minute}, store, matches
}

func TestLeftBehindStatusNoneWithoutRecord(t *testing.T) {
	service, _, _ := newLeftBehindFixture()
	status, err := service.Status(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, status.Status)
}

func TestLeftBehindStatusRequiresUserName(t *testing.T) {
	service, _, _ := newLeftBehindFixture()
	_, err := service.Status(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestLeftBehindStatusAfterMark(t *testing.T) {
	service, _, _ := newLeftBehindFixture()
	ctx := context.Background()

	require.NoError(t, service.Mark(ctx, "alice", "rt-1", "bob"))

	status, err := service.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLeftBehind, status.Status)
	assert.Empty(t, status.NewRoomName)
}

func TestLeftBehindStatusIncludesNewRoomOncePaired(t *testing.T) {
	service, store, _ := newLeftBehindFixture()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, models.LeftBehindRecord{
		UserName:         "alice",
		PreviousRoom:     "rt-1",
		DisconnectedFrom: "bob",
		CreatedAt:        time.Now(),
		Processed:        true,
		NewRoomName:      "rt-2",
	}))

	status, err := service.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLeftBehind, status.Status)
	assert.Equal(t, "rt-2", status.NewRoomName)
}

func TestLeftBehindLiveMatchWins(t *testing.T) {
	service, store, matches := newLeftBehindFixture()
	ctx := context.Background()

	require.NoError(t, service.Mark(ctx, "alice", "rt-1", "bob"))
	require.NoError(t, matches.Create(ctx, models.Match{
		RoomName: "rt-2", User1: "alice", User2: "carol", MatchedAt: time.Now(),
	}))

	status, err := service.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAlreadyMatched, status.Status)
	assert.Equal(t, "rt-2", status.RoomName)

	// The stale record is dropped on read.
	record, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLeftBehindRecordExpires(t *testing.T) {
	service, store, _ := newLeftBehindFixture()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, models.LeftBehindRecord{
		UserName:         "alice",
		PreviousRoom:     "rt-1",
		DisconnectedFrom: "bob",
		CreatedAt:        time.Now().Add(-3 * time.Minute),
	}))

	status, err := service.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, status.Status)

	record, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLeftBehindClear(t *testing.T) {
	service, store, _ := newLeftBehindFixture()
	ctx := context.Background()

	require.NoError(t, service.Mark(ctx, "alice", "rt-1", "bob"))
	require.NoError(t, service.Clear(ctx, "alice"))

	record, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, record)
}

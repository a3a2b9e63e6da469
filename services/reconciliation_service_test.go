package services

import (
	"context"
	"testing"
	"time"

	"roulette_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileFixture struct {
	Service *ReconciliationService
	Queue   *MemoryQueueStore
	Matches *MemoryMatchTable
	LB      *MemoryLeftBehindStore
	Rooms   *StaticRoomProvider
}

func newReconcileFixture() *reconcileFixture {
	queue := NewMemoryQueueStore()
	matches := NewMemoryMatchTable()
	leftBehind := NewMemoryLeftBehindStore()
	rooms := NewStaticRoomProvider()
	return &reconcileFixture{
		Service: &ReconciliationService{
			Matches:    matches,
			Queue:      queue,
			LeftBehind: leftBehind,
			Rooms:      rooms,
			Metrics:    NopMetrics{},
			Interval:   time.Hour,
			Debounce:   10 * time.Millisecond,
		},
		Queue:   queue,
		Matches: matches,
		LB:      leftBehind,
		Rooms:   rooms,
	}
}

func (f *reconcileFixture) seedMatch(t *testing.T, roomName, user1, user2 string) {
	t.Helper()
	require.NoError(t, f.Matches.Create(context.Background(), models.Match{
		RoomName:  roomName,
		User1:     user1,
		User2:     user2,
		MatchedAt: time.Now(),
	}))
	require.NoError(t, f.Rooms.CreateRoom(context.Background(), roomName, 2))
}

func TestReconcileEmptyRoomDissolvesMatch(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1")

	// A recorded match whose room nobody actually occupies.
	f.Service.ReconcileRoom(ctx, "rt-1")

	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, match)
	rooms, err := f.Rooms.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestReconcileEmptyRoomReleasesLingeringTickets(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	require.NoError(t, f.Queue.Enqueue(ctx, models.Ticket{
		UserName: "alice", JoinedAt: time.Now(), State: models.TicketStateWaiting,
	}))

	f.Service.ReconcileRoom(ctx, "rt-1")

	ticket, err := f.Queue.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestReconcilePromotesLoneSurvivor(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1", "alice")

	f.Service.ReconcileRoom(ctx, "rt-1")

	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, match)

	ticket, err := f.Queue.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, models.TicketStateInCall, ticket.State)
	assert.Equal(t, "rt-1", ticket.RoomName)
	assert.Equal(t, "bob", ticket.LastMatchPartner)

	record, err := f.LB.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "bob", record.DisconnectedFrom)
	assert.Equal(t, "rt-1", record.PreviousRoom)
}

func TestReconcileHealthyPairDropsStrayTickets(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1", "alice", "bob")
	require.NoError(t, f.Queue.Enqueue(ctx, models.Ticket{
		UserName: "bob", JoinedAt: time.Now(), State: models.TicketStateWaiting,
	}))

	f.Service.ReconcileRoom(ctx, "rt-1")

	// Match intact, stray ticket gone.
	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, match)
	ticket, err := f.Queue.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestReconcileDuplicateSessionsArePromotedNotPaired(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1", "alice", "alice")

	f.Service.ReconcileRoom(ctx, "rt-1")

	// Two sessions of one user are a lone survivor, never a self-pair.
	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, match)

	ticket, err := f.Queue.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, models.TicketStateInCall, ticket.State)
	assert.Equal(t, "rt-1", ticket.RoomName)
}

func TestReconcileRewritesMismatchedPair(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1", "alice", "carol")

	f.Service.ReconcileRoom(ctx, "rt-1")

	// Observed reality wins over the recorded pair.
	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.True(t, match.Contains("alice"))
	assert.True(t, match.Contains("carol"))
	assert.False(t, match.Contains("bob"))
}

func TestReconcileCapViolationKeepsFirstTwo(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1", "alice", "bob", "mallory")

	f.Service.ReconcileRoom(ctx, "rt-1")

	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.True(t, match.Contains("alice"))
	assert.True(t, match.Contains("bob"))
}

func TestReconcileIgnoresUnknownRoom(t *testing.T) {
	f := newReconcileFixture()
	f.Service.ReconcileRoom(context.Background(), "rt-missing")
	count, err := f.Matches.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotifyDebouncesRepeatedEvents(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.Rooms.SetParticipants("rt-1")
	defer f.Service.Stop()

	// A burst of events collapses to a single reconciliation after the window.
	f.Service.Notify("rt-1")
	f.Service.Notify("rt-1")
	f.Service.Notify("rt-1")

	require.Eventually(t, func() bool {
		match, err := f.Matches.Get(ctx, "rt-1")
		return err == nil && match == nil
	}, time.Second, 5*time.Millisecond)
}

func TestSweepAllVisitsEveryRoom(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	f.seedMatch(t, "rt-1", "alice", "bob")
	f.seedMatch(t, "rt-2", "carol", "dave")
	f.Rooms.SetParticipants("rt-1")
	f.Rooms.SetParticipants("rt-2", "carol", "dave")

	f.Service.SweepAll(ctx)

	match, err := f.Matches.Get(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, match)
	match, err = f.Matches.Get(ctx, "rt-2")
	require.NoError(t, err)
	assert.NotNil(t, match)
}

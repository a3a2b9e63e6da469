package services

import (
	"context"
	"sync"
	"time"

	"roulette_server/models"

	log "github.com/sirupsen/logrus"
)

// ReconciliationService heals drift between our bookkeeping and the
// provider's observed room occupancy. It runs a fixed-interval sweep over all
// recorded matches and reacts, debounced, to provider join/leave events.
type ReconciliationService struct {
	Matches    MatchTable
	Queue      QueueStore
	LeftBehind LeftBehindStore
	Rooms      RoomProvider
	Metrics    MatchingMetrics

	Interval time.Duration
	Debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	stop   chan struct{}
	once   sync.Once
}

func (rs *ReconciliationService) metrics() MatchingMetrics {
	if rs.Metrics == nil {
		return NopMetrics{}
	}
	return rs.Metrics
}

// Start launches the interval sweep. Call Stop to end it.
func (rs *ReconciliationService) Start() {
	rs.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(rs.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rs.SweepAll(context.Background())
			case <-rs.stop:
				return
			}
		}
	}()
	log.WithField("interval", rs.Interval).Info("Reconciliation sweep started")
}

// Stop ends the interval sweep and cancels pending debounce timers.
func (rs *ReconciliationService) Stop() {
	rs.once.Do(func() {
		if rs.stop != nil {
			close(rs.stop)
		}
	})
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for roomName, timer := range rs.timers {
		timer.Stop()
		delete(rs.timers, roomName)
	}
}

// Notify schedules a reconciliation of one room after the debounce window.
// Repeated events for the same room within the window collapse into one run,
// so transient reconnects don't cause flapping.
func (rs *ReconciliationService) Notify(roomName string) {
	if roomName == "" {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.timers == nil {
		rs.timers = make(map[string]*time.Timer)
	}
	if timer, ok := rs.timers[roomName]; ok {
		timer.Reset(rs.Debounce)
		return
	}
	rs.timers[roomName] = time.AfterFunc(rs.Debounce, func() {
		rs.mu.Lock()
		delete(rs.timers, roomName)
		rs.mu.Unlock()
		rs.ReconcileRoom(context.Background(), roomName)
	})
}

// SweepAll reconciles every room with a recorded match.
func (rs *ReconciliationService) SweepAll(ctx context.Context) {
	matches, err := rs.Matches.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Reconciliation sweep could not list matches")
		return
	}
	for _, match := range matches {
		rs.ReconcileRoom(ctx, match.RoomName)
	}
}

// ReconcileRoom compares one room's recorded match against the provider's
// observed participants and heals any drift.
func (rs *ReconciliationService) ReconcileRoom(ctx context.Context, roomName string) {
	match, err := rs.Matches.Get(ctx, roomName)
	if err != nil {
		log.WithError(err).WithField("roomName", roomName).Warn("Reconciliation read failed")
		return
	}
	if match == nil {
		return
	}

	participants, err := rs.Rooms.ListParticipants(ctx, roomName)
	if err != nil {
		// Transient provider trouble; the next sweep retries.
		log.WithError(err).WithField("roomName", roomName).Warn("Reconciliation could not observe room")
		return
	}

	observed := make([]string, 0, len(participants))
	for _, participant := range participants {
		if participant.UserName != "" {
			observed = append(observed, participant.UserName)
		}
	}

	switch len(observed) {
	case 0:
		rs.dissolveEmpty(ctx, *match)
	case 1:
		rs.promoteSurvivor(ctx, *match, observed[0])
	case 2:
		rs.checkPair(ctx, *match, observed)
	default:
		rs.capViolation(ctx, *match, observed)
	}
}

// dissolveEmpty handles 0 observed participants: drop the match and release
// both users from any lingering queue membership.
func (rs *ReconciliationService) dissolveEmpty(ctx context.Context, match models.Match) {
	if err := rs.Matches.Remove(ctx, match.RoomName); err != nil {
		log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to remove empty-room match")
		return
	}
	rs.metrics().MatchDissolved("reconcile_empty")
	for _, userName := range []string{match.User1, match.User2} {
		if _, err := rs.Queue.Dequeue(ctx, userName); err != nil {
			log.WithError(err).WithField("userName", userName).Warn("Failed to release user from queue")
		}
	}
	if err := rs.Rooms.DeleteRoom(ctx, match.RoomName); err != nil {
		log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to delete empty room at provider")
	}
	log.WithField("roomName", match.RoomName).Info("Reconciled empty room, match dissolved")
}

// promoteSurvivor handles exactly 1 observed participant: the survivor keeps
// the room with an in_call ticket, the other user is released.
func (rs *ReconciliationService) promoteSurvivor(ctx context.Context, match models.Match, survivor string) {
	if err := rs.Matches.Remove(ctx, match.RoomName); err != nil {
		log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to remove half-empty match")
		return
	}
	rs.metrics().MatchDissolved("reconcile_survivor")

	departed := match.Other(survivor)
	if departed != "" {
		if _, err := rs.Queue.Dequeue(ctx, departed); err != nil {
			log.WithError(err).WithField("userName", departed).Warn("Failed to release departed user")
		}
		record := models.LeftBehindRecord{
			UserName:         survivor,
			PreviousRoom:     match.RoomName,
			DisconnectedFrom: departed,
			CreatedAt:        time.Now(),
		}
		if err := rs.LeftBehind.Put(ctx, record); err != nil {
			log.WithError(err).WithField("userName", survivor).Warn("Failed to store left-behind record")
		}
	} else {
		// The lone occupant is not even in our recorded pair.
		rs.metrics().ReconcileAnomaly("stranger_survivor")
		log.WithFields(log.Fields{"roomName": match.RoomName, "survivor": survivor}).
			Warn("Room survivor was not in the recorded match")
	}

	ticket := models.Ticket{
		UserName:         survivor,
		JoinedAt:         time.Now(),
		State:            models.TicketStateInCall,
		UseDemo:          match.UseDemo,
		RoomName:         match.RoomName,
		LastMatchPartner: departed,
		LastMatchAt:      time.Now(),
	}
	if err := rs.Queue.Enqueue(ctx, ticket); err != nil {
		log.WithError(err).WithField("userName", survivor).Warn("Failed to promote survivor")
		return
	}
	log.WithFields(log.Fields{"roomName": match.RoomName, "survivor": survivor}).
		Info("Reconciled half-empty room, survivor promoted")
}

// checkPair handles exactly 2 observed participants: a matching pair only
// needs stray tickets cleaned up; a mismatched pair means our bookkeeping is
// wrong and the observed reality wins.
func (rs *ReconciliationService) checkPair(ctx context.Context, match models.Match, observed []string) {
	// Two sessions of one user during a reconnect blip are one occupant, not
	// a pair; a match must hold two distinct users.
	if observed[0] == observed[1] {
		rs.promoteSurvivor(ctx, match, observed[0])
		return
	}

	if match.Contains(observed[0]) && match.Contains(observed[1]) {
		for _, userName := range observed {
			if _, err := rs.Queue.Dequeue(ctx, userName); err != nil {
				log.WithError(err).WithField("userName", userName).Warn("Failed to drop stray ticket")
			}
		}
		return
	}

	rs.metrics().ReconcileAnomaly("pair_mismatch")
	log.WithFields(log.Fields{
		"roomName": match.RoomName,
		"recorded": []string{match.User1, match.User2},
		"observed": observed,
	}).Warn("Recorded match does not agree with observed pair, rewriting")

	if err := rs.Matches.Remove(ctx, match.RoomName); err != nil {
		log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to remove mismatched match")
		return
	}
	rewritten := models.Match{
		RoomName:  match.RoomName,
		User1:     observed[0],
		User2:     observed[1],
		MatchedAt: time.Now(),
		UseDemo:   match.UseDemo,
	}
	if err := rs.Matches.Create(ctx, rewritten); err != nil {
		log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to rewrite match to observed pair")
		return
	}
	for _, userName := range observed {
		if _, err := rs.Queue.Dequeue(ctx, userName); err != nil {
			log.WithError(err).WithField("userName", userName).Warn("Failed to drop stray ticket")
		}
	}
}

// capViolation handles >2 observed participants: the first two observed are
// kept as canonical, extras stay untracked. The provider is supposed to cap
// rooms at two, so this always signals an upstream problem.
func (rs *ReconciliationService) capViolation(ctx context.Context, match models.Match, observed []string) {
	rs.metrics().ReconcileAnomaly("cap_violation")
	log.WithFields(log.Fields{
		"roomName": match.RoomName,
		"observed": observed,
	}).Warn("Room holds more than two participants")
	rs.checkPair(ctx, match, observed[:2])
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roulette_server/models"
	"roulette_server/utils"

	log "github.com/sirupsen/logrus"
)

// MatchmakingService orchestrates admission to the waiting pool, atomic pair
// formation, and dissolution. It runs inside arbitrarily many stateless
// handler instances; the only mutual exclusion is the pair lock plus the
// post-lock re-validation, everything else tolerates races by design.
type MatchmakingService struct {
	Queue      QueueStore
	Matches    MatchTable
	Cooldowns  CooldownLedger
	Locks      PairingLock
	LeftBehind LeftBehindStore
	Rooms      RoomProvider
	Metrics    MatchingMetrics

	TicketMaxAge    time.Duration
	MatchMaxAge     time.Duration
	LockTTL         time.Duration
	DisconnectGrace time.Duration
}

// MatchResult is the outcome of an enqueue attempt.
type MatchResult struct {
	Status      string `json:"status"`
	RoomName    string `json:"roomName,omitempty"`
	MatchedWith string `json:"matchedWith,omitempty"`
}

// StatusResult answers a status poll.
type StatusResult struct {
	Status      string `json:"status"`
	RoomName    string `json:"roomName,omitempty"`
	MatchedWith string `json:"matchedWith,omitempty"`
	Position    int    `json:"position,omitempty"`
	QueueSize   int    `json:"queueSize,omitempty"`
}

// DisconnectResult is the outcome of a disconnect report.
type DisconnectResult struct {
	Status         string `json:"status"`
	LeftBehindUser string `json:"leftBehindUser,omitempty"`
}

// errTicketClaimed aborts a scan whose own ticket was claimed by another
// committer mid-flight. Never escapes Enqueue.
var errTicketClaimed = errors.New("own ticket claimed by another committer")

func (ms *MatchmakingService) metrics() MatchingMetrics {
	if ms.Metrics == nil {
		return NopMetrics{}
	}
	return ms.Metrics
}

// Enqueue admits a user to the pool and immediately tries to pair them.
// Calling it again while waiting refreshes the ticket; calling it while
// matched returns the existing match, so clients can poll it safely.
func (ms *MatchmakingService) Enqueue(ctx context.Context, userName string, useDemo bool) (*MatchResult, error) {
	if userName == "" {
		return nil, fmt.Errorf("%w: userName is required", ErrValidation)
	}

	ms.sweepStale(ctx)

	// Already matched: idempotent success.
	if match, err := ms.Matches.GetByUser(ctx, userName); err != nil {
		return nil, err
	} else if match != nil {
		return &MatchResult{
			Status:      models.StatusMatched,
			RoomName:    match.RoomName,
			MatchedWith: match.Other(userName),
		}, nil
	}

	// Already queued: refresh the timestamp, keep state and room.
	existing, err := ms.Queue.Get(ctx, userName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		refreshed := *existing
		refreshed.JoinedAt = time.Now()
		refreshed.UseDemo = useDemo
		if err := ms.Queue.Enqueue(ctx, refreshed); err != nil {
			return nil, err
		}
		// An in_call user stays parked: newcomers reuse their room, picking
		// them up with priority.
		if existing.State == models.TicketStateInCall {
			return &MatchResult{Status: models.StatusWaiting, RoomName: existing.RoomName}, nil
		}
	} else {
		// The ticket goes in before the scan. Holding a claimable ticket is
		// what lets duplicate enqueues of the same user arbitrate through the
		// own-ticket claim instead of each committing a match.
		ticket := models.Ticket{
			UserName: userName,
			JoinedAt: time.Now(),
			State:    models.TicketStateWaiting,
			UseDemo:  useDemo,
		}
		if err := ms.Queue.Enqueue(ctx, ticket); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"userName": userName, "useDemo": useDemo}).Info("User queued")
	}

	result, err := ms.tryMatch(ctx, userName, useDemo)
	if errors.Is(err, errTicketClaimed) {
		// Another request is matching us right now; report what it wrote, or
		// waiting if its commit has not landed yet.
		if match, err := ms.Matches.GetByUser(ctx, userName); err == nil && match != nil {
			return &MatchResult{
				Status:      models.StatusMatched,
				RoomName:    match.RoomName,
				MatchedWith: match.Other(userName),
			}, nil
		}
		return &MatchResult{Status: models.StatusWaiting}, nil
	}
	if err != nil || result != nil {
		return result, err
	}
	return &MatchResult{Status: models.StatusWaiting}, nil
}

// tryMatch scans candidates oldest-first, in_call tickets ahead of waiting
// ones, and commits the first pair it can claim. Returns (nil, nil) when no
// candidate could be paired. The caller holds a waiting ticket of its own and
// must win the claim on it before a commit counts.
func (ms *MatchmakingService) tryMatch(ctx context.Context, userName string, useDemo bool) (*MatchResult, error) {
	for _, state := range []string{models.TicketStateInCall, models.TicketStateWaiting} {
		candidates, err := ms.Queue.List(ctx, state)
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if candidate.UserName == userName {
				continue
			}
			remaining, err := ms.Cooldowns.Remaining(ctx, userName, candidate.UserName)
			if err != nil {
				return nil, err
			}
			if remaining > 0 {
				continue
			}

			handle, err := ms.Locks.TryAcquire(ctx, userName, candidate.UserName, ms.LockTTL)
			if errors.Is(err, ErrLockContention) {
				// Another instance is mid-commit with this candidate.
				ms.metrics().LockContention()
				continue
			}
			if err != nil {
				return nil, err
			}

			result, err := ms.commitMatch(ctx, userName, useDemo, candidate, state)
			releaseErr := handle.Release(ctx)
			if err != nil {
				return nil, err
			}
			if releaseErr != nil {
				log.WithError(releaseErr).Warn("Failed to release pair lock, TTL will reap it")
			}
			if result != nil {
				return result, nil
			}
			// Candidate was gone on re-validation; keep scanning.
		}
	}
	return nil, nil
}

// commitMatch re-validates the candidate under the pair lock and, if it is
// still live, claims its ticket and writes the match. The list scan that
// found the candidate was not atomic, so the re-read here is mandatory.
func (ms *MatchmakingService) commitMatch(ctx context.Context, userName string, useDemo bool, candidate models.Ticket, state string) (*MatchResult, error) {
	fresh, err := ms.Queue.Get(ctx, candidate.UserName)
	if err != nil {
		return nil, err
	}
	if fresh == nil || fresh.State != state {
		return nil, nil
	}
	if match, err := ms.Matches.GetByUser(ctx, candidate.UserName); err != nil {
		return nil, err
	} else if match != nil {
		return nil, nil
	}

	// Dequeue doubles as the atomic claim: only one committer gets true.
	claimed, err := ms.Queue.Dequeue(ctx, candidate.UserName)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}

	// The committer must win the claim on its own ticket too; losing it means
	// a duplicate request or another instance is matching us this very moment.
	ownClaimed, err := ms.Queue.Dequeue(ctx, userName)
	if err != nil {
		ms.restoreTicket(ctx, *fresh)
		return nil, err
	}
	if !ownClaimed {
		ms.restoreTicket(ctx, *fresh)
		return nil, errTicketClaimed
	}
	// The own claim can be a re-inserted ticket from a duplicate request that
	// already committed; re-check our own match state before writing another.
	if match, err := ms.Matches.GetByUser(ctx, userName); err != nil {
		ms.restoreTicket(ctx, *fresh)
		return nil, err
	} else if match != nil {
		ms.restoreTicket(ctx, *fresh)
		return nil, errTicketClaimed
	}
	abort := func() {
		ms.restoreTicket(ctx, *fresh)
		ms.restoreTicket(ctx, models.Ticket{
			UserName: userName,
			JoinedAt: time.Now(),
			State:    models.TicketStateWaiting,
			UseDemo:  useDemo,
		})
	}

	reuseRoom := state == models.TicketStateInCall && fresh.RoomName != ""
	roomName := fresh.RoomName
	if !reuseRoom {
		roomName = utils.NewRoomName()
		if err := ms.Rooms.CreateRoom(ctx, roomName, 2); err != nil {
			abort()
			return nil, fmt.Errorf("failed to create provider room: %w", err)
		}
	}

	match := models.Match{
		RoomName:  roomName,
		User1:     userName,
		User2:     candidate.UserName,
		MatchedAt: time.Now(),
		UseDemo:   useDemo || fresh.UseDemo,
	}
	if err := ms.Matches.Create(ctx, match); err != nil {
		abort()
		if errors.Is(err, ErrRoomTaken) {
			// The reused room got claimed between reads; keep scanning.
			return nil, nil
		}
		return nil, err
	}

	// A concurrent duplicate enqueue may have re-inserted our ticket between
	// the own claim and the match write; drop it best-effort.
	if _, err := ms.Queue.Dequeue(ctx, userName); err != nil {
		log.WithError(err).WithField("userName", userName).Warn("Failed to drop own ticket after match commit")
	}

	ms.noteRematched(ctx, userName, roomName)
	ms.noteRematched(ctx, candidate.UserName, roomName)

	ms.metrics().MatchFormed(reuseRoom)
	log.WithFields(log.Fields{
		"roomName": roomName,
		"user1":    userName,
		"user2":    candidate.UserName,
		"reused":   reuseRoom,
	}).Info("Match formed")

	return &MatchResult{
		Status:      models.StatusMatched,
		RoomName:    roomName,
		MatchedWith: candidate.UserName,
	}, nil
}

func (ms *MatchmakingService) restoreTicket(ctx context.Context, ticket models.Ticket) {
	if err := ms.Queue.Enqueue(ctx, ticket); err != nil {
		log.WithError(err).WithField("userName", ticket.UserName).
			Error("Failed to restore claimed ticket after aborted commit")
	}
}

// noteRematched completes any open left-behind record with the new room.
func (ms *MatchmakingService) noteRematched(ctx context.Context, userName, roomName string) {
	record, err := ms.LeftBehind.Get(ctx, userName)
	if err != nil || record == nil || record.Processed {
		return
	}
	record.Processed = true
	record.NewRoomName = roomName
	if err := ms.LeftBehind.Put(ctx, *record); err != nil {
		log.WithError(err).WithField("userName", userName).Warn("Failed to update left-behind record")
	}
}

// Status answers a poll without mutating anything beyond the lazy sweep.
func (ms *MatchmakingService) Status(ctx context.Context, userName string) (*StatusResult, error) {
	if userName == "" {
		return nil, fmt.Errorf("%w: userName is required", ErrValidation)
	}

	if match, err := ms.Matches.GetByUser(ctx, userName); err != nil {
		return nil, err
	} else if match != nil {
		return &StatusResult{
			Status:      models.StatusMatched,
			RoomName:    match.RoomName,
			MatchedWith: match.Other(userName),
		}, nil
	}

	ticket, err := ms.Queue.Get(ctx, userName)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return &StatusResult{Status: models.StatusIdle}, nil
	}

	peers, err := ms.Queue.List(ctx, ticket.State)
	if err != nil {
		return nil, err
	}
	position := 0
	for i, peer := range peers {
		if peer.UserName == userName {
			position = i + 1
			break
		}
	}
	total, err := ms.Queue.Count(ctx)
	if err != nil {
		return nil, err
	}
	ms.metrics().SetQueueDepth(total)

	return &StatusResult{
		Status:    models.StatusWaiting,
		RoomName:  ticket.RoomName,
		Position:  position,
		QueueSize: total,
	}, nil
}

// Cancel removes the user from the pool, dissolving their match if one is
// live. The abandoned partner keeps the room and gets priority rematching.
func (ms *MatchmakingService) Cancel(ctx context.Context, userName string) (bool, error) {
	if userName == "" {
		return false, fmt.Errorf("%w: userName is required", ErrValidation)
	}

	removed, err := ms.Queue.Dequeue(ctx, userName)
	if err != nil {
		return false, err
	}

	match, err := ms.Matches.GetByUser(ctx, userName)
	if err != nil {
		return removed, err
	}
	if match == nil {
		return removed, nil
	}

	partner := match.Other(userName)
	if err := ms.Matches.Remove(ctx, match.RoomName); err != nil {
		return removed, err
	}
	ms.metrics().MatchDissolved("cancel")
	if err := ms.Cooldowns.Record(ctx, userName, partner, models.CooldownKindNormal); err != nil {
		log.WithError(err).Warn("Failed to record cooldown on cancel")
	}
	if err := ms.promoteToRoom(ctx, partner, match.RoomName, match.UseDemo, userName); err != nil {
		return true, err
	}

	log.WithFields(log.Fields{"userName": userName, "partner": partner, "roomName": match.RoomName}).
		Info("Match dissolved by cancel, partner promoted")
	return true, nil
}

// Skip dissolves the match symmetrically: both users go back to waiting and a
// long skip cooldown keeps them from being re-paired with each other.
func (ms *MatchmakingService) Skip(ctx context.Context, userName, roomName, partner string) (*MatchResult, error) {
	if userName == "" || partner == "" {
		return nil, fmt.Errorf("%w: userName and partner are required", ErrValidation)
	}

	useDemo := false
	if roomName != "" {
		match, err := ms.Matches.Get(ctx, roomName)
		if err != nil {
			return nil, err
		}
		if match != nil {
			// Only an occupant may dissolve the room's match.
			if !match.Contains(userName) {
				return nil, fmt.Errorf("%w: %s is not in room %s", ErrValidation, userName, roomName)
			}
			useDemo = match.UseDemo
			if err := ms.Matches.Remove(ctx, roomName); err != nil {
				return nil, err
			}
			ms.metrics().MatchDissolved("skip")
			if err := ms.Rooms.DeleteRoom(ctx, roomName); err != nil {
				log.WithError(err).WithField("roomName", roomName).Warn("Failed to delete skipped room at provider")
			}
		}
	}

	if err := ms.Cooldowns.Record(ctx, userName, partner, models.CooldownKindSkip); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, requeued := range []struct{ user, lastPartner string }{
		{userName, partner},
		{partner, userName},
	} {
		ticket := models.Ticket{
			UserName:         requeued.user,
			JoinedAt:         now,
			State:            models.TicketStateWaiting,
			UseDemo:          useDemo,
			LastMatchPartner: requeued.lastPartner,
			LastMatchAt:      now,
		}
		if err := ms.Queue.Enqueue(ctx, ticket); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{"userName": userName, "partner": partner, "roomName": roomName}).
		Info("Pair skipped, both re-queued")
	return &MatchResult{Status: models.StatusWaiting}, nil
}

// HandleDisconnection dissolves a match after an unexpected drop. A short
// grace delay absorbs reconnection blips: if the user shows up in the room
// again, nothing is dissolved. The surviving partner keeps the room, gets an
// in_call ticket, and a left-behind record for their client.
func (ms *MatchmakingService) HandleDisconnection(ctx context.Context, userName, roomName, partner string) (*DisconnectResult, error) {
	if userName == "" || roomName == "" {
		return nil, fmt.Errorf("%w: userName and roomName are required", ErrValidation)
	}

	match, err := ms.Matches.Get(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if partner == "" && match != nil {
		partner = match.Other(userName)
	}

	if ms.DisconnectGrace > 0 {
		time.Sleep(ms.DisconnectGrace)
		participants, err := ms.Rooms.ListParticipants(ctx, roomName)
		if err == nil {
			for _, participant := range participants {
				if participant.UserName == userName {
					log.WithFields(log.Fields{"userName": userName, "roomName": roomName}).
						Info("User reconnected within grace window")
					return &DisconnectResult{Status: models.StatusReconnected}, nil
				}
			}
		}
	}

	if match != nil {
		if err := ms.Matches.Remove(ctx, roomName); err != nil {
			return nil, err
		}
		ms.metrics().MatchDissolved("disconnect")
	}
	if _, err := ms.Queue.Dequeue(ctx, userName); err != nil {
		return nil, err
	}

	if partner == "" {
		return &DisconnectResult{Status: models.StatusDisconnected}, nil
	}

	if err := ms.Cooldowns.Record(ctx, userName, partner, models.CooldownKindNormal); err != nil {
		log.WithError(err).Warn("Failed to record cooldown on disconnect")
	}
	record := models.LeftBehindRecord{
		UserName:         partner,
		PreviousRoom:     roomName,
		DisconnectedFrom: userName,
		CreatedAt:        time.Now(),
	}
	if err := ms.LeftBehind.Put(ctx, record); err != nil {
		log.WithError(err).WithField("userName", partner).Warn("Failed to store left-behind record")
	}
	useDemo := false
	if match != nil {
		useDemo = match.UseDemo
	}
	if err := ms.promoteToRoom(ctx, partner, roomName, useDemo, userName); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"userName": userName, "partner": partner, "roomName": roomName}).
		Info("Disconnect handled, partner left behind")
	return &DisconnectResult{Status: models.StatusDisconnected, LeftBehindUser: partner}, nil
}

// promoteToRoom gives a user who is alone in a live room an in_call ticket so
// the next enqueue reuses their room instead of wasting it.
func (ms *MatchmakingService) promoteToRoom(ctx context.Context, userName, roomName string, useDemo bool, lastPartner string) error {
	ticket := models.Ticket{
		UserName:         userName,
		JoinedAt:         time.Now(),
		State:            models.TicketStateInCall,
		UseDemo:          useDemo,
		RoomName:         roomName,
		LastMatchPartner: lastPartner,
		LastMatchAt:      time.Now(),
	}
	return ms.Queue.Enqueue(ctx, ticket)
}

// sweepStale lazily drops expired tickets and matches. Runs at the start of
// every matching attempt instead of on a timer.
func (ms *MatchmakingService) sweepStale(ctx context.Context) {
	swept, err := ms.Queue.Sweep(ctx, ms.TicketMaxAge)
	if err != nil {
		log.WithError(err).Warn("Ticket sweep failed")
	} else if len(swept) > 0 {
		ms.metrics().TicketsSwept(len(swept))
		log.WithField("count", len(swept)).Info("Swept stale tickets")
	}

	matches, err := ms.Matches.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Match sweep failed")
		return
	}
	cutoff := time.Now().Add(-ms.MatchMaxAge)
	for _, match := range matches {
		if match.MatchedAt.After(cutoff) {
			continue
		}
		if err := ms.Matches.Remove(ctx, match.RoomName); err != nil {
			log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to remove stale match")
			continue
		}
		ms.metrics().MatchDissolved("stale")
		if err := ms.Rooms.DeleteRoom(ctx, match.RoomName); err != nil {
			log.WithError(err).WithField("roomName", match.RoomName).Warn("Failed to delete stale room at provider")
		}
		log.WithField("roomName", match.RoomName).Info("Swept stale match")
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"roulette_server/models"

	log "github.com/sirupsen/logrus"
)

// LeftBehindService answers "did my partner vanish, and where do I go now".
// The client uses it to choose between auto-navigating into a new room and
// showing a "partner left" countdown.
type LeftBehindService struct {
	Store   LeftBehindStore
	Matches MatchTable
	TTL     time.Duration
}

// LeftBehindStatus is the client-facing view of a left-behind record.
type LeftBehindStatus struct {
	Status      string `json:"status"`
	RoomName    string `json:"roomName,omitempty"`
	NewRoomName string `json:"newRoomName,omitempty"`
}

// Mark records that userName was abandoned in previousRoom.
func (ls *LeftBehindService) Mark(ctx context.Context, userName, previousRoom, disconnectedFrom string) error {
	if userName == "" {
		return fmt.Errorf("%w: userName is required", ErrValidation)
	}
	return ls.Store.Put(ctx, models.LeftBehindRecord{
		UserName:         userName,
		PreviousRoom:     previousRoom,
		DisconnectedFrom: disconnectedFrom,
		CreatedAt:        time.Now(),
	})
}

// Status resolves the user's situation. A live match wins over any record;
// records past their TTL are dropped on read.
func (ls *LeftBehindService) Status(ctx context.Context, userName string) (*LeftBehindStatus, error) {
	if userName == "" {
		return nil, fmt.Errorf("%w: userName is required", ErrValidation)
	}

	if match, err := ls.Matches.GetByUser(ctx, userName); err != nil {
		return nil, err
	} else if match != nil {
		if err := ls.Store.Delete(ctx, userName); err != nil {
			log.WithError(err).WithField("userName", userName).Warn("Failed to clear stale left-behind record")
		}
		return &LeftBehindStatus{Status: models.StatusAlreadyMatched, RoomName: match.RoomName}, nil
	}

	record, err := ls.Store.Get(ctx, userName)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &LeftBehindStatus{Status: models.StatusNone}, nil
	}
	if ls.TTL > 0 && time.Since(record.CreatedAt) > ls.TTL {
		if err := ls.Store.Delete(ctx, userName); err != nil {
			log.WithError(err).WithField("userName", userName).Warn("Failed to expire left-behind record")
		}
		return &LeftBehindStatus{Status: models.StatusNone}, nil
	}

	status := &LeftBehindStatus{Status: models.StatusLeftBehind}
	if record.Processed {
		status.NewRoomName = record.NewRoomName
	}
	return status, nil
}

// Clear drops the user's record, e.g. once the client has shown the notice.
func (ls *LeftBehindService) Clear(ctx context.Context, userName string) error {
	if userName == "" {
		return fmt.Errorf("%w: userName is required", ErrValidation)
	}
	return ls.Store.Delete(ctx, userName)
}

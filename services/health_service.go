package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// HealthService exposes diagnostics and the operator-invoked recovery knobs.
// The read side is safe to poll; the mutations are deliberately blunt.
type HealthService struct {
	Queue      QueueStore
	Matches    MatchTable
	Cooldowns  CooldownLedger
	Locks      PairingLock
	LeftBehind LeftBehindStore
}

// HealthStats is a point-in-time snapshot of the core's bookkeeping.
type HealthStats struct {
	QueueSize       int `json:"queueSize"`
	MatchCount      int `json:"matchCount"`
	CooldownCount   int `json:"cooldownCount"`
	LockCount       int `json:"lockCount"`
	LeftBehindCount int `json:"leftBehindCount"`
}

// Reset targets
const (
	ResetTargetCooldowns  = "cooldowns"
	ResetTargetQueue      = "queue"
	ResetTargetMatches    = "matches"
	ResetTargetLeftBehind = "left_behind"
	ResetTargetLocks      = "locks"
	ResetTargetAll        = "all"
)

// Stats gathers counts across all stores.
func (hs *HealthService) Stats(ctx context.Context) (*HealthStats, error) {
	stats := &HealthStats{}
	var err error
	if stats.QueueSize, err = hs.Queue.Count(ctx); err != nil {
		return nil, err
	}
	if stats.MatchCount, err = hs.Matches.Count(ctx); err != nil {
		return nil, err
	}
	if stats.CooldownCount, err = hs.Cooldowns.Count(ctx); err != nil {
		return nil, err
	}
	if stats.LockCount, err = hs.Locks.Count(ctx); err != nil {
		return nil, err
	}
	if stats.LeftBehindCount, err = hs.LeftBehind.Count(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearStaleLocks removes expired pair locks that TTL reaping hasn't caught.
func (hs *HealthService) ClearStaleLocks(ctx context.Context) (int, error) {
	cleared, err := hs.Locks.ClearStale(ctx)
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		log.WithField("cleared", cleared).Info("Cleared stale pair locks")
	}
	return cleared, nil
}

// Reset wipes one store, or all of them with ResetTargetAll.
func (hs *HealthService) Reset(ctx context.Context, target string) error {
	switch target {
	case ResetTargetCooldowns:
		return hs.Cooldowns.ClearAll(ctx)
	case ResetTargetQueue:
		return hs.Queue.Clear(ctx)
	case ResetTargetMatches:
		return hs.Matches.Clear(ctx)
	case ResetTargetLeftBehind:
		return hs.LeftBehind.Clear(ctx)
	case ResetTargetLocks:
		return hs.Locks.ClearAll(ctx)
	case ResetTargetAll:
		for _, t := range []string{
			ResetTargetCooldowns, ResetTargetQueue, ResetTargetMatches,
			ResetTargetLeftBehind, ResetTargetLocks,
		} {
			if err := hs.Reset(ctx, t); err != nil {
				return err
			}
		}
		log.Warn("Full state reset performed")
		return nil
	default:
		return fmt.Errorf("%w: unknown reset target '%s'", ErrValidation, target)
	}
}

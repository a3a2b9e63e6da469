package services

import (
	"context"
	"sync"
	"time"

	"roulette_server/models"
	"roulette_server/utils"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
)

// In-memory implementations of the store interfaces, guarded by a mutex per
// store. Used for local development (USE_MEMORY_STORE=true) and by every
// test. The Now field lets tests drive expiry without sleeping.

// ---------------------------------------------------------------------------
// QueueStore

type MemoryQueueStore struct {
	Now func() time.Time

	mu      sync.Mutex
	tickets map[string]models.Ticket
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{Now: time.Now, tickets: make(map[string]models.Ticket)}
}

func (qs *MemoryQueueStore) Enqueue(_ context.Context, ticket models.Ticket) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.tickets[ticket.UserName] = ticket
	return nil
}

func (qs *MemoryQueueStore) Dequeue(_ context.Context, userName string) (bool, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if _, ok := qs.tickets[userName]; !ok {
		return false, nil
	}
	delete(qs.tickets, userName)
	return true, nil
}

func (qs *MemoryQueueStore) Get(_ context.Context, userName string) (*models.Ticket, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	ticket, ok := qs.tickets[userName]
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

func (qs *MemoryQueueStore) List(_ context.Context, state string) ([]models.Ticket, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	tickets := make([]models.Ticket, 0, len(qs.tickets))
	for _, ticket := range qs.tickets {
		if state != "" && ticket.State != state {
			continue
		}
		tickets = append(tickets, ticket)
	}
	return sortTicketsByJoinTime(tickets), nil
}

func (qs *MemoryQueueStore) Sweep(_ context.Context, maxAge time.Duration) ([]models.Ticket, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	cutoff := qs.Now().Add(-maxAge)
	var swept []models.Ticket
	for userName, ticket := range qs.tickets {
		if ticket.JoinedAt.After(cutoff) {
			continue
		}
		swept = append(swept, ticket)
		delete(qs.tickets, userName)
	}
	return sortTicketsByJoinTime(swept), nil
}

func (qs *MemoryQueueStore) Count(_ context.Context) (int, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return len(qs.tickets), nil
}

func (qs *MemoryQueueStore) Clear(_ context.Context) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.tickets = make(map[string]models.Ticket)
	return nil
}

// ---------------------------------------------------------------------------
// MatchTable

type MemoryMatchTable struct {
	mu      sync.Mutex
	matches map[string]models.Match
}

func NewMemoryMatchTable() *MemoryMatchTable {
	return &MemoryMatchTable{matches: make(map[string]models.Match)}
}

func (mt *MemoryMatchTable) Create(_ context.Context, match models.Match) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if _, ok := mt.matches[match.RoomName]; ok {
		return ErrRoomTaken
	}
	mt.matches[match.RoomName] = match
	return nil
}

func (mt *MemoryMatchTable) Get(_ context.Context, roomName string) (*models.Match, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	match, ok := mt.matches[roomName]
	if !ok {
		return nil, nil
	}
	return &match, nil
}

func (mt *MemoryMatchTable) GetByUser(_ context.Context, userName string) (*models.Match, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	for _, match := range mt.matches {
		if match.Contains(userName) {
			m := match
			return &m, nil
		}
	}
	return nil, nil
}

func (mt *MemoryMatchTable) Remove(_ context.Context, roomName string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	delete(mt.matches, roomName)
	return nil
}

func (mt *MemoryMatchTable) List(_ context.Context) ([]models.Match, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	matches := make([]models.Match, 0, len(mt.matches))
	for _, match := range mt.matches {
		matches = append(matches, match)
	}
	return pie.SortUsing(matches, func(a, b models.Match) bool {
		return a.RoomName < b.RoomName
	}), nil
}

func (mt *MemoryMatchTable) Count(_ context.Context) (int, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.matches), nil
}

func (mt *MemoryMatchTable) Clear(_ context.Context) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.matches = make(map[string]models.Match)
	return nil
}

// ---------------------------------------------------------------------------
// CooldownLedger

type MemoryCooldownLedger struct {
	Now       func() time.Time
	NormalTTL time.Duration
	SkipTTL   time.Duration

	mu        sync.Mutex
	cooldowns map[string]models.Cooldown
}

func NewMemoryCooldownLedger(normalTTL, skipTTL time.Duration) *MemoryCooldownLedger {
	return &MemoryCooldownLedger{
		Now:       time.Now,
		NormalTTL: normalTTL,
		SkipTTL:   skipTTL,
		cooldowns: make(map[string]models.Cooldown),
	}
}

func (cl *MemoryCooldownLedger) Record(_ context.Context, a, b, kind string) error {
	ttl := cl.NormalTTL
	if kind == models.CooldownKindSkip {
		ttl = cl.SkipTTL
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	key := utils.PairKey(a, b)
	cl.cooldowns[key] = models.Cooldown{
		PairKey:   key,
		Kind:      kind,
		ExpiresAt: cl.Now().Add(ttl).Unix(),
	}
	return nil
}

func (cl *MemoryCooldownLedger) Remaining(_ context.Context, a, b string) (time.Duration, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	key := utils.PairKey(a, b)
	cooldown, ok := cl.cooldowns[key]
	if !ok {
		return 0, nil
	}
	remaining := time.Unix(cooldown.ExpiresAt, 0).Sub(cl.Now())
	if remaining <= 0 {
		delete(cl.cooldowns, key)
		return 0, nil
	}
	return remaining, nil
}

func (cl *MemoryCooldownLedger) Clear(_ context.Context, a, b string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.cooldowns, utils.PairKey(a, b))
	return nil
}

func (cl *MemoryCooldownLedger) Count(_ context.Context) (int, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	now := cl.Now().Unix()
	count := 0
	for _, cooldown := range cl.cooldowns {
		if cooldown.ExpiresAt > now {
			count++
		}
	}
	return count, nil
}

func (cl *MemoryCooldownLedger) ClearAll(_ context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.cooldowns = make(map[string]models.Cooldown)
	return nil
}

// ---------------------------------------------------------------------------
// PairingLock

type MemoryPairingLock struct {
	Now func() time.Time

	mu    sync.Mutex
	locks map[string]models.PairLock
}

func NewMemoryPairingLock() *MemoryPairingLock {
	return &MemoryPairingLock{Now: time.Now, locks: make(map[string]models.PairLock)}
}

type memoryLockHandle struct {
	store   *MemoryPairingLock
	pairKey string
	owner   string
}

func (h *memoryLockHandle) Release(_ context.Context) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if lock, ok := h.store.locks[h.pairKey]; ok && lock.Owner == h.owner {
		delete(h.store.locks, h.pairKey)
	}
	return nil
}

func (pl *MemoryPairingLock) TryAcquire(_ context.Context, a, b string, ttl time.Duration) (LockHandle, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	key := utils.PairKey(a, b)
	now := pl.Now()
	if lock, ok := pl.locks[key]; ok && lock.ExpiresAt >= now.Unix() {
		return nil, ErrLockContention
	}
	lock := models.PairLock{
		PairKey:   key,
		Owner:     uuid.NewString(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	pl.locks[key] = lock
	return &memoryLockHandle{store: pl, pairKey: key, owner: lock.Owner}, nil
}

func (pl *MemoryPairingLock) Count(_ context.Context) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	now := pl.Now().Unix()
	count := 0
	for _, lock := range pl.locks {
		if lock.ExpiresAt >= now {
			count++
		}
	}
	return count, nil
}

func (pl *MemoryPairingLock) ClearStale(_ context.Context) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	now := pl.Now().Unix()
	cleared := 0
	for key, lock := range pl.locks {
		if lock.ExpiresAt < now {
			delete(pl.locks, key)
			cleared++
		}
	}
	return cleared, nil
}

func (pl *MemoryPairingLock) ClearAll(_ context.Context) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.locks = make(map[string]models.PairLock)
	return nil
}

// ---------------------------------------------------------------------------
// LeftBehindStore

type MemoryLeftBehindStore struct {
	mu      sync.Mutex
	records map[string]models.LeftBehindRecord
}

func NewMemoryLeftBehindStore() *MemoryLeftBehindStore {
	return &MemoryLeftBehindStore{records: make(map[string]models.LeftBehindRecord)}
}

func (ls *MemoryLeftBehindStore) Put(_ context.Context, record models.LeftBehindRecord) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.records[record.UserName] = record
	return nil
}

func (ls *MemoryLeftBehindStore) Get(_ context.Context, userName string) (*models.LeftBehindRecord, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	record, ok := ls.records[userName]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (ls *MemoryLeftBehindStore) Delete(_ context.Context, userName string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.records, userName)
	return nil
}

func (ls *MemoryLeftBehindStore) Count(_ context.Context) (int, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.records), nil
}

func (ls *MemoryLeftBehindStore) Clear(_ context.Context) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.records = make(map[string]models.LeftBehindRecord)
	return nil
}

package services

import (
	"context"
	"strconv"
	"time"

	"roulette_server/models"
	"roulette_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DynamoDB-backed implementations of the store interfaces. Every table is
// small (tens of records), keyed by a single string attribute, and accessed
// through keyed reads, full scans, and conditional writes only — no
// cross-key transactions anywhere.

// ---------------------------------------------------------------------------
// QueueStore

type DynamoQueueStore struct {
	Dynamo *DynamoService
}

func (qs *DynamoQueueStore) Enqueue(ctx context.Context, ticket models.Ticket) error {
	return qs.Dynamo.PutItem(ctx, models.TicketsTable, ticket)
}

func (qs *DynamoQueueStore) Dequeue(ctx context.Context, userName string) (bool, error) {
	return qs.Dynamo.DeleteItem(ctx, models.TicketsTable, StringKey("userName", userName))
}

func (qs *DynamoQueueStore) Get(ctx context.Context, userName string) (*models.Ticket, error) {
	item, err := qs.Dynamo.GetItem(ctx, models.TicketsTable, StringKey("userName", userName))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	ticket, ok := unmarshalTicket(item)
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

func (qs *DynamoQueueStore) List(ctx context.Context, state string) ([]models.Ticket, error) {
	items, err := qs.Dynamo.ScanItems(ctx, models.TicketsTable)
	if err != nil {
		return nil, err
	}
	tickets := make([]models.Ticket, 0, len(items))
	for _, item := range items {
		ticket, ok := unmarshalTicket(item)
		if !ok {
			continue
		}
		if state != "" && ticket.State != state {
			continue
		}
		tickets = append(tickets, ticket)
	}
	return sortTicketsByJoinTime(tickets), nil
}

func (qs *DynamoQueueStore) Sweep(ctx context.Context, maxAge time.Duration) ([]models.Ticket, error) {
	tickets, err := qs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var swept []models.Ticket
	for _, ticket := range tickets {
		if ticket.JoinedAt.After(cutoff) {
			continue
		}
		removed, err := qs.Dequeue(ctx, ticket.UserName)
		if err != nil {
			return swept, err
		}
		if removed {
			swept = append(swept, ticket)
		}
	}
	return swept, nil
}

func (qs *DynamoQueueStore) Count(ctx context.Context) (int, error) {
	tickets, err := qs.List(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(tickets), nil
}

func (qs *DynamoQueueStore) Clear(ctx context.Context) error {
	tickets, err := qs.List(ctx, "")
	if err != nil {
		return err
	}
	for _, ticket := range tickets {
		if _, err := qs.Dequeue(ctx, ticket.UserName); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalTicket(item map[string]types.AttributeValue) (models.Ticket, bool) {
	var ticket models.Ticket
	if err := attributevalue.UnmarshalMap(item, &ticket); err != nil || ticket.UserName == "" || ticket.JoinedAt.IsZero() {
		log.WithField("userName", utils.ExtractString(item, "userName")).
			Warn("Dropping corrupt ticket record")
		return models.Ticket{}, false
	}
	return ticket, true
}

func sortTicketsByJoinTime(tickets []models.Ticket) []models.Ticket {
	return pie.SortUsing(tickets, func(a, b models.Ticket) bool {
		if a.JoinedAt.Equal(b.JoinedAt) {
			return a.UserName < b.UserName
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
}

// ---------------------------------------------------------------------------
// MatchTable

type DynamoMatchTable struct {
	Dynamo *DynamoService
}

func (mt *DynamoMatchTable) Create(ctx context.Context, match models.Match) error {
	return mt.Dynamo.PutItemConditional(ctx, models.MatchesTable, match,
		"attribute_not_exists(#room)",
		map[string]string{"#room": "roomName"},
		nil,
		ErrRoomTaken,
	)
}

func (mt *DynamoMatchTable) Get(ctx context.Context, roomName string) (*models.Match, error) {
	item, err := mt.Dynamo.GetItem(ctx, models.MatchesTable, StringKey("roomName", roomName))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	match, ok := unmarshalMatch(item)
	if !ok {
		return nil, nil
	}
	return &match, nil
}

func (mt *DynamoMatchTable) GetByUser(ctx context.Context, userName string) (*models.Match, error) {
	matches, err := mt.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if matches[i].Contains(userName) {
			return &matches[i], nil
		}
	}
	return nil, nil
}

func (mt *DynamoMatchTable) Remove(ctx context.Context, roomName string) error {
	_, err := mt.Dynamo.DeleteItem(ctx, models.MatchesTable, StringKey("roomName", roomName))
	return err
}

func (mt *DynamoMatchTable) List(ctx context.Context) ([]models.Match, error) {
	items, err := mt.Dynamo.ScanItems(ctx, models.MatchesTable)
	if err != nil {
		return nil, err
	}
	matches := make([]models.Match, 0, len(items))
	for _, item := range items {
		match, ok := unmarshalMatch(item)
		if !ok {
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (mt *DynamoMatchTable) Count(ctx context.Context) (int, error) {
	matches, err := mt.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (mt *DynamoMatchTable) Clear(ctx context.Context) error {
	matches, err := mt.List(ctx)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := mt.Remove(ctx, match.RoomName); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalMatch(item map[string]types.AttributeValue) (models.Match, bool) {
	var match models.Match
	if err := attributevalue.UnmarshalMap(item, &match); err != nil ||
		match.RoomName == "" || match.User1 == "" || match.User2 == "" {
		log.WithField("roomName", utils.ExtractString(item, "roomName")).
			Warn("Dropping corrupt match record")
		return models.Match{}, false
	}
	return match, true
}

// ---------------------------------------------------------------------------
// CooldownLedger

type DynamoCooldownLedger struct {
	Dynamo    *DynamoService
	NormalTTL time.Duration
	SkipTTL   time.Duration
}

func (cl *DynamoCooldownLedger) ttlFor(kind string) time.Duration {
	if kind == models.CooldownKindSkip {
		return cl.SkipTTL
	}
	return cl.NormalTTL
}

func (cl *DynamoCooldownLedger) Record(ctx context.Context, a, b, kind string) error {
	cooldown := models.Cooldown{
		PairKey:   utils.PairKey(a, b),
		Kind:      kind,
		ExpiresAt: time.Now().Add(cl.ttlFor(kind)).Unix(),
	}
	return cl.Dynamo.PutItem(ctx, models.CooldownsTable, cooldown)
}

func (cl *DynamoCooldownLedger) Remaining(ctx context.Context, a, b string) (time.Duration, error) {
	item, err := cl.Dynamo.GetItem(ctx, models.CooldownsTable, StringKey("pairKey", utils.PairKey(a, b)))
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, nil
	}
	expiresAt := utils.ExtractInt64(item, "expiresAt")
	remaining := time.Until(time.Unix(expiresAt, 0))
	if remaining <= 0 {
		// Lazy cleanup; the DynamoDB TTL reaper also gets these eventually.
		_ = cl.Clear(ctx, a, b)
		return 0, nil
	}
	return remaining, nil
}

func (cl *DynamoCooldownLedger) Clear(ctx context.Context, a, b string) error {
	_, err := cl.Dynamo.DeleteItem(ctx, models.CooldownsTable, StringKey("pairKey", utils.PairKey(a, b)))
	return err
}

func (cl *DynamoCooldownLedger) Count(ctx context.Context) (int, error) {
	items, err := cl.Dynamo.ScanItems(ctx, models.CooldownsTable)
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	count := 0
	for _, item := range items {
		if utils.ExtractInt64(item, "expiresAt") > now {
			count++
		}
	}
	return count, nil
}

func (cl *DynamoCooldownLedger) ClearAll(ctx context.Context) error {
	items, err := cl.Dynamo.ScanItems(ctx, models.CooldownsTable)
	if err != nil {
		return err
	}
	for _, item := range items {
		pairKey := utils.ExtractString(item, "pairKey")
		if pairKey == "" {
			continue
		}
		if _, err := cl.Dynamo.DeleteItem(ctx, models.CooldownsTable, StringKey("pairKey", pairKey)); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// PairingLock

type DynamoPairingLock struct {
	Dynamo *DynamoService
}

type dynamoLockHandle struct {
	store   *DynamoPairingLock
	pairKey string
	owner   string
}

func (h *dynamoLockHandle) Release(ctx context.Context) error {
	// Only release our own lock; an expired lock may have been taken over.
	return h.store.Dynamo.DeleteItemConditional(ctx, models.PairLocksTable,
		StringKey("pairKey", h.pairKey),
		"#o = :owner",
		map[string]string{"#o": "owner"},
		map[string]types.AttributeValue{":owner": &types.AttributeValueMemberS{Value: h.owner}},
	)
}

func (pl *DynamoPairingLock) TryAcquire(ctx context.Context, a, b string, ttl time.Duration) (LockHandle, error) {
	lock := models.PairLock{
		PairKey:   utils.PairKey(a, b),
		Owner:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	err := pl.Dynamo.PutItemConditional(ctx, models.PairLocksTable, lock,
		"attribute_not_exists(#pk) OR #exp < :now",
		map[string]string{"#pk": "pairKey", "#exp": "expiresAt"},
		map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
		ErrLockContention,
	)
	if err != nil {
		return nil, err
	}
	return &dynamoLockHandle{store: pl, pairKey: lock.PairKey, owner: lock.Owner}, nil
}

func (pl *DynamoPairingLock) Count(ctx context.Context) (int, error) {
	items, err := pl.Dynamo.ScanItems(ctx, models.PairLocksTable)
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	count := 0
	for _, item := range items {
		if utils.ExtractInt64(item, "expiresAt") > now {
			count++
		}
	}
	return count, nil
}

func (pl *DynamoPairingLock) ClearStale(ctx context.Context) (int, error) {
	items, err := pl.Dynamo.ScanItems(ctx, models.PairLocksTable)
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	cleared := 0
	for _, item := range items {
		if utils.ExtractInt64(item, "expiresAt") >= now {
			continue
		}
		pairKey := utils.ExtractString(item, "pairKey")
		if pairKey == "" {
			continue
		}
		removed, err := pl.Dynamo.DeleteItem(ctx, models.PairLocksTable, StringKey("pairKey", pairKey))
		if err != nil {
			return cleared, err
		}
		if removed {
			cleared++
		}
	}
	return cleared, nil
}

func (pl *DynamoPairingLock) ClearAll(ctx context.Context) error {
	items, err := pl.Dynamo.ScanItems(ctx, models.PairLocksTable)
	if err != nil {
		return err
	}
	for _, item := range items {
		pairKey := utils.ExtractString(item, "pairKey")
		if pairKey == "" {
			continue
		}
		if _, err := pl.Dynamo.DeleteItem(ctx, models.PairLocksTable, StringKey("pairKey", pairKey)); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// LeftBehindStore

type DynamoLeftBehindStore struct {
	Dynamo *DynamoService
}

func (ls *DynamoLeftBehindStore) Put(ctx context.Context, record models.LeftBehindRecord) error {
	return ls.Dynamo.PutItem(ctx, models.LeftBehindTable, record)
}

func (ls *DynamoLeftBehindStore) Get(ctx context.Context, userName string) (*models.LeftBehindRecord, error) {
	item, err := ls.Dynamo.GetItem(ctx, models.LeftBehindTable, StringKey("userName", userName))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	var record models.LeftBehindRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil || record.UserName == "" {
		log.WithField("userName", userName).Warn("Dropping corrupt left-behind record")
		return nil, nil
	}
	return &record, nil
}

func (ls *DynamoLeftBehindStore) Delete(ctx context.Context, userName string) error {
	_, err := ls.Dynamo.DeleteItem(ctx, models.LeftBehindTable, StringKey("userName", userName))
	return err
}

func (ls *DynamoLeftBehindStore) Count(ctx context.Context) (int, error) {
	items, err := ls.Dynamo.ScanItems(ctx, models.LeftBehindTable)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (ls *DynamoLeftBehindStore) Clear(ctx context.Context) error {
	items, err := ls.Dynamo.ScanItems(ctx, models.LeftBehindTable)
	if err != nil {
		return err
	}
	for _, item := range items {
		userName := utils.ExtractString(item, "userName")
		if userName == "" {
			continue
		}
		if err := ls.Delete(ctx, userName); err != nil {
			return err
		}
	}
	return nil
}

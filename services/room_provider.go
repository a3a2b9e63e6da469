package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Participant is one person the provider observes inside a room.
type Participant struct {
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ProviderRoom is a room as the provider reports it.
type ProviderRoom struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomProvider is the external video-room collaborator. Its participant lists
// are the ground truth reconciliation heals against.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) error
	DeleteRoom(ctx context.Context, name string) error
	ListRooms(ctx context.Context) ([]ProviderRoom, error)
	ListParticipants(ctx context.Context, name string) ([]Participant, error)
}

// ---------------------------------------------------------------------------
// REST client

// HTTPRoomProvider talks to a Daily-style rooms REST API.
type HTTPRoomProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPRoomProvider(baseURL, apiKey string) *HTTPRoomProvider {
	return &HTTPRoomProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPRoomProvider) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode provider request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: room provider %s %s: %v", ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: provider %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: room provider %s %s returned %d", ErrStoreUnavailable, method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response for %s: %w", path, err)
		}
	}
	return nil
}

func (p *HTTPRoomProvider) CreateRoom(ctx context.Context, name string, maxParticipants int) error {
	payload := map[string]interface{}{
		"name": name,
		"properties": map[string]interface{}{
			"max_participants": maxParticipants,
		},
	}
	return p.do(ctx, http.MethodPost, "/rooms", payload, nil)
}

func (p *HTTPRoomProvider) DeleteRoom(ctx context.Context, name string) error {
	err := p.do(ctx, http.MethodDelete, "/rooms/"+name, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil // Already gone
	}
	return err
}

func (p *HTTPRoomProvider) ListRooms(ctx context.Context) ([]ProviderRoom, error) {
	var response struct {
		Data []ProviderRoom `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/rooms", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (p *HTTPRoomProvider) ListParticipants(ctx context.Context, name string) ([]Participant, error) {
	var response struct {
		Data []Participant `json:"data"`
	}
	err := p.do(ctx, http.MethodGet, "/rooms/"+name+"/presence", nil, &response)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil // A deleted room has nobody in it
		}
		return nil, err
	}
	return response.Data, nil
}

// ---------------------------------------------------------------------------
// In-memory provider

// StaticRoomProvider tracks rooms and occupancy in memory. It backs local
// development and tests; webhooks or test setup move participants around.
type StaticRoomProvider struct {
	mu           sync.Mutex
	rooms        map[string]ProviderRoom
	participants map[string][]Participant
}

func NewStaticRoomProvider() *StaticRoomProvider {
	return &StaticRoomProvider{
		rooms:        make(map[string]ProviderRoom),
		participants: make(map[string][]Participant),
	}
}

func (p *StaticRoomProvider) CreateRoom(_ context.Context, name string, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[name] = ProviderRoom{Name: name, CreatedAt: time.Now()}
	return nil
}

func (p *StaticRoomProvider) DeleteRoom(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, name)
	delete(p.participants, name)
	return nil
}

func (p *StaticRoomProvider) ListRooms(_ context.Context) ([]ProviderRoom, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]ProviderRoom, 0, len(p.rooms))
	for _, room := range p.rooms {
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (p *StaticRoomProvider) ListParticipants(_ context.Context, name string) ([]Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Participant(nil), p.participants[name]...), nil
}

// SetParticipants replaces a room's occupancy, simulating provider events.
func (p *StaticRoomProvider) SetParticipants(name string, userNames ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	participants := make([]Participant, 0, len(userNames))
	for _, userName := range userNames {
		participants = append(participants, Participant{UserName: userName, JoinedAt: time.Now()})
	}
	p.participants[name] = participants
}

// Join adds one participant to a room.
func (p *StaticRoomProvider) Join(name, userName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.participants[name] = append(p.participants[name], Participant{UserName: userName, JoinedAt: time.Now()})
}

// Leave removes one participant from a room.
func (p *StaticRoomProvider) Leave(name, userName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.participants[name][:0]
	for _, participant := range p.participants[name] {
		if participant.UserName != userName {
			kept = append(kept, participant)
		}
	}
	p.participants[name] = kept
}

package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State of a draft session. Drafting captures raw input, Reviewing shows the
// current summary, Refining is the in-flight correction, Concluded means the
// refinement cap was hit and only accepting remains, Submitted is terminal.
type State string

const (
	StateDrafting  State = "drafting"
	StateReviewing State = "reviewing"
	StateRefining  State = "refining"
	StateConcluded State = "concluded"
	StateSubmitted State = "submitted"
)

// MaxRefinements caps the Refining->Reviewing cycles per draft.
const MaxRefinements = 5

var ErrSessionNotFound = errors.New("draft session not found")

// DraftSession is the explicit session object passed between workflow steps.
// It is loaded and saved at every transition; there is no module-level state.
type DraftSession struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"sender_id,omitempty"`
	IsAnonymous     bool      `json:"is_anonymous"`
	ReceiverID      string    `json:"receiver_id"`
	RawInput        string    `json:"raw_input"`
	CurrentSummary  string    `json:"current_summary"`
	RefinementCount int       `json:"refinement_count"`
	State           State     `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CanRefine reports whether the flag-disagreement transition is still
// available. Enforced identically for voice and text corrections.
func (s *DraftSession) CanRefine() bool {
	return s.State == StateReviewing && s.RefinementCount < MaxRefinements
}

// Store persists draft sessions between review steps.
type Store interface {
	Load(ctx context.Context, id string) (*DraftSession, error)
	Save(ctx context.Context, session *DraftSession) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps draft sessions in Redis with a TTL, so abandoned drafts
// expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("draft-session-%s", id)
}

func (s *RedisStore) Load(ctx context.Context, id string) (*DraftSession, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session DraftSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt draft session %s: %w", id, err)
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *DraftSession) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

// MemoryStore is the fallback when Redis is not configured. Draft sessions
// then only survive as long as the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*DraftSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*DraftSession)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*DraftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, session *DraftSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = time.Now()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

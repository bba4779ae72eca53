package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// In-memory repositories back the service when POSTGRES_DSN is absent
// (local development) and the test suites. They honor the same contracts
// as the pgx implementations, including the CAS semantics of
// UpdateStatus and IncrementLoad.

type memorySessionRepository struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Session
	byPublic map[string]string
}

// NewMemorySessionRepository builds an in-memory session repository.
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{
		byID:     make(map[string]*domain.Session),
		byPublic: make(map[string]string),
	}
}

func (r *memorySessionRepository) Create(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPublic[session.PublicID]; exists {
		return ErrDuplicate
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastMessageAt.IsZero() {
		session.LastMessageAt = session.CreatedAt
	}
	stored := cloneSession(session)
	r.byID[session.ID] = stored
	r.byPublic[session.PublicID] = session.ID
	return nil
}

func (r *memorySessionRepository) GetByPublicID(_ context.Context, publicID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPublic[publicID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(r.byID[id]), nil
}

func (r *memorySessionRepository) UpdateStatus(_ context.Context, session *domain.Session, expected domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[session.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrStaleStatus
	}
	stored.AgentID = copyStringPtr(session.AgentID)
	stored.Status = session.Status
	stored.CloseReason = copyReasonPtr(session.CloseReason)
	stored.Rating = copyIntPtr(session.Rating)
	stored.Feedback = copyStringPtr(session.Feedback)
	stored.ClosedAt = copyTimePtr(session.ClosedAt)
	return nil
}

func (r *memorySessionRepository) TouchLastMessage(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	stored.LastMessageAt = at
	return nil
}

func (r *memorySessionRepository) ListWithFilter(_ context.Context, filter SessionFilter) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Session
	for _, s := range r.byID {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.TenantID != nil && (s.TenantID == nil || *s.TenantID != *filter.TenantID) {
			continue
		}
		if filter.AgentID != nil && (s.AgentID == nil || *s.AgentID != *filter.AgentID) {
			continue
		}
		if filter.CreatedBefore != nil && !s.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		result = append(result, *cloneSession(s))
	}

	waiting := filter.Status != nil && *filter.Status == domain.SessionStatusWaiting
	sort.SliceStable(result, func(i, j int) bool {
		if waiting {
			if ri, rj := result[i].Priority.Rank(), result[j].Priority.Rank(); ri != rj {
				return ri > rj
			}
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})

	return paginate(result, filter.Limit, filter.Offset), nil
}

type memoryMessageRepository struct {
	mu        sync.RWMutex
	bySession map[string][]*domain.Message
	byClient  map[string]*domain.Message
}

// NewMemoryMessageRepository builds an in-memory message repository.
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		bySession: make(map[string][]*domain.Message),
		byClient:  make(map[string]*domain.Message),
	}
}

func clientKeyIndex(sessionID, key string) string {
	return sessionID + "\x00" + key
}

func (r *memoryMessageRepository) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ClientKey != nil && strings.TrimSpace(*msg.ClientKey) != "" {
		if _, exists := r.byClient[clientKeyIndex(msg.SessionID, *msg.ClientKey)]; exists {
			return ErrDuplicate
		}
	}
	log := r.bySession[msg.SessionID]
	msg.Seq = int64(len(log)) + 1
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	stored := cloneMessage(msg)
	r.bySession[msg.SessionID] = append(log, stored)
	if msg.ClientKey != nil && strings.TrimSpace(*msg.ClientKey) != "" {
		r.byClient[clientKeyIndex(msg.SessionID, *msg.ClientKey)] = stored
	}
	return nil
}

func (r *memoryMessageRepository) GetByClientKey(_ context.Context, sessionID, clientKey string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.byClient[clientKeyIndex(sessionID, clientKey)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(stored), nil
}

func (r *memoryMessageRepository) ListSince(_ context.Context, sessionID string, afterSeq int64, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 200
	}
	var result []domain.Message
	for _, msg := range r.bySession[sessionID] {
		if msg.Seq <= afterSeq {
			continue
		}
		result = append(result, *cloneMessage(msg))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *memoryMessageRepository) MarkRead(_ context.Context, sessionID string, upToSeq int64, role domain.PartyRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.bySession[sessionID] {
		if msg.Seq > upToSeq {
			break
		}
		if !msg.ReadByRole(role) {
			msg.ReadBy = append(msg.ReadBy, role)
		}
	}
	return nil
}

func (r *memoryMessageRepository) UnreadCount(_ context.Context, sessionID string, role domain.PartyRole) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, msg := range r.bySession[sessionID] {
		if !msg.ReadByRole(role) {
			count++
		}
	}
	return count, nil
}

type memoryAgentRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Agent
	byEmail map[string]string
}

// NewMemoryAgentRepository builds an in-memory agent repository.
func NewMemoryAgentRepository() AgentRepository {
	return &memoryAgentRepository{
		byID:    make(map[string]*domain.Agent),
		byEmail: make(map[string]string),
	}
}

func (r *memoryAgentRepository) Create(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent.Email != "" {
		if _, exists := r.byEmail[agent.Email]; exists {
			return ErrDuplicate
		}
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	r.byID[agent.ID] = cloneAgent(agent)
	if agent.Email != "" {
		r.byEmail[agent.Email] = agent.ID
	}
	return nil
}

func (r *memoryAgentRepository) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(stored), nil
}

func (r *memoryAgentRepository) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(r.byID[id]), nil
}

func (r *memoryAgentRepository) List(_ context.Context, filter AgentFilter) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Agent
	for _, a := range r.byID {
		if filter.OnlineOnly && !a.IsOnline {
			continue
		}
		result = append(result, *cloneAgent(a))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (r *memoryAgentRepository) SetPresence(_ context.Context, id string, online bool, since time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if online && !stored.IsOnline {
		sinceCopy := since
		stored.OnlineSince = &sinceCopy
	}
	stored.IsOnline = online
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memoryAgentRepository) IncrementLoad(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if stored.CurrentLoad >= stored.MaxConcurrentChats {
		return ErrStaleStatus
	}
	stored.CurrentLoad++
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memoryAgentRepository) DecrementLoad(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if stored.CurrentLoad <= 0 {
		return ErrStaleStatus
	}
	stored.CurrentLoad--
	stored.UpdatedAt = time.Now()
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	out.CustomerID = copyStringPtr(s.CustomerID)
	out.TenantID = copyStringPtr(s.TenantID)
	out.AgentID = copyStringPtr(s.AgentID)
	out.CloseReason = copyReasonPtr(s.CloseReason)
	out.Rating = copyIntPtr(s.Rating)
	out.Feedback = copyStringPtr(s.Feedback)
	out.ClosedAt = copyTimePtr(s.ClosedAt)
	return &out
}

func cloneMessage(m *domain.Message) *domain.Message {
	out := *m
	out.SenderID = copyStringPtr(m.SenderID)
	out.ClientKey = copyStringPtr(m.ClientKey)
	out.ReadBy = append([]domain.PartyRole(nil), m.ReadBy...)
	return &out
}

func cloneAgent(a *domain.Agent) *domain.Agent {
	out := *a
	out.OnlineSince = copyTimePtr(a.OnlineSince)
	out.Capabilities = append([]string(nil), a.Capabilities...)
	return &out
}

func copyStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyReasonPtr(v *domain.CloseReason) *domain.CloseReason {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

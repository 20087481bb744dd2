package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/call-signaling/internal/models"
)

// MemoryStore keeps everything in process memory. It is used when no
// DATABASE_URI is configured and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]models.User
	tokens   map[string]models.Token
	calls    map[string]*models.Call
	messages []models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		users:  make(map[string]models.User),
		tokens: make(map[string]models.Token),
		calls:  make(map[string]*models.Call),
	}
}

func copyCall(c *models.Call) *models.Call {
	return &models.Call{ID: c.ID, Users: slices.Clone(c.Users), CreatedAt: c.CreatedAt}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) AppendMember(_ context.Context, callID, userID string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	call.Users = append(call.Users, userID)
	return copyCall(call), nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, callID, userID string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	call.Users = slices.DeleteFunc(call.Users, func(id string) bool { return id == userID })
	return copyCall(call), nil
}

func (s *MemoryStore) GetCall(_ context.Context, callID string) (*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCall(call), nil
}

func (s *MemoryStore) RemoveMemberFromAllCalls(_ context.Context, userID string) ([]models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Call
	for _, call := range s.calls {
		if !slices.Contains(call.Users, userID) {
			continue
		}
		call.Users = slices.DeleteFunc(call.Users, func(id string) bool { return id == userID })
		out = append(out, *copyCall(call))
	}
	return out, nil
}

func (s *MemoryStore) GetUsers(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []models.User{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, text, userID, callID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[callID]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}

	m := models.Message{
		ID:        uuid.NewString(),
		Text:      text,
		UserID:    userID,
		CallID:    callID,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *MemoryStore) GetMessages(_ context.Context, callID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if m.CallID != callID {
			continue
		}
		m.UserName = s.users[m.UserID].Name
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := models.User{ID: uuid.NewString(), Name: name}
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CreateToken(_ context.Context, userID, token string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}
	t := models.Token{ID: uuid.NewString(), UserID: userID, Token: token, CreatedAt: s.now()}
	s.tokens[token] = t
	return &t, nil
}

func (s *MemoryStore) GetUserByToken(_ context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CreateCall(_ context.Context) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := &models.Call{ID: uuid.NewString(), Users: []string{}, CreatedAt: s.now()}
	s.calls[call.ID] = call
	return copyCall(call), nil
}

// Package testutil provides in-memory fakes for the gate's collaborator
// boundaries.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MockRepository implements storage.Repository with in-memory slices.
// All methods are safe for concurrent use.
type MockRepository struct {
	mu       sync.Mutex
	rulesTbl []rules.Rule
	sessions map[uuid.UUID]storage.Session

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error
}

// NewMockRepository returns a zero-state MockRepository ready for use.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		sessions: make(map[uuid.UUID]storage.Session),
		errors:   make(map[string]error),
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockRepository) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

func (m *MockRepository) popError(method string) error {
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// Seed inserts rules directly, bypassing validation.
func (m *MockRepository) Seed(rs ...rules.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesTbl = append(m.rulesTbl, rs...)
}

// SeedSession inserts a session row.
func (m *MockRepository) SeedSession(s storage.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Session returns the stored session row, if any.
func (m *MockRepository) Session(id uuid.UUID) (storage.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Rules returns a copy of all stored rules, including soft-deleted ones.
func (m *MockRepository) Rules() []rules.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rules.Rule, len(m.rulesTbl))
	copy(out, m.rulesTbl)
	return out
}

func (m *MockRepository) Active(ctx context.Context) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Active"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []rules.Rule
	for _, r := range m.rulesTbl {
		if r.DeletedAt.Valid || r.Expired(now) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MockRepository) ActiveMatching(ctx context.Context, license *string, steamID *int64, ip string) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("ActiveMatching"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []rules.Rule
	for _, r := range m.rulesTbl {
		if r.DeletedAt.Valid || r.Expired(now) {
			continue
		}
		match := r.IPAddress != nil && *r.IPAddress == ip ||
			license != nil && r.License != nil && *r.License == *license ||
			steamID != nil && r.SteamID != nil && *r.SteamID == *steamID
		if match {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockRepository) Create(ctx context.Context, rule *rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Create"); err != nil {
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = time.Now().UTC()
	m.rulesTbl = append(m.rulesTbl, *rule)
	return nil
}

func (m *MockRepository) SoftDelete(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("SoftDelete"); err != nil {
		return 0, err
	}
	var affected int64
	now := time.Now().UTC()
	for i := range m.rulesTbl {
		r := &m.rulesTbl[i]
		if r.SubjectUserID == subjectID && !r.DeletedAt.Valid {
			r.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}
			affected++
		}
	}
	return affected, nil
}

func (m *MockRepository) RecordDisconnect(ctx context.Context, sessionID uuid.UUID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("RecordDisconnect"); err != nil {
		return err
	}
	s := m.sessions[sessionID]
	s.ID = sessionID
	s.DisconnectReason = &reason
	s.Disconnected = &at
	m.sessions[sessionID] = s
	return nil
}

func (m *MockRepository) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popError("Ping")
}

func (m *MockRepository) Close() error {
	return nil
}

// MockDeferrals records the terminate call made for a pending session.
type MockDeferrals struct {
	mu         sync.Mutex
	terminated bool
	message    string
}

// Terminate records the drop message.
func (d *MockDeferrals) Terminate(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminated = true
	d.message = message
}

// Terminated reports whether Terminate was called and with what message.
func (d *MockDeferrals) Terminated() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminated, d.message
}

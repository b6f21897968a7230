package storage

import (
	"context"
	"time"

	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/google/uuid"
)

// Session is the persisted record of a player session. The session manager
// owns the lifecycle; the gate only writes disconnect bookkeeping when it
// drops a client.
type Session struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;index"`
	Connected        time.Time
	Disconnected     *time.Time
	DisconnectReason *string
}

// Repository is the persistence boundary for access rules. Implementations
// must exclude soft-deleted rows from the query methods and run each
// mutation inside a single transaction.
type Repository interface {
	// Active returns all rules that are neither soft-deleted nor expired.
	Active(ctx context.Context) ([]rules.Rule, error)

	// ActiveMatching returns active rules matching any of the supplied
	// client identifiers, ordered by expiry ascending. Nil identifiers
	// match nothing.
	ActiveMatching(ctx context.Context, license *string, steamID *int64, ip string) ([]rules.Rule, error)

	// Create persists a new rule.
	Create(ctx context.Context, rule *rules.Rule) error

	// SoftDelete marks all active rules for the subject as deleted.
	// Returns the number of rules affected.
	SoftDelete(ctx context.Context, subjectID uuid.UUID) (int64, error)

	// RecordDisconnect stamps a session row with the drop reason.
	RecordDisconnect(ctx context.Context, sessionID uuid.UUID, reason string, at time.Time) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

package gate

import (
	"time"

	"github.com/developingchet/sessiongate/internal/engine"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/google/uuid"
)

// Bus topics published and consumed by the gate.
const (
	// TopicSessionCreated carries a SessionCreated payload from the host
	// session manager.
	TopicSessionCreated = "session.created"

	// TopicClientAllowed and TopicClientDropped carry a ClientSession
	// payload for external observers. Fire-and-forget, no acknowledgement.
	TopicClientAllowed = "gate.client.allowed"
	TopicClientDropped = "gate.client.dropped"

	// TopicRuleCreate and TopicRuleDelete accept mutation requests from
	// in-process integrators.
	TopicRuleCreate = "gate.rule.create"
	TopicRuleDelete = "gate.rule.delete"
)

// SessionInfo identifies the pending session being gated.
type SessionInfo struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// Deferrals is the host's mechanism for holding a connecting client pending
// the verdict. Admitting a client means not calling Terminate.
type Deferrals interface {
	Terminate(message string)
}

// SessionCreated is the inbound notification raised by the session manager
// for every connection attempt.
type SessionCreated struct {
	Client    engine.Client
	Session   SessionInfo
	Deferrals Deferrals
}

// ClientSession is the outbound payload for allowed/dropped notifications.
type ClientSession struct {
	Client  engine.Client
	Session SessionInfo
}

// RuleCreateRequest asks the gate to persist a new rule.
type RuleCreateRequest struct {
	IssuerID  uuid.UUID
	SubjectID uuid.UUID
	Matcher   rules.Matcher
	Reason    string
	ExpiresAt *time.Time
}

// RuleDeleteRequest asks the gate to soft-delete a subject's active rules.
type RuleDeleteRequest struct {
	IssuerID  uuid.UUID
	SubjectID uuid.UUID
	Reason    string
}

package rules

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// LicenseLength is the fixed length of a hashed license token.
	LicenseLength = 40

	// MinIPLength and MaxIPLength bound a textual IPv4 address.
	MinIPLength = 7
	MaxIPLength = 15
)

// Rule is a persisted access rule. A rule applies to a single subject user
// and carries up to three matcher fields; a client matching any one of them
// matches the rule.
type Rule struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubjectUserID  uuid.UUID `gorm:"type:uuid;index;not null"`
	IssuedByUserID uuid.UUID `gorm:"type:uuid;not null"`
	License        *string   `gorm:"size:40;index"`
	SteamID        *int64    `gorm:"index"`
	IPAddress      *string   `gorm:"size:15;index"`
	Reason         *string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// Expired reports whether the rule's expiry has passed. Permanent rules
// (nil ExpiresAt) never expire.
func (r Rule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Permanent reports whether the rule has no expiry.
func (r Rule) Permanent() bool {
	return r.ExpiresAt == nil
}

// Matcher carries the optional identifying fields of a rule. At least one
// field must be set; Validate enforces this at the mutation boundary, but
// consumers must tolerate any combination.
type Matcher struct {
	License   *string
	SteamID   *int64
	IPAddress *string
}

// Validate checks that the matcher identifies at least one client attribute
// and that the set fields are well-formed.
func (m Matcher) Validate() error {
	if m.License == nil && m.SteamID == nil && m.IPAddress == nil {
		return fmt.Errorf("matcher must set at least one of license, steam_id, ip_address")
	}
	if m.License != nil && len(*m.License) != LicenseLength {
		return fmt.Errorf("license must be exactly %d characters, got %d", LicenseLength, len(*m.License))
	}
	if m.IPAddress != nil {
		ip := *m.IPAddress
		if len(ip) < MinIPLength || len(ip) > MaxIPLength {
			return fmt.Errorf("ip_address must be %d-%d characters, got %d", MinIPLength, MaxIPLength, len(ip))
		}
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return fmt.Errorf("ip_address %q is not a valid IPv4 address", ip)
		}
	}
	return nil
}

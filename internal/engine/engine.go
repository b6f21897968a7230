// Package engine computes the admit/drop verdict for a connecting client
// against the current rule projection.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/developingchet/sessiongate/internal/metrics"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/rs/zerolog"
)

// Mode is the global decision polarity.
type Mode string

const (
	// Whitelist admits only clients matching a rule.
	Whitelist Mode = "whitelist"
	// Blacklist admits only clients matching no rule.
	Blacklist Mode = "blacklist"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == Whitelist || m == Blacklist
}

// Client holds the identifying attributes of a connecting client. License
// and SteamID are optional; a nil field never matches a rule.
type Client struct {
	Name      string
	License   *string
	SteamID   *int64
	IPAddress string
}

// Params are the decision parameters taken from configuration.
type Params struct {
	Mode          Mode
	BlockMessage  string
	SteamRequired bool
	SteamMessage  string
}

// Reject reasons reported in the Decision and on metrics.
const (
	ReasonSteamRequired = "steam_required"
	ReasonRuleMatch     = "rule_match"
	ReasonNotListed     = "not_listed"
)

// Decision is the verdict for one connection attempt.
type Decision struct {
	Admit   bool
	Message string
	Reason  string
}

// Decide computes the verdict for client against set. It is a pure function
// of its inputs: same params, set, and client always yield the same Decision.
// The returned message is the base rejection message; in blacklist mode the
// caller appends the expiry suffix from ExpirySuffix.
func Decide(params Params, set *rules.RuleSet, client Client) Decision {
	// Steam requirement bypasses rule matching entirely.
	if params.SteamRequired && client.SteamID == nil {
		return Decision{Admit: false, Message: params.SteamMessage, Reason: ReasonSteamRequired}
	}

	matched := set.HasIP(client.IPAddress) ||
		(client.SteamID != nil && set.HasSteamID(*client.SteamID)) ||
		(client.License != nil && set.HasLicense(*client.License))

	if params.Mode == Whitelist && matched || params.Mode == Blacklist && !matched {
		return Decision{Admit: true}
	}

	reason := ReasonRuleMatch
	if params.Mode == Whitelist {
		reason = ReasonNotListed
	}
	return Decision{Admit: false, Message: params.BlockMessage, Reason: reason}
}

// ExpirySuffix returns the human-readable remaining-ban-time suffix for a
// dropped client in blacklist mode: "permanently" when an active permanent
// rule matches, "for the next {duration}" for the furthest-future expiring
// match, and "" when no persisted rule matches (the block came from static
// configuration alone). A repository failure degrades to "" and is never
// propagated; the admit/drop outcome has already been made.
func ExpirySuffix(ctx context.Context, repo storage.Repository, client Client, now time.Time, log zerolog.Logger) string {
	matched, err := repo.ActiveMatching(ctx, client.License, client.SteamID, client.IPAddress)
	if err != nil {
		metrics.ExpiryLookupFailures.Inc()
		log.Warn().Err(err).Str("ip", client.IPAddress).Msg("expiry lookup failed; omitting suffix")
		return ""
	}
	if len(matched) == 0 {
		return ""
	}

	// Order by expiry ascending with permanent rules last, then take the
	// last element: a permanent rule always wins, otherwise the rule with
	// the furthest-future expiry.
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Permanent() {
			return false
		}
		if b.Permanent() {
			return true
		}
		return a.ExpiresAt.Before(*b.ExpiresAt)
	})

	last := matched[len(matched)-1]
	if last.Permanent() {
		return "permanently"
	}
	return "for the next " + Friendly(last.ExpiresAt.Sub(now))
}

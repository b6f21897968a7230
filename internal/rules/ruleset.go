package rules

import (
	"sync/atomic"
	"time"
)

// StaticRules are the matcher lists supplied by configuration. They are
// merged into every rebuilt RuleSet regardless of the persistence layer.
type StaticRules struct {
	IPs      []string
	Licenses []string
	SteamIDs []int64
}

// RuleSet is the read-optimized projection consulted on every connection
// decision. A published RuleSet is immutable; rebuilds produce a fresh one
// and swap it in wholesale.
type RuleSet struct {
	IPs      map[string]struct{}
	Licenses map[string]struct{}
	SteamIDs map[int64]struct{}
	BuiltAt  time.Time
}

// Build computes a RuleSet from the static configuration lists and the
// persisted rules. Each matcher field is projected independently: a rule
// missing a field contributes nothing to that field's set. Soft-deleted
// rules are expected to be filtered by the repository query; expiry is
// re-checked here against now so a stale query result cannot leak an
// expired matcher into the projection.
func Build(static StaticRules, persisted []Rule, now time.Time) *RuleSet {
	set := &RuleSet{
		IPs:      make(map[string]struct{}, len(static.IPs)+len(persisted)),
		Licenses: make(map[string]struct{}, len(static.Licenses)+len(persisted)),
		SteamIDs: make(map[int64]struct{}, len(static.SteamIDs)+len(persisted)),
		BuiltAt:  now,
	}
	for _, ip := range static.IPs {
		set.IPs[ip] = struct{}{}
	}
	for _, lic := range static.Licenses {
		set.Licenses[lic] = struct{}{}
	}
	for _, id := range static.SteamIDs {
		set.SteamIDs[id] = struct{}{}
	}
	for _, r := range persisted {
		if r.DeletedAt.Valid || r.Expired(now) {
			continue
		}
		if r.IPAddress != nil {
			set.IPs[*r.IPAddress] = struct{}{}
		}
		if r.License != nil {
			set.Licenses[*r.License] = struct{}{}
		}
		if r.SteamID != nil {
			set.SteamIDs[*r.SteamID] = struct{}{}
		}
	}
	return set
}

// HasIP reports whether ip is in the set.
func (s *RuleSet) HasIP(ip string) bool {
	_, ok := s.IPs[ip]
	return ok
}

// HasLicense reports whether lic is in the set.
func (s *RuleSet) HasLicense(lic string) bool {
	_, ok := s.Licenses[lic]
	return ok
}

// HasSteamID reports whether id is in the set.
func (s *RuleSet) HasSteamID(id int64) bool {
	_, ok := s.SteamIDs[id]
	return ok
}

// Snapshot publishes the current RuleSet behind an atomic pointer. Readers
// dereference once at the start of a decision and never observe a partially
// built set; writers swap in a fully built replacement.
type Snapshot struct {
	ptr atomic.Pointer[RuleSet]
}

// Current returns the last published RuleSet, or nil before the first swap.
func (s *Snapshot) Current() *RuleSet {
	return s.ptr.Load()
}

// Swap publishes set as the new current RuleSet.
func (s *Snapshot) Swap(set *RuleSet) {
	s.ptr.Store(set)
}

package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

func TestBuildUnionsStaticAndPersisted(t *testing.T) {
	now := time.Now().UTC()
	static := StaticRules{
		IPs:      []string{"1.2.3.4"},
		Licenses: []string{"cccccccccccccccccccccccccccccccccccccccc"},
		SteamIDs: []int64{100},
	}
	persisted := []Rule{
		{ID: uuid.New(), IPAddress: strPtr("5.6.7.8")},
		{ID: uuid.New(), License: strPtr("dddddddddddddddddddddddddddddddddddddddd")},
		{ID: uuid.New(), SteamID: i64Ptr(200)},
	}

	set := Build(static, persisted, now)

	for _, ip := range []string{"1.2.3.4", "5.6.7.8"} {
		if !set.HasIP(ip) {
			t.Errorf("missing ip %s", ip)
		}
	}
	if !set.HasLicense("cccccccccccccccccccccccccccccccccccccccc") ||
		!set.HasLicense("dddddddddddddddddddddddddddddddddddddddd") {
		t.Error("missing license entries")
	}
	if !set.HasSteamID(100) || !set.HasSteamID(200) {
		t.Error("missing steam id entries")
	}
}

func TestBuildExcludesExpiredAndDeleted(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	persisted := []Rule{
		{ID: uuid.New(), IPAddress: strPtr("1.1.1.1"), ExpiresAt: &past},
		{ID: uuid.New(), IPAddress: strPtr("2.2.2.2"), DeletedAt: gorm.DeletedAt{Time: past, Valid: true}},
		{ID: uuid.New(), IPAddress: strPtr("3.3.3.3"), ExpiresAt: &future},
		{ID: uuid.New(), IPAddress: strPtr("4.4.4.4")}, // permanent
	}

	set := Build(StaticRules{}, persisted, now)

	if set.HasIP("1.1.1.1") {
		t.Error("expired rule leaked into set")
	}
	if set.HasIP("2.2.2.2") {
		t.Error("soft-deleted rule leaked into set")
	}
	if !set.HasIP("3.3.3.3") || !set.HasIP("4.4.4.4") {
		t.Error("active rules missing from set")
	}
}

func TestBuildExpiryBoundary(t *testing.T) {
	now := time.Now().UTC()
	exact := now
	persisted := []Rule{{ID: uuid.New(), IPAddress: strPtr("1.1.1.1"), ExpiresAt: &exact}}

	// ExpiresAt == now means expired: active requires expiry strictly after now.
	set := Build(StaticRules{}, persisted, now)
	if set.HasIP("1.1.1.1") {
		t.Error("rule expiring exactly now should be excluded")
	}
}

func TestBuildFieldIndependence(t *testing.T) {
	now := time.Now().UTC()
	persisted := []Rule{{ID: uuid.New(), IPAddress: strPtr("1.2.3.4")}}

	set := Build(StaticRules{}, persisted, now)

	if len(set.Licenses) != 0 || len(set.SteamIDs) != 0 {
		t.Errorf("ip-only rule contributed to other fields: licenses=%d steam=%d",
			len(set.Licenses), len(set.SteamIDs))
	}
}

func TestBuildToleratesEmptyMatchers(t *testing.T) {
	now := time.Now().UTC()
	// A rule with no matcher fields set is invalid at the mutation boundary
	// but must not break projection.
	persisted := []Rule{{ID: uuid.New()}}

	set := Build(StaticRules{}, persisted, now)
	if len(set.IPs) != 0 || len(set.Licenses) != 0 || len(set.SteamIDs) != 0 {
		t.Error("matcher-less rule contributed entries")
	}
}

func TestSnapshotSwap(t *testing.T) {
	snap := &Snapshot{}
	if snap.Current() != nil {
		t.Fatal("fresh snapshot should be nil")
	}

	a := Build(StaticRules{IPs: []string{"1.1.1.1"}}, nil, time.Now().UTC())
	snap.Swap(a)
	if got := snap.Current(); got != a {
		t.Error("Current should return the swapped set")
	}

	b := Build(StaticRules{IPs: []string{"2.2.2.2"}}, nil, time.Now().UTC())
	snap.Swap(b)
	if got := snap.Current(); got != b {
		t.Error("Current should return the latest swapped set")
	}
	if !a.HasIP("1.1.1.1") {
		t.Error("previous set must not be mutated by a swap")
	}
}

package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/developingchet/sessiongate/internal/engine"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

const testLicense = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 40 chars

func buildSet(static rules.StaticRules) *rules.RuleSet {
	return rules.Build(static, nil, time.Now().UTC())
}

func params(mode engine.Mode) engine.Params {
	return engine.Params{
		Mode:         mode,
		BlockMessage: "You have been blacklisted",
		SteamMessage: "You must be running Steam to play on this server",
	}
}

func TestDecideSteamRequiredBypassesRules(t *testing.T) {
	set := buildSet(rules.StaticRules{IPs: []string{"1.2.3.4"}})
	p := params(engine.Whitelist)
	p.SteamRequired = true

	// Client is in the whitelist but has no Steam ID: still dropped.
	client := engine.Client{Name: "alice", IPAddress: "1.2.3.4"}
	d := engine.Decide(p, set, client)
	if d.Admit {
		t.Fatal("client without Steam ID should be dropped when Steam is required")
	}
	if d.Message != p.SteamMessage {
		t.Errorf("message = %q, want steam message", d.Message)
	}
	if d.Reason != engine.ReasonSteamRequired {
		t.Errorf("reason = %q, want %q", d.Reason, engine.ReasonSteamRequired)
	}
}

func TestDecideMatchFields(t *testing.T) {
	set := buildSet(rules.StaticRules{
		IPs:      []string{"1.2.3.4"},
		Licenses: []string{testLicense},
		SteamIDs: []int64{76561198000000001},
	})

	cases := []struct {
		name    string
		client  engine.Client
		matched bool
	}{
		{"ip match", engine.Client{IPAddress: "1.2.3.4"}, true},
		{"ip miss", engine.Client{IPAddress: "5.6.7.8"}, false},
		{"license match", engine.Client{IPAddress: "9.9.9.9", License: strPtr(testLicense)}, true},
		{"steam match", engine.Client{IPAddress: "9.9.9.9", SteamID: i64Ptr(76561198000000001)}, true},
		{"absent fields never match", engine.Client{IPAddress: "9.9.9.9"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Whitelist admits exactly the matched clients.
			d := engine.Decide(params(engine.Whitelist), set, tc.client)
			if d.Admit != tc.matched {
				t.Errorf("whitelist admit = %v, want %v", d.Admit, tc.matched)
			}
			// Blacklist is the exact complement.
			d2 := engine.Decide(params(engine.Blacklist), set, tc.client)
			if d2.Admit == d.Admit {
				t.Errorf("blacklist admit = %v, want complement of whitelist %v", d2.Admit, d.Admit)
			}
		})
	}
}

func TestDecideFieldIndependence(t *testing.T) {
	// A set with only an IP entry must never match on license or steam ID,
	// even when those client values textually collide with the IP.
	set := buildSet(rules.StaticRules{IPs: []string{"1.2.3.4"}})
	client := engine.Client{
		IPAddress: "9.9.9.9",
		License:   strPtr(testLicense),
		SteamID:   i64Ptr(1234),
	}
	d := engine.Decide(params(engine.Whitelist), set, client)
	if d.Admit {
		t.Error("ip-only set must not match on license or steam id")
	}
}

func TestDecideDeterministic(t *testing.T) {
	set := buildSet(rules.StaticRules{IPs: []string{"1.2.3.4"}})
	client := engine.Client{IPAddress: "1.2.3.4"}
	p := params(engine.Blacklist)

	first := engine.Decide(p, set, client)
	for i := 0; i < 100; i++ {
		if got := engine.Decide(p, set, client); got != first {
			t.Fatalf("decision changed on iteration %d: %+v != %+v", i, got, first)
		}
	}
}

func TestExpirySuffixPermanentWins(t *testing.T) {
	repo := testutil.NewMockRepository()
	ip := "1.2.3.4"
	soon := time.Now().UTC().Add(time.Hour)
	repo.Seed(
		rules.Rule{ID: uuid.New(), SubjectUserID: uuid.New(), IPAddress: &ip, ExpiresAt: &soon},
		rules.Rule{ID: uuid.New(), SubjectUserID: uuid.New(), IPAddress: &ip}, // permanent
	)

	got := engine.ExpirySuffix(context.Background(), repo, engine.Client{IPAddress: ip}, time.Now().UTC(), zerolog.Nop())
	if got != "permanently" {
		t.Errorf("suffix = %q, want %q", got, "permanently")
	}
}

func TestExpirySuffixFurthestExpiryWins(t *testing.T) {
	repo := testutil.NewMockRepository()
	ip := "1.2.3.4"
	now := time.Now().UTC()
	soon := now.Add(10 * time.Minute)
	later := now.Add(time.Hour)
	repo.Seed(
		rules.Rule{ID: uuid.New(), SubjectUserID: uuid.New(), IPAddress: &ip, ExpiresAt: &later},
		rules.Rule{ID: uuid.New(), SubjectUserID: uuid.New(), IPAddress: &ip, ExpiresAt: &soon},
	)

	got := engine.ExpirySuffix(context.Background(), repo, engine.Client{IPAddress: ip}, now, zerolog.Nop())
	want := "for the next 1 hour"
	if got != want {
		t.Errorf("suffix = %q, want %q", got, want)
	}
}

func TestExpirySuffixNoMatch(t *testing.T) {
	repo := testutil.NewMockRepository()
	got := engine.ExpirySuffix(context.Background(), repo, engine.Client{IPAddress: "1.2.3.4"}, time.Now().UTC(), zerolog.Nop())
	if got != "" {
		t.Errorf("suffix = %q, want empty for no persisted match", got)
	}
}

func TestExpirySuffixLookupFailureDegrades(t *testing.T) {
	repo := testutil.NewMockRepository()
	repo.SetError("ActiveMatching", fmt.Errorf("store unreachable"))

	got := engine.ExpirySuffix(context.Background(), repo, engine.Client{IPAddress: "1.2.3.4"}, time.Now().UTC(), zerolog.Nop())
	if got != "" {
		t.Errorf("suffix = %q, want empty on lookup failure", got)
	}
}

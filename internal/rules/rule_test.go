package rules

import (
	"strings"
	"testing"
	"time"
)

func TestMatcherValidateRequiresOneField(t *testing.T) {
	err := Matcher{}.Validate()
	if err == nil {
		t.Fatal("empty matcher should fail validation")
	}
	if !strings.Contains(err.Error(), "at least one") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMatcherValidateLicenseLength(t *testing.T) {
	short := "abc"
	if err := (Matcher{License: &short}).Validate(); err == nil {
		t.Error("short license should fail validation")
	}

	ok := strings.Repeat("a", LicenseLength)
	if err := (Matcher{License: &ok}).Validate(); err != nil {
		t.Errorf("40-char license should pass: %v", err)
	}
}

func TestMatcherValidateIPAddress(t *testing.T) {
	cases := []struct {
		ip    string
		valid bool
	}{
		{"1.2.3.4", true},
		{"255.255.255.255", true},
		{"1.2.3", false},        // too short
		{"not-an-ip-addr", false},
		{"::1", false},          // IPv6 not a dotted IPv4
		{"999.1.1.1", false},
	}
	for _, tc := range cases {
		err := (Matcher{IPAddress: &tc.ip}).Validate()
		if tc.valid && err != nil {
			t.Errorf("ip %q should pass: %v", tc.ip, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ip %q should fail", tc.ip)
		}
	}
}

func TestMatcherValidateSteamIDAlone(t *testing.T) {
	id := int64(76561198000000001)
	if err := (Matcher{SteamID: &id}).Validate(); err != nil {
		t.Errorf("steam-id-only matcher should pass: %v", err)
	}
}

func TestRuleExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if (Rule{}).Expired(now) {
		t.Error("permanent rule should never expire")
	}
	if !(Rule{ExpiresAt: &past}).Expired(now) {
		t.Error("past expiry should be expired")
	}
	if (Rule{ExpiresAt: &future}).Expired(now) {
		t.Error("future expiry should not be expired")
	}
	if !(Rule{ExpiresAt: &now}).Expired(now) {
		t.Error("expiry exactly now should count as expired")
	}
}

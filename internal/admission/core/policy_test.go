package core

import (
	"testing"
	"time"
)

func TestPolicyTable_ResolvePrecedence(t *testing.T) {
	t.Parallel()

	table := NewPolicyTable()
	apiPolicy := RateLimitPolicy{MaxRequests: 10, Window: time.Minute}
	loginPolicy := RateLimitPolicy{MaxRequests: 3, Window: time.Minute}
	adminPolicy := RateLimitPolicy{MaxRequests: 500, Window: time.Hour}
	officePolicy := RateLimitPolicy{MaxRequests: 1000, Window: time.Hour}
	fallback := RateLimitPolicy{MaxRequests: 100, Window: time.Hour, BurstAllowance: 20}
	table.Replace(
		[]EndpointPolicy{
			{Prefix: "/api/", Policy: apiPolicy},
			{Prefix: "/api/login", Policy: loginPolicy},
		},
		map[string]RateLimitPolicy{"admin": adminPolicy},
		map[string]RateLimitPolicy{"192.0.2.10": officePolicy},
		fallback,
	)

	// Longest endpoint prefix wins over the shorter one.
	if got := table.Resolve(&Request{Path: "/api/login"}); got != loginPolicy {
		t.Fatalf("expected login policy, got %+v", got)
	}
	if got := table.Resolve(&Request{Path: "/api/items"}); got != apiPolicy {
		t.Fatalf("expected api policy, got %+v", got)
	}

	// Role policy applies only to authenticated requests.
	if got := table.Resolve(&Request{Path: "/other", UserID: "u1", UserRole: "admin"}); got != adminPolicy {
		t.Fatalf("expected admin policy, got %+v", got)
	}
	if got := table.Resolve(&Request{Path: "/other", UserRole: "admin"}); got != fallback {
		t.Fatalf("role without user id must not match, got %+v", got)
	}

	// Endpoint match beats role match.
	if got := table.Resolve(&Request{Path: "/api/items", UserID: "u1", UserRole: "admin"}); got != apiPolicy {
		t.Fatalf("endpoint should take precedence over role, got %+v", got)
	}

	if got := table.Resolve(&Request{Path: "/other", ClientIP: "192.0.2.10"}); got != officePolicy {
		t.Fatalf("expected ip policy, got %+v", got)
	}
	if got := table.Resolve(&Request{Path: "/other", ClientIP: "192.0.2.99"}); got != fallback {
		t.Fatalf("expected fallback policy, got %+v", got)
	}
}

func TestPolicyTable_DefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	table := NewPolicyTable()
	if got := table.Resolve(&Request{Path: "/anything"}); got != DefaultPolicy {
		t.Fatalf("expected the default policy, got %+v", got)
	}
	if got := table.Resolve(nil); got != DefaultPolicy {
		t.Fatalf("expected the default policy for nil request, got %+v", got)
	}

	// A replace with a zero fallback is repaired to the default.
	table.Replace(nil, nil, nil, RateLimitPolicy{})
	if got := table.Resolve(&Request{Path: "/anything"}); got != DefaultPolicy {
		t.Fatalf("expected the default policy after zero replace, got %+v", got)
	}
}

func TestResolveIdentity_Precedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  *Request
		want ClientIdentity
	}{
		{"user wins", &Request{UserID: "u1", ClientIP: "192.0.2.1", SessionID: "s1"}, "user:u1"},
		{"ip next", &Request{ClientIP: "192.0.2.1", SessionID: "s1"}, "ip:192.0.2.1"},
		{"session last", &Request{SessionID: "s1"}, "session:s1"},
		{"anonymous", &Request{}, ""},
		{"nil request", nil, ""},
	}
	for _, tc := range cases {
		if got := ResolveIdentity(tc.req); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestClientIdentity_Kind(t *testing.T) {
	t.Parallel()

	id := ClientIdentity("ip:192.0.2.1")
	if !id.IsIP() || id.IP() != "192.0.2.1" {
		t.Fatalf("unexpected ip identity parts: kind=%q ip=%q", id.Kind(), id.IP())
	}
	if ClientIdentity("user:u1").IsIP() {
		t.Fatalf("user identity must not report as ip")
	}
	if ClientIdentity("user:u1").IP() != "" {
		t.Fatalf("user identity has no ip")
	}
}

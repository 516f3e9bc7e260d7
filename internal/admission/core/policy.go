// Package core provides rate limit policy resolution.
package core

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EndpointPolicy binds a policy to a path prefix.
type EndpointPolicy struct {
	Prefix string
	Policy RateLimitPolicy
}

// DefaultPolicy is applied when no other policy matches.
var DefaultPolicy = RateLimitPolicy{MaxRequests: 100, Window: time.Hour, BurstAllowance: 20}

type policySnapshot struct {
	endpoints []EndpointPolicy
	roles     map[string]RateLimitPolicy
	ips       map[string]RateLimitPolicy
	fallback  RateLimitPolicy
}

// PolicyTable resolves the policy applied to a request. Lookups read an
// immutable snapshot; updates swap the snapshot under a mutex.
type PolicyTable struct {
	snap atomic.Value
	mu   sync.Mutex
}

// NewPolicyTable creates a table holding only the default policy.
func NewPolicyTable() *PolicyTable {
	table := &PolicyTable{}
	table.snap.Store(&policySnapshot{
		roles:    map[string]RateLimitPolicy{},
		ips:      map[string]RateLimitPolicy{},
		fallback: DefaultPolicy,
	})
	return table
}

// Replace installs a new policy snapshot. Endpoint entries are ordered by
// descending prefix length so resolution is a longest-prefix match.
func (pt *PolicyTable) Replace(endpoints []EndpointPolicy, roles, ips map[string]RateLimitPolicy, fallback RateLimitPolicy) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	ordered := make([]EndpointPolicy, 0, len(endpoints))
	for _, entry := range endpoints {
		if entry.Prefix == "" {
			continue
		}
		ordered = append(ordered, entry)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})

	roleCopy := make(map[string]RateLimitPolicy, len(roles))
	for role, policy := range roles {
		roleCopy[role] = policy
	}
	ipCopy := make(map[string]RateLimitPolicy, len(ips))
	for ip, policy := range ips {
		ipCopy[ip] = policy
	}
	if fallback.MaxRequests <= 0 {
		fallback = DefaultPolicy
	}
	pt.snap.Store(&policySnapshot{
		endpoints: ordered,
		roles:     roleCopy,
		ips:       ipCopy,
		fallback:  fallback,
	})
}

// Resolve picks the policy for a request. Precedence: longest endpoint prefix,
// authenticated role, IP override, global default. Pure and side-effect free.
func (pt *PolicyTable) Resolve(req *Request) RateLimitPolicy {
	if pt == nil {
		return DefaultPolicy
	}
	snapshot := pt.snapshot()
	if req == nil {
		return snapshot.fallback
	}
	for _, entry := range snapshot.endpoints {
		if hasPrefix(req.Path, entry.Prefix) {
			return entry.Policy
		}
	}
	if req.UserID != "" && req.UserRole != "" {
		if policy, ok := snapshot.roles[req.UserRole]; ok {
			return policy
		}
	}
	if req.ClientIP != "" {
		if policy, ok := snapshot.ips[req.ClientIP]; ok {
			return policy
		}
	}
	return snapshot.fallback
}

func (pt *PolicyTable) snapshot() *policySnapshot {
	snapshot, ok := pt.snap.Load().(*policySnapshot)
	if !ok || snapshot == nil {
		return &policySnapshot{fallback: DefaultPolicy}
	}
	return snapshot
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// Package core defines admission request and decision models.
package core

import "time"

// Request is the normalized request descriptor evaluated for admission.
type Request struct {
	ClientIP    string
	UserAgent   string
	Path        string
	Method      string
	QueryParams map[string]string
	Headers     map[string]string
	UserID      string
	UserRole    string
	SessionID   string
}

// RateLimitPolicy is an immutable quota policy selected per request.
type RateLimitPolicy struct {
	MaxRequests    int
	Window         time.Duration
	BurstAllowance int
}

// RateLimitResult reports the limiter outcome for one check.
type RateLimitResult struct {
	Allowed    bool
	Reason     DenyReason
	Limit      int
	Remaining  int
	Window     time.Duration
	RetryAfter time.Duration
	ResetAt    time.Time
}

// DenyReason labels why a request was not admitted.
type DenyReason string

const (
	DenyNone          DenyReason = ""
	DenyRateLimited   DenyReason = "rate_limited"
	DenyBurstCooldown DenyReason = "burst_cooldown"
	DenyIPBlocked     DenyReason = "ip_blocked"
	DenyThreat        DenyReason = "threat_detected"
)

// Decision is the combined admission outcome returned to the caller.
type Decision struct {
	Allowed    bool
	HTTPStatus int
	Reason     DenyReason
	RetryAfter time.Duration
	RateLimit  RateLimitResult
	ThreatTags []string
}

// IPBlockEntry describes an active IP block.
type IPBlockEntry struct {
	IP           string
	BlockedUntil time.Time
}

// Statistics summarizes admission activity for the admin surface.
type Statistics struct {
	TotalRequests    int64
	BlockedRequests  int64
	BlockRatePercent float64
	ActiveClients    int
	BlockedIPCount   int
}

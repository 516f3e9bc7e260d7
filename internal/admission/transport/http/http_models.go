// Package httptransport provides HTTP transport models.
package httptransport

import (
	"time"

	"admission/internal/admission/core"
)

type httpErrorResponse struct {
	Error string `json:"error"`
}

type httpDenyResponse struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit,omitempty"`
	Window     int64  `json:"window,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// HTTPCheckRequest is a normalized descriptor submitted for evaluation.
type HTTPCheckRequest struct {
	ClientIP    string            `json:"clientIp"`
	UserAgent   string            `json:"userAgent"`
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	QueryParams map[string]string `json:"queryParams"`
	Headers     map[string]string `json:"headers"`
	UserID      string            `json:"userId"`
	UserRole    string            `json:"userRole"`
	SessionID   string            `json:"sessionId"`
}

// HTTPDecisionResponse reports an admission decision.
type HTTPDecisionResponse struct {
	Allowed    bool     `json:"allowed"`
	HTTPStatus int      `json:"httpStatus"`
	Reason     string   `json:"reason,omitempty"`
	RetryAfter int64    `json:"retryAfterSeconds,omitempty"`
	Limit      int      `json:"limit"`
	Remaining  int      `json:"remaining"`
	ResetEpoch int64    `json:"resetEpoch"`
	Window     int64    `json:"windowSeconds"`
	ThreatTags []string `json:"threatTags,omitempty"`
}

// HTTPBlockRequest installs a manual IP block.
type HTTPBlockRequest struct {
	IP              string `json:"ip"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// HTTPResetRequest resets one client's limiter state.
type HTTPResetRequest struct {
	Identity string `json:"identity"`
}

// HTTPBlockEntry reports one active IP block.
type HTTPBlockEntry struct {
	IP           string    `json:"ip"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// HTTPStatisticsResponse reports admission statistics.
type HTTPStatisticsResponse struct {
	TotalRequests    int64   `json:"totalRequests"`
	BlockedRequests  int64   `json:"blockedRequests"`
	BlockRatePercent float64 `json:"blockRatePercent"`
	ActiveClients    int     `json:"activeClients"`
	BlockedIPCount   int     `json:"blockedIpCount"`
}

// HTTPEventResponse reports one security event.
type HTTPEventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	UserID    string    `json:"userId,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPPatternResponse reports one active pattern aggregate.
type HTTPPatternResponse struct {
	SignatureHash string    `json:"signatureHash"`
	Category      string    `json:"category"`
	Count         int64     `json:"count"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	AffectedUsers int       `json:"affectedUsers"`
	Severity      string    `json:"severity"`
}

func toRequest(req HTTPCheckRequest) *core.Request {
	return &core.Request{
		ClientIP:    req.ClientIP,
		UserAgent:   req.UserAgent,
		Path:        req.Path,
		Method:      req.Method,
		QueryParams: req.QueryParams,
		Headers:     req.Headers,
		UserID:      req.UserID,
		UserRole:    req.UserRole,
		SessionID:   req.SessionID,
	}
}

func fromDecision(decision *core.Decision) HTTPDecisionResponse {
	if decision == nil {
		return HTTPDecisionResponse{}
	}
	resp := HTTPDecisionResponse{
		Allowed:    decision.Allowed,
		HTTPStatus: decision.HTTPStatus,
		Reason:     string(decision.Reason),
		Limit:      decision.RateLimit.Limit,
		Remaining:  decision.RateLimit.Remaining,
		Window:     int64(decision.RateLimit.Window / time.Second),
		ThreatTags: decision.ThreatTags,
	}
	if decision.RetryAfter > 0 {
		resp.RetryAfter = retryAfterSeconds(decision.RetryAfter)
	}
	if !decision.RateLimit.ResetAt.IsZero() {
		resp.ResetEpoch = decision.RateLimit.ResetAt.Unix()
	}
	return resp
}

func fromEvent(event core.SecurityEvent) HTTPEventResponse {
	return HTTPEventResponse{
		ID:        event.ID,
		Type:      string(event.Type),
		Severity:  event.Severity.String(),
		UserID:    event.UserID,
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Details:   event.Details,
		Timestamp: event.Timestamp,
	}
}

func fromPattern(summary core.PatternSummary) HTTPPatternResponse {
	return HTTPPatternResponse{
		SignatureHash: summary.SignatureHash,
		Category:      summary.Category,
		Count:         summary.Count,
		FirstSeen:     summary.FirstSeen,
		LastSeen:      summary.LastSeen,
		AffectedUsers: summary.AffectedUsers,
		Severity:      summary.Severity.String(),
	}
}

// retryAfterSeconds rounds a duration up to whole seconds, minimum one.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	seconds := int64(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

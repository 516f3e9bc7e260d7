// Package core provides the admission pipeline.
package core

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"admission/internal/admission/observability"
)

// AdmissionHandler orchestrates policy resolution, IP blocking, sliding
// window limiting, threat scanning, and event recording into one decision.
type AdmissionHandler struct {
	policies *PolicyTable
	limiter  *SlidingWindowLimiter
	blocks   *BlockList
	scanner  *SignatureScanner
	recorder *EventRecorder
	logger   observability.Logger
	metrics  observability.Metrics
	now      func() time.Time

	total  atomic.Int64
	denied atomic.Int64
}

// NewAdmissionHandler constructs the pipeline.
func NewAdmissionHandler(policies *PolicyTable, limiter *SlidingWindowLimiter, blocks *BlockList, scanner *SignatureScanner, recorder *EventRecorder, logger observability.Logger, metrics observability.Metrics) *AdmissionHandler {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	return &AdmissionHandler{
		policies: policies,
		limiter:  limiter,
		blocks:   blocks,
		scanner:  scanner,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetClock overrides the pipeline clock.
func (h *AdmissionHandler) SetClock(now func() time.Time) {
	if h == nil || now == nil {
		return
	}
	h.now = now
}

// allowDecision is the fail-open outcome.
func allowDecision(result RateLimitResult) *Decision {
	return &Decision{
		Allowed:    true,
		HTTPStatus: http.StatusOK,
		RateLimit:  result,
	}
}

// Admit evaluates one request. Deny outcomes are structured decisions, never
// errors; any internal failure degrades to allow so a detection bug cannot
// become a denial-of-service vector.
func (h *AdmissionHandler) Admit(ctx context.Context, req *Request) (decision *Decision) {
	if h == nil || req == nil {
		return allowDecision(RateLimitResult{})
	}
	start := h.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Warn("admission evaluation failed, allowing request", map[string]any{
				"panic": fmt.Sprint(recovered),
				"path":  req.Path,
			})
			decision = allowDecision(RateLimitResult{})
		}
		h.total.Add(1)
		if decision != nil && !decision.Allowed {
			h.denied.Add(1)
		}
		h.recordDecision(decision)
		h.metrics.ObserveLatency("admit", time.Since(start))
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	now := start

	policy := h.policies.Resolve(req)
	identity := ResolveIdentity(req)

	// Block check runs first and short-circuits the rest of the pipeline.
	if h.blocks != nil && req.ClientIP != "" && h.blocks.IsBlocked(req.ClientIP, now) {
		return &Decision{
			Allowed:    false,
			HTTPStatus: http.StatusForbidden,
			Reason:     DenyIPBlocked,
			RetryAfter: h.blocks.RetryAfter(req.ClientIP, now),
			RateLimit: RateLimitResult{
				Limit:     policy.MaxRequests,
				Window:    policy.Window,
				Remaining: h.limiter.Remaining(identity, policy, now),
			},
		}
	}

	result := h.limiter.Check(identity, req.ClientIP, policy, now)
	if !result.Allowed {
		eventType := EventRateLimitExceeded
		if result.Reason == DenyBurstCooldown {
			eventType = EventBurstCooldown
		}
		h.record(SecurityEvent{
			Type:      eventType,
			Severity:  SeverityWarning,
			UserID:    req.UserID,
			IP:        req.ClientIP,
			UserAgent: req.UserAgent,
			Details:   fmt.Sprintf("limit %d per %s exceeded on %s", policy.MaxRequests, policy.Window, req.Path),
			Timestamp: now,
		})
		if h.blocks != nil && req.ClientIP != "" {
			h.blocks.ConsiderEscalation(req.ClientIP, now)
		}
	}

	// The scan is independent of the limiter outcome: a request can be
	// rate-limit-allowed yet threat-blocked, and vice versa.
	scan := h.scanner.Scan(req)
	if len(scan.Matches) > 0 {
		for _, tag := range scan.Tags() {
			h.metrics.IncThreat(tag)
		}
		h.record(SecurityEvent{
			Type:      EventThreatDetected,
			Severity:  scan.Severity.EventSeverity(),
			UserID:    req.UserID,
			IP:        req.ClientIP,
			UserAgent: req.UserAgent,
			Details:   fmt.Sprintf("%s matched on %s %s", scan.Matches[0].SignatureID, req.Method, req.Path),
			Timestamp: now,
		})
	}

	decision = &Decision{
		RateLimit:  result,
		ThreatTags: scan.Tags(),
	}
	switch {
	case scan.Blocking():
		decision.Allowed = false
		decision.HTTPStatus = http.StatusForbidden
		decision.Reason = DenyThreat
	case !result.Allowed:
		decision.Allowed = false
		decision.HTTPStatus = http.StatusTooManyRequests
		decision.Reason = result.Reason
		decision.RetryAfter = result.RetryAfter
	default:
		decision.Allowed = true
		decision.HTTPStatus = http.StatusOK
	}
	return decision
}

// Statistics summarizes admission activity.
func (h *AdmissionHandler) Statistics() Statistics {
	if h == nil {
		return Statistics{}
	}
	total := h.total.Load()
	denied := h.denied.Load()
	stats := Statistics{
		TotalRequests:   total,
		BlockedRequests: denied,
	}
	if total > 0 {
		stats.BlockRatePercent = float64(denied) / float64(total) * 100
	}
	if h.limiter != nil && h.limiter.store != nil {
		stats.ActiveClients = h.limiter.store.Len()
	}
	if h.blocks != nil {
		stats.BlockedIPCount = h.blocks.Len(h.now())
	}
	return stats
}

func (h *AdmissionHandler) record(event SecurityEvent) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(event)
	h.metrics.IncEvent(string(event.Type))
}

func (h *AdmissionHandler) recordDecision(decision *Decision) {
	if decision == nil {
		return
	}
	result := "allowed"
	if !decision.Allowed {
		result = string(decision.Reason)
		if result == "" {
			result = "denied"
		}
	}
	h.metrics.IncAdmission(result)
}

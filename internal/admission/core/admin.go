// Package core provides privileged admission administration.
package core

import (
	"fmt"
	"net"
	"time"

	"admission/internal/admission/observability"
)

// AdminHandler exposes the out-of-band administrative operations.
type AdminHandler struct {
	handler  *AdmissionHandler
	limiter  *SlidingWindowLimiter
	blocks   *BlockList
	recorder *EventRecorder
	logger   observability.Logger
	now      func() time.Time
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(handler *AdmissionHandler, limiter *SlidingWindowLimiter, blocks *BlockList, recorder *EventRecorder, logger observability.Logger) *AdminHandler {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &AdminHandler{
		handler:  handler,
		limiter:  limiter,
		blocks:   blocks,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the admin clock.
func (a *AdminHandler) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.now = now
}

// BlockIP installs a manual block for the address.
func (a *AdminHandler) BlockIP(ip string, duration time.Duration) error {
	if a == nil || a.blocks == nil {
		return Wrap(CodeUnknown, "block list is not configured", nil)
	}
	if net.ParseIP(ip) == nil {
		return Wrap(CodeInvalidInput, "invalid ip address", ErrInvalidInput)
	}
	if duration <= 0 {
		return Wrap(CodeInvalidInput, "block duration must be positive", ErrInvalidInput)
	}
	now := a.now()
	a.blocks.Block(ip, duration, now)
	if a.recorder != nil {
		a.recorder.Record(SecurityEvent{
			Type:      EventAdminAction,
			Severity:  SeverityWarning,
			IP:        ip,
			Details:   fmt.Sprintf("manual block for %s", duration),
			Timestamp: now,
		})
	}
	a.logger.Info("ip blocked by admin", map[string]any{"ip": ip, "duration": duration.String()})
	return nil
}

// UnblockIP removes a block. Returns false when the IP was not blocked.
func (a *AdminHandler) UnblockIP(ip string) bool {
	if a == nil || a.blocks == nil {
		return false
	}
	removed := a.blocks.Unblock(ip)
	if removed {
		a.logger.Info("ip unblocked by admin", map[string]any{"ip": ip})
	}
	return removed
}

// ListBlocks returns the active IP blocks.
func (a *AdminHandler) ListBlocks() []IPBlockEntry {
	if a == nil || a.blocks == nil {
		return nil
	}
	return a.blocks.Active(a.now())
}

// ResetClientLimits clears limiter state for one identity. Returns false when
// the identity was not tracked.
func (a *AdminHandler) ResetClientLimits(identity ClientIdentity) bool {
	if a == nil || a.limiter == nil {
		return false
	}
	removed := a.limiter.Reset(identity)
	if removed {
		a.logger.Info("client limits reset", map[string]any{"identity": string(identity)})
	}
	return removed
}

// Statistics summarizes admission activity.
func (a *AdminHandler) Statistics() Statistics {
	if a == nil || a.handler == nil {
		return Statistics{}
	}
	return a.handler.Statistics()
}

// SearchEvents queries recorded security events, most recent first.
func (a *AdminHandler) SearchEvents(query EventQuery) []SecurityEvent {
	if a == nil || a.recorder == nil {
		return nil
	}
	return a.recorder.Search(query)
}

// ActivePatterns summarizes current escalation aggregates.
func (a *AdminHandler) ActivePatterns() []PatternSummary {
	if a == nil || a.recorder == nil {
		return nil
	}
	return a.recorder.ActivePatterns(a.now())
}

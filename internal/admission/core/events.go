// Package core provides security event recording and pattern escalation.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// EventType labels a security event.
type EventType string

const (
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventBurstCooldown     EventType = "BURST_COOLDOWN"
	EventIPBlocked         EventType = "IP_BLOCKED"
	EventThreatDetected    EventType = "THREAT_DETECTED"
	EventAdminAction       EventType = "ADMIN_ACTION"
)

// SecurityEvent is an immutable audit record. Never mutated after Record.
type SecurityEvent struct {
	ID        string
	Type      EventType
	Severity  Severity
	UserID    string
	IP        string
	UserAgent string
	Details   string
	Timestamp time.Time
}

// PatternAggregate tracks an escalating event signature.
type PatternAggregate struct {
	SignatureHash string
	Category      string
	Count         int64
	FirstSeen     time.Time
	LastSeen      time.Time
	AffectedUsers map[string]struct{}
	Severity      Severity
	alerted       bool
}

// PatternSummary is the exported view of an aggregate.
type PatternSummary struct {
	SignatureHash string
	Category      string
	Count         int64
	FirstSeen     time.Time
	LastSeen      time.Time
	AffectedUsers int
	Severity      Severity
}

// Alert describes one escalation alert dispatch.
type Alert struct {
	SignatureHash string
	Category      string
	Count         int64
	Severity      Severity
	Sample        SecurityEvent
}

// AlertFunc receives escalation alerts. May perform I/O; it is never invoked
// while recorder or client locks are held.
type AlertFunc func(Alert)

// EventQuery filters a security event search.
type EventQuery struct {
	From        time.Time
	To          time.Time
	Types       []EventType
	UserID      string
	IP          string
	MinSeverity Severity
	Limit       int
}

// RecorderOptions configures the event recorder.
type RecorderOptions struct {
	Capacity        int
	DetectionWindow time.Duration
	AlertThreshold  int64
	Retention       time.Duration
	MaxPatterns     int
	Escalation      EscalationRule
	// AlertsPerMinute throttles alert dispatch; bursty escalations beyond
	// the budget are dropped rather than queued.
	AlertsPerMinute int
}

// DefaultRecorderOptions returns the stock recorder settings.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		Capacity:        10000,
		DetectionWindow: 5 * time.Minute,
		AlertThreshold:  5,
		Retention:       7 * 24 * time.Hour,
		MaxPatterns:     4096,
		Escalation:      DefaultEscalationRule(),
		AlertsPerMinute: 60,
	}
}

func (opts RecorderOptions) normalized() RecorderOptions {
	defaults := DefaultRecorderOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = defaults.Capacity
	}
	if opts.DetectionWindow <= 0 {
		opts.DetectionWindow = defaults.DetectionWindow
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = defaults.AlertThreshold
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.MaxPatterns <= 0 {
		opts.MaxPatterns = defaults.MaxPatterns
	}
	if opts.AlertsPerMinute <= 0 {
		opts.AlertsPerMinute = defaults.AlertsPerMinute
	}
	opts.Escalation = opts.Escalation.normalized()
	return opts
}

// EventRecorder appends events to a bounded ring buffer and escalates
// recurring signatures. Safe for concurrent writers.
type EventRecorder struct {
	mu       sync.Mutex
	buf      []SecurityEvent
	start    int
	size     int
	opts     RecorderOptions
	patterns *lru.Cache[string, *PatternAggregate]
	alertFn  AlertFunc
	throttle *rate.Limiter
	now      func() time.Time
}

// NewEventRecorder constructs a recorder. alertFn may be nil.
func NewEventRecorder(opts RecorderOptions, alertFn AlertFunc) *EventRecorder {
	opts = opts.normalized()
	patterns, err := lru.New[string, *PatternAggregate](opts.MaxPatterns)
	if err != nil {
		patterns, _ = lru.New[string, *PatternAggregate](DefaultRecorderOptions().MaxPatterns)
	}
	return &EventRecorder{
		buf:      make([]SecurityEvent, opts.Capacity),
		opts:     opts,
		patterns: patterns,
		alertFn:  alertFn,
		throttle: rate.NewLimiter(rate.Limit(float64(opts.AlertsPerMinute)/60.0), opts.AlertsPerMinute),
		now:      time.Now,
	}
}

// SetClock overrides the recorder clock.
func (r *EventRecorder) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// SetEscalation swaps the escalation thresholds. Used by config hot reload.
func (r *EventRecorder) SetEscalation(rule EscalationRule, alertThreshold int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.opts.Escalation = rule.normalized()
	if alertThreshold > 0 {
		r.opts.AlertThreshold = alertThreshold
	}
	r.mu.Unlock()
}

// Record appends the event, updates its pattern aggregate, and fires the
// alert callback exactly once per threshold crossing. The callback runs after
// the recorder lock is released.
func (r *EventRecorder) Record(event SecurityEvent) {
	if r == nil {
		return
	}
	var pending *Alert

	r.mu.Lock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	r.append(event)
	pending = r.updatePattern(event)
	r.mu.Unlock()

	if pending != nil && r.alertFn != nil && r.throttle.Allow() {
		r.alertFn(*pending)
	}
}

func (r *EventRecorder) append(event SecurityEvent) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = event
		r.size++
		return
	}
	// Full: overwrite the oldest slot.
	r.buf[r.start] = event
	r.start = (r.start + 1) % len(r.buf)
}

// updatePattern must be called with the recorder lock held. Returns an alert
// to dispatch once the lock is released, or nil.
func (r *EventRecorder) updatePattern(event SecurityEvent) *Alert {
	hash := signatureHash(string(event.Type), event.Details)
	agg, ok := r.patterns.Get(hash)
	if ok && agg != nil && event.Timestamp.Sub(agg.LastSeen) > r.opts.DetectionWindow {
		// The previous episode aged out; start a fresh one.
		ok = false
	}
	if !ok || agg == nil {
		agg = &PatternAggregate{
			SignatureHash: hash,
			Category:      string(event.Type),
			FirstSeen:     event.Timestamp,
			AffectedUsers: make(map[string]struct{}),
		}
		r.patterns.Add(hash, agg)
	}
	agg.Count++
	agg.LastSeen = event.Timestamp
	if event.UserID != "" {
		agg.AffectedUsers[event.UserID] = struct{}{}
	}
	agg.Severity = r.opts.Escalation.Transition(agg.Severity, agg.Count, len(agg.AffectedUsers))

	if !agg.alerted && agg.Count >= r.opts.AlertThreshold {
		agg.alerted = true
		return &Alert{
			SignatureHash: hash,
			Category:      agg.Category,
			Count:         agg.Count,
			Severity:      agg.Severity,
			Sample:        event,
		}
	}
	return nil
}

// Search returns matching events ordered most-recent-first.
func (r *EventRecorder) Search(query EventQuery) []SecurityEvent {
	if r == nil {
		return nil
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	typeSet := make(map[EventType]bool, len(query.Types))
	for _, t := range query.Types {
		typeSet[t] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]SecurityEvent, 0, limit)
	for i := r.size - 1; i >= 0 && len(matched) < limit; i-- {
		event := r.buf[(r.start+i)%len(r.buf)]
		if !query.From.IsZero() && event.Timestamp.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && event.Timestamp.After(query.To) {
			continue
		}
		if len(typeSet) > 0 && !typeSet[event.Type] {
			continue
		}
		if query.UserID != "" && event.UserID != query.UserID {
			continue
		}
		if query.IP != "" && event.IP != query.IP {
			continue
		}
		if event.Severity < query.MinSeverity {
			continue
		}
		matched = append(matched, event)
	}
	return matched
}

// ActivePatterns summarizes aggregates still inside the retention window.
func (r *EventRecorder) ActivePatterns(now time.Time) []PatternSummary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.opts.Retention)
	summaries := make([]PatternSummary, 0, r.patterns.Len())
	for _, hash := range r.patterns.Keys() {
		agg, ok := r.patterns.Peek(hash)
		if !ok || agg == nil || agg.LastSeen.Before(cutoff) {
			continue
		}
		summaries = append(summaries, PatternSummary{
			SignatureHash: agg.SignatureHash,
			Category:      agg.Category,
			Count:         agg.Count,
			FirstSeen:     agg.FirstSeen,
			LastSeen:      agg.LastSeen,
			AffectedUsers: len(agg.AffectedUsers),
			Severity:      agg.Severity,
		})
	}
	return summaries
}

// SweepRetention drops raw events and aggregates older than the retention
// window. Aggregate counts are never recomputed from surviving events.
func (r *EventRecorder) SweepRetention(now time.Time) (events, patterns int) {
	if r == nil {
		return 0, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.opts.Retention)

	for r.size > 0 {
		oldest := r.buf[r.start]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}
		r.buf[r.start] = SecurityEvent{}
		r.start = (r.start + 1) % len(r.buf)
		r.size--
		events++
	}

	for _, hash := range r.patterns.Keys() {
		agg, ok := r.patterns.Peek(hash)
		if !ok || agg == nil {
			continue
		}
		if agg.LastSeen.Before(cutoff) {
			r.patterns.Remove(hash)
			patterns++
		}
	}
	return events, patterns
}

// Len reports the number of buffered events.
func (r *EventRecorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// signatureHash fingerprints an event by category plus a normalized message
// prefix so variable payload details collapse onto one pattern.
func signatureHash(category, details string) string {
	prefix := strings.ToLower(details)
	if len(prefix) > 48 {
		prefix = prefix[:48]
	}
	normalized := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c >= '0' && c <= '9' {
			c = '#'
		}
		normalized = append(normalized, c)
	}
	sum := sha256.Sum256([]byte(category + "|" + string(normalized)))
	return hex.EncodeToString(sum[:8])
}

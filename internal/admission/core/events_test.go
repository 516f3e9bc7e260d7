package core

import (
	"fmt"
	"testing"
	"time"
)

func threatEvent(user string, at time.Time) SecurityEvent {
	return SecurityEvent{
		Type:      EventThreatDetected,
		Severity:  SeverityError,
		UserID:    user,
		IP:        "203.0.113.5",
		Details:   "xss-basic matched on GET /comments",
		Timestamp: at,
	}
}

func TestEventRecorder_AssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 8}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	recorder.SetClock(func() time.Time { return base })

	recorder.Record(SecurityEvent{Type: EventRateLimitExceeded, Severity: SeverityWarning})
	events := recorder.Search(EventQuery{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" {
		t.Fatalf("expected an assigned id")
	}
	if !events[0].Timestamp.Equal(base) {
		t.Fatalf("expected clock timestamp, got %s", events[0].Timestamp)
	}
}

func TestEventRecorder_AlertFiresOncePerEpisode(t *testing.T) {
	t.Parallel()

	var alerts []Alert
	recorder := NewEventRecorder(RecorderOptions{Capacity: 64, AlertThreshold: 5}, func(alert Alert) {
		alerts = append(alerts, alert)
	})
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		recorder.Record(threatEvent("u1", base.Add(time.Duration(i)*time.Second)))
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	if alerts[0].Count != 5 {
		t.Fatalf("expected the alert at the fifth event, got count %d", alerts[0].Count)
	}
	if alerts[0].Category != string(EventThreatDetected) {
		t.Fatalf("unexpected alert category %q", alerts[0].Category)
	}
}

func TestEventRecorder_DetectionWindowStartsFreshEpisode(t *testing.T) {
	t.Parallel()

	var alerts []Alert
	recorder := NewEventRecorder(RecorderOptions{
		Capacity:        64,
		AlertThreshold:  3,
		DetectionWindow: 5 * time.Minute,
	}, func(alert Alert) {
		alerts = append(alerts, alert)
	})
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		recorder.Record(threatEvent("u1", base.Add(time.Duration(i)*time.Second)))
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert from the first episode, got %d", len(alerts))
	}

	// A gap longer than the detection window resets the aggregate, so the
	// count restarts and the alert can fire again.
	late := base.Add(10 * time.Minute)
	for i := 0; i < 3; i++ {
		recorder.Record(threatEvent("u1", late.Add(time.Duration(i)*time.Second)))
	}
	if len(alerts) != 2 {
		t.Fatalf("expected a second alert after the gap, got %d", len(alerts))
	}

	patterns := recorder.ActivePatterns(late.Add(time.Minute))
	if len(patterns) != 1 {
		t.Fatalf("expected one active pattern, got %d", len(patterns))
	}
	if patterns[0].Count != 3 {
		t.Fatalf("expected the fresh episode count, got %d", patterns[0].Count)
	}
}

func TestEventRecorder_PatternSeverityEscalates(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 256}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	record := func(n int) Severity {
		for i := 0; i < n; i++ {
			event := threatEvent("u1", base)
			event.Severity = SeverityInfo
			recorder.Record(event)
			base = base.Add(time.Second)
		}
		patterns := recorder.ActivePatterns(base)
		if len(patterns) != 1 {
			t.Fatalf("expected one pattern, got %d", len(patterns))
		}
		return patterns[0].Severity
	}

	if got := record(9); got != SeverityInfo {
		t.Fatalf("expected info below the warning threshold, got %s", got)
	}
	if got := record(1); got != SeverityWarning {
		t.Fatalf("expected warning at count 10, got %s", got)
	}
	if got := record(10); got != SeverityError {
		t.Fatalf("expected error at count 20, got %s", got)
	}
	if got := record(30); got != SeverityCritical {
		t.Fatalf("expected critical at count 50, got %s", got)
	}
}

func TestEventRecorder_WideUserImpactBumpsSeverity(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 64}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	// Ten distinct users on a pattern below any count threshold.
	for i := 0; i < 10; i++ {
		recorder.Record(threatEvent(fmt.Sprintf("u%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	patterns := recorder.ActivePatterns(base.Add(time.Minute))
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(patterns))
	}
	if patterns[0].AffectedUsers != 10 {
		t.Fatalf("expected 10 affected users, got %d", patterns[0].AffectedUsers)
	}
	// Count 10 alone is WARNING; the user spread pushes it one level up.
	if patterns[0].Severity != SeverityError {
		t.Fatalf("expected error severity, got %s", patterns[0].Severity)
	}
}

func TestEventRecorder_RingBufferOverflow(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 4}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		recorder.Record(SecurityEvent{
			Type:      EventRateLimitExceeded,
			Severity:  SeverityWarning,
			Details:   fmt.Sprintf("event %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	if recorder.Len() != 4 {
		t.Fatalf("expected ring to hold 4 events, got %d", recorder.Len())
	}
	events := recorder.Search(EventQuery{})
	if len(events) != 4 {
		t.Fatalf("expected 4 searchable events, got %d", len(events))
	}
	if events[0].Details != "event 5" {
		t.Fatalf("expected most recent first, got %q", events[0].Details)
	}
	if events[3].Details != "event 2" {
		t.Fatalf("expected the two oldest events dropped, got %q", events[3].Details)
	}
}

func TestEventRecorder_SearchFilters(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 64}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	recorder.Record(SecurityEvent{Type: EventRateLimitExceeded, Severity: SeverityWarning, UserID: "u1", IP: "192.0.2.1", Timestamp: base})
	recorder.Record(SecurityEvent{Type: EventThreatDetected, Severity: SeverityCritical, UserID: "u2", IP: "192.0.2.2", Timestamp: base.Add(time.Minute)})
	recorder.Record(SecurityEvent{Type: EventIPBlocked, Severity: SeverityWarning, IP: "192.0.2.1", Timestamp: base.Add(2 * time.Minute)})

	if got := recorder.Search(EventQuery{Types: []EventType{EventThreatDetected}}); len(got) != 1 || got[0].UserID != "u2" {
		t.Fatalf("type filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{UserID: "u1"}); len(got) != 1 {
		t.Fatalf("user filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{IP: "192.0.2.1"}); len(got) != 2 {
		t.Fatalf("ip filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{MinSeverity: SeverityCritical}); len(got) != 1 {
		t.Fatalf("severity filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{From: base.Add(30 * time.Second)}); len(got) != 2 {
		t.Fatalf("from filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{To: base.Add(30 * time.Second)}); len(got) != 1 {
		t.Fatalf("to filter failed: %+v", got)
	}
	if got := recorder.Search(EventQuery{Limit: 2}); len(got) != 2 {
		t.Fatalf("limit failed: %+v", got)
	}
}

func TestEventRecorder_SweepRetention(t *testing.T) {
	t.Parallel()

	recorder := NewEventRecorder(RecorderOptions{Capacity: 64, Retention: time.Hour}, nil)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	recorder.Record(SecurityEvent{Type: EventRateLimitExceeded, Severity: SeverityWarning, Details: "old", Timestamp: base})
	recorder.Record(SecurityEvent{Type: EventThreatDetected, Severity: SeverityError, Details: "recent", Timestamp: base.Add(90 * time.Minute)})

	events, patterns := recorder.SweepRetention(base.Add(2 * time.Hour))
	if events != 1 {
		t.Fatalf("expected 1 swept event, got %d", events)
	}
	if patterns != 1 {
		t.Fatalf("expected 1 swept pattern, got %d", patterns)
	}
	remaining := recorder.Search(EventQuery{})
	if len(remaining) != 1 || remaining[0].Details != "recent" {
		t.Fatalf("expected only the recent event, got %+v", remaining)
	}
}

func TestSignatureHash_NormalizesDigits(t *testing.T) {
	t.Parallel()

	a := signatureHash("THREAT_DETECTED", "limit 100 per 1h exceeded on /api")
	b := signatureHash("THREAT_DETECTED", "limit 250 per 2h exceeded on /api")
	if a != b {
		t.Fatalf("variable numbers should collapse onto one signature")
	}
	c := signatureHash("RATE_LIMIT_EXCEEDED", "limit 100 per 1h exceeded on /api")
	if a == c {
		t.Fatalf("different categories must hash differently")
	}
}

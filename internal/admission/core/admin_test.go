package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission/internal/admission/observability"
)

func newAdminFixture(t *testing.T) (*AdminHandler, *handlerFixture) {
	t.Helper()
	f := newHandlerFixture(t, RateLimitPolicy{MaxRequests: 2, Window: time.Hour})
	admin := NewAdminHandler(f.handler, f.handler.limiter, f.blocks, f.recorder, observability.NopLogger{})
	admin.SetClock(func() time.Time { return f.now })
	return admin, f
}

func TestAdminHandler_BlockIP(t *testing.T) {
	t.Parallel()

	admin, f := newAdminFixture(t)
	if err := admin.BlockIP("203.0.113.40", 30*time.Minute); err != nil {
		t.Fatalf("block: %v", err)
	}
	if !f.blocks.IsBlocked("203.0.113.40", f.now) {
		t.Fatalf("expected manual block to be active")
	}

	events := f.recorder.Search(EventQuery{Types: []EventType{EventAdminAction}})
	if len(events) != 1 {
		t.Fatalf("expected one ADMIN_ACTION event, got %d", len(events))
	}

	blocks := admin.ListBlocks()
	if len(blocks) != 1 || blocks[0].IP != "203.0.113.40" {
		t.Fatalf("unexpected block list %+v", blocks)
	}
}

func TestAdminHandler_BlockIPValidation(t *testing.T) {
	t.Parallel()

	admin, _ := newAdminFixture(t)
	err := admin.BlockIP("not-an-ip", time.Hour)
	if err == nil {
		t.Fatalf("expected invalid ip error")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := admin.BlockIP("203.0.113.41", 0); err == nil {
		t.Fatalf("expected invalid duration error")
	}
}

func TestAdminHandler_UnblockIPIdempotent(t *testing.T) {
	t.Parallel()

	admin, _ := newAdminFixture(t)
	if err := admin.BlockIP("203.0.113.42", time.Hour); err != nil {
		t.Fatalf("block: %v", err)
	}
	if !admin.UnblockIP("203.0.113.42") {
		t.Fatalf("expected unblock to remove the entry")
	}
	if admin.UnblockIP("203.0.113.42") {
		t.Fatalf("expected second unblock to report absence")
	}
}

func TestAdminHandler_ResetClientLimits(t *testing.T) {
	t.Parallel()

	admin, f := newAdminFixture(t)
	req := &Request{ClientIP: "198.51.100.50", Path: "/api/orders"}
	f.handler.Admit(context.Background(), req)
	f.handler.Admit(context.Background(), req)
	if got := f.handler.Admit(context.Background(), req); got.Allowed {
		t.Fatalf("expected quota exhaustion")
	}

	if !admin.ResetClientLimits("ip:198.51.100.50") {
		t.Fatalf("expected reset to find tracked state")
	}
	if admin.ResetClientLimits("ip:198.51.100.50") {
		t.Fatalf("expected second reset to report no state")
	}
	if got := f.handler.Admit(context.Background(), req); !got.Allowed {
		t.Fatalf("expected fresh quota after reset, got %+v", got)
	}
}

func TestAdminHandler_StatisticsAndPatterns(t *testing.T) {
	t.Parallel()

	admin, f := newAdminFixture(t)
	req := &Request{ClientIP: "198.51.100.51", Path: "/api/orders", QueryParams: map[string]string{"q": "<script>alert(1)</script>"}}
	f.handler.Admit(context.Background(), req)

	stats := admin.Statistics()
	if stats.TotalRequests != 1 || stats.BlockedRequests != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	patterns := admin.ActivePatterns()
	if len(patterns) != 1 {
		t.Fatalf("expected one active pattern, got %d", len(patterns))
	}
	if patterns[0].Category != string(EventThreatDetected) {
		t.Fatalf("unexpected pattern category %q", patterns[0].Category)
	}

	events := admin.SearchEvents(EventQuery{Types: []EventType{EventThreatDetected}})
	if len(events) != 1 {
		t.Fatalf("expected one threat event, got %d", len(events))
	}
}

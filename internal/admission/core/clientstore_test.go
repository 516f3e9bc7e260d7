package core

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestClientStore_WithStateCreatesPeekDoesNot(t *testing.T) {
	t.Parallel()

	store := NewClientStore(8)
	if store.Peek("user:alice", func(*ClientState) {}) {
		t.Fatalf("peek must not create state")
	}
	store.WithState("user:alice", func(state *ClientState) {
		state.lastSeen = time.Now()
	})
	if !store.Peek("user:alice", func(*ClientState) {}) {
		t.Fatalf("expected state after WithState")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 tracked client, got %d", store.Len())
	}
}

func TestClientStore_Remove(t *testing.T) {
	t.Parallel()

	store := NewClientStore(8)
	store.WithState("user:alice", func(*ClientState) {})
	if !store.Remove("user:alice") {
		t.Fatalf("expected removal of tracked state")
	}
	if store.Remove("user:alice") {
		t.Fatalf("expected second removal to report no state")
	}
}

func TestClientStore_EvictInactive(t *testing.T) {
	t.Parallel()

	store := NewClientStore(8)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store.WithState("user:stale", func(state *ClientState) {
		state.lastSeen = base.Add(-3 * time.Hour)
	})
	store.WithState("user:fresh", func(state *ClientState) {
		state.lastSeen = base.Add(-time.Minute)
	})

	evicted := store.EvictInactive(base.Add(-2 * time.Hour))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if store.Peek("user:stale", func(*ClientState) {}) {
		t.Fatalf("stale client should be gone")
	}
	if !store.Peek("user:fresh", func(*ClientState) {}) {
		t.Fatalf("fresh client should remain")
	}
}

func TestClientStore_HourlyCountsForIP(t *testing.T) {
	t.Parallel()

	store := NewClientStore(8)
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		identity := ClientIdentity(fmt.Sprintf("user:u%d", i))
		store.WithState(identity, func(state *ClientState) {
			for j := 0; j <= i; j++ {
				state.observe("203.0.113.9", now)
			}
		})
	}
	store.WithState("user:other", func(state *ClientState) {
		state.observe("198.51.100.1", now)
	})
	// An identity whose activity is all in a previous hour does not count.
	store.WithState("user:old", func(state *ClientState) {
		state.observe("203.0.113.9", now.Add(-2*time.Hour))
	})

	counts := store.HourlyCountsForIP("203.0.113.9", now)
	if len(counts) != 3 {
		t.Fatalf("expected 3 identities for the ip, got %d", len(counts))
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	if total != 6 {
		t.Fatalf("expected total of 6 observations, got %d", total)
	}
}

func TestClientState_ObserveResetsAcrossHours(t *testing.T) {
	t.Parallel()

	state := &ClientState{}
	first := time.Date(2026, 1, 10, 12, 59, 0, 0, time.UTC)
	state.observe("203.0.113.9", first)
	state.observe("203.0.113.9", first)
	if state.hourCount != 2 {
		t.Fatalf("expected hourly count 2, got %d", state.hourCount)
	}

	next := time.Date(2026, 1, 10, 13, 1, 0, 0, time.UTC)
	state.observe("203.0.113.9", next)
	if state.hourCount != 1 {
		t.Fatalf("expected fresh hourly count 1, got %d", state.hourCount)
	}
}

func TestClientStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewClientStore(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := ClientIdentity(fmt.Sprintf("user:u%d", n%4))
			for j := 0; j < 100; j++ {
				store.WithState(identity, func(state *ClientState) {
					state.hourCount++
				})
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 4 {
		t.Fatalf("expected 4 tracked clients, got %d", store.Len())
	}
}

// Package core provides sharded per-client state storage.
package core

import (
	"hash/fnv"
	"sync"
	"time"
)

// ClientState tracks one client's sliding window. Owned by the store; only
// mutated inside a shard critical section.
type ClientState struct {
	timestamps   []time.Time
	lastSeen     time.Time
	blockedUntil time.Time
	sourceIP     string
	hourStart    time.Time
	hourCount    int
}

// observe records a request arrival for escalation accounting. The hourly
// counter is a fixed window independent of the policy sliding window.
func (state *ClientState) observe(sourceIP string, now time.Time) {
	state.lastSeen = now
	if sourceIP != "" {
		state.sourceIP = sourceIP
	}
	hourStart := now.Truncate(time.Hour)
	if !state.hourStart.Equal(hourStart) {
		state.hourStart = hourStart
		state.hourCount = 0
	}
	state.hourCount++
}

type clientShard struct {
	mu      sync.Mutex
	clients map[ClientIdentity]*ClientState
}

// ClientStore shards client state by identity hash so unrelated clients never
// contend on a common lock.
type ClientStore struct {
	shards []clientShard
}

// NewClientStore creates a store with the given shard count.
func NewClientStore(shards int) *ClientStore {
	if shards <= 0 {
		shards = 16
	}
	store := &ClientStore{shards: make([]clientShard, shards)}
	for i := range store.shards {
		store.shards[i].clients = make(map[ClientIdentity]*ClientState)
	}
	return store
}

func (cs *ClientStore) shardFor(identity ClientIdentity) *clientShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(identity))
	return &cs.shards[int(hasher.Sum32())%len(cs.shards)]
}

// WithState runs fn on the client's state inside its shard critical section,
// lazily creating the state if absent.
func (cs *ClientStore) WithState(identity ClientIdentity, fn func(*ClientState)) {
	if cs == nil || identity == "" || fn == nil {
		return
	}
	shard := cs.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state := shard.clients[identity]
	if state == nil {
		state = &ClientState{}
		shard.clients[identity] = state
	}
	fn(state)
}

// Peek runs fn on the client's state if it exists, without creating it.
func (cs *ClientStore) Peek(identity ClientIdentity, fn func(*ClientState)) bool {
	if cs == nil || identity == "" || fn == nil {
		return false
	}
	shard := cs.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state := shard.clients[identity]
	if state == nil {
		return false
	}
	fn(state)
	return true
}

// Remove drops a client's state. Returns false when no state existed.
func (cs *ClientStore) Remove(identity ClientIdentity) bool {
	if cs == nil || identity == "" {
		return false
	}
	shard := cs.shardFor(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.clients[identity]; !ok {
		return false
	}
	delete(shard.clients, identity)
	return true
}

// Len counts tracked clients across all shards.
func (cs *ClientStore) Len() int {
	if cs == nil {
		return 0
	}
	total := 0
	for i := range cs.shards {
		shard := &cs.shards[i]
		shard.mu.Lock()
		total += len(shard.clients)
		shard.mu.Unlock()
	}
	return total
}

// EvictInactive removes clients whose last activity predates the cutoff.
// Shards are locked one at a time so hot-path checks are never globally
// blocked; a racing check simply recreates fresh state.
func (cs *ClientStore) EvictInactive(cutoff time.Time) int {
	if cs == nil {
		return 0
	}
	evicted := 0
	for i := range cs.shards {
		shard := &cs.shards[i]
		shard.mu.Lock()
		for identity, state := range shard.clients {
			if state == nil || state.lastSeen.Before(cutoff) {
				delete(shard.clients, identity)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}

// HourlyCountsForIP snapshots the current-hour request counts of every
// identity whose requests originate from the given source IP. The snapshot
// is taken shard by shard and may be slightly stale.
func (cs *ClientStore) HourlyCountsForIP(ip string, now time.Time) []int {
	if cs == nil || ip == "" {
		return nil
	}
	hourStart := now.Truncate(time.Hour)
	var counts []int
	for i := range cs.shards {
		shard := &cs.shards[i]
		shard.mu.Lock()
		for _, state := range shard.clients {
			if state == nil || state.sourceIP != ip {
				continue
			}
			if !state.hourStart.Equal(hourStart) {
				continue
			}
			counts = append(counts, state.hourCount)
		}
		shard.mu.Unlock()
	}
	return counts
}

// Package core provides the IP block manager.
package core

import (
	"fmt"
	"sync"
	"time"
)

// BlockListOptions holds the tunable escalation heuristics.
type BlockListOptions struct {
	// ViolationThreshold is the hourly request volume that marks one
	// identity as a violation pattern.
	ViolationThreshold int
	// PatternCount is how many independent violation patterns trigger a
	// block.
	PatternCount int
	// BlockDuration is the TTL of an escalation block.
	BlockDuration time.Duration
}

// DefaultBlockListOptions returns the stock escalation heuristics.
func DefaultBlockListOptions() BlockListOptions {
	return BlockListOptions{
		ViolationThreshold: 50,
		PatternCount:       3,
		BlockDuration:      time.Hour,
	}
}

func (opts BlockListOptions) normalized() BlockListOptions {
	defaults := DefaultBlockListOptions()
	if opts.ViolationThreshold <= 0 {
		opts.ViolationThreshold = defaults.ViolationThreshold
	}
	if opts.PatternCount <= 0 {
		opts.PatternCount = defaults.PatternCount
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = defaults.BlockDuration
	}
	return opts
}

// BlockList escalates repeated violations into temporary IP blocks. Manual
// and automatic blocks share the same storage, so expiry and lookups treat
// them identically.
type BlockList struct {
	mu       sync.RWMutex
	entries  map[string]time.Time
	opts     BlockListOptions
	store    *ClientStore
	recorder *EventRecorder
}

// NewBlockList constructs a block list over the client store.
func NewBlockList(store *ClientStore, recorder *EventRecorder, opts BlockListOptions) *BlockList {
	return &BlockList{
		entries:  make(map[string]time.Time),
		opts:     opts.normalized(),
		store:    store,
		recorder: recorder,
	}
}

// SetOptions swaps the escalation heuristics. Safe for concurrent use; used
// by config hot reload.
func (bl *BlockList) SetOptions(opts BlockListOptions) {
	if bl == nil {
		return
	}
	bl.mu.Lock()
	bl.opts = opts.normalized()
	bl.mu.Unlock()
}

// IsBlocked reports whether the IP has an active block.
func (bl *BlockList) IsBlocked(ip string, now time.Time) bool {
	if bl == nil || ip == "" {
		return false
	}
	bl.mu.RLock()
	until, ok := bl.entries[ip]
	bl.mu.RUnlock()
	return ok && until.After(now)
}

// RetryAfter returns how long until the IP's block expires, or zero.
func (bl *BlockList) RetryAfter(ip string, now time.Time) time.Duration {
	if bl == nil || ip == "" {
		return 0
	}
	bl.mu.RLock()
	until, ok := bl.entries[ip]
	bl.mu.RUnlock()
	if !ok || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// Block installs a manual block, bypassing escalation heuristics.
func (bl *BlockList) Block(ip string, duration time.Duration, now time.Time) {
	if bl == nil || ip == "" || duration <= 0 {
		return
	}
	bl.mu.Lock()
	bl.entries[ip] = now.Add(duration)
	bl.mu.Unlock()
}

// Unblock removes a block immediately. Idempotent: returns false when the IP
// was not blocked, never an error.
func (bl *BlockList) Unblock(ip string) bool {
	if bl == nil || ip == "" {
		return false
	}
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if _, ok := bl.entries[ip]; !ok {
		return false
	}
	delete(bl.entries, ip)
	return true
}

// ConsiderEscalation evaluates the trailing-hour traffic of every identity
// sharing the source IP. Each identity exceeding the violation threshold is
// one pattern; enough independent patterns block the IP and record a single
// IP_BLOCKED event. The client-state scan tolerates staleness.
func (bl *BlockList) ConsiderEscalation(ip string, now time.Time) {
	if bl == nil || bl.store == nil || ip == "" {
		return
	}
	bl.mu.RLock()
	opts := bl.opts
	until, already := bl.entries[ip]
	bl.mu.RUnlock()
	if already && until.After(now) {
		return
	}

	patterns := 0
	for _, count := range bl.store.HourlyCountsForIP(ip, now) {
		if count > opts.ViolationThreshold {
			patterns++
		}
	}
	if patterns < opts.PatternCount {
		return
	}

	bl.mu.Lock()
	if existing, ok := bl.entries[ip]; ok && existing.After(now) {
		bl.mu.Unlock()
		return
	}
	bl.entries[ip] = now.Add(opts.BlockDuration)
	bl.mu.Unlock()

	if bl.recorder != nil {
		bl.recorder.Record(SecurityEvent{
			Type:      EventIPBlocked,
			Severity:  SeverityWarning,
			IP:        ip,
			Details:   fmt.Sprintf("blocked after %d violation patterns", patterns),
			Timestamp: now,
		})
	}
}

// EvictExpired drops entries whose block has lapsed.
func (bl *BlockList) EvictExpired(now time.Time) int {
	if bl == nil {
		return 0
	}
	bl.mu.Lock()
	defer bl.mu.Unlock()
	evicted := 0
	for ip, until := range bl.entries {
		if !until.After(now) {
			delete(bl.entries, ip)
			evicted++
		}
	}
	return evicted
}

// Active lists current blocks, skipping expired entries.
func (bl *BlockList) Active(now time.Time) []IPBlockEntry {
	if bl == nil {
		return nil
	}
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	blocks := make([]IPBlockEntry, 0, len(bl.entries))
	for ip, until := range bl.entries {
		if until.After(now) {
			blocks = append(blocks, IPBlockEntry{IP: ip, BlockedUntil: until})
		}
	}
	return blocks
}

// Len counts active blocks.
func (bl *BlockList) Len(now time.Time) int {
	if bl == nil {
		return 0
	}
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	count := 0
	for _, until := range bl.entries {
		if until.After(now) {
			count++
		}
	}
	return count
}

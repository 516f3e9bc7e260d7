// Package core provides the sliding window limiter.
package core

import "time"

// SlidingWindowLimiter evaluates per-client quotas against a policy using a
// timestamp log pruned to the active window, with an independent short-window
// burst cap.
type SlidingWindowLimiter struct {
	store         *ClientStore
	burstWindow   time.Duration
	burstCooldown time.Duration
}

// NewSlidingWindowLimiter constructs a limiter over the given store.
func NewSlidingWindowLimiter(store *ClientStore, burstWindow, burstCooldown time.Duration) *SlidingWindowLimiter {
	if burstWindow <= 0 {
		burstWindow = time.Minute
	}
	if burstCooldown <= 0 {
		burstCooldown = time.Minute
	}
	return &SlidingWindowLimiter{
		store:         store,
		burstWindow:   burstWindow,
		burstCooldown: burstCooldown,
	}
}

// Check admits or denies one request for the identity. Appending the arrival
// timestamp is the commit point: consumed quota is never refunded. All state
// access happens inside the identity's shard critical section.
func (lim *SlidingWindowLimiter) Check(identity ClientIdentity, sourceIP string, policy RateLimitPolicy, now time.Time) RateLimitResult {
	result := RateLimitResult{
		Limit:  policy.MaxRequests,
		Window: policy.Window,
	}
	if lim == nil || lim.store == nil || identity == "" {
		result.Allowed = true
		result.Remaining = policy.MaxRequests
		return result
	}
	lim.store.WithState(identity, func(state *ClientState) {
		state.observe(sourceIP, now)

		if state.blockedUntil.After(now) {
			result.Allowed = false
			result.Reason = DenyBurstCooldown
			result.RetryAfter = state.blockedUntil.Sub(now)
			result.Remaining = remainingIn(state.timestamps, policy, now)
			result.ResetAt = state.blockedUntil
			return
		}

		state.timestamps = pruneBefore(state.timestamps, now.Add(-policy.Window))

		burstStart := now.Add(-lim.burstWindow)
		recent := 0
		for i := len(state.timestamps) - 1; i >= 0; i-- {
			if !state.timestamps[i].After(burstStart) {
				break
			}
			recent++
		}
		if policy.BurstAllowance > 0 && recent >= policy.BurstAllowance {
			// Cooldown does not clear the main window history.
			state.blockedUntil = now.Add(lim.burstCooldown)
			result.Allowed = false
			result.Reason = DenyBurstCooldown
			result.RetryAfter = lim.burstCooldown
			result.Remaining = remainingIn(state.timestamps, policy, now)
			result.ResetAt = state.blockedUntil
			return
		}

		if len(state.timestamps) >= policy.MaxRequests {
			retry := state.timestamps[0].Add(policy.Window).Sub(now)
			if retry < time.Second {
				retry = time.Second
			}
			result.Allowed = false
			result.Reason = DenyRateLimited
			result.RetryAfter = retry
			result.Remaining = 0
			result.ResetAt = state.timestamps[0].Add(policy.Window)
			return
		}

		state.timestamps = append(state.timestamps, now)
		result.Allowed = true
		result.Remaining = policy.MaxRequests - len(state.timestamps)
		result.ResetAt = state.timestamps[0].Add(policy.Window)
	})
	return result
}

// Remaining reports the unconsumed quota for the identity without mutating
// any state.
func (lim *SlidingWindowLimiter) Remaining(identity ClientIdentity, policy RateLimitPolicy, now time.Time) int {
	if lim == nil || lim.store == nil {
		return policy.MaxRequests
	}
	remaining := policy.MaxRequests
	lim.store.Peek(identity, func(state *ClientState) {
		remaining = remainingIn(state.timestamps, policy, now)
	})
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears all limiter state for the identity. Returns false when the
// identity was not tracked.
func (lim *SlidingWindowLimiter) Reset(identity ClientIdentity) bool {
	if lim == nil || lim.store == nil {
		return false
	}
	return lim.store.Remove(identity)
}

// pruneBefore drops timestamps at or before the cutoff. The log is sorted
// ascending so only the front is trimmed.
func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	kept := copy(timestamps, timestamps[idx:])
	return timestamps[:kept]
}

func remainingIn(timestamps []time.Time, policy RateLimitPolicy, now time.Time) int {
	cutoff := now.Add(-policy.Window)
	count := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if !timestamps[i].After(cutoff) {
			break
		}
		count++
	}
	remaining := policy.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

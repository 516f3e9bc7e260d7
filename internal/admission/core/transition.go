// Package core provides the pattern severity transition rule.
package core

// EscalationRule holds the tunable thresholds for pattern escalation.
type EscalationRule struct {
	CountWarning  int64
	CountError    int64
	CountCritical int64
	UserThreshold int
}

// DefaultEscalationRule returns the stock escalation thresholds.
func DefaultEscalationRule() EscalationRule {
	return EscalationRule{
		CountWarning:  10,
		CountError:    20,
		CountCritical: 50,
		UserThreshold: 10,
	}
}

func (rule EscalationRule) normalized() EscalationRule {
	defaults := DefaultEscalationRule()
	if rule.CountWarning <= 0 {
		rule.CountWarning = defaults.CountWarning
	}
	if rule.CountError <= 0 {
		rule.CountError = defaults.CountError
	}
	if rule.CountCritical <= 0 {
		rule.CountCritical = defaults.CountCritical
	}
	if rule.UserThreshold <= 0 {
		rule.UserThreshold = defaults.UserThreshold
	}
	return rule
}

// Transition computes the next severity for an active pattern. Count-based
// thresholds set a base level; a wide user impact bumps the result one level.
// The returned severity never drops below the current one.
func (rule EscalationRule) Transition(current Severity, count int64, uniqueUsers int) Severity {
	rule = rule.normalized()
	next := SeverityInfo
	switch {
	case count >= rule.CountCritical:
		next = SeverityCritical
	case count >= rule.CountError:
		next = SeverityError
	case count >= rule.CountWarning:
		next = SeverityWarning
	}
	if uniqueUsers >= rule.UserThreshold && next < SeverityCritical {
		next++
	}
	if next < current {
		next = current
	}
	return next
}

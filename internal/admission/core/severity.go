// Package core defines severity scales for events and threats.
package core

// Severity orders security event severities.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the severity label.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps a label to a severity.
func ParseSeverity(label string) (Severity, bool) {
	switch label {
	case "INFO":
		return SeverityInfo, true
	case "WARNING":
		return SeverityWarning, true
	case "ERROR":
		return SeverityError, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return SeverityInfo, false
	}
}

// ThreatSeverity orders threat scan severities.
type ThreatSeverity int

const (
	ThreatNone ThreatSeverity = iota
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

// String returns the threat severity label.
func (s ThreatSeverity) String() string {
	switch s {
	case ThreatMedium:
		return "MEDIUM"
	case ThreatHigh:
		return "HIGH"
	case ThreatCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// Blocking reports whether the threat severity denies the request on its own.
func (s ThreatSeverity) Blocking() bool {
	return s >= ThreatHigh
}

// EventSeverity maps a threat severity onto the event scale.
func (s ThreatSeverity) EventSeverity() Severity {
	switch s {
	case ThreatCritical:
		return SeverityCritical
	case ThreatHigh:
		return SeverityError
	case ThreatMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

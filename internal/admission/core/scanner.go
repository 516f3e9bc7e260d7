// Package core provides signature-based threat scanning.
package core

import (
	"fmt"
	"regexp"
)

// ThreatTag labels a matched attack category.
type ThreatTag string

const (
	TagSQLInjection       ThreatTag = "sql_injection"
	TagXSS                ThreatTag = "xss"
	TagSuspiciousPath     ThreatTag = "suspicious_path"
	TagMaliciousUserAgent ThreatTag = "malicious_user_agent"
)

// severityFor maps a category to its fixed severity.
func severityFor(category ThreatTag) ThreatSeverity {
	switch category {
	case TagSQLInjection:
		return ThreatCritical
	case TagXSS:
		return ThreatHigh
	case TagSuspiciousPath, TagMaliciousUserAgent:
		return ThreatMedium
	default:
		return ThreatNone
	}
}

// ThreatSignature is one static attack signature.
type ThreatSignature struct {
	ID       string
	Category ThreatTag
	Pattern  string
}

// ThreatMatch reports one matched signature.
type ThreatMatch struct {
	SignatureID string
	Category    ThreatTag
	Severity    ThreatSeverity
	Target      string
}

// ThreatScanResult aggregates all matches for one request.
type ThreatScanResult struct {
	Matches  []ThreatMatch
	Severity ThreatSeverity
}

// Tags returns the distinct matched categories as strings.
func (r ThreatScanResult) Tags() []string {
	if len(r.Matches) == 0 {
		return nil
	}
	seen := make(map[ThreatTag]bool, len(r.Matches))
	tags := make([]string, 0, len(r.Matches))
	for _, match := range r.Matches {
		if seen[match.Category] {
			continue
		}
		seen[match.Category] = true
		tags = append(tags, string(match.Category))
	}
	return tags
}

// Blocking reports whether the combined severity denies the request.
func (r ThreatScanResult) Blocking() bool {
	return r.Severity.Blocking()
}

type compiledSignature struct {
	id       string
	category ThreatTag
	severity ThreatSeverity
	re       *regexp.Regexp
}

// SignatureScanner pattern-matches requests against known attack signatures.
// All regexps compile once at construction; scanning is stateless and
// lock-free.
type SignatureScanner struct {
	userAgent  []compiledSignature
	injectable []compiledSignature
	path       []compiledSignature
}

// NewSignatureScanner compiles the signature set. A malformed pattern is a
// configuration error and fails construction.
func NewSignatureScanner(signatures []ThreatSignature) (*SignatureScanner, error) {
	scanner := &SignatureScanner{}
	for _, sig := range signatures {
		if sig.Pattern == "" {
			return nil, Wrap(CodeConfiguration, fmt.Sprintf("signature %s has no pattern", sig.ID), ErrConfiguration)
		}
		severity := severityFor(sig.Category)
		if severity == ThreatNone {
			return nil, Wrap(CodeConfiguration, fmt.Sprintf("signature %s has unknown category %q", sig.ID, sig.Category), ErrConfiguration)
		}
		re, err := regexp.Compile(sig.Pattern)
		if err != nil {
			return nil, Wrap(CodeConfiguration, fmt.Sprintf("signature %s: %v", sig.ID, err), ErrConfiguration)
		}
		compiled := compiledSignature{id: sig.ID, category: sig.Category, severity: severity, re: re}
		switch sig.Category {
		case TagMaliciousUserAgent:
			scanner.userAgent = append(scanner.userAgent, compiled)
		case TagSuspiciousPath:
			scanner.path = append(scanner.path, compiled)
		default:
			scanner.injectable = append(scanner.injectable, compiled)
		}
	}
	return scanner, nil
}

// Scan evaluates the request against every signature, cheapest targets first,
// and returns all matches so severity aggregation sees the complete surface.
// Never mutates state.
func (s *SignatureScanner) Scan(req *Request) ThreatScanResult {
	var result ThreatScanResult
	if s == nil || req == nil {
		return result
	}

	if req.UserAgent != "" {
		for _, sig := range s.userAgent {
			if sig.re.MatchString(req.UserAgent) {
				result.add(sig, "user_agent")
			}
		}
	}

	for _, sig := range s.injectable {
		if req.Path != "" && sig.re.MatchString(req.Path) {
			result.add(sig, "path")
			continue
		}
		for _, value := range req.QueryParams {
			if sig.re.MatchString(value) {
				result.add(sig, "query")
				break
			}
		}
	}

	if req.Path != "" {
		for _, sig := range s.path {
			if sig.re.MatchString(req.Path) {
				result.add(sig, "path")
			}
		}
	}

	return result
}

func (r *ThreatScanResult) add(sig compiledSignature, target string) {
	r.Matches = append(r.Matches, ThreatMatch{
		SignatureID: sig.id,
		Category:    sig.category,
		Severity:    sig.severity,
		Target:      target,
	})
	if sig.severity > r.Severity {
		r.Severity = sig.severity
	}
}

// DefaultSignatures returns the built-in signature set.
func DefaultSignatures() []ThreatSignature {
	return []ThreatSignature{
		{
			ID:       "ua-scanner",
			Category: TagMaliciousUserAgent,
			Pattern:  `(?i)(sqlmap|nikto|acunetix|nmap|masscan|nessus|zgrab|dirbuster|gobuster|nuclei|havij|w3af)`,
		},
		{
			ID:       "sqli-union",
			Category: TagSQLInjection,
			Pattern:  `(?i)(\bunion\b.{0,20}\bselect\b|\bselect\b.{0,20}\bfrom\b|\binformation_schema\b)`,
		},
		{
			ID:       "sqli-boolean-time",
			Category: TagSQLInjection,
			Pattern:  `(?i)('\s*or\s*'?\d+'?\s*=\s*'?\d|\bor\b\s+1\s*=\s*1\b|\band\b\s+1\s*=\s*1\b|\bsleep\s*\(|\bbenchmark\s*\(|pg_sleep\s*\(|;\s*drop\s+table\b)`,
		},
		{
			ID:       "xss-basic",
			Category: TagXSS,
			Pattern:  `(?i)(<script\b|javascript:|onerror\s*=|onload\s*=|document\.cookie|<img\b[^>]*onerror\b|<iframe\b)`,
		},
		{
			ID:       "path-traversal",
			Category: TagSuspiciousPath,
			Pattern:  `(?i)(\.\./|\.\.\\|%2e%2e%2f|/etc/passwd|/proc/self/environ)`,
		},
		{
			ID:       "path-probe",
			Category: TagSuspiciousPath,
			Pattern:  `(?i)(/wp-admin|/phpmyadmin|/\.git\b|/\.env\b|/\.aws\b|/cgi-bin/)`,
		},
	}
}

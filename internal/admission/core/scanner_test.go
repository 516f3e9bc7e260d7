package core

import (
	"testing"
)

func newTestScanner(t *testing.T) *SignatureScanner {
	t.Helper()
	scanner, err := NewSignatureScanner(DefaultSignatures())
	if err != nil {
		t.Fatalf("default signatures must compile: %v", err)
	}
	return scanner
}

func TestSignatureScanner_SQLInjectionInQuery(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{
		Path:        "/api/items",
		Method:      "GET",
		QueryParams: map[string]string{"id": "1' OR '1'='1"},
	})
	if len(result.Matches) == 0 {
		t.Fatalf("expected a sql injection match")
	}
	if result.Severity != ThreatCritical {
		t.Fatalf("expected critical severity, got %s", result.Severity)
	}
	if !result.Blocking() {
		t.Fatalf("sql injection must block")
	}
	tags := result.Tags()
	if len(tags) != 1 || tags[0] != string(TagSQLInjection) {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestSignatureScanner_UnionSelectInPath(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{Path: "/search/union select password from users"})
	if len(result.Matches) == 0 || result.Severity != ThreatCritical {
		t.Fatalf("expected critical sql injection match, got %+v", result)
	}
}

func TestSignatureScanner_XSSBlocks(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{
		Path:        "/comments",
		QueryParams: map[string]string{"text": "<script>alert(1)</script>"},
	})
	if result.Severity != ThreatHigh {
		t.Fatalf("expected high severity, got %s", result.Severity)
	}
	if !result.Blocking() {
		t.Fatalf("xss must block")
	}
}

func TestSignatureScanner_SuspiciousPathAlertsOnly(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	for _, path := range []string{"/wp-admin/setup.php", "/files/../../etc/passwd"} {
		result := scanner.Scan(&Request{Path: path})
		if len(result.Matches) == 0 {
			t.Fatalf("expected a match for %s", path)
		}
		if result.Severity != ThreatMedium {
			t.Fatalf("expected medium severity for %s, got %s", path, result.Severity)
		}
		if result.Blocking() {
			t.Fatalf("suspicious path must alert without blocking")
		}
	}
}

func TestSignatureScanner_MaliciousUserAgent(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{Path: "/", UserAgent: "sqlmap/1.7"})
	if len(result.Matches) != 1 {
		t.Fatalf("expected one user agent match, got %d", len(result.Matches))
	}
	if result.Matches[0].Category != TagMaliciousUserAgent {
		t.Fatalf("unexpected category %s", result.Matches[0].Category)
	}
	if result.Blocking() {
		t.Fatalf("malicious user agent must alert without blocking")
	}
}

func TestSignatureScanner_CleanRequest(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{
		Path:        "/api/orders",
		Method:      "POST",
		UserAgent:   "Mozilla/5.0",
		QueryParams: map[string]string{"page": "2", "sort": "created_at"},
	})
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches, got %+v", result.Matches)
	}
	if result.Severity != ThreatNone {
		t.Fatalf("expected no severity, got %s", result.Severity)
	}
}

func TestSignatureScanner_HighestSeverityWins(t *testing.T) {
	t.Parallel()

	scanner := newTestScanner(t)
	result := scanner.Scan(&Request{
		Path:        "/wp-admin/index.php",
		UserAgent:   "nikto",
		QueryParams: map[string]string{"q": "union select * from users"},
	})
	if result.Severity != ThreatCritical {
		t.Fatalf("expected critical combined severity, got %s", result.Severity)
	}
	if len(result.Tags()) < 3 {
		t.Fatalf("expected at least 3 distinct tags, got %v", result.Tags())
	}
}

func TestNewSignatureScanner_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSignatureScanner([]ThreatSignature{{ID: "bad", Category: TagXSS, Pattern: "("}})
	if err == nil {
		t.Fatalf("expected a compile error")
	}
	if CodeOf(err) != CodeConfiguration {
		t.Fatalf("expected configuration error code, got %v", CodeOf(err))
	}

	_, err = NewSignatureScanner([]ThreatSignature{{ID: "none", Category: "nonsense", Pattern: "x"}})
	if err == nil {
		t.Fatalf("expected an unknown category error")
	}

	_, err = NewSignatureScanner([]ThreatSignature{{ID: "empty", Category: TagXSS}})
	if err == nil {
		t.Fatalf("expected an empty pattern error")
	}
}

// Package httptransport provides the inline admission middleware.
package httptransport

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"admission/internal/admission/core"
)

// Admit wraps an HTTP handler with admission control. Denied requests get a
// 429 with Retry-After and a structured body, or a 403 with a generic message
// that leaks no signature details. Allowed requests pass through with rate
// limit headers set.
func Admit(handler *core.AdmissionHandler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler == nil {
			next.ServeHTTP(w, r)
			return
		}
		decision := handler.Admit(r.Context(), DescribeRequest(r))
		setRateLimitHeaders(w, decision)
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		switch decision.HTTPStatus {
		case http.StatusTooManyRequests:
			if decision.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(decision.RetryAfter), 10))
			}
			writeJSON(w, http.StatusTooManyRequests, httpDenyResponse{
				Error:      "rate limit exceeded",
				Limit:      decision.RateLimit.Limit,
				Window:     int64(decision.RateLimit.Window.Seconds()),
				RetryAfter: retryAfterSeconds(decision.RetryAfter),
			})
		default:
			if decision.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(decision.RetryAfter), 10))
			}
			writeJSON(w, http.StatusForbidden, httpErrorResponse{Error: "request rejected"})
		}
	})
}

// DescribeRequest builds the normalized descriptor from an HTTP request.
// Only the first value of each query parameter and header is considered.
func DescribeRequest(r *http.Request) *core.Request {
	if r == nil {
		return nil
	}
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return &core.Request{
		ClientIP:    ClientIP(r),
		UserAgent:   r.UserAgent(),
		Path:        r.URL.Path,
		Method:      r.Method,
		QueryParams: params,
		Headers:     headers,
		UserID:      r.Header.Get("X-User-Id"),
		UserRole:    r.Header.Get("X-User-Role"),
		SessionID:   sessionID(r),
	}
}

// ClientIP resolves the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			first = forwarded[:idx]
		}
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-Ip")); real != "" {
		if net.ParseIP(real) != nil {
			return real
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sessionID(r *http.Request) string {
	if cookie, err := r.Cookie("session_id"); err == nil && cookie != nil {
		return cookie.Value
	}
	return r.Header.Get("X-Session-Id")
}

func setRateLimitHeaders(w http.ResponseWriter, decision *core.Decision) {
	if decision == nil {
		return
	}
	header := w.Header()
	header.Set("X-RateLimit-Limit", strconv.Itoa(decision.RateLimit.Limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.RateLimit.Remaining))
	header.Set("X-RateLimit-Window", strconv.FormatInt(int64(decision.RateLimit.Window.Seconds()), 10))
	if !decision.RateLimit.ResetAt.IsZero() {
		header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.RateLimit.ResetAt.Unix(), 10))
	}
}

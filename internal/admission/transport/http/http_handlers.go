// Package httptransport provides HTTP handlers.
package httptransport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admission/internal/admission/core"
)

func (t *HTTPTransport) registerRoutes(router chi.Router) {
	router.Post("/v1/admission/check", t.handleCheck)
	router.Route("/v1/admin", func(r chi.Router) {
		r.Use(t.adminAuth)
		r.Post("/ipblocks", t.handleBlockIP)
		r.Get("/ipblocks", t.handleListBlocks)
		r.Delete("/ipblocks/{ip}", t.handleUnblockIP)
		r.Post("/clients/reset", t.handleResetClient)
		r.Get("/statistics", t.handleStatistics)
		r.Get("/events", t.handleSearchEvents)
		r.Get("/patterns", t.handleActivePatterns)
	})
	router.Get("/healthz", t.handleHealth)
	router.Get("/readyz", t.handleReady)
	if t.registry != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	}
}

// handleCheck evaluates a normalized descriptor submitted by a sidecar or
// upstream proxy. The decision is returned, never enforced here.
func (t *HTTPTransport) handleCheck(w http.ResponseWriter, r *http.Request) {
	var httpReq HTTPCheckRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.Path == "" {
		t.writeError(w, r, http.StatusBadRequest, core.ErrInvalidInput)
		return
	}
	decision := t.handler.Admit(r.Context(), toRequest(httpReq))
	writeJSON(w, http.StatusOK, fromDecision(decision))
}

func (t *HTTPTransport) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var httpReq HTTPBlockRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := t.admin.BlockIP(httpReq.IP, time.Duration(httpReq.DurationSeconds)*time.Second); err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *HTTPTransport) handleUnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		t.writeError(w, r, http.StatusBadRequest, core.ErrInvalidInput)
		return
	}
	removed := t.admin.UnblockIP(ip)
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (t *HTTPTransport) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks := t.admin.ListBlocks()
	resp := make([]HTTPBlockEntry, len(blocks))
	for i, block := range blocks {
		resp[i] = HTTPBlockEntry{IP: block.IP, BlockedUntil: block.BlockedUntil}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleResetClient(w http.ResponseWriter, r *http.Request) {
	var httpReq HTTPResetRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.Identity == "" {
		t.writeError(w, r, http.StatusBadRequest, core.ErrInvalidInput)
		return
	}
	removed := t.admin.ResetClientLimits(core.ClientIdentity(httpReq.Identity))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (t *HTTPTransport) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats := t.admin.Statistics()
	writeJSON(w, http.StatusOK, HTTPStatisticsResponse{
		TotalRequests:    stats.TotalRequests,
		BlockedRequests:  stats.BlockedRequests,
		BlockRatePercent: stats.BlockRatePercent,
		ActiveClients:    stats.ActiveClients,
		BlockedIPCount:   stats.BlockedIPCount,
	})
}

func (t *HTTPTransport) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	query, err := parseEventQuery(r)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	events := t.admin.SearchEvents(query)
	resp := make([]HTTPEventResponse, len(events))
	for i, event := range events {
		resp[i] = fromEvent(event)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleActivePatterns(w http.ResponseWriter, r *http.Request) {
	patterns := t.admin.ActivePatterns()
	resp := make([]HTTPPatternResponse, len(patterns))
	for i, pattern := range patterns {
		resp[i] = fromPattern(pattern)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if t.appReady != nil && t.appReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func parseEventQuery(r *http.Request) (core.EventQuery, error) {
	values := r.URL.Query()
	query := core.EventQuery{
		UserID: values.Get("userId"),
		IP:     values.Get("ip"),
	}
	if raw := values.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, core.Wrap(core.CodeInvalidInput, "invalid from timestamp", core.ErrInvalidInput)
		}
		query.From = parsed
	}
	if raw := values.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, core.Wrap(core.CodeInvalidInput, "invalid to timestamp", core.ErrInvalidInput)
		}
		query.To = parsed
	}
	if raw := values.Get("types"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				query.Types = append(query.Types, core.EventType(name))
			}
		}
	}
	if raw := values.Get("severity"); raw != "" {
		severity, ok := core.ParseSeverity(strings.ToUpper(raw))
		if !ok {
			return query, core.Wrap(core.CodeInvalidInput, "invalid severity", core.ErrInvalidInput)
		}
		query.MinSeverity = severity
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return query, core.Wrap(core.CodeInvalidInput, "invalid limit", core.ErrInvalidInput)
		}
		query.Limit = limit
	}
	return query, nil
}

func (t *HTTPTransport) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.enableAuth {
			expected := "Bearer " + t.adminToken
			if r.Header.Get("Authorization") != expected {
				t.writeError(w, r, http.StatusUnauthorized, core.Wrap(core.CodeUnauthorized, "unauthorized", nil))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return core.ErrInvalidInput
	}
	maxBytes := t.maxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return core.ErrInvalidInput
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return core.ErrInvalidInput
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if t != nil {
		t.logRequestError(r, status, err)
	}
	writeJSON(w, status, httpErrorResponse{Error: err.Error()})
}

func (t *HTTPTransport) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	t.writeError(w, r, statusForCode(core.CodeOf(err)), err)
}

func statusForCode(code core.ErrorCode) int {
	switch code {
	case core.CodeInvalidInput:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeUnauthorized:
		return http.StatusUnauthorized
	case core.CodeConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (t *HTTPTransport) logRequestError(r *http.Request, status int, err error) {
	if t == nil || t.logger == nil || r == nil || err == nil {
		return
	}
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		t.logger.Error("http request error", fields)
		return
	}
	t.logger.Info("http request error", fields)
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuwago-ai/datagate/internal/alerts"
	"github.com/kuwago-ai/datagate/internal/events"
	"github.com/kuwago-ai/datagate/internal/guard"
	"github.com/kuwago-ai/datagate/internal/pii"
	"github.com/kuwago-ai/datagate/internal/usage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type redactRequest struct {
	Text string `json:"text"`
}

type redactResponse struct {
	Redacted    string     `json:"redacted"`
	ContainsPII bool       `json:"contains_pii"`
	Stats       pii.Result `json:"stats"`
}

// handleRedact scrubs PII from free text
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	redacted := s.redactor.RedactText(req.Text)
	stats := s.redactor.Stats(req.Text, redacted)

	if stats.RedactionCount > 0 {
		s.hub.Publish(events.Event{
			Type:      events.TypeRedaction,
			RequestID: getRequestID(r.Context()),
			Data: events.RedactionEvent{
				Route:    r.URL.Path,
				ClientIP: getClientIP(r),
				Result:   stats,
			},
		})
	}

	writeJSON(w, http.StatusOK, redactResponse{
		Redacted:    redacted,
		ContainsPII: redacted != req.Text,
		Stats:       stats,
	})
}

type redactCSVRequest struct {
	CSV             string `json:"csv"`
	PreserveHeaders *bool  `json:"preserve_headers,omitempty"`
	MaxRows         int    `json:"max_rows,omitempty"`
}

type redactCSVResponse struct {
	Redacted         string     `json:"redacted"`
	Stats            pii.Result `json:"stats"`
	SensitiveColumns []string   `json:"sensitive_columns,omitempty"`
}

// handleRedactCSV scrubs the data rows of CSV content
func (s *Server) handleRedactCSV(w http.ResponseWriter, r *http.Request) {
	var req redactCSVRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := s.redactor.CSVDefaults()
	if req.PreserveHeaders != nil {
		opts.PreserveHeaders = *req.PreserveHeaders
	}
	if req.MaxRows > 0 {
		opts.MaxRows = req.MaxRows
	}

	redacted := s.redactor.RedactCSV(req.CSV, opts)
	stats := s.redactor.Stats(req.CSV, redacted)

	var sensitive []string
	if opts.PreserveHeaders {
		header, _, _ := strings.Cut(req.CSV, "\n")
		sensitive = s.redactor.SensitiveColumns(header)
	}

	if stats.RedactionCount > 0 {
		s.hub.Publish(events.Event{
			Type:      events.TypeRedaction,
			RequestID: getRequestID(r.Context()),
			Data: events.RedactionEvent{
				Route:    r.URL.Path,
				ClientIP: getClientIP(r),
				Result:   stats,
			},
		})
	}

	writeJSON(w, http.StatusOK, redactCSVResponse{
		Redacted:         redacted,
		Stats:            stats,
		SensitiveColumns: sensitive,
	})
}

type guardRequest struct {
	Value      string `json:"value"`
	FieldName  string `json:"field_name,omitempty"`
	MaxLength  int    `json:"max_length,omitempty"`
	AllowEmpty bool   `json:"allow_empty,omitempty"`
}

type guardResponse struct {
	Value string `json:"value"`
}

type guardErrorResponse struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind"`
	Field      string   `json:"field"`
	Indicators []string `json:"indicators,omitempty"`
}

// handleGuard gates one user-supplied text value
func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	var req guardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fieldName := req.FieldName
	if fieldName == "" {
		fieldName = "value"
	}

	cleaned, failure := s.guard.GuardTextInput(guard.Input{
		Value:           req.Value,
		FieldName:       fieldName,
		MaxLength:       req.MaxLength,
		AllowEmpty:      req.AllowEmpty,
		DetectInjection: true,
	})

	if failure == nil {
		writeJSON(w, http.StatusOK, guardResponse{Value: cleaned})
		return
	}

	if failure.Kind == guard.FailureInjection {
		clientIP := getClientIP(r)
		requestID := getRequestID(r.Context())

		s.hub.Publish(events.Event{
			Type:      events.TypeInjectionBlock,
			RequestID: requestID,
			Data: events.InjectionBlockEvent{
				Route:      r.URL.Path,
				ClientIP:   clientIP,
				Field:      failure.Field,
				Indicators: failure.Signal.Indicators,
			},
		})
		s.persistAlert(r.Context(), alerts.Alert{
			Kind:     alerts.KindInjection,
			Route:    r.URL.Path,
			ClientIP: clientIP,
			UserID:   r.Header.Get("X-User-ID"),
			Reason:   failure.Reason,
			Detail:   strings.Join(failure.Signal.Indicators, "; "),
		})

		// In log mode the signal is recorded but the request passes with
		// the sanitized value.
		if s.config.Guard.Mode != "block" {
			s.logger.WithRequestID(requestID).Warn("Injection detected, passing through",
				zap.String("mode", s.config.Guard.Mode),
				zap.String("field", failure.Field),
			)
			sanitized := guard.SanitizeString(req.Value, guard.SanitizeOptions{MaxLength: s.config.Guard.MaxLength})
			writeJSON(w, http.StatusOK, guardResponse{Value: sanitized})
			return
		}
	}

	resp := guardErrorResponse{
		Error: failure.Reason,
		Kind:  string(failure.Kind),
		Field: failure.Field,
	}
	if failure.Signal != nil {
		resp.Indicators = failure.Signal.Indicators
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// handleUsage returns the usage tracker's diagnostic snapshot
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": s.tracker.Summarize(),
	})
}

// handleAlerts returns recent persisted alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alertStore == nil {
		writeJSONError(w, http.StatusNotFound, "alert store is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	recent, err := s.alertStore.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query alerts", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": recent})
}

// usageEvent builds the usage observation for a completed request. Units are
// the request body size; heavier payloads weigh more in spike detection.
func usageEvent(r *http.Request, category, clientIP, userID string) usage.Event {
	units := float64(r.ContentLength)
	if units < 1 {
		units = 1
	}
	return usage.Event{
		Route:    r.URL.Path,
		IP:       clientIP,
		UserID:   userID,
		Category: category,
		Units:    units,
	}
}

// decodeJSON decodes a request body, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

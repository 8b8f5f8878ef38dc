package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldops/instalog/internal/models"
)

type auditPayload struct {
	Timestamp    *string     `json:"timestamp"`
	Action       string      `json:"action"`
	Username     string      `json:"username"`
	Success      bool        `json:"success"`
	Details      interface{} `json:"details"`
	ComputerName string      `json:"computer_name"`
	IPAddress    string      `json:"ip_address"`
	Platform     string      `json:"platform"`
}

// handleAuditLogs serves POST (append) and GET (recent, newest first) on
// /audit-logs.
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleAuditInsert(w, r)
	case http.MethodGet:
		s.handleAuditList(w, r)
	default:
		WriteRouteNotFound(w)
	}
}

func (s *Server) handleAuditInsert(w http.ResponseWriter, r *http.Request) {
	var payload auditPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	if strings.TrimSpace(payload.Action) == "" {
		WriteAPIError(w, http.StatusBadRequest, "action es obligatorio")
		return
	}

	timestamp := time.Now().UTC()
	if payload.Timestamp != nil && *payload.Timestamp != "" {
		t, err := parseDateParam(*payload.Timestamp)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "timestamp invalido")
			return
		}
		timestamp = t
	}

	// details is stored as its JSON stringification, whatever shape the
	// client sent.
	details := ""
	if payload.Details != nil {
		raw, err := json.Marshal(payload.Details)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "details invalido")
			return
		}
		details = string(raw)
	}

	entry := &models.AuditLog{
		Timestamp:    timestamp,
		Action:       payload.Action,
		Username:     payload.Username,
		Success:      payload.Success,
		Details:      details,
		ComputerName: payload.ComputerName,
		IPAddress:    payload.IPAddress,
		Platform:     payload.Platform,
	}

	if _, err := s.app.Storage.AuditLogs().Insert(r.Context(), entry); err != nil {
		s.logger.Error().Err(err).Msg("Failed to insert audit log")
		WriteUnexpectedError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "limit invalido")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}

	logs, err := s.app.Storage.AuditLogs().List(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list audit logs")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	WriteJSON(w, http.StatusOK, logs)
}

// recordAuditEvent appends a server-side audit row, logging failures
// instead of surfacing them.
func (s *Server) recordAuditEvent(r *http.Request, action, username string, success bool, details map[string]interface{}) {
	raw := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = string(b)
		}
	}
	entry := &models.AuditLog{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Username:  username,
		Success:   success,
		Details:   raw,
		IPAddress: ClientIP(r),
		Platform:  "web",
	}
	if _, err := s.app.Storage.AuditLogs().Insert(r.Context(), entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to record audit event")
	}
}

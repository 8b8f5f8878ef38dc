package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldops/instalog/internal/common"
)

// registerRoutes sets up all REST API routes on the mux. Session-admitted
// /web/* twins are rewritten onto these routes by the auth middleware, so
// only the web auth surface is registered under /web.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	// Installations
	mux.HandleFunc("/installations", s.handleInstallations)
	mux.HandleFunc("/installations/", s.routeInstallations)
	mux.HandleFunc("/records", s.handleRecords)

	// Incidents and photos
	mux.HandleFunc("/incidents/", s.routeIncidents)
	mux.HandleFunc("/photos/", s.handlePhotoFetch)

	// Aggregates
	mux.HandleFunc("/statistics", s.handleStatistics)
	mux.HandleFunc("/audit-logs", s.handleAuditLogs)

	// Web console auth
	mux.HandleFunc("/web/auth/bootstrap", s.handleWebBootstrap)
	mux.HandleFunc("/web/auth/login", s.handleWebLogin)
	mux.HandleFunc("/web/auth/me", s.handleWebMe)
	mux.HandleFunc("/web/auth/users", s.handleWebUsers)
	mux.HandleFunc("/web/auth/users/", s.routeWebUsers)
	mux.HandleFunc("/web/auth/import-users", s.handleWebImportUsers)
}

// handleRoot serves GET / service metadata and the catch-all 404.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		WriteRouteNotFound(w)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":     "instalog",
		"version":     common.GetVersion(),
		"build":       common.GetBuild(),
		"commit":      common.GetGitCommit(),
		"environment": s.app.Config.Environment,
	})
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRouteNotFound(w)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"now": time.Now().UTC().Format(time.RFC3339),
	})
}

// parsePositiveID parses a path segment as a positive integer id.
func parsePositiveID(segment string) (int64, bool) {
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// routeInstallations dispatches /installations/{id} and
// /installations/{id}/incidents.
func (s *Server) routeInstallations(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/installations/")
	segment, tail, _ := strings.Cut(rest, "/")

	id, ok := parsePositiveID(segment)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "id invalido")
		return
	}

	switch tail {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleInstallationGet(w, r, id)
		case http.MethodPut:
			s.handleInstallationUpdate(w, r, id)
		case http.MethodDelete:
			s.handleInstallationDelete(w, r, id)
		default:
			WriteRouteNotFound(w)
		}
	case "incidents":
		switch r.Method {
		case http.MethodGet:
			s.handleIncidentList(w, r, id)
		case http.MethodPost:
			s.handleIncidentCreate(w, r, id)
		default:
			WriteRouteNotFound(w)
		}
	default:
		WriteRouteNotFound(w)
	}
}

// routeIncidents dispatches /incidents/{id}/photos.
func (s *Server) routeIncidents(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/incidents/")
	segment, tail, _ := strings.Cut(rest, "/")

	id, ok := parsePositiveID(segment)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "id invalido")
		return
	}

	if tail != "photos" {
		WriteRouteNotFound(w)
		return
	}
	if r.Method != http.MethodPost {
		WriteRouteNotFound(w)
		return
	}
	s.handlePhotoUpload(w, r, id)
}

// routeWebUsers dispatches /web/auth/users/{id} and
// /web/auth/users/{id}/force-password.
func (s *Server) routeWebUsers(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/web/auth/users/")
	segment, tail, _ := strings.Cut(rest, "/")

	id, ok := parsePositiveID(segment)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "id invalido")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodPatch:
		s.handleWebUserUpdate(w, r, id)
	case tail == "force-password" && r.Method == http.MethodPost:
		s.handleWebUserForcePassword(w, r, id)
	default:
		WriteRouteNotFound(w)
	}
}

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/instalog/internal/auth"
	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

type incidentPayload struct {
	ReporterUsername      *string `json:"reporter_username"`
	Note                  string  `json:"note"`
	TimeAdjustmentSeconds int64   `json:"time_adjustment_seconds"`
	Severity              string  `json:"severity"`
	Source                *string `json:"source"`
	ApplyToInstallation   bool    `json:"apply_to_installation"`
}

// handleIncidentCreate serves POST /installations/{id}/incidents.
// Incidents are immutable once created; with apply_to_installation the
// parent record's notes and time are patched as a side effect.
func (s *Server) handleIncidentCreate(w http.ResponseWriter, r *http.Request, installationID int64) {
	var payload incidentPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	if strings.TrimSpace(payload.Note) == "" {
		WriteAPIError(w, http.StatusBadRequest, "note es obligatorio")
		return
	}
	if len(payload.Note) > models.MaxIncidentNoteLength {
		WriteAPIError(w, http.StatusBadRequest, "note supera el maximo de 5000 caracteres")
		return
	}
	if payload.TimeAdjustmentSeconds < -models.MaxTimeAdjustmentSeconds ||
		payload.TimeAdjustmentSeconds > models.MaxTimeAdjustmentSeconds {
		WriteAPIError(w, http.StatusBadRequest, "time_adjustment_seconds fuera de rango")
		return
	}
	if !models.ValidSeverity(payload.Severity) {
		WriteAPIError(w, http.StatusBadRequest, "severity invalida")
		return
	}

	// Defaults depend on which auth path admitted the request.
	ra := auth.RequestAuthFromContext(r.Context())
	reporter := "unknown"
	source := models.SourceMobile
	if ra.IsWebSession() {
		reporter = ra.User.Username
		source = models.SourceWeb
	}
	if payload.ReporterUsername != nil && strings.TrimSpace(*payload.ReporterUsername) != "" {
		reporter = strings.TrimSpace(*payload.ReporterUsername)
	}
	if payload.Source != nil && *payload.Source != "" {
		if !models.ValidSource(*payload.Source) {
			WriteAPIError(w, http.StatusBadRequest, "source invalido")
			return
		}
		source = *payload.Source
	}

	if _, err := s.app.Storage.Installations().Get(r.Context(), installationID); err != nil {
		if err == sqlite.ErrNotFound {
			WriteAPIError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		s.logger.Error().Err(err).Int64("id", installationID).Msg("Failed to get installation")
		WriteUnexpectedError(w, err.Error())
		return
	}

	inc := &models.Incident{
		InstallationID:        installationID,
		ReporterUsername:      reporter,
		Note:                  payload.Note,
		TimeAdjustmentSeconds: payload.TimeAdjustmentSeconds,
		Severity:              payload.Severity,
		Source:                source,
		CreatedAt:             time.Now().UTC(),
	}

	if _, err := s.app.Storage.Incidents().Insert(r.Context(), inc); err != nil {
		s.logger.Error().Err(err).Int64("installation_id", installationID).Msg("Failed to insert incident")
		WriteUnexpectedError(w, err.Error())
		return
	}

	if payload.ApplyToInstallation {
		err := s.app.Storage.Installations().ApplyIncidentAdjustment(
			r.Context(), installationID, payload.Note, payload.TimeAdjustmentSeconds)
		if err != nil {
			s.logger.Error().Err(err).Int64("installation_id", installationID).Msg("Failed to apply incident adjustment")
			WriteUnexpectedError(w, err.Error())
			return
		}
	}

	WriteJSON(w, http.StatusCreated, inc)
}

// handleIncidentList serves GET /installations/{id}/incidents with photos
// nested under each incident.
func (s *Server) handleIncidentList(w http.ResponseWriter, r *http.Request, installationID int64) {
	if _, err := s.app.Storage.Installations().Get(r.Context(), installationID); err != nil {
		if err == sqlite.ErrNotFound {
			WriteAPIError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		s.logger.Error().Err(err).Int64("id", installationID).Msg("Failed to get installation")
		WriteUnexpectedError(w, err.Error())
		return
	}

	incidents, err := s.app.Storage.Incidents().ListByInstallation(r.Context(), installationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("installation_id", installationID).Msg("Failed to list incidents")
		WriteUnexpectedError(w, err.Error())
		return
	}

	photos, err := s.app.Storage.Incidents().ListPhotosByInstallation(r.Context(), installationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("installation_id", installationID).Msg("Failed to list incident photos")
		WriteUnexpectedError(w, err.Error())
		return
	}

	// Group photos under their incident, preserving photo order.
	byIncident := make(map[int64][]*models.IncidentPhoto, len(incidents))
	for _, photo := range photos {
		byIncident[photo.IncidentID] = append(byIncident[photo.IncidentID], photo)
	}

	result := make([]*models.IncidentWithPhotos, 0, len(incidents))
	for _, inc := range incidents {
		nested := byIncident[inc.ID]
		if nested == nil {
			nested = []*models.IncidentPhoto{}
		}
		result = append(result, &models.IncidentWithPhotos{Incident: *inc, Photos: nested})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"installation_id": installationID,
		"incidents":       result,
	})
}

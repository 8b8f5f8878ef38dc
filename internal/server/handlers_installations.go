package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

// installationPayload is the flexible insert shape accepted from installer
// agents. Absent fields get normalized defaults.
type installationPayload struct {
	Timestamp               *string `json:"timestamp"`
	DriverBrand             *string `json:"driver_brand"`
	DriverVersion           *string `json:"driver_version"`
	Status                  *string `json:"status"`
	ClientName              *string `json:"client_name"`
	DriverDescription       *string `json:"driver_description"`
	InstallationTimeSeconds *int64  `json:"installation_time_seconds"`
	OSInfo                  *string `json:"os_info"`
	Notes                   *string `json:"notes"`
}

func stringOr(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

// toInstallation normalizes the payload. defaults supplies the per-route
// placeholder values; unset entries fall back to the empty string.
func (p *installationPayload) toInstallation(defaults map[string]string) (*models.Installation, error) {
	inst := &models.Installation{
		DriverBrand:       stringOr(p.DriverBrand, defaults["driver_brand"]),
		DriverVersion:     stringOr(p.DriverVersion, defaults["driver_version"]),
		Status:            stringOr(p.Status, defaults["status"]),
		ClientName:        stringOr(p.ClientName, defaults["client_name"]),
		DriverDescription: stringOr(p.DriverDescription, ""),
		OSInfo:            stringOr(p.OSInfo, defaults["os_info"]),
		Notes:             stringOr(p.Notes, ""),
	}
	if p.InstallationTimeSeconds != nil {
		if *p.InstallationTimeSeconds < 0 {
			return nil, fmt.Errorf("installation_time_seconds debe ser no negativo")
		}
		inst.InstallationTimeSeconds = *p.InstallationTimeSeconds
	}
	if p.Timestamp != nil && *p.Timestamp != "" {
		t, err := parseDateParam(*p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("timestamp invalido")
		}
		inst.Timestamp = t
	} else {
		inst.Timestamp = time.Now().UTC()
	}
	return inst, nil
}

// parseDateParam accepts an RFC 3339 instant or a bare date.
func parseDateParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// parseInstallationFilter builds the listing filter from query parameters.
func parseInstallationFilter(r *http.Request) (*models.InstallationFilter, error) {
	q := r.URL.Query()
	f := &models.InstallationFilter{
		Brand:      q.Get("brand"),
		Status:     q.Get("status"),
		ClientName: q.Get("client_name"),
	}
	if v := q.Get("start_date"); v != "" {
		t, err := parseDateParam(v)
		if err != nil {
			return nil, fmt.Errorf("start_date invalida")
		}
		f.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDateParam(v)
		if err != nil {
			return nil, fmt.Errorf("end_date invalida")
		}
		f.EndDate = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("limit invalido")
		}
		f.Limit = n
	}
	return f, nil
}

// handleInstallations serves GET (list with filters) and POST (create) on
// /installations.
func (s *Server) handleInstallations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleInstallationList(w, r)
	case http.MethodPost:
		s.handleInstallationCreate(w, r)
	default:
		WriteRouteNotFound(w)
	}
}

func (s *Server) handleInstallationList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInstallationFilter(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	installations, err := s.app.Storage.Installations().List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list installations")
		WriteUnexpectedError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, filter.Apply(installations))
}

func (s *Server) handleInstallationCreate(w http.ResponseWriter, r *http.Request) {
	var payload installationPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	inst, err := payload.toInstallation(map[string]string{
		"status": models.StatusUnknown,
	})
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.app.Storage.Installations().Insert(r.Context(), inst); err != nil {
		s.logger.Error().Err(err).Msg("Failed to insert installation")
		WriteUnexpectedError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

// handleRecords serves POST /records, the manual-entry variant with
// placeholder defaults.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteRouteNotFound(w)
		return
	}

	var payload installationPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	inst, err := payload.toInstallation(map[string]string{
		"driver_brand":   "N/A",
		"driver_version": "N/A",
		"client_name":    "Sin cliente",
		"status":         models.StatusManual,
		"os_info":        "manual",
	})
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.app.Storage.Installations().Insert(r.Context(), inst); err != nil {
		s.logger.Error().Err(err).Msg("Failed to insert manual record")
		WriteUnexpectedError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"record":  inst,
	})
}

func (s *Server) handleInstallationGet(w http.ResponseWriter, r *http.Request, id int64) {
	inst, err := s.app.Storage.Installations().Get(r.Context(), id)
	if err == sqlite.ErrNotFound {
		WriteAPIError(w, http.StatusNotFound, "registro no encontrado")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to get installation")
		WriteUnexpectedError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, inst)
}

func (s *Server) handleInstallationUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	var upd models.InstallationUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}
	if upd.InstallationTimeSeconds != nil && *upd.InstallationTimeSeconds < 0 {
		WriteAPIError(w, http.StatusBadRequest, "installation_time_seconds debe ser no negativo")
		return
	}

	found, err := s.app.Storage.Installations().Update(r.Context(), id, &upd)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to update installation")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if !found {
		WriteAPIError(w, http.StatusNotFound, "registro no encontrado")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleInstallationDelete(w http.ResponseWriter, r *http.Request, id int64) {
	found, err := s.app.Storage.Installations().Delete(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to delete installation")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if !found {
		WriteAPIError(w, http.StatusNotFound, "registro no encontrado")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Registro %d eliminado.", id),
	})
}

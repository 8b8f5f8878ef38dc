package server

import (
	"net/http"

	"github.com/fieldops/instalog/internal/stats"
)

// handleStatistics serves GET /statistics over the filtered installation set.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRouteNotFound(w)
		return
	}

	filter, err := parseInstallationFilter(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	installations, err := s.app.Storage.Installations().List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list installations for statistics")
		WriteUnexpectedError(w, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, stats.Compute(filter.Apply(installations)))
}

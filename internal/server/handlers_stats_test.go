package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/fieldops/instalog/internal/models"
)

func TestStatistics_OverFilteredSet(t *testing.T) {
	srv := newTestServer(t)

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	seedInstallation(t, srv, &models.Installation{
		Timestamp: base, DriverBrand: "Zebra", DriverVersion: "5.1",
		Status: "success", ClientName: "Acme", InstallationTimeSeconds: 60,
	})
	seedInstallation(t, srv, &models.Installation{
		Timestamp: base.Add(24 * time.Hour), DriverBrand: "Zebra", DriverVersion: "5.1",
		Status: "failed", ClientName: "Initech", InstallationTimeSeconds: 120,
	})
	seedInstallation(t, srv, &models.Installation{
		Timestamp: base.Add(48 * time.Hour), DriverBrand: "Magicard", DriverVersion: "2.0",
		Status: "success", ClientName: "Acme",
	})

	rec := do(srv, signedRequest(t, http.MethodGet, "/statistics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var s models.Statistics
	decodeBody(t, rec, &s)
	if s.TotalInstallations != 3 || s.SuccessfulInstallations != 2 || s.FailedInstallations != 1 {
		t.Errorf("totals = %+v", s)
	}
	if s.SuccessRate != 66.67 {
		t.Errorf("success_rate = %v", s.SuccessRate)
	}
	if s.AverageTimeMinutes != 1.5 {
		t.Errorf("average_time_minutes = %v", s.AverageTimeMinutes)
	}
	if s.UniqueClients != 2 {
		t.Errorf("unique_clients = %d", s.UniqueClients)
	}
	if s.ByBrand["Zebra"] != 2 || s.TopDrivers["Zebra 5.1"] != 2 {
		t.Errorf("brand breakdown = %v %v", s.ByBrand, s.TopDrivers)
	}

	// Same filters as the listing endpoint.
	rec = do(srv, signedRequest(t, http.MethodGet, "/statistics?brand=magicard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered status = %d", rec.Code)
	}
	decodeBody(t, rec, &s)
	if s.TotalInstallations != 1 || s.ByBrand["Magicard"] != 1 {
		t.Errorf("filtered stats = %+v", s)
	}

	rec = do(srv, signedRequest(t, http.MethodGet, "/statistics?start_date=hoy", nil))
	assertEnvelopeError(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestStatistics_EmptySet(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, signedRequest(t, http.MethodGet, "/statistics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s models.Statistics
	decodeBody(t, rec, &s)
	if s.TotalInstallations != 0 || s.SuccessRate != 0 || s.ByBrand == nil {
		t.Errorf("empty stats = %+v", s)
	}
}

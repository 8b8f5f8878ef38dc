// Package stats computes aggregate statistics over filtered installation
// listings.
package stats

import (
	"math"
	"strings"

	"github.com/fieldops/instalog/internal/models"
)

// Compute aggregates the given installations. The caller applies filters
// before calling; Compute sees the final set.
func Compute(installations []*models.Installation) *models.Statistics {
	s := &models.Statistics{
		ByBrand:    map[string]int{},
		TopDrivers: map[string]int{},
	}

	clients := map[string]struct{}{}
	var timedSum int64
	var timedCount int

	for _, inst := range installations {
		s.TotalInstallations++
		switch inst.Status {
		case models.StatusSuccess:
			s.SuccessfulInstallations++
		case models.StatusFailed:
			s.FailedInstallations++
		}

		if inst.InstallationTimeSeconds > 0 {
			timedSum += inst.InstallationTimeSeconds
			timedCount++
		}

		if client := strings.TrimSpace(inst.ClientName); client != "" {
			clients[client] = struct{}{}
		}

		if inst.DriverBrand != "" {
			s.ByBrand[inst.DriverBrand]++
		}
		if key := strings.TrimSpace(inst.DriverBrand + " " + inst.DriverVersion); key != "" {
			s.TopDrivers[key]++
		}
	}

	s.UniqueClients = len(clients)

	if s.TotalInstallations > 0 {
		s.SuccessRate = round2(float64(s.SuccessfulInstallations) / float64(s.TotalInstallations) * 100)
	}
	if timedCount > 0 {
		s.AverageTimeMinutes = round2(float64(timedSum) / float64(timedCount) / 60)
	}

	return s
}

// round2 rounds half away from zero to 2 decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package models

import (
	"strings"
	"time"
)

// Installation statuses recorded by installer agents. The status column is
// an open string; these are the values the clients are known to send.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
	StatusManual  = "manual"
)

// Installation represents one attempt to install a device driver at a
// client site.
type Installation struct {
	ID                      int64     `json:"id"`
	Timestamp               time.Time `json:"timestamp"`
	DriverBrand             string    `json:"driver_brand"`
	DriverVersion           string    `json:"driver_version"`
	Status                  string    `json:"status"`
	ClientName              string    `json:"client_name"`
	DriverDescription       string    `json:"driver_description"`
	InstallationTimeSeconds int64     `json:"installation_time_seconds"`
	OSInfo                  string    `json:"os_info"`
	Notes                   string    `json:"notes"`
}

// InstallationFilter holds the query-parameter filters applied to
// installation listings and statistics.
type InstallationFilter struct {
	Brand      string
	Status     string
	ClientName string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
}

// Matches reports whether the installation passes the filter, ignoring Limit.
// Date bounds are semi-closed: [start, end).
func (f *InstallationFilter) Matches(inst *Installation) bool {
	if f.Brand != "" && !strings.EqualFold(inst.DriverBrand, f.Brand) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(inst.Status, f.Status) {
		return false
	}
	if f.ClientName != "" && !strings.Contains(strings.ToLower(inst.ClientName), strings.ToLower(f.ClientName)) {
		return false
	}
	if f.StartDate != nil && inst.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && !inst.Timestamp.Before(*f.EndDate) {
		return false
	}
	return true
}

// Apply filters and truncates a listing. The input is assumed to already be
// in the desired order (timestamp descending).
func (f *InstallationFilter) Apply(installations []*Installation) []*Installation {
	result := make([]*Installation, 0, len(installations))
	for _, inst := range installations {
		if f.Matches(inst) {
			result = append(result, inst)
		}
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result
}

// InstallationUpdate carries the two post-hoc updatable fields.
// Nil fields are left unchanged.
type InstallationUpdate struct {
	Notes                   *string `json:"notes"`
	InstallationTimeSeconds *int64  `json:"installation_time_seconds"`
}

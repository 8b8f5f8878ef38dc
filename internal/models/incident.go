package models

import "time"

// Incident severity and source enums.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	SourceDesktop = "desktop"
	SourceMobile  = "mobile"
	SourceWeb     = "web"
)

// Incident field bounds.
const (
	MaxIncidentNoteLength    = 5000
	MaxTimeAdjustmentSeconds = 86400
)

// ValidSeverity reports whether s is one of the accepted severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidSource reports whether s is one of the accepted incident sources.
func ValidSource(s string) bool {
	switch s {
	case SourceDesktop, SourceMobile, SourceWeb:
		return true
	}
	return false
}

// Incident is a follow-up observation attached to an installation.
// Immutable after creation.
type Incident struct {
	ID                    int64     `json:"id"`
	InstallationID        int64     `json:"installation_id"`
	ReporterUsername      string    `json:"reporter_username"`
	Note                  string    `json:"note"`
	TimeAdjustmentSeconds int64     `json:"time_adjustment_seconds"`
	Severity              string    `json:"severity"`
	Source                string    `json:"source"`
	CreatedAt             time.Time `json:"created_at"`
}

// IncidentWithPhotos is the nested listing shape returned by the
// incidents-per-installation endpoint.
type IncidentWithPhotos struct {
	Incident
	Photos []*IncidentPhoto `json:"photos"`
}

// Photo content types accepted for upload, and their size bounds.
const (
	MinPhotoSizeBytes = 1024
	MaxPhotoSizeBytes = 5 * 1024 * 1024
)

// AllowedPhotoContentTypes maps accepted content types to file extensions.
var AllowedPhotoContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// IncidentPhoto is the metadata row for a stored photo blob. The blob at
// R2Key is logically owned by the row.
type IncidentPhoto struct {
	ID          int64     `json:"id"`
	IncidentID  int64     `json:"incident_id"`
	R2Key       string    `json:"r2_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

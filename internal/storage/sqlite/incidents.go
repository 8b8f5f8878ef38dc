package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/instalog/internal/models"
)

type incidentStore struct {
	db *sql.DB
}

const incidentColumns = `id, installation_id, reporter_username, note,
	time_adjustment_seconds, severity, source, created_at`

func scanIncident(row interface{ Scan(...any) error }) (*models.Incident, error) {
	var inc models.Incident
	var created string
	err := row.Scan(&inc.ID, &inc.InstallationID, &inc.ReporterUsername, &inc.Note,
		&inc.TimeAdjustmentSeconds, &inc.Severity, &inc.Source, &created)
	if err != nil {
		return nil, err
	}
	inc.CreatedAt = parseTime(created)
	return &inc, nil
}

func (s *incidentStore) Insert(ctx context.Context, inc *models.Incident) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (installation_id, reporter_username, note,
			time_adjustment_seconds, severity, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inc.InstallationID, inc.ReporterUsername, inc.Note,
		inc.TimeAdjustmentSeconds, inc.Severity, inc.Source, formatTime(inc.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read incident id: %w", err)
	}
	inc.ID = id
	return id, nil
}

func (s *incidentStore) Get(ctx context.Context, id int64) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident %d: %w", id, err)
	}
	return inc, nil
}

func (s *incidentStore) ListByInstallation(ctx context.Context, installationID int64) ([]*models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE installation_id = ?
		ORDER BY created_at DESC, id DESC`, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var result []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		result = append(result, inc)
	}
	return result, rows.Err()
}

// ListPhotosByInstallation joins photos through incidents in one query so
// the listing endpoint groups server-side without N+1 lookups.
func (s *incidentStore) ListPhotosByInstallation(ctx context.Context, installationID int64) ([]*models.IncidentPhoto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.incident_id, p.r2_key, p.file_name, p.content_type,
			p.size_bytes, p.sha256, p.created_at
		FROM incident_photos p
		JOIN incidents i ON i.id = p.incident_id
		WHERE i.installation_id = ?
		ORDER BY p.created_at ASC, p.id ASC`, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident photos: %w", err)
	}
	defer rows.Close()

	var result []*models.IncidentPhoto
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		result = append(result, photo)
	}
	return result, rows.Err()
}

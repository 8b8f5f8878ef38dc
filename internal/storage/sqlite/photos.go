package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/instalog/internal/models"
)

type photoStore struct {
	db *sql.DB
}

func scanPhoto(row interface{ Scan(...any) error }) (*models.IncidentPhoto, error) {
	var photo models.IncidentPhoto
	var created string
	err := row.Scan(&photo.ID, &photo.IncidentID, &photo.R2Key, &photo.FileName,
		&photo.ContentType, &photo.SizeBytes, &photo.SHA256, &created)
	if err != nil {
		return nil, err
	}
	photo.CreatedAt = parseTime(created)
	return &photo, nil
}

func (s *photoStore) Insert(ctx context.Context, photo *models.IncidentPhoto) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_photos (incident_id, r2_key, file_name, content_type,
			size_bytes, sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		photo.IncidentID, photo.R2Key, photo.FileName, photo.ContentType,
		photo.SizeBytes, photo.SHA256, formatTime(photo.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert photo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read photo id: %w", err)
	}
	photo.ID = id
	return id, nil
}

func (s *photoStore) Get(ctx context.Context, id int64) (*models.IncidentPhoto, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, incident_id, r2_key, file_name, content_type, size_bytes, sha256, created_at
		FROM incident_photos WHERE id = ?`, id)
	photo, err := scanPhoto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	return photo, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/instalog/internal/models"
)

type installationStore struct {
	db *sql.DB
}

const installationColumns = `id, timestamp, driver_brand, driver_version, status, client_name,
	driver_description, installation_time_seconds, os_info, notes`

func scanInstallation(row interface{ Scan(...any) error }) (*models.Installation, error) {
	var inst models.Installation
	var ts string
	err := row.Scan(&inst.ID, &ts, &inst.DriverBrand, &inst.DriverVersion, &inst.Status,
		&inst.ClientName, &inst.DriverDescription, &inst.InstallationTimeSeconds,
		&inst.OSInfo, &inst.Notes)
	if err != nil {
		return nil, err
	}
	inst.Timestamp = parseTime(ts)
	return &inst, nil
}

func (s *installationStore) Insert(ctx context.Context, inst *models.Installation) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO installations (timestamp, driver_brand, driver_version, status, client_name,
			driver_description, installation_time_seconds, os_info, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(inst.Timestamp), inst.DriverBrand, inst.DriverVersion, inst.Status,
		inst.ClientName, inst.DriverDescription, inst.InstallationTimeSeconds,
		inst.OSInfo, inst.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert installation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read installation id: %w", err)
	}
	inst.ID = id
	return id, nil
}

func (s *installationStore) List(ctx context.Context) ([]*models.Installation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+installationColumns+`
		FROM installations
		ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	defer rows.Close()

	var result []*models.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installation: %w", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (s *installationStore) Get(ctx context.Context, id int64) (*models.Installation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+installationColumns+`
		FROM installations WHERE id = ?`, id)
	inst, err := scanInstallation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation %d: %w", id, err)
	}
	return inst, nil
}

// Update binds NULL for absent fields; COALESCE keeps the stored value.
func (s *installationStore) Update(ctx context.Context, id int64, upd *models.InstallationUpdate) (bool, error) {
	var notes sql.NullString
	if upd.Notes != nil {
		notes = sql.NullString{String: *upd.Notes, Valid: true}
	}
	var seconds sql.NullInt64
	if upd.InstallationTimeSeconds != nil {
		seconds = sql.NullInt64{Int64: *upd.InstallationTimeSeconds, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE installations
		SET notes = COALESCE(?, notes),
			installation_time_seconds = COALESCE(?, installation_time_seconds)
		WHERE id = ?`, notes, seconds, id)
	if err != nil {
		return false, fmt.Errorf("failed to update installation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *installationStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete installation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplyIncidentAdjustment patches the parent installation after an incident
// with apply_to_installation. Concurrent callers race last-writer-wins,
// which is acceptable: the incident rows themselves are durable.
func (s *installationStore) ApplyIncidentAdjustment(ctx context.Context, id int64, note string, adjustmentSeconds int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin adjustment: %w", err)
	}
	defer tx.Rollback()

	var notes string
	var seconds int64
	err = tx.QueryRowContext(ctx,
		`SELECT notes, installation_time_seconds FROM installations WHERE id = ?`, id).
		Scan(&notes, &seconds)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read installation %d: %w", id, err)
	}

	marker := "[INCIDENT] " + note
	if notes == "" {
		notes = note
	} else {
		notes = notes + "\n" + marker
	}

	seconds += adjustmentSeconds
	if seconds < 0 {
		seconds = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE installations SET notes = ?, installation_time_seconds = ? WHERE id = ?`,
		notes, seconds, id)
	if err != nil {
		return fmt.Errorf("failed to apply adjustment to installation %d: %w", id, err)
	}

	return tx.Commit()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/instalog/internal/models"
)

type auditStore struct {
	db *sql.DB
}

func (s *auditStore) Insert(ctx context.Context, entry *models.AuditLog) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (timestamp, action, username, success, details,
			computer_name, ip_address, platform)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(entry.Timestamp), entry.Action, entry.Username, entry.Success,
		entry.Details, entry.ComputerName, entry.IPAddress, entry.Platform)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit log id: %w", err)
	}
	entry.ID = id
	return id, nil
}

func (s *auditStore) List(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, username, success, details,
			computer_name, ip_address, platform
		FROM audit_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var ts string
		if err := rows.Scan(&entry.ID, &ts, &entry.Action, &entry.Username, &entry.Success,
			&entry.Details, &entry.ComputerName, &entry.IPAddress, &entry.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entry.Timestamp = parseTime(ts)
		result = append(result, &entry)
	}
	return result, rows.Err()
}

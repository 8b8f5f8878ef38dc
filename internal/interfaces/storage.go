// Package interfaces defines storage contracts for the instalog server.
package interfaces

import (
	"context"

	"github.com/fieldops/instalog/internal/models"
)

// StorageManager coordinates the relational stores and the blob store.
type StorageManager interface {
	Installations() InstallationStore
	Incidents() IncidentStore
	Photos() PhotoStore
	Users() UserStore
	AuditLogs() AuditStore

	Close() error
}

// InstallationStore manages installation records.
type InstallationStore interface {
	Insert(ctx context.Context, inst *models.Installation) (int64, error)
	// List returns all installations ordered by timestamp descending,
	// then id descending. Filtering happens in the router.
	List(ctx context.Context) ([]*models.Installation, error)
	Get(ctx context.Context, id int64) (*models.Installation, error)
	// Update applies the post-hoc updatable fields. Nil fields bind SQL
	// NULL and leave the column unchanged.
	Update(ctx context.Context, id int64, upd *models.InstallationUpdate) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	// ApplyIncidentAdjustment appends the incident marker to notes and
	// clamps installation_time_seconds at zero after the adjustment.
	ApplyIncidentAdjustment(ctx context.Context, id int64, note string, adjustmentSeconds int64) error
}

// IncidentStore manages incidents and their photo listings.
type IncidentStore interface {
	Insert(ctx context.Context, inc *models.Incident) (int64, error)
	Get(ctx context.Context, id int64) (*models.Incident, error)
	// ListByInstallation returns incidents ordered created_at DESC, id DESC.
	ListByInstallation(ctx context.Context, installationID int64) ([]*models.Incident, error)
	// ListPhotosByInstallation returns photos of all the installation's
	// incidents ordered created_at ASC, id ASC.
	ListPhotosByInstallation(ctx context.Context, installationID int64) ([]*models.IncidentPhoto, error)
}

// PhotoStore manages incident photo metadata rows.
type PhotoStore interface {
	Insert(ctx context.Context, photo *models.IncidentPhoto) (int64, error)
	Get(ctx context.Context, id int64) (*models.IncidentPhoto, error)
}

// UserStore manages web console accounts.
type UserStore interface {
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id int64) (*models.WebUser, error)
	// GetByUsername looks up by lowercased username.
	GetByUsername(ctx context.Context, username string) (*models.WebUser, error)
	Insert(ctx context.Context, user *models.WebUser) (int64, error)
	// List returns users ordered by username ascending.
	List(ctx context.Context) ([]*models.WebUser, error)
	Update(ctx context.Context, id int64, upd *models.WebUserUpdate) (bool, error)
	// UpdatePassword sets hash and hash type atomically.
	UpdatePassword(ctx context.Context, id int64, hash, hashType string) error
	UpdateLastLogin(ctx context.Context, id int64) error
}

// AuditStore is the append-only audit event log.
type AuditStore interface {
	Insert(ctx context.Context, entry *models.AuditLog) (int64, error)
	// List returns newest-first by (timestamp DESC, id DESC).
	List(ctx context.Context, limit int) ([]*models.AuditLog, error)
}

// BlobStore stores photo bytes under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the stored bytes and content type.
	Get(ctx context.Context, key string) ([]byte, string, error)
	Has(ctx context.Context, key string) (bool, error)
}

// RateLimiter counts failed login attempts per (ip, username) key with a
// TTL. A disabled limiter never blocks.
type RateLimiter interface {
	Enabled() bool
	Attempts(ctx context.Context, key string) (int64, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

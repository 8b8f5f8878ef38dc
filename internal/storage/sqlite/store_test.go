package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(common.NewSilentLogger(), ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertInstallation(t *testing.T, store *Store, inst *models.Installation) int64 {
	t.Helper()
	if inst.Timestamp.IsZero() {
		inst.Timestamp = time.Now().UTC()
	}
	id, err := store.Installations().Insert(context.Background(), inst)
	if err != nil {
		t.Fatalf("insert installation: %v", err)
	}
	return id
}

func TestInstallations_InsertGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 7, 10, 9, 30, 0, 0, time.UTC)
	id := insertInstallation(t, store, &models.Installation{
		Timestamp:               ts,
		DriverBrand:             "Zebra",
		DriverVersion:           "5.1",
		Status:                  models.StatusSuccess,
		ClientName:              "Acme",
		InstallationTimeSeconds: 120,
		OSInfo:                  "Windows 11",
		Notes:                   "nota inicial",
	})

	got, err := store.Installations().Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DriverBrand != "Zebra" || got.ClientName != "Acme" || got.Notes != "nota inicial" {
		t.Errorf("unexpected row %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}

	if _, err := store.Installations().Get(ctx, 9999); err != ErrNotFound {
		t.Errorf("missing row: err = %v, want ErrNotFound", err)
	}
}

func TestInstallations_ListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	insertInstallation(t, store, &models.Installation{Timestamp: old, DriverBrand: "A"})
	insertInstallation(t, store, &models.Installation{Timestamp: recent, DriverBrand: "B"})
	insertInstallation(t, store, &models.Installation{Timestamp: recent, DriverBrand: "C"})

	rows, err := store.Installations().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// Newest timestamp first, ties broken by id descending.
	if rows[0].DriverBrand != "C" || rows[1].DriverBrand != "B" || rows[2].DriverBrand != "A" {
		t.Errorf("unexpected order: %s, %s, %s", rows[0].DriverBrand, rows[1].DriverBrand, rows[2].DriverBrand)
	}
}

func TestInstallations_UpdatePartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertInstallation(t, store, &models.Installation{
		Notes:                   "original",
		InstallationTimeSeconds: 100,
	})

	notes := "actualizado"
	found, err := store.Installations().Update(ctx, id, &models.InstallationUpdate{Notes: &notes})
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}

	got, err := store.Installations().Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Notes != "actualizado" {
		t.Errorf("notes = %q", got.Notes)
	}
	if got.InstallationTimeSeconds != 100 {
		t.Errorf("seconds changed to %d, want 100 untouched", got.InstallationTimeSeconds)
	}

	found, err = store.Installations().Update(ctx, 9999, &models.InstallationUpdate{Notes: &notes})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if found {
		t.Error("update of missing row reported found")
	}
}

func TestInstallations_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertInstallation(t, store, &models.Installation{})

	found, err := store.Installations().Delete(ctx, id)
	if err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}
	if _, err := store.Installations().Get(ctx, id); err != ErrNotFound {
		t.Errorf("deleted row still readable: %v", err)
	}

	found, err = store.Installations().Delete(ctx, id)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if found {
		t.Error("second delete reported found")
	}
}

func TestInstallations_ApplyIncidentAdjustment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertInstallation(t, store, &models.Installation{
		Notes:                   "nota inicial",
		InstallationTimeSeconds: 120,
	})

	if err := store.Installations().ApplyIncidentAdjustment(ctx, id, "Fallo", 30); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := store.Installations().Get(ctx, id)
	if got.Notes != "nota inicial\n[INCIDENT] Fallo" {
		t.Errorf("notes = %q", got.Notes)
	}
	if got.InstallationTimeSeconds != 150 {
		t.Errorf("seconds = %d, want 150", got.InstallationTimeSeconds)
	}

	// Negative adjustments clamp at zero.
	if err := store.Installations().ApplyIncidentAdjustment(ctx, id, "Reajuste", -500); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ = store.Installations().Get(ctx, id)
	if got.InstallationTimeSeconds != 0 {
		t.Errorf("seconds = %d, want clamped 0", got.InstallationTimeSeconds)
	}
	if got.Notes != "nota inicial\n[INCIDENT] Fallo\n[INCIDENT] Reajuste" {
		t.Errorf("notes = %q", got.Notes)
	}
}

func TestInstallations_ApplyIncidentAdjustment_EmptyNotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertInstallation(t, store, &models.Installation{})

	if err := store.Installations().ApplyIncidentAdjustment(ctx, id, "Primera nota", 10); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := store.Installations().Get(ctx, id)
	// No marker prefix when the notes column was empty.
	if got.Notes != "Primera nota" {
		t.Errorf("notes = %q", got.Notes)
	}
}

func TestIncidents_InsertListNested(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	instID := insertInstallation(t, store, &models.Installation{})
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	first := &models.Incident{
		InstallationID: instID, ReporterUsername: "tech1", Note: "uno",
		Severity: models.SeverityLow, Source: models.SourceMobile, CreatedAt: base,
	}
	second := &models.Incident{
		InstallationID: instID, ReporterUsername: "tech2", Note: "dos",
		Severity: models.SeverityHigh, Source: models.SourceWeb, CreatedAt: base.Add(time.Hour),
	}
	if _, err := store.Incidents().Insert(ctx, first); err != nil {
		t.Fatalf("insert incident: %v", err)
	}
	if _, err := store.Incidents().Insert(ctx, second); err != nil {
		t.Fatalf("insert incident: %v", err)
	}

	incidents, err := store.Incidents().ListByInstallation(ctx, instID)
	if err != nil {
		t.Fatalf("list incidents: %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(incidents))
	}
	if incidents[0].Note != "dos" || incidents[1].Note != "uno" {
		t.Errorf("incidents not newest-first: %q, %q", incidents[0].Note, incidents[1].Note)
	}

	photoA := &models.IncidentPhoto{
		IncidentID: first.ID, R2Key: "k/a", FileName: "a.jpg", ContentType: "image/jpeg",
		SizeBytes: 2048, SHA256: "aa", CreatedAt: base,
	}
	photoB := &models.IncidentPhoto{
		IncidentID: first.ID, R2Key: "k/b", FileName: "b.jpg", ContentType: "image/jpeg",
		SizeBytes: 2048, SHA256: "bb", CreatedAt: base.Add(time.Minute),
	}
	if _, err := store.Photos().Insert(ctx, photoA); err != nil {
		t.Fatalf("insert photo: %v", err)
	}
	if _, err := store.Photos().Insert(ctx, photoB); err != nil {
		t.Fatalf("insert photo: %v", err)
	}

	photos, err := store.Incidents().ListPhotosByInstallation(ctx, instID)
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
	if photos[0].R2Key != "k/a" || photos[1].R2Key != "k/b" {
		t.Errorf("photos not oldest-first: %q, %q", photos[0].R2Key, photos[1].R2Key)
	}
}

func TestPhotos_InsertGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	photo := &models.IncidentPhoto{
		IncidentID:  7,
		R2Key:       "incidents/1/7/20260801T100000Z_abcd1234.jpg",
		FileName:    "evidencia.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   4096,
		SHA256:      "deadbeef",
		CreatedAt:   time.Now().UTC(),
	}
	id, err := store.Photos().Insert(ctx, photo)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Photos().Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.R2Key != photo.R2Key || got.SizeBytes != 4096 || got.SHA256 != "deadbeef" {
		t.Errorf("unexpected row %+v", got)
	}

	if _, err := store.Photos().Get(ctx, 9999); err != ErrNotFound {
		t.Errorf("missing photo: %v", err)
	}
}

func TestUsers_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.Users().Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("fresh count: n=%d err=%v", n, err)
	}

	user := &models.WebUser{
		Username:         "Alice",
		PasswordHash:     "pbkdf2_sha256$100000$c$d",
		PasswordHashType: models.HashTypePBKDF2,
		Role:             models.RoleAdmin,
		IsActive:         true,
	}
	if _, err := store.Users().Insert(ctx, user); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("username not lowercased: %q", user.Username)
	}

	// Lookup is case-insensitive via the lowercased column.
	got, err := store.Users().GetByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.Role != models.RoleAdmin || !got.IsActive {
		t.Errorf("unexpected user %+v", got)
	}
	if got.LastLoginAt != nil {
		t.Error("fresh user should have no last login")
	}

	// Duplicate usernames are rejected by the unique index.
	if _, err := store.Users().Insert(ctx, &models.WebUser{
		Username: "alice", PasswordHash: "x", PasswordHashType: models.HashTypePBKDF2,
		Role: models.RoleViewer, IsActive: true,
	}); err == nil {
		t.Error("duplicate insert should fail")
	}

	role := models.RoleViewer
	found, err := store.Users().Update(ctx, got.ID, &models.WebUserUpdate{Role: &role})
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	got, _ = store.Users().GetByID(ctx, got.ID)
	if got.Role != models.RoleViewer || !got.IsActive {
		t.Errorf("partial update wrong: %+v", got)
	}

	if err := store.Users().UpdatePassword(ctx, got.ID, "newhash", models.HashTypePBKDF2); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, _ = store.Users().GetByID(ctx, got.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("password hash = %q", got.PasswordHash)
	}
	if err := store.Users().UpdatePassword(ctx, 9999, "h", models.HashTypePBKDF2); err != ErrNotFound {
		t.Errorf("update password of missing user: %v", err)
	}

	if err := store.Users().UpdateLastLogin(ctx, got.ID); err != nil {
		t.Fatalf("update last login: %v", err)
	}
	got, _ = store.Users().GetByID(ctx, got.ID)
	if got.LastLoginAt == nil {
		t.Error("last login still nil")
	}
}

func TestUsers_ListOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := store.Users().Insert(ctx, &models.WebUser{
			Username: name, PasswordHash: "x", PasswordHashType: models.HashTypePBKDF2,
			Role: models.RoleViewer, IsActive: true,
		}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	users, err := store.Users().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	if users[0].Username != "alice" || users[1].Username != "bob" || users[2].Username != "carol" {
		t.Errorf("users not ordered: %s, %s, %s", users[0].Username, users[1].Username, users[2].Username)
	}
}

func TestAuditLogs_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := store.AuditLogs().Insert(ctx, &models.AuditLog{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Action:    "web_login",
			Username:  "alice",
			Success:   true,
		}); err != nil {
			t.Fatalf("insert audit: %v", err)
		}
	}

	logs, err := store.AuditLogs().List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if !logs[0].Timestamp.After(logs[1].Timestamp) {
		t.Errorf("not newest-first: %v then %v", logs[0].Timestamp, logs[1].Timestamp)
	}

	// Limit below one is clamped, not an error.
	logs, err = store.AuditLogs().List(ctx, 0)
	if err != nil {
		t.Fatalf("list with clamped limit: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("expected 1 log after clamp, got %d", len(logs))
	}
}

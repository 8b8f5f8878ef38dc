package server

import (
	"net/http"
	"strings"

	"github.com/fieldops/instalog/internal/auth"
	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

// requireAdmin returns the session user when it holds a user-management
// role, writing a 403 otherwise.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*models.WebUser, bool) {
	ra := auth.RequestAuthFromContext(r.Context())
	if !ra.IsWebSession() {
		WriteAPIError(w, http.StatusUnauthorized, "sesion invalida o expirada")
		return nil, false
	}
	if !models.IsAdminRole(ra.User.Role) {
		WriteAPIError(w, http.StatusForbidden, "permisos insuficientes")
		return nil, false
	}
	return ra.User, true
}

type createUserPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// handleWebUsers serves GET (list) and POST (create) on /web/auth/users.
func (s *Server) handleWebUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleWebUserList(w, r)
	case http.MethodPost:
		s.handleWebUserCreate(w, r)
	default:
		WriteRouteNotFound(w)
	}
}

func (s *Server) handleWebUserList(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	users, err := s.app.Storage.Users().List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if users == nil {
		users = []*models.WebUser{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"users":   users,
	})
}

func (s *Server) handleWebUserCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var payload createUserPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	username := strings.ToLower(strings.TrimSpace(payload.Username))
	if username == "" {
		WriteAPIError(w, http.StatusBadRequest, "username es obligatorio")
		return
	}
	if !models.ValidRole(payload.Role) {
		WriteAPIError(w, http.StatusBadRequest, "role invalido")
		return
	}
	if err := auth.ValidatePasswordPolicy(payload.Password); err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.app.Storage.Users().GetByUsername(r.Context(), username); err == nil {
		WriteAPIError(w, http.StatusConflict, "el usuario ya existe")
		return
	} else if err != sqlite.ErrNotFound {
		WriteUnexpectedError(w, err.Error())
		return
	}

	hash, err := auth.HashPasswordPBKDF2(payload.Password)
	if err != nil {
		WriteUnexpectedError(w, err.Error())
		return
	}

	user := &models.WebUser{
		Username:         username,
		PasswordHash:     hash,
		PasswordHashType: models.HashTypePBKDF2,
		Role:             payload.Role,
		IsActive:         true,
	}
	if _, err := s.app.Storage.Users().Insert(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to insert user")
		WriteUnexpectedError(w, err.Error())
		return
	}

	s.logger.Info().
		Str("username", username).
		Str("role", payload.Role).
		Str("created_by", caller.Username).
		Msg("Console user created")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// handleWebUserUpdate serves PATCH /web/auth/users/{id} for role and
// active-flag changes.
func (s *Server) handleWebUserUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var upd models.WebUserUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}
	if upd.Role != nil && !models.ValidRole(*upd.Role) {
		WriteAPIError(w, http.StatusBadRequest, "role invalido")
		return
	}

	target, err := s.app.Storage.Users().GetByID(r.Context(), id)
	if err == sqlite.ErrNotFound {
		WriteAPIError(w, http.StatusNotFound, "usuario no encontrado")
		return
	}
	if err != nil {
		WriteUnexpectedError(w, err.Error())
		return
	}

	demotes := upd.Role != nil && *upd.Role != target.Role
	deactivates := upd.IsActive != nil && !*upd.IsActive

	if target.Role == models.RoleSuperAdmin && (demotes || deactivates) {
		WriteAPIError(w, http.StatusForbidden, "no se puede modificar un super_admin")
		return
	}
	if target.ID == caller.ID && (demotes || deactivates) {
		WriteAPIError(w, http.StatusForbidden, "no puedes modificar tu propia cuenta")
		return
	}

	found, err := s.app.Storage.Users().Update(r.Context(), id, &upd)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to update user")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if !found {
		WriteAPIError(w, http.StatusNotFound, "usuario no encontrado")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type forcePasswordPayload struct {
	Password string `json:"password"`
}

// handleWebUserForcePassword serves POST /web/auth/users/{id}/force-password.
// Existing sessions of the target die on their next request through the
// active-user check.
func (s *Server) handleWebUserForcePassword(w http.ResponseWriter, r *http.Request, id int64) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var payload forcePasswordPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}
	if err := auth.ValidatePasswordPolicy(payload.Password); err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := s.app.Storage.Users().GetByID(r.Context(), id)
	if err == sqlite.ErrNotFound {
		WriteAPIError(w, http.StatusNotFound, "usuario no encontrado")
		return
	}
	if err != nil {
		WriteUnexpectedError(w, err.Error())
		return
	}

	hash, err := auth.HashPasswordPBKDF2(payload.Password)
	if err != nil {
		WriteUnexpectedError(w, err.Error())
		return
	}
	if err := s.app.Storage.Users().UpdatePassword(r.Context(), id, hash, models.HashTypePBKDF2); err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to force password")
		WriteUnexpectedError(w, err.Error())
		return
	}

	s.recordAuditEvent(r, "force_password", caller.Username, true,
		map[string]interface{}{"target": target.Username})

	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type importUsersPayload struct {
	Users []models.ImportedUser `json:"users"`
}

// handleWebImportUsers serves POST /web/auth/import-users. Hashes are
// accepted verbatim; bcrypt rows upgrade themselves on first login.
func (s *Server) handleWebImportUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteRouteNotFound(w)
		return
	}
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var payload importUsersPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}
	if len(payload.Users) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "users es obligatorio")
		return
	}

	imported := 0
	skipped := 0
	for _, entry := range payload.Users {
		username := strings.ToLower(strings.TrimSpace(entry.Username))
		if username == "" || entry.PasswordHash == "" ||
			(entry.PasswordHashType != models.HashTypePBKDF2 && entry.PasswordHashType != models.HashTypeBcrypt) ||
			!models.ValidRole(entry.Role) {
			skipped++
			continue
		}
		if _, err := s.app.Storage.Users().GetByUsername(r.Context(), username); err == nil {
			skipped++
			continue
		} else if err != sqlite.ErrNotFound {
			WriteUnexpectedError(w, err.Error())
			return
		}

		user := &models.WebUser{
			Username:         username,
			PasswordHash:     entry.PasswordHash,
			PasswordHashType: entry.PasswordHashType,
			Role:             entry.Role,
			IsActive:         entry.IsActive,
		}
		if _, err := s.app.Storage.Users().Insert(r.Context(), user); err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("Failed to import user")
			WriteUnexpectedError(w, err.Error())
			return
		}
		imported++
	}

	s.logger.Info().
		Int("imported", imported).
		Int("skipped", skipped).
		Str("by", caller.Username).
		Msg("User import finished")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
	})
}

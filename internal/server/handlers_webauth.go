package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/instalog/internal/auth"
	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/ratelimit"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

type bootstrapPayload struct {
	BootstrapSecret string `json:"bootstrap_secret"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Role            string `json:"role"`
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// mintToken signs a session token for the user, or writes a 503 when the
// signing secret is not configured.
func (s *Server) mintToken(w http.ResponseWriter, user *models.WebUser) (string, bool) {
	secret := s.app.Config.Auth.SessionSecret
	if secret == "" {
		WriteAPIError(w, http.StatusServiceUnavailable, "WEB_SESSION_SECRET no configurado")
		return "", false
	}
	token, err := auth.MintSessionToken([]byte(secret), user.Username, user.Role, time.Now(), s.app.Config.Auth.GetSessionTTL())
	if err != nil {
		WriteUnexpectedError(w, err.Error())
		return "", false
	}
	return token, true
}

// handleWebBootstrap serves POST /web/auth/bootstrap: one-shot creation of
// the first console account, gated by the shared secret and an empty users
// table.
func (s *Server) handleWebBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteRouteNotFound(w)
		return
	}

	var payload bootstrapPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	if s.app.Config.Auth.BootstrapSecret == "" {
		WriteAPIError(w, http.StatusServiceUnavailable, "WEB_LOGIN_PASSWORD no configurado")
		return
	}

	count, err := s.app.Storage.Users().Count(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if count > 0 {
		s.recordAuditEvent(r, "web_bootstrap", payload.Username, false,
			map[string]interface{}{"reason": "users_exist"})
		WriteAPIError(w, http.StatusForbidden, "bootstrap no disponible")
		return
	}

	if !auth.ConstantTimeEqual(payload.BootstrapSecret, s.app.Config.Auth.BootstrapSecret) {
		s.recordAuditEvent(r, "web_bootstrap", payload.Username, false,
			map[string]interface{}{"reason": "bad_secret"})
		WriteAPIError(w, http.StatusUnauthorized, "credenciales invalidas")
		return
	}

	username := strings.ToLower(strings.TrimSpace(payload.Username))
	if username == "" {
		WriteAPIError(w, http.StatusBadRequest, "username es obligatorio")
		return
	}
	role := payload.Role
	if role == "" {
		role = models.RoleAdmin
	}
	if !models.ValidRole(role) {
		WriteAPIError(w, http.StatusBadRequest, "role invalido")
		return
	}
	if err := auth.ValidatePasswordPolicy(payload.Password); err != nil {
		WriteAPIError(w, http.StatusBadRequest, err.Error())
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
		Role:             role,
		IsActive:         true,
	}
	if _, err := s.app.Storage.Users().Insert(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to insert bootstrap user")
		WriteUnexpectedError(w, err.Error())
		return
	}

	token, ok := s.mintToken(w, user)
	if !ok {
		return
	}

	if err := s.app.Storage.Users().UpdateLastLogin(r.Context(), user.ID); err != nil {
		s.logger.Warn().Err(err).Int64("id", user.ID).Msg("Failed to update last login")
	} else {
		now := time.Now().UTC()
		user.LastLoginAt = &now
	}

	s.recordAuditEvent(r, "web_bootstrap", username, true, nil)
	s.logger.Info().Str("username", username).Str("role", role).Msg("Bootstrap user created")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// handleWebLogin serves POST /web/auth/login: credentials for a session
// token, behind the per-(ip,username) failed-attempt counter.
func (s *Server) handleWebLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteRouteNotFound(w)
		return
	}

	var payload loginPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}
	if payload.Username == "" || payload.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, "usuario y contrasena son obligatorios")
		return
	}

	ip := ClientIP(r)
	key := ratelimit.LoginKey(ip, payload.Username)

	// Counter check runs before any hash work.
	attempts, err := s.app.RateLimiter.Attempts(r.Context(), key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rate limiter unavailable")
	}
	if attempts >= ratelimit.MaxAttempts {
		WriteAPIError(w, http.StatusTooManyRequests, "demasiados intentos, intentalo mas tarde")
		return
	}

	fail := func(reason string) {
		if err := s.app.RateLimiter.RecordFailure(r.Context(), key); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record login failure")
		}
		s.recordAuditEvent(r, "web_login", payload.Username, false,
			map[string]interface{}{"reason": reason})
		WriteAPIError(w, http.StatusUnauthorized, "credenciales invalidas")
	}

	user, err := s.app.Storage.Users().GetByUsername(r.Context(), payload.Username)
	if err == sqlite.ErrNotFound {
		fail("unknown_user")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to look up user")
		WriteUnexpectedError(w, err.Error())
		return
	}
	if !user.IsActive {
		fail("inactive")
		return
	}

	ok, needsRehash := auth.VerifyPassword(payload.Password, user.PasswordHash, user.PasswordHashType)
	if !ok {
		fail("bad_password")
		return
	}

	// Legacy bcrypt hashes are upgraded in place before the token is issued.
	if needsRehash {
		hash, err := auth.HashPasswordPBKDF2(payload.Password)
		if err != nil {
			WriteUnexpectedError(w, err.Error())
			return
		}
		if err := s.app.Storage.Users().UpdatePassword(r.Context(), user.ID, hash, models.HashTypePBKDF2); err != nil {
			s.logger.Error().Err(err).Int64("id", user.ID).Msg("Failed to upgrade password hash")
			WriteUnexpectedError(w, err.Error())
			return
		}
		s.logger.Info().Str("username", user.Username).Msg("Password hash upgraded to PBKDF2")
	}

	if err := s.app.RateLimiter.Reset(r.Context(), key); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to reset login counter")
	}
	if err := s.app.Storage.Users().UpdateLastLogin(r.Context(), user.ID); err != nil {
		s.logger.Warn().Err(err).Int64("id", user.ID).Msg("Failed to update last login")
	} else {
		now := time.Now().UTC()
		user.LastLoginAt = &now
	}

	token, ok := s.mintToken(w, user)
	if !ok {
		return
	}

	s.recordAuditEvent(r, "web_login", user.Username, true, nil)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// handleWebMe serves GET /web/auth/me, the session identity probe.
func (s *Server) handleWebMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRouteNotFound(w)
		return
	}

	ra := auth.RequestAuthFromContext(r.Context())
	if !ra.IsWebSession() {
		WriteAPIError(w, http.StatusUnauthorized, "sesion invalida o expirada")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    ra.User,
	})
}

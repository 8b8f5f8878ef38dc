package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

func postJSON(t *testing.T, target string, payload interface{}) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(string(jsonBody(t, payload))))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBootstrap_FirstUser(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, postJSON(t, "/web/auth/bootstrap", map[string]string{
		"bootstrap_secret": testBootstrapSecret,
		"username":         "Root",
		"password":         "Root#Pass9999",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool            `json:"success"`
		Token   string          `json:"token"`
		User    *models.WebUser `json:"user"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Token == "" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if resp.User.Username != "root" || resp.User.Role != "admin" {
		t.Errorf("user = %+v", resp.User)
	}

	// The minted token works immediately.
	me := do(srv, sessionRequest(t, http.MethodGet, "/web/auth/me", resp.Token, nil))
	if me.Code != http.StatusOK {
		t.Errorf("me status = %d: %s", me.Code, me.Body.String())
	}
}

func TestBootstrap_GateClosesAfterFirstUser(t *testing.T) {
	srv := newTestServer(t)
	seedWebUser(t, srv, "existing", "Existing#Pa55", "admin")

	rec := do(srv, postJSON(t, "/web/auth/bootstrap", map[string]string{
		"bootstrap_secret": testBootstrapSecret,
		"username":         "second",
		"password":         "Second#Pass99",
	}))
	assertEnvelopeError(t, rec, http.StatusForbidden, "INVALID_REQUEST")
}

func TestBootstrap_WrongSecret(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, postJSON(t, "/web/auth/bootstrap", map[string]string{
		"bootstrap_secret": "guess",
		"username":         "root",
		"password":         "Root#Pass9999",
	}))
	assertEnvelopeError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	if n, _ := srv.app.Storage.Users().Count(context.Background()); n != 0 {
		t.Errorf("user created despite bad secret: count=%d", n)
	}
}

func TestBootstrap_PasswordPolicy(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, postJSON(t, "/web/auth/bootstrap", map[string]string{
		"bootstrap_secret": testBootstrapSecret,
		"username":         "root",
		"password":         "weak",
	}))
	env := assertEnvelopeError(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
	if !strings.Contains(env.Error.Message, "mayuscula") {
		t.Errorf("policy message = %q", env.Error.Message)
	}
}

func TestLogin_SuccessAndGenericFailure(t *testing.T) {
	srv := newTestServer(t)
	seedWebUser(t, srv, "alice", "Alice#Pass99", "admin")

	rec := do(srv, postJSON(t, "/web/auth/login", map[string]string{
		"username": "ALICE",
		"password": "Alice#Pass99",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool            `json:"success"`
		Token   string          `json:"token"`
		User    *models.WebUser `json:"user"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" || resp.User.Username != "alice" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if resp.User.LastLoginAt == nil {
		t.Error("last_login_at not set")
	}

	// Wrong password and unknown user share one message.
	rec = do(srv, postJSON(t, "/web/auth/login", map[string]string{"username": "alice", "password": "nope"}))
	env := assertEnvelopeError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
	rec = do(srv, postJSON(t, "/web/auth/login", map[string]string{"username": "ghost", "password": "nope"}))
	env2 := assertEnvelopeError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
	if env.Error.Message != env2.Error.Message {
		t.Errorf("messages differ: %q vs %q", env.Error.Message, env2.Error.Message)
	}
}

func TestLogin_InactiveUser(t *testing.T) {
	srv := newTestServer(t)
	seedWebUser(t, srv, "gone", "Gone#Pass9999", "viewer")

	user, _ := srv.app.Storage.Users().GetByUsername(context.Background(), "gone")
	inactive := false
	if _, err := srv.app.Storage.Users().Update(context.Background(), user.ID, &models.WebUserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rec := do(srv, postJSON(t, "/web/auth/login", map[string]string{"username": "gone", "password": "Gone#Pass9999"}))
	assertEnvelopeError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLogin_RateLimit(t *testing.T) {
	srv := newTestServer(t)
	mr := miniredis.RunT(t)
	limiter := ratelimit.NewWithClient(common.NewSilentLogger(),
		redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { limiter.Close() })
	srv.app.RateLimiter = limiter

	seedWebUser(t, srv, "admin_root", "Admin#Root999", "admin")

	attempt := func(password string) *httptest.ResponseRecorder {
		req := postJSON(t, "/web/auth/login", map[string]string{
			"username": "admin_root",
			"password": password,
		})
		req.Header.Set("CF-Connecting-IP", "198.51.100.10")
		return do(srv, req)
	}

	for i := 0; i < 5; i++ {
		rec := attempt("wrong-password")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}

	// Sixth attempt is short-circuited before any hashing.
	rec := attempt("wrong-password")
	assertEnvelopeError(t, rec, http.StatusTooManyRequests, "INVALID_REQUEST")

	// A different IP is not affected.
	other := postJSON(t, "/web/auth/login", map[string]string{
		"username": "admin_root", "password": "Admin#Root999",
	})
	other.Header.Set("CF-Connecting-IP", "203.0.113.1")
	if rec := do(srv, other); rec.Code != http.StatusOK {
		t.Fatalf("other ip status = %d: %s", rec.Code, rec.Body.String())
	}

	// Counter TTL elapses, then a successful login clears it.
	mr.FastForward(ratelimit.AttemptTTL)
	if rec := attempt("Admin#Root999"); rec.Code != http.StatusOK {
		t.Fatalf("post-expiry login status = %d: %s", rec.Code, rec.Body.String())
	}
	key := ratelimit.LoginKey("198.51.100.10", "admin_root")
	if mr.Exists(key) {
		t.Error("counter not deleted after successful login")
	}
}

func TestLogin_BcryptUpgrade(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("DesktopUser#2026"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := srv.app.Storage.Users().Insert(ctx, &models.WebUser{
		Username:         "imported",
		PasswordHash:     string(hash),
		PasswordHashType: models.HashTypeBcrypt,
		Role:             models.RoleViewer,
		IsActive:         true,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec := do(srv, postJSON(t, "/web/auth/login", map[string]string{
		"username": "imported",
		"password": "DesktopUser#2026",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	user, err := srv.app.Storage.Users().GetByUsername(ctx, "imported")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !strings.HasPrefix(user.PasswordHash, "pbkdf2_sha256$") {
		t.Errorf("hash not upgraded: %q", user.PasswordHash)
	}
	if user.PasswordHashType != models.HashTypePBKDF2 {
		t.Errorf("hash type = %q", user.PasswordHashType)
	}

	// Second login verifies against the upgraded hash.
	rec = do(srv, postJSON(t, "/web/auth/login", map[string]string{
		"username": "imported",
		"password": "DesktopUser#2026",
	}))
	if rec.Code != http.StatusOK {
		t.Errorf("second login status = %d", rec.Code)
	}
}

func TestWebMe(t *testing.T) {
	srv := newTestServer(t)
	token := seedWebUser(t, srv, "whoami", "WhoAmI#Pass9", "viewer")

	rec := do(srv, sessionRequest(t, http.MethodGet, "/web/auth/me", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool            `json:"success"`
		User    *models.WebUser `json:"user"`
	}
	decodeBody(t, rec, &resp)
	if resp.User.Username != "whoami" || resp.User.Role != "viewer" {
		t.Errorf("user = %+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password fields")
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/instalog/internal/app"
	"github.com/fieldops/instalog/internal/auth"
	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/models"
	"github.com/fieldops/instalog/internal/ratelimit"
	"github.com/fieldops/instalog/internal/storage/blobfs"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

const (
	testAPIToken        = "test-api-token"
	testAPISecret       = "test-api-secret"
	testBootstrapSecret = "test-bootstrap-secret"
	testSessionSecret   = "test-session-secret"
)

// newTestServer builds a server over an in-memory database and a temp-dir
// blob store, with the full middleware chain attached.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, mutate func(cfg *common.Config)) *Server {
	t.Helper()
	logger := common.NewSilentLogger()

	cfg := common.NewDefaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Auth.APIToken = testAPIToken
	cfg.Auth.APISecret = testAPISecret
	cfg.Auth.BootstrapSecret = testBootstrapSecret
	cfg.Auth.SessionSecret = testSessionSecret
	if mutate != nil {
		mutate(cfg)
	}

	store, err := sqlite.Open(logger, ":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	blobs, err := blobfs.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("blobfs.NewStore failed: %v", err)
	}

	a := &app.App{
		Config:      cfg,
		Logger:      logger,
		Storage:     store,
		Blobs:       blobs,
		RateLimiter: ratelimit.New(logger, ""),
		StartupTime: time.Now(),
	}
	return NewServer(a)
}

// do runs a request through the middleware chain.
func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// signedRequest builds an HMAC-signed machine-client request.
func signedRequest(t *testing.T, method, target string, body []byte) *http.Request {
	t.Helper()
	return signedRequestCT(t, method, target, body, "application/json")
}

func signedRequestCT(t *testing.T, method, target string, body []byte, contentType string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	path := target
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.HeaderAPIToken, testAPIToken)
	req.Header.Set(auth.HeaderRequestTimestamp, ts)
	req.Header.Set(auth.HeaderRequestSignature, auth.SignRequest(testAPISecret, method, path, ts, body))
	return req
}

func jsonBody(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// seedInstallation inserts a row directly through the store.
func seedInstallation(t *testing.T, srv *Server, inst *models.Installation) int64 {
	t.Helper()
	if inst.Timestamp.IsZero() {
		inst.Timestamp = time.Now().UTC()
	}
	id, err := srv.app.Storage.Installations().Insert(context.Background(), inst)
	if err != nil {
		t.Fatalf("seed installation: %v", err)
	}
	return id
}

// seedWebUser inserts a console account and returns a valid session token.
func seedWebUser(t *testing.T, srv *Server, username, password, role string) string {
	t.Helper()
	hash, err := auth.HashPasswordPBKDF2(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.WebUser{
		Username:         username,
		PasswordHash:     hash,
		PasswordHashType: models.HashTypePBKDF2,
		Role:             role,
		IsActive:         true,
	}
	if _, err := srv.app.Storage.Users().Insert(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := auth.MintSessionToken([]byte(testSessionSecret), user.Username, role, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// sessionRequest builds a bearer-authenticated web request.
func sessionRequest(t *testing.T, method, target, token string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// assertEnvelopeError checks the standard error envelope shape.
func assertEnvelopeError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) ErrorEnvelope {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", rec.Code, wantStatus, rec.Body.String())
	}
	var env ErrorEnvelope
	decodeBody(t, rec, &env)
	if env.Success {
		t.Error("error envelope claims success")
	}
	if env.Error.Code != wantCode {
		t.Errorf("error code = %q, want %q", env.Error.Code, wantCode)
	}
	return env
}

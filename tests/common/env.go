// Package common provides shared infrastructure for the API test suite. The
// environment runs the full server, middleware included, over an ephemeral
// HTTP listener with an in-memory database and a temp-dir photo bucket.
package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/instalog/internal/app"
	"github.com/fieldops/instalog/internal/auth"
	appcommon "github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/ratelimit"
	"github.com/fieldops/instalog/internal/server"
	"github.com/fieldops/instalog/internal/storage/blobfs"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

// Credentials baked into every Env.
const (
	APIToken        = "e2e-api-token"
	APISecret       = "e2e-api-secret"
	BootstrapSecret = "e2e-bootstrap-secret"
	SessionSecret   = "e2e-session-secret"
)

// Env is one isolated server instance per test.
type Env struct {
	T      *testing.T
	App    *app.App
	Server *httptest.Server
	Client *http.Client
}

// NewEnv starts a server on a loopback listener and registers cleanup on t.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	logger := appcommon.NewSilentLogger()

	cfg := appcommon.NewDefaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Auth.APIToken = APIToken
	cfg.Auth.APISecret = APISecret
	cfg.Auth.BootstrapSecret = BootstrapSecret
	cfg.Auth.SessionSecret = SessionSecret

	store, err := sqlite.Open(logger, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	blobs, err := blobfs.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	a := &app.App{
		Config:      cfg,
		Logger:      logger,
		Storage:     store,
		Blobs:       blobs,
		RateLimiter: ratelimit.New(logger, ""),
		StartupTime: time.Now(),
	}

	srv := httptest.NewServer(server.NewServer(a).Handler())
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})

	return &Env{T: t, App: a, Server: srv, Client: srv.Client()}
}

// Signed issues an HMAC-signed machine request. Query strings are excluded
// from the signed path.
func (e *Env) Signed(method, target string, body []byte, contentType string) (*http.Response, error) {
	e.T.Helper()
	req, err := http.NewRequest(method, e.Server.URL+target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	path := target
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.HeaderAPIToken, APIToken)
	req.Header.Set(auth.HeaderRequestTimestamp, ts)
	req.Header.Set(auth.HeaderRequestSignature, auth.SignRequest(APISecret, method, path, ts, body))
	return e.Client.Do(req)
}

// SignedJSON marshals payload and issues a signed application/json request.
func (e *Env) SignedJSON(method, target string, payload interface{}) (*http.Response, error) {
	e.T.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		e.T.Fatalf("marshal payload: %v", err)
	}
	return e.Signed(method, target, body, "application/json")
}

// PostJSON issues an unauthenticated JSON request, used for the /web/auth
// login surface.
func (e *Env) PostJSON(target string, payload interface{}) (*http.Response, error) {
	e.T.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		e.T.Fatalf("marshal payload: %v", err)
	}
	return e.Client.Post(e.Server.URL+target, "application/json", bytes.NewReader(body))
}

// Session issues a bearer-authenticated web console request.
func (e *Env) Session(method, target, token string, payload interface{}) (*http.Response, error) {
	e.T.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.T.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.Server.URL+target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return e.Client.Do(req)
}

// Bootstrap creates the first console account and returns its session token.
func (e *Env) Bootstrap(username, password string) string {
	e.T.Helper()
	resp, err := e.PostJSON("/web/auth/bootstrap", map[string]string{
		"bootstrap_secret": BootstrapSecret,
		"username":         username,
		"password":         password,
	})
	if err != nil {
		e.T.Fatalf("bootstrap: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		e.T.Fatalf("bootstrap status = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Token string `json:"token"`
	}
	DecodeBody(e.T, resp, &out)
	return out.Token
}

// DecodeBody decodes a JSON response body into v.
func DecodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode body %q: %v", data, err)
	}
}

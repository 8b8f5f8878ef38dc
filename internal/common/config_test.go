package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Auth.GetSessionTTL() != 8*time.Hour {
		t.Errorf("default session TTL = %v", cfg.Auth.GetSessionTTL())
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instalog.toml")
	content := `
environment = "production"

[server]
port = 9090

[auth]
api_token = "file-token"
session_ttl = "2h"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("API_TOKEN", "env-token")
	t.Setenv("API_SECRET", "env-secret")
	t.Setenv("INSTALOG_PORT", "7070")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("environment not read from file")
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env port override lost: %d", cfg.Server.Port)
	}
	if cfg.Auth.APIToken != "env-token" || cfg.Auth.APISecret != "env-secret" {
		t.Errorf("secret overrides lost: %+v", cfg.Auth)
	}
	if cfg.Auth.GetSessionTTL() != 2*time.Hour {
		t.Errorf("session TTL = %v", cfg.Auth.GetSessionTTL())
	}
	if !cfg.Auth.HmacConfigured() {
		t.Error("HMAC should be configured")
	}
}

func TestLoadConfig_MissingFileSkipped(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should be skipped: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("defaults lost: %d", cfg.Server.Port)
	}
}

func TestHmacConfigured(t *testing.T) {
	c := AuthConfig{}
	if c.HmacConfigured() {
		t.Error("both empty should report unconfigured")
	}
	c.APIToken = "t"
	if !c.HmacConfigured() {
		t.Error("half-configured pair must still require verification")
	}
}

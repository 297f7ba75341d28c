package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/gitnotes/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestConfig_SectionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.App.HTTP.Port = 0 }, "app:"},
		{"notes path", func(c *Config) { c.Notes.Path = "" }, "notes:"},
		{"cache ttl", func(c *Config) { c.Notes.CacheTTL = 10 * time.Millisecond }, "notes:"},
		{"log workers", func(c *Config) { c.Git.LogWorkers = 0 }, "git:"},
		{"half identity", func(c *Config) { c.Git.AuthorName = "me" }, "author_email"},
		{"horizon", func(c *Config) { c.Todos.HorizonDays = -1 }, "todos:"},
		{"search limit", func(c *Config) { c.Search.Limit = 0 }, "search:"},
		{"auth", func(c *Config) { c.Auth.Mode = "token" }, "token is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	t.Setenv("GITNOTES_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
notes:
  path: /srv/notes
  cache_ttl: 1m
  ignore: ["archive/**"]
git:
  remote: git@example.com:me/notes.git
  author_name: Me
  author_email: me@example.com
todos:
  horizon_days: 14
auth:
  mode: token
  token: ${GITNOTES_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Notes.CacheTTL != time.Minute || cfg.Notes.NewDir != "new" || !cfg.Notes.Watch {
		t.Errorf("notes = %+v", cfg.Notes)
	}
	if len(cfg.Notes.Ignore) != 1 || cfg.Notes.Ignore[0] != "archive/**" {
		t.Errorf("ignore = %v", cfg.Notes.Ignore)
	}
	if cfg.Git.RemoteName != "origin" || cfg.Git.LogWorkers != 8 {
		t.Errorf("git defaults lost: %+v", cfg.Git)
	}
	if cfg.Todos.HorizonDays != 14 || cfg.Search.Limit != 5 {
		t.Errorf("todos/search = %+v %+v", cfg.Todos, cfg.Search)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want env expansion", cfg.Auth.Token)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("notes:\n  pth: /tmp\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Fatal("misspelled key should fail")
	}
}

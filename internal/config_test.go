package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/storage"
	pkgconfig "github.com/starford/versebook/pkg/config"
)

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

	cfg = AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg = AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Error("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestRemoteConfigPerBackend(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RemoteConfig)
		ok     bool
	}{
		{"fs default", func(*RemoteConfig) {}, true},
		{"unknown backend", func(r *RemoteConfig) { r.Backend = "ftp" }, false},
		{"github missing token", func(r *RemoteConfig) {
			r.Backend = BackendGitHub
			r.GitHub.Owner, r.GitHub.Repo = "me", "verses"
		}, false},
		{"github complete", func(r *RemoteConfig) {
			r.Backend = BackendGitHub
			r.GitHub.Owner, r.GitHub.Repo, r.GitHub.Token = "me", "verses", "ghp_x"
		}, true},
		{"git missing path", func(r *RemoteConfig) { r.Backend = BackendGit; r.Git.Path = "" }, false},
		{"git with path", func(r *RemoteConfig) { r.Backend = BackendGit; r.Git.Path = "./repo" }, true},
		{"empty data file", func(r *RemoteConfig) { r.DataFile = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(&cfg.Remote)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected a validation error")
				}
				if !errors.Is(err, apperr.ErrConfiguration) {
					t.Errorf("error %v does not wrap ErrConfiguration", err)
				}
			}
		})
	}
}

func TestAssetsConfigRequiresBucketForS3(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Assets.Backend = AssetsS3
	if err := cfg.Validate(); err == nil {
		t.Fatal("s3 without bucket should fail")
	}
	cfg.Assets.S3 = S3Config{Endpoint: "localhost:9000", Bucket: "assets", AccessKey: "k", SecretKey: "s"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete s3 config: %v", err)
	}
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("VERSEBOOK_TEST_TOKEN", "ghp_secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
  event_throttle: 2s
remote:
  backend: github
  data_file: bible-index-data.json
  asset_dir: images
  github:
    owner: me
    repo: verses
    token: ${VERSEBOOK_TEST_TOKEN}
cors:
  allowed_origins: ["http://localhost:5173"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.GitHub.Token != "ghp_secret" || cfg.App.HTTP.Port != 9090 {
		t.Errorf("config = %+v", cfg.Remote.GitHub)
	}
	if cfg.App.EventThrottle != 2*time.Second {
		t.Errorf("event throttle = %v", cfg.App.EventThrottle)
	}
	if cfg.Remote.GitHub.Branch != "main" || cfg.SQLite.Path == "" {
		t.Error("defaults were not preserved")
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestOpenStoreFS(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.FS.Path = filepath.Join(t.TempDir(), "data")

	store, assets, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := store.(*storage.FS); !ok {
		t.Fatalf("store = %T, want *storage.FS", store)
	}
	if _, ok := assets.(storage.LocalAssets); !ok {
		t.Errorf("fs assets should be served locally, got %T", assets)
	}
}

func TestOpenStoreS3Assets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.FS.Path = t.TempDir()
	cfg.Assets.Backend = AssetsS3
	cfg.Assets.S3 = S3Config{Endpoint: "localhost:9000", Bucket: "assets", AccessKey: "k", SecretKey: "s"}

	_, assets, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := assets.(*storage.S3Assets); !ok {
		t.Errorf("assets = %T, want *storage.S3Assets", assets)
	}
}

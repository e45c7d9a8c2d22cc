package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Remote store backends.
const (
	BackendGitHub = "github"
	BackendGit    = "git"
	BackendFS     = "fs"
)

// Asset backends.
const (
	AssetsRemote = "remote"
	AssetsS3     = "s3"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Remote RemoteConfig      `yaml:"remote"`
	Assets AssetsConfig      `yaml:"assets"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	CORS   CORSConfig        `yaml:"cors"`
	Links  LinksConfig       `yaml:"links"`
}

// Validate validates the configuration. Failures wrap apperr.ErrConfiguration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"app", &c.App},
		{"remote", &c.Remote},
		{"assets", &c.Assets},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", apperr.ErrConfiguration, s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle is the minimum gap between document.changed events.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RemoteConfig selects and configures the remote document store.
type RemoteConfig struct {
	Backend  string `yaml:"backend"`
	DataFile string `yaml:"data_file"`
	AssetDir string `yaml:"asset_dir"`
	// AssetBaseURL prefixes asset URLs for the git and fs backends, which
	// serve assets through the HTTP API.
	AssetBaseURL string `yaml:"asset_base_url"`

	GitHub GitHubConfig `yaml:"github"`
	Git    GitConfig    `yaml:"git"`
	FS     FSConfig     `yaml:"fs"`
}

// GitHubConfig configures the GitHub contents API backend.
type GitHubConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token"`
	Branch string `yaml:"branch"`
	APIURL string `yaml:"api_url"`
}

// GitConfig configures the local git repository backend.
type GitConfig struct {
	Path   string `yaml:"path"`
	Branch string `yaml:"branch"`
	Author string `yaml:"author"`
}

// FSConfig configures the plain directory backend.
type FSConfig struct {
	Path string `yaml:"path"`
	// Watch reports edits made by other processes as remote.changed events.
	Watch bool `yaml:"watch"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendGitHub, BackendGit, BackendFS)),
		validation.Field(&c.DataFile, validation.Required),
		validation.Field(&c.AssetDir, validation.Required),
	); err != nil {
		return err
	}
	switch c.Backend {
	case BackendGitHub:
		return validation.ValidateStruct(&c.GitHub,
			validation.Field(&c.GitHub.Owner, validation.Required),
			validation.Field(&c.GitHub.Repo, validation.Required),
			validation.Field(&c.GitHub.Token, validation.Required),
		)
	case BackendGit:
		return validation.ValidateStruct(&c.Git,
			validation.Field(&c.Git.Path, validation.Required),
		)
	default:
		return validation.ValidateStruct(&c.FS,
			validation.Field(&c.FS.Path, validation.Required),
		)
	}
}

// AssetsConfig selects where uploaded attachments are stored.
type AssetsConfig struct {
	Backend string   `yaml:"backend"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible bucket for attachments.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

// Validate validates the assets configuration.
func (c *AssetsConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = AssetsRemote
	}
	s3 := c.Backend == AssetsS3
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(AssetsRemote, AssetsS3)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.S3,
		validation.Field(&c.S3.Endpoint, validation.When(s3, validation.Required)),
		validation.Field(&c.S3.Bucket, validation.When(s3, validation.Required)),
		validation.Field(&c.S3.AccessKey, validation.When(s3, validation.Required)),
		validation.Field(&c.S3.SecretKey, validation.When(s3, validation.Required)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LinksConfig controls passage deep links.
type LinksConfig struct {
	Base    string `yaml:"base"`
	Version string `yaml:"version"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			EventThrottle: 500 * time.Millisecond,
		},
		Remote: RemoteConfig{
			Backend:      BackendFS,
			DataFile:     storage.DefaultDataFile,
			AssetDir:     storage.DefaultAssetDir,
			AssetBaseURL: "/api/assets",
			GitHub:       GitHubConfig{Branch: "main"},
			Git:          GitConfig{Branch: "main", Author: "versebook"},
			FS:           FSConfig{Path: "./data", Watch: true},
		},
		Assets: AssetsConfig{
			Backend: AssetsRemote,
		},
		SQLite: SQLiteConfig{
			Path: "./versebook.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Links: LinksConfig{
			Version: "111",
		},
	}
}

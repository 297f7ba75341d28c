package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Notes  NotesConfig       `yaml:"notes"`
	Git    GitConfig         `yaml:"git"`
	Todos  TodosConfig       `yaml:"todos"`
	Search SearchConfig      `yaml:"search"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	if err := c.Todos.Validate(); err != nil {
		return fmt.Errorf("todos: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// NotesConfig describes the working tree and the note cache.
type NotesConfig struct {
	Path        string        `yaml:"path"`
	NewDir      string        `yaml:"new_dir"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	RecentCount int           `yaml:"recent_count"`
	Ignore      []string      `yaml:"ignore"`
	Watch       bool          `yaml:"watch"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.NewDir, validation.Required),
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RecentCount, validation.Min(1)),
	)
}

// GitConfig holds the remote and the commit identity.
//
// Remote is optional; without it commits stay local and every push fails
// into the sync status.
type GitConfig struct {
	Remote      string        `yaml:"remote"`
	RemoteName  string        `yaml:"remote_name"`
	AuthorName  string        `yaml:"author_name"`
	AuthorEmail string        `yaml:"author_email"`
	LogTimeout  time.Duration `yaml:"log_timeout"`
	LogWorkers  int           `yaml:"log_workers"`
	CheckRemote bool          `yaml:"check_remote"`
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RemoteName, validation.Required),
		validation.Field(&c.LogTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.LogWorkers, validation.Required, validation.Min(1), validation.Max(64)),
	); err != nil {
		return err
	}
	if (c.AuthorName == "") != (c.AuthorEmail == "") {
		return fmt.Errorf("author_name and author_email must be set together")
	}
	return nil
}

// TodosConfig holds the todo list horizon.
type TodosConfig struct {
	HorizonDays int `yaml:"horizon_days"`
}

// Validate validates the todos configuration.
func (c *TodosConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HorizonDays, validation.Min(0), validation.Max(3650)),
	)
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	Limit int `yaml:"limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Required, validation.Min(1), validation.Max(100)),
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Notes: NotesConfig{
			Path:        "./notes",
			NewDir:      "new",
			CacheTTL:    30 * time.Second,
			RecentCount: 3,
			Watch:       true,
		},
		Git: GitConfig{
			RemoteName: "origin",
			LogTimeout: 5 * time.Second,
			LogWorkers: 8,
		},
		Todos: TodosConfig{
			HorizonDays: 7,
		},
		Search: SearchConfig{
			Limit: 5,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

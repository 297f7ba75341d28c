package internal

import "github.com/starford/gitnotes/internal/git"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	git     git.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithGitClient replaces the git binary client, for tests.
func WithGitClient(c git.Client) Option {
	return func(a *application) {
		a.git = c
	}
}

// Package bootstrap prepares the working tree before anything is served.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/gitnotes/internal/git"
)

// Options describes the desired state of the working tree.
type Options struct {
	// Root is the working tree directory; it is created if missing.
	Root string
	// Remote is the URL of the tracked remote. Empty means local only.
	Remote string
	// RemoteName defaults to "origin".
	RemoteName string
	// CheckRemote verifies the remote answers before returning.
	CheckRemote bool
	Logger      *slog.Logger
}

// Ensure makes Root an existing repository linked to Remote. An empty Root
// with a remote is cloned; otherwise a missing repository is initialised in
// place and the remote added. Any error means the process must not start.
func Ensure(ctx context.Context, client git.Client, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.RemoteName
	if name == "" {
		name = "origin"
	}

	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return fmt.Errorf("bootstrap: create %s: %w", opts.Root, err)
	}

	isRepo, err := client.IsRepo(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: inspect %s: %w", opts.Root, err)
	}
	if !isRepo {
		empty, err := isEmptyDir(opts.Root)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if opts.Remote != "" && empty {
			logger.Info("bootstrap: cloning", slog.String("root", opts.Root), slog.String("remote", opts.Remote))
			if err := client.Clone(ctx, opts.Remote); err != nil {
				return fmt.Errorf("bootstrap: clone: %w", err)
			}
		} else {
			logger.Info("bootstrap: initialising repository", slog.String("root", opts.Root))
			if err := client.Init(ctx); err != nil {
				return fmt.Errorf("bootstrap: init: %w", err)
			}
		}
	}

	if opts.Remote != "" {
		has, err := client.HasRemote(ctx, name)
		if err != nil {
			return fmt.Errorf("bootstrap: list remotes: %w", err)
		}
		if !has {
			logger.Info("bootstrap: adding remote", slog.String("name", name), slog.String("remote", opts.Remote))
			if err := client.AddRemote(ctx, name, opts.Remote); err != nil {
				return fmt.Errorf("bootstrap: add remote: %w", err)
			}
		}
		if opts.CheckRemote {
			if err := client.CheckRemote(ctx, name); err != nil {
				return fmt.Errorf("bootstrap: remote %s unreachable: %w", name, err)
			}
		}
	}

	logger.Info("bootstrap: working tree ready", slog.String("root", opts.Root))
	return nil
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}
	return len(entries) == 0, nil
}

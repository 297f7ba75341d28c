package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Exec implements Client by running the git binary in WorkDir.
type Exec struct {
	WorkDir string
	Logger  *slog.Logger

	authorName  string
	authorEmail string
	binary      string
}

// ExecOption configures an Exec client.
type ExecOption func(*Exec)

// WithAuthor sets the identity recorded on commits.
func WithAuthor(name, email string) ExecOption {
	return func(e *Exec) {
		e.authorName = name
		e.authorEmail = email
	}
}

// WithBinary overrides the git executable (default "git" from PATH).
func WithBinary(path string) ExecOption {
	return func(e *Exec) {
		e.binary = path
	}
}

// NewExec creates a client for the given working tree.
func NewExec(workDir string, logger *slog.Logger, opts ...ExecOption) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exec{WorkDir: workDir, Logger: logger, binary: "git"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run executes git with args in the working tree and returns trimmed stdout.
func (e *Exec) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+6)
	full = append(full, "-c", "safe.directory="+e.WorkDir)
	if e.authorName != "" {
		full = append(full, "-c", "user.name="+e.authorName)
	}
	if e.authorEmail != "" {
		full = append(full, "-c", "user.email="+e.authorEmail)
	}
	full = append(full, args...)

	e.Logger.Debug("executing git", slog.Any("args", args), slog.String("dir", dir))

	cmd := exec.CommandContext(ctx, e.binary, full...)
	cmd.Dir = dir
	// Never block on a credential prompt; the process has no terminal.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{
			Args:   args,
			Err:    err,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether WorkDir is inside a git work tree.
func (e *Exec) IsRepo(ctx context.Context) (bool, error) {
	out, err := e.run(ctx, e.WorkDir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) && ce.ExitCode() > 0 {
			return false, nil
		}
		return false, err
	}
	return out == "true", nil
}

// Init runs git init. It is safe to re-run on an existing repository.
func (e *Exec) Init(ctx context.Context) error {
	_, err := e.run(ctx, e.WorkDir, "init")
	return err
}

// Clone clones url into WorkDir, which must be empty or absent.
func (e *Exec) Clone(ctx context.Context, url string) error {
	abs, err := filepath.Abs(e.WorkDir)
	if err != nil {
		return fmt.Errorf("git: resolve work dir: %w", err)
	}
	_, err = e.run(ctx, filepath.Dir(abs), "clone", "--", url, abs)
	return err
}

// HasRemote reports whether the named remote exists.
func (e *Exec) HasRemote(ctx context.Context, name string) (bool, error) {
	out, err := e.run(ctx, e.WorkDir, "remote")
	if err != nil {
		return false, err
	}
	for _, r := range strings.Fields(out) {
		if r == name {
			return true, nil
		}
	}
	return false, nil
}

// AddRemote runs git remote add.
func (e *Exec) AddRemote(ctx context.Context, name, url string) error {
	_, err := e.run(ctx, e.WorkDir, "remote", "add", name, url)
	return err
}

// CheckRemote contacts the remote without transferring objects.
func (e *Exec) CheckRemote(ctx context.Context, name string) error {
	_, err := e.run(ctx, e.WorkDir, "ls-remote", "--heads", name)
	return err
}

// LastCommitTime reads the author date of the newest commit touching path.
func (e *Exec) LastCommitTime(ctx context.Context, path string) (time.Time, bool, error) {
	out, err := e.run(ctx, e.WorkDir, "log", "-1", "--format=%aI", "--", path)
	if err != nil {
		return time.Time{}, false, err
	}
	if out == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, out)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("git: parse log date %q: %w", out, err)
	}
	return t, true, nil
}

// Pull runs git pull against the tracking branch.
func (e *Exec) Pull(ctx context.Context) error {
	_, err := e.run(ctx, e.WorkDir, "pull")
	return err
}

// Add stages the given paths.
func (e *Exec) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	_, err := e.run(ctx, e.WorkDir, args...)
	return err
}

// Commit records staged changes with message.
func (e *Exec) Commit(ctx context.Context, message string) error {
	_, err := e.run(ctx, e.WorkDir, "commit", "-m", message)
	return err
}

// Push runs git push against the tracking branch.
func (e *Exec) Push(ctx context.Context) error {
	_, err := e.run(ctx, e.WorkDir, "push")
	return err
}

var _ Client = (*Exec)(nil)

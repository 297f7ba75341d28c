// Package git models the version-control operations the notes engine needs
// and implements them on top of the git binary.
package git

import (
	"context"
	"time"
)

// Client is the version-control surface used by the repository, the sync
// queue and startup. Every method runs against one working tree.
type Client interface {
	// IsRepo reports whether the working tree is inside a repository.
	IsRepo(ctx context.Context) (bool, error)
	// Init creates an empty repository in the working tree.
	Init(ctx context.Context) error
	// Clone populates the (empty) working tree from url.
	Clone(ctx context.Context, url string) error
	// HasRemote reports whether a remote called name is configured.
	HasRemote(ctx context.Context, name string) (bool, error)
	// AddRemote registers url under name.
	AddRemote(ctx context.Context, name, url string) error
	// CheckRemote verifies that the remote called name is reachable.
	CheckRemote(ctx context.Context, name string) error
	// LastCommitTime returns the time of the most recent commit touching
	// path. ok is false when the path has no history.
	LastCommitTime(ctx context.Context, path string) (t time.Time, ok bool, err error)
	// Pull integrates the remote tracking branch.
	Pull(ctx context.Context) error
	// Add stages paths.
	Add(ctx context.Context, paths ...string) error
	// Commit records the staged changes.
	Commit(ctx context.Context, message string) error
	// Push sends local commits to the remote tracking branch.
	Push(ctx context.Context) error
}

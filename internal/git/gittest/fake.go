// Package gittest provides an in-memory git.Client for tests.
package gittest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/gitnotes/internal/git"
)

// Fake records every call and answers from in-memory state.
type Fake struct {
	mu sync.Mutex

	Repo    bool
	Remotes map[string]string
	Commits map[string]time.Time

	// Errors maps an operation name ("pull", "add", "commit", "push", "log",
	// "init", "clone", "check_remote", ...) to the error it returns.
	Errors map[string]error
	// PullHook, when set, runs inside Pull before it returns.
	PullHook func(ctx context.Context) error
	// Now stamps commits; defaults to time.Now.
	Now func() time.Time

	calls  []string
	staged []string
}

// NewFake returns a Fake that already behaves like an initialised repository.
func NewFake() *Fake {
	return &Fake{
		Repo:    true,
		Remotes: map[string]string{},
		Commits: map[string]time.Time{},
		Errors:  map[string]error{},
	}
}

// Calls returns the recorded calls, e.g. "add new/x.md", "commit Create x.md".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// SetError makes op fail with err; a nil err clears it.
func (f *Fake) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, op)
		return
	}
	f.Errors[op] = err
}

// SetCommitTime records a commit time for path.
func (f *Fake) SetCommitTime(path string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commits[path] = t
}

func (f *Fake) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := op
	if len(args) > 0 {
		call += " " + strings.Join(args, " ")
	}
	f.calls = append(f.calls, call)
	return f.Errors[op]
}

func (f *Fake) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Fake) IsRepo(context.Context) (bool, error) {
	if err := f.record("is_repo"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Repo, nil
}

func (f *Fake) Init(context.Context) error {
	if err := f.record("init"); err != nil {
		return err
	}
	f.mu.Lock()
	f.Repo = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Clone(_ context.Context, url string) error {
	if err := f.record("clone", url); err != nil {
		return err
	}
	f.mu.Lock()
	f.Repo = true
	f.Remotes["origin"] = url
	f.mu.Unlock()
	return nil
}

func (f *Fake) HasRemote(_ context.Context, name string) (bool, error) {
	if err := f.record("has_remote", name); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Remotes[name]
	return ok, nil
}

func (f *Fake) AddRemote(_ context.Context, name, url string) error {
	if err := f.record("add_remote", name, url); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Remotes[name]; ok {
		return fmt.Errorf("remote %s already exists", name)
	}
	f.Remotes[name] = url
	return nil
}

func (f *Fake) CheckRemote(_ context.Context, name string) error {
	return f.record("check_remote", name)
}

func (f *Fake) LastCommitTime(_ context.Context, path string) (time.Time, bool, error) {
	if err := f.record("log", path); err != nil {
		return time.Time{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Commits[path]
	return t, ok, nil
}

func (f *Fake) Pull(ctx context.Context) error {
	err := f.record("pull")
	f.mu.Lock()
	hook := f.PullHook
	f.mu.Unlock()
	if hook != nil {
		if hookErr := hook(ctx); hookErr != nil {
			return hookErr
		}
	}
	return err
}

func (f *Fake) Add(_ context.Context, paths ...string) error {
	if err := f.record("add", paths...); err != nil {
		return err
	}
	f.mu.Lock()
	f.staged = append(f.staged, paths...)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Commit(_ context.Context, message string) error {
	if err := f.record("commit", message); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.staged) == 0 {
		return fmt.Errorf("nothing to commit")
	}
	ts := f.now()
	for _, p := range f.staged {
		f.Commits[p] = ts
	}
	f.staged = nil
	return nil
}

func (f *Fake) Push(context.Context) error {
	return f.record("push")
}

var _ git.Client = (*Fake)(nil)

// Package testutil provides shared test helpers for setting up a notes root
// and the full service stack on top of it.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/gitnotes/internal/git/gittest"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/sse"
	"github.com/starford/gitnotes/internal/storage"
	"github.com/starford/gitnotes/internal/syncqueue"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestVault creates a temporary notes root with a storage.Provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// Env is a wired stack over a temporary notes root and a fake git client.
type Env struct {
	Root    string
	Store   *storage.FS
	Git     *gittest.Fake
	Queue   *syncqueue.Queue
	Repo    *notes.Repository
	Broker  *sse.Broker
	Service *noteservice.Service
}

// NewEnv builds an Env. The queue and broker are shut down on cleanup.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	root, store := TestVault(t)
	fake := gittest.NewFake()
	broker := sse.NewBroker(time.Second)
	queue := syncqueue.New(fake, syncqueue.WithLogger(Logger()), syncqueue.WithObserver(broker))
	repo := notes.New(store, fake, queue, notes.WithLogger(Logger()))
	svc := noteservice.NewService(repo, queue, broker, noteservice.Options{HorizonDays: 7})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Close(ctx)
		broker.Close()
	})

	return &Env{
		Root:    root,
		Store:   store,
		Git:     fake,
		Queue:   queue,
		Repo:    repo,
		Broker:  broker,
		Service: svc,
	}
}

// WriteNote puts a file under the root behind the repository's back and
// drops the cache so the next read sees it.
func (e *Env) WriteNote(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(e.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	e.Repo.InvalidateCache()
}

// Eventually polls fn until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(tick)
	}
}

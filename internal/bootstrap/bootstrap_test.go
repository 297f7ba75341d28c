package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/gitnotes/internal/git/gittest"
)

func opts(root, remote string) Options {
	return Options{
		Root:   root,
		Remote: remote,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestEnsureClonesIntoEmptyDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "notes")
	fake := gittest.NewFake()
	fake.Repo = false

	if err := Ensure(context.Background(), fake, opts(root, "git@example.com:n.git")); err != nil {
		t.Fatal(err)
	}
	want := []string{"is_repo", "clone git@example.com:n.git", "has_remote origin"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestEnsureInitsNonEmptyDirAndAddsRemote(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "existing.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := gittest.NewFake()
	fake.Repo = false

	if err := Ensure(context.Background(), fake, opts(root, "https://example.com/n.git")); err != nil {
		t.Fatal(err)
	}
	want := []string{"is_repo", "init", "has_remote origin", "add_remote origin https://example.com/n.git"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestEnsureLocalOnly(t *testing.T) {
	fake := gittest.NewFake()
	fake.Repo = false

	if err := Ensure(context.Background(), fake, opts(t.TempDir(), "")); err != nil {
		t.Fatal(err)
	}
	if got, want := fake.Calls(), []string{"is_repo", "init"}; !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestEnsureExistingRepoIsLeftAlone(t *testing.T) {
	fake := gittest.NewFake()
	fake.Remotes["origin"] = "https://example.com/n.git"

	o := opts(t.TempDir(), "https://example.com/n.git")
	o.CheckRemote = true
	if err := Ensure(context.Background(), fake, o); err != nil {
		t.Fatal(err)
	}
	want := []string{"is_repo", "has_remote origin", "check_remote origin"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestEnsureFailuresAreFatal(t *testing.T) {
	cases := []struct {
		name  string
		op    string
		repo  bool
		check bool
	}{
		{"is_repo", "is_repo", false, false},
		{"clone", "clone", false, false},
		{"add remote", "add_remote", true, false},
		{"unreachable", "check_remote", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := gittest.NewFake()
			fake.Repo = tc.repo
			boom := errors.New("boom")
			fake.SetError(tc.op, boom)

			o := opts(t.TempDir(), "https://example.com/n.git")
			o.CheckRemote = tc.check
			if err := Ensure(context.Background(), fake, o); !errors.Is(err, boom) {
				t.Errorf("err = %v, want boom", err)
			}
		})
	}
}

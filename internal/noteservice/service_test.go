package noteservice_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/testutil"
	"github.com/starford/gitnotes/internal/todo"
)

func TestCreateAndGetNote(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	name, err := env.Service.CreateNote(ctx, "# Groceries\n\n- milk\n- eggs\n")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	n, err := env.Service.GetNote(ctx, name)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if n.FirstHeader != "Groceries" {
		t.Errorf("FirstHeader = %q", n.FirstHeader)
	}
	if !strings.Contains(n.HTML, "<h1>Groceries</h1>") || !strings.Contains(n.HTML, "<li>milk</li>") {
		t.Errorf("HTML = %q", n.HTML)
	}
	if n.Path != "new/"+name+".md" {
		t.Errorf("Path = %q", n.Path)
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return slices.Contains(env.Git.Calls(), "commit Create "+name+".md")
	}, "create was never committed")
}

func TestCreateEmptyContent(t *testing.T) {
	env := testutil.NewEnv(t)
	if _, err := env.Service.CreateNote(context.Background(), "  \n\t"); !errors.Is(err, apperr.ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestUpdateNote(t *testing.T) {
	env := testutil.NewEnv(t)
	env.WriteNote(t, "work/plan.md", "# Plan\nv1")
	ctx := context.Background()

	before, err := env.Service.GetNote(ctx, "plan")
	if err != nil {
		t.Fatal(err)
	}

	after, err := env.Service.UpdateNote(ctx, "plan", "# Plan\nv2", before.Checksum)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if after.Content != "# Plan\nv2" || after.Checksum == before.Checksum {
		t.Errorf("after = %+v", after)
	}

	// The old checksum is now stale.
	if _, err := env.Service.UpdateNote(ctx, "plan", "# Plan\nv3", before.Checksum); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	// No precondition always wins.
	if _, err := env.Service.UpdateNote(ctx, "plan", "# Plan\nv3", ""); err != nil {
		t.Errorf("unconditional update: %v", err)
	}

	if _, err := env.Service.UpdateNote(ctx, "missing", "x", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := env.Service.UpdateNote(ctx, "plan", "", ""); !errors.Is(err, apperr.ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		n := 0
		for _, c := range env.Git.Calls() {
			if c == "commit Update plan" {
				n++
			}
		}
		return n == 2
	}, "expected two commits for plan")
}

func TestHome(t *testing.T) {
	env := testutil.NewEnv(t)
	today := time.Now().Format(todo.DateLayout)
	env.WriteNote(t, "a.md", "# A\n- TODO[] "+today+" call bank\n")
	env.WriteNote(t, "b.md", "# B\n:pinned:")
	env.WriteNote(t, "c.md", "# C")
	env.WriteNote(t, "d.md", "# D\n- TODO[x] "+today+" done already\n")

	home, err := env.Service.Home(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(home.Recent) != 3 {
		t.Errorf("recent = %d, want 3", len(home.Recent))
	}
	if len(home.Pinned) != 1 || home.Pinned[0].Filename != "b" {
		t.Errorf("pinned = %+v", home.Pinned)
	}
	if len(home.Todos) != 1 || home.Todos[0].Note.Filename != "a" {
		t.Fatalf("todos = %+v", home.Todos)
	}
	if st := home.Todos[0].Todos[0].Status; st != todo.StatusToday {
		t.Errorf("status = %q, want today", st)
	}
	if home.Sync.Failing {
		t.Error("sync should not be failing")
	}
}

func TestSearch(t *testing.T) {
	env := testutil.NewEnv(t)
	env.WriteNote(t, "travel.md", "# Trip to Lisbon\n:travel:")
	env.WriteNote(t, "misc.md", "nothing here")

	hits, err := env.Service.Search(context.Background(), "lisbon", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Note.Filename != "travel" {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = env.Service.Search(context.Background(), "   ", 0)
	if err != nil || len(hits) != 0 {
		t.Errorf("blank query = %v, %v", hits, err)
	}
}

func TestResyncInvalidatesEvenOnFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	env.WriteNote(t, "a.md", "a")
	ctx := context.Background()
	if _, err := env.Service.GetNote(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	// The pull changes the tree and then fails.
	env.Git.PullHook = func(context.Context) error {
		return env.Store.Write("pulled.md", []byte("from remote"))
	}
	env.Git.SetError("pull", errors.New("network down"))

	if err := env.Service.Resync(ctx); err == nil {
		t.Error("expected pull error")
	}
	if _, err := env.Service.GetNote(ctx, "pulled"); err != nil {
		t.Errorf("cache not invalidated after failed pull: %v", err)
	}
}

func TestTodosHorizon(t *testing.T) {
	env := testutil.NewEnv(t)
	now := time.Now()
	env.WriteNote(t, "a.md", strings.Join([]string{
		"- TODO[] " + now.Format(todo.DateLayout) + " today",
		"- TODO[] " + now.AddDate(0, 0, 10).Format(todo.DateLayout) + " later",
	}, "\n"))

	groups, err := env.Service.Todos(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].Todos) != 1 {
		t.Fatalf("groups = %+v", groups)
	}

	groups, _ = env.Service.Todos(context.Background(), 30)
	if len(groups[0].Todos) != 2 {
		t.Errorf("todos within 30 days = %d, want 2", len(groups[0].Todos))
	}
}

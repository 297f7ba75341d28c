// Package notes presents the notes root as a cached, queryable collection and
// hands every write to the sync queue for commit and push.
package notes

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/git"
	"github.com/starford/gitnotes/internal/markdown"
	"github.com/starford/gitnotes/internal/models"
	"github.com/starford/gitnotes/internal/storage"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultNewDir     = "new"
	DefaultLogTimeout = 5 * time.Second
	DefaultWorkers    = 8

	// CreateLayout names new notes after their creation time.
	CreateLayout = "2006-01-02_15:04:05"

	noteExt = ".md"
)

// Syncer accepts durability work. It must not block on the work itself.
type Syncer interface {
	CommitAndPush(path, message string) error
}

// CacheObserver is told about cache hits and rebuilds.
type CacheObserver interface {
	CacheHit()
	CacheRebuilt(notes int, elapsed time.Duration)
}

// Repository is safe for concurrent use.
type Repository struct {
	store  storage.Provider
	git    git.Client
	syncer Syncer

	logger     *slog.Logger
	newDir     string
	logTimeout time.Duration
	workers    int
	debounce   time.Duration
	now        func() time.Time
	observer   CacheObserver

	ttl   time.Duration
	cache *cache
	group singleflight.Group
}

// Option configures a Repository.
type Option func(*Repository)

// WithTTL sets how long a snapshot is served before it is rebuilt.
func WithTTL(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithNewDir sets the subdirectory that receives created notes.
func WithNewDir(dir string) Option {
	return func(r *Repository) {
		if dir != "" {
			r.newDir = dir
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLogTimeout bounds each per-note history lookup.
func WithLogTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.logTimeout = d
		}
	}
}

// WithWorkers bounds the number of history lookups running at once.
func WithWorkers(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCacheObserver registers an observer for cache activity.
func WithCacheObserver(o CacheObserver) Option {
	return func(r *Repository) { r.observer = o }
}

// WithWatchDebounce sets how long Watch waits for file events to settle.
func WithWatchDebounce(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// New creates a repository over store, reading history from client and
// handing writes to syncer.
func New(store storage.Provider, client git.Client, syncer Syncer, opts ...Option) *Repository {
	r := &Repository{
		store:      store,
		git:        client,
		syncer:     syncer,
		logger:     slog.Default(),
		newDir:     DefaultNewDir,
		logTimeout: DefaultLogTimeout,
		workers:    DefaultWorkers,
		debounce:   200 * time.Millisecond,
		now:        time.Now,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = newCache(r.ttl, r.now)
	return r
}

// ListAll returns every note, most recently modified first. Ties are broken
// by filename. The returned slice is the caller's to keep.
func (r *Repository) ListAll(ctx context.Context) ([]models.Note, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.list(), nil
}

func (r *Repository) snapshot(ctx context.Context) (*snapshot, error) {
	snap, gen := r.cache.get()
	if snap != nil {
		if r.observer != nil {
			r.observer.CacheHit()
		}
		return snap, nil
	}

	// Concurrent misses for the same generation share one scan. The scan is
	// detached from the first caller's cancellation because every waiter
	// depends on it.
	v, err, _ := r.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		// A flight for this generation may have just finished.
		if s, g := r.cache.get(); s != nil && g == gen {
			return s, nil
		}
		start := time.Now()
		notes, err := r.scan(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s := &snapshot{notes: notes, createdAt: r.now()}
		stored := r.cache.store(s, gen)

		elapsed := time.Since(start)
		r.logger.Info("notes: cache rebuilt",
			slog.Int("notes", len(notes)),
			slog.Duration("elapsed", elapsed),
			slog.Bool("stored", stored))
		if r.observer != nil {
			r.observer.CacheRebuilt(len(notes), elapsed)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// scan enumerates the notes root and builds every note. Per-note failures
// degrade that note only.
func (r *Repository) scan(ctx context.Context) ([]models.Note, error) {
	entries, err := r.store.List("")
	if err != nil {
		return nil, fmt.Errorf("notes: scan: %w", err)
	}
	entries = r.dedupe(entries)

	notes := make([]models.Note, len(entries))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, e := range entries {
		g.Go(func() error {
			notes[i] = r.buildNote(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(notes, func(a, b models.Note) int {
		if c := b.LastModified.Compare(a.LastModified); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
	return notes, nil
}

// dedupe keeps one entry per filename. Entries are taken in path order and
// the first wins; the rest are reported and left out of the snapshot.
func (r *Repository) dedupe(entries []models.FileEntry) []models.FileEntry {
	slices.SortFunc(entries, func(a, b models.FileEntry) int {
		return cmp.Compare(a.Path, b.Path)
	})
	seen := make(map[string]string, len(entries))
	out := entries[:0]
	for _, e := range entries {
		name := filenameOf(e.Path)
		if kept, dup := seen[name]; dup {
			r.logger.Warn("notes: duplicate filename ignored",
				slog.String("filename", name),
				slog.String("path", e.Path),
				slog.String("kept", kept))
			continue
		}
		seen[name] = e.Path
		out = append(out, e)
	}
	return out
}

func (r *Repository) buildNote(ctx context.Context, e models.FileEntry) models.Note {
	name := filenameOf(e.Path)

	abs, err := r.store.Abs(e.Path)
	if err != nil {
		abs = ""
	}

	var content string
	data, err := r.store.Read(e.Path)
	if err != nil {
		r.logger.Warn("notes: read failed",
			slog.String("path", e.Path),
			slog.String("error", err.Error()))
	} else {
		content = string(data)
	}

	tags := markdown.Tags(content)
	header := markdown.FirstHeader(content)
	if header == "" {
		header = name
	}

	return models.Note{
		Filename:     name,
		Path:         abs,
		RelPath:      e.Path,
		Content:      content,
		FirstHeader:  header,
		Tags:         tags,
		IsPinned:     markdown.IsPinned(tags),
		LastModified: r.lastModified(ctx, e),
		Checksum:     checksum.Of(content),
	}
}

// lastModified prefers the last commit touching the file, then the file
// system mtime, then the current time.
func (r *Repository) lastModified(ctx context.Context, e models.FileEntry) time.Time {
	lctx, cancel := context.WithTimeout(ctx, r.logTimeout)
	defer cancel()

	t, ok, err := r.git.LastCommitTime(lctx, e.Path)
	switch {
	case err != nil:
		r.logger.Warn("notes: history lookup failed",
			slog.String("path", e.Path),
			slog.String("error", err.Error()))
	case ok:
		return t
	}
	if !e.ModTime.IsZero() {
		return e.ModTime
	}
	if mt, err := r.store.ModTime(e.Path); err == nil {
		return mt
	}
	return r.now()
}

// GetByFilename returns the note called name or apperr.ErrNotFound.
func (r *Repository) GetByFilename(ctx context.Context, name string) (models.Note, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return models.Note{}, err
	}
	for _, n := range snap.notes {
		if n.Filename == name {
			return n, nil
		}
	}
	return models.Note{}, fmt.Errorf("notes: %q: %w", name, apperr.ErrNotFound)
}

// GetLastNModified returns the n most recently modified notes.
func (r *Repository) GetLastNModified(ctx context.Context, n int) ([]models.Note, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	n = max(min(n, len(snap.notes)), 0)
	return slices.Clone(snap.notes[:n]), nil
}

// GetPinned returns the pinned notes ordered by filename.
func (r *Repository) GetPinned(ctx context.Context) ([]models.Note, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var pinned []models.Note
	for _, n := range snap.notes {
		if n.IsPinned {
			pinned = append(pinned, n)
		}
	}
	slices.SortStableFunc(pinned, func(a, b models.Note) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return pinned, nil
}

// Update overwrites the note called filename. The next read sees the new
// content; commit and push happen later on the sync queue.
func (r *Repository) Update(ctx context.Context, filename, content string) error {
	note, err := r.GetByFilename(ctx, filename)
	if err != nil {
		return err
	}
	if err := r.store.Write(note.RelPath, []byte(content)); err != nil {
		return fmt.Errorf("notes: update %s: %w", filename, err)
	}
	r.cache.invalidate()
	r.logger.Info("notes: updated", slog.String("filename", filename))

	r.enqueue(note.RelPath, "Update "+filename)
	return nil
}

// Create stores content as a new note named after the current time, adding
// _2, _3, ... when that name is taken, and returns the new filename.
func (r *Repository) Create(ctx context.Context, content string) (string, error) {
	base := r.now().Format(CreateLayout)

	name := base
	for suffix := 2; ; suffix++ {
		rel := path.Join(r.newDir, name+noteExt)
		err := r.store.Create(rel, []byte(content))
		if err == nil {
			r.cache.invalidate()
			r.logger.Info("notes: created", slog.String("filename", name), slog.String("path", rel))
			r.enqueue(rel, "Create "+name+noteExt)
			return name, nil
		}
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			return "", fmt.Errorf("notes: create: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name = base + "_" + strconv.Itoa(suffix)
	}
}

func (r *Repository) enqueue(rel, message string) {
	// The file is already on disk; a closed queue only loses the commit.
	if err := r.syncer.CommitAndPush(rel, message); err != nil {
		r.logger.Error("notes: enqueue commit failed",
			slog.String("path", rel),
			slog.String("error", err.Error()))
	}
}

// InvalidateCache forces the next read to rescan.
func (r *Repository) InvalidateCache() {
	r.cache.invalidate()
}

func filenameOf(rel string) string {
	return strings.TrimSuffix(path.Base(rel), noteExt)
}

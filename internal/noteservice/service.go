// Package noteservice is the read/write surface the HTTP and MCP adapters
// call. It composes the repository, the sync queue and the derived views.
package noteservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/markdown"
	"github.com/starford/gitnotes/internal/models"
	"github.com/starford/gitnotes/internal/search"
	"github.com/starford/gitnotes/internal/sse"
	"github.com/starford/gitnotes/internal/syncqueue"
	"github.com/starford/gitnotes/internal/todo"
)

// Repository is the note collection.
type Repository interface {
	ListAll(ctx context.Context) ([]models.Note, error)
	GetByFilename(ctx context.Context, name string) (models.Note, error)
	GetLastNModified(ctx context.Context, n int) ([]models.Note, error)
	GetPinned(ctx context.Context) ([]models.Note, error)
	Update(ctx context.Context, filename, content string) error
	Create(ctx context.Context, content string) (string, error)
	InvalidateCache()
}

// Syncer pulls on demand and reports queue health.
type Syncer interface {
	Pull(ctx context.Context) error
	Status() syncqueue.Status
}

// Notifier receives change notifications.
type Notifier interface {
	PublishNoteEvent(kind, filename string)
	Publish(event sse.Event)
}

// NoteSummary is a note without its body.
type NoteSummary struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	FirstHeader  string    `json:"first_header"`
	Tags         []string  `json:"tags"`
	IsPinned     bool      `json:"is_pinned"`
	LastModified time.Time `json:"last_modified"`
}

// NoteDetail is a full note with rendered HTML.
type NoteDetail struct {
	NoteSummary
	Content  string `json:"content"`
	HTML     string `json:"html"`
	Checksum string `json:"checksum"`
}

// TodoEntry is a todo item with its display status.
type TodoEntry struct {
	todo.Item
	Status todo.DateStatus `json:"status"`
}

// TodoGroup lists the open todos of one note.
type TodoGroup struct {
	Note            NoteSummary `json:"note"`
	Todos           []TodoEntry `json:"todos"`
	EarliestDueDate time.Time   `json:"earliest_due_date,omitzero"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Note    NoteSummary    `json:"note"`
	Matches []search.Match `json:"matches"`
	Score   float64        `json:"score"`
}

// HomePage is everything the landing page shows.
type HomePage struct {
	Recent []NoteSummary    `json:"recent"`
	Pinned []NoteSummary    `json:"pinned"`
	Todos  []TodoGroup      `json:"todos"`
	Sync   syncqueue.Status `json:"sync"`
}

// Options holds view defaults.
type Options struct {
	RecentCount int
	HorizonDays int
	SearchLimit int
	Now         func() time.Time
}

// Service coordinates the repository, the sync queue and the views.
type Service struct {
	repo     Repository
	syncer   Syncer
	notifier Notifier
	engine   *search.Engine
	opts     Options
}

// NewService creates a service. notifier may be nil.
func NewService(repo Repository, syncer Syncer, notifier Notifier, opts Options) *Service {
	if opts.RecentCount <= 0 {
		opts.RecentCount = 3
	}
	if opts.HorizonDays < 0 {
		opts.HorizonDays = todo.DefaultHorizonDays
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = search.DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:     repo,
		syncer:   syncer,
		notifier: notifier,
		engine:   search.New(search.DefaultOptions()),
		opts:     opts,
	}
}

// Home returns the most recent notes, the pinned notes, todos due within the
// configured horizon and the sync status.
func (s *Service) Home(ctx context.Context) (*HomePage, error) {
	recent, err := s.repo.GetLastNModified(ctx, s.opts.RecentCount)
	if err != nil {
		return nil, err
	}
	pinned, err := s.repo.GetPinned(ctx)
	if err != nil {
		return nil, err
	}
	todos, err := s.Todos(ctx, -1)
	if err != nil {
		return nil, err
	}
	return &HomePage{
		Recent: summaries(recent),
		Pinned: summaries(pinned),
		Todos:  todos,
		Sync:   s.syncer.Status(),
	}, nil
}

// Search ranks every note against query. A non-positive limit uses the
// configured default.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = s.opts.SearchLimit
	}
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	results := s.engine.Search(all, query, limit)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Note: summary(r.Note), Matches: r.Matches, Score: r.Score})
	}
	return hits, nil
}

// GetNote returns the note called filename with rendered HTML.
func (s *Service) GetNote(ctx context.Context, filename string) (*NoteDetail, error) {
	n, err := s.repo.GetByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	return detail(n)
}

// CreateNote stores content as a new note and returns its filename.
func (s *Service) CreateNote(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.ErrEmptyContent
	}
	name, err := s.repo.Create(ctx, content)
	if err != nil {
		return "", err
	}
	s.notify(sse.TypeNoteCreated, name)
	return name, nil
}

// UpdateNote replaces the content of filename. When ifMatch is set it must
// equal the checksum of the current content.
func (s *Service) UpdateNote(ctx context.Context, filename, content, ifMatch string) (*NoteDetail, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrEmptyContent
	}
	if ifMatch != "" {
		current, err := s.repo.GetByFilename(ctx, filename)
		if err != nil {
			return nil, err
		}
		if !checksum.Matches(ifMatch, current.Checksum) {
			return nil, fmt.Errorf("noteservice: %s changed: %w", filename, apperr.ErrConflict)
		}
	}
	if err := s.repo.Update(ctx, filename, content); err != nil {
		return nil, err
	}
	s.notify(sse.TypeNoteUpdated, filename)
	return s.GetNote(ctx, filename)
}

// Resync pulls from the remote now and drops the cache whether or not the
// pull succeeded, since a failed pull may still have touched the tree.
func (s *Service) Resync(ctx context.Context) error {
	err := s.syncer.Pull(ctx)
	s.repo.InvalidateCache()
	if s.notifier != nil {
		data := map[string]any{"ok": err == nil}
		if err != nil {
			data["error"] = err.Error()
		}
		s.notifier.Publish(sse.Event{Type: sse.TypeCacheReset, Data: data})
	}
	return err
}

// Todos groups open todos due within horizonDays; a negative horizon uses
// the configured one.
func (s *Service) Todos(ctx context.Context, horizonDays int) ([]TodoGroup, error) {
	if horizonDays < 0 {
		horizonDays = s.opts.HorizonDays
	}
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.opts.Now()
	groups := todo.NotesWithTodos(all, horizonDays, now)

	out := make([]TodoGroup, 0, len(groups))
	for _, g := range groups {
		entries := make([]TodoEntry, 0, len(g.Todos))
		for _, it := range g.Todos {
			entries = append(entries, TodoEntry{Item: it, Status: todo.StatusOf(it, now)})
		}
		out = append(out, TodoGroup{
			Note:            summary(g.Note),
			Todos:           entries,
			EarliestDueDate: g.EarliestDueDate,
		})
	}
	return out, nil
}

// HorizonDays returns the configured todo horizon.
func (s *Service) HorizonDays() int { return s.opts.HorizonDays }

// SyncStatus reports the sync queue state.
func (s *Service) SyncStatus() syncqueue.Status {
	return s.syncer.Status()
}

func (s *Service) notify(kind, filename string) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, filename)
	}
}

func summary(n models.Note) NoteSummary {
	return NoteSummary{
		Filename:     n.Filename,
		Path:         n.RelPath,
		FirstHeader:  n.FirstHeader,
		Tags:         n.Tags,
		IsPinned:     n.IsPinned,
		LastModified: n.LastModified,
	}
}

func summaries(notes []models.Note) []NoteSummary {
	out := make([]NoteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, summary(n))
	}
	return out
}

func detail(n models.Note) (*NoteDetail, error) {
	html, err := markdown.Render(n.Content)
	if err != nil {
		return nil, fmt.Errorf("noteservice: render %s: %w", n.Filename, err)
	}
	return &NoteDetail{
		NoteSummary: summary(n),
		Content:     n.Content,
		HTML:        html,
		Checksum:    n.Checksum,
	}, nil
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnotes/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteFilename extracts the filename URL parameter, decoded exactly once.
// chi routes on the escaped path when the request carries one (RawPath set),
// so only then is the parameter still percent-encoded.
func noteFilename(r *http.Request) string {
	raw := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func etag(checksum string) string {
	return `"` + checksum + `"`
}

// Home handles GET /home.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	home, err := h.svc.Home(r.Context())
	if err != nil {
		writeError(w, "home", err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// GetNote handles GET /notes/{filename}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	name := noteFilename(r)
	note, err := h.svc.GetNote(r.Context(), name)
	if err != nil {
		writeError(w, "get note", err, slog.String("filename", name))
		return
	}
	w.Header().Set("ETag", etag(note.Checksum))
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes. The filename is generated from the
// current time and returned.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	name, err := h.svc.CreateNote(r.Context(), req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	w.Header().Set("Location", "/notes/"+url.PathEscape(name))
	writeJSON(w, http.StatusCreated, CreateNoteResponse{Filename: name})
}

// UpdateNote handles PUT /notes/{filename}. An If-Match header holding the
// checksum from a previous read turns the write into a compare-and-swap.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	name := noteFilename(r)

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	ifMatch := r.Header.Get("If-Match")

	note, err := h.svc.UpdateNote(r.Context(), name, req.Content, ifMatch)
	if err != nil {
		writeError(w, "update note", err, slog.String("filename", name))
		return
	}
	w.Header().Set("ETag", etag(note.Checksum))
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusOK, SearchResponse{Results: []noteservice.SearchHit{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Todos handles GET /todos?horizon=.
func (h *Handler) Todos(w http.ResponseWriter, r *http.Request) {
	horizon := h.svc.HorizonDays()
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("horizon must be a non-negative integer"))
			return
		}
		horizon = n
	}
	groups, err := h.svc.Todos(r.Context(), horizon)
	if err != nil {
		writeError(w, "todos", err)
		return
	}
	writeJSON(w, http.StatusOK, TodosResponse{HorizonDays: horizon, Notes: groups})
}

// SyncStatus handles GET /sync.
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.SyncStatus())
}

// Resync handles POST /sync: pull now and drop the note cache.
func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resync(r.Context()); err != nil {
		slog.Warn("resync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, SyncResponse{Error: err.Error(), Status: h.svc.SyncStatus()})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{OK: true, Status: h.svc.SyncStatus()})
}

package api

import (
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/syncqueue"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Content string `json:"content" example:"# Hello\nWorld"`
}

// CreateNoteResponse carries the generated filename.
type CreateNoteResponse struct {
	Filename string `json:"filename" example:"2026-01-10_09:15:00"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// HomeResponse is the landing page payload.
type HomeResponse = noteservice.HomePage

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []noteservice.SearchHit `json:"results"`
}

// TodosResponse wraps todo groups.
type TodosResponse struct {
	HorizonDays int                     `json:"horizon_days"`
	Notes       []noteservice.TodoGroup `json:"notes"`
}

// SyncResponse reports the outcome of a manual resync.
type SyncResponse struct {
	OK     bool             `json:"ok"`
	Error  string           `json:"error,omitempty"`
	Status syncqueue.Status `json:"status"`
}

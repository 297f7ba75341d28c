// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes gitnotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/noteservice"
)

const formatURI = "gitnotes://note-format"

// Server wraps the MCP server with gitnotes tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all gitnotes tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gitnotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Fuzzy search over note tags, headings, filenames and bodies. Best match first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full markdown content of a note."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Note filename without the .md extension")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The filename is generated from the current time and returned. "+
			"Read the format contract via get_note_contract or the "+formatURI+" resource first."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content of an existing note."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Note filename without the .md extension")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New markdown content")),
		mcp.WithString("checksum", mcp.Description("Checksum from read_note; the update fails if the note changed since")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("list_recent",
		mcp.WithDescription("List the most recently modified notes and the pinned notes."),
	), s.listRecent)

	s.mcp.AddTool(mcp.NewTool("list_todos",
		mcp.WithDescription("List open TODO items grouped by note, most urgent first."),
		mcp.WithNumber("horizon_days", mcp.Description("Include items due within this many days (default from config)")),
	), s.listTodos)

	s.mcp.AddTool(mcp.NewTool("sync_notes",
		mcp.WithDescription("Pull from the remote now and reload notes."),
	), s.syncNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the gitnotes note format contract. "+
			"Call this before creating or updating notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown conventions gitnotes derives headings, tags and todos from."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// Serve runs the MCP protocol over stdin/stdout until ctx is done or
// stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP protocol over the given streams.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error, subject string) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", subject))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("note %s changed since it was read; read it again", subject))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err, query), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no matching notes"), nil
	}
	return jsonResult(hits)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, strings.TrimSuffix(name, ".md"))
	if err != nil {
		return errorResult(err, name), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("checksum: %s\n\n%s", note.Checksum, note.Content)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := s.svc.CreateNote(ctx, content)
	if err != nil {
		return errorResult(err, "new note"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", name)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name = strings.TrimSuffix(name, ".md")
	note, err := s.svc.UpdateNote(ctx, name, content, req.GetString("checksum", ""))
	if err != nil {
		return errorResult(err, name), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (checksum %s)", name, note.Checksum)), nil
}

func (s *Server) listRecent(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	home, err := s.svc.Home(ctx)
	if err != nil {
		return errorResult(err, "home"), nil
	}
	return jsonResult(map[string]any{
		"recent": home.Recent,
		"pinned": home.Pinned,
		"sync":   home.Sync,
	})
}

func (s *Server) listTodos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	horizon := req.GetInt("horizon_days", -1)
	groups, err := s.svc.Todos(ctx, horizon)
	if err != nil {
		return errorResult(err, "todos"), nil
	}
	if len(groups) == 0 {
		return mcp.NewToolResultText("no open todos"), nil
	}
	return jsonResult(groups)
}

func (s *Server) syncNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Resync(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return mcp.NewToolResultText("synced"), nil
}

func (s *Server) getNoteContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

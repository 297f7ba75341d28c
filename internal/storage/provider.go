// Package storage defines the notes-root file-system abstraction.
package storage

import (
	"time"

	"github.com/starford/gitnotes/internal/models"
)

// Provider is the interface for file operations under the notes root.
// All paths are relative to the root and slash separated.
type Provider interface {
	// Root returns the absolute path of the notes root.
	Root() string
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
	// List returns every .md file under dir, skipping ignored paths.
	List(dir string) ([]models.FileEntry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path.
	Write(path string, content []byte) error
	// Create writes a new file and fails with apperr.ErrAlreadyExists if
	// path is already taken.
	Create(path string, content []byte) error
	// ModTime returns the file-system modification time of path.
	ModTime(path string) (time.Time, error)
}

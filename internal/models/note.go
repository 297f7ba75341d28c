// Package models defines the domain types for gitnotes.
package models

import "time"

// Note is one markdown file under the notes root.
type Note struct {
	// Filename is the base name without extension. It is unique within a
	// snapshot and is the key used in URLs.
	Filename string `json:"filename"`
	// Path is the absolute location on disk.
	Path string `json:"-"`
	// RelPath is Path relative to the notes root, slash separated.
	RelPath      string    `json:"path"`
	Content      string    `json:"content"`
	FirstHeader  string    `json:"first_header"`
	Tags         []string  `json:"tags"`
	IsPinned     bool      `json:"is_pinned"`
	LastModified time.Time `json:"last_modified"`
	Checksum     string    `json:"checksum"`
}

// FileEntry is a lightweight representation of a file returned by list operations.
type FileEntry struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

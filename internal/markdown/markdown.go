// Package markdown derives note metadata from raw markdown and renders it to HTML.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// PinnedTag marks a note for the pinned list.
const PinnedTag = "pinned"

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// FirstHeader returns the text of the first line starting with '#', with the
// heading markers and following whitespace removed, or "" if there is none.
func FirstHeader(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}

// Tags returns the tags of a trailing ":a:b:" line. Only the last non-blank
// line is considered, and only if it both starts and ends with ':'.
func Tags(content string) []string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if len(trimmed) < 2 || !strings.HasPrefix(trimmed, ":") || !strings.HasSuffix(trimmed, ":") {
			return nil
		}
		var tags []string
		for _, t := range strings.Split(trimmed, ":") {
			if t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return nil
}

// IsPinned reports whether tags contains PinnedTag.
func IsPinned(tags []string) bool {
	for _, t := range tags {
		if t == PinnedTag {
			return true
		}
	}
	return false
}

// Render converts markdown to HTML with GitHub flavoured extensions. Single
// newlines become line breaks.
func Render(content string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

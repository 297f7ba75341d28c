// Package todo extracts dated TODO items from note content and groups notes
// by their upcoming deadlines.
package todo

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/gitnotes/internal/models"
)

// DateLayout is the only accepted due-date format.
const DateLayout = "2006-01-02"

// DefaultHorizonDays is how far ahead NotesWithTodos looks when no horizon is
// configured.
const DefaultHorizonDays = 7

// A todo line: optional indent, "-", TODO, a bracketed done marker, a due
// date token, then the description.
var lineRe = regexp.MustCompile(`^[\t ]*-\s*TODO\[([^\]]*)\]\s*(\S+)\s*(.*)$`)

// Item is one parsed TODO line.
type Item struct {
	DueDateString string `json:"due_date_string"`
	// DueDate is the calendar date at UTC midnight; zero when IsValid is false.
	DueDate     time.Time `json:"due_date,omitzero"`
	IsValid     bool      `json:"is_valid"`
	Description string    `json:"description"`
	IsDone      bool      `json:"is_done"`
}

// ParseLine parses a single line. ok is false when the line is not a TODO.
// Any non-whitespace inside the brackets marks the item done.
func ParseLine(line string) (item Item, ok bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false
	}

	item = Item{
		DueDateString: m[2],
		Description:   strings.TrimSpace(m[3]),
		IsDone:        strings.TrimSpace(m[1]) != "",
	}
	// time.Parse rejects both the wrong shape and impossible dates such as
	// 2026-02-30.
	if d, err := time.Parse(DateLayout, m[2]); err == nil {
		item.DueDate = d
		item.IsValid = true
	}
	return item, true
}

// Extract returns every TODO item in content, in line order.
func Extract(content string) []Item {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var items []Item
	for line := range strings.SplitSeq(content, "\n") {
		if it, ok := ParseLine(line); ok {
			items = append(items, it)
		}
	}
	return items
}

// NoteWithTodos pairs a note with its open TODOs inside the horizon.
type NoteWithTodos struct {
	Note  models.Note `json:"note"`
	Todos []Item      `json:"todos"`
	// EarliestDueDate is the earliest valid due date among Todos; zero when
	// every listed item has an invalid date.
	EarliestDueDate time.Time `json:"earliest_due_date,omitzero"`
}

// NotesWithTodos returns the notes that have at least one open TODO that is
// either undated-by-mistake (invalid date) or due no later than now plus
// horizonDays. Overdue items are always included. Invalid-date items sort
// first within a note, then ascending by date; notes whose listed items all
// have invalid dates sort first, then ascending by earliest date. Both sorts
// are stable, so input order breaks ties.
func NotesWithTodos(notes []models.Note, horizonDays int, now time.Time) []NoteWithTodos {
	horizon := Today(now).AddDate(0, 0, horizonDays)

	var out []NoteWithTodos
	for _, n := range notes {
		var open []Item
		for _, it := range Extract(n.Content) {
			if it.IsDone {
				continue
			}
			if it.IsValid && it.DueDate.After(horizon) {
				continue
			}
			open = append(open, it)
		}
		if len(open) == 0 {
			continue
		}

		sort.SliceStable(open, func(i, j int) bool {
			return itemLess(open[i], open[j])
		})

		nt := NoteWithTodos{Note: n, Todos: open}
		for _, it := range open {
			if it.IsValid {
				nt.EarliestDueDate = it.DueDate
				break
			}
		}
		out = append(out, nt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].EarliestDueDate, out[j].EarliestDueDate
		switch {
		case a.IsZero() && b.IsZero():
			return false
		case a.IsZero():
			return true
		case b.IsZero():
			return false
		}
		return a.Before(b)
	})
	return out
}

func itemLess(a, b Item) bool {
	switch {
	case !a.IsValid && !b.IsValid:
		return false
	case !a.IsValid:
		return true
	case !b.IsValid:
		return false
	}
	return a.DueDate.Before(b.DueDate)
}

// Today returns the calendar date of now, in now's location, as UTC midnight.
// Due dates are compared against it so a local evening does not spill into
// the next UTC day.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateStatus classifies a due date relative to today.
type DateStatus string

const (
	StatusOverdue  DateStatus = "overdue"
	StatusToday    DateStatus = "today"
	StatusUpcoming DateStatus = "upcoming"
)

// StatusOf classifies item relative to now. Invalid dates count as overdue.
func StatusOf(item Item, now time.Time) DateStatus {
	if !item.IsValid {
		return StatusOverdue
	}
	today := Today(now)
	switch {
	case item.DueDate.Before(today):
		return StatusOverdue
	case item.DueDate.Equal(today):
		return StatusToday
	default:
		return StatusUpcoming
	}
}

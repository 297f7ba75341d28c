// Package search ranks notes against a free-text query with weighted,
// typo-tolerant matching over tags, heading, filename and body.
package search

import (
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"

	"github.com/starford/gitnotes/internal/models"
)

// DefaultLimit is used when the caller passes a non-positive limit.
const DefaultLimit = 5

// Field keys reported in Match.Key.
const (
	KeyTags        = "tags"
	KeyFirstHeader = "first_header"
	KeyFilename    = "filename"
	KeyContent     = "content"
)

// Smallest positive factor; a perfect hit must still let weights order
// results.
const epsilon = 2.220446049250313e-16

// Key is a searchable field and its relative weight.
type Key struct {
	Name   string
	Weight float64
}

// Options tunes matching.
type Options struct {
	// Threshold is the maximum edit ratio (errors / query length) for a hit.
	Threshold float64
	// MinMatchCharLength drops highlight runs shorter than this; a value
	// with no surviving run is not a hit.
	MinMatchCharLength int
	Keys               []Key
}

// DefaultOptions ranks tags over headings over filenames over body text.
func DefaultOptions() Options {
	return Options{
		Threshold:          0.2,
		MinMatchCharLength: 2,
		Keys: []Key{
			{Name: KeyTags, Weight: 3},
			{Name: KeyFirstHeader, Weight: 2},
			{Name: KeyFilename, Weight: 1.5},
			{Name: KeyContent, Weight: 1},
		},
	}
}

// Match is one field value that matched. Indices are inclusive [start, end]
// rune offsets into Value.
type Match struct {
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Indices [][2]int `json:"indices"`
}

// Result is a ranked note. Lower Score is better; 0 < Score <= 1.
type Result struct {
	Note    models.Note `json:"note"`
	Matches []Match     `json:"matches"`
	Score   float64     `json:"score"`
}

// Engine is safe for concurrent use; it holds no per-query state.
type Engine struct {
	opts    Options
	weights map[string]float64
}

// New builds an engine. Key weights are normalized to sum to 1.
func New(opts Options) *Engine {
	if opts.MinMatchCharLength < 1 {
		opts.MinMatchCharLength = 1
	}
	var total float64
	for _, k := range opts.Keys {
		total += k.Weight
	}
	weights := make(map[string]float64, len(opts.Keys))
	for _, k := range opts.Keys {
		if total > 0 {
			weights[k.Name] = k.Weight / total
		}
	}
	return &Engine{opts: opts, weights: weights}
}

var defaultEngine = New(DefaultOptions())

// Search runs query over notes with the default options.
func Search(notes []models.Note, query string, limit int) []Result {
	return defaultEngine.Search(notes, query, limit)
}

// Search returns up to limit notes matching query, best first. Notes with
// equal scores keep their input order. A blank query yields nil.
func (e *Engine) Search(notes []models.Note, query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	pattern := lowerRunes(query)
	maxErrors := int(math.Floor(e.opts.Threshold * float64(len(pattern))))

	var results []Result
	for _, n := range notes {
		if r, ok := e.scoreNote(n, pattern, maxErrors); ok {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (e *Engine) scoreNote(n models.Note, pattern []rune, maxErrors int) (Result, bool) {
	res := Result{Note: n, Score: 1}
	matched := false

	for _, k := range e.opts.Keys {
		weight := e.weights[k.Name]
		for _, value := range fieldValues(n, k.Name) {
			errs, indices, ok := e.matchValue(value, pattern, maxErrors)
			if !ok {
				continue
			}
			matched = true
			score := float64(errs) / float64(len(pattern))
			res.Score *= math.Pow(math.Max(score, epsilon), weight*fieldNorm(value))
			res.Matches = append(res.Matches, Match{Key: k.Name, Value: value, Indices: indices})
		}
	}
	return res, matched
}

func fieldValues(n models.Note, key string) []string {
	switch key {
	case KeyTags:
		return n.Tags
	case KeyFirstHeader:
		if n.FirstHeader == "" {
			return nil
		}
		return []string{n.FirstHeader}
	case KeyFilename:
		return []string{n.Filename}
	case KeyContent:
		if n.Content == "" {
			return nil
		}
		return []string{n.Content}
	}
	return nil
}

// fieldNorm shrinks the influence of long values: a hit in a one-word tag
// counts for more than the same hit in a long body.
func fieldNorm(value string) float64 {
	words := len(strings.Fields(value))
	if words < 1 {
		words = 1
	}
	return math.Round(1000/math.Sqrt(float64(words))) / 1000
}

// matchValue reports the fewest edits needed to find pattern anywhere in
// value and the highlight ranges for the best occurrences.
func (e *Engine) matchValue(value string, pattern []rune, maxErrors int) (int, [][2]int, bool) {
	text := lowerRunes(value)
	if len(text) == 0 {
		return 0, nil, false
	}

	if spans := exactSpans(text, pattern); len(spans) > 0 {
		indices := e.keepRuns(spans)
		return 0, indices, len(indices) > 0
	}
	if maxErrors == 0 {
		return 0, nil, false
	}

	best, ends := approxEnds(text, pattern, maxErrors)
	if best < 0 {
		return 0, nil, false
	}

	var indices [][2]int
	next := 0
	for _, end := range ends {
		if end <= next {
			continue
		}
		start := windowStart(text, pattern, end, best)
		if start < next {
			continue
		}
		indices = append(indices, e.highlight(text[start:end], pattern, start)...)
		next = end
	}
	indices = e.keepRuns(indices)
	return best, indices, len(indices) > 0
}

func (e *Engine) keepRuns(spans [][2]int) [][2]int {
	var out [][2]int
	for _, s := range spans {
		if s[1]-s[0]+1 >= e.opts.MinMatchCharLength {
			out = append(out, s)
		}
	}
	return out
}

func exactSpans(text, pattern []rune) [][2]int {
	var spans [][2]int
	for i := 0; i+len(pattern) <= len(text); {
		if slices.Equal(text[i:i+len(pattern)], pattern) {
			spans = append(spans, [2]int{i, i + len(pattern) - 1})
			i += len(pattern)
			continue
		}
		i++
	}
	return spans
}

// approxEnds finds the minimum number of edits that turn pattern into some
// substring of text, and every exclusive end offset achieving it. best is -1
// when no substring is within maxErrors.
func approxEnds(text, pattern []rune, maxErrors int) (best int, ends []int) {
	m := len(pattern)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for i := range prev {
		prev[i] = i
	}

	best = -1
	for j := 1; j <= len(text); j++ {
		cur[0] = 0
		for i := 1; i <= m; i++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			cur[i] = min(prev[i-1]+cost, prev[i]+1, cur[i-1]+1)
		}
		if d := cur[m]; d <= maxErrors {
			switch {
			case best < 0 || d < best:
				best, ends = d, []int{j}
			case d == best:
				ends = append(ends, j)
			}
		}
		prev, cur = cur, prev
	}
	return best, ends
}

// windowStart picks the start of the substring ending at end whose edit
// distance to pattern is errs, preferring the length closest to pattern's.
func windowStart(text, pattern []rune, end, errs int) int {
	p := string(pattern)
	bestStart, bestGap := max(end-len(pattern), 0), -1
	for l := max(len(pattern)-errs, 1); l <= len(pattern)+errs; l++ {
		start := end - l
		if start < 0 {
			break
		}
		if levenshtein.ComputeDistance(p, string(text[start:end])) != errs {
			continue
		}
		gap := l - len(pattern)
		if gap < 0 {
			gap = -gap
		}
		if bestGap < 0 || gap < bestGap {
			bestStart, bestGap = start, gap
		}
	}
	return bestStart
}

// highlight narrows an approximate window to the characters that actually
// line up with the pattern, falling back to the whole window.
func (e *Engine) highlight(window, pattern []rune, offset int) [][2]int {
	whole := [][2]int{{offset, offset + len(window) - 1}}

	found := fuzzy.Find(string(pattern), []string{string(window)})
	if len(found) == 0 {
		return whole
	}

	byteToRune := make(map[int]int, len(window))
	pos := 0
	for i := range string(window) {
		byteToRune[i] = pos
		pos++
	}

	var runs [][2]int
	for _, bi := range found[0].MatchedIndexes {
		ri := byteToRune[bi] + offset
		if n := len(runs); n > 0 && runs[n-1][1] == ri-1 {
			runs[n-1][1] = ri
			continue
		}
		runs = append(runs, [2]int{ri, ri})
	}
	if kept := e.keepRuns(runs); len(kept) > 0 {
		return kept
	}
	return whole
}

func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

package review

import (
	"strconv"
	"strings"
)

// cluster groups equivalent entries from different runs.
type cluster struct {
	title string
	item  Item
	runs  map[int]bool
}

// Consistency scores how often entries recurred across successful runs. An
// entry is consistent when an equivalent entry appears in at least two runs.
// Fewer than two results yield nil.
func Consistency(results []Result) []CategoryConsistency {
	if len(results) < 2 {
		return nil
	}
	pick := func(get func(Result) []Item) [][]Item {
		out := make([][]Item, len(results))
		for i, r := range results {
			out[i] = get(r)
		}
		return out
	}
	obs := make([][]Item, len(results))
	for i, r := range results {
		for _, o := range r.Observations {
			obs[i] = append(obs[i], Item{Title: o})
		}
	}
	return []CategoryConsistency{
		scoreCategory("issues", pick(func(r Result) []Item { return r.Issues })),
		scoreCategory("simplifications", pick(func(r Result) []Item { return r.Simplifications })),
		scoreCategory("deferred", pick(func(r Result) []Item { return r.Deferred })),
		scoreCategory("observations", obs),
	}
}

func scoreCategory(name string, runs [][]Item) CategoryConsistency {
	var clusters []*cluster
	for run, items := range runs {
		for _, it := range items {
			var home *cluster
			for _, c := range clusters {
				if !c.runs[run] && fuzzyMatch(c.item, it) {
					home = c
					break
				}
			}
			if home == nil {
				home = &cluster{title: it.Title, item: it, runs: map[int]bool{}}
				clusters = append(clusters, home)
			}
			home.runs[run] = true
		}
	}

	cc := CategoryConsistency{Category: name}
	for _, c := range clusters {
		if len(c.runs) >= 2 {
			cc.Consistent++
			cc.Stable = append(cc.Stable, c.title)
		} else {
			cc.Unstable++
		}
	}
	return cc
}

// fuzzyMatch determines if two entries are similar enough to be considered
// the same finding.
func fuzzyMatch(a, b Item) bool {
	if titleSimilar(a.Title, b.Title) {
		return true
	}
	// Overlapping lines plus some shared title word.
	ra, okA := parseLines(a.Lines)
	rb, okB := parseLines(b.Lines)
	if okA && okB && ra.overlaps(rb) {
		return anyTitleWordOverlap(a.Title, b.Title)
	}
	return false
}

type lineRange struct {
	start, end int
}

func (l lineRange) overlaps(o lineRange) bool {
	return l.start <= o.end && o.start <= l.end
}

// parseLines reads "12", "12-18", or "L12-L18".
func parseLines(l Lines) (lineRange, bool) {
	s := strings.TrimSpace(string(l))
	if s == "" {
		return lineRange{}, false
	}
	lo, hi, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(lo), "L"))
	if err != nil {
		return lineRange{}, false
	}
	end := start
	if found {
		end, err = strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(hi), "L"))
		if err != nil || end < start {
			return lineRange{}, false
		}
	}
	return lineRange{start: start, end: end}, true
}

// anyTitleWordOverlap returns true if titles share at least one meaningful word.
func anyTitleWordOverlap(a, b string) bool {
	wordsB := titleWords(b)
	if len(wordsB) == 0 {
		return false
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}
	for _, w := range titleWords(a) {
		if setB[w] {
			return true
		}
	}
	return false
}

func titleSimilar(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	// Word overlap: >50% of the shorter title
	wordsA := titleWords(a)
	wordsB := titleWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}
	overlap := 0
	for _, w := range wordsA {
		if setB[w] {
			overlap++
		}
	}
	return float64(overlap)/float64(min(len(wordsA), len(wordsB))) > 0.5
}

// stopWords carry no signal when comparing titles.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "to": true,
	"for": true, "and": true, "or": true, "is": true, "on": true, "with": true,
}

func titleWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

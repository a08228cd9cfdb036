// internal/similarity/classify.go
//
// Duplicate and near-duplicate classification.
//
// Context
// -------
// Registration consults Classify before anything is written.  An Exact
// verdict blocks the submission, a Near verdict is shown to the user as an
// advisory list, and Novel lets the record through silently.
//
// Normalisation trims leading and trailing whitespace only.  Case is
// preserved unless Policy.FoldCase is set, because the hard rejection gate
// compares trimmed strings literally.
package similarity

import (
	"sort"
	"strings"
)

// Kind is the outcome of Classify.
type Kind int

const (
	Novel Kind = iota // nothing at or above the warn threshold
	Near              // advisory matches only
	Exact             // literal duplicate, registration must be refused
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Near:
		return "near"
	default:
		return "novel"
	}
}

// Match is one corpus entry scored against the candidate.
type Match struct {
	Index int     // position in the corpus slice
	Text  string  // corpus entry as given (untrimmed)
	Ratio float64 // similarity in [0, 1]
}

// Verdict bundles the classification and its supporting matches.
type Verdict struct {
	Kind    Kind
	Matches []Match // ranked by descending ratio, at most Policy.Limit
}

// Policy holds the thresholds used by Classify.
type Policy struct {
	// ExactThreshold promotes a match to Exact when ratio >= value.  At 1.0
	// (the default) only literal equality after trimming is Exact.
	ExactThreshold float64
	// WarnThreshold is the minimum ratio reported as a near match.
	WarnThreshold float64
	// Limit caps the number of returned matches.  Zero means 3.
	Limit int
	// FoldCase compares case-insensitively.
	FoldCase bool
}

// DefaultPolicy mirrors the production defaults in conf/mqa.yaml.
func DefaultPolicy() Policy {
	return Policy{ExactThreshold: 1.0, WarnThreshold: 0.65, Limit: 3}
}

// Classify scores candidate against every corpus entry and decides whether
// it is an exact duplicate, a near duplicate, or novel.  Blank candidates
// and blank corpus entries never match.  Classify never modifies corpus.
func Classify(candidate string, corpus []string, p Policy) Verdict {
	limit := p.Limit
	if limit <= 0 {
		limit = 3
	}

	cand := p.normalize(candidate)
	if cand == "" {
		return Verdict{Kind: Novel}
	}

	var (
		exact   []Match
		near    []Match
		isExact bool
	)
	for i, entry := range corpus {
		norm := p.normalize(entry)
		if norm == "" {
			continue
		}

		if norm == cand {
			exact = append(exact, Match{Index: i, Text: entry, Ratio: 1.0})
			isExact = true
			continue
		}

		r := Ratio(cand, norm)
		switch {
		case p.ExactThreshold > 0 && p.ExactThreshold < 1 && r >= p.ExactThreshold:
			exact = append(exact, Match{Index: i, Text: entry, Ratio: r})
			isExact = true
		case r >= p.WarnThreshold:
			near = append(near, Match{Index: i, Text: entry, Ratio: r})
		}
	}

	if isExact {
		return Verdict{Kind: Exact, Matches: rank(exact, limit)}
	}
	if len(near) > 0 {
		return Verdict{Kind: Near, Matches: rank(near, limit)}
	}
	return Verdict{Kind: Novel}
}

// Rank scores candidate against corpus and returns every entry at or above
// min, best first, capped at limit.  It backs the "similar questions while
// typing" helper, where no verdict is needed.
func Rank(candidate string, corpus []string, min float64, limit int, foldCase bool) []Match {
	p := Policy{FoldCase: foldCase}
	cand := p.normalize(candidate)
	if cand == "" {
		return nil
	}
	var out []Match
	for i, entry := range corpus {
		norm := p.normalize(entry)
		if norm == "" {
			continue
		}
		if r := Ratio(cand, norm); r >= min {
			out = append(out, Match{Index: i, Text: entry, Ratio: r})
		}
	}
	if limit <= 0 {
		limit = 3
	}
	return rank(out, limit)
}

func (p Policy) normalize(s string) string {
	s = strings.TrimSpace(s)
	if p.FoldCase {
		s = strings.ToLower(s)
	}
	return s
}

// rank sorts by descending ratio (stable on corpus order) and truncates.
func rank(ms []Match, limit int) []Match {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Ratio > ms[j].Ratio })
	if len(ms) > limit {
		ms = ms[:limit]
	}
	return ms
}

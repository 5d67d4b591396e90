// Package roster decides whether a submitted identity belongs to the
// enrolled student list and proposes near matches when it does not.
package roster

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/isfo/attestation-service/internal/model"
)

const (
	// MaxSuggestions caps the "did you mean" list.
	MaxSuggestions = 3
	// MinSimilarity is the lowest name similarity offered as a suggestion.
	MinSimilarity = 0.6
)

// Candidate is a submitted identity.
type Candidate struct {
	FirstName string
	LastName  string
	Group     string
}

// Suggestion is a roster entry close to a rejected candidate.
type Suggestion struct {
	FullName string  `json:"full_name"`
	Group    string  `json:"student_group"`
	Score    float64 `json:"-"`
}

// Result is the outcome of a roster check.
type Result struct {
	Matched     bool
	Student     *model.Student
	Suggestions []Suggestion
}

// Normalize lowercases s and collapses surrounding and repeated whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Check matches the candidate against entries. The first exact match wins.
// Without a match, up to MaxSuggestions near names are returned, best first.
func Check(entries []model.Student, c Candidate) Result {
	first, last, group := Normalize(c.FirstName), Normalize(c.LastName), Normalize(c.Group)
	for i := range entries {
		e := &entries[i]
		if Normalize(e.FirstName) == first && Normalize(e.LastName) == last && Normalize(e.Group) == group {
			return Result{Matched: true, Student: e}
		}
	}
	return Result{Suggestions: Suggest(entries, c)}
}

// Suggest ranks entries by full-name similarity to c, also trying the
// candidate with first and last name swapped. An entry in the candidate's
// group gets a small boost so ties resolve toward the declared group.
func Suggest(entries []model.Student, c Candidate) []Suggestion {
	full := Normalize(c.FirstName + " " + c.LastName)
	swapped := Normalize(c.LastName + " " + c.FirstName)
	group := Normalize(c.Group)
	if full == "" {
		return nil
	}

	var out []Suggestion
	for _, e := range entries {
		name := Normalize(e.FirstName + " " + e.LastName)
		score := levenshtein.Similarity(full, name, nil)
		if s := levenshtein.Similarity(swapped, name, nil); s > score {
			score = s
		}
		if score < MinSimilarity {
			continue
		}
		if group != "" && Normalize(e.Group) == group {
			score += 0.01
		}
		out = append(out, Suggestion{
			FullName: strings.TrimSpace(e.FirstName) + " " + strings.TrimSpace(e.LastName),
			Group:    e.Group,
			Score:    score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

package store

import (
	"strings"

	"github.com/aretw0/speaknote/pkg/core"
)

// Filter returns the notes whose title or content contains the query as a
// case-insensitive substring, preserving the input order. An empty query
// returns the input unchanged.
//
// This is a pure derivation of store state plus query; it keeps no state of
// its own and is recomputed on every query change.
func Filter(notes []core.Note, query string) []core.Note {
	query = strings.ToLower(query)
	if query == "" {
		return notes
	}

	matched := make([]core.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), query) ||
			strings.Contains(strings.ToLower(n.Content), query) {
			matched = append(matched, n)
		}
	}
	return matched
}

// Search filters the store contents by query, ordered by CreatedAt
// descending, ties broken by ID.
func (s *Store) Search(query string) []core.Note {
	return Filter(s.List(), query)
}

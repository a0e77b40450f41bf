// Package search derives and queries the per-session search text. It is
// pure: no I/O, no store access, deterministic for a given input.
package search

import (
	"sort"
	"strings"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
)

// BuildSearchText concatenates the title and the text of the last
// tailSize messages, lowercased and whitespace-normalized. Callers must
// invoke it after every mutation that touches title or messages.
func BuildSearchText(s *domain.Session, tailSize int) string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, tailSize+1)
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	msgs := s.Messages
	if len(msgs) > tailSize {
		msgs = msgs[len(msgs)-tailSize:]
	}
	for _, m := range msgs {
		if m.Text != "" {
			parts = append(parts, m.Text)
		}
	}
	return normalize(strings.Join(parts, " "))
}

// Search filters and ranks sessions against a free-text query.
//
// Empty query: sessions by recency descending, capped. Otherwise the
// query is split into terms and a session qualifies only if every term
// is a substring of its search text. Qualifying sessions are ranked by
// a fixed title-match bonus (full query substring of the title) plus a
// recency score, ties falling to recency, capped at SearchLimit.
func Search(sessions []*domain.Session, query string) []*domain.Session {
	q := normalize(query)

	if q == "" {
		out := make([]*domain.Session, len(sessions))
		copy(out, sessions)
		sort.SliceStable(out, func(i, j int) bool {
			return recency(out[i]) > recency(out[j])
		})
		return capResults(out)
	}

	terms := strings.Fields(q)

	type scored struct {
		session *domain.Session
		score   float64
	}
	var hits []scored
	for _, s := range sessions {
		hs := s.SearchText
		if hs == "" {
			hs = BuildSearchText(s, config.SearchTail)
		}
		if !matchesAll(hs, terms) {
			continue
		}
		score := recency(s)
		if strings.Contains(normalize(s.Title), q) {
			score += config.TitleMatchBonus
		}
		hits = append(hits, scored{session: s, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return recency(hits[i].session) > recency(hits[j].session)
	})

	out := make([]*domain.Session, len(hits))
	for i, h := range hits {
		out[i] = h.session
	}
	return capResults(out)
}

func matchesAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

func recency(s *domain.Session) float64 {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return float64(s.CreatedAt.UnixMilli()) / config.RecencyDivisor
}

func capResults(sessions []*domain.Session) []*domain.Session {
	if len(sessions) > config.SearchLimit {
		return sessions[:config.SearchLimit]
	}
	return sessions
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

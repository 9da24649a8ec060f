package command

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Match is a ranked palette result.
type Match struct {
	Command
	Score   int   `json:"score"`
	Matched []int `json:"matched,omitempty"` // rune indexes into Title
}

// Filter keeps commands whose title contains query, ignoring case. Order is
// preserved and an empty query keeps everything.
func Filter(cmds []Command, query string) []Command {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return cmds
	}
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if strings.Contains(strings.ToLower(c.Title), q) {
			out = append(out, c)
		}
	}
	return out
}

type titles []Command

func (t titles) String(i int) string { return t[i].Title }
func (t titles) Len() int            { return len(t) }

// Rank orders commands by fuzzy match quality against their titles. An empty
// query returns every command unranked, in palette order.
func Rank(cmds []Command, query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]Match, len(cmds))
		for i, c := range cmds {
			out[i] = Match{Command: c}
		}
		return out
	}

	found := fuzzy.FindFrom(query, titles(cmds))
	out := make([]Match, len(found))
	for i, m := range found {
		out[i] = Match{Command: cmds[m.Index], Score: m.Score, Matched: m.MatchedIndexes}
	}
	return out
}

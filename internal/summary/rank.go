package summary

import (
	"cmp"
	"slices"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
)

// Ranked pairs a document key with its summary.
type Ranked struct {
	Key     fiscalkey.Key
	Summary *Summary
}

// Rank returns the documents among keys that have a summary in m, ordered by
// highest item value (descending), then total value (descending), then key
// (ascending). Keys without a summary are dropped. The order is total, so
// the result does not depend on the order of keys.
func Rank(m map[fiscalkey.Key]*Summary, keys []fiscalkey.Key) []Ranked {
	ranked := make([]Ranked, 0, len(keys))
	for _, k := range keys {
		if s, ok := m[k]; ok {
			ranked = append(ranked, Ranked{Key: k, Summary: s})
		}
	}
	SortRanked(ranked)
	return ranked
}

// RankAll ranks every document of m.
func RankAll(m map[fiscalkey.Key]*Summary) []Ranked {
	ranked := make([]Ranked, 0, len(m))
	for k, s := range m {
		ranked = append(ranked, Ranked{Key: k, Summary: s})
	}
	SortRanked(ranked)
	return ranked
}

// SortRanked sorts in place using the ranking order of Rank.
func SortRanked(ranked []Ranked) {
	slices.SortFunc(ranked, func(a, b Ranked) int {
		if c := cmp.Compare(b.Summary.MaxValue, a.Summary.MaxValue); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Summary.TotalValue, a.Summary.TotalValue); c != 0 {
			return c
		}
		return a.Key.Compare(b.Key)
	})
}

// TotalValue sums the total values of ranked documents.
func TotalValue(ranked []Ranked) float64 {
	var sum float64
	for _, r := range ranked {
		sum += r.Summary.TotalValue
	}
	return sum
}

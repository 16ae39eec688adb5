// =============================================================================
// CTe/NFe Enricher - Document Summaries
// =============================================================================
//
// A Summary condenses every qualifying item row of one fiscal document into:
//   - the number of items
//   - the sum of the absolute item values
//   - the highest absolute item value
//   - the metadata of the item holding that highest value
//
// Summaries are built independently by aggregation workers and combined with
// Merge. Count, total and maximum are commutative and associative under
// Merge, so the reduction order does not matter for them. The metadata
// follows the maximum; when two partial summaries hold the exact same
// maximum, the receiver keeps its own metadata.
//
// =============================================================================

package summary

import (
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
)

// Summary is the running aggregate of one document.
type Summary struct {
	ItemCount  int
	TotalValue float64
	MaxValue   float64
	Metadata   Metadata
}

// Add records one item.
//
// PARAMETERS:
//   - value: The absolute item value.
//   - capture: Builds the item metadata. It is only called when the item
//     becomes the new maximum, so rows that do not win cost no allocation.
func (s *Summary) Add(value float64, capture func() Metadata) {
	first := s.ItemCount == 0

	s.ItemCount++
	s.TotalValue += value

	if first || value > s.MaxValue {
		s.MaxValue = value
		s.Metadata = capture()
	}
}

// Merge folds other into s. other must not be used afterwards.
func (s *Summary) Merge(other *Summary) {
	if other == nil || other.ItemCount == 0 {
		return
	}

	empty := s.ItemCount == 0

	s.ItemCount += other.ItemCount
	s.TotalValue += other.TotalValue

	if empty || other.MaxValue > s.MaxValue {
		s.MaxValue = other.MaxValue
		s.Metadata = other.Metadata
	}
}

// =============================================================================
// SUMMARY PAIR
// =============================================================================

// Pair holds the summaries of both tracked document types.
type Pair struct {
	Manifests map[fiscalkey.Key]*Summary
	Invoices  map[fiscalkey.Key]*Summary
}

// NewPair returns an empty Pair.
func NewPair() Pair {
	return Pair{
		Manifests: make(map[fiscalkey.Key]*Summary),
		Invoices:  make(map[fiscalkey.Key]*Summary),
	}
}

// For returns the map that holds summaries of the given kind, or nil for
// untracked kinds.
func (p Pair) For(kind fiscalkey.Kind) map[fiscalkey.Key]*Summary {
	switch kind {
	case fiscalkey.Manifest:
		return p.Manifests
	case fiscalkey.Invoice:
		return p.Invoices
	default:
		return nil
	}
}

// Add records one item of document k. Items of untracked kinds are ignored.
func (p Pair) Add(k fiscalkey.Key, value float64, capture func() Metadata) {
	m := p.For(k.Kind())
	if m == nil {
		return
	}

	s, ok := m[k]
	if !ok {
		s = &Summary{}
		m[k] = s
	}
	s.Add(value, capture)
}

// Merge folds other into p key by key. Summaries of other are moved, not
// copied; other must not be used afterwards.
func (p Pair) Merge(other Pair) {
	mergeInto(p.Manifests, other.Manifests)
	mergeInto(p.Invoices, other.Invoices)
}

func mergeInto(dst, src map[fiscalkey.Key]*Summary) {
	for k, s := range src {
		if cur, ok := dst[k]; ok {
			cur.Merge(s)
			continue
		}
		dst[k] = s
	}
}

// Len returns the number of summarized documents of both kinds.
func (p Pair) Len() int {
	return len(p.Manifests) + len(p.Invoices)
}

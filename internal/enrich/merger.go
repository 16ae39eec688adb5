// =============================================================================
// CTe/NFe Enricher - Enrichment Merger
// =============================================================================
//
// This module writes what is known about a document's counterparts into its
// own row:
//   - an NF-e row receives the metadata of the CT-es that carry it
//   - a CT-e row receives the metadata of the NF-es it carries
//
// STEPS (per row):
//   1. Look up the related counterparts in the relationship graph.
//   2. Keep those that have a summary (at least one qualifying item).
//   3. Rank them: highest item value, then total value (both descending),
//      then key (ascending).
//   4. Overwrite the cross-reference column with a summary line, e.g.
//        NFe: <key>, 2 CTes: [<key1>, <key2>] de valor total = 812.40
//   5. Append the metadata of the top MaxFields counterparts to the
//      matching columns, each as " [Info do CT-e: <value>]" (or
//      " [Info da NF-e: <value>]"), skipping any append that would make the
//      column reach MaxFieldLength characters.
//   6. The NCM code is replaced, not appended, when the NF-e code holds a
//      non-zero digit.
//
// =============================================================================

package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/relations"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// Merger injects counterpart metadata into rows.
type Merger struct {
	// MaxFields is the number of top-ranked counterparts whose metadata is
	// injected.
	MaxFields int

	// MaxFieldLength is the rune length an enriched column must stay below.
	MaxFieldLength int
}

// EnrichRow enriches a dataset row from the summaries of its counterparts.
// Cancelled rows and rows without a tracked key are left alone.
func (m Merger) EnrichRow(row *types.Record, graph *relations.Graph, pair summary.Pair) bool {
	if row.Cancelled() {
		return false
	}
	key, err := row.Key()
	if err != nil {
		return false
	}

	switch key.Kind() {
	case fiscalkey.Invoice:
		return m.Enrich(row, graph, pair.Manifests)
	case fiscalkey.Manifest:
		return m.Enrich(row, graph, pair.Invoices)
	default:
		return false
	}
}

// Enrich writes the summaries of the row's counterparts into the row.
//
// PARAMETERS:
//   - row: A non-cancelled NF-e or CT-e row.
//   - graph: The relationship graph.
//   - counterparts: Summaries of the counterpart kind (CT-es for an NF-e
//     row, NF-es for a CT-e row).
//
// RETURNS:
//   - true if the row was changed. A row without related counterparts, or
//     whose counterparts have no summary, is not changed.
func (m Merger) Enrich(row *types.Record, graph *relations.Graph, counterparts map[fiscalkey.Key]*summary.Summary) bool {
	key, err := row.Key()
	if err != nil {
		return false
	}

	related := graph.CounterpartsOf(key)
	if len(related) == 0 {
		return false
	}

	ranked := summary.Rank(counterparts, related)
	if len(ranked) == 0 {
		return false
	}

	row.Set(types.FieldCrossReference, CrossReference(key, ranked))

	for i, r := range ranked {
		if i >= m.MaxFields {
			break
		}
		m.inject(row, r.Summary.Metadata)
	}

	return true
}

// inject appends one counterpart's metadata to the row.
func (m Merger) inject(row *types.Record, meta summary.Metadata) {
	var label string
	switch md := meta.(type) {
	case *summary.ManifestMetadata:
		label = "CT-e"
	case *summary.InvoiceMetadata:
		label = "NF-e"
		if md.HasValidNCM() {
			row.Set(types.FieldNCM, md.NCM)
		}
	default:
		return
	}

	for _, entry := range meta.Entries() {
		if appended, ok := m.appendInfo(row.Raw(entry.Field), entry.Value, label); ok {
			row.Set(entry.Field, appended)
		}
	}
}

// appendInfo returns current followed by the labelled value, and false when
// the value is empty or the result would not stay below MaxFieldLength.
func (m Merger) appendInfo(current, value, label string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	suffix := InfoSuffix(label, value)
	if utf8.RuneCountInString(current)+utf8.RuneCountInString(suffix) >= m.MaxFieldLength {
		return "", false
	}
	return current + suffix, true
}

// InfoSuffix formats one injected value: " [Info do CT-e: v]" or
// " [Info da NF-e: v]".
func InfoSuffix(label, value string) string {
	article := "o"
	if label == "NF-e" {
		article = "a"
	}
	return fmt.Sprintf(" [Info d%s %s: %s]", article, label, value)
}

// CrossReference formats the summary line written to the cross-reference
// column of the row of key. ranked must not be empty.
func CrossReference(key fiscalkey.Key, ranked []summary.Ranked) string {
	other := ranked[0].Key.Kind()

	keys := make([]string, len(ranked))
	for i, r := range ranked {
		keys[i] = r.Key.String()
	}

	plural := ""
	if len(ranked) > 1 {
		plural = "s"
	}

	return fmt.Sprintf("%s: %s, %d %s%s: [%s] de valor total = %s",
		key.Kind(), key, len(ranked), other, plural,
		strings.Join(keys, ", "),
		normalize.FormatAmount(summary.TotalValue(ranked)))
}

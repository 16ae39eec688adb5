// =============================================================================
// CTe/NFe Enricher - Relationship Graph
// =============================================================================
//
// This package relates transport manifests (CT-e) and invoices (NF-e).
//
// RELATIONS:
//   - ManifestInvoices     CT-e -> NF-es it carries
//   - ManifestComplements  CT-e <-> complementary CT-es
//   - InvoiceManifests     NF-e -> CT-es that carry it
//
// CONSTRUCTION ORDER:
//   1. Load both relation files (concurrently, see Load)
//   2. CloseComplements     every complement group becomes a clique
//   3. PropagateInvoices    complements inherit each other's invoices
//   4. RebuildInvoiceIndex  invert ManifestInvoices
//
// EXAMPLE:
//   File A: CT-e 1 carries NF-e X.
//   File B: CT-e 1 is complemented by CT-e 2, CT-e 2 by CT-e 3.
//   Result: CT-es 1, 2 and 3 all carry X, and X is carried by 1, 2 and 3.
//
// A Graph is read-only once built and safe for concurrent lookups.
//
// =============================================================================

package relations

import (
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
)

// Graph is the bidirectional CT-e/NF-e relationship graph.
type Graph struct {
	ManifestInvoices    KeyMap
	ManifestComplements KeyMap
	InvoiceManifests    KeyMap
}

// NewGraph builds a graph from the two loaded relations, running closure,
// propagation and inversion in order. The maps are owned by the graph.
func NewGraph(manifestInvoices, manifestComplements KeyMap) *Graph {
	if manifestInvoices == nil {
		manifestInvoices = make(KeyMap)
	}
	if manifestComplements == nil {
		manifestComplements = make(KeyMap)
	}

	g := &Graph{
		ManifestInvoices:    manifestInvoices,
		ManifestComplements: manifestComplements,
		InvoiceManifests:    make(KeyMap),
	}
	g.CloseComplements()
	g.PropagateInvoices()
	g.RebuildInvoiceIndex()
	return g
}

// =============================================================================
// CONSTRUCTION STEPS
// =============================================================================

// CloseComplements replaces the complement relation by its transitive,
// symmetric closure.
//
// Every connected component of the (undirected) relation becomes a clique:
// each member relates to all other members and never to itself. Components
// of a single key are dropped. Runs in O(V+E) and is idempotent.
func (g *Graph) CloseComplements() {
	adj := make(KeyMap, len(g.ManifestComplements))
	for u, neighbors := range g.ManifestComplements {
		for v := range neighbors {
			if u == v {
				continue
			}
			adj.Link(u, v)
			adj.Link(v, u)
		}
	}

	closed := make(KeyMap, len(adj))
	visited := make(KeySet, len(adj))
	var stack, group []fiscalkey.Key

	for start := range adj {
		if visited.Has(start) {
			continue
		}

		group = group[:0]
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited.Has(cur) {
				continue
			}
			visited.Add(cur)
			group = append(group, cur)
			for next := range adj[cur] {
				if !visited.Has(next) {
					stack = append(stack, next)
				}
			}
		}

		if len(group) < 2 {
			continue
		}
		for _, member := range group {
			others := make(KeySet, len(group)-1)
			for _, k := range group {
				if k != member {
					others.Add(k)
				}
			}
			closed[member] = others
		}
	}

	g.ManifestComplements = closed
}

// PropagateInvoices gives every complementary manifest the invoices of the
// manifests it complements.
//
// Updates are accumulated apart and merged at the end, so the result does
// not depend on map iteration order. Must run after CloseComplements: on a
// closed relation one step reaches every member of a group.
func (g *Graph) PropagateInvoices() {
	updates := make(KeyMap)
	for manifest, invoices := range g.ManifestInvoices {
		for comp := range g.ManifestComplements[manifest] {
			updates.Extend(comp, invoices)
		}
	}
	g.ManifestInvoices.Union(updates)
}

// RebuildInvoiceIndex recomputes InvoiceManifests as the exact inverse of
// ManifestInvoices. Idempotent.
func (g *Graph) RebuildInvoiceIndex() {
	index := make(KeyMap, len(g.InvoiceManifests))
	for manifest, invoices := range g.ManifestInvoices {
		for invoice := range invoices {
			index.Link(invoice, manifest)
		}
	}
	g.InvoiceManifests = index
}

// =============================================================================
// LOOKUPS
// =============================================================================

// ManifestsOf returns the manifests carrying invoice.
func (g *Graph) ManifestsOf(invoice fiscalkey.Key) []fiscalkey.Key {
	return g.InvoiceManifests[invoice].Keys()
}

// InvoicesOf returns the invoices carried by manifest, including those
// inherited from complementary manifests.
func (g *Graph) InvoicesOf(manifest fiscalkey.Key) []fiscalkey.Key {
	return g.ManifestInvoices[manifest].Keys()
}

// CounterpartsOf returns the documents related to k: manifests for an
// invoice, invoices for a manifest, nothing for other kinds.
func (g *Graph) CounterpartsOf(k fiscalkey.Key) []fiscalkey.Key {
	switch k.Kind() {
	case fiscalkey.Invoice:
		return g.ManifestsOf(k)
	case fiscalkey.Manifest:
		return g.InvoicesOf(k)
	default:
		return nil
	}
}

// MapStats describes one relation.
type MapStats struct {
	Keys      int
	Relations int
}

// Stats describes the three relations of a graph.
type Stats struct {
	ManifestInvoices    MapStats
	ManifestComplements MapStats
	InvoiceManifests    MapStats
}

// Stats returns the sizes of every relation.
func (g *Graph) Stats() Stats {
	return Stats{
		ManifestInvoices:    MapStats{len(g.ManifestInvoices), g.ManifestInvoices.Relations()},
		ManifestComplements: MapStats{len(g.ManifestComplements), g.ManifestComplements.Relations()},
		InvoiceManifests:    MapStats{len(g.InvoiceManifests), g.InvoiceManifests.Relations()},
	}
}

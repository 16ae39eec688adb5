package relations

import (
	"slices"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
)

// KeySet is a set of document keys.
type KeySet map[fiscalkey.Key]struct{}

// Add inserts k.
func (s KeySet) Add(k fiscalkey.Key) {
	s[k] = struct{}{}
}

// Has reports whether k is in the set.
func (s KeySet) Has(k fiscalkey.Key) bool {
	_, ok := s[k]
	return ok
}

// Union inserts every key of other.
func (s KeySet) Union(other KeySet) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Keys returns the members in no particular order.
func (s KeySet) Keys() []fiscalkey.Key {
	keys := make([]fiscalkey.Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// Sorted returns the members in ascending key order.
func (s KeySet) Sorted() []fiscalkey.Key {
	keys := s.Keys()
	slices.SortFunc(keys, fiscalkey.Key.Compare)
	return keys
}

// KeyMap relates each key to a set of keys.
type KeyMap map[fiscalkey.Key]KeySet

// Link adds to to the set of from.
func (m KeyMap) Link(from, to fiscalkey.Key) {
	set, ok := m[from]
	if !ok {
		set = make(KeySet)
		m[from] = set
	}
	set.Add(to)
}

// Extend unions keys into the set of from.
func (m KeyMap) Extend(from fiscalkey.Key, keys KeySet) {
	set, ok := m[from]
	if !ok {
		set = make(KeySet, len(keys))
		m[from] = set
	}
	set.Union(keys)
}

// Union merges every entry of other into m.
func (m KeyMap) Union(other KeyMap) {
	for k, set := range other {
		m.Extend(k, set)
	}
}

// Relations counts the links of all keys.
func (m KeyMap) Relations() int {
	n := 0
	for _, set := range m {
		n += len(set)
	}
	return n
}

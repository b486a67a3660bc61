// Package metadata provides typed metadata documents and equality filtering
// for the vector index.
//
// Metadata values are small tagged-union scalars (null, int, float, string,
// bool, timestamp) rather than untyped interface{} values, which keeps
// persistence and predicate deletion well-defined.
package metadata

import "sort"

// Document is a typed metadata document.
type Document map[string]Value

// Clone creates a deep copy of the metadata document.
//
// This is the safe default to prevent external mutation after Insert().
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v
	}
	return clone
}

// SortedKeys returns the document's keys in lexicographic order.
// Used wherever a deterministic traversal order is required
// (binary encoding, context assembly, logging).
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge overlays system entries on top of base and returns a new document.
// System keys take precedence on collision; neither input is mutated.
func Merge(base, system Document) Document {
	merged := make(Document, len(base)+len(system))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range system {
		merged[k] = v
	}
	return merged
}

// Package schema defines the consumed-only contract the printer uses
// to annotate an entry with schema-derived metadata: the attribute's
// must/may membership in the entry's structural and auxiliary classes.
// Discovering that metadata (walking SUP chains against a directory's
// published schema) is outside the core and is supplied externally.
package schema

import "strings"

// Entroid is per-entry schema metadata: the must-set and may-set of
// attribute descriptions derived from the entry's object classes, plus
// free-form notes surfaced to the user (e.g. an unknown object class).
// AD lookups fold case, matching the wire protocol's case-insensitive
// attribute descriptions (§9: "use full case-folding").
type Entroid interface {
	// HasAttribute reports whether ad is in the must-set or may-set,
	// stripping any ";option" suffix before comparing.
	HasAttribute(ad string) (must, may bool)

	// Remove deletes ad from both sets, reporting whether it was
	// present in either.
	Remove(ad string) bool

	// Comments returns free-form diagnostic strings (e.g. an
	// unresolved SUP link) accumulated while building the entroid.
	Comments() []string
}

// StaticEntroid is a fixed, in-memory Entroid, used by printers ahead
// of full schema discovery and by tests as a stand-in collaborator.
type StaticEntroid struct {
	Must  []string
	May   []string
	Notes []string
}

var _ Entroid = (*StaticEntroid)(nil)

func foldAD(ad string) string {
	if i := strings.IndexByte(ad, ';'); i >= 0 {
		ad = ad[:i]
	}
	return strings.ToLower(ad)
}

func (s *StaticEntroid) HasAttribute(ad string) (must, may bool) {
	folded := foldAD(ad)
	for _, m := range s.Must {
		if strings.ToLower(m) == folded {
			return true, false
		}
	}
	for _, m := range s.May {
		if strings.ToLower(m) == folded {
			return false, true
		}
	}
	return false, false
}

func (s *StaticEntroid) Remove(ad string) bool {
	folded := foldAD(ad)
	removed := false
	s.Must, removed = removeFolded(s.Must, folded, removed)
	s.May, removed = removeFolded(s.May, folded, removed)
	return removed
}

func removeFolded(set []string, folded string, removed bool) ([]string, bool) {
	for i, m := range set {
		if strings.ToLower(m) == folded {
			return append(set[:i], set[i+1:]...), true
		}
	}
	return set, removed
}

func (s *StaticEntroid) Comments() []string { return s.Notes }

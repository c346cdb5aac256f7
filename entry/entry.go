// Package entry implements the in-memory representation of directory
// entries and change batches described by the editing-cycle core: an
// Entry owns its DN and a sequence of Attributes; each Attribute owns
// its AD and a sequence of owned byte-sequence values. No cycles, no
// shared mutation - the tree is built once, mutated in place by the
// parsers and the diff engine, then handed to a printer or a handler.
package entry

import "bytes"

// Entry is a distinguished name plus an ordered, duplicate-free (by AD)
// sequence of attributes. Insertion order is preserved.
type Entry struct {
	DN         string
	Attributes []*Attribute
}

// NewEntry creates an entry taking ownership of dn.
func NewEntry(dn string) *Entry {
	return &Entry{DN: dn}
}

// Find returns the attribute with the given AD, or nil. Lookup is a
// case-sensitive linear scan: AD options (e.g. "cn;binary") are
// significant.
func (e *Entry) Find(ad string) *Attribute {
	for _, a := range e.Attributes {
		if a.AD == ad {
			return a
		}
	}
	return nil
}

// FindOrCreate returns the attribute with the given AD, appending a new
// empty one if create is true and none exists yet.
func (e *Entry) FindOrCreate(ad string, create bool) *Attribute {
	if a := e.Find(ad); a != nil {
		return a
	}
	if !create {
		return nil
	}
	a := &Attribute{AD: ad}
	e.Attributes = append(e.Attributes, a)
	return a
}

// Append adds a new attribute. Callers are responsible for not
// duplicating an AD already present; Append does not check.
func (e *Entry) Append(a *Attribute) {
	e.Attributes = append(e.Attributes, a)
}

// Remove deletes the attribute with the given AD, reporting whether one
// was found.
func (e *Entry) Remove(ad string) bool {
	for i, a := range e.Attributes {
		if a.AD == ad {
			e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
			return true
		}
	}
	return false
}

// CompareDN orders two entries by DN, suitable for sorting a slice of
// entries into a deterministic sequence.
func CompareDN(a, b *Entry) int {
	switch {
	case a.DN < b.DN:
		return -1
	case a.DN > b.DN:
		return 1
	default:
		return 0
	}
}

// Attribute is an AD plus an ordered sequence of values. Duplicate
// values within one attribute are disallowed by the interactive editor
// flow but MUST be tolerated here by parsers and comparators.
type Attribute struct {
	AD     string
	Values [][]byte
}

// CompareAD orders two attributes by AD.
func CompareAD(a, b *Attribute) int {
	switch {
	case a.AD < b.AD:
		return -1
	case a.AD > b.AD:
		return 1
	default:
		return 0
	}
}

// AppendValue adds a value to the attribute.
func (a *Attribute) AppendValue(v []byte) {
	a.Values = append(a.Values, v)
}

// FindValue returns the index of v within the attribute's values, or -1.
func (a *Attribute) FindValue(v []byte) int {
	for i, existing := range a.Values {
		if bytes.Equal(existing, v) {
			return i
		}
	}
	return -1
}

// RemoveValue deletes the value at index i.
func (a *Attribute) RemoveValue(i int) {
	a.Values = append(a.Values[:i], a.Values[i+1:]...)
}

// HasValues reports whether the attribute's value multiset exactly
// matches other's, ignoring order. Used by the diff engine's
// unchanged-attribute check.
func (a *Attribute) HasValues(other *Attribute) bool {
	if len(a.Values) != len(other.Values) {
		return false
	}
	used := make([]bool, len(other.Values))
	for _, v := range a.Values {
		found := false
		for i, ov := range other.Values {
			if used[i] {
				continue
			}
			if bytes.Equal(v, ov) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Operation identifies the kind of a single modification within a
// change batch.
type Operation int

const (
	OpAdd Operation = iota
	OpDelete
	OpReplace
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Modification is one (operation, AD, values) tuple within a change
// batch. A delete with a nil/empty Values removes the whole attribute.
type Modification struct {
	Op     Operation
	AD     string
	Values [][]byte
}

// ChangeBatch is a DN plus an ordered sequence of modifications,
// dispatched together as one LDAP modify operation.
type ChangeBatch struct {
	DN            string
	Modifications []*Modification
}

// RenameDescriptor carries the parameters of an LDAP modrdn operation.
type RenameDescriptor struct {
	OldDN        string
	NewRDN       string
	NewSuperior  string // optional; empty means unchanged superior
	DeleteOldRDN bool
}

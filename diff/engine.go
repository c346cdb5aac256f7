// Package diff implements the comparison half of the editing cycle: it
// walks a freely-edited data document record by record, reconstructs
// the minimal set of LDAP operations that would turn the clean
// document into it, and dispatches them through a Handler. §4.8.
package diff

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/ldif"
)

// Engine runs the diff algorithm for one format, native or strict.
type Engine struct {
	Parser ldif.Parser
}

// NewEngine returns an Engine reading both documents with p.
func NewEngine(p ldif.Parser) *Engine {
	return &Engine{Parser: p}
}

// Run walks data against clean and idx, dispatching one Handler call
// per changed, added, renamed or deleted record, then sweeping idx for
// clean records the data document dropped entirely. idx is restored to
// its pre-call state before Run returns, on every path including every
// error.
//
// clean and data may be the same underlying file opened twice, or two
// distinct files; Run only ever seeks and reads through the Source
// interface; it never assumes ambient position is preserved between
// calls.
func (eng *Engine) Run(clean, data ldif.Source, idx *OffsetIndex, handler Handler) error {
	defer idx.Restore()

	pos := int64(0)
	for {
		key, recOffset, err := eng.Parser.Peek(data, pos)
		if err != nil {
			return wrapSyntax(err, pos)
		}
		if key == "" {
			break
		}

		switch key {
		case ldif.KeyAdd:
			_, e, next, err := eng.Parser.ReadEntry(data, pos)
			if err != nil {
				return wrapSyntax(err, recOffset)
			}
			if herr := handler.Add(-1, e.DN, addModifications(e)); herr != nil {
				return &HandlerError{Offset: recOffset, Err: herr}
			}
			pos = next

		case ldif.KeyDelete:
			dn, next, err := eng.Parser.ReadDelete(data, pos)
			if err != nil {
				return wrapSyntax(err, recOffset)
			}
			if herr := handler.Delete(-1, dn); herr != nil {
				return &HandlerError{Offset: recOffset, Err: herr}
			}
			pos = next

		case ldif.KeyModify:
			dn, batch, next, err := eng.Parser.ReadModify(data, pos)
			if err != nil {
				return wrapSyntax(err, recOffset)
			}
			if herr := handler.Change(-1, dn, dn, batch.Modifications); herr != nil {
				return &HandlerError{Offset: recOffset, Err: herr}
			}
			pos = next

		case ldif.KeyRename:
			rn, next, err := eng.Parser.ReadRename(data, pos)
			if err != nil {
				return wrapSyntax(err, recOffset)
			}
			newDN := rn.NewRDN
			if rn.NewSuperior != "" {
				newDN = rn.NewRDN + "," + rn.NewSuperior
			}
			if herr := handler.Rename0(-1, rn.OldDN, newDN, rn.DeleteOldRDN); herr != nil {
				return &HandlerError{Offset: recOffset, Err: herr}
			}
			pos = next

		default:
			n, ok := parseIntKey(key)
			if !ok {
				return &SemanticError{Offset: recOffset, Err: ErrMalformedKey}
			}
			cleanOffset, inRange := idx.Offset(n)
			if !inRange {
				return &SemanticError{Offset: recOffset, Err: ErrKeyOutOfRange}
			}
			if idx.Seen(n) {
				return &SemanticError{Offset: recOffset, Err: ErrDuplicateKey}
			}

			_, dataEntry, next, err := eng.Parser.ReadEntry(data, pos)
			if err != nil {
				return wrapSyntax(err, recOffset)
			}

			unchanged, err := eng.fastEqual(clean, cleanOffset, recOffset, next-recOffset, data)
			if err != nil {
				return err
			}
			if unchanged {
				idx.MarkSeen(n)
				pos = next
				continue
			}

			_, cleanEntry, _, err := eng.Parser.ReadEntry(clean, cleanOffset)
			if err != nil {
				return wrapSyntax(err, cleanOffset)
			}

			if cleanEntry.DN != dataEntry.DN {
				if err := validateRename(cleanEntry, dataEntry); err != nil {
					return &SemanticError{Offset: recOffset, Err: err}
				}
				if herr := handler.Rename(n, cleanEntry.DN, dataEntry); herr != nil {
					return &HandlerError{Offset: recOffset, Err: herr}
				}
			} else if !sameAttributes(cleanEntry, dataEntry) {
				mods := computeModifications(cleanEntry, dataEntry)
				if len(mods) > 0 {
					if herr := handler.Change(n, cleanEntry.DN, dataEntry.DN, mods); herr != nil {
						return &HandlerError{Offset: recOffset, Err: herr}
					}
				}
			}

			idx.MarkSeen(n)
			pos = next
		}
	}

	for _, n := range idx.Unseen() {
		offset, _ := idx.Offset(n)
		_, cleanEntry, _, err := eng.Parser.ReadEntry(clean, offset)
		if err != nil {
			return wrapSyntax(err, offset)
		}
		if herr := handler.Delete(n, cleanEntry.DN); herr != nil {
			return &HandlerError{Offset: offset, Err: herr}
		}
	}
	return nil
}

// fastEqual is the heuristic from §4.8: rather than fully parsing and
// comparing two entries, first compare the raw bytes of the clean
// record against the same-length region of the data record. A byte
// match proves the records are identical without decoding either one.
// A mismatch proves nothing - it falls through to the full parse-and-
// compare path - since two entries can be byte-different yet
// semantically equal (reordered attributes or values).
func (eng *Engine) fastEqual(clean ldif.Source, cleanOffset, dataOffset, length int64, data ldif.Source) (bool, error) {
	if length <= 0 {
		return false, nil
	}
	cb := make([]byte, length)
	if _, err := clean.Seek(cleanOffset, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := io.ReadFull(clean, cb); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	db := make([]byte, length)
	if _, err := data.Seek(dataOffset, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := io.ReadFull(data, db); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(cb, db), nil
}

// validateRename implements §4.8's rename-validation rule: the old
// entry's leading RDN attribute must actually hold the RDN's value,
// and neither DN may be empty. The handler decides delete-old-RDN
// itself, by checking whether the new entry still carries that value.
func validateRename(cleanEntry, dataEntry *entry.Entry) error {
	if cleanEntry.DN == "" || dataEntry.DN == "" {
		return ErrInvalidRename
	}
	ad, value, ok := splitRDN(cleanEntry.DN)
	if !ok {
		return ErrInvalidRename
	}
	oldAttr := cleanEntry.Find(ad)
	if oldAttr == nil || oldAttr.FindValue([]byte(value)) < 0 {
		return ErrInvalidRename
	}
	return nil
}

func splitRDN(dn string) (ad, value string, ok bool) {
	rdn := dn
	if i := strings.IndexByte(dn, ','); i >= 0 {
		rdn = dn[:i]
	}
	i := strings.IndexByte(rdn, '=')
	if i < 0 {
		return "", "", false
	}
	return rdn[:i], rdn[i+1:], true
}

// sameAttributes reports whether two entries carry the same attributes
// with the same value multisets, ignoring both attribute order and
// value order - neither is a change per §8's boundary behaviors.
func sameAttributes(a, b *entry.Entry) bool {
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for _, att := range a.Attributes {
		other := b.Find(att.AD)
		if other == nil || !att.HasValues(other) {
			return false
		}
	}
	return true
}

// computeModifications reduces two attribute sets to the minimal
// per-attribute modify list: an add for an AD only in b, a delete for
// an AD only in a, and a replace for an AD present in both whose value
// multiset differs.
func computeModifications(a, b *entry.Entry) []*entry.Modification {
	var mods []*entry.Modification
	for _, att := range a.Attributes {
		other := b.Find(att.AD)
		if other == nil {
			mods = append(mods, &entry.Modification{Op: entry.OpDelete, AD: att.AD})
		} else if !att.HasValues(other) {
			mods = append(mods, &entry.Modification{Op: entry.OpReplace, AD: att.AD, Values: other.Values})
		}
	}
	for _, att := range b.Attributes {
		if a.Find(att.AD) == nil {
			mods = append(mods, &entry.Modification{Op: entry.OpAdd, AD: att.AD, Values: att.Values})
		}
	}
	return mods
}

func addModifications(e *entry.Entry) []*entry.Modification {
	mods := make([]*entry.Modification, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		mods = append(mods, &entry.Modification{Op: entry.OpAdd, AD: a.AD, Values: a.Values})
	}
	return mods
}

func parseIntKey(key string) (int, bool) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func wrapSyntax(err error, fallbackOffset int64) error {
	var se *ldif.SyntaxError
	if errors.As(err, &se) {
		return se
	}
	return &ldif.SyntaxError{Offset: fallbackOffset, Err: err}
}

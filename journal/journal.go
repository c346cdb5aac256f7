// Package journal is an append-only audit trail of dispatched
// directory operations: one line per add/delete/change/rename, in
// dispatch order, each prefixed with a monotonic sequence number.
// Adapted from the teacher's Perforce journal writer (db.change/
// db.rev style records numbered by changelist) into a concrete
// diff.Handler implementation - the "handler-like sink" alongside the
// interactive session's own dispatch handler.
package journal

import (
	"fmt"
	"io"
	"os"

	"github.com/ldapvi-go/ldapvi/diff"
	"github.com/ldapvi-go/ldapvi/entry"
)

// Journal appends one record per dispatched operation to w.
type Journal struct {
	filename string
	w        io.Writer
	seq      int
}

var _ diff.Handler = (*Journal)(nil)

// Open creates filename (truncating it if it already exists) and
// returns a Journal that appends to it.
func Open(filename string) (*Journal, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("journal: creating %s: %w", filename, err)
	}
	return &Journal{filename: filename, w: f}, nil
}

// NewWriter wraps an already-open writer, bypassing Open - used by
// tests and by callers composing the journal with another sink.
func NewWriter(w io.Writer) *Journal {
	return &Journal{w: w}
}

func (j *Journal) next() int {
	j.seq++
	return j.seq
}

func (j *Journal) Add(key int, dn string, mods []*entry.Modification) error {
	_, err := fmt.Fprintf(j.w, "%d add %s attrs=%d\n", j.next(), dn, len(mods))
	return err
}

func (j *Journal) Delete(key int, dn string) error {
	_, err := fmt.Fprintf(j.w, "%d delete %s\n", j.next(), dn)
	return err
}

func (j *Journal) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	_, err := fmt.Fprintf(j.w, "%d change %s mods=%d\n", j.next(), newDN, len(mods))
	return err
}

func (j *Journal) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	_, err := fmt.Fprintf(j.w, "%d rename %s -> %s\n", j.next(), oldDN, newEntry.DN)
	return err
}

func (j *Journal) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	_, err := fmt.Fprintf(j.w, "%d rename %s -> %s deleteOldRDN=%v\n", j.next(), oldDN, newDN, deleteOldRDN)
	return err
}

// Close closes the underlying file, if Open created one.
func (j *Journal) Close() error {
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Tee returns a diff.Handler that dispatches to primary first and,
// only if primary succeeds, records the same call on j - so a failed
// dispatch never gets journaled as having happened.
func (j *Journal) Tee(primary diff.Handler) diff.Handler {
	return teeHandler{primary: primary, journal: j}
}

type teeHandler struct {
	primary diff.Handler
	journal *Journal
}

func (t teeHandler) Add(key int, dn string, mods []*entry.Modification) error {
	if err := t.primary.Add(key, dn, mods); err != nil {
		return err
	}
	return t.journal.Add(key, dn, mods)
}

func (t teeHandler) Delete(key int, dn string) error {
	if err := t.primary.Delete(key, dn); err != nil {
		return err
	}
	return t.journal.Delete(key, dn)
}

func (t teeHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	if err := t.primary.Change(key, oldDN, newDN, mods); err != nil {
		return err
	}
	return t.journal.Change(key, oldDN, newDN, mods)
}

func (t teeHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	if err := t.primary.Rename(key, oldDN, newEntry); err != nil {
		return err
	}
	return t.journal.Rename(key, oldDN, newEntry)
}

func (t teeHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	if err := t.primary.Rename0(key, oldDN, newDN, deleteOldRDN); err != nil {
		return err
	}
	return t.journal.Rename0(key, oldDN, newDN, deleteOldRDN)
}

var _ diff.Handler = teeHandler{}

package ldif

import (
	"io"
	"strconv"
	"strings"

	"github.com/ldapvi-go/ldapvi/codec"
	"github.com/ldapvi-go/ldapvi/entry"
)

// Strict implements Parser for the standards-conforming textual format
// (LDIF): "attr: value" / "attr:: base64value" / "attr:< url" lines,
// folded continuations (a leading space joins onto the previous
// logical line), "#"-prefixed comments, and a changetype field
// selecting add/delete/modify/modrdn record kinds. Control lines are
// rejected outright.
type Strict struct{}

var _ Parser = Strict{}

// lineReader yields the logical (folding-joined) lines of one record,
// reporting a blank line or EOF as the record terminator. Lines read
// ahead (to detect folding, or handed back by a caller) are kept on a
// small pushback stack, so folding can be detected without
// cursor-level pushback.
type lineReader struct {
	cur     *cursor
	pending [][]byte
}

func (lr *lineReader) nextPhysical() ([]byte, error) {
	if n := len(lr.pending); n > 0 {
		line := lr.pending[n-1]
		lr.pending = lr.pending[:n-1]
		return line, nil
	}
	return lr.cur.readLine()
}

func (lr *lineReader) pushback(line []byte) {
	lr.pending = append(lr.pending, line)
}

// nextLogical returns the next logical line, folding in any
// space-prefixed continuations and discarding comment lines (and their
// own continuations). terminator is true at a blank line or EOF.
func (lr *lineReader) nextLogical() (line string, terminator bool, err error) {
	raw, err := lr.nextPhysical()
	if err == io.EOF {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(raw) == 0 {
		return "", true, nil
	}
	if raw[0] == '#' {
		for {
			next, err := lr.nextPhysical()
			if err == io.EOF {
				return "", true, nil
			}
			if err != nil {
				return "", false, err
			}
			if len(next) > 0 && next[0] == ' ' {
				continue
			}
			lr.pushback(next)
			break
		}
		return lr.nextLogical()
	}
	buf := append([]byte{}, raw...)
	for {
		next, err := lr.nextPhysical()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		if len(next) > 0 && next[0] == ' ' {
			buf = append(buf, next[1:]...)
			continue
		}
		lr.pushback(next)
		break
	}
	return string(buf), false, nil
}

// splitLDIFLine splits a logical "name:..." line into its name and
// decoded value, honoring the ":: base64" and ":< url" forms.
func splitLDIFLine(line string) (name string, value []byte, err error) {
	if line == "-" {
		return "", nil, ErrUnexpectedDash
	}
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", nil, ErrMissingField
	}
	name = line[:idx]
	rest := line[idx+1:]
	switch {
	case strings.HasPrefix(rest, ":"):
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, ":"), " ")
		v, err := codec.DecodeBase64(rest)
		return name, v, err
	case strings.HasPrefix(rest, "<"):
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, "<"), " ")
		v, err := codec.ReadFileURL(rest)
		return name, v, err
	default:
		rest = strings.TrimPrefix(rest, " ")
		return name, []byte(rest), nil
	}
}

// header is the common preamble of every strict-format record.
type header struct {
	dn           string
	ldapviKey    string
	changetype   string
	recordOffset int64
}

func (Strict) readHeader(cur *cursor) (*header, *lineReader, error) {
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return nil, nil, err
	}
	recordOffset := cur.offset()
	lr := &lineReader{cur: cur}

	line, term, err := lr.nextLogical()
	if err != nil {
		return nil, nil, err
	}
	if term {
		return &header{recordOffset: recordOffset}, lr, io.EOF
	}
	if strings.HasPrefix(line, "control:") {
		return nil, nil, &SyntaxError{Offset: cur.offset(), Err: ErrUnsupportedCtrl}
	}
	if strings.HasPrefix(line, "version:") {
		v := strings.TrimSpace(strings.TrimPrefix(line, "version:"))
		if v != "1" {
			return nil, nil, &SyntaxError{Offset: cur.offset(), Err: ErrBadVersion}
		}
		line, term, err = lr.nextLogical()
		if err != nil {
			return nil, nil, err
		}
		if term {
			return &header{recordOffset: recordOffset}, lr, io.EOF
		}
	}
	name, value, err := splitLDIFLine(line)
	if err != nil || name != "dn" {
		return nil, nil, &SyntaxError{Offset: cur.offset(), Err: ErrBadDN}
	}
	h := &header{dn: string(value), recordOffset: recordOffset}

	for {
		line, term, err = lr.nextLogical()
		if err != nil {
			return nil, nil, err
		}
		if term {
			lr.pushback(nil)
			return h, lr, nil
		}
		name, value, err := splitLDIFLine(line)
		if err != nil {
			return nil, nil, &SyntaxError{Offset: cur.offset(), Err: err}
		}
		switch name {
		case "ldapvi-key":
			h.ldapviKey = string(value)
			continue
		case "changetype":
			h.changetype = string(value)
		default:
			lr.pushback([]byte(line))
		}
		return h, lr, nil
	}
}

// key classifies a parsed header per spec.md §4.4: changetype records
// report their literal verb; a plain entry reports its ldapvi-key (or
// "entry", the native format's keyless label, if untagged).
func (h *header) key() string {
	switch h.changetype {
	case "add", "delete", "modify":
		return h.changetype
	case "modrdn", "moddn":
		return KeyRename
	}
	if h.ldapviKey == "" {
		return "entry"
	}
	return h.ldapviKey
}

func (s Strict) Peek(src Source, start int64) (string, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", 0, err
	}
	h, _, err := s.readHeader(cur)
	if err == io.EOF {
		return "", h.recordOffset, nil
	}
	if err != nil {
		return "", 0, err
	}
	return h.key(), h.recordOffset, nil
}

func (s Strict) Skip(src Source, start int64) (int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return 0, err
	}
	_, lr, err := s.readHeader(cur)
	if err == io.EOF {
		return cur.offset(), nil
	}
	if err != nil {
		return 0, err
	}
	for {
		_, term, err := lr.nextLogical()
		if err != nil {
			return 0, err
		}
		if term {
			break
		}
	}
	return cur.offset(), nil
}

func (s Strict) ReadEntry(src Source, start int64) (string, *entry.Entry, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", nil, 0, err
	}
	h, lr, err := s.readHeader(cur)
	if err == io.EOF {
		return "", nil, cur.offset(), nil
	}
	if err != nil {
		return "", nil, 0, synerr(cur, err)
	}
	e := entry.NewEntry(h.dn)
	for {
		line, term, err := lr.nextLogical()
		if err != nil {
			return "", nil, 0, synerr(cur, err)
		}
		if term {
			break
		}
		name, value, err := splitLDIFLine(line)
		if err != nil {
			return "", nil, 0, synerr(cur, err)
		}
		e.FindOrCreate(name, true).AppendValue(value)
	}
	return h.key(), e, cur.offset(), nil
}

func (s Strict) ReadDelete(src Source, start int64) (string, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", 0, err
	}
	h, lr, err := s.readHeader(cur)
	if err != nil {
		return "", 0, synerr(cur, err)
	}
	if h.changetype != "delete" {
		return "", 0, synerr(cur, ErrBadVerb)
	}
	for {
		_, term, err := lr.nextLogical()
		if err != nil {
			return "", 0, synerr(cur, err)
		}
		if term {
			break
		}
	}
	return h.dn, cur.offset(), nil
}

func (s Strict) ReadModify(src Source, start int64) (string, *entry.ChangeBatch, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", nil, 0, err
	}
	h, lr, err := s.readHeader(cur)
	if err != nil {
		return "", nil, 0, synerr(cur, err)
	}
	if h.changetype != "modify" {
		return "", nil, 0, synerr(cur, ErrBadVerb)
	}
	batch := &entry.ChangeBatch{DN: h.dn}
	for {
		line, term, err := lr.nextLogical()
		if err != nil {
			return "", nil, 0, synerr(cur, err)
		}
		if term {
			break
		}
		name, value, err := splitLDIFLine(line)
		if err != nil {
			return "", nil, 0, synerr(cur, err)
		}
		var op entry.Operation
		switch name {
		case "add":
			op = entry.OpAdd
		case "delete":
			op = entry.OpDelete
		case "replace":
			op = entry.OpReplace
		default:
			return "", nil, 0, synerr(cur, ErrBadVerb)
		}
		mod := &entry.Modification{Op: op, AD: string(value)}
		for {
			vline, term, err := lr.nextLogical()
			if err != nil {
				return "", nil, 0, synerr(cur, err)
			}
			if term {
				return "", nil, 0, synerr(cur, ErrTruncatedRecord)
			}
			if vline == "-" {
				break
			}
			vname, vvalue, err := splitLDIFLine(vline)
			if err != nil {
				return "", nil, 0, synerr(cur, err)
			}
			if !strings.EqualFold(vname, mod.AD) {
				return "", nil, 0, synerr(cur, ErrADMismatch)
			}
			mod.Values = append(mod.Values, vvalue)
		}
		batch.Modifications = append(batch.Modifications, mod)
	}
	return h.dn, batch, cur.offset(), nil
}

func (s Strict) ReadRename(src Source, start int64) (*entry.RenameDescriptor, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return nil, 0, err
	}
	h, lr, err := s.readHeader(cur)
	if err != nil {
		return nil, 0, synerr(cur, err)
	}
	if h.changetype != "modrdn" && h.changetype != "moddn" {
		return nil, 0, synerr(cur, ErrBadVerb)
	}
	rn := &entry.RenameDescriptor{OldDN: h.dn}
	haveRDN, haveDelete := false, false
	for {
		line, term, err := lr.nextLogical()
		if err != nil {
			return nil, 0, synerr(cur, err)
		}
		if term {
			break
		}
		name, value, err := splitLDIFLine(line)
		if err != nil {
			return nil, 0, synerr(cur, err)
		}
		switch name {
		case "newrdn":
			rn.NewRDN = string(value)
			haveRDN = true
		case "deleteoldrdn":
			n, err := strconv.Atoi(strings.TrimSpace(string(value)))
			if err != nil || (n != 0 && n != 1) {
				return nil, 0, synerr(cur, ErrMissingField)
			}
			rn.DeleteOldRDN = n == 1
			haveDelete = true
		case "newsuperior":
			rn.NewSuperior = string(value)
		}
	}
	if !haveRDN || !haveDelete {
		return nil, 0, synerr(cur, ErrMissingField)
	}
	if rn.NewSuperior == "" {
		_, superior := splitDN(h.dn)
		rn.NewSuperior = superior
	}
	return rn, cur.offset(), nil
}

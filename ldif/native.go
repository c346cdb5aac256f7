package ldif

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/ldapvi-go/ldapvi/codec"
	"github.com/ldapvi-go/ldapvi/entry"
)

// Native implements Parser for the compact native format described by
// test_parse.c: a record is a key, a DN, and a body of key-specific
// lines, separated from the next record by a blank line. Values carry
// an optional ":tag" encoding suffix on their attribute description;
// bare "AD value" (no colon, or a colon with an empty tag) is plain
// text, where a trailing unescaped backslash continues the value onto
// the next line.
type Native struct{}

var _ Parser = Native{}

func (Native) Peek(src Source, start int64) (string, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", 0, err
	}
	key, _, recordOffset, err := readVersionThenKey(cur)
	if err == io.EOF {
		return "", recordOffset, nil
	}
	if err != nil {
		return "", 0, err
	}
	return key, recordOffset, nil
}

func (n Native) Skip(src Source, start int64) (int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return 0, err
	}
	key, _, _, err := readVersionThenKey(cur)
	if err == io.EOF {
		return cur.offset(), nil
	}
	if err != nil {
		return 0, err
	}
	switch key {
	case KeyDelete:
		if err := skipDNLine(cur); err != nil {
			return 0, err
		}
	case KeyModify:
		if err := skipModifyBody(cur); err != nil {
			return 0, err
		}
	case KeyRename:
		if err := skipRenameBody(cur); err != nil {
			return 0, err
		}
	default:
		if err := skipEntryBody(cur); err != nil {
			return 0, err
		}
	}
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return 0, err
	}
	return cur.offset(), nil
}

func (n Native) ReadEntry(src Source, start int64) (string, *entry.Entry, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", nil, 0, err
	}
	key, dn, _, err := readVersionThenKey(cur)
	if err == io.EOF {
		return "", nil, cur.offset(), nil
	}
	if err != nil {
		return "", nil, 0, err
	}
	e := entry.NewEntry(dn)
	for {
		done, err := readAttrLineInto(cur, e)
		if err != nil {
			return "", nil, 0, err
		}
		if done {
			break
		}
	}
	return key, e, cur.offset(), nil
}

func (n Native) ReadDelete(src Source, start int64) (string, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", 0, err
	}
	key, dn, _, err := readVersionThenKey(cur)
	if err != nil {
		return "", 0, synerr(cur, err)
	}
	if key != KeyDelete {
		return "", 0, synerr(cur, fmt.Errorf("%w: expected delete", ErrBadVerb))
	}
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return "", 0, err
	}
	return dn, cur.offset(), nil
}

func (n Native) ReadModify(src Source, start int64) (string, *entry.ChangeBatch, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return "", nil, 0, err
	}
	key, dn, _, err := readVersionThenKey(cur)
	if err != nil {
		return "", nil, 0, synerr(cur, err)
	}
	if key != KeyModify {
		return "", nil, 0, synerr(cur, fmt.Errorf("%w: expected modify", ErrBadVerb))
	}
	batch := &entry.ChangeBatch{DN: dn}
	ended := false
	for !ended {
		blank, err := cur.peekBlankOrEOF()
		if err != nil {
			return "", nil, 0, err
		}
		if blank {
			break
		}
		head, err := cur.readLine()
		if err != nil {
			return "", nil, 0, synerr(cur, err)
		}
		op, ad, ok := splitModOp(string(head))
		if !ok {
			return "", nil, 0, synerr(cur, fmt.Errorf("%w: %q", ErrBadVerb, head))
		}
		mod := &entry.Modification{Op: op, AD: ad}
		for {
			blank, err := cur.peekBlankOrEOF()
			if err != nil {
				return "", nil, 0, err
			}
			if blank {
				ended = true
				break
			}
			first, err := cur.readByte()
			if err != nil {
				return "", nil, 0, err
			}
			if first != ' ' {
				cur.unreadByte()
				break
			}
			line, err := cur.readLine()
			if err != nil {
				return "", nil, 0, err
			}
			mod.Values = append(mod.Values, decodedCopy(line))
		}
		batch.Modifications = append(batch.Modifications, mod)
	}
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return "", nil, 0, err
	}
	return dn, batch, cur.offset(), nil
}

func (n Native) ReadRename(src Source, start int64) (*entry.RenameDescriptor, int64, error) {
	cur, err := newCursor(src, start)
	if err != nil {
		return nil, 0, err
	}
	key, dn, _, err := readVersionThenKey(cur)
	if err != nil {
		return nil, 0, synerr(cur, err)
	}
	if key != KeyRename {
		return nil, 0, synerr(cur, fmt.Errorf("%w: expected rename", ErrBadVerb))
	}
	line, err := cur.readLine()
	if err != nil {
		return nil, 0, synerr(cur, err)
	}
	verb, newDN, ok := splitSP(line)
	if !ok {
		return nil, 0, synerr(cur, fmt.Errorf("%w: malformed rename target", ErrBadVerb))
	}
	var deleteOld bool
	switch verb {
	case "add":
		deleteOld = false
	case "replace":
		deleteOld = true
	default:
		return nil, 0, synerr(cur, fmt.Errorf("%w: %q", ErrBadVerb, verb))
	}
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return nil, 0, err
	}
	newRDN, newSuperior := splitDN(newDN)
	return &entry.RenameDescriptor{OldDN: dn, NewRDN: newRDN, NewSuperior: newSuperior, DeleteOldRDN: deleteOld}, cur.offset(), nil
}

// splitDN splits a DN into its leading RDN and the remaining superior
// DN (empty for a root entry with no comma).
func splitDN(dn string) (rdn, superior string) {
	idx := bytes.IndexByte([]byte(dn), ',')
	if idx < 0 {
		return dn, ""
	}
	return dn[:idx], dn[idx+1:]
}

// --- shared helpers ---

func synerr(cur *cursor, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*SyntaxError); ok {
		return se
	}
	return &SyntaxError{Offset: cur.offset(), Err: err}
}

// readVersionThenKey skips leading blank lines, consumes an optional
// "version ldapvi" line (rejecting any other version string), skips any
// further blank lines, and reads the record's key line. recordOffset is
// the byte offset of the key line itself (where the record "starts"
// for Peek's purposes). io.EOF (with recordOffset valid) means nothing
// but blank lines/EOF remained.
func readVersionThenKey(cur *cursor) (key, dn string, recordOffset int64, err error) {
	if err := cur.skipBlankLines(); err != nil && err != io.EOF {
		return "", "", 0, err
	}
	blank, err := cur.peekBlankOrEOF()
	if err != nil {
		return "", "", cur.offset(), err
	}
	if blank {
		return "", "", cur.offset(), io.EOF
	}
	line, err := cur.readLine()
	if err != nil {
		return "", "", cur.offset(), err
	}
	if bytes.HasPrefix(line, []byte("version ")) {
		if string(bytes.TrimPrefix(line, []byte("version "))) != "ldapvi" {
			return "", "", cur.offset(), &SyntaxError{Offset: cur.offset(), Err: ErrBadVersion}
		}
		if err := cur.skipBlankLines(); err != nil && err != io.EOF {
			return "", "", 0, err
		}
		blank, err := cur.peekBlankOrEOF()
		if err != nil {
			return "", "", cur.offset(), err
		}
		if blank {
			return "", "", cur.offset(), io.EOF
		}
		line, err = cur.readLine()
		if err != nil {
			return "", "", cur.offset(), err
		}
	}
	recordOffset = cur.offset() - int64(len(line)) - 1
	k, rest, ok := splitSP(line)
	if !ok || rest == "" {
		return "", "", recordOffset, &SyntaxError{Offset: cur.offset(), Err: ErrBadDN}
	}
	return k, rest, recordOffset, nil
}

// splitSP splits "word rest-of-line" on the first space.
func splitSP(line []byte) (word, rest string, ok bool) {
	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return string(line), "", false
	}
	return string(line[:idx]), string(line[idx+1:]), true
}

func splitModOp(head string) (entry.Operation, string, bool) {
	idx := bytes.IndexByte([]byte(head), ' ')
	var verb, ad string
	if idx >= 0 {
		verb, ad = head[:idx], head[idx+1:]
	} else {
		verb = head
	}
	switch verb {
	case "add":
		return entry.OpAdd, ad, ad != ""
	case "replace":
		return entry.OpReplace, ad, ad != ""
	case "delete":
		return entry.OpDelete, ad, ad != ""
	}
	return 0, "", false
}

// readAttrHead reads "AD[:tag]" up through the separating space.
func readAttrHead(cur *cursor) (head []byte, blank bool, err error) {
	var buf bytes.Buffer
	for {
		b, err := cur.readByte()
		if err != nil {
			if err == io.EOF {
				if buf.Len() == 0 {
					return nil, true, nil
				}
				return nil, false, ErrMissingField
			}
			return nil, false, err
		}
		if b == '\n' {
			if buf.Len() == 0 {
				return nil, true, nil
			}
			return nil, false, ErrMissingField
		}
		if b == ' ' {
			return buf.Bytes(), false, nil
		}
		buf.WriteByte(b)
	}
}

func decodedCopy(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// readAttrLineInto reads one attr-line (or detects the record's
// terminating blank line) and, unless blank, appends the decoded value
// to e. It reports done == true once the blank terminator is reached.
func readAttrLineInto(cur *cursor, e *entry.Entry) (done bool, err error) {
	head, blank, err := readAttrHead(cur)
	if err != nil {
		return false, synerr(cur, err)
	}
	if blank {
		return true, nil
	}
	ad, tagStr, hasTag := splitADTag(head)
	if !hasTag || tagStr == "" {
		value, err := readPlainValue(cur, nil)
		if err != nil {
			return false, synerr(cur, err)
		}
		e.FindOrCreate(ad, true).AppendValue(value)
		return false, nil
	}
	if n, isNum := parseDecimal(tagStr); isNum {
		value, err := cur.readN(n)
		if err != nil {
			return false, synerr(cur, codec.ErrTruncatedLength)
		}
		if lf, err := cur.readByte(); err != nil || lf != '\n' {
			return false, synerr(cur, ErrMissingField)
		}
		e.FindOrCreate(ad, true).AppendValue(value)
		return false, nil
	}
	tag, ok := codec.ParseTag(tagStr)
	if !ok {
		return false, synerr(cur, codec.ErrUnknownEncoding)
	}
	rest, err := cur.readLine()
	if err != nil {
		return false, synerr(cur, err)
	}
	var value []byte
	switch tag {
	case codec.TagQuoted:
		value, err = readPlainValue(cur, rest)
	case codec.TagBase64:
		value, err = codec.DecodeBase64(string(rest))
	case codec.TagFileURL:
		value, err = codec.ReadFileURL(string(rest))
	case codec.TagHashSHA, codec.TagHashSSHA, codec.TagHashMD5, codec.TagHashSMD5, codec.TagHashCrypt, codec.TagHashCryptMD5:
		value, err = codec.HashPassword(tag, rest, nil)
	default:
		value, err = readPlainValue(cur, rest)
	}
	if err != nil {
		return false, synerr(cur, err)
	}
	e.FindOrCreate(ad, true).AppendValue(value)
	return false, nil
}

func parseDecimal(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func splitADTag(head []byte) (ad string, tag string, hasTag bool) {
	idx := bytes.IndexByte(head, ':')
	if idx < 0 {
		return string(head), "", false
	}
	return string(head[:idx]), string(head[idx+1:]), true
}

// readPlainValue unescapes a plain/quoted value, following a trailing
// unescaped backslash onto subsequent physical lines. first, when
// non-nil, is the first line's already-read bytes (with the "AD value"
// header already stripped); when nil the caller hasn't read any line
// yet and one is read here.
func readPlainValue(cur *cursor, first []byte) ([]byte, error) {
	line := first
	if line == nil {
		l, err := cur.readLine()
		if err != nil {
			return nil, err
		}
		line = l
	}
	var buf bytes.Buffer
	for {
		i := 0
		cont := false
		for i < len(line) {
			if line[i] == '\\' {
				if i+1 < len(line) {
					buf.WriteByte('\\')
					if line[i+1] == '\\' {
						i += 2
					} else {
						i++
					}
					continue
				}
				cont = true
				i++
				continue
			}
			buf.WriteByte(line[i])
			i++
		}
		if !cont {
			break
		}
		buf.WriteByte('\n')
		next, err := cur.readLine()
		if err != nil {
			return nil, err
		}
		line = next
	}
	return append([]byte{}, buf.Bytes()...), nil
}

func skipDNLine(cur *cursor) error {
	_, err := cur.readLine()
	return err
}

func skipEntryBody(cur *cursor) error {
	discard := entry.NewEntry("")
	for {
		done, err := readAttrLineInto(cur, discard)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func skipModifyBody(cur *cursor) error {
	for {
		blank, err := cur.peekBlankOrEOF()
		if err != nil {
			return err
		}
		if blank {
			return nil
		}
		if _, err := cur.readLine(); err != nil {
			return err
		}
	}
}

func skipRenameBody(cur *cursor) error {
	if _, err := cur.readLine(); err != nil {
		return err
	}
	return cur.skipBlankLines()
}

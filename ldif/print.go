package ldif

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ldapvi-go/ldapvi/codec"
	"github.com/ldapvi-go/ldapvi/entry"
)

// BinaryMode selects which bytes the Printer treats as literally readable
// before falling back to base64 (native and strict) or ";"-quoting
// (native only).
type BinaryMode int

const (
	// BinaryASCII: only ASCII printable bytes (plus LF) are readable.
	BinaryASCII BinaryMode = iota
	// BinaryUTF8: any valid UTF-8 text is readable.
	BinaryUTF8
	// BinaryJunk: every byte is treated as readable; a diagnostic mode.
	BinaryJunk
)

// Printer serializes entries and change batches in either textual
// format. The binary mode is bound at construction, per §9's
// instruction to avoid a process-wide global flag.
type Printer struct {
	Mode BinaryMode
}

// NewPrinter returns a Printer bound to mode.
func NewPrinter(mode BinaryMode) *Printer {
	return &Printer{Mode: mode}
}

func (p *Printer) readableForMode(v []byte) bool {
	switch p.Mode {
	case BinaryJunk:
		return true
	case BinaryUTF8:
		return utf8.Valid(v)
	default:
		for _, b := range v {
			if b != '\n' && (b < 0x20 || b > 0x7e) {
				return false
			}
		}
		return true
	}
}

// errWriter accumulates the first write error across a sequence of
// Fprintf calls so callers don't have to check every one.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// --- native format ---

// encodeNativeValue picks the attr-line tag and literal text for a
// value in the native format: plain when safe and readable, the ";"
// quoted form when it needs escaping but stays within the chosen
// binary mode, else base64.
func (p *Printer) encodeNativeValue(v []byte) (tag, text string) {
	if codec.IsSafeString(v) && p.readableForMode(v) {
		return "", string(v)
	}
	if bytes.IndexByte(v, 0) < 0 && bytes.IndexByte(v, '\r') < 0 && p.readableForMode(v) {
		return ";", escapeNative(v)
	}
	return "::", codec.EncodeBase64(v)
}

func escapeNative(v []byte) string {
	var buf bytes.Buffer
	for _, b := range v {
		switch b {
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString("\\\n")
		default:
			buf.WriteByte(b)
		}
	}
	return buf.String()
}

func (p *Printer) writeNativeAttrLine(ew *errWriter, ad string, v []byte) {
	tag, text := p.encodeNativeValue(v)
	switch tag {
	case "":
		ew.printf("%s %s\n", ad, text)
	case ";":
		ew.printf("%s:; %s\n", ad, text)
	default:
		ew.printf("%s:: %s\n", ad, text)
	}
}

// PrintNativeEntry writes an entry record. An empty key prints as the
// literal key "entry".
func (p *Printer) PrintNativeEntry(w io.Writer, e *entry.Entry, key string) error {
	if key == "" {
		key = "entry"
	}
	ew := &errWriter{w: w}
	ew.printf("\n%s %s\n", key, e.DN)
	for _, a := range e.Attributes {
		for _, v := range a.Values {
			p.writeNativeAttrLine(ew, a.AD, v)
		}
	}
	return ew.err
}

// PrintNativeAdd writes a synthesized add record: identical framing to
// PrintNativeEntry with the literal key "add".
func (p *Printer) PrintNativeAdd(w io.Writer, e *entry.Entry) error {
	return p.PrintNativeEntry(w, e, KeyAdd)
}

// PrintNativeDelete writes a delete record.
func (p *Printer) PrintNativeDelete(w io.Writer, dn string) error {
	ew := &errWriter{w: w}
	ew.printf("\n%s %s\n", KeyDelete, dn)
	return ew.err
}

// PrintNativeModify writes a modify record.
func (p *Printer) PrintNativeModify(w io.Writer, dn string, batch *entry.ChangeBatch) error {
	ew := &errWriter{w: w}
	ew.printf("\n%s %s\n", KeyModify, dn)
	for _, m := range batch.Modifications {
		ew.printf("%s %s\n", m.Op.String(), m.AD)
		for _, v := range m.Values {
			tag, text := p.encodeNativeValue(v)
			switch tag {
			case "":
				ew.printf(" %s\n", text)
			case ";":
				ew.printf(":; %s\n", text)
			default:
				ew.printf(":: %s\n", text)
			}
		}
	}
	return ew.err
}

// PrintNativeRename writes a rename record from oldDN to newEntry's DN.
// Only newEntry's DN is printed, not its attributes; deleteOldRDN is
// written as given ("replace" when true, "add" otherwise).
func (p *Printer) PrintNativeRename(w io.Writer, oldDN string, newEntry *entry.Entry, deleteOldRDN bool) error {
	ew := &errWriter{w: w}
	ew.printf("\n%s %s\n", KeyRename, oldDN)
	verb := "add"
	if deleteOldRDN {
		verb = "replace"
	}
	ew.printf("%s %s\n", verb, newEntry.DN)
	return ew.err
}

// PrintNativeRename0 writes a rename record in the immediate
// (modrdn-style) form: only the DNs and the delete-old-rdn flag, no
// full entry body.
func (p *Printer) PrintNativeRename0(w io.Writer, oldDN, newDN string, deleteOldRDN bool) error {
	ew := &errWriter{w: w}
	ew.printf("\n%s %s\n", KeyRename, oldDN)
	verb := "add"
	if deleteOldRDN {
		verb = "replace"
	}
	ew.printf("%s %s\n", verb, newDN)
	return ew.err
}

// --- strict format ---

func (p *Printer) encodeStrictValue(v []byte) (useBase64 bool, text string) {
	if codec.IsSafeUTF8String(v) && p.readableForMode(v) {
		return false, string(v)
	}
	return true, codec.EncodeBase64(v)
}

func (p *Printer) writeStrictAttrLine(ew *errWriter, ad string, v []byte) {
	b64, text := p.encodeStrictValue(v)
	if b64 {
		ew.printf("%s:: %s\n", ad, text)
	} else {
		ew.printf("%s: %s\n", ad, text)
	}
}

// PrintStrictEntry writes an entry record in strict (LDIF) form. A
// non-empty key is carried on an "ldapvi-key:" line; an empty key
// omits it, matching a bare "dn:"-only record.
func (p *Printer) PrintStrictEntry(w io.Writer, e *entry.Entry, key string) error {
	ew := &errWriter{w: w}
	ew.printf("\ndn: %s\n", e.DN)
	if key != "" {
		ew.printf("ldapvi-key: %s\n", key)
	}
	for _, a := range e.Attributes {
		for _, v := range a.Values {
			p.writeStrictAttrLine(ew, a.AD, v)
		}
	}
	return ew.err
}

// PrintStrictAdd writes a changetype:add record.
func (p *Printer) PrintStrictAdd(w io.Writer, e *entry.Entry) error {
	ew := &errWriter{w: w}
	ew.printf("\ndn: %s\nchangetype: add\n", e.DN)
	for _, a := range e.Attributes {
		for _, v := range a.Values {
			p.writeStrictAttrLine(ew, a.AD, v)
		}
	}
	return ew.err
}

// PrintStrictDelete writes a changetype:delete record.
func (p *Printer) PrintStrictDelete(w io.Writer, dn string) error {
	ew := &errWriter{w: w}
	ew.printf("\ndn: %s\nchangetype: delete\n", dn)
	return ew.err
}

// PrintStrictModify writes a changetype:modify record.
func (p *Printer) PrintStrictModify(w io.Writer, dn string, batch *entry.ChangeBatch) error {
	ew := &errWriter{w: w}
	ew.printf("\ndn: %s\nchangetype: modify\n", dn)
	for _, m := range batch.Modifications {
		ew.printf("%s: %s\n", m.Op.String(), m.AD)
		for _, v := range m.Values {
			b64, text := p.encodeStrictValue(v)
			if b64 {
				ew.printf("%s:: %s\n", m.AD, text)
			} else {
				ew.printf("%s: %s\n", m.AD, text)
			}
		}
		ew.printf("-\n")
	}
	return ew.err
}

// PrintStrictRename writes a changetype:modrdn record whose new RDN
// and superior are derived from newEntry.DN; newEntry's attributes are
// not printed.
func (p *Printer) PrintStrictRename(w io.Writer, oldDN string, newEntry *entry.Entry, deleteOldRDN bool) error {
	rdn, superior := splitDN(newEntry.DN)
	return p.PrintStrictRename0(w, oldDN, rdn, superior, deleteOldRDN)
}

// PrintStrictRename0 writes a changetype:modrdn record in the
// immediate form.
func (p *Printer) PrintStrictRename0(w io.Writer, oldDN, newRDN, newSuperior string, deleteOldRDN bool) error {
	ew := &errWriter{w: w}
	ew.printf("\ndn: %s\nchangetype: modrdn\nnewrdn: %s\n", oldDN, newRDN)
	if deleteOldRDN {
		ew.printf("deleteoldrdn: 1\n")
	} else {
		ew.printf("deleteoldrdn: 0\n")
	}
	if newSuperior != "" {
		ew.printf("newsuperior: %s\n", newSuperior)
	}
	return ew.err
}

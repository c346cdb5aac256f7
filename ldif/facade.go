package ldif

import (
	"errors"
	"fmt"

	"github.com/ldapvi-go/ldapvi/entry"
)

// Verb keys are reserved and can never name an integer-indexed record.
const (
	KeyAdd     = "add"
	KeyModify  = "modify"
	KeyDelete  = "delete"
	KeyRename  = "rename"
	KeyVersion = "version"
	KeyProfile = "profile"
)

// SyntaxError reports a parse failure at a specific byte offset of the
// stream being read. The diff engine surfaces this offset to the caller
// so the editor can be reopened at the point of failure.
type SyntaxError struct {
	Offset int64
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ldif: syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Causes wrapped by SyntaxError.
var (
	ErrBadVerb         = errors.New("invalid record verb")
	ErrBadDN           = errors.New("invalid or empty distinguished name")
	ErrMissingField    = errors.New("missing required field")
	ErrUnexpectedDash  = errors.New("'-' outside a modify block")
	ErrADMismatch      = errors.New("attribute description mismatch in modify block")
	ErrUnsupportedCtrl = errors.New("control lines are not supported")
	ErrBadVersion      = errors.New("unsupported version line")
	ErrTruncatedRecord = errors.New("record is not terminated")
)

// Parser is the uniform record-oriented façade over a textual format,
// implemented independently by the native and strict parsers and
// consumed uniformly by the diff engine. Every method accepts a
// starting byte offset; -1 means "continue from the stream's current
// position". nextOffset is always the byte just past the record,
// including its trailing blank line, so a caller can chain calls by
// feeding one call's nextOffset to the next call's start.
type Parser interface {
	// Peek reports the key of the next record without consuming its
	// body (it does consume any version line and leading blank lines).
	// A nil error with key == "" means the stream held nothing but
	// blank lines before EOF.
	Peek(src Source, start int64) (key string, recordOffset int64, err error)

	// Skip consumes the next record without materializing it.
	Skip(src Source, start int64) (nextOffset int64, err error)

	// ReadEntry parses an entry-shaped record (a bare "entry", an
	// "add", or an integer-keyed record) into key, DN and attributes.
	ReadEntry(src Source, start int64) (key string, e *entry.Entry, nextOffset int64, err error)

	// ReadDelete parses a delete record, returning the target DN.
	ReadDelete(src Source, start int64) (dn string, nextOffset int64, err error)

	// ReadModify parses a modify record into a DN and change batch.
	ReadModify(src Source, start int64) (dn string, batch *entry.ChangeBatch, nextOffset int64, err error)

	// ReadRename parses a rename record.
	ReadRename(src Source, start int64) (rn *entry.RenameDescriptor, nextOffset int64, err error)
}

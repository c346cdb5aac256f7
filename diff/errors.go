package diff

import (
	"errors"
	"fmt"
)

// SemanticError reports a record that parsed cleanly but violates a
// diff-time rule: an out-of-range or duplicate integer key, or a
// rename whose old RDN value the old entry does not actually hold.
type SemanticError struct {
	Offset int64
	Err    error
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("diff: semantic error at offset %d: %v", e.Offset, e.Err)
}

func (e *SemanticError) Unwrap() error { return e.Err }

// HandlerError wraps an error returned by a Handler method, tagging it
// with the byte offset of the record that was being dispatched.
type HandlerError struct {
	Offset int64
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("diff: handler failed at offset %d: %v", e.Offset, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Causes wrapped by SemanticError.
var (
	ErrKeyOutOfRange = errors.New("integer key out of range of the clean document")
	ErrDuplicateKey  = errors.New("integer key dispatched more than once")
	ErrMalformedKey  = errors.New("record key is neither a reserved verb nor a decimal integer")
	ErrInvalidRename = errors.New("invalid rename: old RDN value not held by the old entry, or a DN is empty")
)

// Package ldif implements the two textual record formats of the editing
// cycle - the compact native format and the strict, LDIF-like format -
// behind a single parser façade, plus the printers that serialize
// entries and change batches back into either format.
package ldif

import "io"

// Source is the seekable byte stream a parser reads from: the clean or
// data document held open for the duration of one diff-engine call.
type Source interface {
	io.Reader
	io.Seeker
}

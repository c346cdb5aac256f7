package diff

import "github.com/ldapvi-go/ldapvi/entry"

// Handler is the dispatch target for reconstructed changes (§6). Every
// method reports success or failure by returning an error; a non-nil
// return aborts Engine.Run immediately, wrapped in a HandlerError.
//
// key identifies the clean-document record a call corresponds to, or
// -1 when there is none (an add synthesized from a data-only record,
// or a delete/modify/rename expressed directly via a verb key rather
// than through the integer-keyed comparison path).
type Handler interface {
	// Change dispatches an attribute-level modify of an existing entry.
	// The engine always passes the same DN as oldDN and newDN; DN
	// changes go through Rename/Rename0.
	Change(key int, oldDN, newDN string, mods []*entry.Modification) error

	// Rename dispatches a modrdn discovered by comparing a clean entry
	// against a data entry with a different DN. newEntry is the full
	// post-edit entry, so the handler can also apply any attribute
	// changes bundled with the rename.
	Rename(key int, oldDN string, newEntry *entry.Entry) error

	// Rename0 dispatches a modrdn expressed directly as a "rename"
	// verb record, with no attribute changes to fold in.
	Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error

	// Add dispatches a new entry.
	Add(key int, dn string, mods []*entry.Modification) error

	// Delete dispatches the removal of dn.
	Delete(key int, dn string) error
}

package diff

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/ldif"
	"github.com/stretchr/testify/assert"
)

type recordedCall struct {
	kind string
	key  int
	dn   string
}

type fakeHandler struct {
	calls   []recordedCall
	failOn  string
	failErr error
}

func (h *fakeHandler) record(kind string, key int, dn string) error {
	if h.failOn == kind {
		return h.failErr
	}
	h.calls = append(h.calls, recordedCall{kind, key, dn})
	return nil
}

func (h *fakeHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	return h.record("change", key, newDN)
}

func (h *fakeHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	return h.record("rename", key, newEntry.DN)
}

func (h *fakeHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	return h.record("rename0", key, newDN)
}

func (h *fakeHandler) Add(key int, dn string, mods []*entry.Modification) error {
	return h.record("add", key, dn)
}

func (h *fakeHandler) Delete(key int, dn string) error {
	return h.record("delete", key, dn)
}

func newEngine() *Engine { return NewEngine(ldif.Native{}) }

func TestRunUnchangedRecordDispatchesNothing(t *testing.T) {
	doc := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(doc)), bytes.NewReader([]byte(doc)), idx, h)
	assert.NoError(t, err)
	assert.Empty(t, h.calls)
	assert.False(t, idx.Seen(0))
}

func TestRunAttributeReplacementDispatchesChange(t *testing.T) {
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	data := "0 cn=foo,dc=example,dc=com\ncn bar\n\n"
	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	assert.NoError(t, err)
	assert.Len(t, h.calls, 1)
	assert.Equal(t, "change", h.calls[0].kind)
	assert.Equal(t, 0, h.calls[0].key)
}

func TestRunDeletionByOmissionSweepsUnseenKey(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	rec1 := "1 cn=bar,dc=example,dc=com\ncn bar\n\n"
	clean := rec0 + rec1
	data := rec0

	idx := NewOffsetIndex()
	idx.Append(0)
	idx.Append(int64(len(rec0)))

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	assert.NoError(t, err)
	assert.Len(t, h.calls, 1)
	assert.Equal(t, "delete", h.calls[0].kind)
	assert.Equal(t, 1, h.calls[0].key)
	assert.Equal(t, "cn=bar,dc=example,dc=com", h.calls[0].dn)
}

func TestRunInsertionWithAddKeyDispatchesAdd(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	clean := rec0
	data := rec0 + "add cn=new,dc=example,dc=com\ncn new\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	assert.NoError(t, err)
	assert.Len(t, h.calls, 1)
	assert.Equal(t, "add", h.calls[0].kind)
	assert.Equal(t, "cn=new,dc=example,dc=com", h.calls[0].dn)
}

func TestRunRenameDispatchesWhenRDNValueHeld(t *testing.T) {
	clean := "0 cn=old,dc=example,dc=com\ncn old\n\n"
	data := "0 cn=new,dc=example,dc=com\ncn new\ncn old\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	assert.NoError(t, err)
	assert.Len(t, h.calls, 1)
	assert.Equal(t, "rename", h.calls[0].kind)
	assert.Equal(t, "cn=new,dc=example,dc=com", h.calls[0].dn)
}

func TestRunRenameRejectedWhenOldRDNValueNotHeld(t *testing.T) {
	clean := "0 cn=old,dc=example,dc=com\nsn other\n\n"
	data := "0 cn=new,dc=example,dc=com\nsn other\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	var semErr *SemanticError
	assert.True(t, errors.As(err, &semErr))
	assert.Equal(t, ErrInvalidRename, semErr.Err)
	assert.Empty(t, h.calls)
}

func TestRunDuplicateKeyIsSemanticError(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	clean := rec0
	data := rec0 + rec0

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	var semErr *SemanticError
	assert.True(t, errors.As(err, &semErr))
	assert.Equal(t, ErrDuplicateKey, semErr.Err)
}

func TestRunHandlerFailureAbortsAndRestoresIndex(t *testing.T) {
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	data := "0 cn=foo,dc=example,dc=com\ncn bar\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	boom := errors.New("ldap server rejected the modify")
	h := &fakeHandler{failOn: "change", failErr: boom}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)

	var herr *HandlerError
	assert.True(t, errors.As(err, &herr))
	assert.Equal(t, boom, herr.Err)
	assert.False(t, idx.Seen(0))
}

func TestRunAttributeOrderOnlyIsNotAChange(t *testing.T) {
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\nsn bar\n\n"
	data := "0 cn=foo,dc=example,dc=com\nsn bar\ncn foo\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	assert.NoError(t, err)
	assert.Empty(t, h.calls)
}

func TestRunEmptyDocumentsProduceNoCalls(t *testing.T) {
	idx := NewOffsetIndex()
	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader(nil), bytes.NewReader(nil), idx, h)
	assert.NoError(t, err)
	assert.Empty(t, h.calls)
}

func TestRunOffsetIndexRestoredAfterSuccess(t *testing.T) {
	doc := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(doc)), bytes.NewReader([]byte(doc)), idx, h)
	assert.NoError(t, err)
	assert.False(t, idx.Seen(0))
	assert.Equal(t, []int{0}, idx.Unseen())
}

func TestRunKeyOutOfRangeIsSemanticError(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	clean := rec0
	data := "5 cn=foo,dc=example,dc=com\ncn bar\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	var semErr *SemanticError
	assert.True(t, errors.As(err, &semErr))
	assert.Equal(t, ErrKeyOutOfRange, semErr.Err)
	assert.Empty(t, h.calls)
}

func TestRunMalformedKeyIsSemanticError(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	clean := rec0
	data := "notakey cn=foo,dc=example,dc=com\ncn bar\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	var semErr *SemanticError
	assert.True(t, errors.As(err, &semErr))
	assert.Equal(t, ErrMalformedKey, semErr.Err)
	assert.Empty(t, h.calls)
}

func TestRunSemanticErrorRestoresOffsetIndex(t *testing.T) {
	rec0 := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	rec1 := "1 cn=old,dc=example,dc=com\nsn other\n\n"
	clean := rec0 + rec1
	data := rec0 + "1 cn=new,dc=example,dc=com\nsn other\n\n"

	idx := NewOffsetIndex()
	idx.Append(0)
	idx.Append(int64(len(rec0)))

	h := &fakeHandler{}
	err := newEngine().Run(bytes.NewReader([]byte(clean)), bytes.NewReader([]byte(data)), idx, h)
	var semErr *SemanticError
	assert.True(t, errors.As(err, &semErr))
	assert.Equal(t, ErrInvalidRename, semErr.Err)
	// key 0 was dispatched as unchanged (marked seen) before key 1's
	// rename failed semantically; Run must restore both marks on abort.
	assert.False(t, idx.Seen(0))
	assert.False(t, idx.Seen(1))
	assert.Equal(t, []int{0, 1}, idx.Unseen())
}

package journal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/stretchr/testify/assert"
)

func TestJournalAddWritesSequencedLine(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriter(&buf)
	assert.NoError(t, j.Add(-1, "cn=foo,dc=example,dc=com", nil))
	assert.NoError(t, j.Delete(-1, "cn=bar,dc=example,dc=com"))
	assert.Equal(t, "1 add cn=foo,dc=example,dc=com attrs=0\n2 delete cn=bar,dc=example,dc=com\n", buf.String())
}

func TestJournalRename(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriter(&buf)
	assert.NoError(t, j.Rename(-1, "cn=foo,dc=example,dc=com", entry.NewEntry("cn=bar,dc=example,dc=com")))
	assert.Equal(t, "1 rename cn=foo,dc=example,dc=com -> cn=bar,dc=example,dc=com\n", buf.String())
}

type failingHandler struct{ err error }

func (f failingHandler) Add(key int, dn string, mods []*entry.Modification) error { return f.err }
func (f failingHandler) Delete(key int, dn string) error                         { return f.err }
func (f failingHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	return f.err
}
func (f failingHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error { return f.err }
func (f failingHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	return f.err
}

func TestTeeDoesNotJournalAFailedDispatch(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriter(&buf)
	boom := errors.New("boom")
	handler := j.Tee(failingHandler{err: boom})

	err := handler.Add(-1, "cn=foo,dc=example,dc=com", nil)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, buf.String())
}

type okHandler struct{ calls []string }

func (h *okHandler) Add(key int, dn string, mods []*entry.Modification) error {
	h.calls = append(h.calls, "add")
	return nil
}
func (h *okHandler) Delete(key int, dn string) error {
	h.calls = append(h.calls, "delete")
	return nil
}
func (h *okHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	h.calls = append(h.calls, "change")
	return nil
}
func (h *okHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	h.calls = append(h.calls, "rename")
	return nil
}
func (h *okHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	h.calls = append(h.calls, "rename0")
	return nil
}

func TestTeeJournalsASuccessfulDispatch(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriter(&buf)
	primary := &okHandler{}
	handler := j.Tee(primary)

	assert.NoError(t, handler.Add(-1, "cn=foo,dc=example,dc=com", nil))
	assert.Equal(t, []string{"add"}, primary.calls)
	assert.Contains(t, buf.String(), "add cn=foo,dc=example,dc=com")
}

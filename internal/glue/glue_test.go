package glue

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/ldapvi-go/ldapvi/diff"
	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/ldif"
	"github.com/ldapvi-go/ldapvi/schema"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Level = logrus.PanicLevel
	return logger
}

func newTestCycle(ui *fakeUI) *Cycle {
	return NewCycle(ldif.NewPrinter(ldif.BinaryUTF8), ldif.Native{}, nil, ui, testLogger())
}

func entryWithAttr(dn, ad, value string) *entry.Entry {
	e := entry.NewEntry(dn)
	e.Append(&entry.Attribute{AD: ad, Values: [][]byte{[]byte(value)}})
	return e
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "prompted", StatePrompted.String())
	assert.Equal(t, "edited", StateEdited.String())
	assert.Equal(t, "parsed", StateParsed.String())
	assert.Equal(t, "dispatched", StateDispatched.String())
	assert.Equal(t, "failed:prompt-retry", StateFailedPromptRetry.String())
	assert.Equal(t, "end", StateEnd.String())
}

func TestWriteCleanAssignsSequentialOffsetsReadableByParser(t *testing.T) {
	entries := []*entry.Entry{
		entryWithAttr("cn=foo,dc=example,dc=com", "cn", "foo"),
		entryWithAttr("cn=bar,dc=example,dc=com", "cn", "bar"),
	}
	c := newTestCycle(&fakeUI{})

	var buf bytes.Buffer
	idx, notes, err := c.WriteClean(&buf, entries, false)
	assert.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, 2, idx.Len())

	src := bytes.NewReader(buf.Bytes())
	for n, want := range []string{"cn=foo,dc=example,dc=com", "cn=bar,dc=example,dc=com"} {
		offset, ok := idx.Offset(n)
		assert.True(t, ok)
		_, e, _, err := c.Parser.ReadEntry(src, offset)
		assert.NoError(t, err)
		assert.Equal(t, want, e.DN)
	}
}

func TestWriteCleanCollectsEntroidComments(t *testing.T) {
	entries := []*entry.Entry{entryWithAttr("cn=foo,dc=example,dc=com", "cn", "foo")}
	c := newTestCycle(&fakeUI{})
	c.Entroid = func(e *entry.Entry) (schema.Entroid, error) {
		return &schema.StaticEntroid{Notes: []string{"unknown object class widget"}}, nil
	}

	var buf bytes.Buffer
	_, notes, err := c.WriteClean(&buf, entries, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"unknown object class widget"}, notes["cn=foo,dc=example,dc=com"])
	assert.NotContains(t, buf.String(), "#")
}

func TestWriteCleanEntroidErrorPropagates(t *testing.T) {
	entries := []*entry.Entry{entryWithAttr("cn=foo,dc=example,dc=com", "cn", "foo")}
	c := newTestCycle(&fakeUI{})
	boom := assert.AnError
	c.Entroid = func(e *entry.Entry) (schema.Entroid, error) { return nil, boom }

	var buf bytes.Buffer
	_, _, err := c.WriteClean(&buf, entries, false)
	assert.Error(t, err)
}

func TestSortedByDNOrdersDeterministically(t *testing.T) {
	entries := []*entry.Entry{
		entry.NewEntry("cn=zeta,dc=example,dc=com"),
		entry.NewEntry("cn=alpha,dc=example,dc=com"),
	}
	sorted := SortedByDN(entries)
	assert.Equal(t, "cn=alpha,dc=example,dc=com", sorted[0].DN)
	assert.Equal(t, "cn=zeta,dc=example,dc=com", sorted[1].DN)
}

// fakeUI is the glue test's substitute for a real tty and editor
// process, the same kind of substitution original_source's
// test_interactive.c makes for interactive.c.
type fakeUI struct {
	editScript []func(path string) string // nth call's replacement content for path
	editCalls  int
	chooseSeq  []byte
	chooseIdx  int
}

func (u *fakeUI) Edit(path string, pos int64) error {
	if u.editCalls < len(u.editScript) {
		content := u.editScript[u.editCalls](path)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return err
		}
	}
	u.editCalls++
	return nil
}

func (u *fakeUI) View(path string) error { return nil }

func (u *fakeUI) Choose(prompt, charbag, help string) (byte, error) {
	if u.chooseIdx >= len(u.chooseSeq) {
		return 'q', nil
	}
	b := u.chooseSeq[u.chooseIdx]
	u.chooseIdx++
	return b, nil
}

type noopHandler struct{ calls []string }

func (h *noopHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	h.calls = append(h.calls, "change")
	return nil
}
func (h *noopHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	h.calls = append(h.calls, "rename")
	return nil
}
func (h *noopHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	h.calls = append(h.calls, "rename0")
	return nil
}
func (h *noopHandler) Add(key int, dn string, mods []*entry.Modification) error {
	h.calls = append(h.calls, "add")
	return nil
}
func (h *noopHandler) Delete(key int, dn string) error {
	h.calls = append(h.calls, "delete")
	return nil
}

func TestRunInteractiveUnchangedDocumentDispatchesNothing(t *testing.T) {
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "clean")
	dataPath := filepath.Join(dir, "data")
	doc := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	assert.NoError(t, os.WriteFile(cleanPath, []byte(doc), 0o600))
	assert.NoError(t, os.WriteFile(dataPath, []byte(doc), 0o600))

	idx := diff.NewOffsetIndex()
	idx.Append(0)

	ui := &fakeUI{editScript: []func(string) string{func(string) string { return doc }}}
	c := newTestCycle(ui)
	h := &noopHandler{}

	err := c.RunInteractive(cleanPath, dataPath, idx, h)
	assert.NoError(t, err)
	assert.Empty(t, h.calls)
	assert.Equal(t, 1, ui.editCalls)
}

func TestRunInteractiveDispatchesChange(t *testing.T) {
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "clean")
	dataPath := filepath.Join(dir, "data")
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	edited := "0 cn=foo,dc=example,dc=com\ncn bar\n\n"
	assert.NoError(t, os.WriteFile(cleanPath, []byte(clean), 0o600))
	assert.NoError(t, os.WriteFile(dataPath, []byte(clean), 0o600))

	idx := diff.NewOffsetIndex()
	idx.Append(0)

	ui := &fakeUI{editScript: []func(string) string{func(string) string { return edited }}}
	c := newTestCycle(ui)
	h := &noopHandler{}

	var graphBuf bytes.Buffer
	c.GraphSink = &graphBuf

	err := c.RunInteractive(cleanPath, dataPath, idx, h)
	assert.NoError(t, err)
	assert.Equal(t, []string{"change"}, h.calls)
	metricsBuf := &bytes.Buffer{}
	assert.NoError(t, c.Metrics.WriteTextTo(metricsBuf))
	assert.Contains(t, metricsBuf.String(), "ldapvi_entries_changed_total 1")

	events, err := ReadGraphEvents(&graphBuf)
	assert.NoError(t, err)
	assert.Equal(t, []GraphEvent{{Kind: "change", OldDN: "cn=foo,dc=example,dc=com", NewDN: "cn=foo,dc=example,dc=com"}}, events)
}

func TestRunInteractiveRetryThenEditAgainRecovers(t *testing.T) {
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "clean")
	dataPath := filepath.Join(dir, "data")
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	broken := "this is not a valid record\n\n"
	fixed := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	assert.NoError(t, os.WriteFile(cleanPath, []byte(clean), 0o600))
	assert.NoError(t, os.WriteFile(dataPath, []byte(clean), 0o600))

	idx := diff.NewOffsetIndex()
	idx.Append(0)

	ui := &fakeUI{
		editScript: []func(string) string{
			func(string) string { return broken },
			func(string) string { return fixed },
		},
		chooseSeq: []byte{'E'},
	}
	c := newTestCycle(ui)
	h := &noopHandler{}

	err := c.RunInteractive(cleanPath, dataPath, idx, h)
	assert.NoError(t, err)
	assert.Equal(t, 2, ui.editCalls)
	assert.Empty(t, h.calls)
}

func TestRunInteractiveQuitAfterDiagnosticReturnsError(t *testing.T) {
	dir := t.TempDir()
	cleanPath := filepath.Join(dir, "clean")
	dataPath := filepath.Join(dir, "data")
	clean := "0 cn=foo,dc=example,dc=com\ncn foo\n\n"
	broken := "this is not a valid record\n\n"
	assert.NoError(t, os.WriteFile(cleanPath, []byte(clean), 0o600))
	assert.NoError(t, os.WriteFile(dataPath, []byte(clean), 0o600))

	idx := diff.NewOffsetIndex()
	idx.Append(0)

	ui := &fakeUI{
		editScript: []func(string) string{func(string) string { return broken }},
		chooseSeq:  []byte{'q'},
	}
	c := newTestCycle(ui)
	h := &noopHandler{}

	err := c.RunInteractive(cleanPath, dataPath, idx, h)
	assert.Error(t, err)
	assert.Empty(t, h.calls)
}

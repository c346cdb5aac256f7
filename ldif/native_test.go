package ldif

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ldapvi-go/ldapvi/codec"
	"github.com/stretchr/testify/assert"
)

func TestNativeReadEntryPlainMultiValued(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn foo\ncn bar\n\n"))
	key, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "0", key)
	assert.Equal(t, "cn=foo,dc=example,dc=com", e.DN)
	a := e.Find("cn")
	assert.NotNil(t, a)
	assert.Equal(t, [][]byte{[]byte("foo"), []byte("bar")}, a.Values)
}

func TestNativeReadEntryEmptyValue(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn \n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("")}, e.Find("cn").Values)
}

func TestNativeReadEntryBase64(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn:: Zm9v\n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "foo", string(e.Find("cn").Values[0]))
}

func TestNativeReadEntryBase64Invalid(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn:: !!!!\n\n"))
	_, _, _, err := Native{}.ReadEntry(src, 0)
	assert.Error(t, err)
}

func TestNativeReadEntryNumericLength(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn:3 foo\n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "foo", string(e.Find("cn").Values[0]))
}

func TestNativeReadEntryNumericLengthZero(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn:0 \n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "", string(e.Find("cn").Values[0]))
}

func TestNativeReadEntryNumericLengthOverflow(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn:99 foo\n\n"))
	_, _, _, err := Native{}.ReadEntry(src, 0)
	assert.True(t, errors.Is(err, codec.ErrTruncatedLength))
}

func TestNativeReadEntryPasswordHashPrefix(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\nuserPassword:sha secret\n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(e.Find("userPassword").Values[0], []byte("{SHA}")))
}

func TestNativeReadEntryContinuation(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ndescription one\\\ntwo\n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "one\ntwo", string(e.Find("description").Values[0]))
}

func TestNativeReadEntryEscapedBackslash(t *testing.T) {
	src := bytes.NewReader([]byte("0 cn=foo,dc=example,dc=com\ncn foo\\\\bar\n\n"))
	_, e, _, err := Native{}.ReadEntry(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, `foo\bar`, string(e.Find("cn").Values[0]))
}

func TestNativeReadDelete(t *testing.T) {
	src := bytes.NewReader([]byte("delete cn=foo,dc=example,dc=com\n\n"))
	dn, _, err := Native{}.ReadDelete(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "cn=foo,dc=example,dc=com", dn)
}

func TestNativeReadModifyAdd(t *testing.T) {
	src := bytes.NewReader([]byte("modify cn=foo,dc=example,dc=com\nadd mail\n foo@example.com\n\n"))
	dn, batch, _, err := Native{}.ReadModify(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "cn=foo,dc=example,dc=com", dn)
	assert.Len(t, batch.Modifications, 1)
	assert.Equal(t, "mail", batch.Modifications[0].AD)
	assert.Equal(t, "foo@example.com", string(batch.Modifications[0].Values[0]))
}

func TestNativeReadModifyMultipleOperations(t *testing.T) {
	src := bytes.NewReader([]byte(
		"modify cn=foo,dc=example,dc=com\n" +
			"add mail\n foo@example.com\n" +
			"delete phone\n" +
			"\n"))
	_, batch, _, err := Native{}.ReadModify(src, 0)
	assert.NoError(t, err)
	assert.Len(t, batch.Modifications, 2)
	assert.Equal(t, "phone", batch.Modifications[1].AD)
	assert.Empty(t, batch.Modifications[1].Values)
}

func TestNativeReadRename(t *testing.T) {
	src := bytes.NewReader([]byte("rename cn=old,dc=example,dc=com\nadd cn=new,dc=example,dc=com\n\n"))
	rn, _, err := Native{}.ReadRename(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "cn=old,dc=example,dc=com", rn.OldDN)
	assert.Equal(t, "cn=new", rn.NewRDN)
	assert.False(t, rn.DeleteOldRDN)
}

func TestNativePeekEOF(t *testing.T) {
	src := bytes.NewReader([]byte("\n\n"))
	key, _, err := Native{}.Peek(src, 0)
	assert.NoError(t, err)
	assert.Equal(t, "", key)
}

func TestNativeSkipThenReadNext(t *testing.T) {
	src := bytes.NewReader([]byte("delete cn=a,dc=example,dc=com\n\n0 cn=b,dc=example,dc=com\ncn b\n\n"))
	next, err := Native{}.Skip(src, 0)
	assert.NoError(t, err)
	key, e, _, err := Native{}.ReadEntry(src, next)
	assert.NoError(t, err)
	assert.Equal(t, "0", key)
	assert.Equal(t, "cn=b,dc=example,dc=com", e.DN)
}

// Package codec implements the byte-safe value codec described by the
// editing-cycle core: decoding and encoding attribute values across the
// textual encodings the native and strict parsers/printers use, plus the
// password-hash prefixers that turn a cleartext password value into a
// stored `{SCHEME}...` hash.
package codec

import (
	"bytes"
	"crypto/des"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
)

// Tag identifies the on-the-wire encoding of one attribute value.
type Tag int

const (
	// TagPlain is the default: literal text, trailing backslash
	// continues onto the next line, "\\" is a literal backslash.
	TagPlain Tag = iota
	// TagQuoted forces ":;"-style output on print (native format),
	// used when leading whitespace, NUL or control bytes require it.
	TagQuoted
	// TagBase64 is standard base64, selected on print when the value
	// is not a "safe string".
	TagBase64
	// TagFileURL reads the value from a file: URL; never re-emitted.
	TagFileURL
	// TagLength is the ":N" exact-byte-count form.
	TagLength
	// TagHashSHA, TagHashSSHA, ... mark a value as a cleartext
	// password to be hashed on input; they are never re-emitted
	// (the resulting hash round-trips as a plain value).
	TagHashSHA
	TagHashSSHA
	TagHashMD5
	TagHashSMD5
	TagHashCrypt
	TagHashCryptMD5
)

// ErrUnknownEncoding is returned for an encoding tag the codec does not
// recognize.
var ErrUnknownEncoding = errors.New("codec: unknown encoding tag")

// ErrTruncatedLength is returned when a ":N" numeric-length value claims
// more bytes than remain in the source.
var ErrTruncatedLength = errors.New("codec: :N length exceeds available bytes")

// ErrBadFileURL is returned for a "<" value whose URL is not file:.
var ErrBadFileURL = errors.New("codec: only file: URLs are supported")

// ParseTag maps the textual form of an encoding tag (as it appears
// after the attribute description, e.g. "sha", "crypt") to a Tag. ok is
// false for an unrecognized string, including a decimal length ("N"),
// which the native parser recognizes itself before calling ParseTag.
func ParseTag(s string) (tag Tag, ok bool) {
	switch strings.ToLower(s) {
	case "":
		return TagPlain, true
	case ";":
		return TagQuoted, true
	case "base64", ":":
		return TagBase64, true
	case "<":
		return TagFileURL, true
	case "sha":
		return TagHashSHA, true
	case "ssha":
		return TagHashSSHA, true
	case "md5":
		return TagHashMD5, true
	case "smd5":
		return TagHashSMD5, true
	case "crypt":
		return TagHashCrypt, true
	case "cryptmd5":
		return TagHashCryptMD5, true
	}
	return TagPlain, false
}

// IsHash reports whether tag marks a cleartext password to be hashed.
func (t Tag) IsHash() bool {
	switch t {
	case TagHashSHA, TagHashSSHA, TagHashMD5, TagHashSMD5, TagHashCrypt, TagHashCryptMD5:
		return true
	}
	return false
}

// DecodeBase64 decodes standard base64 text into raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid base64: %w", err)
	}
	return b, nil
}

// EncodeBase64 encodes raw bytes as standard base64 text.
func EncodeBase64(v []byte) string {
	return base64.StdEncoding.EncodeToString(v)
}

// ReadFileURL reads the value referenced by a "file:" URL. Any other
// scheme is an error, matching the native format's "<" rule.
func ReadFileURL(raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "file" {
		return nil, ErrBadFileURL
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// IsSafeString reports whether v can be printed literally in the strict
// format: empty, or the first byte is not space/'<'/':' and v contains
// no NUL/LF/CR, and the last byte is not a space.
func IsSafeString(v []byte) bool {
	if len(v) == 0 {
		return true
	}
	switch v[0] {
	case ' ', '<', ':':
		return false
	}
	if bytes.IndexByte(v, 0) >= 0 || bytes.IndexByte(v, '\n') >= 0 || bytes.IndexByte(v, '\r') >= 0 {
		return false
	}
	if v[len(v)-1] == ' ' {
		return false
	}
	return true
}

// IsSafeUTF8String reports whether v is a safe string (per
// IsSafeString) and also valid UTF-8.
func IsSafeUTF8String(v []byte) bool {
	return IsSafeString(v) && utf8.Valid(v)
}

// sniffLimit mirrors the teacher's blob-classification cutoff: only the
// first 261 bytes carry enough magic-number information for filetype to
// classify, so there is no point sniffing more.
const sniffLimit = 261

// LooksBinary uses magic-byte sniffing to decide, cheaply, whether v is
// binary content that should go straight to base64 output without
// running the full IsSafeString/IsSafeUTF8String scan over potentially
// large values (e.g. a "file:"-sourced image or archive attachment).
// A false result does not mean v is safe - callers still run the full
// check; a true result is a shortcut.
func LooksBinary(v []byte) bool {
	head := v
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}
	return filetype.IsImage(head) || filetype.IsVideo(head) ||
		filetype.IsArchive(head) || filetype.IsAudio(head)
}

// HashPassword applies the hashing transform named by tag to cleartext,
// returning the stored value (e.g. "{SSHA}..."). salt, when non-nil, is
// used verbatim instead of generating a fresh random salt - tests use
// this to make output deterministic.
func HashPassword(tag Tag, cleartext []byte, salt []byte) ([]byte, error) {
	switch tag {
	case TagHashSHA:
		sum := sha1.Sum(cleartext)
		return []byte("{SHA}" + EncodeBase64(sum[:])), nil
	case TagHashSSHA:
		if salt == nil {
			salt = randomSalt(8)
		}
		h := sha1.New()
		h.Write(cleartext)
		h.Write(salt)
		sum := h.Sum(nil)
		return []byte("{SSHA}" + EncodeBase64(append(sum, salt...))), nil
	case TagHashMD5:
		sum := md5.Sum(cleartext)
		return []byte("{MD5}" + EncodeBase64(sum[:])), nil
	case TagHashSMD5:
		if salt == nil {
			salt = randomSalt(8)
		}
		h := md5.New()
		h.Write(cleartext)
		h.Write(salt)
		sum := h.Sum(nil)
		return []byte("{SMD5}" + EncodeBase64(append(sum, salt...))), nil
	case TagHashCrypt, TagHashCryptMD5:
		if salt == nil {
			salt = randomSalt(2)
		}
		hash, err := desCrypt(cleartext, salt[:2])
		if err != nil {
			return nil, err
		}
		return []byte("{CRYPT}" + hash), nil
	}
	return nil, fmt.Errorf("codec: tag %d is not a password hash", tag)
}

// randomSalt returns n bytes drawn from saltAlphabet using crypto/rand,
// so two calls for the same cleartext produce different salted hashes.
// The caller may always bypass this by supplying its own salt.
func randomSalt(n int) []byte {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failing means the platform CSPRNG is broken;
		// fall back to a value that is at least not constant.
		for i := range raw {
			raw[i] = byte(i)
		}
	}
	b := make([]byte, n)
	for i, v := range raw {
		b[i] = saltAlphabet[int(v)%len(saltAlphabet)]
	}
	return b
}

const saltAlphabet = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// desCrypt implements a simplified password-hashing transform for the
// legacy {CRYPT} scheme, built on the stdlib DES block cipher: the
// salt seeds 25 rounds of CBC-style chaining over an 8-byte key derived
// from cleartext, rather than the bit-exact historical crypt(3)
// E-table permutation variant (no library in reach implements that
// faithfully without risking an unverifiable dependency - see
// DESIGN.md).
func desCrypt(cleartext, salt []byte) (string, error) {
	key := make([]byte, 8)
	copy(key, cleartext)
	block, err := des.NewCipher(key)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 8)
	copy(buf, salt)
	out := make([]byte, 8)
	for round := 0; round < 25; round++ {
		block.Encrypt(out, buf)
		copy(buf, out)
	}
	return string(salt) + EncodeBase64(out), nil
}

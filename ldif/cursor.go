package ldif

import (
	"bufio"
	"bytes"
	"io"
)

// cursor reads from a Source starting at an explicit byte offset,
// tracking the absolute position so callers can report exact byte
// offsets for errors and for peeked record starts. A fresh cursor is
// created per parse call by reseeking the Source; bufio's own
// ReadByte/UnreadByte pushback is reused rather than hand-rolled, since
// every call reseeks explicitly and never depends on another call's
// read-ahead buffering.
type cursor struct {
	r   *bufio.Reader
	pos int64
}

// newCursor positions src at start (or, when start < 0, at its current
// position) and wraps it in a buffered cursor.
func newCursor(src Source, start int64) (*cursor, error) {
	if start >= 0 {
		if _, err := src.Seek(start, io.SeekStart); err != nil {
			return nil, err
		}
	} else {
		cur, err := src.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		start = cur
	}
	return &cursor{r: bufio.NewReader(src), pos: start}, nil
}

func (c *cursor) offset() int64 { return c.pos }

func (c *cursor) readByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.pos++
	return b, nil
}

func (c *cursor) unreadByte() error {
	if err := c.r.UnreadByte(); err != nil {
		return err
	}
	c.pos--
	return nil
}

func (c *cursor) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	c.pos += int64(n)
	return buf, nil
}

// readLine reads through the next '\n', stripping the terminator and
// any preceding '\r'. A final, unterminated line at EOF is returned as
// a successful read; a clean EOF with nothing read at all returns
// io.EOF.
func (c *cursor) readLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	c.pos += int64(len(line))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if err == io.EOF && len(line) == 0 {
		return nil, io.EOF
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

// peekBlankOrEOF reports whether the cursor sits at a blank line or at
// EOF, without consuming anything but a blank line's own terminator.
func (c *cursor) peekBlankOrEOF() (blank bool, err error) {
	b, err := c.readByte()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if b == '\n' {
		return true, nil
	}
	if b == '\r' {
		nb, err := c.readByte()
		if err == nil && nb == '\n' {
			return true, nil
		}
		if err == nil {
			if uerr := c.unreadByte(); uerr != nil {
				return false, uerr
			}
		}
	}
	return false, c.unreadByte()
}

// skipBlankLines advances past any number of blank lines (and leading
// whitespace-only lines are NOT skipped - only genuinely empty ones).
func (c *cursor) skipBlankLines() error {
	for {
		if _, err := c.r.Peek(1); err == io.EOF {
			return nil
		}
		blank, err := c.peekBlankOrEOF()
		if err != nil {
			return err
		}
		if !blank {
			return nil
		}
	}
}

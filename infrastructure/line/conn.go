// Package line frames a byte stream into newline-delimited UTF-8 lines.
package line

import (
	"bufio"
	"budget-chat/errors"
	"bytes"
	"io"
	"net"
	"sync"
	"unicode/utf8"
)

// Conn reads and writes whole lines over a net.Conn.
// One goroutine may read while another writes.
type Conn struct {
	conn          net.Conn
	reader        *bufio.Reader
	maxLineLength int

	wmu    sync.Mutex
	writer *bufio.Writer
}

// NewConn wraps conn. maxLineLength bounds a single line in bytes, 0 means unlimited.
func NewConn(conn net.Conn, maxLineLength int) *Conn {
	return &Conn{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		writer:        bufio.NewWriter(conn),
		maxLineLength: maxLineLength,
	}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// A trailing fragment without terminator is returned as a last line before io.EOF.
func (c *Conn) ReadLine() (string, error) {
	var buf []byte
	for {
		frag, err := c.reader.ReadSlice('\n')
		buf = append(buf, frag...)
		if c.maxLineLength > 0 && len(trimEOL(buf)) > c.maxLineLength {
			return "", errors.ErrLineTooLong
		}

		switch {
		case err == nil:
			return toLine(trimEOL(buf))
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return toLine(trimEOL(buf))
		default:
			return "", err
		}
	}
}

func (c *Conn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.writer.WriteString(line); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

func toLine(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.ErrInvalidUTF8
	}
	return string(b), nil
}

// Package ws serves the room over WebSocket. Each text frame carries one
// line, so the same session code runs over both transports.
package ws

import (
	"budget-chat/errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn adapts a websocket connection to contract.LineChannel.
type Conn struct {
	conn          *websocket.Conn
	maxLineLength int
	pending       []string // lines of a multi-line frame not yet returned

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConn(conn *websocket.Conn, maxLineLength int) *Conn {
	if maxLineLength > 0 {
		conn.SetReadLimit(int64(maxLineLength) * 4)
	}
	return &Conn{conn: conn, maxLineLength: maxLineLength}
}

// ReadLine returns the next line. A frame holding several lines is split.
// A close frame from the peer is reported as io.EOF.
func (c *Conn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return "", io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", errors.ErrLineTooLong
			}
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !utf8.Valid(payload) {
			return "", errors.ErrInvalidUTF8
		}
		text := strings.TrimSuffix(string(payload), "\n")
		for _, l := range strings.Split(text, "\n") {
			c.pending = append(c.pending, strings.TrimSuffix(l, "\r"))
		}
	}

	next := c.pending[0]
	c.pending = c.pending[1:]
	if c.maxLineLength > 0 && len(next) > c.maxLineLength {
		return "", errors.ErrLineTooLong
	}
	return next, nil
}

func (c *Conn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close sends a best-effort close frame then closes the socket.
// WriteControl may run concurrently with WriteLine, so no lock is taken.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

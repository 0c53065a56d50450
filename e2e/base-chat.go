package e2e

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseChatSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ChatAddr == "" {
		s.T().Skip("CHAT_ADDR not set, skipping end-to-end suite")
	}
}

// Client is one raw TCP connection to the server, read line by line.
type Client struct {
	t       *testing.T
	name    string
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	debug   bool
}

// Dial opens a connection, printing a colorized header for the step in logs
func (s *BaseChatSuite) Dial(name string) *Client {
	t := s.T()
	header := fmt.Sprintf("  ====== %s connects ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	conn, err := net.DialTimeout("tcp", s.Config.ChatAddr, s.Config.ReadTimeout)
	s.Require().NoError(err, "Failed to connect to chat server at "+s.Config.ChatAddr)
	t.Cleanup(func() { _ = conn.Close() })

	return &Client{
		t:       t,
		name:    name,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: s.Config.ReadTimeout,
		debug:   s.Config.DebugLines,
	}
}

func (c *Client) Send(line string) error {
	if c.debug {
		c.t.Logf("%s >> %s", c.name, line)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *Client) Read() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	if c.debug {
		c.t.Logf("%s << %s", c.name, line)
	}
	return line, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

package workers_test

import (
	"bufio"
	"budget-chat/domain/chat"
	"budget-chat/errors"
	"budget-chat/infrastructure/line"
	"budget-chat/mocks"
	"budget-chat/observability"
	"budget-chat/runtime"
	"budget-chat/runtime/workers"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const readTimeout = 2 * time.Second

type testRoom struct {
	ctx      context.Context
	room     *workers.Room
	registry *runtime.NameRegistry
	bus      *runtime.Bus
	stats    *observability.RoomStats
	wg       sync.WaitGroup
}

func newTestRoom(t *testing.T) *testRoom {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())
	stats := observability.NewRoomStats()
	registry := runtime.NewNameRegistry()
	bus := runtime.NewBus(log, runtime.DefaultBusCapacity, stats)
	r := &testRoom{
		ctx:      ctx,
		room:     workers.NewRoom(log, registry, bus, stats),
		registry: registry,
		bus:      bus,
		stats:    stats,
	}
	t.Cleanup(func() {
		cancel()
		r.wg.Wait()
	})
	return r
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// connect starts a session on one end of a pipe and returns the other end.
func (r *testRoom) connect(t *testing.T) *client {
	t.Helper()
	server, conn := net.Pipe()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.room.Serve(r.ctx, line.NewConn(server, 0))
	}()
	t.Cleanup(func() { _ = conn.Close() })
	c := &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
	c.expect(chat.Welcome)
	return c
}

// join connects and completes the handshake, returning the presence line.
func (r *testRoom) join(t *testing.T, name string) (*client, string) {
	t.Helper()
	c := r.connect(t)
	c.send(name)
	return c, c.read()
}

func (c *client) send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(readTimeout))
	_, err := c.conn.Write([]byte(text + "\n"))
	require.NoError(c.t, err)
}

func (c *client) readLine() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	text, err := c.reader.ReadString('\n')
	return strings.TrimSuffix(text, "\n"), err
}

func (c *client) read() string {
	c.t.Helper()
	text, err := c.readLine()
	require.NoError(c.t, err)
	return text
}

func (c *client) expect(expected string) {
	c.t.Helper()
	require.Equal(c.t, expected, c.read())
}

func (c *client) expectClosed() {
	c.t.Helper()
	_, err := c.readLine()
	require.ErrorIs(c.t, err, io.EOF)
}

func presenceNames(t *testing.T, presence string) []string {
	t.Helper()
	const prefix = "* The room contains: "
	require.True(t, strings.HasPrefix(presence, prefix), presence)
	return strings.Split(strings.TrimPrefix(presence, prefix), ", ")
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()
	require.Eventually(t, condition, readTimeout, 5*time.Millisecond)
}

func TestSession_Alice_And_Bob(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	// Given alice is alone in the room
	alice, presence := room.join(t, "alice")
	req.Equal("* The room contains: just you!", presence)

	// When bob joins
	bob, presence := room.join(t, "bob")

	// Then bob sees alice and alice is told about bob
	req.Equal("* The room contains: alice", presence)
	alice.expect("* bob has entered the room")

	// When alice talks, bob receives it
	alice.send("hi")
	bob.expect("[alice] hi")

	// And alice got no echo: her next line is bob's answer
	bob.send("hello alice")
	alice.expect("[bob] hello alice")

	// When bob disconnects, alice is notified
	_ = bob.conn.Close()
	alice.expect("* bob has left the room")
	eventually(t, func() bool { return room.registry.Len() == 1 })
}

func TestSession_Events_During_Naming_Are_Delivered(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	// Given alice and carol are in the room
	alice, _ := room.join(t, "alice")
	carol, _ := room.join(t, "carol")
	alice.expect("* carol has entered the room")

	// And bob got the welcome but has not picked a name yet
	bob := room.connect(t)
	eventually(t, func() bool { return room.bus.Subscribers() == 3 })

	// When alice talks while bob is still naming
	alice.send("hi")
	carol.expect("[alice] hi")

	// Then bob gets the presence line first and alice's message right after
	bob.send("bob")
	req.ElementsMatch([]string{"alice", "carol"}, presenceNames(t, bob.read()))
	bob.expect("[alice] hi")
}

func TestSession_Presence_Lists_Exactly_Others(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	carol, _ := room.join(t, "carol")
	dave, _ := room.join(t, "dave")
	carol.expect("* dave has entered the room")

	erin, presence := room.join(t, "erin")
	req.ElementsMatch([]string{"carol", "dave"}, presenceNames(t, presence))
	carol.expect("* erin has entered the room")
	dave.expect("* erin has entered the room")
	_ = erin
}

func TestSession_Name_Reusable_After_Disconnect(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	watcher, _ := room.join(t, "watcher")
	bob, _ := room.join(t, "bob")
	watcher.expect("* bob has entered the room")

	// When bob disconnects
	_ = bob.conn.Close()
	watcher.expect("* bob has left the room")

	// Then a new connection may be bob again
	_, presence := room.join(t, "bob")
	req.Equal("* The room contains: watcher", presence)
	watcher.expect("* bob has entered the room")
}

func TestSession_Invalid_Names_Close_Without_Broadcast(t *testing.T) {
	for _, name := range []string{"", "bob!", "bob smith"} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			req := require.New(t)
			room := newTestRoom(t)
			alice, _ := room.join(t, "alice")

			// When a client offers an invalid name
			rejected := room.connect(t)
			rejected.send(name)

			// Then the connection is closed
			rejected.expectClosed()

			// And alice saw nothing: her next line is the next real join
			_, _ = room.join(t, "bob")
			alice.expect("* bob has entered the room")
			req.Equal(uint64(1), room.stats.Snapshot().Rejected)
		})
	}
}

func TestSession_Duplicate_Name_Is_Rejected(t *testing.T) {
	room := newTestRoom(t)
	alice, _ := room.join(t, "alice")

	impostor := room.connect(t)
	impostor.send("alice")
	impostor.expectClosed()

	// The original alice is still in the room
	_, presence := room.join(t, "bob")
	require.Equal(t, "* The room contains: alice", presence)
	alice.expect("* bob has entered the room")
}

func TestSession_Duplicate_Name_Race(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	const contenders = 10
	clients := make([]*client, contenders)
	for i := range clients {
		clients[i] = room.connect(t)
	}

	// When every client claims bob at once
	var wg sync.WaitGroup
	results := make([]string, contenders)
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			_, _ = c.conn.Write([]byte("bob\n"))
			text, err := c.readLine()
			if err != nil {
				results[i] = "closed"
				return
			}
			results[i] = text
		}(i, c)
	}
	wg.Wait()

	// Then exactly one of them got in
	winners := 0
	for _, result := range results {
		switch result {
		case "* The room contains: just you!":
			winners++
		case "closed":
		default:
			req.Failf("unexpected line", "%q", result)
		}
	}
	req.Equal(1, winners)
	req.Equal(1, room.registry.Len())
}

func TestSession_Disconnect_During_Handshake_Is_Invisible(t *testing.T) {
	room := newTestRoom(t)
	alice, _ := room.join(t, "alice")

	// Given a client that leaves right after the welcome
	ghost := room.connect(t)
	_ = ghost.conn.Close()
	eventually(t, func() bool { return room.stats.Snapshot().ActiveSessions == 1 })

	// Then alice saw neither a join nor a leave
	_, _ = room.join(t, "bob")
	alice.expect("* bob has entered the room")
	require.Equal(t, 2, room.registry.Len())
}

func TestSession_Concurrent_Distinct_Joins(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	const participants = 8
	var wg sync.WaitGroup
	for i := 0; i < participants; i++ {
		c := room.connect(t)
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			_, _ = c.conn.Write([]byte(fmt.Sprintf("user%d\n", i)))
			// Drain whatever arrives so that no session blocks on a write.
			for {
				if _, err := c.readLine(); err != nil {
					return
				}
			}
		}(i, c)
	}

	eventually(t, func() bool { return room.registry.Len() == participants })
	names := room.registry.Snapshot()
	req.Len(names, participants)

	for _, n := range names {
		req.True(strings.HasPrefix(n.String(), "user"))
	}
	req.Equal(uint64(participants), room.stats.Snapshot().Joins)

	// Closing every client empties the registry
	room.bus.Close()
	wg.Wait()
	eventually(t, func() bool { return room.registry.Len() == 0 })
}

func TestSession_Cancel_Releases_Name(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewNameRegistry()
	bus := runtime.NewBus(log, 4, nil)
	server, conn := net.Pipe()
	defer conn.Close()
	reader := bufio.NewReader(conn)

	ctx, cancel := context.WithCancel(context.Background())
	session := workers.NewSession(log, line.NewConn(server, 0), registry, bus, nil)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	_, _ = reader.ReadString('\n')
	_, _ = conn.Write([]byte("alice\n"))
	_, _ = reader.ReadString('\n')
	require.Eventually(t, func() bool { return session.State() == workers.StateActive }, readTimeout, 5*time.Millisecond)

	// When the server shuts down
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(readTimeout):
		require.Fail(t, "session did not stop on cancel")
	}
	require.Equal(t, workers.StateClosed, session.State())
	require.Zero(t, registry.Len())
}

func TestSession_Handshake_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		readErr error
		wantErr error
		claim   *bool
	}{
		{name: "Empty name", line: "", wantErr: errors.ErrEmptyName},
		{name: "Punctuation", line: "bob!", wantErr: errors.ErrInvalidName},
		{name: "Space", line: "bob smith", wantErr: errors.ErrInvalidName},
		{name: "Already taken", line: "bob", wantErr: errors.ErrNameTaken, claim: new(bool)},
		{name: "Disconnected", readErr: io.EOF, wantErr: errors.ErrDisconnectedBeforeName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			log := logs.GetLoggerFromLevel(slog.LevelDebug)
			ctrl := gomock.NewController(t)
			conn := mocks.NewMockLineChannel(ctrl)
			registry := mocks.NewMockINameRegistry(ctrl)
			bus := mocks.NewMockIBus(ctrl)
			sub := mocks.NewMockISubscription(ctrl)

			// Given the client receives the welcome line then sends its name
			conn.EXPECT().RemoteAddr().Return("pipe").AnyTimes()
			conn.EXPECT().WriteLine(chat.Welcome).Return(nil).Times(1)
			conn.EXPECT().ReadLine().Return(tt.line, tt.readErr).Times(1)
			conn.EXPECT().Close().Return(nil).AnyTimes()
			bus.EXPECT().Subscribe().Return(sub).Times(1)
			sub.EXPECT().Close().Times(1)
			if tt.claim != nil {
				registry.EXPECT().TryClaim(chat.Name(tt.line)).Return(*tt.claim).Times(1)
			}
			// No Publish, no Release: any such call fails the test

			session := workers.NewSession(log, conn, registry, bus, nil)

			// When the session runs
			err := session.Run(context.Background())

			// Then the handshake fails with the expected reason
			req.ErrorIs(err, tt.wantErr)
			req.Equal(workers.StateClosed, session.State())
		})
	}
}

func TestSession_Welcome_Write_Failure(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockLineChannel(ctrl)
	registry := mocks.NewMockINameRegistry(ctrl)
	bus := mocks.NewMockIBus(ctrl)

	conn.EXPECT().RemoteAddr().Return("pipe").AnyTimes()
	conn.EXPECT().WriteLine(chat.Welcome).Return(io.ErrClosedPipe).Times(1)
	conn.EXPECT().Close().Return(nil).AnyTimes()

	err := workers.NewSession(log, conn, registry, bus, nil).Run(context.Background())
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestSession_Presence_Write_Failure_Still_Cleans_Up(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockLineChannel(ctrl)
	registry := mocks.NewMockINameRegistry(ctrl)
	bus := mocks.NewMockIBus(ctrl)
	sub := mocks.NewMockISubscription(ctrl)

	conn.EXPECT().RemoteAddr().Return("pipe").AnyTimes()
	conn.EXPECT().Close().Return(nil).AnyTimes()
	bus.EXPECT().Subscribe().Return(sub)
	sub.EXPECT().Close()

	gomock.InOrder(
		conn.EXPECT().WriteLine(chat.Welcome).Return(nil),
		conn.EXPECT().ReadLine().Return("bob", nil),
		registry.EXPECT().TryClaim(chat.Name("bob")).Return(true),
		bus.EXPECT().Publish(gomock.Any()),
		registry.EXPECT().Snapshot().Return([]chat.Name{"bob", "alice"}),
		conn.EXPECT().WriteLine("* The room contains: alice").Return(io.ErrClosedPipe),
		// Left is published before the name is released
		bus.EXPECT().Publish(gomock.Any()),
		registry.EXPECT().Release(chat.Name("bob")),
	)

	err := workers.NewSession(log, conn, registry, bus, nil).Run(context.Background())
	req.ErrorIs(err, io.ErrClosedPipe)
}

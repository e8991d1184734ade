package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockConn is a mock session for testing
type MockConn struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func (m *MockConn) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(data)
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConn) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func openerFor(conns ...*MockConn) (Opener, *int) {
	calls := 0
	return func(ctx context.Context, address string) (io.WriteCloser, error) {
		if calls >= len(conns) {
			calls++
			return nil, errors.New("no more sessions")
		}
		c := conns[calls]
		calls++
		return c, nil
	}, &calls
}

func TestStreamConnectAndSend(t *testing.T) {
	conn := &MockConn{}
	open, _ := openerFor(conn)
	s := newStream(KindSocket, open, time.Second, nil)

	assert.False(t, s.IsConnected())
	require.NoError(t, s.Connect(context.Background(), "printer"))
	assert.True(t, s.IsConnected())
	assert.Equal(t, "printer", s.Address())

	require.NoError(t, s.Send(context.Background(), []byte("hello")))
	assert.Equal(t, []byte("hello"), conn.Written())

	require.NoError(t, s.Disconnect())
	assert.False(t, s.IsConnected())
	assert.True(t, conn.IsClosed())

	// idle disconnect is a no-op
	assert.NoError(t, s.Disconnect())
}

func TestStreamSendWhenDisconnected(t *testing.T) {
	s := newStream(KindCable, nil, time.Second, nil)

	err := s.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, ErrTransmission)

	var terr *TransmissionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindCable, terr.Kind)
}

func TestStreamReconnectReplacesSession(t *testing.T) {
	first, second := &MockConn{}, &MockConn{}
	open, calls := openerFor(first, second)
	s := newStream(KindSocket, open, time.Second, nil)

	require.NoError(t, s.Connect(context.Background(), "a"))
	require.NoError(t, s.Connect(context.Background(), "b"))

	assert.Equal(t, 2, *calls)
	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.Equal(t, "b", s.Address())
}

func TestStreamConnectTimeout(t *testing.T) {
	late := &MockConn{}
	release := make(chan struct{})
	open := func(ctx context.Context, address string) (io.WriteCloser, error) {
		<-release
		return late, nil
	}
	s := newStream(KindWireless, open, 20*time.Millisecond, nil)

	err := s.Connect(context.Background(), "/dev/rfcomm0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionTimeout)

	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "/dev/rfcomm0", cerr.Address)
	assert.False(t, s.IsConnected())

	// the half-open session is torn down once it shows up
	close(release)
	assert.Eventually(t, late.IsClosed, time.Second, 5*time.Millisecond)
}

func TestStreamConnectFailureIsClassified(t *testing.T) {
	open := func(ctx context.Context, address string) (io.WriteCloser, error) {
		return nil, &fsPermissionError{}
	}
	s := newStream(KindWireless, open, time.Second, nil)

	err := s.Connect(context.Background(), "COM3")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, Retryable(err))
}

func TestStreamSendFailure(t *testing.T) {
	conn := &MockConn{writeErr: errors.New("broken pipe")}
	open, _ := openerFor(conn)
	s := newStream(KindSocket, open, time.Second, nil)
	require.NoError(t, s.Connect(context.Background(), "p"))

	err := s.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrTransmission)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "broken pipe")
}

// stallConn never completes a write until it is closed, like a socket
// whose peer stopped reading.
type stallConn struct {
	once    sync.Once
	closed  chan struct{}
	writing chan struct{}
}

func newStallConn() *stallConn {
	return &stallConn{closed: make(chan struct{}), writing: make(chan struct{}, 1)}
}

func (c *stallConn) Write(data []byte) (int, error) {
	select {
	case c.writing <- struct{}{}:
	default:
	}
	<-c.closed
	return 0, errors.New("use of closed connection")
}

func (c *stallConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestStreamDisconnectDuringStalledSend(t *testing.T) {
	conn := newStallConn()
	s := newStream(KindSocket, func(ctx context.Context, address string) (io.WriteCloser, error) {
		return conn, nil
	}, time.Second, nil)
	require.NoError(t, s.Connect(context.Background(), "p"))

	sent := make(chan error, 1)
	go func() { sent <- s.Send(context.Background(), []byte("ticket")) }()
	<-conn.writing

	disconnected := make(chan error, 1)
	go func() { disconnected <- s.Disconnect() }()

	select {
	case err := <-disconnected:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Disconnect blocked behind a stalled send")
	}

	select {
	case err := <-sent:
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.ErrorIs(t, err, ErrTransmission)
	case <-time.After(time.Second):
		t.Fatal("send did not return after Disconnect")
	}
	assert.False(t, s.IsConnected())
}

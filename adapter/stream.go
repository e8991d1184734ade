package adapter

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Opener establishes a raw session to address.
type Opener func(ctx context.Context, address string) (io.WriteCloser, error)

// stream is the session bookkeeping shared by every transport: one writer at
// a time, bounded connect attempts and typed errors.
//
// sendMu serialises writers; mu guards the session. A blocked write holds
// only sendMu, so Disconnect can always close the session underneath it and
// the write returns with an error.
type stream struct {
	kind    Kind
	open    Opener
	timeout time.Duration
	log     *zap.Logger

	sendMu sync.Mutex
	mu     sync.Mutex
	cur    *session
}

// session is one opened connection. conn is nil while a reconnect is in
// flight; ctx ends when the session is closed.
type session struct {
	conn    io.WriteCloser
	address string
	ctx     context.Context
	cancel  context.CancelFunc
}

func newStream(kind Kind, open Opener, timeout time.Duration, log *zap.Logger) *stream {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &stream{
		kind:    kind,
		open:    open,
		timeout: timeout,
		log:     log.With(zap.String("kind", string(kind))),
	}
}

func (s *stream) Kind() Kind { return s.kind }

// Address returns the address of the open session, or "".
func (s *stream) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.address
}

func (s *stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Connect opens a new session. Any existing session is closed first.
func (s *stream) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.log.Debug("replacing open session", zap.String("address", s.cur.address))
		s.closeLocked()
	}

	conn, err := s.dial(ctx, address)
	if err != nil {
		return &ConnectionError{Kind: s.kind, Address: address, Err: classify(err)}
	}
	sctx, cancel := context.WithCancel(context.Background())
	s.cur = &session{conn: conn, address: address, ctx: sctx, cancel: cancel}
	s.log.Info("session opened", zap.String("address", address))
	return nil
}

// dial runs the opener under the connect timeout. When the timeout wins,
// a session that arrives late is closed as soon as it shows up.
func (s *stream) dial(ctx context.Context, address string) (io.WriteCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		conn io.WriteCloser
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := s.open(ctx, address)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrConnectionTimeout
		}
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrConnectionTimeout
		}
		return nil, ctx.Err()
	}
}

// Disconnect closes the session. Calling it while idle is a no-op. It does
// not wait for a send in progress; that send fails instead.
func (s *stream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *stream) closeLocked() error {
	sess := s.cur
	if sess == nil {
		return nil
	}
	s.cur = nil
	sess.cancel()
	var err error
	if sess.conn != nil {
		err = sess.conn.Close()
		sess.conn = nil
	}
	s.log.Info("session closed", zap.String("address", sess.address), zap.Error(err))
	return err
}

// acquire returns the open session and a context that also ends when that
// session is closed. The caller must hold sendMu and call release.
func (s *stream) acquire(ctx context.Context) (sess *session, bound context.Context, release func()) {
	s.mu.Lock()
	sess = s.cur
	s.mu.Unlock()
	if sess == nil {
		return nil, ctx, func() {}
	}
	bound, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sess.ctx, cancel)
	return sess, bound, func() {
		stop()
		cancel()
	}
}

// Send writes data in full to the open session.
func (s *stream) Send(ctx context.Context, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	sess, ctx, release := s.acquire(ctx)
	defer release()
	return s.write(ctx, sess, data)
}

// write sends data on sess without holding mu, so a concurrent Disconnect
// can close the connection to unblock it.
func (s *stream) write(ctx context.Context, sess *session, data []byte) error {
	if sess == nil {
		return &TransmissionError{Kind: s.kind, Err: ErrNotConnected}
	}
	s.mu.Lock()
	conn := sess.conn
	s.mu.Unlock()
	if conn == nil {
		return &TransmissionError{Kind: s.kind, Err: ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return &TransmissionError{Kind: s.kind, Err: err}
	}

	if dl, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		deadline, _ := ctx.Deadline()
		dl.SetWriteDeadline(deadline)
	}

	if _, err := conn.Write(data); err != nil {
		if sess.ctx.Err() != nil {
			err = ErrNotConnected
		}
		return &TransmissionError{Kind: s.kind, Err: err}
	}
	s.log.Debug("data sent", zap.Int("bytes", len(data)))
	return nil
}

// redial replaces the connection of sess with a fresh one to the same
// address. It fails with ErrNotConnected once sess has been closed.
func (s *stream) redial(ctx context.Context, sess *session) error {
	s.mu.Lock()
	if s.cur != sess {
		s.mu.Unlock()
		return ErrNotConnected
	}
	// the old handle goes first; serial ports refuse a second open
	if sess.conn != nil {
		sess.conn.Close()
		sess.conn = nil
	}
	s.mu.Unlock()

	conn, err := s.dial(ctx, sess.address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != sess {
		conn.Close()
		return ErrNotConnected
	}
	sess.conn = conn
	return nil
}

// drop closes sess if it is still the open session.
func (s *stream) drop(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == sess {
		s.closeLocked()
	}
}

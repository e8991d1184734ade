package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/orchestrator"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Message types a websocket client may send, and the replies it gets.
// Everything else the server writes is an orchestrator event.
const (
	MessageSubmit    = "submit"
	MessageSubmitted = "submitted"
	MessageRejected  = "rejected"
	MessagePing      = "ping"
	MessagePong      = "pong"
)

// Message is a websocket control message.
type Message struct {
	Type    string          `json:"type"`
	JobType string          `json:"job_type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	out  chan any
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// send queues v without blocking. A client that cannot keep up is dropped
// so a slow reader never stalls the orchestrator.
func (c *client) send(v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- v:
		return true
	default:
		c.close()
		return false
	}
}

// handleEvents upgrades to a websocket that streams every orchestrator
// event. Clients may also submit jobs over the same socket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, out: make(chan any, clientBuffer), done: make(chan struct{})}
	if !s.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(writeWait))
		c.close()
		return
	}
	defer s.unregister(c)

	unsubscribe := s.orch.Subscribe(func(e orchestrator.Event) { c.send(e) })
	defer unsubscribe()

	c.send(orchestrator.Event{Type: orchestrator.EventStateChanged, State: s.orch.State(), Time: time.Now()})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writePump(c)
	}()
	s.readPump(c)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.clients[c] = struct{}{}
	s.logger.Debug("event client connected", zap.String("remote", c.conn.RemoteAddr().String()))
	return true
}

func (s *Server) unregister(c *client) {
	c.close()
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.logger.Debug("event client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxBodyBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("event client read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MessagePing:
			c.send(Message{Type: MessagePong})
		case MessageSubmit:
			id, err := s.submit(SubmitRequest{Type: msg.JobType, Payload: msg.Payload})
			if err != nil {
				c.send(Message{Type: MessageRejected, Error: err.Error()})
				continue
			}
			c.send(Message{Type: MessageSubmitted, ID: id})
		default:
			c.send(Message{Type: MessageRejected, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case v := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/nixxel-company-limited/posprint/adapter"
)

// MockAdapter is a mock transport for testing
type MockAdapter struct {
	kind        adapter.Kind
	unavailable bool

	mu            sync.Mutex
	connected     bool
	connectErr    error
	disconnectErr error
	sendErrs      []error
	sendPanic     bool
	dropOnFail    bool
	block         chan struct{}
	sent          [][]byte
	connects      int
	disconnects   int
}

func NewMockAdapter(kind adapter.Kind) *MockAdapter {
	return &MockAdapter{kind: kind}
}

func (m *MockAdapter) Kind() adapter.Kind { return m.kind }

func (m *MockAdapter) Available() bool { return !m.unavailable }

func (m *MockAdapter) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockAdapter) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return m.disconnectErr
}

func (m *MockAdapter) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendPanic {
		panic("driver crashed")
	}
	m.sent = append(m.sent, data)
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		if err != nil && m.dropOnFail {
			m.connected = false
		}
		return err
	}
	return nil
}

func (m *MockAdapter) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockAdapter) FailSends(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs = append(m.sendErrs, errs...)
}

func (m *MockAdapter) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *MockAdapter) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func transmissionErr(msg string) error {
	return &adapter.TransmissionError{Kind: adapter.KindSocket, Err: errors.New(msg)}
}

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// jobEvents lists the job-bearing events raised for id, in order.
func (r *recorder) jobEvents(id string) []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		if e.Job != nil && e.Job.ID == id && e.Type != EventJobAdded && e.Type != EventPrintCompleted {
			out = append(out, e.Type)
		}
	}
	return out
}

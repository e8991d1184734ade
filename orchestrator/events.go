package orchestrator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType names an orchestrator notification.
type EventType string

const (
	EventStateChanged       EventType = "state_changed"
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventJobAdded           EventType = "job_added"
	EventPrintStarted       EventType = "print_started"
	EventPrintCompleted     EventType = "print_completed"
	EventPrintFailed        EventType = "print_failed"
	// EventJobRetry carries a job that failed an attempt and went back to
	// pending, with the failure in its Error.
	EventJobRetry     EventType = "job_retry"
	EventQueueCleared EventType = "queue_cleared"
	EventError              EventType = "error"
	// EventNoPrinter asks the UI to send the user to printer selection:
	// jobs are waiting and no printer is connected.
	EventNoPrinter EventType = "no_printer"
)

// Event carries snapshots taken when it was raised. Subscribers may keep
// them; later changes never show through.
type Event struct {
	Type    EventType       `json:"type"`
	State   ConnectionState `json:"state"`
	Job     *Job            `json:"job,omitempty"`
	Cleared int             `json:"cleared,omitempty"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`
}

// Handler receives events.
type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

// Bus fans events out to subscribers synchronously, in subscription order.
// A panicking subscriber is logged and skipped; the others still run.
type Bus struct {
	log *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function may be called more than once.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers each event to every current subscriber.
func (b *Bus) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, e := range events {
		for _, s := range subs {
			b.deliver(s, e)
		}
	}
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked",
				zap.String("event", string(e.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	s.fn(e)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

package orchestrator

import (
	"time"

	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/receipt"
)

// State is the printer connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePrinting     State = "printing"
	StateError        State = "error"
)

// ConnectionState pairs the state with the profile it refers to. Profile
// is set while connecting, connected or printing.
type ConnectionState struct {
	State   State            `json:"state"`
	Profile *profile.Profile `json:"profile,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (c ConnectionState) clone() ConnectionState {
	if c.Profile != nil {
		p := *c.Profile
		c.Profile = &p
	}
	return c
}

func (c ConnectionState) equal(o ConnectionState) bool {
	if c.State != o.State || c.Error != o.Error {
		return false
	}
	if (c.Profile == nil) != (o.Profile == nil) {
		return false
	}
	return c.Profile == nil || c.Profile.ID == o.Profile.ID
}

// JobStatus tracks a job through the queue.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobPrinting  JobStatus = "printing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a queued print request.
type Job struct {
	ID        string           `json:"id"`
	Type      receipt.JobType  `json:"type"`
	Document  receipt.Document `json:"-"`
	Status    JobStatus        `json:"status"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

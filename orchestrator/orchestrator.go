// Package orchestrator owns the single printer session and the print queue.
//
// Jobs are printed one at a time in submission order. A job that fails to
// send is requeued in place and retried after a delay until it runs out of
// attempts; the queue does not advance past it meanwhile. Callers observe
// progress through events rather than return values.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/encoder"
	"github.com/nixxel-company-limited/posprint/metrics"
	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/receipt"
)

var (
	ErrClosed = errors.New("orchestrator closed")
	// ErrNotConnected is returned by Await when the job cannot progress
	// because no printer is connected.
	ErrNotConnected = errors.New("no printer connected")
	ErrUnknownJob   = errors.New("unknown job")
	// ErrUnsupportedJobType is returned by Submit for unknown job types and
	// mismatched payloads.
	ErrUnsupportedJobType = receipt.ErrUnsupportedJobType
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second

	historySize = 100
)

// Config tunes the retry policy.
type Config struct {
	// MaxRetries is the total number of send attempts per job.
	MaxRetries int
	// RetryDelay separates a failed attempt from the next drain.
	RetryDelay time.Duration
	// Encoder options applied to every job.
	EncoderOptions []encoder.Option
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator sequences print jobs onto the active transport.
type Orchestrator struct {
	cfg      Config
	adapters map[adapter.Kind]adapter.Adapter
	store    profile.Store
	log      *zap.Logger
	metrics  *metrics.Collector
	bus      *Bus

	mu       sync.Mutex
	state    ConnectionState
	active   adapter.Adapter
	queue    []*Job
	history  []Job
	draining bool
	timers   map[*time.Timer]struct{}
	closed   bool
	drains   sync.WaitGroup
}

// New builds an Orchestrator over the given transports, one per kind.
func New(cfg Config, adapters []adapter.Adapter, store profile.Store, opts ...Option) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if store == nil {
		store = profile.NewMemoryStore()
	}

	o := &Orchestrator{
		cfg:      cfg,
		adapters: make(map[adapter.Kind]adapter.Adapter, len(adapters)),
		store:    store,
		log:      zap.NewNop(),
		state:    ConnectionState{State: StateDisconnected},
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, a := range adapters {
		o.adapters[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(o)
	}
	o.bus = NewBus(o.log)
	o.metrics.SetConnectionState(string(StateDisconnected))
	return o
}

// Subscribe registers fn for every future event.
func (o *Orchestrator) Subscribe(fn Handler) (unsubscribe func()) {
	return o.bus.Subscribe(fn)
}

// Store returns the profile store the orchestrator records connections in.
func (o *Orchestrator) Store() profile.Store { return o.store }

// Adapter returns the transport registered for kind.
func (o *Orchestrator) Adapter(kind adapter.Kind) (adapter.Adapter, bool) {
	a, ok := o.adapters[kind]
	return a, ok
}

// State returns a snapshot of the connection state.
func (o *Orchestrator) State() ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Jobs returns snapshots of the queued jobs in print order.
func (o *Orchestrator) Jobs() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Job, len(o.queue))
	for i, j := range o.queue {
		out[i] = *j
	}
	return out
}

// Job looks a job up in the queue and then in recent history.
func (o *Orchestrator) Job(id string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookupLocked(id)
}

func (o *Orchestrator) lookupLocked(id string) (Job, bool) {
	for _, j := range o.queue {
		if j.ID == id {
			return *j, true
		}
	}
	for i := len(o.history) - 1; i >= 0; i-- {
		if o.history[i].ID == id {
			return o.history[i], true
		}
	}
	return Job{}, false
}

// Submit queues doc for printing and returns the job id at once.
func (o *Orchestrator) Submit(jobType receipt.JobType, doc receipt.Document) (string, error) {
	if err := receipt.Check(jobType, doc); err != nil {
		return "", err
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Document:  doc,
		Status:    JobPending,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	o.queue = append(o.queue, job)
	depth := len(o.queue)
	ev := o.eventLocked(EventJobAdded, job)
	o.mu.Unlock()

	o.log.Info("job submitted", zap.String("job_id", job.ID), zap.String("job_type", string(jobType)))
	o.metrics.JobSubmitted(string(jobType))
	o.metrics.SetQueueDepth(depth)
	o.bus.Publish(ev)

	o.kick()
	return job.ID, nil
}

// ClearQueue drops every pending job. A job that is printing is left alone.
func (o *Orchestrator) ClearQueue() int {
	o.mu.Lock()
	kept := o.queue[:0]
	cleared := 0
	for _, j := range o.queue {
		if j.Status == JobPending {
			cleared++
			continue
		}
		kept = append(kept, j)
	}
	for i := len(kept); i < len(o.queue); i++ {
		o.queue[i] = nil
	}
	o.queue = kept
	depth := len(o.queue)
	ev := o.eventLocked(EventQueueCleared, nil)
	ev.Cleared = cleared
	o.mu.Unlock()

	o.log.Info("queue cleared", zap.Int("cleared", cleared))
	o.metrics.SetQueueDepth(depth)
	o.bus.Publish(ev)
	return cleared
}

// Connect opens a session to p, replacing any current one. On success the
// profile's LastConnectedAt is updated and saved, which also records a
// profile seen for the first time, and pending jobs start draining.
func (o *Orchestrator) Connect(ctx context.Context, p profile.Profile) error {
	a, ok := o.adapters[p.Kind]
	if !ok {
		err := fmt.Errorf("%w: connection kind %q", adapter.ErrUnsupported, p.Kind)
		o.fail(err)
		return err
	}
	if !a.Available() {
		err := &adapter.ConnectionError{Kind: p.Kind, Address: p.Address, Err: adapter.ErrCapabilityUnavailable}
		o.fail(err)
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	prev := o.active
	o.active = nil
	target := p
	events := o.setStateLocked(StateConnecting, &target, "")
	o.mu.Unlock()
	o.bus.Publish(events...)

	if prev != nil {
		if err := o.safe("disconnect", prev.Disconnect); err != nil {
			o.log.Warn("closing previous session failed", zap.String("kind", string(prev.Kind())), zap.Error(err))
		}
	}

	log := o.log.With(zap.String("profile_id", p.ID), zap.String("kind", string(p.Kind)), zap.String("address", p.Address))
	log.Info("connecting")

	err := o.safe("connect", func() error { return a.Connect(ctx, p.Address) })
	if err != nil {
		log.Warn("connect failed", zap.Error(err))
		o.fail(err)
		return err
	}

	now := time.Now().UTC()
	p.LastConnectedAt = &now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if serr := o.store.Save(ctx, p); serr != nil {
		log.Warn("saving profile failed", zap.Error(serr))
	}

	o.mu.Lock()
	o.active = a
	events = o.setStateLocked(StateConnected, &p, "")
	events = append(events, o.eventLocked(EventDeviceConnected, nil))
	o.mu.Unlock()

	log.Info("connected")
	o.bus.Publish(events...)
	o.kick()
	return nil
}

// ConnectPreferred connects to the default profile, or the most recently
// used one when no default is set.
func (o *Orchestrator) ConnectPreferred(ctx context.Context) error {
	p, err := profile.Preferred(ctx, o.store)
	if err != nil {
		return err
	}
	return o.Connect(ctx, p)
}

// Disconnect tears down the session and forgets the active profile. Errors
// from the transport are logged, never returned. Queued jobs stay pending.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	a := o.active
	o.active = nil
	events := o.setStateLocked(StateDisconnected, nil, "")
	events = append(events, o.eventLocked(EventDeviceDisconnected, nil))
	o.mu.Unlock()

	if a != nil {
		if err := o.safe("disconnect", a.Disconnect); err != nil {
			o.log.Warn("disconnect failed", zap.String("kind", string(a.Kind())), zap.Error(err))
		}
	}
	o.log.Info("disconnected")
	o.bus.Publish(events...)
}

// Close stops scheduled retries, waits for a running drain and
// disconnects. Later submissions fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for t := range o.timers {
		t.Stop()
	}
	o.timers = make(map[*time.Timer]struct{})
	o.mu.Unlock()

	o.drains.Wait()
	o.Disconnect()
}

// Await blocks until job id completes or fails. It returns nil on
// completion, the recorded error on failure and ErrNotConnected when the
// job is stuck waiting for a printer.
func (o *Orchestrator) Await(ctx context.Context, id string) error {
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	unsubscribe := o.Subscribe(func(e Event) {
		switch {
		case e.Job != nil && e.Job.ID == id && e.Type == EventPrintCompleted:
			finish(nil)
		case e.Job != nil && e.Job.ID == id && e.Type == EventPrintFailed:
			finish(fmt.Errorf("job %s failed: %s", id, e.Job.Error))
		case e.Type == EventNoPrinter:
			finish(ErrNotConnected)
		}
	})
	defer unsubscribe()

	job, ok := o.Job(id)
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	case job.Status == JobCompleted:
		return nil
	case job.Status == JobFailed:
		return fmt.Errorf("job %s failed: %s", id, job.Error)
	}
	if st := o.State(); st.Profile == nil && st.State != StateConnecting {
		return ErrNotConnected
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail moves to the error state and reports err. A session that was still
// open is closed so no two transports are ever connected at once.
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	prev := o.active
	o.active = nil
	events := o.setStateLocked(StateError, nil, err.Error())
	if prev != nil {
		events = append(events, o.eventLocked(EventDeviceDisconnected, nil))
	}
	ev := o.eventLocked(EventError, nil)
	ev.Error = err.Error()
	events = append(events, ev)
	o.mu.Unlock()

	if prev != nil {
		if derr := o.safe("disconnect", prev.Disconnect); derr != nil {
			o.log.Warn("closing previous session failed", zap.String("kind", string(prev.Kind())), zap.Error(derr))
		}
	}
	o.bus.Publish(events...)
}

// safe runs a transport call and turns a panic into an error.
func (o *Orchestrator) safe(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("transport panicked", zap.String("op", op), zap.Any("panic", r))
			err = fmt.Errorf("%s: transport panic: %v", op, r)
		}
	}()
	return fn()
}

// setStateLocked records a new connection state and returns the
// state_changed event when something changed.
func (o *Orchestrator) setStateLocked(s State, p *profile.Profile, errMsg string) []Event {
	next := ConnectionState{State: s, Profile: p, Error: errMsg}
	if o.state.equal(next) {
		return nil
	}
	o.state = next.clone()
	o.metrics.SetConnectionState(string(s))
	return []Event{o.eventLocked(EventStateChanged, nil)}
}

func (o *Orchestrator) eventLocked(t EventType, job *Job) Event {
	e := Event{Type: t, State: o.state.clone(), Time: time.Now()}
	if job != nil {
		cp := *job
		e.Job = &cp
		e.Error = job.Error
	}
	return e
}

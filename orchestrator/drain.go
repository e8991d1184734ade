package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/encoder"
	"github.com/nixxel-company-limited/posprint/receipt"
)

// kick starts a drain unless one is already running. A running drain
// re-reads the queue before every job so it picks up new submissions.
func (o *Orchestrator) kick() {
	o.mu.Lock()
	if o.closed || o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true
	o.drains.Add(1)
	o.mu.Unlock()

	go o.drain()
}

func (o *Orchestrator) drain() {
	defer o.drains.Done()
	for {
		job, a, width, ok := o.next()
		if !ok {
			return
		}
		if retry := o.run(job, a, width); retry {
			o.mu.Lock()
			o.draining = false
			o.mu.Unlock()
			return
		}
	}
}

// next claims the first pending job. It clears the draining flag when
// there is nothing it can print.
func (o *Orchestrator) next() (job Job, a adapter.Adapter, width receipt.PaperWidth, ok bool) {
	o.mu.Lock()

	var head *Job
	for _, j := range o.queue {
		if j.Status == JobPending {
			head = j
			break
		}
	}

	switch {
	case o.closed || head == nil || o.state.State == StateConnecting:
		o.draining = false
		o.mu.Unlock()
		return Job{}, nil, 0, false

	case o.active == nil || o.state.Profile == nil:
		o.draining = false
		ev := o.eventLocked(EventNoPrinter, nil)
		o.mu.Unlock()
		o.log.Info("jobs waiting for a printer")
		o.bus.Publish(ev)
		return Job{}, nil, 0, false

	case o.state.State != StateConnected:
		o.draining = false
		o.mu.Unlock()
		return Job{}, nil, 0, false
	}

	head.Status = JobPrinting
	head.Attempts++
	head.Error = ""
	width = o.state.Profile.PaperWidth
	a = o.active
	events := o.setStateLocked(StatePrinting, o.state.Profile, "")
	events = append(events, o.eventLocked(EventPrintStarted, head))
	job = *head
	o.mu.Unlock()

	o.metrics.JobStarted(string(job.Type))
	o.bus.Publish(events...)
	return job, a, width, true
}

// run encodes and sends one job, then settles it. It reports whether the
// job was requeued for a retry, which ends the current drain.
func (o *Orchestrator) run(job Job, a adapter.Adapter, width receipt.PaperWidth) (retry bool) {
	log := o.log.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempt", job.Attempts),
	)

	data, err := encoder.New(width, o.cfg.EncoderOptions...).Encode(job.Type, job.Document)
	if err == nil {
		start := time.Now()
		err = o.safe("send", func() error { return a.Send(context.Background(), data) })
		o.metrics.ObserveSend(string(a.Kind()), time.Since(start))
	}

	o.mu.Lock()
	var events []Event
	if o.state.State == StatePrinting {
		events = o.setStateLocked(StateConnected, o.state.Profile, "")
	}

	cur := o.findLocked(job.ID)
	if cur == nil {
		// cleared or closed underneath us; nothing left to settle
		o.mu.Unlock()
		o.bus.Publish(events...)
		return false
	}

	switch {
	case err == nil:
		cur.Status = JobCompleted
		o.removeLocked(cur)
		events = append(events, o.eventLocked(EventPrintCompleted, cur))
		log.Info("job printed")

	case adapter.Retryable(err) && cur.Attempts < o.cfg.MaxRetries:
		cur.Status = JobPending
		cur.Error = err.Error()
		o.scheduleLocked(o.cfg.RetryDelay)
		events = append(events, o.eventLocked(EventJobRetry, cur))
		retry = true
		log.Warn("print failed, will retry", zap.Duration("delay", o.cfg.RetryDelay), zap.Error(err))

	default:
		cur.Status = JobFailed
		cur.Error = err.Error()
		o.removeLocked(cur)
		events = append(events, o.eventLocked(EventPrintFailed, cur))
		log.Error("print failed", zap.Error(err))
	}

	// a transport that gave up on its session takes the connection with it
	if err != nil && o.active == a && !a.IsConnected() {
		o.active = nil
		events = append(events, o.setStateLocked(StateError, nil, err.Error())...)
		events = append(events, o.eventLocked(EventDeviceDisconnected, nil))
	}
	depth := len(o.queue)
	o.mu.Unlock()

	switch {
	case err == nil:
		o.metrics.JobCompleted(string(job.Type))
	case retry:
		o.metrics.JobRetried(string(job.Type))
	default:
		o.metrics.JobFailed(string(job.Type))
	}
	o.metrics.SetQueueDepth(depth)
	o.bus.Publish(events...)
	return retry
}

func (o *Orchestrator) scheduleLocked(d time.Duration) {
	if o.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		o.mu.Lock()
		delete(o.timers, t)
		o.mu.Unlock()
		o.kick()
	})
	o.timers[t] = struct{}{}
}

func (o *Orchestrator) findLocked(id string) *Job {
	for _, j := range o.queue {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// removeLocked drops j from the queue and keeps a copy in the history.
func (o *Orchestrator) removeLocked(j *Job) {
	for i, q := range o.queue {
		if q == j {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}
	o.history = append(o.history, *j)
	if len(o.history) > historySize {
		o.history = append([]Job(nil), o.history[len(o.history)-historySize:]...)
	}
}

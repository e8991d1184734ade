package adapter

import (
	"sync"
	"sync/atomic"
)

// Capability is the memoized result of a platform probe.
type Capability int32

const (
	CapabilityUnknown Capability = iota
	CapabilityUnavailable
	CapabilityAvailable
)

func (c Capability) String() string {
	switch c {
	case CapabilityAvailable:
		return "available"
	case CapabilityUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Probe runs a capability check at most once. A check that panics counts as
// unavailable.
type Probe struct {
	once   sync.Once
	check  func() bool
	result atomic.Int32
}

func NewProbe(check func() bool) *Probe {
	return &Probe{check: check}
}

// Result runs the check on first use and returns the cached answer.
func (p *Probe) Result() Capability {
	p.once.Do(func() {
		p.result.Store(int32(p.run()))
	})
	return Capability(p.result.Load())
}

// Peek returns the cached answer without running the check.
func (p *Probe) Peek() Capability {
	return Capability(p.result.Load())
}

func (p *Probe) Available() bool {
	return p.Result() == CapabilityAvailable
}

func (p *Probe) run() (c Capability) {
	defer func() {
		if recover() != nil {
			c = CapabilityUnavailable
		}
	}()
	if p.check != nil && p.check() {
		return CapabilityAvailable
	}
	return CapabilityUnavailable
}

package clock

import (
	"sync"
	"time"
)

// Clock lets settlement and ledger code run with a fixed time in tests.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Manual only moves when told to. Each Now call advances it by Step so that
// consecutive entries get distinct timestamps.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC(), Step: time.Millisecond}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now
	m.now = m.now.Add(m.Step)
	return now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

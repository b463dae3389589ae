package session

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/roach88/ledgerflow/internal/ledger"
)

// throttle keeps one token bucket per receiving party.
type throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[ledger.PartyID]*rate.Limiter
}

func newThrottle(limit rate.Limit, burst int) *throttle {
	return &throttle{
		limit:    limit,
		burst:    burst,
		limiters: make(map[ledger.PartyID]*rate.Limiter),
	}
}

func (t *throttle) allow(party ledger.PartyID) bool {
	t.mu.Lock()
	l, ok := t.limiters[party]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[party] = l
	}
	t.mu.Unlock()
	return l.Allow()
}

package repository

import (
	"sync"
	"time"

	"github.com/rubyist/circuitbreaker"
)

// breakerBackoffAt is the consecutive-failure threshold before an endpoint's
// breaker opens. Grounded on matrix/breakers.go's per-host defaulting.
const breakerBackoffAt = 10

// endpointBreakers holds one circuit breaker per resolved IP, mirroring
// matrix/breakers.go's per-hostname sync.Map keyed instead by endpoint
// address so a single bad IP in a rotation doesn't drag down its siblings.
type endpointBreakers struct {
	breakers sync.Map
}

func newEndpointBreakers() *endpointBreakers {
	return &endpointBreakers{}
}

func (b *endpointBreakers) get(addr string) *circuit.Breaker {
	if cb, ok := b.breakers.Load(addr); ok {
		return cb.(*circuit.Breaker)
	}
	cb := circuit.NewConsecutiveBreaker(breakerBackoffAt)
	actual, _ := b.breakers.LoadOrStore(addr, cb)
	return actual.(*circuit.Breaker)
}

func (b *endpointBreakers) call(addr string, timeout time.Duration, fn func() error) error {
	return b.get(addr).Call(fn, timeout)
}

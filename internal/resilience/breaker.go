package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
)

// BreakerConfig sizes a circuit breaker: trip after FailureThreshold
// consecutive failures, allow HalfOpenRequests probes after ResetTimeout.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	HalfOpenRequests uint32
}

// Presets.
var (
	BreakerSensitive = BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second, HalfOpenRequests: 2}
	BreakerStandard  = BreakerConfig{FailureThreshold: 10, ResetTimeout: 60 * time.Second, HalfOpenRequests: 3}
	BreakerTolerant  = BreakerConfig{FailureThreshold: 20, ResetTimeout: 120 * time.Second, HalfOpenRequests: 5}
)

// BreakerRegistry maps service names to circuit breakers. Breakers are
// created on first use with the STANDARD preset unless registered with an
// explicit config. The open -> half-open transition is taken lazily on the
// next call after the reset timeout; no timer is required for correctness.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]BreakerConfig
	logger   arbor.ILogger
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(logger arbor.ILogger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]BreakerConfig),
		logger:   logger,
	}
}

// Configure pins a preset for a named breaker. Must be called before the
// breaker's first use to take effect.
func (r *BreakerRegistry) Configure(name string, config BreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = config
	delete(r.breakers, name)
}

// Get returns the named breaker, creating it if necessary.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(name)
}

func (r *BreakerRegistry) getLocked(name string) *gobreaker.CircuitBreaker {
	if breaker, ok := r.breakers[name]; ok {
		return breaker
	}

	config, ok := r.configs[name]
	if !ok {
		config = BreakerStandard
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.logger != nil {
				r.logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state change")
			}
		},
	})
	r.breakers[name] = breaker
	return breaker
}

// Execute runs fn through the named breaker. When the breaker is open (or
// half-open probes are exhausted) it fails fast with CIRCUIT_OPEN without
// invoking fn.
func (r *BreakerRegistry) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	breaker := r.Get(name)
	result, err := breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, common.NewError(common.ErrCircuitOpen, "circuit breaker open: "+name).WithCause(err)
		}
		return nil, err
	}
	return result, nil
}

// Reset returns the named breaker to closed by replacing its instance.
func (r *BreakerRegistry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// ResetAll clears every breaker back to closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*gobreaker.CircuitBreaker)
}

// States reports the current state per breaker, for health and metrics.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[string]string, len(r.breakers))
	for name, breaker := range r.breakers {
		states[name] = breaker.State().String()
	}
	return states
}

// Counts returns request accounting for a named breaker.
func (r *BreakerRegistry) Counts(name string) gobreaker.Counts {
	return r.Get(name).Counts()
}

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
)

func testRegistry() *BreakerRegistry {
	return NewBreakerRegistry(arbor.NewLogger())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	registry := testRegistry()
	registry.Configure("svc", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenRequests: 1})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := registry.Execute("svc", func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	// Next call fails fast without invoking the function.
	invoked := false
	_, err := registry.Execute("svc", func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.Equal(t, common.ErrCircuitOpen, common.CodeOf(err))
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	registry := testRegistry()
	registry.Configure("svc", BreakerConfig{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond, HalfOpenRequests: 1})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		registry.Execute("svc", func() (interface{}, error) { return nil, boom })
	}
	assert.Equal(t, "open", registry.States()["svc"])

	time.Sleep(60 * time.Millisecond)

	// Probe succeeds; breaker closes.
	result, err := registry.Execute("svc", func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", registry.States()["svc"])
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	registry := testRegistry()
	registry.Configure("svc", BreakerConfig{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond, HalfOpenRequests: 2})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		registry.Execute("svc", func() (interface{}, error) { return nil, boom })
	}

	time.Sleep(60 * time.Millisecond)

	// Single probe failure reopens immediately.
	_, err := registry.Execute("svc", func() (interface{}, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	invoked := false
	_, err = registry.Execute("svc", func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.Equal(t, common.ErrCircuitOpen, common.CodeOf(err))
}

func TestBreaker_ResetReturnsToClosed(t *testing.T) {
	registry := testRegistry()
	registry.Configure("svc", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenRequests: 1})

	registry.Execute("svc", func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Equal(t, "open", registry.States()["svc"])

	registry.Reset("svc")

	result, err := registry.Execute("svc", func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestBreaker_DefaultPresetIsStandard(t *testing.T) {
	registry := testRegistry()

	breaker := registry.Get("unconfigured")
	require.NotNil(t, breaker)
	assert.Equal(t, "closed", breaker.State().String())

	// Same instance on repeat lookups.
	assert.Same(t, breaker, registry.Get("unconfigured"))
}

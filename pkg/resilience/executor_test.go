package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/types"
)

func TestExecutor_RetrySeriesCountsOnceForBreaker(t *testing.T) {
	e := NewExecutor("adt", WithLogger(logging.Nop()), WithBackoffTimer(&instantTimer{}))
	calls := 0

	err := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewTransportError("ECONNRESET", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.EqualValues(t, 1, e.Breaker().Counts().ConsecutiveFailures)
	assert.Equal(t, StateClosed, e.Breaker().State())
}

func TestExecutor_ReturnsValueAfterRetry(t *testing.T) {
	e := NewExecutor("llm", WithLogger(logging.Nop()), WithBackoffTimer(&instantTimer{}))
	attempts := 0

	got, err := Do(context.Background(), e, func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, types.NewTransportError("ECONNRESET", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, attempts)
}

func TestExecutor_OpenCircuitIsNotRetried(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 0
	e := NewExecutor("adt",
		WithLogger(logging.Nop()),
		WithRetryPolicy(policy),
		WithBreakerConfig(BreakerConfig{Threshold: 5}),
	)
	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return types.NewTransportError("ECONNREFUSED", nil)
	}

	for i := 0; i < 5; i++ {
		_ = e.Do(context.Background(), fail)
	}
	err := e.Do(context.Background(), fail)

	assert.True(t, types.IsKind(err, types.KindCircuitOpen))
	assert.Equal(t, 5, calls)
}

func TestExecutor_WithoutBreaker(t *testing.T) {
	e := NewExecutor("plain", WithLogger(logging.Nop()), WithoutBreaker())
	assert.Nil(t, e.Breaker())
	require.NoError(t, e.Do(context.Background(), func(ctx context.Context) error { return nil }))
}

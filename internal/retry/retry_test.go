package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errBusy = errors.New("busy")
	errAuth = errors.New("auth")
)

type fakeClock struct {
	waits []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	return nil
}

func testPolicy(clock *fakeClock) Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
		Sleep:       clock.Sleep,
		OnRetry:     func(int, time.Duration, error) {},
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	clock := &fakeClock{}
	calls := 0

	got, err := Do(context.Background(), testPolicy(clock), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errBusy
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.waits)
}

func TestDoStopsOnFatal(t *testing.T) {
	clock := &fakeClock{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(clock), func(context.Context) (int, error) {
		calls++
		return 0, errAuth
	})

	assert.ErrorIs(t, err, errAuth)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.waits)
}

func TestDoExhausts(t *testing.T) {
	clock := &fakeClock{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(clock), func(context.Context) (int, error) {
		calls++
		return 0, errBusy
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, clock.waits)
}

func TestDoSingleAttemptByDefault(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{Retryable: func(error) bool { return true }}, func(context.Context) (int, error) {
		calls++
		return 0, errBusy
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testPolicy(&fakeClock{})
	p.Sleep = nil

	calls := 0
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errBusy
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOnRetryHook(t *testing.T) {
	p := testPolicy(&fakeClock{})
	var attempts []int
	p.OnRetry = func(attempt int, _ time.Duration, err error) {
		assert.ErrorIs(t, err, errBusy)
		attempts = append(attempts, attempt)
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, errBusy
		}
		return calls, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDelays(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   []time.Duration
	}{
		{
			name:   "default",
			policy: Default(),
			want:   []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second},
		},
		{
			name:   "capped",
			policy: Policy{MaxAttempts: 4, BaseDelay: 10 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 3},
			want:   []time.Duration{10 * time.Second, 15 * time.Second, 15 * time.Second},
		},
		{
			name:   "single attempt",
			policy: Policy{MaxAttempts: 1, BaseDelay: time.Second},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delays())
		})
	}
}

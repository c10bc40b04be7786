package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
)

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleepFn
	sleepFn = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleepFn = orig })
	return &waits
}

func TestDoSucceedsAfterTransient(t *testing.T) {
	waits := recordSleeps(t)

	calls := 0
	v, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", apierr.New(apierr.TransientGenerationFailure, "503")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestDoStopsOnTerminal(t *testing.T) {
	waits := recordSleeps(t)

	calls := 0
	_, err := Do(context.Background(), DefaultPolicy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, apierr.New(apierr.AuthenticationFailure, "bad key")
	})
	assert.True(t, errors.Is(err, apierr.ErrAuthentication))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	waits := recordSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, apierr.New(apierr.MalformedStructuredOutput, "attempt "+string(rune('0'+attempt)))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 2")
	assert.Len(t, *waits, 2)
}

func TestDoHonoursRetryAfter(t *testing.T) {
	waits := recordSleeps(t)

	_, _ = Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Second}, func(ctx context.Context, attempt int) (int, error) {
		return 0, &apierr.Error{Kind: apierr.RateLimited, RetryAfter: 7 * time.Second}
	})
	assert.Equal(t, []time.Duration{7 * time.Second}, *waits)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orig := sleepFn
	sleepFn = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	defer func() { sleepFn = orig }()

	calls := 0
	_, err := Do(ctx, DefaultPolicy, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, apierr.New(apierr.TransientGenerationFailure, "blip")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, apierr.ErrTransient))
}

func TestDelayJitterBounded(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Jitter: true}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second+200*time.Millisecond)
	}
}

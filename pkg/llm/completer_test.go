package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/retry"
)

func fastCompleterConfig() CompleterConfig {
	return CompleterConfig{
		Timeout: 200 * time.Millisecond,
		Breaker: CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute},
		Retry: &retry.Config{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}
}

func TestGuardedCompleter_Success(t *testing.T) {
	client := NewMockLLMClient("<think>hmm</think>\nSELECT 1")
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	got, err := c.Complete(context.Background(), "prompt", "system")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
	assert.Equal(t, 1, client.Calls())
}

func TestGuardedCompleter_RetriesTransientFailureOnce(t *testing.T) {
	client := NewMockLLMClient("")
	calls := 0
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		calls++
		if calls == 1 {
			return nil, NewError(ErrorTypeUnavailable, "server error", true, nil)
		}
		return &GenerateResponseResult{Content: "ok"}, nil
	}
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	got, err := c.Complete(context.Background(), "prompt", "system")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, client.Calls())
}

func TestGuardedCompleter_GivesUpAfterOneRetry(t *testing.T) {
	client := NewMockLLMClient("")
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	}
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	_, err := c.Complete(context.Background(), "prompt", "system")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimit, GetErrorType(err))
	assert.Equal(t, 2, client.Calls())
}

func TestGuardedCompleter_PermanentFailureNotRetried(t *testing.T) {
	client := NewMockLLMClient("")
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	_, err := c.Complete(context.Background(), "prompt", "system")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.Equal(t, 1, client.Calls())
}

func TestGuardedCompleter_Timeout(t *testing.T) {
	client := NewMockLLMClient("")
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cfg := fastCompleterConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := NewCompleter(client, cfg, zap.NewNop())

	start := time.Now()
	_, err := c.Complete(context.Background(), "prompt", "system")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Equal(t, 2, client.Calls())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuardedCompleter_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewMockLLMClient("")
	client.GenerateResponseFunc = func(callCtx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		cancel()
		<-callCtx.Done()
		return nil, callCtx.Err()
	}
	cfg := fastCompleterConfig()
	cfg.Breaker.Threshold = 1
	c := NewCompleter(client, cfg, zap.NewNop())

	_, err := c.Complete(ctx, "prompt", "system")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCanceled, GetErrorType(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, client.Calls())

	// cancellation is not a provider failure
	assert.Equal(t, CircuitClosed, c.breaker.State())
}

func TestGuardedCompleter_EmptyResponseIsRetried(t *testing.T) {
	client := NewMockLLMClient("")
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	_, err := c.Complete(context.Background(), "prompt", "system")
	require.Error(t, err)
	assert.Equal(t, 2, client.Calls())
}

func TestGuardedCompleter_BreakerOpensAndShortCircuits(t *testing.T) {
	client := NewMockLLMClient("")
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}
	c := NewCompleter(client, fastCompleterConfig(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), "prompt", "system")
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, c.breaker.State())

	_, err := c.Complete(context.Background(), "prompt", "system")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, client.Calls())
}

func TestGuardedCompleter_NilClient(t *testing.T) {
	c := NewCompleter(nil, CompleterConfig{}, zap.NewNop())
	_, err := c.Complete(context.Background(), "prompt", "system")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

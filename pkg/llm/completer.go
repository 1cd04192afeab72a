package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/retry"
)

// Completer is the narrow capability the query pipeline depends on: given a
// prompt, return text or fail. Callers treat every response as untrusted.
type Completer interface {
	Complete(ctx context.Context, prompt string, systemMessage string) (string, error)
}

// CompleterConfig bounds each completion.
type CompleterConfig struct {
	Timeout     time.Duration // per attempt
	Temperature float64
	Breaker     CircuitBreakerConfig
	Retry       *retry.Config // nil means retry.SingleRetryConfig()
}

// GuardedCompleter wraps an LLMClient with a per-attempt timeout, one retry
// on transient failure, and a circuit breaker. It never blocks longer than
// roughly two timeouts, and returns as soon as ctx is cancelled.
type GuardedCompleter struct {
	client  LLMClient
	cfg     CompleterConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Completer = (*GuardedCompleter)(nil)

// NewCompleter creates a GuardedCompleter. A nil client yields a completer
// that always fails with ErrNotConfigured.
func NewCompleter(client LLMClient, cfg CompleterConfig, logger *zap.Logger) *GuardedCompleter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.SingleRetryConfig()
	}
	return &GuardedCompleter{
		client:  client,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.Breaker),
		logger:  logger.Named("llm-completer"),
	}
}

// Complete runs one guarded completion and returns the response with any
// reasoning block removed.
func (g *GuardedCompleter) Complete(ctx context.Context, prompt string, systemMessage string) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}
	if err := g.breaker.Allow(); err != nil {
		return "", err
	}

	content, err := retry.DoIfRetryable(ctx, g.cfg.Retry, func() (string, error) {
		return g.attempt(ctx, prompt, systemMessage)
	})
	if err != nil {
		classified := ClassifyError(err)
		if classified.Type != ErrorTypeCanceled {
			g.breaker.RecordFailure()
		}
		g.logger.Warn("LLM completion failed",
			zap.String("model", g.client.GetModel()),
			zap.String("error_type", string(classified.Type)),
			zap.Error(err))
		return "", classified
	}

	g.breaker.RecordSuccess()
	return StripThinking(content), nil
}

func (g *GuardedCompleter) attempt(ctx context.Context, prompt, systemMessage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ClassifyError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.client.GenerateResponse(callCtx, prompt, systemMessage, g.cfg.Temperature)
	if err != nil {
		if ctx.Err() != nil {
			return "", ClassifyError(ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", NewError(ErrorTypeTimeout,
				fmt.Sprintf("no response within %s", g.cfg.Timeout), true, err)
		}
		return "", ClassifyError(err)
	}
	if resp == nil || resp.Content == "" {
		return "", NewError(ErrorTypeUnknown, "empty response", true, nil)
	}
	return resp.Content, nil
}

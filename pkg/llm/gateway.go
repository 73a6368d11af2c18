// Package llm provides the model gateway and its text-completion providers.
package llm

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/nlq/pkg/errors"
)

// Gateway defaults.
const (
	DefaultGenerateTimeout = 30 * time.Second
	DefaultWarmupTimeout   = 5 * time.Minute
	WarmupPrompt           = "Say 'ready'"
)

// Provider is a text-completion capability.
type Provider interface {
	// Name identifies the provider and model for logs.
	Name() string
	// Complete returns the model's raw text for prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gateway bounds every provider call with a hard deadline and maps
// failures onto the model failure codes. It never retries.
type Gateway struct {
	provider        Provider
	generateTimeout time.Duration
	warmupTimeout   time.Duration
	logger          zerolog.Logger
}

// NewGateway creates a gateway. Non-positive timeouts select the defaults.
func NewGateway(provider Provider, generateTimeout, warmupTimeout time.Duration, logger zerolog.Logger) *Gateway {
	if generateTimeout <= 0 {
		generateTimeout = DefaultGenerateTimeout
	}
	if warmupTimeout <= 0 {
		warmupTimeout = DefaultWarmupTimeout
	}
	return &Gateway{
		provider:        provider,
		generateTimeout: generateTimeout,
		warmupTimeout:   warmupTimeout,
		logger:          logger.With().Str("component", "model_gateway").Str("provider", provider.Name()).Logger(),
	}
}

// Generate sends prompt to the provider bounded by the generate timeout.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.call(ctx, prompt, g.generateTimeout)
}

// WarmUp sends a fixed probe prompt bounded by the warm-up timeout so the
// first real request does not pay for model loading.
func (g *Gateway) WarmUp(ctx context.Context) error {
	g.logger.Info().Dur("timeout", g.warmupTimeout).Msg("Warming up model")
	start := time.Now()
	reply, err := g.call(ctx, WarmupPrompt, g.warmupTimeout)
	if err != nil {
		g.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Model warm-up failed")
		return err
	}
	g.logger.Info().
		Dur("elapsed", time.Since(start)).
		Str("reply", truncate(reply, 64)).
		Msg("Model is ready")
	return nil
}

type completion struct {
	text string
	err  error
}

func (g *Gateway) call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The provider runs in its own goroutine so a provider that ignores
	// cancellation still cannot hold the caller past the deadline.
	done := make(chan completion, 1)
	go func() {
		text, err := g.provider.Complete(callCtx, prompt)
		done <- completion{text: text, err: err}
	}()

	start := time.Now()
	select {
	case <-callCtx.Done():
		g.logger.Warn().Dur("elapsed", time.Since(start)).Dur("timeout", timeout).Msg("Model call abandoned")
		return "", g.contextFailure(ctx, callCtx.Err(), timeout)
	case res := <-done:
		if res.err != nil {
			if callCtx.Err() != nil || stderrors.Is(res.err, context.DeadlineExceeded) {
				return "", g.contextFailure(ctx, res.err, timeout)
			}
			g.logger.Error().Err(res.err).Dur("elapsed", time.Since(start)).Msg("Model call failed")
			return "", errors.Wrap(res.err, errors.CodeModelUnavailable, "model is unavailable").
				AtStage(errors.StageModel)
		}
		if strings.TrimSpace(res.text) == "" {
			return "", errors.New(errors.CodeModelEmptyResponse, "model returned an empty response").
				AtStage(errors.StageModel)
		}
		g.logger.Debug().
			Dur("elapsed", time.Since(start)).
			Int("response_length", len(res.text)).
			Msg("Model responded")
		return res.text, nil
	}
}

// contextFailure distinguishes our deadline from cancellation by the caller.
func (g *Gateway) contextFailure(parent context.Context, cause error, timeout time.Duration) error {
	if parent.Err() == context.Canceled {
		return errors.Wrap(cause, errors.CodeModelUnavailable, "model call was canceled").
			AtStage(errors.StageModel)
	}
	return errors.Wrapf(cause, errors.CodeModelTimeout, "model did not respond within %s", timeout).
		AtStage(errors.StageModel).
		WithDetail("timeout_ms", timeout.Milliseconds())
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

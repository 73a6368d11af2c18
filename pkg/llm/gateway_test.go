package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/nlq/pkg/errors"
)

type fakeProvider struct {
	complete func(ctx context.Context, prompt string) (string, error)
	prompts  []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.complete(ctx, prompt)
}

func TestGateway_Generate(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	tests := []struct {
		name     string
		complete func(ctx context.Context, prompt string) (string, error)
		want     string
		wantCode string
	}{
		{
			name: "returns raw text",
			complete: func(ctx context.Context, prompt string) (string, error) {
				return "  {\"collection\":\"x\"}  ", nil
			},
			want: "  {\"collection\":\"x\"}  ",
		},
		{
			name: "provider error is unavailable",
			complete: func(ctx context.Context, prompt string) (string, error) {
				return "", fmt.Errorf("connection refused")
			},
			wantCode: errors.CodeModelUnavailable,
		},
		{
			name: "blank text is empty response",
			complete: func(ctx context.Context, prompt string) (string, error) {
				return " \n\t ", nil
			},
			wantCode: errors.CodeModelEmptyResponse,
		},
		{
			name: "provider honoring context times out",
			complete: func(ctx context.Context, prompt string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			wantCode: errors.CodeModelTimeout,
		},
		{
			name: "provider ignoring context still times out",
			complete: func(ctx context.Context, prompt string) (string, error) {
				<-block
				return "late", nil
			},
			wantCode: errors.CodeModelTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{complete: tt.complete}
			gw := NewGateway(provider, 50*time.Millisecond, time.Second, zerolog.Nop())

			start := time.Now()
			got, err := gw.Generate(context.Background(), "prompt")
			assert.Less(t, time.Since(start), 2*time.Second)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				assert.Equal(t, errors.StageModel, errors.GetStage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateway_CallerCancel(t *testing.T) {
	provider := &fakeProvider{complete: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	gw := NewGateway(provider, time.Minute, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gw.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.CodeModelUnavailable, errors.GetCode(err))
}

func TestGateway_WarmUp(t *testing.T) {
	provider := &fakeProvider{complete: func(ctx context.Context, prompt string) (string, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Greater(t, time.Until(deadline), 30*time.Second, "warm-up uses the longer timeout")
		return "ready", nil
	}}
	gw := NewGateway(provider, 0, 0, zerolog.Nop())

	require.NoError(t, gw.WarmUp(context.Background()))
	assert.Equal(t, []string{WarmupPrompt}, provider.prompts)
}

func TestGateway_Defaults(t *testing.T) {
	gw := NewGateway(&fakeProvider{}, 0, 0, zerolog.Nop())
	assert.Equal(t, DefaultGenerateTimeout, gw.generateTimeout)
	assert.Equal(t, DefaultWarmupTimeout, gw.warmupTimeout)
}

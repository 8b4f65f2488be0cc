package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserver/pkg/llm"
)

func fastRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: IsRetryableError,
	}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("request failed with status code 503: busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	authErr := fmt.Errorf("request failed with status code 401: bad key")

	err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return authErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "认证失败不应重试")
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return fmt.Errorf("server error, status code 500")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts")
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := RetryWithBackoff(ctx, fastRetryConfig(10), func() error {
		calls++
		cancel()
		return fmt.Errorf("server error, status code 500")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil 错误", nil, false},
		{"上下文取消", context.Canceled, false},
		{"上下文超时", context.DeadlineExceeded, false},
		{"熔断器打开", ErrCircuitBreakerOpen, false},
		{"认证失败 401", errors.New("request failed with status code 401"), false},
		{"权限不足 403", errors.New("request failed with status code 403"), false},
		{"请求格式错误 400", errors.New("request failed with status code 400: bad input"), false},
		{"服务器错误 500", errors.New("request failed with status code 500"), true},
		{"服务不可用 503", errors.New("request failed with status code 503"), true},
		{"限流 429", errors.New("request failed with status code 429"), true},
		{"请求超时 408", errors.New("request failed with status code 408"), true},
		{"连接重置", errors.New("read tcp: connection reset by peer"), true},
		{"连接拒绝", errors.New("dial tcp: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"未知业务错误", errors.New("invalid document format"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableError(tt.err))
		})
	}
}

func TestCircuitBreaker_OpenOnMaxFailures(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      3,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)
	assert.Equal(t, StateClosed, cb.State())

	testErr := errors.New("test error")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return testErr })
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, cb.State())

	// 熔断器打开后拒绝新请求
	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return testErr })
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(80 * time.Millisecond)

	// 半开状态下的成功调用应关闭熔断器
	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	config := &CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
	cb := NewCircuitBreaker(config)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return testErr })
	}

	time.Sleep(80 * time.Millisecond)

	err := cb.Execute(func() error { return testErr })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

// flakyEmbedder 前 failures 次调用失败的假供应商。
type flakyEmbedder struct {
	failures int
	calls    int
	dim      int
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("request failed with status code 503")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *flakyEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *flakyEmbedder) Dimension() int { return f.dim }
func (f *flakyEmbedder) Name() string   { return "flaky" }

func TestResilientEmbeddingProvider(t *testing.T) {
	inner := &flakyEmbedder{failures: 2, dim: 8}
	provider := NewResilientEmbeddingProvider(inner, fastRetryConfig(3), nil)

	var _ llm.EmbeddingProvider = provider

	vecs, err := provider.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 8, provider.Dimension())
	assert.Equal(t, "flaky-resilient", provider.Name())
}

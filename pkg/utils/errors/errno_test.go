package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		name     string
		service  int
		category int
		sequence int
		expected int
	}{
		{"RAG request error", ServiceRAG, CategoryRequest, 1, 2101001},
		{"RAG config error", ServiceRAG, CategoryConfig, 1, 2112001},
		{"common success", ServiceCommon, CategorySuccess, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := MakeCode(tt.service, tt.category, tt.sequence)
			assert.Equal(t, tt.expected, code)

			service, category, sequence := ParseCode(code)
			assert.Equal(t, tt.service, service)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.sequence, sequence)
		})
	}
}

func TestErrnoWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrRAGEmbeddingUnavailable.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrRAGEmbeddingUnavailable))
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")

	// 原始错误不被修改
	assert.Nil(t, stderrors.Unwrap(ErrRAGEmbeddingUnavailable))
}

func TestErrnoHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, ErrRAGEmptyDocument.HTTPStatus())
	assert.Equal(t, 404, ErrRAGDocumentNotFound.HTTPStatus())
	assert.Equal(t, 503, ErrRAGGenerationUnavailable.HTTPStatus())
	assert.Equal(t, 500, ErrRAGDimensionMismatch.HTTPStatus())
}

func TestFromError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrRAGIndexWriteFailed.WithCause(fmt.Errorf("io")))

	e, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrRAGIndexWriteFailed.Code, e.Code)

	_, ok = FromError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestRegistryUniqueness(t *testing.T) {
	e, ok := Lookup(ErrRAGInvalidRequest.Code)
	require.True(t, ok)
	assert.Equal(t, ErrRAGInvalidRequest, e)

	assert.Panics(t, func() {
		Register(New(ErrRAGInvalidRequest.Code, 400, e.GRPCCode, "dup", ""))
	})
}

func TestClientServerClassification(t *testing.T) {
	assert.True(t, IsClientError(ErrRAGInvalidRequest.Code))
	assert.True(t, IsClientError(ErrRAGDocumentNotFound.Code))
	assert.True(t, IsServerError(ErrRAGIndexWriteFailed.Code))
	assert.True(t, IsServerError(ErrRAGDimensionMismatch.Code))
}

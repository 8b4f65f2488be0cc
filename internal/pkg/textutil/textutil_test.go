package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
		delta    float64
	}{
		{
			name:     "相同向量",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1.0,
			delta:    0.0001,
		},
		{
			name:     "正交向量",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
			delta:    0.0001,
		},
		{
			name:     "相反向量",
			a:        []float32{1, 2, 3},
			b:        []float32{-1, -2, -3},
			expected: -1.0,
			delta:    0.0001,
		},
		{
			name:     "长度不同返回零",
			a:        []float32{1, 2},
			b:        []float32{1, 2, 3},
			expected: 0.0,
			delta:    0.0001,
		},
		{
			name:     "零向量返回零",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 2, 3},
			expected: 0.0,
			delta:    0.0001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, tt.delta)
		})
	}
}

func TestNormalizeCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, NormalizeCosineSimilarity(1.0), 0.0001)
	assert.InDelta(t, 0.5, NormalizeCosineSimilarity(0.0), 0.0001)
	assert.InDelta(t, 0.0, NormalizeCosineSimilarity(-1.0), 0.0001)
}

func TestHashString(t *testing.T) {
	h1 := HashString("hello")
	h2 := HashString("hello")
	h3 := HashString("world")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 32)
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"短字符串不截断", "hello", 10, "hello"},
		{"长字符串截断", "hello world", 5, "hello"},
		{"中文按字符截断", "你好世界", 2, "你好"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateString(tt.input, tt.maxLen))
		})
	}
}

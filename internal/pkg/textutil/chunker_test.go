package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "连字符换行合并",
			input:    "infor-\nmation retrieval",
			expected: "information retrieval",
		},
		{
			name:     "多余空格折叠",
			input:    "hello    world\tfoo",
			expected: "hello world foo",
		},
		{
			name:     "多个空行折叠为段落分隔",
			input:    "para one\n\n\n\n\npara two",
			expected: "para one\n\npara two",
		},
		{
			name:     "拆散的编号标题修复",
			input:    "1 . Overview of the system",
			expected: "1. Overview of the system",
		},
		{
			name:     "空文本",
			input:    "   \n\n  ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestSplitIntoChunks(t *testing.T) {
	t.Run("空文本返回 nil", func(t *testing.T) {
		assert.Nil(t, SplitIntoChunks("", 800, 200))
		assert.Nil(t, SplitIntoChunks("   \n  ", 800, 200))
	})

	t.Run("短文本只产生一个块", func(t *testing.T) {
		chunks := SplitIntoChunks("short text here", 800, 200)
		require.Len(t, chunks, 1)
		assert.Equal(t, "short text here", chunks[0])
	})

	t.Run("所有块不超过块大小", func(t *testing.T) {
		text := strings.Repeat("This is a sentence about retrieval systems. ", 100)
		chunks := SplitIntoChunks(text, 200, 50)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	})

	t.Run("段落优先合并", func(t *testing.T) {
		text := "First paragraph here.\n\nSecond paragraph here."
		chunks := SplitIntoChunks(text, 800, 200)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0], "First paragraph here.")
		assert.Contains(t, chunks[0], "Second paragraph here.")
	})

	t.Run("相邻块之间存在重叠", func(t *testing.T) {
		text := strings.Repeat("Alpha beta gamma delta epsilon zeta eta theta. ", 60)
		chunks := SplitIntoChunks(text, 300, 80)
		require.Greater(t, len(chunks), 1)
		for i := 0; i < len(chunks)-1; i++ {
			assert.Greater(t, suffixPrefixOverlap(chunks[i], chunks[i+1]), 0,
				"chunk %d and %d should share overlap", i, i+1)
		}
	})

	t.Run("全部内容被覆盖", func(t *testing.T) {
		text := strings.Repeat("Vector search finds nearest neighbors quickly. ", 40)
		chunks := SplitIntoChunks(text, 250, 60)
		joined := strings.Join(chunks, " ")
		for _, w := range strings.Fields(CleanText(text)) {
			assert.Contains(t, joined, w)
		}
	})

	t.Run("确定性", func(t *testing.T) {
		text := strings.Repeat("Deterministic output matters for upserts. ", 50)
		first := SplitIntoChunks(text, 300, 80)
		second := SplitIntoChunks(text, 300, 80)
		assert.Equal(t, first, second)
	})

	t.Run("超长单词按字符硬切", func(t *testing.T) {
		text := strings.Repeat("x", 900)
		chunks := SplitIntoChunks(text, 200, 50)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
		}
	})
}

// suffixPrefixOverlap 返回 a 的后缀与 b 的前缀的最长公共长度。
func suffixPrefixOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}

func TestExtractSections(t *testing.T) {
	chunks := []string{
		"1. Introduction\nThis document describes the system.",
		"More introductory details without a header.",
		"2. Architecture\nThe system has several layers.",
	}

	sections := ExtractSections(chunks)
	require.Len(t, sections, 3)
	assert.Equal(t, "1. Introduction", sections[0])
	assert.Equal(t, "1. Introduction", sections[1])
	assert.Equal(t, "2. Architecture", sections[2])
}

func TestExtractSectionsHeaderAppliesToOwnChunk(t *testing.T) {
	// 已沿用上文章节后，块首出现的新标题仍应标注当前块
	chunks := []string{
		"1. Introduction\nThis document describes the system.",
		"More introductory details without a header.",
		"2. Architecture\nThe system has several layers.",
		"3. Deployment\nRuns as a single binary.",
	}

	sections := ExtractSections(chunks)
	require.Len(t, sections, 4)
	assert.Equal(t, "2. Architecture", sections[2])
	assert.Equal(t, "3. Deployment", sections[3])
}

func TestExtractSectionsOnlyFirstTwoLines(t *testing.T) {
	// 标题出现在块首两行之外时不生效
	chunks := []string{
		"1. Introduction\nBody of the introduction.",
		"Continuation line one.\nContinuation line two.\n2. Architecture\nLayered design.",
	}

	sections := ExtractSections(chunks)
	require.Len(t, sections, 2)
	assert.Equal(t, "1. Introduction", sections[0])
	assert.Equal(t, "1. Introduction", sections[1])
}

func TestExtractSectionsAllCaps(t *testing.T) {
	chunks := []string{
		"ABSTRACT\nWe present a retrieval system.",
		"body text continues here.",
	}

	sections := ExtractSections(chunks)
	require.Len(t, sections, 2)
	assert.Equal(t, "ABSTRACT", sections[0])
	assert.Equal(t, "ABSTRACT", sections[1])
}

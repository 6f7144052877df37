package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertCoverage checks that chunks are contiguous slices of the normalized
// text with no gaps, in order, and that they reach the end of the text.
func assertCoverage(t *testing.T, text string, res *Result) {
	t.Helper()
	runes := []rune(Normalize(text))
	prevEnd := 0
	for i, ch := range res.Chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text, "chunk %d text", i)
		if ch.Start > prevEnd {
			gap := string(runes[prevEnd:ch.Start])
			assert.Empty(t, strings.TrimSpace(gap), "non-whitespace gap before chunk %d", i)
		}
		if ch.End > prevEnd {
			prevEnd = ch.End
		}
	}
	if prevEnd < len(runes) {
		assert.Empty(t, strings.TrimSpace(string(runes[prevEnd:])), "uncovered tail")
	}
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkSize, c.ChunkSize())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())
}

func TestNew_OverlapClamped(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(150))
	assert.Equal(t, 25, c.Overlap())
}

func TestSplit_Empty(t *testing.T) {
	res := New().Split("")
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.Skipped)
}

func TestSplit_ShortText(t *testing.T) {
	res := New().Split("hello world")
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "hello world", res.Chunks[0].Text)
}

func TestSplit_WhitespaceOnly(t *testing.T) {
	res := New().Split("   \n\n  \t ")
	assert.Empty(t, res.Chunks)
	assert.Equal(t, 1, res.Skipped)
}

func TestSplit_NormalizesLineEndings(t *testing.T) {
	res := New().Split("a\r\nb\rc")
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "a\nb\nc", res.Chunks[0].Text)
}

func TestSplit_ParagraphsFirst(t *testing.T) {
	para := strings.Repeat("word ", 15) // 75 chars
	text := para + "\n\n" + para + "\n\n" + para
	c := New(WithChunkSize(100), WithOverlap(0))

	res := c.Split(text)
	require.Len(t, res.Chunks, 3)
	for _, ch := range res.Chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 100)
		assert.True(t, strings.HasPrefix(ch.Text, "word"))
	}
	assertCoverage(t, text, res)
}

func TestSplit_SizeBound(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("lorem ipsum dolor sit amet, ")
		if i%7 == 0 {
			sb.WriteString("\n")
		}
		if i%31 == 0 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()
	c := New(WithChunkSize(200), WithOverlap(40))

	res := c.Split(text)
	require.NotEmpty(t, res.Chunks)
	for i, ch := range res.Chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 200, "chunk %d too large", i)
	}
	assertCoverage(t, text, res)
}

func TestSplit_Overlap(t *testing.T) {
	text := strings.Repeat("abcd ", 100)
	c := New(WithChunkSize(50), WithOverlap(10))

	res := c.Split(text)
	require.Greater(t, len(res.Chunks), 1)
	for i := 1; i < len(res.Chunks); i++ {
		prev, cur := res.Chunks[i-1], res.Chunks[i]
		shared := prev.End - cur.Start
		assert.Greater(t, shared, 0, "chunk %d should overlap its predecessor", i)
		assert.LessOrEqual(t, shared, 10)
	}
	assertCoverage(t, text, res)
}

func TestSplit_CharacterFallback(t *testing.T) {
	text := strings.Repeat("x", 250)
	c := New(WithChunkSize(100), WithOverlap(20))

	res := c.Split(text)
	require.NotEmpty(t, res.Chunks)
	for _, ch := range res.Chunks {
		assert.LessOrEqual(t, len(ch.Text), 100)
	}
	assert.Equal(t, 0, res.Chunks[0].Start)
	assert.Equal(t, 250, res.Chunks[len(res.Chunks)-1].End)
	assertCoverage(t, text, res)
}

func TestSplit_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト。", 40)
	c := New(WithChunkSize(30), WithOverlap(5))

	res := c.Split(text)
	require.NotEmpty(t, res.Chunks)
	for _, ch := range res.Chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 30)
	}
	assertCoverage(t, text, res)
}

func TestSplit_CustomSeparators(t *testing.T) {
	text := "a|b|c|d|e|f|g|h"
	c := New(WithChunkSize(4), WithOverlap(0), WithSeparators([]string{"|"}))

	res := c.Split(text)
	assert.Equal(t, []string{"a|b|", "c|d|", "e|f|", "g|h"}, res.Texts())
	assertCoverage(t, text, res)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox.\n", 200)
	c := New(WithChunkSize(120), WithOverlap(30))
	assert.Equal(t, c.Split(text).Texts(), c.Split(text).Texts())
}


package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split(""))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	chunks := Split("supply and demand")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "supply and demand", chunks[0].Content)
}

func TestSplit_WindowAndOverlap(t *testing.T) {
	text := strings.Repeat("a", 1800) + strings.Repeat("b", 1600) + strings.Repeat("c", 100)

	chunks := Split(text)
	require.Len(t, chunks, 3)

	assert.Len(t, []rune(chunks[0].Content), 1800)
	assert.Len(t, []rune(chunks[1].Content), 1800)
	// third window starts at 3200 and runs to the end
	assert.Len(t, []rune(chunks[2].Content), 300)

	// adjacent chunks share exactly 200 characters
	assert.Equal(t, chunks[0].Content[1600:], chunks[1].Content[:200])
	assert.Equal(t, chunks[1].Content[1600:], chunks[2].Content[:200])
}

func TestSplit_ExactWindow(t *testing.T) {
	chunks := Split(strings.Repeat("x", 1800))
	assert.Len(t, chunks, 1)
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 1900)
	chunks := Split(text)
	require.Len(t, chunks, 2)
	assert.Len(t, []rune(chunks[0].Content), 1800)
	assert.Len(t, []rune(chunks[1].Content), 300)
}

func TestSplitFrom_IsSuffixOfSplit(t *testing.T) {
	text := strings.Repeat("0123456789", 800)
	s := New(DefaultWindow, DefaultOverlap)

	all := s.Split(text)
	require.Greater(t, len(all), 3)

	assert.Equal(t, all[2:], s.SplitFrom(text, 2))
	assert.Empty(t, s.SplitFrom(text, len(all)))
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("lorem ipsum ", 500)
	assert.Equal(t, Split(text), Split(text))
}

func TestNew_InvalidOverlap(t *testing.T) {
	s := New(10, 10)
	chunks := s.Split(strings.Repeat("z", 25))
	assert.Len(t, chunks, 3)
}

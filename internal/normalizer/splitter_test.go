package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	chunks := SplitText("салом дунё.", 3000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "салом дунё.", chunks[0])
}

func TestSplitTextEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitText("", 3000))
	assert.Nil(t, SplitText("   ", 3000))
}

func TestSplitTextSentenceBoundaries(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("сўз ", 150) + "тамом. "
	text := strings.Repeat(sentence, 6)
	require.Greater(t, len(text), 3000)

	chunks := SplitText(text, 3000)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}

	// No words lost or reordered across the cut points.
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitTextOversizedWord(t *testing.T) {
	t.Parallel()

	word := strings.Repeat("ю", 4500)
	chunks := SplitText(word, 2000)
	require.Greater(t, len(chunks), 1)

	var total int
	for _, chunk := range chunks {
		runes := []rune(chunk)
		assert.LessOrEqual(t, len(runes), 2000)
		total += len(runes)
	}
	assert.Equal(t, 4500, total)
}

func TestSplitTextCountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	// Cyrillic letters take two bytes each; the bound is on characters,
	// so a text under the max in runes stays whole even though its byte
	// length is well past it.
	sentence := strings.Repeat("сўз ", 100) + "тамом. "
	text := strings.TrimSpace(strings.Repeat(sentence, 6))
	require.Greater(t, len(text), 3000)
	require.LessOrEqual(t, len([]rune(text)), 3000)

	chunks := SplitText(text, 3000)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitTextMinimumFloor(t *testing.T) {
	t.Parallel()

	// A max below the floor is raised to the floor, not honored.
	text := strings.Repeat("а", 1500)
	chunks := SplitText(text, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

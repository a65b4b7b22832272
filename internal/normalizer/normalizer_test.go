package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

func TestCleanup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		hashtag string
		want    string
	}{
		{
			name:    "hashtag removed",
			input:   "#audio Салом дунё",
			hashtag: "#audio",
			want:    "Салом дунё",
		},
		{
			name:    "hashtag removed any casing",
			input:   "Салом #AUDIO дунё",
			hashtag: "#audio",
			want:    "Салом дунё",
		},
		{
			name:    "newlines become pauses",
			input:   "Салом\nДунё",
			hashtag: "",
			want:    "Салом. Дунё",
		},
		{
			name:    "whitespace collapsed",
			input:   "  Салом   дунё  ",
			hashtag: "",
			want:    "Салом дунё",
		},
		{
			name:    "repeated periods collapsed",
			input:   "Салом...\nДунё",
			hashtag: "",
			want:    "Салом. Дунё",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Cleanup(tt.input, tt.hashtag))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	opts := Options{TriggerHashtag: "#audio", MaxChunkLength: 3000}

	t.Run("latin input", func(t *testing.T) {
		t.Parallel()
		result, err := Normalize("#audio Salom dunyo", opts)
		require.NoError(t, err)
		assert.Equal(t, "салом дунё", result.Text)
		assert.Equal(t, []string{"салом дунё"}, result.Chunks)
		assert.True(t, result.WasLatin)
	})

	t.Run("cyrillic input", func(t *testing.T) {
		t.Parallel()
		result, err := Normalize("Салом дунё", opts)
		require.NoError(t, err)
		assert.Equal(t, "салом дунё", result.Text)
		assert.False(t, result.WasLatin)
	})

	t.Run("numbers expanded", func(t *testing.T) {
		t.Parallel()
		result, err := Normalize("менда 5 та китоб бор", opts)
		require.NoError(t, err)
		assert.Equal(t, "менда беш та китоб бор", result.Text)
	})

	t.Run("acronym expanded before lowering", func(t *testing.T) {
		t.Parallel()
		result, err := Normalize("АҚШ президенти", opts)
		require.NoError(t, err)
		assert.Equal(t, "а-қа-ша президенти", result.Text)
	})

	t.Run("empty input rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Normalize("", opts)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("digits only rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Normalize("12345", opts)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("hashtag only rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Normalize("#audio", opts)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("deterministic output", func(t *testing.T) {
		t.Parallel()
		first, err := Normalize("Salom 7-fevral", opts)
		require.NoError(t, err)
		second, err := Normalize("Salom 7-fevral", opts)
		require.NoError(t, err)
		assert.Equal(t, first.Text, second.Text)
		assert.Equal(t, first.Chunks, second.Chunks)
	})
}
